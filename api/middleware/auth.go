/*
Copyright 2025 Kobo Ledger Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/koboledger/kobo"
)

// callerContextKey is the gin context key the authenticated caller is
// stored under.
const callerContextKey = "caller"

// BearerAuthMiddleware verifies the Authorization bearer token and resolves
// it into a CallerIdentity for downstream handlers. Requests without a
// valid token never reach the protected surface.
func BearerAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization header"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must be 'Bearer <token>'"})
			return
		}

		caller, err := kobo.VerifyToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(callerContextKey, caller)
		c.Next()
	}
}

// CallerFromContext returns the CallerIdentity the auth middleware resolved
// for this request.
func CallerFromContext(c *gin.Context) (kobo.CallerIdentity, bool) {
	value, exists := c.Get(callerContextKey)
	if !exists {
		return kobo.CallerIdentity{}, false
	}
	caller, ok := value.(kobo.CallerIdentity)
	return caller, ok
}
