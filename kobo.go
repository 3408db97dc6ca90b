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

package kobo

import (
	"embed"

	"go.opentelemetry.io/otel"

	"github.com/koboledger/kobo/database"
	"github.com/koboledger/kobo/internal/cache"
)

// Kobo is the ledger engine. All account and transaction operations go
// through it; it owns authorization, balance arithmetic, and the commit
// retry loop, delegating persistence to the datasource.
type Kobo struct {
	datasource database.IDataSource
	cache      cache.Cache
}

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("kobo.ledger")

// NewKobo initializes the ledger engine with the provided datasource.
// The cache is optional; a nil cache turns account lookups into plain
// database reads.
func NewKobo(db database.IDataSource) (*Kobo, error) {
	newCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}
	return &Kobo{datasource: db, cache: newCache}, nil
}
