package kobo

import (
	"fmt"

	"github.com/koboledger/kobo/internal/apierror"
	"github.com/koboledger/kobo/model"
)

// CallerIdentity is the authenticated principal an operation runs as. It is
// passed explicitly to every engine operation; the engine keeps no ambient
// notion of "the current user".
type CallerIdentity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (c CallerIdentity) IsAdmin() bool {
	return c.Role == model.RoleAdmin
}

// authorizeAccountAccess permits an operation on an account owned by
// ownerID. Admins may touch any account; everyone else only their own.
// Evaluated fresh on every operation, reads included.
func authorizeAccountAccess(caller CallerIdentity, ownerID string) error {
	if caller.IsAdmin() || caller.UserID == ownerID {
		return nil
	}
	return apierror.NewAPIError(apierror.ErrForbidden, "You do not have access to this account", nil)
}

// requireAdmin guards the admin-only surface.
func requireAdmin(caller CallerIdentity) error {
	if caller.IsAdmin() {
		return nil
	}
	return apierror.NewAPIError(apierror.ErrForbidden, fmt.Sprintf("Role '%s' is not permitted to perform this operation", caller.Role), nil)
}
