package auth

import (
	"context"
	"errors"
	"fmt"
)

var ErrMissingRole = errors.New("missing required role")

// Caller is who a copilot request runs as. TenantID scopes row-level
// security and the audit history.
type Caller struct {
	TenantID      string
	KeyID         string
	Authenticated bool
}

// Authorize resolves the caller of a copilot route. An authenticated
// identity must hold role and always supplies the tenant. Without an
// identity, which only happens when auth is disabled, the caller is
// defaultTenant; request headers never choose the tenant.
func Authorize(ctx context.Context, role, defaultTenant string) (Caller, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return Caller{TenantID: defaultTenant}, nil
	}
	if !identity.HasRole(role) {
		return Caller{}, fmt.Errorf("%w %s", ErrMissingRole, role)
	}
	return Caller{TenantID: identity.TenantID, KeyID: identity.KeyID, Authenticated: true}, nil
}
