package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// RoleCopilotUser grants access to the query gateway and the caller's own
// audit history.
const RoleCopilotUser = "copilot_user"

// Identity is the caller behind an API key. KeyID is a short digest prefix
// that is safe to log.
type Identity struct {
	TenantID string
	Roles    []string
	KeyID    string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticAPIKeyValidator resolves keys configured as comma separated
// key:tenant:role|role entries. Only SHA-256 digests of the keys are kept.
type StaticAPIKeyValidator struct {
	byDigest map[[sha256.Size]byte]Identity
}

func NewStaticAPIKeyValidator(raw string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{byDigest: map[[sha256.Size]byte]Identity{}}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, identity, err := parseKeyEntry(entry)
		if err != nil {
			return nil, err
		}
		digest := sha256.Sum256([]byte(key))
		if _, dup := validator.byDigest[digest]; dup {
			return nil, fmt.Errorf("static key %s configured twice", identity.KeyID)
		}
		validator.byDigest[digest] = identity
	}
	return validator, nil
}

func parseKeyEntry(entry string) (string, Identity, error) {
	key, rest, ok := strings.Cut(entry, ":")
	tenant, roleList, ok2 := strings.Cut(rest, ":")
	if !ok || !ok2 || strings.Contains(roleList, ":") {
		return "", Identity{}, fmt.Errorf("invalid static key entry: expected key:tenant:role|role")
	}
	key = strings.TrimSpace(key)
	tenant = strings.TrimSpace(tenant)
	if key == "" || tenant == "" {
		return "", Identity{}, fmt.Errorf("invalid static key entry for tenant %q: empty key/tenant", tenant)
	}

	var roles []string
	for _, role := range strings.Split(roleList, "|") {
		if role = strings.TrimSpace(role); role != "" && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return "", Identity{}, fmt.Errorf("invalid static key entry for tenant %q: at least one role is required", tenant)
	}
	slices.Sort(roles)
	return key, Identity{TenantID: tenant, Roles: roles, KeyID: keyID(key)}, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.byDigest[sha256.Sum256([]byte(apiKey))]
	return identity, ok
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.byDigest)
}

func keyID(key string) string {
	digest := sha256.Sum256([]byte(key))
	return hex.EncodeToString(digest[:4])
}
