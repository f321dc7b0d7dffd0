// Package auth resolves tenant scope from pre-verified identity claims.
// Signature validation happens upstream in the external authorizer; this
// package only consumes the token payload.
package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/model"
)

// Claim names supplied by the external authorizer.
const (
	ClaimTenantID = "custom:tenant_id"
	ClaimUserID   = "sub"
	ClaimEmail    = "email"
	ClaimRoles    = "cognito:groups"
)

// Claims is the already-verified token payload.
type Claims map[string]any

// Resolve extracts the tenant scope from a claims map. A missing tenant claim
// fails with an Unauthenticated error; scope is never silently downgraded.
func Resolve(claims Claims) (model.Identity, error) {
	tenantID, _ := claims[ClaimTenantID].(string)
	if tenantID == "" {
		return model.Identity{}, apierrors.Unauthenticated("no tenant_id in token")
	}

	userID, _ := claims[ClaimUserID].(string)
	email, _ := claims[ClaimEmail].(string)

	return model.Identity{
		TenantID: tenantID,
		UserID:   userID,
		Email:    email,
		Roles:    rolesOf(claims[ClaimRoles]),
	}, nil
}

// ParseBearer extracts the claims map from an Authorization header. The token
// payload is decoded without signature verification.
func ParseBearer(header string) (Claims, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, apierrors.Unauthenticated("missing bearer token")
	}

	raw := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if raw == "" {
		return nil, apierrors.Unauthenticated("missing bearer token")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, apierrors.Unauthenticated("invalid token")
	}

	return Claims(claims), nil
}

// rolesOf normalizes the roles claim, which arrives as a JSON array or a
// single string depending on the issuer.
func rolesOf(v any) []string {
	switch roles := v.(type) {
	case []string:
		return roles
	case []any:
		out := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if roles == "" {
			return nil
		}
		return []string{roles}
	default:
		return nil
	}
}
