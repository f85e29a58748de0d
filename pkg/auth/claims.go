// Package auth validates bearer tokens and exposes the caller's identity
// (user and organization) to handlers.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// ClaimsKey is the context key for storing JWT claims.
const ClaimsKey contextKey = "claims"

// Claims is the token payload. The subject is the user ID.
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID int64    `json:"org,omitempty"`
	Email          string   `json:"email,omitempty"`
	Roles          []string `json:"roles,omitempty"`
}

// HasRole reports whether the claims carry the given role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleAdmin may drop managed tables.
const RoleAdmin = "admin"

// GetClaims retrieves JWT claims from the request context.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok && claims != nil
}

// WithClaims stores claims in the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// Identity returns the user and organization from the context claims.
func Identity(ctx context.Context) (userID string, organizationID int64, err error) {
	claims, ok := GetClaims(ctx)
	if !ok {
		return "", 0, fmt.Errorf("authentication required: no claims in context")
	}
	if claims.Subject == "" {
		return "", 0, fmt.Errorf("missing subject in JWT claims")
	}
	if claims.OrganizationID <= 0 {
		return "", 0, fmt.Errorf("missing organization in JWT claims")
	}
	return claims.Subject, claims.OrganizationID, nil
}
