package auth

import (
	"context"

	"github.com/opin-voting/backend/internal/models"
)

type claimsKey struct{}

// WithClaims returns a context carrying the validated token claims.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims stored by WithClaims, or nil.
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// CurrentUser returns the signed-in identity for the request, or nil.
func CurrentUser(ctx context.Context) *models.Identity {
	c := ClaimsFrom(ctx)
	if c == nil {
		return nil
	}
	return &models.Identity{UserID: c.UserID, Email: c.Email}
}
