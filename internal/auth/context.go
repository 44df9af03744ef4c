package auth

import "context"

type contextKey string

const claimsKey contextKey = "claims"

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// UserIDFrom devolve nil quando a request não veio de alguém da equipe.
func UserIDFrom(ctx context.Context) *string {
	c := ClaimsFrom(ctx)
	if c == nil || c.UserID == "" {
		return nil
	}
	id := c.UserID
	return &id
}

func RoleFrom(ctx context.Context) string {
	if c := ClaimsFrom(ctx); c != nil {
		return c.Role
	}
	return ""
}
