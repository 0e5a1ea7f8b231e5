package common

import (
	"context"
	"strings"
)

type userIDKey struct{}

// WithUserID binds the caller's identity to ctx. A blank id leaves the
// context anonymous, which prices the cart without customer segments.
func WithUserID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserID returns the caller's identity; ok is false for anonymous requests.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}
