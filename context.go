package msafe

import (
	"context"
)

type contextKey struct{}

var userContextKey = contextKey{}

func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFrom returns the authenticated caller stored in ctx.
func UserFrom(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey).(*User)
	return user, ok && user.MixinID != ""
}
