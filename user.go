package msafe

import (
	"context"

	"github.com/fox-one/mixin-sdk-go"
)

type User struct {
	MixinID string `json:"mixin_id"`
	Token   string `json:"-"`
}

// UserResolver turns a bearer token into the user it was issued to.
type UserResolver func(ctx context.Context, token string) (*User, error)

// MixinUserResolver asks the Mixin API who owns the token.
func MixinUserResolver(ctx context.Context, token string) (*User, error) {
	u, err := mixin.UserMe(ctx, token)
	if err != nil {
		return nil, err
	}

	return &User{
		MixinID: u.UserID,
		Token:   token,
	}, nil
}
