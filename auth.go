package msafe

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/yiplee/go-cache"
	"golang.org/x/sync/singleflight"
)

func extractBearerToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	return strings.TrimPrefix(token, "Bearer ")
}

// handleAuth attaches the caller to the request context. Requests without a
// usable token pass through anonymously and are rejected by the handlers that
// need a caller.
func handleAuth(issuer string, resolve UserResolver) func(next http.Handler) http.Handler {
	var (
		users = cache.New[string, *User]()
		sf    singleflight.Group
	)

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := extractBearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			// the signature is checked by whoever resolves the token
			var claim jwt.StandardClaims
			if _, _, err := new(jwt.Parser).ParseUnverified(token, &claim); err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if err := claim.Valid(); err != nil || claim.Issuer != issuer {
				next.ServeHTTP(w, r)
				return
			}

			user, err, _ := sf.Do(token, func() (interface{}, error) {
				if u, ok := users.Get(token); ok {
					return u, nil
				}

				u, err := resolve(ctx, token)
				if err != nil {
					return nil, err
				}

				users.Set(token, u)
				return u, nil
			})

			if err != nil {
				slog.Warn("resolve user failed", slog.Any("err", err))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(ctx, user.(*User))))
		}

		return http.HandlerFunc(fn)
	}
}
