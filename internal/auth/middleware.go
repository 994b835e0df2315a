package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/strefethen/harmony-go/internal/api"
	"github.com/strefethen/harmony-go/internal/apperrors"
)

// Only the /v1 API is protected. The player page, /audio, /ws/player and /metrics
// sit outside it and stay open to the local network.
const protectedPrefix = "/v1/"

var publicPrefixes = []string{
	"/v1/health",
	"/v1/openapi",
}

// Middleware validates bearer tokens for protected routes.
func Middleware(signer *Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Missing Authorization header"))
				return
			}
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid Authorization header format"))
				return
			}

			payload, err := signer.VerifyToken(token)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					api.WriteError(w, r, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrorCodeAuthTokenExpired))
					return
				}
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}

			user := User{Sub: payload.Sub, Client: payload.Client}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func isPublicRoute(path string) bool {
	if !strings.HasPrefix(path, protectedPrefix) {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
