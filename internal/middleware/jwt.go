package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"directchat/internal/respond"
	"directchat/internal/user"

	"go.uber.org/zap"
)

// Authenticator resolves a bearer token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, tokenString string) (*user.User, error)
}

type AuthMiddleware struct {
	auth   Authenticator
	logger *zap.SugaredLogger
}

func NewAuthMiddleware(a Authenticator, logger *zap.SugaredLogger) *AuthMiddleware {
	return &AuthMiddleware{auth: a, logger: logger}
}

// Handle rejects requests without a valid bearer token and stores the user in the
// request context for user.FromContext. Every auth failure gets the same response.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := BearerToken(r)
		if tokenString == "" {
			respond.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		u, err := am.auth.Authenticate(r.Context(), tokenString)
		if err != nil {
			if !errors.Is(err, user.ErrUnauthorized) {
				am.logger.Errorw("authenticating request", "path", r.URL.Path, "error", err)
			}
			respond.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(user.NewContext(r.Context(), u)))
	})
}

// BearerToken extracts the token from "Authorization: Bearer <t>".
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
