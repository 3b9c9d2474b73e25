package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/jayjaytrn/freshflow/internal/auth"
	"github.com/jayjaytrn/freshflow/models"
	"go.uber.org/zap"
)

// AdminChecker resolves the admin role of a user.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// ValidateAuth requires a bearer token and stores the caller principal in the
// request context.
func ValidateAuth(tokens *auth.Manager, admins AdminChecker) Middleware {
	return func(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header is missing", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid token format", http.StatusUnauthorized)
				return
			}

			UUID, err := tokens.ValidateJWT(tokenString)
			if err != nil {
				sugar.Infow("invalid token", "error", err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			admin, err := admins.IsAdmin(r.Context(), UUID)
			if err != nil {
				sugar.Errorw("failed to resolve role", "user", UUID, "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			ctx := auth.WithPrincipal(r.Context(), models.Principal{UserID: UUID, Admin: admin})
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers without the admin role. It must run after ValidateAuth.
func RequireAdmin(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.PrincipalFrom(r.Context())
		if !p.Authenticated() {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		if !p.Admin {
			sugar.Infow("admin route refused", "user", p.UserID, "path", r.URL.Path)
			http.Error(w, "access denied", http.StatusForbidden)
			return
		}
		h.ServeHTTP(w, r)
	})
}
