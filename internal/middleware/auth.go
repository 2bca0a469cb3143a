package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/benvon/ai-task/internal/database"
	logpkg "github.com/benvon/ai-task/internal/logger"
	"github.com/benvon/ai-task/internal/models"
	"github.com/benvon/ai-task/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionVerifier checks session tokens
type SessionVerifier interface {
	Verify(raw string) (*models.SessionClaims, error)
}

// UserLookup loads the user a session belongs to
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Auth requires a valid session token and puts its user in the request
// context. The token comes from the Authorization header or the token query
// parameter.
func Auth(sessions SessionVerifier, users UserLookup, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := request.BearerToken(r)
			if raw == "" {
				respondErrorJSON(w, r, http.StatusUnauthorized, "Unauthorized", "Missing session token")
				return
			}

			claims, err := sessions.Verify(raw)
			if err != nil {
				logger.Debug("session_rejected", zap.String("error", logpkg.SanitizeError(err)))
				respondErrorJSON(w, r, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
				return
			}

			userID, err := uuid.Parse(claims.Sub)
			if err != nil {
				respondErrorJSON(w, r, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, database.ErrNotFound) {
					respondErrorJSON(w, r, http.StatusUnauthorized, "Unauthorized", "User no longer exists")
					return
				}
				logger.Error("session_user_lookup_failed",
					zap.String("user_id", logpkg.SanitizeUserID(userID)),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				respondErrorJSON(w, r, http.StatusInternalServerError, "Internal Server Error", "Failed to load user")
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(r.Context(), user)))
		})
	}
}
