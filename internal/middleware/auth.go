package middleware

import (
	"net/http"
	"strings"

	"tenancy-service/internal/session"
	"tenancy-service/pkg/logger"
	"tenancy-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Auth validates the opaque session token from the Authorization header and
// stores the identity snapshot in the request context.
func Auth(sessions session.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			// Get the Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Error("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			// Check if it's a Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Error("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			// Look up the session
			sess, err := sessions.Get(c.Request().Context(), parts[1])
			if err != nil {
				log.Error("Invalid or expired session token", zap.Error(err))
				prometheus.RecordAuthError("invalid_session")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired session"})
			}

			// Store identity in context for later use
			c.Set("session_token", sess.Token)
			c.Set("user_id", sess.UserID)
			c.Set("email", sess.Email)
			c.Set("name", sess.Name)
			c.Set("user_role", sess.Role)

			// Update logger with user information
			log = log.With(
				zap.Uint("user_id", sess.UserID),
				zap.String("email", sess.Email),
			)
			c.Set("logger", log)

			return next(c)
		}
	}
}
