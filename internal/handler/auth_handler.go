package handler

import (
	"errors"
	"net/http"
	"time"

	"tenancy-service/internal/model"
	"tenancy-service/internal/session"
	"tenancy-service/internal/store"
	"tenancy-service/internal/tenancy"
	"tenancy-service/pkg/jwtutil"
	"tenancy-service/pkg/logger"
	"tenancy-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler issues and destroys sessions. Tenant resolution runs inside the
// login flows, before any session is created.
type AuthHandler struct {
	users    *store.Tenancy
	sessions session.Store
	resolver *tenancy.Resolver
	ttl      time.Duration
}

// NewAuthHandler creates the authentication handler.
func NewAuthHandler(users *store.Tenancy, sessions session.Store, resolver *tenancy.Resolver, ttl time.Duration) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, resolver: resolver, ttl: ttl}
}

// Login authenticates with email and password and issues a session bound to
// the resolved tenant.
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	user, err := h.users.GetUserByEmail(c.Request().Context(), req.Email)
	if err != nil {
		log.Error("User not found", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Error("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	return h.issueSession(c, user, "")
}

// SSOCallback accepts an identity-provider ID token, provisions the user if
// needed, and issues a session. The assertion's tenant id is the
// highest-trust resolution signal.
func (h *AuthHandler) SSOCallback(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.SSOCallbackCounter.Inc()

	var req struct {
		IDToken string `json:"id_token"`
	}

	if err := c.Bind(&req); err != nil || req.IDToken == "" {
		log.Error("Failed to parse SSO callback request")
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id_token is required"})
	}

	claims, err := jwtutil.ValidateAssertion(req.IDToken)
	if err != nil {
		log.Error("Invalid IdP assertion", zap.Error(err))
		prometheus.RecordAuthError("invalid_assertion")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid identity assertion"})
	}

	user, err := h.users.GetUserByEmail(c.Request().Context(), claims.Email)
	if errors.Is(err, tenancy.ErrNotFound) {
		user = &model.User{
			Email: claims.Email,
			Name:  claims.Name,
			Role:  tenancy.DefaultRole,
		}
		if err := h.users.CreateUser(c.Request().Context(), user); err != nil {
			log.Error("Failed to provision SSO user", zap.String("email", claims.Email), zap.Error(err))
			prometheus.RecordAuthError("user_provision_failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user provisioning failed"})
		}
		log.Info("Provisioned user from SSO assertion", zap.String("email", claims.Email))
	} else if err != nil {
		log.Error("Failed to load user", zap.Error(err))
		prometheus.RecordAuthError("db_error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	return h.issueSession(c, user, claims.TenantID)
}

// Logout destroys the current session.
func (h *AuthHandler) Logout(c echo.Context) error {
	log := logger.FromContext(c)

	token, ok := c.Get("session_token").(string)
	if !ok || token == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "no active session"})
	}

	if err := h.sessions.Delete(c.Request().Context(), token); err != nil {
		log.Error("Failed to delete session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}

	prometheus.ActiveSessionsGauge.Dec()
	log.Info("User logged out")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// issueSession resolves the tenant (the write path) and creates the session.
// A resolution failure halts login: a session must never exist unscoped.
func (h *AuthHandler) issueSession(c echo.Context, user *model.User, idpTenantID string) error {
	log := logger.FromContext(c)

	tc, err := h.resolver.ResolveAndAssign(c.Request().Context(), user.ID, user.Email, idpTenantID)
	if err != nil {
		if errors.Is(err, tenancy.ErrNoDefaultTenant) {
			log.Error("No default tenant configured", zap.Error(err))
			prometheus.RecordAuthError("no_default_tenant")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant resolution failed"})
		}
		log.Error("Tenant resolution failed", zap.Error(err))
		prometheus.RecordAuthError("resolution_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant resolution failed"})
	}

	sess, err := h.sessions.Create(c.Request().Context(), user, &tc.TenantID, h.ttl)
	if err != nil {
		log.Error("Failed to create session", zap.Error(err))
		prometheus.RecordAuthError("session_create_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "session error"})
	}

	prometheus.ActiveSessionsGauge.Inc()
	log.Info("Session issued",
		zap.Uint("user_id", user.ID),
		zap.Uint("tenant_id", tc.TenantID),
		zap.String("source", tc.Source))

	return c.JSON(http.StatusOK, echo.Map{
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt,
		"tenant": map[string]interface{}{
			"id":   tc.TenantID,
			"slug": tc.TenantSlug,
			"name": tc.TenantName,
		},
	})
}
