// Package jwtutil validates the ID-token assertion the external identity
// provider posts to the SSO callback. First-party authentication uses opaque
// sessions, not JWTs; this is only the inbound trust boundary.
package jwtutil

import (
	"errors"

	"tenancy-service/pkg/config"

	"github.com/golang-jwt/jwt/v4"
)

var signingKey = []byte("idpsharedsecret")

// Initialize sets the IdP signing key from configuration
func Initialize(cfg *config.IdPConfig) {
	if cfg.SigningKey != "" {
		signingKey = []byte(cfg.SigningKey)
	}
}

// IdPClaims are the claims this service consumes from an IdP assertion.
// TenantID carries the identity provider's tenant identifier ("tid"), the
// highest-trust tenant resolution signal.
type IdPClaims struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	TenantID string `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// ValidateAssertion validates and parses an IdP ID token
func ValidateAssertion(tokenString string) (*IdPClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdPClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return signingKey, nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*IdPClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.Email == "" {
		return nil, errors.New("assertion missing email claim")
	}
	return claims, nil
}
