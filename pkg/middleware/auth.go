// Package middleware provides HTTP middleware for the monitor's control
// API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is used for context values
type ContextKey string

const (
	ContextSubject   ContextKey = "subject"
	ContextRole      ContextKey = "role"
	ContextRequestID ContextKey = "requestID"
)

// Claims are the JWT claims the control API accepts. Role gates the
// mutating operations (start, stop, resolve, config updates).
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthConfig holds control API authentication configuration
type AuthConfig struct {
	JWTSecret   []byte
	SkipPaths   []string
	TokenHeader string
	TokenPrefix string
}

// DefaultAuthConfig returns default auth configuration. Health, metrics
// and the alert stream stay open; the stream carries no control surface.
func DefaultAuthConfig(secret []byte) *AuthConfig {
	return &AuthConfig{
		JWTSecret:   secret,
		TokenHeader: "Authorization",
		TokenPrefix: "Bearer ",
		SkipPaths:   []string{"/health", "/metrics", "/ws"},
	}
}

// Auth creates JWT authentication middleware for the control API.
func Auth(config *AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			header := r.Header.Get(config.TokenHeader)
			if header == "" || !strings.HasPrefix(header, config.TokenPrefix) {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(header, config.TokenPrefix)

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return config.JWTSecret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextSubject, claims.Subject)
			ctx = context.WithValue(ctx, ContextRole, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject gets the authenticated subject from context.
func GetSubject(ctx context.Context) string {
	if v, ok := ctx.Value(ContextSubject).(string); ok {
		return v
	}
	return ""
}

// GetRole gets the authenticated role from context.
func GetRole(ctx context.Context) string {
	if v, ok := ctx.Value(ContextRole).(string); ok {
		return v
	}
	return ""
}
