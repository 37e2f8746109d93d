// Package auth provides bearer-token authentication for the HTTP and
// gRPC front doors (internal/api/http, internal/api/grpc), grounded on
// internal/auth/authenticator.go + token.go but dropping the teacher's
// multi-tenant/API-key surface: this engine has no tenant concept, so
// Claims carries a Subject plus branch-scoped Permissions instead of a
// TenantID, and the unimplemented ValidateAPIKey path is gone entirely.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator validates bearer tokens and authorizes operations
// against a branch-scoped permission string.
type Authenticator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
	Authorize(ctx context.Context, claims *Claims, branch, action string) error
}

// Claims represents the JWT token claims issued for a subject (a human
// operator or a service account) with a set of "branch:action"
// permission strings, or "*" for unrestricted access.
type Claims struct {
	Subject     string   `json:"sub"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// JWTAuthenticator implements Authenticator using HMAC-signed JWTs.
type JWTAuthenticator struct {
	secretKey []byte
	issuer    string
}

// NewJWTAuthenticator creates a new JWT-based authenticator.
func NewJWTAuthenticator(secretKey []byte, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{
		secretKey: secretKey,
		issuer:    issuer,
	}
}

// ValidateToken parses and validates a JWT, checking signing method,
// issuer, and expiry.
func (ja *JWTAuthenticator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ja.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	if claims.Issuer != ja.issuer {
		return nil, fmt.Errorf("invalid issuer")
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, fmt.Errorf("token expired")
	}

	return claims, nil
}

// Authorize checks claims for a "branch:action" permission, or the
// wildcard "*".
func (ja *JWTAuthenticator) Authorize(ctx context.Context, claims *Claims, branch, action string) error {
	required := fmt.Sprintf("%s:%s", branch, action)
	for _, permission := range claims.Permissions {
		if permission == required || permission == "*" {
			return nil
		}
	}
	return fmt.Errorf("insufficient permissions for %s on branch %s", action, branch)
}

// Middleware provides the shared token-extraction step both the gin and
// gRPC front doors run before calling Authorize.
type Middleware struct {
	authenticator Authenticator
}

// NewMiddleware creates an authentication middleware wrapping authenticator.
func NewMiddleware(authenticator Authenticator) *Middleware {
	return &Middleware{authenticator: authenticator}
}

// ExtractAndValidateToken strips an optional "Bearer " prefix and
// validates the remaining token.
func (m *Middleware) ExtractAndValidateToken(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("missing authentication token")
	}
	if len(token) > 7 && token[:7] == "Bearer " {
		token = token[7:]
	}
	return m.authenticator.ValidateToken(ctx, token)
}

// Authenticator exposes the wrapped Authenticator, for callers (the
// gRPC interceptor) that need direct access to Authorize.
func (m *Middleware) Authenticator() Authenticator {
	return m.authenticator
}
