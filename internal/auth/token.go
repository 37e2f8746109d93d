package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenManager issues and refreshes JWTs for the HTTP/gRPC front doors.
// APIKeyManager from the teacher's version is dropped entirely: this
// engine authenticates operators and service accounts via JWT only,
// there is no tenant-scoped API key concept to validate against.
type TokenManager struct {
	secretKey  []byte
	issuer     string
	defaultTTL time.Duration
}

// NewTokenManager creates a new token manager.
func NewTokenManager(secretKey []byte, issuer string, defaultTTL time.Duration) *TokenManager {
	return &TokenManager{
		secretKey:  secretKey,
		issuer:     issuer,
		defaultTTL: defaultTTL,
	}
}

// GenerateJWT creates a signed token for subject with the given
// branch-scoped permissions (e.g. "main:write", "*:read", "*").
func (tm *TokenManager) GenerateJWT(subject string, permissions []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Subject:     subject,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tm.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.defaultTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// RefreshToken reissues a token from existing valid claims with fresh
// timestamps, keeping the same subject and permissions.
func (tm *TokenManager) RefreshToken(existingClaims *Claims) (string, error) {
	return tm.GenerateJWT(existingClaims.Subject, existingClaims.Permissions)
}
