package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_GenerateAndValidate(t *testing.T) {
	tm := NewTokenManager([]byte("secret"), "versionedkv", time.Hour)
	authr := NewJWTAuthenticator([]byte("secret"), "versionedkv")

	token, err := tm.GenerateJWT("alice", []string{"main:write"})
	require.NoError(t, err)

	claims, err := authr.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []string{"main:write"}, claims.Permissions)
}

func TestJWTAuthenticator_ValidateToken_WrongSecretFails(t *testing.T) {
	tm := NewTokenManager([]byte("secret"), "versionedkv", time.Hour)
	authr := NewJWTAuthenticator([]byte("other-secret"), "versionedkv")

	token, err := tm.GenerateJWT("alice", []string{"*"})
	require.NoError(t, err)

	_, err = authr.ValidateToken(context.Background(), token)
	assert.Error(t, err)
}

func TestJWTAuthenticator_Authorize(t *testing.T) {
	authr := NewJWTAuthenticator([]byte("secret"), "versionedkv")
	claims := &Claims{Subject: "alice", Permissions: []string{"main:write"}}

	assert.NoError(t, authr.Authorize(context.Background(), claims, "main", "write"))
	assert.Error(t, authr.Authorize(context.Background(), claims, "dev", "write"))
}

func TestJWTAuthenticator_Authorize_Wildcard(t *testing.T) {
	authr := NewJWTAuthenticator([]byte("secret"), "versionedkv")
	claims := &Claims{Subject: "admin", Permissions: []string{"*"}}

	assert.NoError(t, authr.Authorize(context.Background(), claims, "anything", "prune"))
}

func TestMiddleware_ExtractAndValidateToken_StripsBearerPrefix(t *testing.T) {
	tm := NewTokenManager([]byte("secret"), "versionedkv", time.Hour)
	authr := NewJWTAuthenticator([]byte("secret"), "versionedkv")
	mw := NewMiddleware(authr)

	token, err := tm.GenerateJWT("alice", []string{"*"})
	require.NoError(t, err)

	claims, err := mw.ExtractAndValidateToken(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
}

func TestMiddleware_ExtractAndValidateToken_MissingToken(t *testing.T) {
	authr := NewJWTAuthenticator([]byte("secret"), "versionedkv")
	mw := NewMiddleware(authr)

	_, err := mw.ExtractAndValidateToken(context.Background(), "")
	assert.Error(t, err)
}
