package services

import (
	"context"
	"testing"
	"time"

	"roomhub/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyCredential_Valid(t *testing.T) {
	svc := NewAuthService("test-secret", time.Minute)

	token, err := svc.GenerateToken("user-1", "alice")
	require.NoError(t, err)

	identity, err := svc.VerifyCredential(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("user-1"), identity.ID)
	assert.Equal(t, "alice", identity.Username)
}

func TestVerifyCredential_MissingToken(t *testing.T) {
	svc := NewAuthService("test-secret", time.Minute)

	_, err := svc.VerifyCredential(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestVerifyCredential_WrongSecret(t *testing.T) {
	minter := NewAuthService("other-secret", time.Minute)
	svc := NewAuthService("test-secret", time.Minute)

	token, err := minter.GenerateToken("user-1", "alice")
	require.NoError(t, err)

	_, err = svc.VerifyCredential(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestVerifyCredential_Expired(t *testing.T) {
	svc := NewAuthService("test-secret", time.Minute)

	claims := &Claims{
		UserID:   "user-1",
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.VerifyCredential(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrExpiredCredential)
}

func TestVerifyCredential_MissingUserID(t *testing.T) {
	svc := NewAuthService("test-secret", time.Minute)

	claims := &Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.VerifyCredential(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}
