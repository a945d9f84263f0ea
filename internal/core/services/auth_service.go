package services

import (
	"context"
	"errors"
	"time"

	"roomhub/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService verifies access credentials presented on the connection
// handshake. Token issuing is owned by the external authentication service;
// GenerateToken exists for tooling and tests that need a signed credential.
type AuthService interface {
	VerifyCredential(ctx context.Context, token string) (domain.UserIdentity, error)
	GenerateToken(userID domain.UserID, username string) (string, error)
}

type Claims struct {
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret      []byte
	accessTokenTTL time.Duration
}

func NewAuthService(jwtSecret string, accessTokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret:      []byte(jwtSecret),
		accessTokenTTL: accessTokenTTL,
	}
}

func (s *authService) VerifyCredential(ctx context.Context, tokenString string) (domain.UserIdentity, error) {
	if tokenString == "" {
		return domain.UserIdentity{}, domain.ErrInvalidCredential
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidCredential
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.UserIdentity{}, domain.ErrExpiredCredential
		}
		return domain.UserIdentity{}, domain.ErrInvalidCredential
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.UserIdentity{}, domain.ErrInvalidCredential
	}

	return domain.UserIdentity{ID: claims.UserID, Username: claims.Username}, nil
}

func (s *authService) GenerateToken(userID domain.UserID, username string) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
