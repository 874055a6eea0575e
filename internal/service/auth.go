package service

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rocketscienceinc/tictactoe-live/internal/apperror"
)

var ErrEmptyToken = errors.New("token is empty")

type AuthService interface {
	// Verify checks an access token and returns the user id in its subject.
	Verify(token string) (string, error)
}

type authServiceImpl struct {
	secretKey []byte
}

func NewAuthService(secretKey string) AuthService {
	return &authServiceImpl{
		secretKey: []byte(secretKey),
	}
}

func (that *authServiceImpl) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("%w: %w", apperror.ErrAuth, ErrEmptyToken)
	}

	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (interface{}, error) {
		return that.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperror.ErrAuth, err)
	}

	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", apperror.ErrAuth)
	}

	return claims.Subject, nil
}
