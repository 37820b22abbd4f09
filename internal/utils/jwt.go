package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the payload of a session token.
type SessionClaims struct {
	UID       string `json:"uid"`
	Role      string `json:"role"`
	Anonymous bool   `json:"anonymous"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for the given identity and returns it with its claims.
func GenerateToken(secret, uid, role string, anonymous bool, ttl time.Duration) (string, *SessionClaims, error) {
	now := time.Now()
	claims := &SessionClaims{
		UID:       uid,
		Role:      role,
		Anonymous: anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseToken validates the token and returns its claims.
func ParseToken(secret, tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid && claims.UID != "" {
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}
