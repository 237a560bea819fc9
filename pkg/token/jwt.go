// Package token provides generation and verification of admin JSON Web Tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager signs and verifies admin tokens.
type JWTManager struct {
	secretKey []byte
	tokenDur  time.Duration
}

// AdminClaims carries the admin identity issued by the login flow. The login
// flow itself lives outside this service; we only consume its tokens.
type AdminClaims struct {
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	Organization string `json:"organization"`
	AdminRole    string `json:"admin_role"`
	jwt.RegisteredClaims
}

// NewJWTManager creates a manager with the given signing secret and token
// lifetime in hours.
func NewJWTManager(secret string, expireHours int) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		tokenDur:  time.Hour * time.Duration(expireHours),
	}
}

// GenerateToken signs a new admin token. Used by tests and operator tooling;
// production tokens come from the login service that shares the secret.
func (m *JWTManager) GenerateToken(email, fullName, organization, role string) (string, error) {
	claims := AdminClaims{
		Email:        email,
		FullName:     fullName,
		Organization: organization,
		AdminRole:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.tokenDur)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secretKey)
}

// VerifyToken parses and validates a token string and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*AdminClaims, error) {
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		&AdminClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secretKey, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := parsed.Claims.(*AdminClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
