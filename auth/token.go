package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var (
	ErrMissingSigningKey = errors.New("token signing key is not configured")
	ErrInvalidToken      = errors.New("invalid token")
)

// Claims is the payload of an account token. Created is in unix milliseconds.
type Claims struct {
	ID      ID     `json:"id"`
	Email   string `json:"email"`
	Created int64  `json:"created"`
	jwt.StandardClaims
}

// TokenIssuer signs and verifies HS256 account tokens with a key fixed at
// construction. Tokens carry no expiry.
type TokenIssuer struct {
	key []byte
}

func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrMissingSigningKey
	}
	return &TokenIssuer{key: []byte(secret)}, nil
}

func (i *TokenIssuer) Issue(id ID, email string, created time.Time) (string, error) {
	claims := Claims{
		ID:      id,
		Email:   email,
		Created: created.UnixMilli(),
		StandardClaims: jwt.StandardClaims{
			Issuer:   "auth",
			Subject:  string(id),
			IssuedAt: created.Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.key)
}

func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.key, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
