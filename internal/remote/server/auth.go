package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kilupskalvis/dpp/internal/models"
)

const tokenIssuer = "dpp"

// ErrInvalidToken indicates a bearer token failed validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims of a caller token. The subject is the caller
// address in hex.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 caller tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. ttl is used when Issue is given none.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for subject.
func (ti *TokenIssuer) Issue(subject models.Address, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = ti.ttl
	}
	now := ti.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the signature and claims of token and returns the caller.
func (ti *TokenIssuer) Verify(token string) (models.Address, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Address{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return ti.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return models.Address{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return models.Address{}, ErrInvalidToken
	}
	caller, err := models.ParseAddress(claims.Subject)
	if err != nil {
		return models.Address{}, ErrInvalidToken
	}
	return caller, nil
}
