package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rl1809/bloodbank/internal/core/domain"
)

type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	IsStaff   bool      `json:"is_staff"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (t *TokenIssuer) Issue(caller domain.Caller, typ TokenType) (string, error) {
	ttl := t.accessTTL
	if typ == RefreshToken {
		ttl = t.refreshTTL
	}

	now := t.now()
	c := claims{
		UserID:    caller.UserID,
		Username:  caller.Username,
		IsStaff:   caller.IsStaff,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(caller.UserID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
}

// Parse verifies the signature, expiry and token type.
func (t *TokenIssuer) Parse(token string, want TokenType) (domain.Caller, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return domain.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.TokenType != want {
		return domain.Caller{}, fmt.Errorf("%w: expected %s token", ErrInvalidToken, want)
	}
	return domain.Caller{UserID: c.UserID, Username: c.Username, IsStaff: c.IsStaff}, nil
}
