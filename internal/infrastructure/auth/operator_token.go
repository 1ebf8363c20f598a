// Package auth issues and validates the operator tokens that guard
// state-changing admin routes.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/customs/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Operator token errors
var (
	ErrAuthDisabled     = errors.New("operator tokens are not configured")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingSubject   = errors.New("token has no subject")
)

// OperatorClaims are the claims carried by an operator token
type OperatorClaims struct {
	jwt.RegisteredClaims
}

// OperatorTokenService signs and validates HS256 operator tokens
type OperatorTokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewOperatorTokenService creates the service from the auth config section.
// It returns ErrAuthDisabled when no secret is configured.
func NewOperatorTokenService(cfg config.AuthConfig) (*OperatorTokenService, error) {
	if cfg.Secret == "" {
		return nil, ErrAuthDisabled
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &OperatorTokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token for subject. A zero ttl uses the configured default.
func (s *OperatorTokenService) Issue(subject string, ttl time.Duration) (string, *OperatorClaims, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", nil, ErrMissingSubject
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()
	claims := &OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign operator token: %w", err)
	}
	return signed, claims, nil
}

// Validate parses a token and checks its signature, issuer and lifetime
func (s *OperatorTokenService) Validate(tokenString string) (*OperatorClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &OperatorClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return nil, ErrTokenNotYetValid
	case err != nil:
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
