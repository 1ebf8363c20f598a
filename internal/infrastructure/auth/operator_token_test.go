package auth

import (
	"testing"
	"time"

	"github.com/erp/customs/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-chars"

func newTestService(t *testing.T) *OperatorTokenService {
	t.Helper()
	s, err := NewOperatorTokenService(config.AuthConfig{Secret: testSecret, Issuer: "customs-engine", TokenTTL: time.Hour})
	require.NoError(t, err)
	return s
}

func TestNewOperatorTokenService_Disabled(t *testing.T) {
	_, err := NewOperatorTokenService(config.AuthConfig{})
	assert.ErrorIs(t, err, ErrAuthDisabled)
}

func TestOperatorTokenService_IssueAndValidate(t *testing.T) {
	s := newTestService(t)

	token, issued, err := s.Issue(" ops ", 0)
	require.NoError(t, err)
	assert.Equal(t, "ops", issued.Subject)
	assert.NotEmpty(t, issued.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt.Time, 5*time.Second)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, "customs-engine", claims.Issuer)
	assert.Equal(t, issued.ID, claims.ID)
}

func TestOperatorTokenService_Issue_RequiresSubject(t *testing.T) {
	_, _, err := newTestService(t).Issue("  ", time.Minute)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestOperatorTokenService_Validate_Rejects(t *testing.T) {
	s := newTestService(t)
	valid, _, err := s.Issue("ops", time.Minute)
	require.NoError(t, err)

	other, err := NewOperatorTokenService(config.AuthConfig{Secret: "another-secret-key-at-least-32-chars", Issuer: "customs-engine"})
	require.NoError(t, err)
	foreign, _, err := other.Issue("ops", time.Minute)
	require.NoError(t, err)

	wrongIssuer, err := NewOperatorTokenService(config.AuthConfig{Secret: testSecret, Issuer: "someone-else"})
	require.NoError(t, err)
	misissued, _, err := wrongIssuer.Issue("ops", time.Minute)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "ops",
		Issuer:    "customs-engine",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "ops",
		Issuer:  "customs-engine",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"tampered", valid + "x", ErrInvalidToken},
		{"other secret", foreign, ErrInvalidToken},
		{"other issuer", misissued, ErrInvalidToken},
		{"alg none", unsigned, ErrInvalidToken},
		{"no expiry", noExpiry, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Validate(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOperatorTokenService_Validate_Lifetime(t *testing.T) {
	s := newTestService(t)
	token, _, err := s.Issue("ops", time.Minute)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = s.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	s.now = func() time.Time { return time.Now().Add(-time.Minute) }
	_, err = s.Validate(token)
	assert.ErrorIs(t, err, ErrTokenNotYetValid)
}
