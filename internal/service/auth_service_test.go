package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
)

func newTestAuthService(t *testing.T, clock Clock, password string) *AuthService {
	t.Helper()
	hash := ""
	if password != "" {
		raw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		hash = string(raw)
	}
	return NewAuthService(validator.New(), zap.NewNop(), clock, AuthConfig{
		PasswordHash:      hash,
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "attendance-ledger",
	})
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	clock := newFixedClock(time.Now().UTC().Truncate(time.Second))
	svc := newTestAuthService(t, clock, "password123")

	resp, err := svc.Login(context.Background(), models.LoginRequest{Password: "password123", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, clock.Now(), resp.IssuedAt)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RolePresenter, claims.Role)
	assert.Equal(t, "attendance-ledger", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestAuthServiceLoginRejections(t *testing.T) {
	svc := newTestAuthService(t, nil, "password123")

	_, err := svc.Login(context.Background(), models.LoginRequest{Password: "wrong"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), models.LoginRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	disabled := newTestAuthService(t, nil, "")
	_, err = disabled.Login(context.Background(), models.LoginRequest{Password: "anything"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestAuthServiceValidateTokenExpiry(t *testing.T) {
	clock := newFixedClock(time.Now().UTC().Truncate(time.Second))
	svc := newTestAuthService(t, clock, "password123")

	resp, err := svc.Login(context.Background(), models.LoginRequest{Password: "password123"})
	require.NoError(t, err)

	clock.Set(clock.Now().Add(2 * time.Hour))
	_, err = svc.ValidateToken(resp.AccessToken)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
