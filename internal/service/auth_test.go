package service

import (
	"context"
	"testing"

	"github.com/plantops/equipment-health/internal/config"
	"github.com/plantops/equipment-health/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(t *testing.T) *AuthService {
	t.Helper()
	svc, err := NewAuthService(context.Background(), db.NewMemory(), config.AuthConfig{
		JWTSecret:    "test-secret",
		JWTAccessTTL: "1h",
	})
	require.NoError(t, err)
	return svc
}

func TestNewAuthServiceRequiresSecret(t *testing.T) {
	_, err := NewAuthService(context.Background(), db.NewMemory(), config.AuthConfig{JWTAccessTTL: "1h"})
	assert.ErrorIs(t, err, ErrMisconfigured)

	_, err = NewAuthService(context.Background(), db.NewMemory(), config.AuthConfig{JWTSecret: "s", JWTAccessTTL: "soon"})
	assert.ErrorIs(t, err, ErrMisconfigured)
}

func TestLoginIssuesParsableToken(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(t)
	require.NoError(t, auth.EnsureAdmin(ctx, "planner", "maintenance1"))
	// 두 번째 호출은 기존 계정 유지
	require.NoError(t, auth.EnsureAdmin(ctx, "planner", "ignored-password"))

	token, expiresIn, err := auth.Login(ctx, "planner", "maintenance1")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), expiresIn)

	user, err := auth.ParseAccessToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "planner", user.LoginID)
	assert.Equal(t, int64(1), user.ID)
}

func TestLoginRejects(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(t)
	require.NoError(t, auth.EnsureAdmin(ctx, "planner", "maintenance1"))

	_, _, err := auth.Login(ctx, "planner", "wrong-password")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, _, err = auth.Login(ctx, "nobody", "maintenance1")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, _, err = auth.Login(ctx, "pl", "maintenance1")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = auth.ParseAccessToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
