package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/pkg/config"
	appErrors "github.com/noah-isme/sma-perpus-api/pkg/errors"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour}, zap.NewNop())

	school := "school-1"
	user := &models.User{ID: "lib-1", Email: "lib@example.com", Role: models.RoleLibrarian, SchoolID: &school}
	token, err := svc.GenerateToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "lib-1", claims.UserID)
	assert.Equal(t, models.RoleLibrarian, claims.Role)
	require.NotNil(t, claims.SchoolID)
	assert.Equal(t, "school-1", *claims.SchoolID)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewAuthService(config.JWTConfig{Secret: "secret-a", Expiration: time.Hour}, zap.NewNop())
	verifier := NewAuthService(config.JWTConfig{Secret: "secret-b", Expiration: time.Hour}, zap.NewNop())

	token, err := issuer.GenerateToken(&models.User{ID: "u-1", Role: models.RoleStudent})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateExpiredToken(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: "test-secret", Expiration: -time.Minute}, zap.NewNop())

	token, err := svc.GenerateToken(&models.User{ID: "u-1", Role: models.RoleStudent})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateGarbageToken(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour}, zap.NewNop())

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
