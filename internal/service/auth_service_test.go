package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/quarter-scheduler/internal/models"
	appErrors "github.com/noah-isme/quarter-scheduler/pkg/errors"
)

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "planner", Audience: "quarter-scheduler"})

	token, err := svc.IssueToken("user-1", models.RoleScheduler, time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleScheduler, claims.Role)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret"})
	other := NewAuthService(nil, AuthConfig{AccessTokenSecret: "other"})

	foreign, err := other.IssueToken("user-1", models.RoleAdmin, time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Status, appErrors.FromError(err).Status)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UserID: "user-1",
		Role:   models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	require.Error(t, err)

	noRole := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{UserID: "user-1"})
	signed, err = noRole.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	require.ErrorContains(t, err, "no role")

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, &models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin})
	signed, err = hs512.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	require.Error(t, err)
}

func TestAuthServiceWrongAudience(t *testing.T) {
	issuer := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Audience: "reporting"})
	verifier := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Audience: "quarter-scheduler"})

	token, err := issuer.IssueToken("user-1", models.RoleAdmin, time.Minute)
	require.NoError(t, err)
	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
}
