package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
	"github.com/example/coolpis/internal/utils"
)

func newTestSessions(t *testing.T) *SessionService {
	t.Helper()
	adminHash, err := utils.HashSecret("admin-pass")
	require.NoError(t, err)
	driverHash, err := utils.HashSecret("1234")
	require.NoError(t, err)

	return NewSessionService(SessionConfig{
		Secret:            "test-secret",
		TTL:               time.Hour,
		AdminEmail:        "ops@example.com",
		AdminPasswordHash: adminHash,
		DriverCodeHash:    driverHash,
	}, nil, zap.NewNop())
}

func TestSessionService_StartAndResume(t *testing.T) {
	ctx := context.Background()
	s := newTestSessions(t)

	first, err := s.Start(ctx, "")
	require.NoError(t, err)
	assert.True(t, first.Identity.Anonymous)
	assert.Equal(t, RoleCustomer, first.Identity.Role)

	resumed, err := s.Start(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.Identity.UID, resumed.Identity.UID)

	fresh, err := s.Start(ctx, "garbage")
	require.NoError(t, err)
	assert.NotEqual(t, first.Identity.UID, fresh.Identity.UID)
}

func TestSessionService_LogoutRevokes(t *testing.T) {
	ctx := context.Background()
	s := newTestSessions(t)

	sess, err := s.Start(ctx, "")
	require.NoError(t, err)

	next, err := s.Logout(ctx, sess.Token)
	require.NoError(t, err)
	assert.NotEqual(t, sess.Identity.UID, next.Identity.UID)

	_, err = s.Authenticate(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	id, err := s.Authenticate(ctx, next.Token)
	require.NoError(t, err)
	assert.Equal(t, next.Identity.UID, id.UID)
}

func TestSessionService_Logins(t *testing.T) {
	ctx := context.Background()
	s := newTestSessions(t)

	admin, err := s.AdminLogin(ctx, " OPS@example.com", "admin-pass")
	require.NoError(t, err)
	assert.True(t, admin.Identity.IsAdmin())
	assert.False(t, admin.Identity.Anonymous)

	_, err = s.AdminLogin(ctx, "ops@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidLogin)
	code, _ := apperr.Classify(err)
	assert.Equal(t, apperr.CodeAuthInvalidLogin, code)

	driver, err := s.DriverLogin(ctx, "1234")
	require.NoError(t, err)
	assert.True(t, driver.Identity.CanDrive())
	assert.False(t, driver.Identity.IsAdmin())

	_, err = s.DriverLogin(ctx, "0000")
	assert.ErrorIs(t, err, ErrInvalidLogin)
}

func TestMemoryRevoker_Expires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	r := NewMemoryRevoker()
	r.now = func() time.Time { return now }

	require.NoError(t, r.Revoke(ctx, "jti", time.Minute))
	revoked, err := r.IsRevoked(ctx, "jti")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = r.IsRevoked(ctx, "jti")
	require.NoError(t, err)
	assert.False(t, revoked)
}
