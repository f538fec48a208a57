package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(NewMemoryUserStore(), NewJWTService("test-secret"), NewMemoryRevoker(), 30*24*time.Hour, 12*time.Hour, nil)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	sess, err := svc.Register(ctx, "ada@example.com", "secret1", true)
	require.NoError(t, err)
	require.Equal(t, PersistenceLocal, sess.Persistence)
	require.Equal(t, "ada@example.com", sess.User.Email)

	claims, err := svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, sess.User.ID, claims.UserID)

	login, err := svc.Login(ctx, "ADA@example.com", "secret1", false)
	require.NoError(t, err)
	require.Equal(t, PersistenceSession, login.Persistence)
	require.True(t, login.ExpiresAt.Before(sess.ExpiresAt))
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "not-an-email", "secret1", false)
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Register(ctx, "Ada <ada@example.com>", "secret1", false)
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Register(ctx, "ada@example.com", "12345", false)
	require.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.Register(ctx, "ada@example.com", "secret1", false)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "ada@example.com", "secret2", false)
	require.ErrorIs(t, err, ErrEmailInUse)
}

func TestLoginInvalidCredential(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "ada@example.com", "secret1", false)
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ada@example.com", "wrong-pass", false)
	require.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Login(ctx, "nobody@example.com", "secret1", false)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	sess, err := svc.Register(ctx, "ada@example.com", "secret1", true)
	require.NoError(t, err)

	claims, err := svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, claims))

	_, err = svc.Authenticate(ctx, sess.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestOnChange(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	var events []EventType
	unsubscribe := svc.OnChange(func(ev ChangeEvent) {
		events = append(events, ev.Type)
	})

	sess, err := svc.Register(ctx, "ada@example.com", "secret1", false)
	require.NoError(t, err)
	_, err = svc.Login(ctx, "ada@example.com", "secret1", false)
	require.NoError(t, err)
	claims, err := svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, claims))
	require.Equal(t, []EventType{EventSignedUp, EventSignedIn, EventSignedOut}, events)

	unsubscribe()
	_, err = svc.Login(ctx, "ada@example.com", "secret1", false)
	require.NoError(t, err)
	require.Len(t, events, 3)
}
