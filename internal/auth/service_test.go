package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/atlas-promo/atlas-promo/internal/shared"
)

type memoryUserRepo struct {
	users map[string]*User
}

func (r *memoryUserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, ok := r.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func newTestAuthService(t *testing.T) (*Service, *memoryUserRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &memoryUserRepo{users: map[string]*User{
		"demo@atlas.local": {ID: 7, Email: "demo@atlas.local", Name: "Demo", PasswordHash: string(hash)},
	}}
	return NewService(repo, client, time.Hour), repo
}

func TestLoginAndResolve(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuthService(t)

	token, err := svc.Login(ctx, "demo@atlas.local", "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := svc.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(7), identity.UserID)
	require.Equal(t, "demo@atlas.local", identity.Email)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuthService(t)

	_, err := svc.Login(ctx, "demo@atlas.local", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "ghost@atlas.local", "s3cret")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuthService(t)

	token, err := svc.Login(ctx, "demo@atlas.local", "s3cret")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))

	_, err = svc.Resolve(ctx, token)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestResolveEmptyToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuthService(t)

	_, err := svc.Resolve(ctx, "")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}
