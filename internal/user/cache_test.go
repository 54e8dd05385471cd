package user

import (
	"context"
	"testing"
	"time"

	"directchat/internal/testutil"
	"directchat/internal/token"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type countingStore struct {
	Store
	byUsername int
	byPublicID int
}

func (c *countingStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	c.byUsername++
	return c.Store.FindByUsername(ctx, username)
}

func (c *countingStore) FindByPublicID(ctx context.Context, publicID string) (*User, error) {
	c.byPublicID++
	return c.Store.FindByPublicID(ctx, publicID)
}

func bootstrapCache(t *testing.T) (*Cache, *countingStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backing := &countingStore{Store: NewRepository(testutil.NewDatabase(t))}
	return NewCache(backing, client, time.Minute, zaptest.NewLogger(t).Sugar()), backing, mr
}

const cachedHash = "$2a$10$cachedhashcachedhashcachedhashcachedhashcachedhash"

func TestCacheReadThrough(t *testing.T) {
	c, backing, mr := bootstrapCache(t)
	ctx := context.Background()

	created, err := c.Create(ctx, "alice", "a@x.com", cachedHash)
	require.NoError(t, err)

	u, err := c.FindByPublicID(ctx, created.PublicID)
	require.NoError(t, err)
	require.Equal(t, created.ID, u.ID)
	require.Equal(t, 1, backing.byPublicID)
	require.True(t, mr.Exists("user:public_id:"+created.PublicID))

	u, err = c.FindByPublicID(ctx, created.PublicID)
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	require.Equal(t, "a@x.com", u.Email)
	require.Equal(t, 1, backing.byPublicID)
}

func TestCacheNeverStoresPasswordHash(t *testing.T) {
	c, backing, mr := bootstrapCache(t)
	ctx := context.Background()

	created, err := c.Create(ctx, "alice", "a@x.com", cachedHash)
	require.NoError(t, err)

	_, err = c.FindByPublicID(ctx, created.PublicID)
	require.NoError(t, err)

	raw, err := mr.Get("user:public_id:" + created.PublicID)
	require.NoError(t, err)
	require.NotContains(t, raw, cachedHash)
	require.NotContains(t, raw, "password")

	// username lookups go to the store and keep the hash for password checks
	u, err := c.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, cachedHash, u.passwordHash)
	require.Equal(t, 1, backing.byUsername)
	require.False(t, mr.Exists("user:username:alice"))
}

func TestCacheSigninStillVerifiesPassword(t *testing.T) {
	c, _, _ := bootstrapCache(t)
	s := NewService(c, token.NewService("test-secret"), zaptest.NewLogger(t).Sugar(), WithBcryptCost(bcrypt.MinCost))
	ctx := context.Background()

	u, err := s.Signup(ctx, &SignupRequest{Username: "alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	tok, _, err := s.Signin(ctx, &SigninRequest{Username: "alice", Password: "pw1"})
	require.NoError(t, err)

	// warm the public-id entry, then sign in again
	authed, err := s.Authenticate(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, u.PublicID, authed.PublicID)

	_, _, err = s.Signin(ctx, &SigninRequest{Username: "alice", Password: "pw1"})
	require.NoError(t, err)
	_, _, err = s.Signin(ctx, &SigninRequest{Username: "alice", Password: "wrong"})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestCacheMissesAreNotCached(t *testing.T) {
	c, backing, _ := bootstrapCache(t)
	ctx := context.Background()

	_, err := c.FindByPublicID(ctx, "not-yet")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = c.FindByPublicID(ctx, "not-yet")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 2, backing.byPublicID)
}

func TestCacheExpiry(t *testing.T) {
	c, backing, mr := bootstrapCache(t)
	ctx := context.Background()

	created, err := c.Create(ctx, "alice", "a@x.com", cachedHash)
	require.NoError(t, err)

	_, err = c.FindByPublicID(ctx, created.PublicID)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = c.FindByPublicID(ctx, created.PublicID)
	require.NoError(t, err)
	require.Equal(t, 2, backing.byPublicID)
}

func TestCacheFallsBackWhenRedisIsDown(t *testing.T) {
	c, backing, mr := bootstrapCache(t)
	ctx := context.Background()

	created, err := c.Create(ctx, "alice", "a@x.com", cachedHash)
	require.NoError(t, err)

	mr.Close()

	u, err := c.FindByPublicID(ctx, created.PublicID)
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	require.Equal(t, 1, backing.byPublicID)
}
