package user

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is a Redis read-through cache for public-id lookups, the path every
// authenticated request takes. Entries never carry the password hash, so username
// lookups (which Signin needs the hash from) always go to the Store. Users never
// change after creation, so entries only expire; misses are not cached because the
// user may sign up later.
type Cache struct {
	Store
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

type cachedUser struct {
	ID        int64     `json:"id"`
	PublicID  string    `json:"public_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func NewCache(store Store, redisClient *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *Cache {
	return &Cache{
		Store:  store,
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// FindByPublicID serves from Redis when it can. The returned user cannot verify a
// password.
func (c *Cache) FindByPublicID(ctx context.Context, publicID string) (*User, error) {
	key := "user:public_id:" + publicID

	raw, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cu cachedUser
		if err := json.Unmarshal(raw, &cu); err == nil {
			return cu.user(), nil
		}
		c.logger.Warnf("Dropping undecodable cache entry %s", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warnf("Redis get %s: %v", key, err)
	}

	u, err := c.Store.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}

	c.fill(ctx, key, u)
	return u, nil
}

func (c *Cache) fill(ctx context.Context, key string, u *User) {
	raw, err := json.Marshal(cachedUser{
		ID:        u.ID,
		PublicID:  u.PublicID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	})
	if err != nil {
		c.logger.Warnf("Encoding cache entry for %s: %v", u.Username, err)
		return
	}

	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warnf("Redis set for %s: %v", u.Username, err)
	}
}

func (cu cachedUser) user() *User {
	return &User{
		ID:        cu.ID,
		PublicID:  cu.PublicID,
		Username:  cu.Username,
		Email:     cu.Email,
		CreatedAt: cu.CreatedAt,
	}
}
