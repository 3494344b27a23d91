// Package session resolves opaque auth tokens to user identities via the
// external session store. Token issuance and expiry are owned by that store;
// this package only performs the token → user id lookup.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// keyPrefix is the session store key prefix: auth_<token> → user id.
const keyPrefix = "auth_"

// ErrNoSession is returned when a token is unknown or expired.
var ErrNoSession = errors.New("no session for token")

// Resolver resolves an auth token to a user id.
type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// RedisStore is a Redis-backed session resolver.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Resolve looks up the user id stored under auth_<token>.
func (s *RedisStore) Resolve(ctx context.Context, token string) (string, error) {
	userID, err := s.client.Get(ctx, keyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("session lookup: %w", err)
	}
	return userID, nil
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
