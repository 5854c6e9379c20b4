package csrf

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a StateStore backed by a shared Redis instance, for
// deployments running more than one stateless server behind a load balancer:
// the callback may land on a different instance than the one that issued the
// state. Expiry is enforced by the key TTL; GETDEL makes Consume atomic.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a RedisStore using the given client and state TTL
// (DefaultTTL if ttl <= 0).
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "csrf:",
		ttl:    ttl,
	}
}

// Issue generates a state token and records it with the TTL.
func (s *RedisStore) Issue(ctx context.Context) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.prefix+token, "1", s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Consume atomically reads and deletes the token. Only one caller observes the
// value; an expired or unknown token fails ErrCSRFMismatch.
func (s *RedisStore) Consume(ctx context.Context, token string) error {
	err := s.client.GetDel(ctx, s.prefix+token).Err()
	if errors.Is(err, redis.Nil) {
		return ErrCSRFMismatch
	}
	return err
}
