package otpstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// compare-and-delete: only a matching code is removed
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps codes as string keys with a native TTL.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client}
}

func key(email, purpose string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, email)
}

func (s *RedisStore) Save(ctx context.Context, email, purpose, code string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, email, purpose)
	}
	return s.redis.Set(ctx, key(email, purpose), code, ttl).Err()
}

// Consume relies on key expiry, so now is not consulted.
func (s *RedisStore) Consume(ctx context.Context, email, purpose, code string, _ time.Time) (bool, error) {
	deleted, err := consumeScript.Run(ctx, s.redis, []string{key(email, purpose)}, code).Int()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}

func (s *RedisStore) Check(ctx context.Context, email, purpose, code string, _ time.Time) (bool, error) {
	stored, err := s.redis.Get(ctx, key(email, purpose)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored == code, nil
}

func (s *RedisStore) Delete(ctx context.Context, email, purpose string) error {
	return s.redis.Del(ctx, key(email, purpose)).Err()
}

func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
