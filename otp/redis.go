package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "otp:"

// incrIfExists keeps HINCRBY from resurrecting an expired key without a TTL.
var incrIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

// RedisStore keeps entries as hashes that expire with the code.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore parses the URL and pings the server.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("otp: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &RedisStore{client: client}, nil
}

func key(email string) string {
	return keyPrefix + normalizeEmail(email)
}

func (s *RedisStore) Put(ctx context.Context, email string, e Entry) error {
	k := key(email)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			"hash", e.CodeHash,
			"expiresAt", e.ExpiresAt.UnixMilli(),
			"attempts", e.Attempts,
		)
		pipe.PExpireAt(ctx, k, e.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("otp: put: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, email string) (Entry, error) {
	fields, err := s.client.HGetAll(ctx, key(email)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("otp: get: %w", err)
	}
	if len(fields) == 0 {
		return Entry{}, ErrNotFound
	}

	expiresAt, err := strconv.ParseInt(fields["expiresAt"], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("otp: corrupt expiresAt: %w", err)
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return Entry{}, fmt.Errorf("otp: corrupt attempts: %w", err)
	}
	e := Entry{
		CodeHash:  fields["hash"],
		ExpiresAt: time.UnixMilli(expiresAt),
		Attempts:  attempts,
	}
	if !time.Now().Before(e.ExpiresAt) {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *RedisStore) IncrementAttempts(ctx context.Context, email string) (int, error) {
	n, err := incrIfExists.Run(ctx, s.client, []string{key(email)}).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("otp: increment: %w", err)
	}
	if n < 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

func (s *RedisStore) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, key(email)).Err(); err != nil {
		return fmt.Errorf("otp: delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
