package otp

import (
	"context"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	digits := regexp.MustCompile(`^\d{6}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, digits, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestHashCode(t *testing.T) {
	h := HashCode("Ana@Example.com ", "123456")
	assert.Equal(t, h, HashCode("ana@example.com", " 123456"))
	assert.NotEqual(t, h, HashCode("bob@example.com", "123456"))
	assert.NotContains(t, h, "123456")

	e := Entry{CodeHash: h}
	assert.True(t, e.Matches("ana@example.com", "123456"))
	assert.False(t, e.Matches("ana@example.com", "654321"))
}

// runStoreConformance exercises the Store contract shared by every backend.
func runStoreConformance(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("put get delete", func(t *testing.T) {
		s := newStore(t)
		e := NewEntry("a@example.com", "111111", time.Now())

		require.NoError(t, s.Put(ctx, "A@example.com", e))
		got, err := s.Get(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, e.CodeHash, got.CodeHash)
		assert.Equal(t, 0, got.Attempts)
		assert.WithinDuration(t, e.ExpiresAt, got.ExpiresAt, time.Millisecond)

		require.NoError(t, s.Delete(ctx, "a@example.com"))
		_, err = s.Get(ctx, "a@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("increment attempts", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "b@example.com", NewEntry("b@example.com", "222222", time.Now())))

		n, err := s.IncrementAttempts(ctx, "b@example.com")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = s.IncrementAttempts(ctx, "b@example.com")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = s.IncrementAttempts(ctx, "missing@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put replaces pending entry", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "c@example.com", NewEntry("c@example.com", "333333", time.Now())))
		_, err := s.IncrementAttempts(ctx, "c@example.com")
		require.NoError(t, err)

		require.NoError(t, s.Put(ctx, "c@example.com", NewEntry("c@example.com", "444444", time.Now())))
		got, err := s.Get(ctx, "c@example.com")
		require.NoError(t, err)
		assert.Equal(t, 0, got.Attempts)
		assert.True(t, got.Matches("c@example.com", "444444"))
	})

	t.Run("expired entry is not found", func(t *testing.T) {
		s := newStore(t)
		e := Entry{CodeHash: "x", ExpiresAt: time.Now().Add(-time.Second)}
		_ = s.Put(ctx, "d@example.com", e)

		_, err := s.Get(ctx, "d@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("issue and consume", func(t *testing.T) {
		s := newStore(t)
		code, err := Issue(ctx, s, "e@example.com", time.Now())
		require.NoError(t, err)

		require.NoError(t, Check(ctx, s, "e@example.com", code, time.Now()))
		require.NoError(t, Consume(ctx, s, "E@example.com", code, time.Now()))
		assert.ErrorIs(t, Check(ctx, s, "e@example.com", code, time.Now()), ErrNotFound)
	})

	t.Run("attempt limit", func(t *testing.T) {
		s := newStore(t)
		code, err := Issue(ctx, s, "f@example.com", time.Now())
		require.NoError(t, err)
		wrong := "000000"
		if code == wrong {
			wrong = "000001"
		}

		for i := 1; i < MaxAttempts; i++ {
			assert.ErrorIs(t, Check(ctx, s, "f@example.com", wrong, time.Now()), ErrMismatch, "attempt %d", i)
		}
		assert.ErrorIs(t, Check(ctx, s, "f@example.com", wrong, time.Now()), ErrTooManyAttempts)
		assert.ErrorIs(t, Check(ctx, s, "f@example.com", code, time.Now()), ErrNotFound, "entry discarded")
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreConformance(t, func(t *testing.T) Store {
		s := NewMemoryStore(0)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStoreJanitor(t *testing.T) {
	s := NewMemoryStore(10 * time.Millisecond)
	defer s.Close()

	require.NoError(t, s.Put(context.Background(), "x@example.com", Entry{ExpiresAt: time.Now().Add(20 * time.Millisecond)}))
	require.NoError(t, s.Put(context.Background(), "y@example.com", Entry{ExpiresAt: time.Now().Add(time.Hour)}))

	assert.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestMemoryStoreCloseIdempotent(t *testing.T) {
	s := NewMemoryStore(time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestCheckExpiredByClock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	issued := time.Now()

	code, err := Issue(ctx, s, "g@example.com", issued)
	require.NoError(t, err)

	assert.NoError(t, Check(ctx, s, "g@example.com", code, issued.Add(TTL-time.Second)))
	assert.ErrorIs(t, Check(ctx, s, "g@example.com", code, issued.Add(TTL)), ErrExpired)
}

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping Redis tests")
	}

	runStoreConformance(t, func(t *testing.T) Store {
		s, err := NewRedisStore(context.Background(), redisURL)
		require.NoError(t, err)
		for _, email := range []string{"a", "b", "c", "d", "e", "f"} {
			_ = s.Delete(context.Background(), email+"@example.com")
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
