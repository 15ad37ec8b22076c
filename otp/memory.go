package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process. A janitor goroutine evicts expired
// entries until Close.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemoryStore starts the janitor when interval > 0.
func NewMemoryStore(interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]Entry),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if interval > 0 {
		go s.janitor(interval)
	} else {
		close(s.done)
	}
	return s
}

func (s *MemoryStore) janitor(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for email, e := range s.entries {
		if !now.Before(e.ExpiresAt) {
			delete(s.entries, email)
		}
	}
}

func (s *MemoryStore) Put(_ context.Context, email string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[normalizeEmail(email)] = e
	return nil
}

func (s *MemoryStore) Get(_ context.Context, email string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[normalizeEmail(email)]
	if !ok || !s.now().Before(e.ExpiresAt) {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) IncrementAttempts(_ context.Context, email string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = normalizeEmail(email)
	e, ok := s.entries[email]
	if !ok {
		return 0, ErrNotFound
	}
	e.Attempts++
	s.entries[email] = e
	return e.Attempts, nil
}

func (s *MemoryStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, normalizeEmail(email))
	return nil
}

// Len reports the number of entries, expired ones included until evicted.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the janitor and waits for it.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
