// Package otp holds one-time password reset codes.
//
// Codes are never stored in clear: a store keeps a SHA-256 digest bound to the
// email address, the expiry and the number of failed attempts.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	CodeLength  = 6
	TTL         = 10 * time.Minute
	MaxAttempts = 5
)

var (
	ErrNotFound         = errors.New("otp: no pending code")
	ErrExpired          = errors.New("otp: code expired")
	ErrMismatch         = errors.New("otp: code does not match")
	ErrTooManyAttempts  = errors.New("otp: too many attempts")
	ErrStoreUnavailable = errors.New("otp: store unavailable")
)

// Entry is the stored state of one pending code.
type Entry struct {
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
}

// Store keeps at most one Entry per email. Get returns ErrNotFound for a
// missing or expired entry.
type Store interface {
	Put(ctx context.Context, email string, e Entry) error
	Get(ctx context.Context, email string) (Entry, error)
	// IncrementAttempts returns the new count, or ErrNotFound.
	IncrementAttempts(ctx context.Context, email string) (int, error)
	Delete(ctx context.Context, email string) error
	Close() error
}

// GenerateCode returns a uniformly random zero-padded decimal code.
func GenerateCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < CodeLength; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// HashCode digests the code together with the normalized address.
func HashCode(email, code string) string {
	sum := sha256.Sum256([]byte(normalizeEmail(email) + ":" + strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}

// Matches compares in constant time.
func (e Entry) Matches(email, code string) bool {
	return subtle.ConstantTimeCompare([]byte(e.CodeHash), []byte(HashCode(email, code))) == 1
}

// NewEntry builds a fresh entry for code expiring TTL after now.
func NewEntry(email, code string, now time.Time) Entry {
	return Entry{CodeHash: HashCode(email, code), ExpiresAt: now.Add(TTL)}
}

// Issue generates a code and stores its digest, replacing any pending one.
func Issue(ctx context.Context, s Store, email string, now time.Time) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}
	if err := s.Put(ctx, normalizeEmail(email), NewEntry(email, code, now)); err != nil {
		return "", err
	}
	return code, nil
}

// Check verifies code against the pending entry. A wrong code costs one
// attempt; reaching MaxAttempts discards the entry. Check never deletes the
// entry on success, callers consume it with Consume.
func Check(ctx context.Context, s Store, email, code string, now time.Time) error {
	email = normalizeEmail(email)
	e, err := s.Get(ctx, email)
	if err != nil {
		return err
	}
	if !now.Before(e.ExpiresAt) {
		_ = s.Delete(ctx, email)
		return ErrExpired
	}
	if e.Attempts >= MaxAttempts {
		_ = s.Delete(ctx, email)
		return ErrTooManyAttempts
	}
	if e.Matches(email, code) {
		return nil
	}

	attempts, err := s.IncrementAttempts(ctx, email)
	if err != nil {
		return err
	}
	if attempts >= MaxAttempts {
		if err := s.Delete(ctx, email); err != nil {
			return err
		}
		return ErrTooManyAttempts
	}
	return ErrMismatch
}

// Consume checks the code and deletes the entry when it matches.
func Consume(ctx context.Context, s Store, email, code string, now time.Time) error {
	if err := Check(ctx, s, email, code, now); err != nil {
		return err
	}
	return s.Delete(ctx, normalizeEmail(email))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
