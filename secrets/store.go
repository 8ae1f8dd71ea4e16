// Package secrets stores the single-use tokens behind the password-reset and
// email-verification flows. Records auto-expire through the KV TTL, expiry is
// additionally enforced lazily at read time, and consumption is a
// compare-and-swap delete so a token can be redeemed at most once even under
// concurrent presentation.
package secrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/altavault/authcore/kv"
)

// Purpose namespaces tokens so a verification token can never complete a
// password reset.
type Purpose string

const (
	// PurposePasswordReset namespaces password-reset tokens.
	PurposePasswordReset Purpose = "reset"
	// PurposeEmailVerification namespaces email-verification tokens.
	PurposeEmailVerification Purpose = "verify"
)

var (
	// ErrNotFound is returned when a token is absent or already consumed.
	ErrNotFound = errors.New("secrets: token not found")
	// ErrExpired is returned when a token is found but past its embedded
	// expiry, i.e. the lazy check fired before the store's TTL eviction.
	// Once the TTL evicts the record the same token reports ErrNotFound.
	ErrExpired = errors.New("secrets: token expired")
)

const tokenBytes = 32

// Record is the typed value stored behind a secret token, validated at the
// storage boundary on every read.
type Record struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store issues and consumes single-use secret tokens over the KV
// collaborator.
type Store struct {
	store kv.Store
	now   func() time.Time
}

// New builds a store on the given clock.
func New(store kv.Store, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{store: store, now: now}
}

func key(purpose Purpose, token string) string {
	return "st:" + string(purpose) + ":" + token
}

// Issue generates a fresh random token, persists rec under it with the given
// TTL, and returns the token for delivery to the principal.
func (s *Store) Issue(ctx context.Context, purpose Purpose, rec Record, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("secrets: ttl must be positive")
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	rec.ExpiresAt = s.now().Add(ttl)
	encoded, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, key(purpose, token), encoded, ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Peek resolves a token without consuming it. An expired record is deleted
// on sight, even though the KV TTL would eventually evict it anyway.
func (s *Store) Peek(ctx context.Context, purpose Purpose, token string) (*Record, error) {
	data, err := s.store.Get(ctx, key(purpose, token))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rec, err := decode(data)
	if err != nil {
		return nil, err
	}
	if s.now().After(rec.ExpiresAt) {
		_ = s.store.Delete(ctx, key(purpose, token))
		return nil, ErrExpired
	}
	return rec, nil
}

// Consume atomically resolves and deletes a token. Exactly one of any number
// of concurrent callers wins; the rest observe ErrNotFound or a transaction
// conflict. Consume performs one internal retry on conflict before giving
// up, per the transaction policy of the core.
func (s *Store) Consume(ctx context.Context, purpose Purpose, token string) (*Record, error) {
	rec, err := s.consumeOnce(ctx, purpose, token)
	if errors.Is(err, kv.ErrConflict) {
		rec, err = s.consumeOnce(ctx, purpose, token)
	}
	return rec, err
}

func (s *Store) consumeOnce(ctx context.Context, purpose Purpose, token string) (*Record, error) {
	k := key(purpose, token)
	var matched *Record

	err := s.store.Atomic(ctx, []string{k}, func(tx kv.Tx) error {
		data, err := tx.Get(ctx, k)
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		rec, err := decode(data)
		if err != nil {
			return err
		}

		// Single-use: the record is deleted whether it turns out to
		// be live or expired.
		tx.Delete(k)
		if s.now().After(rec.ExpiresAt) {
			return ErrExpired
		}
		matched = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

func decode(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.New("secrets: corrupt record")
	}
	if rec.UserID == "" || rec.ExpiresAt.IsZero() {
		return nil, errors.New("secrets: invalid record")
	}
	return &rec, nil
}
