// Package revocation is the authoritative record of which token ids are
// still good: a jti blacklist for tokens revoked ahead of their natural
// expiry, and the per-user index of currently valid refresh tokens that
// makes server-initiated revocation possible for self-contained tokens.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/altavault/authcore/kv"
)

const (
	blacklistPrefix = "bl:"
	refreshPrefix   = "rt:"
)

// Ledger tracks blacklisted jtis and valid refresh-token ids in the KV
// collaborator. Every entry carries a TTL equal to the remaining token
// lifetime, so the ledger self-prunes and never grows unbounded.
type Ledger struct {
	store kv.Store
	now   func() time.Time
}

// NewLedger builds a ledger over store using the given clock.
func NewLedger(store kv.Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, now: now}
}

func refreshKey(userID, tokenID string) string {
	return refreshPrefix + userID + ":" + tokenID
}

// Blacklist marks jti revoked until expiresAt. Idempotent. If the token is
// already past its expiry the write is skipped entirely; its own expiry
// check already rejects it.
func (l *Ledger) Blacklist(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	value := strconv.FormatInt(expiresAt.Unix(), 10)
	return l.store.Set(ctx, blacklistPrefix+jti, []byte(value), ttl)
}

// IsBlacklisted reports whether jti has been revoked. Callers must run this
// on every access-token and refresh-token verification, not just at
// issuance.
func (l *Ledger) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	_, err := l.store.Get(ctx, blacklistPrefix+jti)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RecordRefreshToken registers tokenID as a currently valid refresh token
// for userID. The index entry expires together with the token.
func (l *Ledger) RecordRefreshToken(ctx context.Context, userID, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return fmt.Errorf("revocation: refresh token already expired")
	}
	value := strconv.FormatInt(expiresAt.Unix(), 10)
	return l.store.Set(ctx, refreshKey(userID, tokenID), []byte(value), ttl)
}

// IsRefreshTokenValid reports whether the (userID, tokenID) pair is present
// in the index. It is a presence check only; the token's own embedded expiry
// has already been verified by the codec. The key is compound on purpose: a
// tokenID recorded under one user must never validate under another.
func (l *Ledger) IsRefreshTokenValid(ctx context.Context, userID, tokenID string) (bool, error) {
	_, err := l.store.Get(ctx, refreshKey(userID, tokenID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RevokeRefreshToken removes a single index entry. Removing an absent entry
// succeeds, which keeps logout idempotent.
func (l *Ledger) RevokeRefreshToken(ctx context.Context, userID, tokenID string) error {
	return l.store.Delete(ctx, refreshKey(userID, tokenID))
}

// RevokeAllForUser enumerates and deletes every refresh-token index entry
// for userID. Partial failure is reported as a joined error but successful
// deletes are never rolled back: revocation may leave the user more locked
// down than intended, never less.
func (l *Ledger) RevokeAllForUser(ctx context.Context, userID string) error {
	keys, err := l.store.List(ctx, refreshPrefix+userID+":")
	if err != nil {
		return err
	}

	var errs []error
	for _, key := range keys {
		if err := l.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("revocation: delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
