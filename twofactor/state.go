package twofactor

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"

	"github.com/altavault/authcore/kv"
)

// ErrBackupCodeUnknown is returned by ConsumeBackupCode when the presented
// hash matches no stored code. Callers collapse it into their generic
// invalid-code error.
var ErrBackupCodeUnknown = errors.New("twofactor: unknown backup code")

// State is the per-principal enrollment record. Enabled is only ever true
// when Secret is set and the initial verification succeeded; disabling
// clears the whole record, so partial state cannot exist.
type State struct {
	Secret           string   `json:"secret,omitempty"` // base32
	Enabled          bool     `json:"enabled"`
	BackupCodeHashes []string `json:"backup_code_hashes,omitempty"` // hex SHA-256
}

// StateStore persists State records in the KV collaborator.
type StateStore struct {
	store kv.Store
}

// NewStateStore builds a store over the KV collaborator.
func NewStateStore(store kv.Store) *StateStore {
	return &StateStore{store: store}
}

func stateKey(userID string) string {
	return "2fa:" + userID
}

// Get returns the enrollment state for userID. An absent record decodes as
// the zero State, i.e. two-factor disabled.
func (s *StateStore) Get(ctx context.Context, userID string) (*State, error) {
	data, err := s.store.Get(ctx, stateKey(userID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return &State{}, nil
		}
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.New("twofactor: corrupt state record")
	}
	return &st, nil
}

// Put replaces the enrollment state for userID in a single write.
func (s *StateStore) Put(ctx context.Context, userID string, st *State) error {
	encoded, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, stateKey(userID), encoded, 0)
}

// Delete clears secret and backup codes together. Clearing an absent record
// succeeds.
func (s *StateStore) Delete(ctx context.Context, userID string) error {
	return s.store.Delete(ctx, stateKey(userID))
}

// ConsumeBackupCode removes the stored hash matching codeHash and persists
// the reduced list as an immutable replacement, under a compare-and-swap so
// two concurrent presentations of the same code cannot both succeed. It
// returns the number of codes remaining after consumption. One internal
// retry is performed on transaction conflict.
func (s *StateStore) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (int, error) {
	remaining, err := s.consumeOnce(ctx, userID, codeHash)
	if errors.Is(err, kv.ErrConflict) {
		remaining, err = s.consumeOnce(ctx, userID, codeHash)
	}
	return remaining, err
}

func (s *StateStore) consumeOnce(ctx context.Context, userID, codeHash string) (int, error) {
	k := stateKey(userID)
	remaining := 0

	err := s.store.Atomic(ctx, []string{k}, func(tx kv.Tx) error {
		data, err := tx.Get(ctx, k)
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				return ErrBackupCodeUnknown
			}
			return err
		}
		var st State
		if err := json.Unmarshal(data, &st); err != nil {
			return errors.New("twofactor: corrupt state record")
		}
		if !st.Enabled {
			return ErrBackupCodeUnknown
		}

		match := -1
		for i, h := range st.BackupCodeHashes {
			// Hashes are fixed-width hex; compare every candidate in
			// constant time regardless of position.
			if subtle.ConstantTimeCompare([]byte(h), []byte(codeHash)) == 1 && match < 0 {
				match = i
			}
		}
		if match < 0 {
			return ErrBackupCodeUnknown
		}

		replaced := make([]string, 0, len(st.BackupCodeHashes)-1)
		replaced = append(replaced, st.BackupCodeHashes[:match]...)
		replaced = append(replaced, st.BackupCodeHashes[match+1:]...)
		st.BackupCodeHashes = replaced
		remaining = len(replaced)

		encoded, err := json.Marshal(&st)
		if err != nil {
			return err
		}
		tx.Set(k, encoded, 0)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}
