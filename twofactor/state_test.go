package twofactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/altavault/authcore/kv"
)

func TestGetAbsentStateIsDisabled(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(kv.NewMemory())

	st, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, st.Enabled)
	require.Empty(t, st.Secret)
	require.Empty(t, st.BackupCodeHashes)
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(kv.NewMemory())

	in := &State{
		Secret:           "JBSWY3DPEHPK3PXP",
		Enabled:          true,
		BackupCodeHashes: []string{HashBackupCode("ABCD2345")},
	}
	require.NoError(t, s.Put(ctx, "u1", in))

	out, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, in, out)

	require.NoError(t, s.Delete(ctx, "u1"))
	out, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, out.Enabled)

	// Deleting again still succeeds.
	require.NoError(t, s.Delete(ctx, "u1"))
}

func TestConsumeBackupCodeRemovesExactlyOne(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(kv.NewMemory())

	codes := []string{"AAAA2222", "BBBB3333", "CCCC4444"}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = HashBackupCode(c)
	}
	require.NoError(t, s.Put(ctx, "u1", &State{Secret: "x", Enabled: true, BackupCodeHashes: hashes}))

	remaining, err := s.ConsumeBackupCode(ctx, "u1", HashBackupCode("BBBB3333"))
	require.NoError(t, err)
	require.Equal(t, 2, remaining)

	st, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{hashes[0], hashes[2]}, st.BackupCodeHashes)

	// Spent codes do not verify twice.
	_, err = s.ConsumeBackupCode(ctx, "u1", HashBackupCode("BBBB3333"))
	require.ErrorIs(t, err, ErrBackupCodeUnknown)
}

func TestConsumeBackupCodeUnknownHash(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(kv.NewMemory())
	require.NoError(t, s.Put(ctx, "u1", &State{Secret: "x", Enabled: true,
		BackupCodeHashes: []string{HashBackupCode("AAAA2222")}}))

	_, err := s.ConsumeBackupCode(ctx, "u1", HashBackupCode("ZZZZ9999"))
	require.ErrorIs(t, err, ErrBackupCodeUnknown)
}

func TestConsumeBackupCodeRequiresEnabledEnrollment(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(kv.NewMemory())

	// No record at all.
	_, err := s.ConsumeBackupCode(ctx, "u1", HashBackupCode("AAAA2222"))
	require.ErrorIs(t, err, ErrBackupCodeUnknown)

	// Pending but not enabled.
	require.NoError(t, s.Put(ctx, "u1", &State{Secret: "x",
		BackupCodeHashes: []string{HashBackupCode("AAAA2222")}}))
	_, err = s.ConsumeBackupCode(ctx, "u1", HashBackupCode("AAAA2222"))
	require.ErrorIs(t, err, ErrBackupCodeUnknown)
}

// conflictOnce fails the first Atomic call with ErrConflict, then delegates.
type conflictOnce struct {
	kv.Store
	fired bool
}

func (c *conflictOnce) Atomic(ctx context.Context, keys []string, fn func(tx kv.Tx) error) error {
	if !c.fired {
		c.fired = true
		return kv.ErrConflict
	}
	return c.Store.Atomic(ctx, keys, fn)
}

func TestConsumeBackupCodeRetriesOnceOnConflict(t *testing.T) {
	ctx := context.Background()
	wrapped := &conflictOnce{Store: kv.NewMemory()}
	s := NewStateStore(wrapped)

	require.NoError(t, s.Put(ctx, "u1", &State{Secret: "x", Enabled: true,
		BackupCodeHashes: []string{HashBackupCode("AAAA2222")}}))

	remaining, err := s.ConsumeBackupCode(ctx, "u1", HashBackupCode("AAAA2222"))
	require.NoError(t, err)
	require.Equal(t, 0, remaining)
}
