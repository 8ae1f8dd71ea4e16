package authcore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/altavault/authcore/kv"
	"github.com/altavault/authcore/password"
	"github.com/altavault/authcore/twofactor"
)

var testSigningSecret = []byte("0123456789abcdef0123456789abcdef")

// manualClock is a hand-advanced clock shared by the engine and its store.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock() *manualClock {
	return &manualClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeDirectory is an in-memory Directory seeded per test.
type fakeDirectory struct {
	mu    sync.Mutex
	users map[string]Principal
}

func newFakeDirectory(users ...Principal) *fakeDirectory {
	d := &fakeDirectory{users: map[string]Principal{}}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == email {
			return u, nil
		}
	}
	return Principal{}, ErrPrincipalNotFound
}

func (d *fakeDirectory) FindByID(_ context.Context, id string) (Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return u, nil
}

func (d *fakeDirectory) SetPasswordDigest(_ context.Context, id, digest string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	u.PasswordDigest = digest
	d.users[id] = u
	return nil
}

func (d *fakeDirectory) MarkEmailVerified(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	if u.EmailVerified {
		return ErrAlreadyVerified
	}
	u.EmailVerified = true
	d.users[id] = u
	return nil
}

func (d *fakeDirectory) get(id string) Principal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.users[id]
}

// countingHasher is a transparent stand-in for argon2: digest is "h:"+plain,
// and every Verify call is counted so tests can assert the dummy-digest path
// does the same amount of work as the real one.
type countingHasher struct {
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) < 10 {
		return "", password.ErrPasswordPolicy
	}
	return "h:" + plaintext, nil
}

func (h *countingHasher) Verify(plaintext, digest string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return digest == "h:"+plaintext, nil
}

func (h *countingHasher) verifyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

type sentMail struct {
	To       string
	Template string
	Params   map[string]string
}

// fakeMailer records sends; delivery happens on a goroutine, so readers poll
// through lastMail/mailCount.
type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) Send(_ context.Context, to, template string, params map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Template: template, Params: params})
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *fakeMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

// waitForMail blocks until the mailer has recorded at least n sends.
func waitForMail(t *testing.T, m *fakeMailer, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return m.count() >= n },
		2*time.Second, 5*time.Millisecond)
}

// testRig bundles the engine with its collaborators.
type testRig struct {
	engine *Engine
	clock  *manualClock
	store  kv.Store
	dir    *fakeDirectory
	hasher *countingHasher
	mailer *fakeMailer
}

func testPrincipal() Principal {
	return Principal{
		ID:             "u-1",
		Email:          "alice@example.com",
		Role:           "user",
		PasswordDigest: "h:alice-password",
	}
}

func newTestRig(t *testing.T, users ...Principal) *testRig {
	t.Helper()
	clock := newManualClock()
	store := kv.NewMemoryWithClock(clock.Now)
	return newTestRigWithStore(t, clock, store, users...)
}

func newTestRigWithStore(t *testing.T, clock *manualClock, store kv.Store, users ...Principal) *testRig {
	t.Helper()
	if len(users) == 0 {
		users = []Principal{testPrincipal()}
	}
	dir := newFakeDirectory(users...)
	hasher := &countingHasher{}
	mailer := &fakeMailer{}

	cfg := DefaultConfig()
	cfg.Token.SigningSecret = testSigningSecret

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithDirectory(dir).
		WithHasher(hasher).
		WithMailer(mailer).
		WithClock(clock).
		Build()
	require.NoError(t, err)

	return &testRig{
		engine: engine,
		clock:  clock,
		store:  store,
		dir:    dir,
		hasher: hasher,
		mailer: mailer,
	}
}

// enrollTwoFactor walks the principal through setup and enable, returning
// the shared secret and the plaintext backup codes.
func enrollTwoFactor(t *testing.T, rig *testRig, userID, pass string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := rig.engine.SetupTwoFactor(ctx, userID, pass)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/"))

	code := totpCodeNow(t, rig, setup.Secret)
	codes, err := rig.engine.EnableTwoFactor(ctx, userID, code)
	require.NoError(t, err)

	return setup.Secret, codes
}

// totpCodeNow computes the code a synced authenticator would show on the
// rig's clock.
func totpCodeNow(t *testing.T, rig *testRig, secret string) string {
	t.Helper()
	code, err := twofactor.CodeAt(secret, rig.clock.Now())
	require.NoError(t, err)
	return code
}
