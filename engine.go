package authcore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/altavault/authcore/kv"
	"github.com/altavault/authcore/password"
	"github.com/altavault/authcore/revocation"
	"github.com/altavault/authcore/secrets"
	"github.com/altavault/authcore/token"
	"github.com/altavault/authcore/twofactor"
)

// Engine orchestrates the token, revocation, secret-token, CSRF and
// two-factor components against the injected collaborators. It holds no
// mutable state of its own between calls; all coordination happens through
// the KV collaborator.
type Engine struct {
	config    Config
	store     kv.Store
	directory Directory
	hasher    Hasher
	mailer    Mailer
	clock     Clock
	log       *zap.Logger
	metrics   *Metrics

	codec     *token.Codec
	ledger    *revocation.Ledger
	secrets   *secrets.Store
	twofactor *twofactor.StateStore

	csrfSecret []byte

	// dummyDigest is verified against whenever login hits an unknown
	// email, so the hashing work done on the failure path is identical to
	// the known-email path and response timing cannot enumerate accounts.
	dummyDigest string
}

// Builder assembles an Engine. Collaborators without a With* call fall back
// to the shipped defaults where one exists; store and directory are
// mandatory.
type Builder struct {
	config    Config
	store     kv.Store
	directory Directory
	hasher    Hasher
	mailer    Mailer
	clock     Clock
	log       *zap.Logger

	built bool
}

// New starts a builder on DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the KV collaborator. Required.
func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

// WithDirectory sets the principal collaborator. Required.
func (b *Builder) WithDirectory(dir Directory) *Builder {
	b.directory = dir
	return b
}

// WithHasher overrides the default argon2id hasher.
func (b *Builder) WithHasher(h Hasher) *Builder {
	b.hasher = h
	return b
}

// WithMailer sets the mail collaborator. Defaults to NopMailer.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithClock overrides the system clock. Tests inject a manual clock here.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the zap logger. Defaults to a nop logger.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// Build validates the configuration, wires the components, and returns the
// engine. A builder is single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("authcore: builder already used")
	}
	if b.store == nil {
		return nil, errors.New("authcore: kv store required")
	}
	if b.directory == nil {
		return nil, errors.New("authcore: directory required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:    cfg,
		store:     b.store,
		directory: b.directory,
		hasher:    b.hasher,
		mailer:    b.mailer,
		clock:     b.clock,
		log:       b.log,
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.mailer == nil {
		e.mailer = NopMailer{}
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.hasher == nil {
		ph, err := password.NewArgon2(password.DefaultConfig())
		if err != nil {
			return nil, err
		}
		e.hasher = ph
	}
	e.metrics = NewMetrics(cfg.Metrics)

	codec, err := token.NewCodec(token.Config{
		SigningSecret: cfg.Token.SigningSecret,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	}, e.clock.Now)
	if err != nil {
		return nil, err
	}
	e.codec = codec

	e.csrfSecret = cfg.Csrf.SigningSecret
	if len(e.csrfSecret) == 0 {
		e.csrfSecret = cfg.Token.SigningSecret
	}

	e.ledger = revocation.NewLedger(b.store, e.clock.Now)
	e.secrets = secrets.New(b.store, e.clock.Now)
	e.twofactor = twofactor.NewStateStore(b.store)

	// Hash a throwaway password once so the unknown-email login path has
	// a real digest to verify against.
	filler := make([]byte, 24)
	if _, err := rand.Read(filler); err != nil {
		return nil, err
	}
	dummy, err := e.hasher.Hash(base64.RawStdEncoding.EncodeToString(filler))
	if err != nil {
		return nil, fmt.Errorf("authcore: priming hasher: %w", err)
	}
	e.dummyDigest = dummy

	b.built = true
	return e, nil
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

// sendMail dispatches mail without awaiting delivery. The send must never
// block or fail the security operation that triggered it, so errors are
// logged and dropped. The goroutine gets a detached context: the request
// context may be cancelled the moment the operation returns.
func (e *Engine) sendMail(to, template string, params map[string]string) {
	log := e.log
	mailer := e.mailer
	go func() {
		if err := mailer.Send(context.Background(), to, template, params); err != nil {
			log.Error("mail delivery failed",
				zap.String("template", template),
				zap.Error(err),
			)
		}
	}()
}
