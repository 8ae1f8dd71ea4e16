package authcore

import (
	"errors"
	"time"
)

// Config groups the tunable parameters of the core. Zero values are filled
// from DefaultConfig at build time; Validate runs once in Builder.Build and
// the engine treats the result as immutable afterwards.
type Config struct {
	Token             TokenConfig
	Csrf              CsrfConfig
	TwoFactor         TwoFactorConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	Metrics           MetricsConfig
}

// TokenConfig drives the access/refresh token codec.
type TokenConfig struct {
	// SigningSecret is the HMAC key for both token types. Required, at
	// least 32 bytes.
	SigningSecret []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
}

// CsrfConfig drives the stateless double-submit guard.
type CsrfConfig struct {
	// SigningSecret defaults to the token signing secret when empty.
	SigningSecret []byte
	TTL           time.Duration
}

// TwoFactorConfig drives TOTP enrollment and verification.
type TwoFactorConfig struct {
	// Issuer is the label shown in authenticator apps.
	Issuer string
	// Skew is the number of 30s steps accepted either side of now.
	Skew uint
	// BackupCodeCount is how many single-use codes Enable hands out.
	BackupCodeCount int
}

// PasswordResetConfig drives the single-use reset tokens.
type PasswordResetConfig struct {
	TokenTTL time.Duration
}

// EmailVerificationConfig drives the single-use verification tokens.
type EmailVerificationConfig struct {
	TokenTTL time.Duration
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the production defaults: 15 minute access tokens,
// 30 day refresh tokens, 30 minute CSRF window, one step of TOTP skew, ten
// backup codes, 1 hour reset tokens, 24 hour verification tokens.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:     "authcore",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
		},
		Csrf: CsrfConfig{
			TTL: 30 * time.Minute,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:          "authcore",
			Skew:            1,
			BackupCodeCount: 10,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: time.Hour,
		},
		EmailVerification: EmailVerificationConfig{
			TokenTTL: 24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c Config) Validate() error {
	if len(c.Token.SigningSecret) < 32 {
		return errors.New("config: token signing secret must be at least 32 bytes")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("config: access TTL must be shorter than refresh TTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("config: token leeway out of range")
	}
	if len(c.Csrf.SigningSecret) > 0 && len(c.Csrf.SigningSecret) < 32 {
		return errors.New("config: csrf signing secret must be at least 32 bytes")
	}
	if c.Csrf.TTL < time.Minute || c.Csrf.TTL > time.Hour {
		return errors.New("config: csrf TTL must be between 1m and 1h")
	}
	if c.TwoFactor.Issuer == "" {
		return errors.New("config: two-factor issuer required")
	}
	if c.TwoFactor.Skew > 2 {
		return errors.New("config: two-factor skew must be at most 2 steps")
	}
	if c.TwoFactor.BackupCodeCount < 1 || c.TwoFactor.BackupCodeCount > 20 {
		return errors.New("config: backup code count must be between 1 and 20")
	}
	if c.PasswordReset.TokenTTL <= 0 || c.EmailVerification.TokenTTL <= 0 {
		return errors.New("config: secret token TTLs must be positive")
	}
	return nil
}

func cloneConfig(c Config) Config {
	out := c
	out.Token.SigningSecret = cloneBytes(c.Token.SigningSecret)
	out.Csrf.SigningSecret = cloneBytes(c.Csrf.SigningSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
