package authcore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/altavault/authcore/twofactor"
)

// SetupTwoFactor begins enrollment for a principal. It re-verifies the
// account password as a step-up check, generates a fresh TOTP secret, and
// stores it pending: the secret does nothing until EnableTwoFactor confirms
// a code against it. Calling Setup again before Enable replaces the pending
// secret.
func (e *Engine) SetupTwoFactor(ctx context.Context, userID, pass string) (*TwoFactorSetup, error) {
	p, err := e.stepUp(ctx, userID, pass)
	if err != nil {
		return nil, err
	}

	state, err := e.twofactor.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: two-factor state", ErrInternal)
	}
	if state.Enabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	key, err := twofactor.GenerateSecret(e.config.TwoFactor.Issuer, p.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: generate secret: %v", ErrInternal, err)
	}

	state.Secret = key.Secret()
	if err := e.twofactor.Put(ctx, userID, state); err != nil {
		return nil, fmt.Errorf("%w: store pending secret", ErrInternal)
	}

	return &TwoFactorSetup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// EnableTwoFactor activates a pending enrollment. The caller proves their
// authenticator is provisioned by supplying a current code for the pending
// secret; on success the enrollment flips to enabled and a fresh set of
// single-use backup codes is returned in plaintext, exactly once. Only the
// hashes are stored.
func (e *Engine) EnableTwoFactor(ctx context.Context, userID, code string) ([]string, error) {
	state, err := e.twofactor.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: two-factor state", ErrInternal)
	}
	if state.Enabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if state.Secret == "" {
		return nil, ErrNoPendingSecret
	}

	if !twofactor.ValidateCode(code, state.Secret, e.clock.Now(), e.config.TwoFactor.Skew) {
		e.metricInc(MetricTwoFactorRejected)
		return nil, ErrInvalidCode
	}

	codes, err := twofactor.NewBackupCodes(e.config.TwoFactor.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("%w: generate backup codes: %v", ErrInternal, err)
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = twofactor.HashBackupCode(c)
	}

	state.Enabled = true
	state.BackupCodeHashes = hashes
	if err := e.twofactor.Put(ctx, userID, state); err != nil {
		return nil, fmt.Errorf("%w: store enrollment", ErrInternal)
	}

	e.metricInc(MetricTwoFactorEnabled)
	e.log.Info("two-factor enabled", zap.String("principal", userID))
	return codes, nil
}

// VerifyTwoFactor checks a second-factor code for an enrolled principal.
// A 6-digit code is checked as TOTP; an 8-character code is consumed as a
// backup code. The result reports which method matched and how many backup
// codes remain.
func (e *Engine) VerifyTwoFactor(ctx context.Context, userID, code string) (*TwoFactorVerification, error) {
	state, err := e.twofactor.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: two-factor state", ErrInternal)
	}
	if !state.Enabled {
		return nil, ErrTwoFactorNotEnabled
	}
	return e.verifySecondFactor(ctx, userID, state, code)
}

// DisableTwoFactor clears an enrollment. It demands the account password and
// a current TOTP code; backup codes deliberately cannot disable two-factor,
// so a leaked printout alone cannot strip the account's protection. Secret
// and remaining backup codes are removed together.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, pass, code string) error {
	if _, err := e.stepUp(ctx, userID, pass); err != nil {
		return err
	}

	state, err := e.twofactor.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: two-factor state", ErrInternal)
	}
	if !state.Enabled {
		return ErrTwoFactorNotEnabled
	}

	if !twofactor.ValidateCode(code, state.Secret, e.clock.Now(), e.config.TwoFactor.Skew) {
		e.metricInc(MetricTwoFactorRejected)
		return ErrInvalidCode
	}

	if err := e.twofactor.Delete(ctx, userID); err != nil {
		return fmt.Errorf("%w: clear enrollment", ErrInternal)
	}

	e.metricInc(MetricTwoFactorDisabled)
	e.log.Info("two-factor disabled", zap.String("principal", userID))
	return nil
}

// verifySecondFactor dispatches a code to the TOTP or backup path based on
// its canonical length. Every mismatch collapses into ErrInvalidCode.
func (e *Engine) verifySecondFactor(ctx context.Context, userID string, state *twofactor.State, code string) (*TwoFactorVerification, error) {
	canonical := twofactor.Canonicalize(code)

	switch len(canonical) {
	case 6:
		if !twofactor.ValidateCode(canonical, state.Secret, e.clock.Now(), e.config.TwoFactor.Skew) {
			e.metricInc(MetricTwoFactorRejected)
			return nil, ErrInvalidCode
		}
		e.metricInc(MetricTwoFactorVerified)
		return &TwoFactorVerification{
			Method:               MethodTOTP,
			BackupCodesRemaining: len(state.BackupCodeHashes),
		}, nil

	case twofactor.BackupCodeLength:
		remaining, err := e.twofactor.ConsumeBackupCode(ctx, userID, twofactor.HashBackupCode(canonical))
		if err != nil {
			if errors.Is(err, twofactor.ErrBackupCodeUnknown) {
				e.metricInc(MetricTwoFactorRejected)
				return nil, ErrInvalidCode
			}
			return nil, fmt.Errorf("%w: consume backup code", ErrInternal)
		}
		e.metricInc(MetricTwoFactorVerified)
		e.metricInc(MetricBackupCodeConsumed)
		e.log.Info("backup code consumed",
			zap.String("principal", userID),
			zap.Int("remaining", remaining),
		)
		return &TwoFactorVerification{
			Method:               MethodBackupCode,
			BackupCodesRemaining: remaining,
		}, nil

	default:
		e.metricInc(MetricTwoFactorRejected)
		return nil, ErrInvalidCode
	}
}

// stepUp re-verifies the account password for sensitive self-service
// operations. The principal must exist; a digest mismatch is reported as
// ErrInvalidPassword, distinct from the login-path ErrUnauthorized because
// the caller is already authenticated.
func (e *Engine) stepUp(ctx context.Context, userID, pass string) (Principal, error) {
	p, err := e.directory.FindByID(ctx, userID)
	if err != nil {
		return Principal{}, ErrPrincipalNotFound
	}
	ok, err := e.hasher.Verify(pass, p.PasswordDigest)
	if err != nil || !ok {
		return Principal{}, ErrInvalidPassword
	}
	return p, nil
}
