package authcore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/altavault/authcore/password"
	"github.com/altavault/authcore/secrets"
)

// RequestPasswordReset issues a single-use reset token and mails it to the
// account. The return is always nil for an unknown email: whether an account
// exists is exactly what this endpoint must not reveal, so the unknown-email
// path succeeds silently and only the log records the difference.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	p, err := e.directory.FindByEmail(ctx, email)
	if err != nil {
		e.log.Debug("reset requested for unknown email")
		return nil
	}

	tok, err := e.secrets.Issue(ctx, secrets.PurposePasswordReset, secrets.Record{
		UserID: p.ID,
		Email:  p.Email,
	}, e.config.PasswordReset.TokenTTL)
	if err != nil {
		e.log.Error("reset token issue failed", zap.Error(err))
		return fmt.Errorf("%w: issue reset token", ErrInternal)
	}

	e.metricInc(MetricResetRequested)
	e.sendMail(p.Email, MailTemplatePasswordReset, map[string]string{
		"token": tok,
	})
	return nil
}

// CompletePasswordReset redeems a reset token, sets the new password, and
// revokes every outstanding refresh token for the account. A reset is a
// statement that the old credential may be compromised, so every session
// opened with it falls with it.
//
// For principals enrolled in two-factor, a valid second-factor code is
// required as well: a mailbox compromise alone must not be enough to take
// the account. The token is only consumed after the code checks out, so a
// mistyped code does not burn the single-use token.
func (e *Engine) CompletePasswordReset(ctx context.Context, resetToken, newPassword, code string) error {
	rec, err := e.secrets.Peek(ctx, secrets.PurposePasswordReset, resetToken)
	if err != nil {
		e.metricInc(MetricResetFailed)
		switch {
		case errors.Is(err, secrets.ErrExpired):
			return ErrTokenExpired
		case errors.Is(err, secrets.ErrNotFound):
			return ErrTokenNotFound
		}
		return fmt.Errorf("%w: resolve reset token", ErrInternal)
	}

	state, err := e.twofactor.Get(ctx, rec.UserID)
	if err != nil {
		return fmt.Errorf("%w: two-factor state", ErrInternal)
	}
	if state.Enabled {
		if code == "" {
			e.metricInc(MetricResetFailed)
			return ErrTwoFactorRequired
		}
		if _, err := e.verifySecondFactor(ctx, rec.UserID, state, code); err != nil {
			e.metricInc(MetricResetFailed)
			return err
		}
	}

	digest, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricResetFailed)
		if errors.Is(err, password.ErrPasswordPolicy) {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return fmt.Errorf("%w: hash password", ErrInternal)
	}

	// Consume is the commit point: exactly one concurrent completion can
	// pass it, everyone else sees the token gone.
	if _, err := e.secrets.Consume(ctx, secrets.PurposePasswordReset, resetToken); err != nil {
		e.metricInc(MetricResetFailed)
		switch {
		case errors.Is(err, secrets.ErrExpired):
			return ErrTokenExpired
		case errors.Is(err, secrets.ErrNotFound):
			return ErrTokenNotFound
		}
		return fmt.Errorf("%w: consume reset token", ErrInternal)
	}

	if err := e.directory.SetPasswordDigest(ctx, rec.UserID, digest); err != nil {
		e.log.Error("password digest update failed", zap.Error(err))
		return fmt.Errorf("%w: set password digest", ErrInternal)
	}

	if err := e.ledger.RevokeAllForUser(ctx, rec.UserID); err != nil {
		// The password did change; surface the partial revocation rather
		// than pretend the reset failed.
		e.log.Error("post-reset revocation incomplete", zap.Error(err))
		return fmt.Errorf("%w: revoke sessions", ErrInternal)
	}

	e.metricInc(MetricResetCompleted)
	e.log.Info("password reset completed", zap.String("principal", rec.UserID))
	return nil
}
