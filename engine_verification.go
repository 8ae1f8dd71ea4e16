package authcore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/altavault/authcore/secrets"
)

// RequestEmailVerification issues a single-use verification token for the
// principal and mails it. Requesting again before the previous token is
// used simply issues another; all outstanding tokens stay valid until
// consumed or expired.
func (e *Engine) RequestEmailVerification(ctx context.Context, userID string) error {
	p, err := e.directory.FindByID(ctx, userID)
	if err != nil {
		return ErrPrincipalNotFound
	}
	if p.EmailVerified {
		return ErrAlreadyVerified
	}

	tok, err := e.secrets.Issue(ctx, secrets.PurposeEmailVerification, secrets.Record{
		UserID: p.ID,
		Email:  p.Email,
	}, e.config.EmailVerification.TokenTTL)
	if err != nil {
		e.log.Error("verification token issue failed", zap.Error(err))
		return fmt.Errorf("%w: issue verification token", ErrInternal)
	}

	e.metricInc(MetricVerificationRequested)
	e.sendMail(p.Email, MailTemplateEmailVerification, map[string]string{
		"token": tok,
	})
	return nil
}

// ConfirmEmailVerification redeems a verification token and marks the
// principal's email verified. The token is consumed first, so a second
// presentation of the same token reports it gone rather than re-verifying.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, verificationToken string) error {
	rec, err := e.secrets.Consume(ctx, secrets.PurposeEmailVerification, verificationToken)
	if err != nil {
		switch {
		case errors.Is(err, secrets.ErrExpired):
			return ErrTokenExpired
		case errors.Is(err, secrets.ErrNotFound):
			return ErrTokenNotFound
		}
		return fmt.Errorf("%w: consume verification token", ErrInternal)
	}

	if err := e.directory.MarkEmailVerified(ctx, rec.UserID); err != nil {
		if errors.Is(err, ErrAlreadyVerified) {
			return ErrAlreadyVerified
		}
		e.log.Error("mark verified failed", zap.Error(err))
		return fmt.Errorf("%w: mark verified", ErrInternal)
	}

	e.metricInc(MetricVerificationConfirmed)
	e.log.Info("email verified", zap.String("principal", rec.UserID))
	return nil
}
