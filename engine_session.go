package authcore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/altavault/authcore/token"
)

// Login verifies credentials and, when the principal is not enrolled in
// two-factor, mints an access/refresh token pair. Enrolled principals get
// ErrTwoFactorRequired and must call LoginWithTwoFactor instead.
//
// The failure path is uniform: a password verification runs whether or not
// the email resolves to an account, and every rejection surfaces the same
// ErrUnauthorized, so neither timing nor the error distinguishes "no such
// user" from "wrong password".
func (e *Engine) Login(ctx context.Context, email, pass string) (*TokenPair, error) {
	p, err := e.authenticate(ctx, email, pass)
	if err != nil {
		return nil, err
	}

	state, err := e.twofactor.Get(ctx, p.ID)
	if err != nil {
		e.log.Error("two-factor state read failed", zap.Error(err))
		return nil, fmt.Errorf("%w: two-factor state", ErrInternal)
	}
	if state.Enabled {
		e.metricInc(MetricLoginTwoFactorRequired)
		return nil, ErrTwoFactorRequired
	}

	return e.issueSession(ctx, p)
}

// LoginWithTwoFactor completes a login gated on a second factor. The code
// may be a 6-digit TOTP or an 8-character backup code; a backup code is
// consumed on use.
func (e *Engine) LoginWithTwoFactor(ctx context.Context, email, pass, code string) (*TokenPair, error) {
	p, err := e.authenticate(ctx, email, pass)
	if err != nil {
		return nil, err
	}

	state, err := e.twofactor.Get(ctx, p.ID)
	if err != nil {
		e.log.Error("two-factor state read failed", zap.Error(err))
		return nil, fmt.Errorf("%w: two-factor state", ErrInternal)
	}
	if state.Enabled {
		if _, err := e.verifySecondFactor(ctx, p.ID, state, code); err != nil {
			e.metricInc(MetricLoginFailure)
			return nil, err
		}
	}

	return e.issueSession(ctx, p)
}

// authenticate runs the timing-uniform credential check shared by the login
// entry points.
func (e *Engine) authenticate(ctx context.Context, email, pass string) (Principal, error) {
	p, lookupErr := e.directory.FindByEmail(ctx, email)

	digest := e.dummyDigest
	if lookupErr == nil {
		digest = p.PasswordDigest
	}

	ok, verifyErr := e.hasher.Verify(pass, digest)
	if lookupErr != nil || verifyErr != nil || !ok {
		e.metricInc(MetricLoginFailure)
		reason := "password mismatch"
		switch {
		case lookupErr != nil:
			reason = "unknown email"
		case verifyErr != nil:
			reason = "digest verify error"
		}
		e.log.Debug("login rejected", zap.String("reason", reason))
		return Principal{}, ErrUnauthorized
	}
	return p, nil
}

func (e *Engine) issueSession(ctx context.Context, p Principal) (*TokenPair, error) {
	access, _, err := e.codec.Mint(p.ID, p.Email, p.Role, token.TypeAccess, e.config.Token.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: mint access: %v", ErrInternal, err)
	}
	refresh, refreshClaims, err := e.codec.Mint(p.ID, p.Email, p.Role, token.TypeRefresh, e.config.Token.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: mint refresh: %v", ErrInternal, err)
	}

	// A refresh token that is not in the ledger can never be revoked, so
	// a ledger write failure here is fatal to the login: better to reject
	// than to hand out an untracked credential.
	if err := e.ledger.RecordRefreshToken(ctx, p.ID, refreshClaims.ID, refreshClaims.ExpiresAt.Time); err != nil {
		e.log.Error("refresh token record failed", zap.Error(err))
		return nil, fmt.Errorf("%w: record refresh token", ErrInternal)
	}

	e.metricInc(MetricLoginSuccess)
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh redeems a valid refresh token for a new access token. The refresh
// token itself is not rotated: it stays valid until its own expiry or an
// explicit revocation, which is the documented contract of this core.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := e.codec.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.log.Debug("refresh rejected", zap.NamedError("reason", err))
		return "", ErrUnauthorized
	}

	blacklisted, err := e.ledger.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return "", fmt.Errorf("%w: blacklist lookup", ErrInternal)
	}
	if blacklisted {
		e.metricInc(MetricRefreshFailure)
		e.log.Debug("refresh rejected", zap.String("reason", "blacklisted"))
		return "", ErrUnauthorized
	}

	valid, err := e.ledger.IsRefreshTokenValid(ctx, claims.Subject, claims.ID)
	if err != nil {
		return "", fmt.Errorf("%w: refresh index lookup", ErrInternal)
	}
	if !valid {
		e.metricInc(MetricRefreshFailure)
		e.log.Debug("refresh rejected", zap.String("reason", "revoked"))
		return "", ErrUnauthorized
	}

	access, _, err := e.codec.Mint(claims.Subject, claims.Email, claims.Role, token.TypeAccess, e.config.Token.AccessTTL)
	if err != nil {
		return "", fmt.Errorf("%w: mint access: %v", ErrInternal, err)
	}
	e.metricInc(MetricRefreshSuccess)
	return access, nil
}

// Logout revokes a refresh token: its jti is blacklisted for its remaining
// lifetime and its index entry removed. Logout never fails from the
// caller's point of view — an invalid or already revoked token, or a
// storage hiccup, must not stop the client from clearing its cookie. The
// session's intent is to end; the ledger writes are best-effort and the
// token expires on its own regardless.
func (e *Engine) Logout(ctx context.Context, refreshToken string) {
	e.metricInc(MetricLogout)

	claims, err := e.codec.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		e.log.Debug("logout with invalid token", zap.NamedError("reason", err))
		return
	}

	if err := e.ledger.Blacklist(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		e.log.Warn("logout blacklist write failed", zap.Error(err))
	}
	if err := e.ledger.RevokeRefreshToken(ctx, claims.Subject, claims.ID); err != nil {
		e.log.Warn("logout revoke failed", zap.Error(err))
	}
}

// LogoutAll revokes every refresh token belonging to the access token's
// principal. Outstanding access tokens are not enumerable and are left to
// lapse on their own 15-minute expiry, an accepted window before global
// logout fully takes effect.
func (e *Engine) LogoutAll(ctx context.Context, accessToken string) error {
	identity, err := e.VerifyAccess(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := e.ledger.RevokeAllForUser(ctx, identity.PrincipalID); err != nil {
		// Successful deletes stand; only the remainder is reported.
		e.log.Error("logout-all incomplete", zap.Error(err))
		return fmt.Errorf("%w: revoke all", ErrInternal)
	}
	e.metricInc(MetricLogoutAll)
	return nil
}

// VerifyAccess authenticates a bearer access token: signature, expiry, type
// discriminator, and the mandatory blacklist lookup that no verification may
// skip.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (*AccessIdentity, error) {
	claims, err := e.codec.Verify(accessToken, token.TypeAccess)
	if err != nil {
		e.metricInc(MetricAccessRejected)
		e.log.Debug("access rejected", zap.NamedError("reason", err))
		return nil, ErrUnauthorized
	}

	blacklisted, err := e.ledger.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: blacklist lookup", ErrInternal)
	}
	if blacklisted {
		e.metricInc(MetricAccessRejected)
		e.log.Debug("access rejected", zap.String("reason", "blacklisted"))
		return nil, ErrUnauthorized
	}

	return &AccessIdentity{
		PrincipalID: claims.Subject,
		Email:       claims.Email,
		Role:        claims.Role,
	}, nil
}

// RevokeAccessToken blacklists a still-valid access token ahead of its
// natural expiry. Rarely needed given the short access TTL, but the
// mechanism is generic.
func (e *Engine) RevokeAccessToken(ctx context.Context, accessToken string) error {
	claims, err := e.codec.Verify(accessToken, token.TypeAccess)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil
		}
		return ErrUnauthorized
	}
	if err := e.ledger.Blacklist(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("%w: blacklist write", ErrInternal)
	}
	return nil
}
