package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTwoFactorEnrollmentLifecycle(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	// Login works without a second factor before enrollment.
	_, err := rig.engine.Login(ctx, "alice@example.com", "alice-password")
	require.NoError(t, err)

	secret, codes := enrollTwoFactor(t, rig, "u-1", "alice-password")
	require.Len(t, codes, 10)

	// Plain login now stops at the second factor.
	_, err = rig.engine.Login(ctx, "alice@example.com", "alice-password")
	require.ErrorIs(t, err, ErrTwoFactorRequired)

	// The two-step entry point completes with a current code.
	pair, err := rig.engine.LoginWithTwoFactor(ctx, "alice@example.com", "alice-password",
		totpCodeNow(t, rig, secret))
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
}

func TestSetupRequiresPassword(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	_, err := rig.engine.SetupTwoFactor(ctx, "u-1", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidPassword)

	_, err = rig.engine.SetupTwoFactor(ctx, "u-404", "alice-password")
	require.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestEnableRequiresPendingSecret(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	_, err := rig.engine.EnableTwoFactor(ctx, "u-1", "123456")
	require.ErrorIs(t, err, ErrNoPendingSecret)
}

func TestEnableRejectsWrongCodeAndStaysPending(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	setup, err := rig.engine.SetupTwoFactor(ctx, "u-1", "alice-password")
	require.NoError(t, err)

	_, err = rig.engine.EnableTwoFactor(ctx, "u-1", "000000")
	require.ErrorIs(t, err, ErrInvalidCode)

	// Still pending: a correct code for the same secret enables.
	_, err = rig.engine.EnableTwoFactor(ctx, "u-1", totpCodeNow(t, rig, setup.Secret))
	require.NoError(t, err)
}

func TestEnableTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	secret, _ := enrollTwoFactor(t, rig, "u-1", "alice-password")

	_, err := rig.engine.EnableTwoFactor(ctx, "u-1", totpCodeNow(t, rig, secret))
	require.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
	_, err = rig.engine.SetupTwoFactor(ctx, "u-1", "alice-password")
	require.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
}

func TestSetupAgainReplacesPendingSecret(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	first, err := rig.engine.SetupTwoFactor(ctx, "u-1", "alice-password")
	require.NoError(t, err)
	second, err := rig.engine.SetupTwoFactor(ctx, "u-1", "alice-password")
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	// Only the latest secret can enable.
	_, err = rig.engine.EnableTwoFactor(ctx, "u-1", totpCodeNow(t, rig, first.Secret))
	require.ErrorIs(t, err, ErrInvalidCode)
	_, err = rig.engine.EnableTwoFactor(ctx, "u-1", totpCodeNow(t, rig, second.Secret))
	require.NoError(t, err)
}

func TestVerifyTwoFactorTOTP(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	secret, _ := enrollTwoFactor(t, rig, "u-1", "alice-password")

	res, err := rig.engine.VerifyTwoFactor(ctx, "u-1", totpCodeNow(t, rig, secret))
	require.NoError(t, err)
	require.Equal(t, MethodTOTP, res.Method)
	require.Equal(t, 10, res.BackupCodesRemaining)

	_, err = rig.engine.VerifyTwoFactor(ctx, "u-1", "000000")
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyTwoFactorToleratesOneStepDrift(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	secret, _ := enrollTwoFactor(t, rig, "u-1", "alice-password")

	stale := totpCodeNow(t, rig, secret)
	rig.clock.Advance(30 * time.Second)

	_, err := rig.engine.VerifyTwoFactor(ctx, "u-1", stale)
	require.NoError(t, err)

	// Two steps out is beyond the accepted skew.
	rig.clock.Advance(60 * time.Second)
	_, err = rig.engine.VerifyTwoFactor(ctx, "u-1", stale)
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyTwoFactorRequiresEnrollment(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	_, err := rig.engine.VerifyTwoFactor(ctx, "u-1", "123456")
	require.ErrorIs(t, err, ErrTwoFactorNotEnabled)
}

func TestBackupCodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	_, codes := enrollTwoFactor(t, rig, "u-1", "alice-password")

	res, err := rig.engine.VerifyTwoFactor(ctx, "u-1", codes[0])
	require.NoError(t, err)
	require.Equal(t, MethodBackupCode, res.Method)
	require.Equal(t, 9, res.BackupCodesRemaining)

	_, err = rig.engine.VerifyTwoFactor(ctx, "u-1", codes[0])
	require.ErrorIs(t, err, ErrInvalidCode)

	// The other codes are unaffected.
	res, err = rig.engine.VerifyTwoFactor(ctx, "u-1", codes[1])
	require.NoError(t, err)
	require.Equal(t, 8, res.BackupCodesRemaining)
}

func TestBackupCodeCompletesLogin(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	_, codes := enrollTwoFactor(t, rig, "u-1", "alice-password")

	pair, err := rig.engine.LoginWithTwoFactor(ctx, "alice@example.com", "alice-password", codes[0])
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)
}

func TestBackupCodeAcceptsSlopInInput(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	_, codes := enrollTwoFactor(t, rig, "u-1", "alice-password")

	sloppy := " " + codes[0][:4] + "-" + codes[0][4:] + " "
	res, err := rig.engine.VerifyTwoFactor(ctx, "u-1", sloppy)
	require.NoError(t, err)
	require.Equal(t, MethodBackupCode, res.Method)
}

func TestDisableTwoFactor(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	secret, codes := enrollTwoFactor(t, rig, "u-1", "alice-password")

	// Wrong password, wrong code, and backup codes all fail the step-up.
	err := rig.engine.DisableTwoFactor(ctx, "u-1", "wrong-password", totpCodeNow(t, rig, secret))
	require.ErrorIs(t, err, ErrInvalidPassword)
	err = rig.engine.DisableTwoFactor(ctx, "u-1", "alice-password", "000000")
	require.ErrorIs(t, err, ErrInvalidCode)
	err = rig.engine.DisableTwoFactor(ctx, "u-1", "alice-password", codes[0])
	require.ErrorIs(t, err, ErrInvalidCode)

	require.NoError(t, rig.engine.DisableTwoFactor(ctx, "u-1", "alice-password", totpCodeNow(t, rig, secret)))

	// Login no longer demands a second factor, and the old state is gone.
	_, err = rig.engine.Login(ctx, "alice@example.com", "alice-password")
	require.NoError(t, err)
	_, err = rig.engine.VerifyTwoFactor(ctx, "u-1", totpCodeNow(t, rig, secret))
	require.ErrorIs(t, err, ErrTwoFactorNotEnabled)
}

func TestDisableRequiresEnrollment(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	err := rig.engine.DisableTwoFactor(ctx, "u-1", "alice-password", "123456")
	require.ErrorIs(t, err, ErrTwoFactorNotEnabled)
}
