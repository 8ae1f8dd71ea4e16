package authcore

import "context"

// Principal is the identity slice of a user account this core reads. The
// account itself is owned by the host application's signup flow; the core
// only consumes id, email, role, the password digest, and verification
// state.
type Principal struct {
	ID             string
	Email          string
	Role           string
	PasswordDigest string
	EmailVerified  bool
}

// Directory is the principal lookup/update collaborator the host
// application implements.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (Principal, error)
	FindByID(ctx context.Context, id string) (Principal, error)
	SetPasswordDigest(ctx context.Context, id, digest string) error
	// MarkEmailVerified flips verification state exactly once and returns
	// ErrAlreadyVerified on repeat calls.
	MarkEmailVerified(ctx context.Context, id string) error
}

// Hasher is the password hashing collaborator. Verify is assumed
// constant-time with respect to the plaintext.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) (bool, error)
}

// Mail template names passed to the Mailer collaborator.
const (
	MailTemplatePasswordReset     = "password-reset"
	MailTemplateEmailVerification = "verify-email"
)

// Mailer delivers transactional mail. The engine dispatches sends on a
// goroutine and never waits for them: a slow or failing provider must not
// block or roll back the security operation that triggered the send.
type Mailer interface {
	Send(ctx context.Context, to, template string, params map[string]string) error
}

// NopMailer discards all mail. Useful when delivery happens elsewhere.
type NopMailer struct{}

// Send implements Mailer.
func (NopMailer) Send(context.Context, string, string, map[string]string) error { return nil }

// TokenPair is returned by a successful login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AccessIdentity is the verified content of an access token.
type AccessIdentity struct {
	PrincipalID string
	Email       string
	Role        string
}

// TwoFactorSetup is returned by SetupTwoFactor. The secret stays pending
// until EnableTwoFactor confirms a code against it.
type TwoFactorSetup struct {
	Secret          string // base32, for manual entry
	ProvisioningURI string // otpauth://, for QR rendering
}

// TwoFactorMethod names which second factor satisfied a verification.
type TwoFactorMethod string

const (
	// MethodTOTP marks a time-based code match.
	MethodTOTP TwoFactorMethod = "totp"
	// MethodBackupCode marks a consumed single-use backup code.
	MethodBackupCode TwoFactorMethod = "backup"
)

// TwoFactorVerification reports how a code verified and how many backup
// codes remain, so callers can warn users running low.
type TwoFactorVerification struct {
	Method               TwoFactorMethod
	BackupCodesRemaining int
}
