// Package authcore is an embeddable identity and session security core:
// JWT access/refresh token issuance and verification, revocation, stateless
// CSRF double-submit tokens, TOTP two-factor with backup codes, single-use
// password-reset and email-verification tokens.
//
// The package owns security decisions only. Accounts live in the host
// application behind the Directory interface, persistence behind kv.Store,
// mail delivery behind Mailer. An Engine is assembled with the Builder:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithStore(kv.NewRedis(client)).
//		WithDirectory(dir).
//		Build()
//
// All failures that could reveal whether an account exists or why a
// credential was rejected collapse into generic errors; the specific reason
// is available only through the injected zap logger.
package authcore
