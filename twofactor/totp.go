// Package twofactor holds the TOTP and backup-code primitives plus the
// KV-backed per-principal enrollment state.
package twofactor

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30

	// BackupCodeLength is fixed at 8 characters; Verify uses the length to
	// discriminate backup codes from 6-digit TOTP codes.
	BackupCodeLength = 8
)

// Codes avoid characters that read ambiguously when printed (0/O, 1/I/L).
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ23456789"

// GenerateSecret creates a fresh random TOTP secret and its otpauth://
// provisioning payload for the given account.
func GenerateSecret(issuer, account string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
}

// ValidateCode checks a 6-digit code against secret at time at, accepting
// skew time steps before and after the current one to tolerate clock drift.
func ValidateCode(code, secret string, at time.Time, skew uint) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// CodeAt computes the valid code for secret at time at. Exposed for tests
// and enrollment previews; production verification goes through
// ValidateCode.
func CodeAt(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// NewBackupCodes generates n single-use fallback codes. The plaintext is
// returned exactly once; only hashes are ever persisted.
func NewBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < n; i++ {
		var b strings.Builder
		b.Grow(BackupCodeLength)
		for j := 0; j < BackupCodeLength; j++ {
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, err
			}
			b.WriteByte(backupCodeAlphabet[idx.Int64()])
		}
		codes = append(codes, b.String())
	}
	return codes, nil
}

// Canonicalize normalizes user input before hashing: whitespace and
// separator dashes dropped, uppercased.
func Canonicalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}

// HashBackupCode returns the hex SHA-256 of the canonical form of code.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(Canonicalize(code)))
	return hex.EncodeToString(sum[:])
}
