// Package password provides the argon2id implementation of the core's
// Hasher collaborator. The encoded form follows the PHC string convention,
// so digests produced elsewhere with standard parameters verify cleanly.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID  = "argon2id"
	minPassBytes = 10
)

// ErrPasswordPolicy is returned by Hash for passwords below the minimum
// length. Mapped to a validation failure by the engine.
var ErrPasswordPolicy = errors.New("password: must be at least 10 bytes")

// Config carries the argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns interactive-login costs: 64 MiB, 2 passes.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        2,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes and verifies passwords with argon2id.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < 8*1024:
		return nil, errors.New("password: memory must be >= 8192 KiB")
	case cfg.Time < 1:
		return nil, errors.New("password: time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password: parallelism must be >= 1")
	case cfg.SaltLength < 16:
		return nil, errors.New("password: salt length must be >= 16")
	case cfg.KeyLength < 16:
		return nil, errors.New("password: key length must be >= 16")
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a fresh-salted digest in PHC encoded form.
func (a *Argon2) Hash(plaintext string) (string, error) {
	if len(plaintext) < minPassBytes {
		return "", ErrPasswordPolicy
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(plaintext), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the digest with the parameters embedded in encoded and
// compares in constant time. A malformed digest is an error, not a mismatch.
func (a *Argon2) Verify(plaintext, encoded string) (bool, error) {
	memory, timeCost, parallelism, salt, key, err := parse(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(plaintext), salt, timeCost, memory, parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

func parse(encoded string) (memory, timeCost uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return 0, 0, 0, nil, nil, errors.New("password: invalid digest format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, errors.New("password: unsupported argon2 version")
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &parallelism); err != nil {
		return 0, 0, 0, nil, nil, errors.New("password: invalid digest parameters")
	}
	if memory < 8*1024 || timeCost < 1 || parallelism < 1 {
		return 0, 0, 0, nil, nil, errors.New("password: digest parameters below minimum")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < 16 {
		return 0, 0, 0, nil, nil, errors.New("password: invalid salt")
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < 16 {
		return 0, 0, 0, nil, nil, errors.New("password: invalid key")
	}
	return memory, timeCost, parallelism, salt, key, nil
}
