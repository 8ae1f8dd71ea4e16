// Package token mints and verifies the signed access and refresh tokens the
// core hands to clients. The codec is deliberately storage-free: revocation
// is a separate, explicit ledger lookup the caller performs after Verify.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type discriminates access tokens from refresh tokens inside the claim set,
// so one can never be replayed as the other.
type Type string

const (
	// TypeAccess marks short-lived bearer tokens.
	TypeAccess Type = "access"
	// TypeRefresh marks long-lived tokens redeemable for new access tokens.
	TypeRefresh Type = "refresh"
)

var (
	// ErrMalformed is returned for input that is not a well-formed token.
	ErrMalformed = errors.New("token: malformed")
	// ErrBadSignature is returned when the signature does not verify.
	ErrBadSignature = errors.New("token: bad signature")
	// ErrExpired is returned for a structurally valid token past its expiry.
	ErrExpired = errors.New("token: expired")
	// ErrWrongType is returned when a valid token carries the wrong type
	// discriminator for the operation, e.g. a refresh token presented as a
	// bearer token.
	ErrWrongType = errors.New("token: unexpected token type")
)

// Claims is the signed claim set. Subject carries the principal id and ID
// carries the jti used as the revocation key.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType Type   `json:"typ"`
	jwt.RegisteredClaims
}

// Config holds the signing parameters.
type Config struct {
	// SigningSecret is the HMAC-SHA256 key. At least 32 bytes.
	SigningSecret []byte
	Issuer        string
	// Leeway tolerated on expiry checks, to absorb clock drift between
	// issuing and verifying hosts. Optional.
	Leeway time.Duration
}

// Codec signs and verifies tokens. Expiry is always evaluated against the
// injected clock, never the wall clock, so behavior is deterministic under
// test.
type Codec struct {
	config Config
	now    func() time.Time
}

// NewCodec validates cfg and builds a codec on the given clock.
func NewCodec(cfg Config, now func() time.Time) (*Codec, error) {
	if len(cfg.SigningSecret) < 32 {
		return nil, errors.New("token: signing secret must be at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: leeway out of range")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{config: cfg, now: now}, nil
}

// Mint signs a token of the given type for subject. A fresh random jti is
// generated on every call; callers never supply one. The returned Claims
// mirror what was signed so the caller can record the jti and expiry.
func (c *Codec) Mint(subject, email, role string, typ Type, ttl time.Duration) (string, Claims, error) {
	if ttl <= 0 {
		return "", Claims{}, errors.New("token: ttl must be positive")
	}

	now := c.now()
	claims := Claims{
		Email:     email,
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.SigningSecret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, claims, nil
}

// Verify checks the signature first, then expiry against the injected clock,
// then the type discriminator. It never consults any revocation state.
func (c *Codec) Verify(tokenStr string, want Type) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return c.config.SigningSecret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrMalformed
	}
	if claims.TokenType != want {
		return nil, ErrWrongType
	}
	return claims, nil
}
