package authcore

import (
	"crypto/subtle"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const csrfPurpose = "csrf"

// csrfClaims is the payload of a double-submit token. The nonce makes every
// issued token distinct; the purpose claim keeps a CSRF token from passing
// anywhere a session token is expected and vice versa.
type csrfClaims struct {
	Purpose string `json:"purpose"`
	Nonce   string `json:"nonce"`
	jwt.RegisteredClaims
}

// IssueCsrfToken mints a signed, time-boxed token for the double-submit
// pattern. The caller delivers it twice: in a cookie and in a form field or
// header. No server-side state is kept.
func (e *Engine) IssueCsrfToken() (string, error) {
	now := e.clock.Now()
	claims := csrfClaims{
		Purpose: csrfPurpose,
		Nonce:   uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.config.Token.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(e.config.Csrf.TTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.csrfSecret)
	if err != nil {
		return "", fmt.Errorf("%w: sign csrf token: %v", ErrInternal, err)
	}
	e.metricInc(MetricCsrfIssued)
	return signed, nil
}

// ValidateCsrfToken checks a double-submit pair: the token from the cookie
// and its echo from the header or form field. Both copies must match in
// constant time, and the token itself must carry a valid signature, an
// unexpired window, and the csrf purpose claim. Failure reasons are logged,
// never returned.
func (e *Engine) ValidateCsrfToken(issued, echo string) bool {
	if issued == "" || echo == "" {
		e.metricInc(MetricCsrfRejected)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(issued), []byte(echo)) != 1 {
		e.metricInc(MetricCsrfRejected)
		e.log.Debug("csrf rejected", zap.String("reason", "echo mismatch"))
		return false
	}

	var claims csrfClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(e.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(e.config.Token.Issuer),
	)
	if _, err := parser.ParseWithClaims(issued, &claims, func(*jwt.Token) (any, error) {
		return e.csrfSecret, nil
	}); err != nil {
		e.metricInc(MetricCsrfRejected)
		e.log.Debug("csrf rejected", zap.NamedError("reason", err))
		return false
	}
	if claims.Purpose != csrfPurpose {
		e.metricInc(MetricCsrfRejected)
		e.log.Debug("csrf rejected", zap.String("reason", "wrong purpose"))
		return false
	}
	return true
}
