// Package auth resolves the acting user of a request from a bearer token.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/motor-valuation/internal/common"
)

const codeUnauthorized = "UNAUTHORIZED"

// Verifier checks HMAC signed access tokens issued by the identity provider.
type Verifier struct {
	secret    []byte
	validator TokenValidator
	now       func() time.Time
}

// NewVerifier builds an HS256 verifier. Issuer and audience are only enforced when set.
func NewVerifier(secret, issuer, audience string, clockSkew time.Duration) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	return &Verifier{
		secret: []byte(secret),
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		now: time.Now,
	}, nil
}

// WithNow overrides the clock used for expiry checks.
func (v *Verifier) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

func unauthorized(err error) *common.AppError {
	return common.NewAppError(codeUnauthorized, "invalid token", http.StatusUnauthorized, err)
}

// ParseAccessToken validates token and returns its subject.
func (v *Verifier) ParseAccessToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", common.NewAppError(codeUnauthorized, "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", unauthorized(err)
	}
	if algorithm != v.validator.Algorithm {
		return "", unauthorized(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return "", unauthorized(err)
	}
	if err := v.validator.Validate(parsed, algorithm, v.now()); err != nil {
		return "", unauthorized(err)
	}
	if parsed.Subject() == "" {
		return "", unauthorized(errors.New("token has no subject"))
	}
	return parsed.Subject(), nil
}

// Sign issues a token for subject valid for ttl. Used by tooling and tests.
func (v *Verifier) Sign(subject string, ttl time.Duration) (string, error) {
	now := v.now()
	builder := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if v.validator.Issuer != "" {
		builder = builder.Issuer(v.validator.Issuer)
	}
	if v.validator.Audience != "" {
		builder = builder.Audience([]string{v.validator.Audience})
	}
	token, err := builder.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(v.validator.Algorithm, v.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		switch {
		case alg == "":
			return "", errors.New("auth: token missing algorithm")
		case alg == jwa.NoSignature:
			return "", errors.New("auth: token uses none algorithm")
		case algorithm == "":
			algorithm = alg
		case algorithm != alg:
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
