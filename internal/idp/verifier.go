// Package idp verifies ID tokens minted by the third-party identity provider.
package idp

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/auth"
)

// Claims are the ID token fields consumed at sign-in.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// Verifier checks signature, issuer, audience and expiry of ID tokens.
type Verifier struct {
	issuer   string
	audience string
	hmacKey  []byte
	rsaKey   *rsa.PublicKey
	leeway   time.Duration
	now      func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier) error

// WithHMACSecret accepts HS256 tokens signed with secret.
func WithHMACSecret(secret string) Option {
	return func(v *Verifier) error {
		if strings.TrimSpace(secret) == "" {
			return nil
		}
		v.hmacKey = []byte(secret)
		return nil
	}
}

// WithRSAPublicKeyPEM accepts RS256 tokens verifiable with the PEM public key.
func WithRSAPublicKeyPEM(pemData string) Option {
	return func(v *Verifier) error {
		if strings.TrimSpace(pemData) == "" {
			return nil
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemData))
		if err != nil {
			return fmt.Errorf("idp: parse public key: %w", err)
		}
		v.rsaKey = key
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(v *Verifier) error {
		if fn != nil {
			v.now = fn
		}
		return nil
	}
}

// New returns a Verifier. At least one key option is required.
func New(issuer, audience string, opts ...Option) (*Verifier, error) {
	v := &Verifier{
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		leeway:   30 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	if v.hmacKey == nil && v.rsaKey == nil {
		return nil, errors.New("idp: no verification key configured")
	}
	if v.issuer == "" || v.audience == "" {
		return nil, errors.New("idp: issuer and audience are required")
	}
	return v, nil
}

// Verify validates idToken and returns the asserted identity.
func (v *Verifier) Verify(ctx context.Context, idToken string) (auth.ExternalIdentity, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return auth.ExternalIdentity{}, fmt.Errorf("%w: id_token is required", apperr.ErrInvalidInput)
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.methods()),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	_, err := parser.ParseWithClaims(idToken, &claims, v.keyFunc)
	if err != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("%w: id token rejected: %v", apperr.ErrUnauthenticated, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return auth.ExternalIdentity{}, fmt.Errorf("%w: id token carries no subject", apperr.ErrUnauthenticated)
	}
	if strings.TrimSpace(claims.Email) == "" {
		return auth.ExternalIdentity{}, fmt.Errorf("%w: id token carries no email", apperr.ErrInvalidInput)
	}
	return auth.ExternalIdentity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		PhotoURL:      claims.Picture,
		EmailVerified: claims.EmailVerified,
	}, nil
}

func (v *Verifier) methods() []string {
	var out []string
	if v.hmacKey != nil {
		out = append(out, jwt.SigningMethodHS256.Alg())
	}
	if v.rsaKey != nil {
		out = append(out, jwt.SigningMethodRS256.Alg())
	}
	return out
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.hmacKey != nil {
			return v.hmacKey, nil
		}
	case *jwt.SigningMethodRSA:
		if v.rsaKey != nil {
			return v.rsaKey, nil
		}
	}
	return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
}
