package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	verifyIssuer     = "gatehouse"
	verifyPurpose    = "email_verify"
	defaultVerifyTTL = 30 * time.Minute
)

type verifyClaims struct {
	Purpose string `json:"purpose"`
	Email   string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier issues and confirms email-verification tokens. These are
// short-lived HS256 JWTs handed to an external mailer. They are never
// accepted as API credentials; the opaque bearer token stays the only
// one.
type Verifier struct {
	secret []byte
	store  VerificationStore
	ttl    time.Duration
	now    func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifyTTL overrides the verification token lifetime.
func WithVerifyTTL(ttl time.Duration) VerifierOption {
	return func(v *Verifier) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithVerifyClock overrides the time source (useful for tests).
func WithVerifyClock(fn func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewVerifier constructs a Verifier. The signing secret is required.
func NewVerifier(secret string, store VerificationStore, opts ...VerifierOption) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("verification secret is required")
	}
	if store == nil {
		return nil, errors.New("verification store is required")
	}
	v := &Verifier{
		secret: []byte(secret),
		store:  store,
		ttl:    defaultVerifyTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Issue signs a verification token for the user's current email address.
func (v *Verifier) Issue(userID uuid.UUID, email string) (string, error) {
	if userID == uuid.Nil {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := v.now().UTC()
	claims := verifyClaims{
		Purpose: verifyPurpose,
		Email:   strings.TrimSpace(strings.ToLower(email)),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    verifyIssuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign verification token: %w", err)
	}
	return signed, nil
}

// Confirm validates a verification token and stamps the user's email as
// verified. Any signature, claim or expiry problem comes back as
// ErrInvalidInput.
func (v *Verifier) Confirm(ctx context.Context, token string) (uuid.UUID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return uuid.Nil, fmt.Errorf("%w: verification token is required", ErrInvalidInput)
	}
	parsed, err := jwt.ParseWithClaims(token, &verifyClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: unexpected signing method", ErrInvalidInput)
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid verification token", ErrInvalidInput)
	}
	claims, ok := parsed.Claims.(*verifyClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("%w: invalid verification token", ErrInvalidInput)
	}
	if claims.Purpose != verifyPurpose || claims.Issuer != verifyIssuer {
		return uuid.Nil, fmt.Errorf("%w: invalid verification token", ErrInvalidInput)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid verification token", ErrInvalidInput)
	}
	if err := v.store.MarkEmailVerified(ctx, userID, v.now().UTC()); err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}
