// Package auth resolves the caller's subject id from a signed token.
//
// The engine never sees tokens: the CLI resolves identity here and hands
// the engine an already-trusted subject id.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SubjectClaim is the token claim carrying the caller's assigned subject.
const SubjectClaim = "custom:dispenserId"

var (
	// ErrMissingClaim means the token verified but carries no subject claim.
	ErrMissingClaim = errors.New("auth: token has no " + SubjectClaim + " claim")

	// ErrSubjectMismatch means the caller asked to act on a subject other
	// than the one assigned to them.
	ErrSubjectMismatch = errors.New("dispenser parameter must match users assigned dispenser")
)

// Claims are the token claims read by Verifier.
type Claims struct {
	DispenserID string `json:"custom:dispenserId"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTimeFunc overrides the clock used for exp/nbf checks.
func WithTimeFunc(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a verifier for tokens signed with secret.
func NewVerifier(secret string, opts ...VerifierOption) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth: HS256 requires a secret")
	}
	v := &Verifier{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify parses and validates a token and returns its claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, errors.New("auth: token cannot be empty")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("auth: invalid token")
	}
	return claims, nil
}

// Resolve returns the subject the caller may act on.
//
// requested is the subject named by the caller; when non-empty it must
// match the token's claim.
func (v *Verifier) Resolve(token, requested string) (string, error) {
	claims, err := v.Verify(token)
	if err != nil {
		return "", err
	}
	subject := strings.TrimSpace(claims.DispenserID)
	if subject == "" {
		return "", ErrMissingClaim
	}
	if requested != "" && requested != subject {
		return "", ErrSubjectMismatch
	}
	return subject, nil
}

// Sign issues an HS256 token assigning subjectID, valid for ttl.
// Used by operators and tests to mint caller tokens.
func (v *Verifier) Sign(subjectID string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		DispenserID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
