// Package token implements the self-contained bearer token subsystem
// (C1): sign and verify credentials whose validation requires no I/O
// beyond a constant-time signature check. Two disjoint claims shapes are
// supported — UserSessionClaims and APIKeyClaims — distinguished by the
// presence of an api_key_id field, per SPEC_FULL.md §4.1/§3.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned by Verify on signature mismatch, malformed
// structure, or expiry. exp is checked with zero skew tolerance.
var ErrInvalidToken = errors.New("invalid token")

// SigningError wraps an internal cryptographic failure from Sign. Sign
// fails only this way — it never fails on well-formed input.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return fmt.Sprintf("signing token: %v", e.Err) }
func (e *SigningError) Unwrap() error { return e.Err }

// Claims is the tagged union over the two disjoint claims shapes. Callers
// must type-switch on the concrete type; there is no common "subject"
// field access that lets a caller treat one shape as the other.
type Claims interface {
	claimsMarker()
}

// UserSessionClaims carries a user session identity, audience the
// management API, short-lived.
type UserSessionClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

func (UserSessionClaims) claimsMarker() {}

// APIKeyClaims carries an API-key identity scoped to one organization,
// used to authorize every /redis/* request via the gate (C4).
type APIKeyClaims struct {
	APIKeyID       uuid.UUID `json:"api_key_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Scopes         []string  `json:"scopes"`
	KeyPrefix      string    `json:"key_prefix"`
}

func (APIKeyClaims) claimsMarker() {}

// wireClaims is the on-the-wire shape: registered JWT claims plus the
// union of both claims shapes' fields, with api_key_id's presence
// distinguishing which shape the caller meant.
type wireClaims struct {
	Subject        string    `json:"sub,omitempty"`
	Email          string    `json:"email,omitempty"`
	APIKeyID       uuid.UUID `json:"api_key_id,omitempty"`
	OrganizationID uuid.UUID `json:"organization_id,omitempty"`
	Scopes         []string  `json:"scopes,omitempty"`
	KeyPrefix      string    `json:"key_prefix,omitempty"`
}

// DefaultAPIKeyTTL is the default expiry for API-key tokens when the
// caller does not specify one, per SPEC_FULL.md §3 ("default one year").
const DefaultAPIKeyTTL = 365 * 24 * time.Hour

// Service issues and verifies HS256-signed bearer tokens using a single
// process-wide symmetric secret, matching the teacher's SessionManager.
type Service struct {
	signingKey []byte
}

// NewService creates a token Service. The secret must be at least 32
// bytes, since HS256 security degrades below that key length.
func NewService(secret string) (*Service, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("signing secret must be at least 32 bytes, got %d", len(secret))
	}
	return &Service{signingKey: []byte(secret)}, nil
}

// GenerateDevSecret generates a random 32-byte hex-encoded secret for
// local development when JWT_SECRET is unset.
func GenerateDevSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Sign produces a compact signed token from claims, with iat/exp embedded.
// ttl of zero uses DefaultAPIKeyTTL for APIKeyClaims, or one hour for
// UserSessionClaims.
func (s *Service) Sign(claims Claims, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: s.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", &SigningError{Err: err}
	}

	now := time.Now()
	if ttl == 0 {
		switch claims.(type) {
		case APIKeyClaims:
			ttl = DefaultAPIKeyTTL
		default:
			ttl = time.Hour
		}
	}

	registered := jwt.Claims{
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
		Issuer:   "redisgate",
	}

	var wire wireClaims
	switch c := claims.(type) {
	case UserSessionClaims:
		wire.Subject = c.Subject
		wire.Email = c.Email
		registered.Subject = c.Subject
	case APIKeyClaims:
		wire.APIKeyID = c.APIKeyID
		wire.OrganizationID = c.OrganizationID
		wire.Scopes = c.Scopes
		wire.KeyPrefix = c.KeyPrefix
		registered.Subject = c.APIKeyID.String()
	default:
		return "", &SigningError{Err: fmt.Errorf("unsupported claims type %T", claims)}
	}

	token, err := jwt.Signed(signer).Claims(registered).Claims(wire).Serialize()
	if err != nil {
		return "", &SigningError{Err: err}
	}
	return token, nil
}

// Verify parses raw, checks the HS256 signature, and checks exp > now with
// zero skew. It returns the concrete Claims shape — UserSessionClaims when
// no api_key_id is present, APIKeyClaims otherwise.
func (s *Service) Verify(raw string) (Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, ErrInvalidToken
	}

	var registered jwt.Claims
	var wire wireClaims
	if err := tok.Claims(s.signingKey, &registered, &wire); err != nil {
		return nil, ErrInvalidToken
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: "redisgate",
		Time:   time.Now(),
	}, 0); err != nil {
		return nil, ErrInvalidToken
	}

	if wire.APIKeyID != uuid.Nil {
		return APIKeyClaims{
			APIKeyID:       wire.APIKeyID,
			OrganizationID: wire.OrganizationID,
			Scopes:         wire.Scopes,
			KeyPrefix:      wire.KeyPrefix,
		}, nil
	}

	return UserSessionClaims{
		Subject: wire.Subject,
		Email:   wire.Email,
	}, nil
}
