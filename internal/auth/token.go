package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// PurposeAccess marks tokens accepted by the general access decision
	// point; PurposeReset marks single-purpose password-reset tokens.
	PurposeAccess = "access"
	PurposeReset  = "reset"

	// ResetTokenTTL is fixed and not configurable.
	ResetTokenTTL = 30 * time.Minute

	defaultIssuer = "lingua"
)

// Claims is the signed payload carried by every token the service issues.
// Subject holds the user's email.
type Claims struct {
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TTLRemaining returns how long the token stays valid from now; zero or
// negative means it has already expired.
func (c *Claims) TTLRemaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

// TokenCodec signs and verifies HS256 tokens with an injected secret.
// The signing key is never read from package-level state.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenCodec builds a codec. issuer and now are optional; empty issuer
// falls back to the service default and nil now falls back to time.Now.
func NewTokenCodec(secret []byte, issuer string, now func() time.Time) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = defaultIssuer
	}
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{secret: secret, issuer: issuer, now: now}, nil
}

// Issue signs a token for subject with the given role, purpose and ttl,
// returning the compact JWT and its expiry instant.
func (c *TokenCodec) Issue(subject, role, purpose string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: token subject is required", ErrInvalidInput)
	}
	if purpose != PurposeAccess && purpose != PurposeReset {
		return "", time.Time{}, fmt.Errorf("%w: unknown token purpose %q", ErrInvalidInput, purpose)
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: token ttl must be positive", ErrInvalidInput)
	}

	now := c.now().UTC()
	expires := now.Add(ttl)
	claims := Claims{
		Role:    role,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses and validates a compact token. Expired tokens fail with
// ErrTokenExpired; every other failure collapses to ErrInvalidToken.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithTimeFunc(c.now),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
