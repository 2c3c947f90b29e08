package oauth2

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"golang.org/x/crypto/hkdf"
)

const stateIssuer = "sso-portal"

// StateCodec mints and checks the anti-forgery state values bound to each
// login attempt. A state is a compact HS256 JWT carrying only registered
// claims: a random jti so no two states ever collide, plus iat/exp for the
// self-contained validity check. Nothing is stored server-side.
type StateCodec struct {
	key    []byte
	leeway time.Duration
	now    func() time.Time
}

// NewStateCodec derives a dedicated 32-byte signing key from the deployment
// secret via HKDF, keyed by purpose so state tokens can never be replayed
// as session cookies or vice versa.
func NewStateCodec(secret []byte, leeway time.Duration) (*StateCodec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: state secret is empty", ErrConfig)
	}
	key, err := DeriveKey(secret, "state-token")
	if err != nil {
		return nil, err
	}
	if leeway < 0 {
		leeway = 0
	}
	return &StateCodec{key: key, leeway: leeway, now: time.Now}, nil
}

// DeriveKey expands the deployment secret into a purpose-bound 32-byte key.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return key, nil
}

// Generate mints a fresh state value valid for the given window.
func (c *StateCodec) Generate(validity time.Duration) (string, error) {
	if validity <= 0 {
		return "", fmt.Errorf("%w: state validity must be positive", ErrConfig)
	}
	now := c.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    stateIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Validate checks signature and expiry and returns the state's unique id
// and expiry so callers can enforce one-time use. Any failure comes back
// as an ErrInvalidAttempt, never a panic.
func (c *StateCodec) Validate(token string) (id string, expiresAt time.Time, err error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", time.Time{}, fmt.Errorf("%w: state expired", ErrInvalidAttempt)
		}
		return "", time.Time{}, fmt.Errorf("%w: state rejected: %v", ErrInvalidAttempt, err)
	}
	if !parsed.Valid || claims.ID == "" || claims.ExpiresAt == nil {
		return "", time.Time{}, fmt.Errorf("%w: state rejected: incomplete claims", ErrInvalidAttempt)
	}
	return claims.ID, claims.ExpiresAt.Time, nil
}
