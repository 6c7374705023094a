// Package token issues and verifies the short-lived signed tokens that gate
// photo delivery. A token is a bearer capability: signature and expiry are the
// whole of its validity, nothing is stored server-side.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
)

// PhotoClaims binds a derivative path and its owner to an expiry. Device is an
// optional client-class tag checked as a defense-in-depth signal.
type PhotoClaims struct {
	Path   string `json:"path"`
	UserID string `json:"userId"`
	Device string `json:"device,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies photo access tokens with a shared HMAC secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), now: time.Now}
}

// WithClock overrides the codec's time source. Used by tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Issue mints a token for one derivative path, valid for ttl.
func (c *Codec) Issue(path, ownerID, device string, ttl time.Duration) (string, error) {
	if path == "" || ownerID == "" {
		return "", fmt.Errorf("token: path and owner are required")
	}
	now := c.now()
	claims := PhotoClaims{
		Path:   path,
		UserID: ownerID,
		Device: device,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims. Expiry is checked
// by the library and then once more explicitly.
func (c *Codec) Verify(tokenStr string) (*PhotoClaims, error) {
	claims := &PhotoClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", errs.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrTokenMalformed, err)
	}

	if claims.Path == "" || claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing required claims", errs.ErrTokenMalformed)
	}

	// Redundant explicit expiry comparison on top of the library check.
	if claims.ExpiresAt == nil || c.now().After(claims.ExpiresAt.Time) {
		return nil, errs.ErrTokenExpired
	}

	return claims, nil
}
