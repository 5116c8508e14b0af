// Package auth verifies connect-time bearer credentials. Token issuance is
// owned by the dashboard's auth service; this package only checks signatures
// and expiry.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Dekunlebells/okaygoal/internal/domain"
)

// Claims carried by okaygoal access tokens.
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"user_id"`
}

// Verifier validates HS256-signed access tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the given shared secret. An empty secret
// yields a verifier that rejects every token, which degrades all connections
// to anonymous.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the token and returns the identity it carries.
// The identity is the user_id claim, falling back to the subject.
func (v *Verifier) Verify(token string) (string, error) {
	if len(v.secret) == 0 {
		return "", domain.ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", domain.ErrInvalidToken
	}

	identity := claims.UserID
	if identity == "" {
		identity = claims.Subject
	}
	if identity == "" {
		return "", fmt.Errorf("%w: token carries no identity", domain.ErrInvalidToken)
	}
	return identity, nil
}
