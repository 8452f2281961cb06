package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the provided session token has expired.
	ErrTokenExpired = errors.New("auth: session token expired")
	// ErrTokenInvalid signals that the provided session token is invalid.
	ErrTokenInvalid = errors.New("auth: session token invalid")
)

// TokenVerifier verifies session bearer tokens and yields the identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed session tokens issued by the user session
// provider. The subject claim carries the user id.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewJWTVerifier constructs a verifier for the shared session secret. Issuer
// and audience checks apply only when configured non-empty.
func NewJWTVerifier(secret []byte, issuer, audience string) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: session secret is required")
	}
	return &JWTVerifier{
		secret:   secret,
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
	}, nil
}

// Verify parses and validates the token, returning the embedded identity.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if v == nil {
		return Identity{}, ErrTokenInvalid
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrTokenInvalid
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return Identity{}, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	if v.audience != "" && !containsAudience(claims.Audience, v.audience) {
		return Identity{}, fmt.Errorf("%w: audience mismatch", ErrTokenInvalid)
	}

	uid := strings.TrimSpace(claims.Subject)
	if uid == "" {
		return Identity{}, fmt.Errorf("%w: subject claim missing", ErrTokenInvalid)
	}
	return Identity{UID: uid, Email: strings.TrimSpace(claims.Email)}, nil
}

func containsAudience(audience jwt.ClaimStrings, want string) bool {
	for _, aud := range audience {
		if aud == want {
			return true
		}
	}
	return false
}

// InsecureVerifier accepts any well-formed token without signature checks.
// Local development only; the identity provider is mocked there.
type InsecureVerifier struct{}

// Verify extracts the subject claim without validating the signature.
func (InsecureVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	claims := &sessionClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	uid := strings.TrimSpace(claims.Subject)
	if uid == "" {
		return Identity{}, fmt.Errorf("%w: subject claim missing", ErrTokenInvalid)
	}
	return Identity{UID: uid, Email: strings.TrimSpace(claims.Email)}, nil
}
