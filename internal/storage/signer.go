package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// accessClaims is the payload of a signed download token.
type accessClaims struct {
	Key       string `json:"key"`
	Watermark string `json:"wm,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and checks HS256 download tokens.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer. A nil clock uses time.Now.
func NewSigner(secret string, now func() time.Time) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{secret: []byte(secret), now: now}, nil
}

// Sign returns a token granting access to key until expiresAt.
// The exp claim has second precision; callers round expiresAt up.
func (s *Signer) Sign(key, watermark string, expiresAt time.Time) (string, error) {
	claims := accessClaims{
		Key:       key,
		Watermark: watermark,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token. A token is valid up to and including its exp
// instant and rejected once now is past it.
func (s *Signer) Verify(tokenString string) (*SignedAccess, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// jwt rejects at now >= exp; expiry is checked below instead.
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidSignature)
	}
	now := s.now()
	if claims.IssuedAt != nil && now.Before(claims.IssuedAt.Time) {
		return nil, fmt.Errorf("%w: issued in the future", ErrInvalidSignature)
	}
	if now.After(claims.ExpiresAt.Time) {
		return nil, ErrSignatureExpired
	}
	if claims.Key == "" {
		return nil, fmt.Errorf("%w: missing key", ErrInvalidSignature)
	}

	return &SignedAccess{
		Key:       claims.Key,
		Watermark: claims.Watermark,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}
