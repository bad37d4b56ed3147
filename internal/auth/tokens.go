package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// minSecretLength matches the configuration check on security.jwt.secret.
const minSecretLength = 32

// Claims is the signed session payload.
type Claims struct {
	jwt.RegisteredClaims
	OrgID  string `json:"org"`
	RoleID string `json:"role"`
}

// Identity is what a session token asserts.
type Identity struct {
	UserID string
	OrgID  string
	RoleID string
}

// IssuedToken is a freshly signed token and its metadata.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies HS256 session tokens with one
// process-wide secret. It keeps no per-token state.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. The secret comes from configuration.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d characters", minSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the configured token lifetime.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for id that expires after the issuer's TTL.
func (i *TokenIssuer) Issue(id Identity) (IssuedToken, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
		OrgID:  id.OrgID,
		RoleID: id.RoleID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("signing token: %w", err)
	}
	// NumericDate truncates to seconds.
	return IssuedToken{Token: signed, ID: jti, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Parse verifies the signature, then the expiry, and returns the claims.
//
// Errors are exactly one of ErrTokenMalformed, ErrTokenBadSignature or
// ErrTokenExpired. Because the signature is checked first, a tampered
// token that has also expired reports ErrTokenBadSignature.
func (i *TokenIssuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !parsed.Valid {
		return nil, ErrTokenBadSignature
	}
	if claims.Subject == "" || claims.OrgID == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing identity claims", ErrTokenMalformed)
	}
	return claims, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}
