package sessionkit

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// Claims is the structured claim set sessionkit reads from platform-issued
// access credentials.
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
}

var unverifiedParser = jwt.NewParser(jwt.WithoutClaimsValidation())

// DecodeClaims decodes a token's claims without verifying its signature. It is
// a cheap local pre-check only; never treat the result as authoritative.
func DecodeClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := unverifiedParser.ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}
	return claims, nil
}

// DecodeExpiry extracts the expiry claim without network access.
func DecodeExpiry(token string) (time.Time, error) {
	claims, err := DecodeClaims(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no expiry claim", errors.CategoryBadInput).
			WithTextCode(TextCodeTokenMalformed)
	}
	return claims.ExpiresAt.Time, nil
}

// IsCredentialValid reports whether the token's expiry claim is still in the
// future. It is used as a local fast path before platform calls, never as the
// sole authority for whether a call is allowed.
func (m *Manager) IsCredentialValid(token string) bool {
	expiresAt, err := DecodeExpiry(token)
	if err != nil {
		return false
	}
	return expiresAt.After(m.clock())
}

// roleClaim pulls the role claim out of an access credential, or "" when the
// token cannot be decoded.
func roleClaim(token string) string {
	claims, err := DecodeClaims(token)
	if err != nil {
		return ""
	}
	return claims.Role
}
