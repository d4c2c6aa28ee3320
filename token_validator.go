package sessionkit

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenValidator verifies access credentials and extracts claims without
// tying callers to a specific signing setup. The Manager's local expiry
// pre-check never replaces validation; use a TokenValidator wherever a
// verified identity is required.
type TokenValidator interface {
	Validate(tokenString string) (*Claims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*Claims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (*Claims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

// JWKSValidatorConfig configures a JWKS-backed validator.
type JWKSValidatorConfig struct {
	JWKSetURL       string
	Issuer          string
	Audience        []string
	RefreshInterval time.Duration
	Logger          Logger
}

// JWKSValidator validates platform-issued JWTs against a remote JWK Set.
type JWKSValidator struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience []string
}

// NewJWKSValidator fetches the key set and returns a validator that keeps it
// refreshed in the background.
func NewJWKSValidator(cfg JWKSValidatorConfig) (*JWKSValidator, error) {
	if cfg.JWKSetURL == "" {
		return nil, errors.New("jwk set url is required", errors.CategoryBadInput)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = defLogger{}
	}

	refreshInterval := cfg.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = time.Hour
	}

	jwks, err := keyfunc.Get(cfg.JWKSetURL, keyfunc.Options{
		RefreshInterval:   refreshInterval,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Error("jwk set refresh failed: %v", err)
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to fetch JWK set")
	}

	return &JWKSValidator{
		jwks:     jwks,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

// Validate satisfies the TokenValidator interface.
func (v *JWKSValidator) Validate(tokenString string) (*Claims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if v.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(v.issuer))
	}
	if len(v.audience) == 1 {
		parserOptions = append(parserOptions, jwt.WithAudience(v.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.jwks.Keyfunc, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	if len(v.audience) > 1 && !matchesAudience(claims.Audience, v.audience) {
		return nil, errors.Wrap(jwt.ErrTokenInvalidAudience, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}
	return claims, nil
}

// matchesAudience reports whether the token carries at least one of the
// expected audiences. The parser enforces a single expected audience natively;
// multi-audience configs are checked after signature verification.
func matchesAudience(have jwt.ClaimStrings, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// Shutdown stops the background key refresh.
func (v *JWKSValidator) Shutdown() {
	v.jwks.EndBackground()
}

// MultiTokenValidator tries validators in order until one succeeds. Malformed
// tokens fall through to the next validator; every other failure is final.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator filters nil validators and returns a composite validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string) (*Claims, error) {
	var lastErr error
	for _, v := range m.validators {
		claims, err := v.Validate(tokenString)
		if err == nil {
			return claims, nil
		}
		if errors.Is(err, ErrTokenMalformed) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrTokenMalformed
}
