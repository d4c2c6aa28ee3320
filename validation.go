package sessionkit

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// Principal is a normalized sign-in identifier: an email address or an E.164
// phone number, exactly one of which is set.
type Principal struct {
	Email string
	Phone string
}

func (p Principal) String() string {
	if p.Email != "" {
		return p.Email
	}
	return p.Phone
}

// NormalizePrincipal validates and canonicalizes a raw identifier. Emails are
// lowercased; phone numbers must parse as E.164 and are reformatted.
func NormalizePrincipal(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrInvalidPrincipal
	}

	if strings.Contains(raw, "@") {
		if err := validation.Validate(raw, validation.Required, is.Email); err != nil {
			return Principal{}, errors.Wrap(err, ErrInvalidPrincipal.Category, ErrInvalidPrincipal.Message).
				WithTextCode(ErrInvalidPrincipal.TextCode)
		}
		return Principal{Email: strings.ToLower(raw)}, nil
	}

	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return Principal{}, errors.Wrap(err, ErrInvalidPrincipal.Category, ErrInvalidPrincipal.Message).
			WithTextCode(ErrInvalidPrincipal.TextCode)
	}
	if !phonenumbers.IsValidNumber(num) {
		return Principal{}, ErrInvalidPrincipal
	}
	return Principal{Phone: phonenumbers.Format(num, phonenumbers.E164)}, nil
}

type signInRequest struct {
	Principal string
	Secret    string
}

func (r signInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Principal, validation.Required, validation.Length(3, 254)),
		validation.Field(&r.Secret, validation.Required, validation.Length(6, 72)),
	)
}

type verifyOTPRequest struct {
	Principal string
	Code      string
	Purpose   OTPPurpose
}

func (r verifyOTPRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Principal, validation.Required, validation.Length(3, 254)),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 64)),
		validation.Field(&r.Purpose, validation.Required, validation.In(
			OTPPurposeInvite,
			OTPPurposeRecovery,
			OTPPurposeSignup,
			OTPPurposeMagicLink,
			OTPPurposeEmail,
		)),
	)
}

type setSessionRequest struct {
	AccessToken  string
	RefreshToken string
}

func (r setSessionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AccessToken, validation.Required),
	)
}

func wrapValidationErr(err error) error {
	if err == nil {
		return nil
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}
	return errors.Wrap(err, errors.CategoryValidation, "invalid request")
}
