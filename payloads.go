package auth

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// RegisterRequest is the payload of a registration.
type RegisterRequest struct {
	Email                string `json:"email" form:"email"`
	DisplayName          string `json:"display_name" form:"display_name"`
	Password             string `json:"password" form:"password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation"`
}

// Normalize trims the display name and lower cases the email. Passwords are
// left untouched.
func (r RegisterRequest) Normalize() RegisterRequest {
	r.Email = NormalizeEmail(r.Email)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	return r
}

func (r RegisterRequest) Validate() error {
	return r.ValidateWithPasswordLimit(0)
}

// ValidateWithPasswordLimit also caps the password at maxPasswordBytes when
// the value is positive.
func (r RegisterRequest) ValidateWithPasswordLimit(maxPasswordBytes int) error {
	passwordRules := []validation.Rule{validation.Required, validation.RuneLength(6, 0)}
	if maxPasswordBytes > 0 {
		passwordRules = append(passwordRules,
			validation.Length(0, maxPasswordBytes).Error(fmt.Sprintf("must be at most %d bytes", maxPasswordBytes)),
		)
	}

	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.DisplayName, validation.Required, validation.RuneLength(2, 100)),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.PasswordConfirmation,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// LoginRequest is the payload of a login.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Normalize lower cases the email.
func (r LoginRequest) Normalize() LoginRequest {
	r.Email = NormalizeEmail(r.Email)
	return r
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// VerificationRequest asks for a new verification link.
type VerificationRequest struct {
	Email string `json:"email" form:"email"`
}

// Normalize lower cases the email.
func (r VerificationRequest) Normalize() VerificationRequest {
	r.Email = NormalizeEmail(r.Email)
	return r
}

func (r VerificationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// VerifyEmailRequest carries either a raw token, a full signed link or the
// query parameters of one. Link and Params take precedence over Token.
type VerifyEmailRequest struct {
	Token  string      `json:"token" form:"token"`
	Link   string      `json:"link" form:"link"`
	Params *LinkParams `json:"-"`
}

func (r VerifyEmailRequest) Validate() error {
	if strings.TrimSpace(r.Token) == "" && strings.TrimSpace(r.Link) == "" && r.Params == nil {
		return validation.Errors{
			"token": errors.New("token or link is required"),
		}
	}
	return nil
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

type validatable interface {
	Validate() error
}

type validatorFunc func() error

func (f validatorFunc) Validate() error { return f() }

// passwordLimiter is implemented by hashers that cannot take arbitrarily long
// passwords.
type passwordLimiter interface {
	MaxPasswordBytes() int
}

func maxPasswordBytes(h PasswordHasher) int {
	if l, ok := h.(passwordLimiter); ok {
		return l.MaxPasswordBytes()
	}
	return 0
}

// validatePayload runs payload validation and converts field errors into a
// single ErrValidationFailed clone.
func validatePayload(p validatable) error {
	err := p.Validate()
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for name, fieldErr := range fieldErrs {
			if fieldErr != nil {
				fields[name] = fieldErr.Error()
			}
		}
		return NewValidationError(fields)
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to validate payload")
}
