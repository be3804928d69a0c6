package auth

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidationFailed   = "AUTH_VALIDATION_FAILED"
	TextCodeDuplicateEmail     = "AUTH_DUPLICATE_EMAIL"
	TextCodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	TextCodeEmailNotVerified   = "AUTH_EMAIL_NOT_VERIFIED"
	TextCodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	TextCodeInvalidToken       = "AUTH_INVALID_TOKEN"
	TextCodeTokenExpired       = "AUTH_TOKEN_EXPIRED"
	TextCodeTokenNotFound      = "AUTH_VERIFICATION_TOKEN_NOT_FOUND"
	TextCodeLinkExpired        = "AUTH_LINK_EXPIRED"
	TextCodeLinkTampered       = "AUTH_LINK_TAMPERED"
	TextCodeAccountNotFound    = "AUTH_ACCOUNT_NOT_FOUND"
	TextCodeInvariantViolation = "AUTH_INVARIANT_VIOLATION"
	TextCodeTokenConflict      = "AUTH_VERIFICATION_TOKEN_CONFLICT"
	TextCodeAlreadyVerified    = "AUTH_ALREADY_VERIFIED"
	TextCodeNoEmptyString      = "AUTH_EMPTY_PASSWORD"
)

// ErrValidationFailed is returned when a request payload does not pass
// validation. Clones carry the per field messages under the "fields" key.
var ErrValidationFailed = goerrors.New("validation failed", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidationFailed).
	WithCode(goerrors.CodeBadRequest)

// ErrDuplicateEmail is returned when registering an email already in use.
var ErrDuplicateEmail = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials is the only error login returns for an unknown email
// or a wrong password.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotVerified blocks login until the account email is verified.
var ErrEmailNotVerified = goerrors.New("email address not verified", goerrors.CategoryAuthz).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(goerrors.CodeForbidden)

// ErrUnauthenticated is returned when a session token cannot be resolved to a
// current account.
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidToken is returned when a session token fails verification.
var ErrInvalidToken = goerrors.New("invalid session token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when a session token is past its expiry.
var ErrTokenExpired = goerrors.New("session token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenNotFound is returned when no account holds the verification token.
var ErrTokenNotFound = goerrors.New("verification token not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTokenNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrLinkExpired is returned when a signed verification link is past its expiry.
var ErrLinkExpired = goerrors.New("verification link expired", goerrors.CategoryBadInput).
	WithTextCode(TextCodeLinkExpired).
	WithCode(http.StatusGone)

// ErrLinkTampered is returned when a signed verification link signature does
// not match its parameters.
var ErrLinkTampered = goerrors.New("verification link signature mismatch", goerrors.CategoryBadInput).
	WithTextCode(TextCodeLinkTampered).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountNotFound is returned by account lookups that find nothing.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvariantViolation flags a call made on an account in the wrong state.
var ErrInvariantViolation = goerrors.New("account invariant violated", goerrors.CategoryInternal).
	WithTextCode(TextCodeInvariantViolation).
	WithCode(goerrors.CodeInternal)

// ErrTokenConflict is returned when a freshly issued verification token
// collides with a pending one.
var ErrTokenConflict = goerrors.New("verification token collision", goerrors.CategoryConflict).
	WithTextCode(TextCodeTokenConflict).
	WithCode(goerrors.CodeConflict)

// ErrAlreadyVerified is returned when a verification token would be written to
// an account whose email is already verified.
var ErrAlreadyVerified = goerrors.New("email address already verified", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(goerrors.CodeConflict)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
	WithTextCode(TextCodeNoEmptyString).
	WithCode(goerrors.CodeBadRequest)

// NewValidationError clones ErrValidationFailed with the given field messages.
func NewValidationError(fields map[string]string) *goerrors.Error {
	clone := ErrValidationFailed.Clone()
	if len(fields) == 0 {
		return clone
	}

	meta := make(map[string]any, len(fields))
	for k, v := range fields {
		meta[k] = v
	}

	return clone.WithMetadata(map[string]any{"fields": meta})
}

// HasTextCode reports whether err is a rich error carrying code.
func HasTextCode(err error, code string) bool {
	return TextCodeOf(err) == code
}

// TextCodeOf returns the text code of a rich error, or "" for anything else.
func TextCodeOf(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// ValidationFields returns the field messages attached to a validation error.
func ValidationFields(err error) map[string]string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Metadata == nil {
		return nil
	}

	raw, ok := richErr.Metadata["fields"].(map[string]any)
	if !ok {
		return nil
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// asRichError returns err unchanged when it already is a rich error, or
// wraps it as an internal failure with msg.
func asRichError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
