package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	PasswordAlgorithmBcrypt   = "bcrypt"
	PasswordAlgorithmArgon2id = "argon2id"
)

// NewPasswordHasher resolves a hasher by algorithm name. An empty name
// selects bcrypt.
func NewPasswordHasher(algorithm string) (PasswordHasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", PasswordAlgorithmBcrypt:
		return NewBcryptHasher(defaultBcryptCost), nil
	case PasswordAlgorithmArgon2id:
		return NewArgon2idHasher(), nil
	default:
		return nil, goerrors.New("unsupported password algorithm", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"algorithm": algorithm})
	}
}
