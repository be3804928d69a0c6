package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher hashes passwords with bcrypt
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt backed PasswordHasher. A cost outside the
// bcrypt range falls back to the package default.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = defaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// bcryptMaxPasswordBytes is the longest input bcrypt accepts
const bcryptMaxPasswordBytes = 72

// MaxPasswordBytes reports the bcrypt input limit.
func (h *BcryptHasher) MaxPasswordBytes() int {
	return bcryptMaxPasswordBytes
}

// Hash will generate a password hash
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", asRichError(err, "failed to hash password")
	}
	return string(digest), nil
}

// bcrypt salt and checksum of a digest matching no password
const bcryptFallbackBody = "N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// FallbackDigest returns a valid digest at the hasher cost.
func (h *BcryptHasher) FallbackDigest() string {
	return fmt.Sprintf("$2a$%02d$%s", h.cost, bcryptFallbackBody)
}

// Verify will validate the given cleartext password matches the digest
func (h *BcryptHasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
