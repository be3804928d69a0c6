//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds are several times slower, keep suites inside their timeouts
const defaultBcryptCost = bcrypt.DefaultCost
