//go:build !race

package auth

const defaultBcryptCost = 14
