package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountState is the derived lifecycle state of an account.
type AccountState string

const (
	AccountUnregistered AccountState = "unregistered"
	AccountUnverified   AccountState = "unverified"
	AccountVerified     AccountState = "verified"
)

// Account is the account model
type Account struct {
	bun.BaseModel     `bun:"table:accounts"`
	ID                uuid.UUID  `bun:"id,pk" json:"id"`
	Email             string     `bun:"email,notnull" json:"email"`
	DisplayName       string     `bun:"display_name,notnull" json:"display_name"`
	PasswordDigest    string     `bun:"password_digest,notnull" json:"-"`
	EmailVerifiedAt   *time.Time `bun:"email_verified_at" json:"email_verified_at,omitempty"`
	VerificationToken string     `bun:"verification_token,nullzero" json:"-"`
	TokenEpoch        int        `bun:"token_epoch,notnull" json:"-"`
	CreatedAt         *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// NewAccount returns an unsaved account with a normalized email.
func NewAccount(email, displayName, passwordDigest string) *Account {
	return &Account{
		Email:          NormalizeEmail(email),
		DisplayName:    strings.TrimSpace(displayName),
		PasswordDigest: passwordDigest,
	}
}

// IsVerified reports whether the account email has been verified.
func (a *Account) IsVerified() bool {
	return a != nil && a.EmailVerifiedAt != nil
}

// HasPendingVerification reports whether a verification token is outstanding.
func (a *Account) HasPendingVerification() bool {
	return a != nil && a.VerificationToken != ""
}

// State derives the lifecycle state from the persisted fields. An account
// without an id has not been registered yet.
func (a *Account) State() AccountState {
	switch {
	case a == nil, a.ID == uuid.Nil:
		return AccountUnregistered
	case a.EmailVerifiedAt == nil:
		return AccountUnverified
	default:
		return AccountVerified
	}
}

// NormalizeEmail lower cases and trims an email so lookups are case insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
