package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is the logging contract used across the package. Args are key/value
// pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AccountStore persists accounts. Implementations must enforce email and
// verification token uniqueness and make redemption a compare-and-clear.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByVerificationToken(ctx context.Context, token string) (*Account, error)
	Create(ctx context.Context, account *Account) (*Account, error)
	Save(ctx context.Context, account *Account) error
	// ReplaceVerificationToken stores account.VerificationToken only while the
	// account is still unverified, returning ErrAlreadyVerified otherwise.
	ReplaceVerificationToken(ctx context.Context, account *Account) error
	RedeemVerificationToken(ctx context.Context, token string, apply func(*Account) error) (*Account, error)
	IncrementTokenEpoch(ctx context.Context, id uuid.UUID) (int, error)
}

// PasswordHasher hashes and verifies passwords. Verify never fails loudly, a
// mismatch or a malformed digest both return false.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// Mailer delivers verification links.
type Mailer interface {
	SendVerification(ctx context.Context, account *Account, link string, expiresAt time.Time) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetLinkSigningKey() string
	// GetTokenExpiration returns the session lifetime in minutes
	GetTokenExpiration() int
	// GetLinkExpiration returns the verification link lifetime in minutes
	GetLinkExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetAuthScheme() string
	GetLinkBaseURL() string
	GetVerifyRoute() string
	GetPasswordAlgorithm() string
	GetDeterministicIDs() bool
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print(formatLine("DBG", msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print(formatLine("INF", msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print(formatLine("WRN", msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print(formatLine("ERR", msg, args...))
}

func formatLine(level, msg string, args ...any) string {
	var b strings.Builder
	b.WriteString("[" + level + "] AUTH " + msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }
