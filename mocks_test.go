package auth_test

import (
	"context"
	"time"

	"github.com/goliatone/go-auth-verify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockAccountStore implements auth.AccountStore
type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	return accountArg(args, 0), args.Error(1)
}

func (m *MockAccountStore) FindByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	args := m.Called(ctx, id)
	return accountArg(args, 0), args.Error(1)
}

func (m *MockAccountStore) FindByVerificationToken(ctx context.Context, token string) (*auth.Account, error) {
	args := m.Called(ctx, token)
	return accountArg(args, 0), args.Error(1)
}

func (m *MockAccountStore) Create(ctx context.Context, account *auth.Account) (*auth.Account, error) {
	args := m.Called(ctx, account)
	return accountArg(args, 0), args.Error(1)
}

func (m *MockAccountStore) Save(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountStore) ReplaceVerificationToken(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountStore) RedeemVerificationToken(ctx context.Context, token string, apply func(*auth.Account) error) (*auth.Account, error) {
	args := m.Called(ctx, token, apply)
	return accountArg(args, 0), args.Error(1)
}

func (m *MockAccountStore) IncrementTokenEpoch(ctx context.Context, id uuid.UUID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func accountArg(args mock.Arguments, idx int) *auth.Account {
	if v := args.Get(idx); v != nil {
		return v.(*auth.Account)
	}
	return nil
}

// MockMailer implements auth.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendVerification(ctx context.Context, account *auth.Account, link string, expiresAt time.Time) error {
	args := m.Called(ctx, account, link, expiresAt)
	return args.Error(0)
}

// MockLogger implements auth.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.Called(msg, args)
}

type mockConfig struct {
	signingKey        string
	linkSigningKey    string
	tokenExpiration   int
	linkExpiration    int
	issuer            string
	audience          []string
	authScheme        string
	linkBaseURL       string
	verifyRoute       string
	passwordAlgorithm string
	deterministicIDs  bool
}

func newMockConfig() *mockConfig {
	return &mockConfig{
		signingKey:        "test-session-signing-key-0123456789",
		linkSigningKey:    "test-link-signing-key-0123456789",
		tokenExpiration:   60,
		linkExpiration:    30,
		issuer:            "authd-test",
		audience:          []string{"authd-clients"},
		authScheme:        "Bearer",
		linkBaseURL:       "https://auth.example.com",
		verifyRoute:       "/auth/verify",
		passwordAlgorithm: "argon2id",
	}
}

func (c *mockConfig) GetSigningKey() string        { return c.signingKey }
func (c *mockConfig) GetLinkSigningKey() string    { return c.linkSigningKey }
func (c *mockConfig) GetTokenExpiration() int      { return c.tokenExpiration }
func (c *mockConfig) GetLinkExpiration() int       { return c.linkExpiration }
func (c *mockConfig) GetIssuer() string            { return c.issuer }
func (c *mockConfig) GetAudience() []string        { return c.audience }
func (c *mockConfig) GetAuthScheme() string        { return c.authScheme }
func (c *mockConfig) GetLinkBaseURL() string       { return c.linkBaseURL }
func (c *mockConfig) GetVerifyRoute() string       { return c.verifyRoute }
func (c *mockConfig) GetPasswordAlgorithm() string { return c.passwordAlgorithm }
func (c *mockConfig) GetDeterministicIDs() bool    { return c.deterministicIDs }
