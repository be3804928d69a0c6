package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// DefaultOperationTimeout bounds every AuthService operation.
const DefaultOperationTimeout = 10 * time.Second

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expires_in"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   *Account  `json:"account"`
}

// VerificationResult is returned by RequestVerification. Either URL is set or
// AlreadyVerified is true.
type VerificationResult struct {
	URL             string     `json:"url,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	AlreadyVerified bool       `json:"already_verified,omitempty"`
	Message         string     `json:"message,omitempty"`
}

// AuthService orchestrates registration, login, sessions and email
// verification. Identity is always passed explicitly as a session token.
type AuthService struct {
	store     AccountStore
	hasher    PasswordHasher
	verifier  *VerificationManager
	sessions  *SessionTokenService
	states    AccountStateMachine
	mailer    Mailer
	logger    Logger
	now       func() time.Time
	timeout   time.Duration
	hashidIDs bool

	dummyOnce   sync.Once
	dummyDigest string
}

// ServiceOption configures an AuthService.
type ServiceOption func(*AuthService)

// WithLogger sets the service logger. NewAuthServiceFromConfig also hands it
// to the verification and session managers.
func WithLogger(logger Logger) ServiceOption {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMailer delivers verification links on RequestVerification.
func WithMailer(mailer Mailer) ServiceOption {
	return func(s *AuthService) {
		s.mailer = mailer
	}
}

// WithHashidAccountIDs derives account ids from the email instead of random
// UUIDs.
func WithHashidAccountIDs(enabled bool) ServiceOption {
	return func(s *AuthService) {
		s.hashidIDs = enabled
	}
}

// WithStateMachine replaces the account state machine.
func WithStateMachine(sm AccountStateMachine) ServiceOption {
	return func(s *AuthService) {
		if sm != nil {
			s.states = sm
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *AuthService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithPasswordHasher overrides the configured hasher.
func WithPasswordHasher(hasher PasswordHasher) ServiceOption {
	return func(s *AuthService) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// WithOperationTimeout changes the per operation deadline.
func WithOperationTimeout(d time.Duration) ServiceOption {
	return func(s *AuthService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewAuthService wires an AuthService from ready made components.
func NewAuthService(store AccountStore, hasher PasswordHasher, verifier *VerificationManager, sessions *SessionTokenService, opts ...ServiceOption) *AuthService {
	s := newAuthService(store, hasher, opts...)
	s.verifier = verifier
	s.sessions = sessions
	s.MustValidate()
	return s
}

// NewAuthServiceFromConfig builds every component from cfg.
func NewAuthServiceFromConfig(cfg Config, store AccountStore, opts ...ServiceOption) (*AuthService, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	opts = append([]ServiceOption{WithHashidAccountIDs(cfg.GetDeterministicIDs())}, opts...)
	s := newAuthService(store, nil, opts...)

	if s.hasher == nil {
		hasher, err := NewPasswordHasher(cfg.GetPasswordAlgorithm())
		if err != nil {
			return nil, err
		}
		s.hasher = hasher
	}

	s.verifier = NewVerificationManager(store, []byte(cfg.GetLinkSigningKey()),
		WithVerificationClock(s.now),
		WithVerificationLogger(s.logger),
		WithVerificationStateMachine(s.states),
		WithLinkTTL(time.Duration(cfg.GetLinkExpiration())*time.Minute),
		WithLinkTarget(cfg.GetLinkBaseURL(), cfg.GetVerifyRoute()),
	)

	s.sessions = NewSessionTokenService(
		[]byte(cfg.GetSigningKey()),
		time.Duration(cfg.GetTokenExpiration())*time.Minute,
		cfg.GetIssuer(),
		jwt.ClaimStrings(cfg.GetAudience()),
		store,
		WithSessionClock(s.now),
		WithSessionLogger(s.logger),
	)

	return s, s.Validate()
}

func newAuthService(store AccountStore, hasher PasswordHasher, opts ...ServiceOption) *AuthService {
	s := &AuthService{
		store:   store,
		hasher:  hasher,
		logger:  defLogger{},
		now:     time.Now,
		timeout: DefaultOperationTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.states == nil {
		smOpts := []StateMachineOption{
			WithStateMachineClock(s.now),
			WithStateMachineLogger(s.logger),
		}
		if s.hashidIDs {
			smOpts = append(smOpts, WithStateMachineIDGenerator(hashidAccountID))
		}
		s.states = NewAccountStateMachine(smOpts...)
	}

	return s
}

func hashidAccountID(account *Account) (uuid.UUID, error) {
	return hashid.NewUUID(account.Email)
}

// Validate reports missing dependencies.
func (s *AuthService) Validate() error {
	missing := map[string]string{}
	if s.store == nil {
		missing["store"] = "account store is required"
	}
	if s.hasher == nil {
		missing["hasher"] = "password hasher is required"
	}
	if s.verifier == nil {
		missing["verifier"] = "verification manager is required"
	}
	if s.sessions == nil {
		missing["sessions"] = "session token service is required"
	}
	if len(missing) > 0 {
		return NewValidationError(missing)
	}
	return nil
}

func (s *AuthService) MustValidate() {
	if err := s.Validate(); err != nil {
		panic(err)
	}
}

// Sessions exposes the session token service.
func (s *AuthService) Sessions() *SessionTokenService {
	return s.sessions
}

// Verifier exposes the verification manager.
func (s *AuthService) Verifier() *VerificationManager {
	return s.verifier
}

// run guards an operation with the cancellation check and deadline shared
// by every service call.
func (s *AuthService) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during "+op)
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return fn(ctx)
}

// CurrentUser resolves the account behind a session token.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (*Account, error) {
	var account *Account
	err := s.run(ctx, "current user lookup", func(ctx context.Context) error {
		var err error
		account, err = s.sessions.CurrentUser(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// fallbackDigester is implemented by hashers that can produce a well formed
// digest without hashing, so a verification against it does full work.
type fallbackDigester interface {
	FallbackDigest() string
}

func (s *AuthService) dummyVerify(password string) {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash("dummy-password-for-timing")
		if err != nil {
			s.logger.Warn("failed to prepare dummy digest", "error", err)
			if fd, ok := s.hasher.(fallbackDigester); ok {
				digest = fd.FallbackDigest()
			}
		}
		s.dummyDigest = digest
	})
	_ = s.hasher.Verify(password, s.dummyDigest)
}

// ValidateConfig checks the settings NewAuthServiceFromConfig depends on.
func ValidateConfig(cfg Config) error {
	if cfg == nil {
		return NewValidationError(map[string]string{"config": "config is required"})
	}

	fields := map[string]string{}
	if len(cfg.GetSigningKey()) < minKeyLength {
		fields["signing_key"] = "must be at least 32 characters"
	}
	if len(cfg.GetLinkSigningKey()) < minKeyLength {
		fields["link_signing_key"] = "must be at least 32 characters"
	}
	if cfg.GetSigningKey() != "" && cfg.GetSigningKey() == cfg.GetLinkSigningKey() {
		fields["link_signing_key"] = "must differ from signing_key"
	}
	if cfg.GetTokenExpiration() < 0 {
		fields["token_expiration"] = "must not be negative"
	}
	if cfg.GetLinkExpiration() < 0 {
		fields["link_expiration"] = "must not be negative"
	}
	if route := cfg.GetVerifyRoute(); route != "" && strings.ContainsAny(route, "?#") {
		fields["verify_route"] = "must be a plain path"
	}

	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

const minKeyLength = 32
