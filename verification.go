package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultLinkTTL is the lifetime of a signed verification link.
	DefaultLinkTTL = 30 * time.Minute
	// DefaultVerifyRoute is the path signed links point at.
	DefaultVerifyRoute = "/auth/verify"

	verificationTokenBytes = 32
	maxReissueAttempts     = 3
)

// VerificationManager issues, signs and redeems email verification tokens.
type VerificationManager struct {
	store   AccountStore
	signer  *LinkSigner
	states  AccountStateMachine
	baseURL string
	route   string
	linkTTL time.Duration
	now     func() time.Time
	logger  Logger
}

// VerificationOption configures a VerificationManager.
type VerificationOption func(*VerificationManager)

// WithVerificationClock injects a custom clock (useful for tests).
func WithVerificationClock(clock func() time.Time) VerificationOption {
	return func(m *VerificationManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithVerificationLogger overrides the logger.
func WithVerificationLogger(logger Logger) VerificationOption {
	return func(m *VerificationManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithVerificationStateMachine overrides the state machine used on redemption.
func WithVerificationStateMachine(sm AccountStateMachine) VerificationOption {
	return func(m *VerificationManager) {
		if sm != nil {
			m.states = sm
		}
	}
}

// WithLinkTTL overrides the default signed link lifetime.
func WithLinkTTL(ttl time.Duration) VerificationOption {
	return func(m *VerificationManager) {
		if ttl > 0 {
			m.linkTTL = ttl
		}
	}
}

// WithLinkTarget sets the base URL and route signed links point at.
func WithLinkTarget(baseURL, route string) VerificationOption {
	return func(m *VerificationManager) {
		m.baseURL = baseURL
		if route != "" {
			if !strings.HasPrefix(route, "/") {
				route = "/" + route
			}
			m.route = route
		}
	}
}

// NewVerificationManager creates a manager backed by store. linkKey signs
// verification links and should differ from the session signing key.
func NewVerificationManager(store AccountStore, linkKey []byte, opts ...VerificationOption) *VerificationManager {
	m := &VerificationManager{
		store:   store,
		signer:  NewLinkSigner(linkKey),
		route:   DefaultVerifyRoute,
		linkTTL: DefaultLinkTTL,
		now:     time.Now,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.states == nil {
		m.states = NewAccountStateMachine(
			WithStateMachineClock(m.now),
			WithStateMachineLogger(m.logger),
		)
	}

	return m
}

// IssueToken replaces the pending verification token of account with a fresh
// one. The previous token, if any, can no longer be redeemed once the account
// is persisted.
func (m *VerificationManager) IssueToken(account *Account) (*Account, error) {
	if account == nil {
		return nil, ErrInvariantViolation.Clone().WithMetadata(map[string]any{
			"reason": "cannot issue token for nil account",
		})
	}

	token, err := generateToken(verificationTokenBytes)
	if err != nil {
		return nil, asRichError(err, "failed to generate verification token")
	}

	account.VerificationToken = token
	return account, nil
}

// Reissue issues a fresh token and persists it, retrying when the new token
// collides with another pending one. An account verified since it was loaded
// yields ErrAlreadyVerified and keeps no token.
func (m *VerificationManager) Reissue(ctx context.Context, account *Account) (*Account, error) {
	var err error
	for attempt := 0; attempt < maxReissueAttempts; attempt++ {
		if _, err = m.IssueToken(account); err != nil {
			return nil, err
		}

		err = m.store.ReplaceVerificationToken(ctx, account)
		if err == nil {
			return account, nil
		}

		if HasTextCode(err, TextCodeAlreadyVerified) {
			account.VerificationToken = ""
			return nil, err
		}

		if !HasTextCode(err, TextCodeTokenConflict) {
			return nil, asRichError(err, "failed to persist verification token")
		}

		m.logger.Warn("verification token collision, retrying", "account_id", account.ID, "attempt", attempt+1)
	}
	return nil, err
}

// BuildSignedLink returns a link embedding the pending token of account that
// expires after ttl. A non positive ttl uses the manager default.
func (m *VerificationManager) BuildSignedLink(account *Account, ttl time.Duration) (*SignedLink, error) {
	if !account.HasPendingVerification() {
		return nil, ErrInvariantViolation.Clone().WithMetadata(map[string]any{
			"reason": "account has no pending verification token",
		})
	}

	if ttl <= 0 {
		ttl = m.linkTTL
	}

	expiresAt := m.now().Add(ttl).UTC().Truncate(time.Second)
	expires := expiresAt.Unix()

	params := LinkParams{
		Token:     account.VerificationToken,
		Expires:   strconv.FormatInt(expires, 10),
		Signature: m.signer.Sign(m.route, account.VerificationToken, expires),
	}

	return &SignedLink{
		URL:       buildLinkURL(m.baseURL, m.route, params),
		Route:     m.route,
		Token:     params.Token,
		ExpiresAt: expiresAt,
		Signature: params.Signature,
	}, nil
}

// Redeem verifies the account holding rawToken and clears the token. Two
// concurrent redemptions of the same token yield one success and one
// ErrTokenNotFound.
func (m *VerificationManager) Redeem(ctx context.Context, rawToken string) (*Account, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrTokenNotFound
	}

	account, err := m.store.RedeemVerificationToken(ctx, rawToken, func(acc *Account) error {
		return m.states.Transition(ctx, acc, AccountVerified)
	})
	if err != nil {
		return nil, asRichError(err, "failed to redeem verification token")
	}

	m.logger.Info("email verified", "account_id", account.ID)

	return account, nil
}

// RedeemLink checks the signature and expiry of a signed link before
// redeeming the token it carries.
func (m *VerificationManager) RedeemLink(ctx context.Context, params LinkParams) (*Account, error) {
	if err := m.CheckLink(params); err != nil {
		return nil, err
	}
	return m.Redeem(ctx, params.Token)
}

// CheckLink validates link parameters without touching the store. Tampering
// is checked first so an edited expiry reports ErrLinkTampered.
func (m *VerificationManager) CheckLink(params LinkParams) error {
	expires, err := strconv.ParseInt(params.Expires, 10, 64)
	if err != nil || params.Token == "" || params.Signature == "" {
		return ErrLinkTampered
	}

	if !m.signer.Verify(m.route, params.Token, expires, params.Signature) {
		return ErrLinkTampered
	}

	if m.now().Unix() > expires {
		return ErrLinkExpired
	}

	return nil
}

// ParseSignedLink extracts link parameters from a full URL or a path with a
// query string. A path other than the verify route counts as tampering.
func (m *VerificationManager) ParseSignedLink(rawURL string) (LinkParams, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return LinkParams{}, ErrLinkTampered
	}

	if u.Path != m.route {
		return LinkParams{}, ErrLinkTampered
	}

	q := u.Query()
	return LinkParams{
		Token:     q.Get("token"),
		Expires:   q.Get("expires"),
		Signature: q.Get("signature"),
	}, nil
}

// Route returns the path signed links point at.
func (m *VerificationManager) Route() string {
	return m.route
}

func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
