package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultTokenTTL is used when no session lifetime is configured.
const DefaultTokenTTL = 60 * time.Minute

// SessionTokenService mints and verifies stateless session tokens. Logout is
// enforced through the per account token epoch embedded in every token.
type SessionTokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	store      AccountStore
	now        func() time.Time
	logger     Logger
}

// SessionOption configures a SessionTokenService.
type SessionOption func(*SessionTokenService)

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(s *SessionTokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSessionLogger overrides the logger.
func WithSessionLogger(logger Logger) SessionOption {
	return func(s *SessionTokenService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSessionTokenService creates a new SessionTokenService instance
func NewSessionTokenService(signingKey []byte, ttl time.Duration, issuer string, audience jwt.ClaimStrings, store AccountStore, opts ...SessionOption) *SessionTokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	s := &SessionTokenService{
		signingKey: signingKey,
		ttl:        ttl,
		issuer:     issuer,
		audience:   audience,
		store:      store,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// TTL returns the default session lifetime
func (s *SessionTokenService) TTL() time.Duration {
	return s.ttl
}

// Issue mints a token for account valid for ttl. A non positive ttl uses the
// service default.
func (s *SessionTokenService) Issue(account *Account, ttl time.Duration) (*SessionToken, error) {
	return s.issue(account, ttl, time.Time{})
}

func (s *SessionTokenService) issue(account *Account, ttl time.Duration, after time.Time) (*SessionToken, error) {
	if account == nil || account.ID == uuid.Nil {
		return nil, ErrInvariantViolation.Clone().WithMetadata(map[string]any{
			"reason": "cannot issue session for unregistered account",
		})
	}

	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	issuedAt := now.Truncate(time.Second)
	expiresAt := now.Add(ttl).Truncate(time.Second)
	if !after.IsZero() && !expiresAt.After(after) {
		expiresAt = after.Truncate(time.Second).Add(time.Second)
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   account.ID.String(),
			Audience:  s.audience,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Epoch: account.TokenEpoch,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return &SessionToken{
		Token:     signed,
		ExpiresAt: expiresAt,
		ExpiresIn: int64(expiresAt.Sub(now).Round(time.Second) / time.Second),
	}, nil
}

// Validate parses and validates a token string, returning its claims. An
// expired token yields ErrTokenExpired, any other failure ErrInvalidToken.
func (s *SessionTokenService) Validate(tokenString string) (*SessionClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(s.issuer))
	}
	if len(s.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(s.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		s.logger.Debug("session token rejected", "error", err)
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if _, err := claims.AccountID(); err != nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Refresh mints a new token for the subject of tokenString. The new expiry is
// always strictly later than the presented one.
func (s *SessionTokenService) Refresh(ctx context.Context, tokenString string) (*SessionToken, *Account, error) {
	account, claims, err := s.resolve(ctx, tokenString)
	if err != nil {
		if isSessionRejection(err) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}

	token, err := s.issue(account, s.ttl, claims.Expires())
	if err != nil {
		return nil, nil, err
	}

	return token, account, nil
}

// CurrentUser resolves the account behind tokenString.
func (s *SessionTokenService) CurrentUser(ctx context.Context, tokenString string) (*Account, error) {
	account, _, err := s.resolve(ctx, tokenString)
	if err != nil {
		if isSessionRejection(err) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return account, nil
}

// Invalidate logs out every token of the account behind tokenString by
// moving its token epoch forward.
func (s *SessionTokenService) Invalidate(ctx context.Context, tokenString string) error {
	account, _, err := s.resolve(ctx, tokenString)
	if err != nil {
		if isSessionRejection(err) {
			return ErrUnauthenticated
		}
		return err
	}

	epoch, err := s.store.IncrementTokenEpoch(ctx, account.ID)
	if err != nil {
		if HasTextCode(err, TextCodeAccountNotFound) {
			return ErrUnauthenticated
		}
		return asRichError(err, "failed to invalidate session")
	}

	s.logger.Info("session invalidated", "account_id", account.ID, "epoch", epoch)
	return nil
}

var errStaleEpoch = goerrors.New("session token epoch is stale", goerrors.CategoryAuth).
	WithTextCode("AUTH_STALE_TOKEN_EPOCH").
	WithCode(goerrors.CodeUnauthorized)

func (s *SessionTokenService) resolve(ctx context.Context, tokenString string) (*Account, *SessionClaims, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, nil, err
	}

	id, _ := claims.AccountID()
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		if HasTextCode(err, TextCodeAccountNotFound) {
			return nil, nil, err
		}
		return nil, nil, asRichError(err, "failed to load session account")
	}

	if claims.Epoch != account.TokenEpoch {
		return nil, nil, errStaleEpoch
	}

	return account, claims, nil
}

func isSessionRejection(err error) bool {
	switch TextCodeOf(err) {
	case TextCodeInvalidToken, TextCodeTokenExpired, TextCodeAccountNotFound, errStaleEpoch.TextCode:
		return true
	}
	return false
}
