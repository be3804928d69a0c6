package auth

import (
	"context"
)

// Login checks credentials and opens a session. Unknown emails and wrong
// passwords fail with the same ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	var result *LoginResult
	err := s.run(ctx, "login", func(ctx context.Context) error {
		var err error
		result, err = s.login(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *AuthService) login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req = req.Normalize()
	if err := validatePayload(req); err != nil {
		return nil, err
	}

	account, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		if HasTextCode(err, TextCodeAccountNotFound) {
			s.dummyVerify(req.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, asRichError(err, "failed to look up account")
	}

	if !s.hasher.Verify(req.Password, account.PasswordDigest) {
		s.logger.Debug("login rejected", "account_id", account.ID)
		return nil, ErrInvalidCredentials
	}

	if !account.IsVerified() {
		return nil, ErrEmailNotVerified
	}

	token, err := s.sessions.Issue(account, 0)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded", "account_id", account.ID)

	return newLoginResult(token, account), nil
}

// Logout invalidates every session of the account behind token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.run(ctx, "logout", func(ctx context.Context) error {
		return s.sessions.Invalidate(ctx, token)
	})
}

// Refresh trades a valid session token for a new one with a later expiry.
func (s *AuthService) Refresh(ctx context.Context, token string) (*LoginResult, error) {
	var result *LoginResult
	err := s.run(ctx, "session refresh", func(ctx context.Context) error {
		refreshed, account, err := s.sessions.Refresh(ctx, token)
		if err != nil {
			return err
		}
		result = newLoginResult(refreshed, account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func newLoginResult(token *SessionToken, account *Account) *LoginResult {
	return &LoginResult{
		Token:     token.Token,
		ExpiresIn: token.ExpiresIn,
		ExpiresAt: token.ExpiresAt,
		Account:   account,
	}
}
