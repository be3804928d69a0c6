package auth

import (
	"context"
)

// Register creates an unverified account with a pending verification token.
// The link itself is produced by RequestVerification.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	var account *Account
	err := s.run(ctx, "user registration", func(ctx context.Context) error {
		var err error
		account, err = s.register(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AuthService) register(ctx context.Context, req RegisterRequest) (*Account, error) {
	req = req.Normalize()
	limit := maxPasswordBytes(s.hasher)
	if err := validatePayload(validatorFunc(func() error {
		return req.ValidateWithPasswordLimit(limit)
	})); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, asRichError(err, "failed to hash password")
	}

	account := NewAccount(req.Email, req.DisplayName, digest)
	if _, err := s.verifier.IssueToken(account); err != nil {
		return nil, err
	}

	if err := s.states.Transition(ctx, account, AccountUnverified); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxReissueAttempts; attempt++ {
		created, err := s.store.Create(ctx, account)
		if err == nil {
			s.logger.Info("account registered", "account_id", created.ID)
			return created, nil
		}

		if !HasTextCode(err, TextCodeTokenConflict) {
			if HasTextCode(err, TextCodeDuplicateEmail) {
				return nil, err
			}
			return nil, asRichError(err, "failed to create account")
		}

		if _, err := s.verifier.IssueToken(account); err != nil {
			return nil, err
		}
	}

	return nil, ErrTokenConflict
}
