package auth

import (
	"context"
	"strings"
)

const alreadyVerifiedMessage = "email address is already verified"

// RequestVerification reissues the verification token of the account behind
// email and returns a signed link for it. Verified accounts get an
// informational result instead.
func (s *AuthService) RequestVerification(ctx context.Context, req VerificationRequest) (*VerificationResult, error) {
	var result *VerificationResult
	err := s.run(ctx, "verification request", func(ctx context.Context) error {
		var err error
		result, err = s.requestVerification(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *AuthService) requestVerification(ctx context.Context, req VerificationRequest) (*VerificationResult, error) {
	req = req.Normalize()
	if err := validatePayload(req); err != nil {
		return nil, err
	}

	account, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		if HasTextCode(err, TextCodeAccountNotFound) {
			return nil, err
		}
		return nil, asRichError(err, "failed to look up account")
	}

	if account.IsVerified() {
		return alreadyVerifiedResult(), nil
	}

	if _, err := s.verifier.Reissue(ctx, account); err != nil {
		if HasTextCode(err, TextCodeAlreadyVerified) {
			return alreadyVerifiedResult(), nil
		}
		return nil, err
	}

	link, err := s.verifier.BuildSignedLink(account, 0)
	if err != nil {
		return nil, err
	}

	if s.mailer != nil {
		if err := s.mailer.SendVerification(ctx, account, link.URL, link.ExpiresAt); err != nil {
			s.logger.Error("failed to deliver verification link", "account_id", account.ID, "error", err)
		}
	}

	s.logger.Info("verification link issued", "account_id", account.ID, "expires_at", link.ExpiresAt)

	expiresAt := link.ExpiresAt
	return &VerificationResult{
		URL:       link.URL,
		ExpiresAt: &expiresAt,
	}, nil
}

func alreadyVerifiedResult() *VerificationResult {
	return &VerificationResult{
		AlreadyVerified: true,
		Message:         alreadyVerifiedMessage,
	}
}

// VerifyEmail redeems a raw token or a signed link. On success the account is
// verified and may log in.
func (s *AuthService) VerifyEmail(ctx context.Context, req VerifyEmailRequest) (*Account, error) {
	var account *Account
	err := s.run(ctx, "email verification", func(ctx context.Context) error {
		var err error
		account, err = s.verifyEmail(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AuthService) verifyEmail(ctx context.Context, req VerifyEmailRequest) (*Account, error) {
	if err := validatePayload(req); err != nil {
		return nil, err
	}

	switch {
	case req.Params != nil:
		return s.verifier.RedeemLink(ctx, *req.Params)
	case strings.TrimSpace(req.Link) != "":
		params, err := s.verifier.ParseSignedLink(req.Link)
		if err != nil {
			return nil, err
		}
		return s.verifier.RedeemLink(ctx, params)
	default:
		return s.verifier.Redeem(ctx, req.Token)
	}
}
