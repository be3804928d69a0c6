package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-auth-verify"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var _ auth.AccountStore = (*AccountStore)(nil)

// AccountStore is the bun backed auth.AccountStore. Uniqueness of email and
// verification token is enforced by the schema, not by read-then-write checks.
type AccountStore struct {
	db  *bun.DB
	txr TxRunner
	now func() time.Time
}

// TxRunner opens the transactions used by the store's multi statement
// operations.
type TxRunner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

// AccountStoreOption configures an AccountStore.
type AccountStoreOption func(*AccountStore)

// WithTxRunner sets who opens transactions. Defaults to the db itself.
func WithTxRunner(r TxRunner) AccountStoreOption {
	return func(s *AccountStore) {
		if r != nil {
			s.txr = r
		}
	}
}

// NewAccountStore returns a store over db.
func NewAccountStore(db *bun.DB, opts ...AccountStoreOption) *AccountStore {
	s := &AccountStore{
		db:  db,
		txr: db,
		now: time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return s.FindByEmailTx(ctx, s.db, email)
}

func (s *AccountStore) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*auth.Account, error) {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return nil, auth.ErrAccountNotFound
	}
	return s.findOneTx(ctx, tx, auth.ErrAccountNotFound, "email = ?", email)
}

func (s *AccountStore) FindByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	return s.FindByIDTx(ctx, s.db, id)
}

func (s *AccountStore) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*auth.Account, error) {
	if id == uuid.Nil {
		return nil, auth.ErrAccountNotFound
	}
	return s.findOneTx(ctx, tx, auth.ErrAccountNotFound, "id = ?", id.String())
}

func (s *AccountStore) FindByVerificationToken(ctx context.Context, token string) (*auth.Account, error) {
	return s.FindByVerificationTokenTx(ctx, s.db, token)
}

func (s *AccountStore) FindByVerificationTokenTx(ctx context.Context, tx bun.IDB, token string) (*auth.Account, error) {
	if token == "" {
		return nil, auth.ErrTokenNotFound
	}
	return s.findOneTx(ctx, tx, auth.ErrTokenNotFound, "verification_token = ?", token)
}

func (s *AccountStore) findOneTx(ctx context.Context, tx bun.IDB, notFound *goerrors.Error, where string, args ...any) (*auth.Account, error) {
	account := &auth.Account{}
	err := tx.NewSelect().
		Model(account).
		Where(where, args...).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account")
	}

	return account, nil
}

// Create inserts account in a single statement. A taken email surfaces as
// auth.ErrDuplicateEmail no matter how many registrations race for it.
func (s *AccountStore) Create(ctx context.Context, account *auth.Account) (*auth.Account, error) {
	return s.CreateTx(ctx, s.db, account)
}

func (s *AccountStore) CreateTx(ctx context.Context, tx bun.IDB, account *auth.Account) (*auth.Account, error) {
	if account == nil || account.ID == uuid.Nil {
		return nil, auth.ErrInvariantViolation.Clone().WithMetadata(map[string]any{
			"reason": "account must have an identity before it is stored",
		})
	}

	account.Email = auth.NormalizeEmail(account.Email)

	now := s.now().UTC()
	if account.CreatedAt == nil {
		account.CreatedAt = &now
	}
	if account.UpdatedAt == nil {
		account.UpdatedAt = &now
	}

	if _, err := tx.NewInsert().Model(account).Exec(ctx); err != nil {
		return nil, mapWriteError(err, "failed to create account")
	}

	return account, nil
}

// Save persists the mutable fields of account. Once set, email_verified_at is
// never cleared or moved.
func (s *AccountStore) Save(ctx context.Context, account *auth.Account) error {
	return s.SaveTx(ctx, s.db, account)
}

func (s *AccountStore) SaveTx(ctx context.Context, tx bun.IDB, account *auth.Account) error {
	if account == nil || account.ID == uuid.Nil {
		return auth.ErrAccountNotFound
	}

	now := s.now().UTC()
	account.UpdatedAt = &now

	query := `
		UPDATE "accounts"
		SET
			"display_name" = ?,
			"password_digest" = ?,
			"verification_token" = ?,
			"email_verified_at" = COALESCE("email_verified_at", ?),
			"updated_at" = ?
		WHERE "id" = ?
	`

	res, err := tx.NewRaw(query,
		account.DisplayName,
		account.PasswordDigest,
		nullableToken(account.VerificationToken),
		account.EmailVerifiedAt,
		now,
		account.ID.String(),
	).Exec(ctx)
	if err != nil {
		return mapWriteError(err, "failed to save account")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrAccountNotFound
	}

	return nil
}

// ReplaceVerificationToken writes the pending token of account as long as the
// stored row is still unverified. The check and the write are one statement so
// a redemption racing with a reissue never leaves a token on a verified row.
func (s *AccountStore) ReplaceVerificationToken(ctx context.Context, account *auth.Account) error {
	return s.ReplaceVerificationTokenTx(ctx, s.db, account)
}

func (s *AccountStore) ReplaceVerificationTokenTx(ctx context.Context, tx bun.IDB, account *auth.Account) error {
	if account == nil || account.ID == uuid.Nil {
		return auth.ErrAccountNotFound
	}

	now := s.now().UTC()

	query := `
		UPDATE "accounts"
		SET
			"verification_token" = ?,
			"updated_at" = ?
		WHERE "id" = ? AND "email_verified_at" IS NULL
	`

	res, err := tx.NewRaw(query,
		nullableToken(account.VerificationToken),
		now,
		account.ID.String(),
	).Exec(ctx)
	if err != nil {
		return mapWriteError(err, "failed to store verification token")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store verification token")
	}

	if n == 0 {
		if _, err := s.FindByIDTx(ctx, tx, account.ID); err != nil {
			return err
		}
		return auth.ErrAlreadyVerified
	}

	account.UpdatedAt = &now
	return nil
}

// RedeemVerificationToken finds the account holding token, lets apply move it
// to its verified state and clears the token only if it is still the pending
// one. Exactly one of any number of concurrent callers succeeds.
func (s *AccountStore) RedeemVerificationToken(ctx context.Context, token string, apply func(*auth.Account) error) (*auth.Account, error) {
	if token == "" {
		return nil, auth.ErrTokenNotFound
	}

	var redeemed *auth.Account
	err := s.txr.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.RedeemVerificationTokenTx(ctx, tx, token, apply)
		if err != nil {
			return err
		}
		redeemed = account
		return nil
	})

	if err != nil {
		return nil, err
	}

	return redeemed, nil
}

func (s *AccountStore) RedeemVerificationTokenTx(ctx context.Context, tx bun.IDB, token string, apply func(*auth.Account) error) (*auth.Account, error) {
	account, err := s.FindByVerificationTokenTx(ctx, tx, token)
	if err != nil {
		return nil, err
	}

	if apply != nil {
		if err := apply(account); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	verifiedAt := account.EmailVerifiedAt
	if verifiedAt == nil {
		verifiedAt = &now
	}

	query := `
		UPDATE "accounts"
		SET
			"email_verified_at" = COALESCE("email_verified_at", ?),
			"verification_token" = NULL,
			"updated_at" = ?
		WHERE "id" = ? AND "verification_token" = ?
	`

	res, err := tx.NewRaw(query, *verifiedAt, now, account.ID.String(), token).Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to redeem verification token")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to redeem verification token")
	}

	if n == 0 {
		return nil, auth.ErrTokenNotFound
	}

	account.VerificationToken = ""
	account.UpdatedAt = &now

	return account, nil
}

// IncrementTokenEpoch moves the account token epoch forward and returns the
// new value.
func (s *AccountStore) IncrementTokenEpoch(ctx context.Context, id uuid.UUID) (int, error) {
	var epoch int
	err := s.txr.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		epoch, err = s.IncrementTokenEpochTx(ctx, tx, id)
		return err
	})
	return epoch, err
}

func (s *AccountStore) IncrementTokenEpochTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (int, error) {
	if id == uuid.Nil {
		return 0, auth.ErrAccountNotFound
	}

	query := `
		UPDATE "accounts"
		SET
			"token_epoch" = "token_epoch" + 1,
			"updated_at" = ?
		WHERE "id" = ?
	`

	res, err := tx.NewRaw(query, s.now().UTC(), id.String()).Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to increment token epoch")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, auth.ErrAccountNotFound
	}

	var epoch int
	err = tx.NewSelect().
		Model((*auth.Account)(nil)).
		Column("token_epoch").
		Where("id = ?", id.String()).
		Scan(ctx, &epoch)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read token epoch")
	}

	return epoch, nil
}

func nullableToken(token string) sql.NullString {
	return sql.NullString{String: token, Valid: token != ""}
}

func mapWriteError(err error, msg string) error {
	if column, ok := uniqueViolation(err); ok {
		switch column {
		// ids derived from the email collide on the primary key first
		case columnEmail, columnID:
			return auth.ErrDuplicateEmail
		case columnVerificationToken:
			return auth.ErrTokenConflict
		}
		return goerrors.Wrap(err, goerrors.CategoryConflict, msg).
			WithCode(goerrors.CodeConflict)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
