package repository

import (
	"context"
	"database/sql"
	"log"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Manager groups the stores that share one database handle.
type Manager struct {
	db       *bun.DB
	accounts *AccountStore
}

// NewManager builds the stores on top of db.
// The account store opens its transactions through the manager.
func NewManager(db *bun.DB) *Manager {
	m := &Manager{db: db}
	m.accounts = NewAccountStore(db, WithTxRunner(m))
	return m
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return goerrors.New("repository db should be initialized", goerrors.CategoryInternal)
	}

	if m.accounts == nil {
		return goerrors.New("repository accounts should be initialized", goerrors.CategoryInternal)
	}

	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// Migrate brings the schema up to date.
func (m *Manager) Migrate(ctx context.Context, opts ...MigrateOption) error {
	return Migrate(ctx, m.db, opts...)
}

// RunInTx runs f in a transaction. A context that is already done never
// opens one.
func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "transaction not started")
	}
	return m.db.RunInTx(ctx, opts, f)
}

func (m *Manager) Accounts() *AccountStore {
	return m.accounts
}

// Ping checks the database is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *Manager) Close() error {
	return m.db.Close()
}
