package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-auth-verify/repository/migrations"
	goerrors "github.com/goliatone/go-errors"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// goose keeps its base FS and dialect in package globals
var migrateMu sync.Mutex

// Printer receives goose progress output.
type Printer interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type migrateConfig struct {
	printer Printer
}

// MigrateOption configures Migrate.
type MigrateOption func(*migrateConfig)

// WithMigrationLogger forwards goose output to p.
func WithMigrationLogger(p Printer) MigrateOption {
	return func(c *migrateConfig) {
		c.printer = p
	}
}

// Migrate applies every pending migration embedded in the migrations package.
func Migrate(ctx context.Context, db *bun.DB, opts ...MigrateOption) error {
	cfg := &migrateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var gooseDialect string
	switch db.Dialect().Name() {
	case dialect.SQLite:
		gooseDialect = "sqlite3"
	case dialect.PG:
		gooseDialect = "postgres"
	default:
		return goerrors.New("no migrations for dialect", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"dialect": db.Dialect().Name().String()})
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if cfg.printer != nil {
		goose.SetLogger(gooseLogger{cfg.printer})
	} else {
		goose.SetLogger(gooseLogger{})
	}

	if err := goose.SetDialect(gooseDialect); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set migration dialect")
	}

	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations")
	}

	return nil
}

type gooseLogger struct {
	p Printer
}

func (l gooseLogger) Printf(format string, v ...any) {
	if l.p != nil {
		l.p.Info(fmt.Sprintf(format, v...))
	}
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	if l.p != nil {
		l.p.Error(fmt.Sprintf(format, v...))
	}
}
