package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation = "23505"

	columnID                = "id"
	columnEmail             = "email"
	columnVerificationToken = "verification_token"
)

// uniqueViolation reports whether err is a unique constraint failure and, if
// it can tell, which accounts column collided.
func uniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return "", false
		}
		switch pgErr.ConstraintName {
		case "uq_accounts_email":
			return columnEmail, true
		case "uq_accounts_verification_token":
			return columnVerificationToken, true
		case "accounts_pkey":
			return columnID, true
		}
		return "", true
	}

	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return "", false
	}

	switch {
	case strings.Contains(msg, "accounts.email"):
		return columnEmail, true
	case strings.Contains(msg, "accounts.verification_token"):
		return columnVerificationToken, true
	case strings.Contains(msg, "accounts.id"):
		return columnID, true
	}
	return "", true
}
