package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes the repositories react to
const (
	pgUniqueViolation   = "23505"
	pgLockNotAvailable  = "55P03"
)

// isUniqueViolation reports whether err is a unique constraint violation,
// translated by GORM or raw from the driver
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasSQLState(err, pgUniqueViolation)
}

// isLockNotAvailable reports whether err came from a NOWAIT lock on a held row
func isLockNotAvailable(err error) bool {
	return hasSQLState(err, pgLockNotAvailable)
}

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
