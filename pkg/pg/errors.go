package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrConnectionFailed    = errors.New("failed to open db connection")
	ErrParseConfig         = errors.New("failed to parse db config")
	ErrHealthcheckFailed   = errors.New("db healthcheck failed")
	ErrMigrationsFailed    = errors.New("failed to apply migrations")
	ErrMigrationsDirEmpty  = errors.New("migrations path not provided")
	ErrMigrationsDirAbsent = errors.New("migrations directory not found")
)

// IsNotFound detects pgx.ErrNoRows so stores can report "not found"
// uniformly across queries.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation detects unique constraint violations (SQLSTATE 23505).
// The sequence stores rely on this to enforce one enrollment per
// (sequence, contact) pair under concurrent creation attempts.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation detects referential integrity violations
// (SQLSTATE 23503), e.g. enrolling into a deleted sequence.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
