package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound marks lookups addressing a row that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks inserts rejected by a uniqueness constraint.
	ErrConflict = errors.New("already exists")
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. The findOrCreate paths treat this as "another writer won
// the race", not as a failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// NormalizeRowError maps driver-level row errors to the shared
// sentinels so callers can test with errors.Is.
func NormalizeRowError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}
