package postgres

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqInvalidTextRepr     = "22P02"
)

// IsUniqueViolation checks if an error is a PostgreSQL unique constraint violation
// If constraint is empty, it returns true for any unique violation
// If constraint is specified, it only returns true for that specific constraint
func IsUniqueViolation(err error, constraint string) bool {
	return hasCode(err, pqUniqueViolation, constraint)
}

// IsForeignKeyViolation reports a reference to a row that does not exist.
func IsForeignKeyViolation(err error, constraint string) bool {
	return hasCode(err, pqForeignKeyViolation, constraint)
}

// IsInvalidInput reports a value PostgreSQL could not parse, such as a
// malformed UUID. Lookups treat it as "no such row".
func IsInvalidInput(err error) bool {
	return hasCode(err, pqInvalidTextRepr, "")
}

func hasCode(err error, code, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	if string(pqErr.Code) != code {
		return false
	}

	if constraint == "" {
		return true
	}

	return pqErr.Constraint == constraint
}
