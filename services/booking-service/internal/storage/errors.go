package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation       = "23505"
	codeExclusionViolation    = "23P01"
	codeInsufficientPrivilege = "42501"
	codeInvalidTextRepr       = "22P02"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsConflict reports storage-level overlap or uniqueness rejections.
func IsConflict(err error) bool {
	switch pgCode(err) {
	case codeExclusionViolation, codeUniqueViolation:
		return true
	}
	return false
}

func IsInsufficientPrivilege(err error) bool {
	return pgCode(err) == codeInsufficientPrivilege
}

// IsNotFound also covers malformed ids, which cannot match a uuid column.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || pgCode(err) == codeInvalidTextRepr
}
