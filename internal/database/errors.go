package database

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fluxbase-eu/restcore/internal/apierror"
	"github.com/fluxbase-eu/restcore/internal/engine"
)

// PostgreSQL error codes
const (
	// ErrCodeUniqueViolation is the PostgreSQL error code for unique constraint violations
	ErrCodeUniqueViolation = "23505"
	// ErrCodeForeignKeyViolation is the PostgreSQL error code for foreign key violations
	ErrCodeForeignKeyViolation = "23503"
	// ErrCodeCheckViolation is the PostgreSQL error code for check constraint violations
	ErrCodeCheckViolation = "23514"

	// classDataException covers invalid casts and out of range values
	classDataException = "22"
	// classIntegrityViolation covers unique, foreign key and check violations
	classIntegrityViolation = "23"
	// classSyntaxOrAccess covers undefined columns and bad grouping
	classSyntaxOrAccess = "42"
)

// Error codes attached to classified database errors.
const (
	CodeInvalidData        = "INVALID_DATA"
	CodeConstraintViolated = "CONSTRAINT_VIOLATION"
	CodeQueryRejected      = "QUERY_REJECTED"
)

// IsUniqueViolation checks if an error is a unique constraint violation
func IsUniqueViolation(err error) bool {
	return pgErrorCode(err) == ErrCodeUniqueViolation
}

// IsForeignKeyViolation checks if an error is a foreign key violation
func IsForeignKeyViolation(err error) bool {
	return pgErrorCode(err) == ErrCodeForeignKeyViolation
}

// IsCheckViolation checks if an error is a check constraint violation
func IsCheckViolation(err error) bool {
	return pgErrorCode(err) == ErrCodeCheckViolation
}

// GetConstraintName returns the constraint name from a PostgreSQL error
func GetConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classify turns a driver error into the error taxonomy. No rows becomes
// engine.ErrNoRows; data, integrity and syntax classes are bad requests;
// everything else, including context cancellation, is internal with the
// cause kept in the chain.
func classify(err error, filter string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.ErrNoRows
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apierror.Internal(err, apierror.MsgUnexpectedQueryError, filter)
	}

	code := pgErrorCode(err)
	switch {
	case strings.HasPrefix(code, classDataException):
		return apierror.BadRequest(CodeInvalidData, err, apierror.MsgMalformedRequest, filter)
	case strings.HasPrefix(code, classIntegrityViolation):
		return apierror.BadRequest(CodeConstraintViolated, err, apierror.MsgMalformedRequest, filter)
	case strings.HasPrefix(code, classSyntaxOrAccess):
		return apierror.BadRequest(CodeQueryRejected, err, apierror.MsgMalformedRequest, filter)
	}
	return apierror.Internal(err, apierror.MsgUnexpectedQueryError, filter)
}
