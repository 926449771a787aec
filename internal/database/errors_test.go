package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/restcore/internal/apierror"
	"github.com/fluxbase-eu/restcore/internal/engine"
)

func TestErrorCodeConstants(t *testing.T) {
	assert.Equal(t, "23505", ErrCodeUniqueViolation)
	assert.Equal(t, "23503", ErrCodeForeignKeyViolation)
	assert.Equal(t, "23514", ErrCodeCheckViolation)
}

func TestIsUniqueViolation(t *testing.T) {
	t.Run("returns true for unique violation error", func(t *testing.T) {
		err := &pgconn.PgError{Code: ErrCodeUniqueViolation}
		assert.True(t, IsUniqueViolation(err))
	})

	t.Run("returns false for other pg errors", func(t *testing.T) {
		err := &pgconn.PgError{Code: ErrCodeForeignKeyViolation}
		assert.False(t, IsUniqueViolation(err))
	})

	t.Run("returns false for non-pg error", func(t *testing.T) {
		err := errors.New("generic error")
		assert.False(t, IsUniqueViolation(err))
	})

	t.Run("returns false for nil error", func(t *testing.T) {
		assert.False(t, IsUniqueViolation(nil))
	})

	t.Run("returns false for wrapped non-pg error", func(t *testing.T) {
		wrappedErr := errors.New("wrapped generic error")
		assert.False(t, IsUniqueViolation(wrappedErr))
	})
}

func TestIsForeignKeyViolation(t *testing.T) {
	t.Run("returns true for foreign key violation error", func(t *testing.T) {
		err := &pgconn.PgError{Code: ErrCodeForeignKeyViolation}
		assert.True(t, IsForeignKeyViolation(err))
	})

	t.Run("returns false for other pg errors", func(t *testing.T) {
		err := &pgconn.PgError{Code: ErrCodeUniqueViolation}
		assert.False(t, IsForeignKeyViolation(err))
	})

	t.Run("returns false for non-pg error", func(t *testing.T) {
		err := errors.New("generic error")
		assert.False(t, IsForeignKeyViolation(err))
	})

	t.Run("returns false for nil error", func(t *testing.T) {
		assert.False(t, IsForeignKeyViolation(nil))
	})
}

func TestIsCheckViolation(t *testing.T) {
	t.Run("returns true for check violation error", func(t *testing.T) {
		err := &pgconn.PgError{Code: ErrCodeCheckViolation}
		assert.True(t, IsCheckViolation(err))
	})

	t.Run("returns false for other pg errors", func(t *testing.T) {
		err := &pgconn.PgError{Code: ErrCodeUniqueViolation}
		assert.False(t, IsCheckViolation(err))
	})

	t.Run("returns false for non-pg error", func(t *testing.T) {
		err := errors.New("generic error")
		assert.False(t, IsCheckViolation(err))
	})

	t.Run("returns false for nil error", func(t *testing.T) {
		assert.False(t, IsCheckViolation(nil))
	})
}

func TestGetConstraintName(t *testing.T) {
	t.Run("returns constraint name from pg error", func(t *testing.T) {
		err := &pgconn.PgError{
			Code:           ErrCodeUniqueViolation,
			ConstraintName: "users_email_key",
		}
		assert.Equal(t, "users_email_key", GetConstraintName(err))
	})

	t.Run("returns empty string for non-pg error", func(t *testing.T) {
		err := errors.New("generic error")
		assert.Equal(t, "", GetConstraintName(err))
	})

	t.Run("returns empty string for nil error", func(t *testing.T) {
		assert.Equal(t, "", GetConstraintName(nil))
	})

	t.Run("returns empty string when no constraint name set", func(t *testing.T) {
		err := &pgconn.PgError{Code: ErrCodeCheckViolation}
		assert.Equal(t, "", GetConstraintName(err))
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedKind apierror.Kind
		expectedCode string
	}{
		{
			name:         "invalid text representation",
			err:          &pgconn.PgError{Code: "22P02"},
			expectedKind: apierror.KindBadRequest,
			expectedCode: CodeInvalidData,
		},
		{
			name:         "numeric out of range",
			err:          &pgconn.PgError{Code: "22003"},
			expectedKind: apierror.KindBadRequest,
			expectedCode: CodeInvalidData,
		},
		{
			name:         "unique violation",
			err:          &pgconn.PgError{Code: ErrCodeUniqueViolation},
			expectedKind: apierror.KindBadRequest,
			expectedCode: CodeConstraintViolated,
		},
		{
			name:         "wrapped foreign key violation",
			err:          fmt.Errorf("insert: %w", &pgconn.PgError{Code: ErrCodeForeignKeyViolation}),
			expectedKind: apierror.KindBadRequest,
			expectedCode: CodeConstraintViolated,
		},
		{
			name:         "undefined column",
			err:          &pgconn.PgError{Code: "42703"},
			expectedKind: apierror.KindBadRequest,
			expectedCode: CodeQueryRejected,
		},
		{
			name:         "connection failure",
			err:          &pgconn.PgError{Code: "08006"},
			expectedKind: apierror.KindInternalError,
			expectedCode: "INTERNAL_ERROR",
		},
		{
			name:         "plain error",
			err:          errors.New("boom"),
			expectedKind: apierror.KindInternalError,
			expectedCode: "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err, "age|gt|1")

			var apiErr *apierror.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.expectedKind, apiErr.Kind)
			assert.Equal(t, tt.expectedCode, apiErr.Code)
			assert.Contains(t, apiErr.Message, "age|gt|1")
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_NoRows(t *testing.T) {
	assert.ErrorIs(t, classify(pgx.ErrNoRows, ""), engine.ErrNoRows)
	assert.ErrorIs(t, classify(fmt.Errorf("scan: %w", pgx.ErrNoRows), ""), engine.ErrNoRows)
}

func TestClassify_ContextErrorsAreInternal(t *testing.T) {
	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		err := classify(cause, "name|eq|x")
		assert.True(t, errors.Is(err, apierror.ErrInternalError))
		assert.ErrorIs(t, err, cause)
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, classify(nil, ""))
}
