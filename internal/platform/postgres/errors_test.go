package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/docforge-api/internal/store"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	t.Run("nil passes through", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, mapError(nil, store.ErrTaskNotFound))
	})

	t.Run("no rows maps to the given sentinel", func(t *testing.T) {
		t.Parallel()

		err := mapError(sql.ErrNoRows, store.ErrTaskNotFound)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)

		err = mapError(fmt.Errorf("wrapped: %w", sql.ErrNoRows), store.ErrItemNotFound)
		assert.ErrorIs(t, err, store.ErrItemNotFound)
	})

	t.Run("unique violation maps to ErrDuplicate", func(t *testing.T) {
		t.Parallel()

		pgErr := &pgconn.PgError{Code: uniqueViolationCode}
		err := mapError(pgErr, store.ErrBatchNotFound)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("other errors pass through unchanged", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("connection reset")
		assert.Same(t, cause, mapError(cause, store.ErrTaskNotFound))
	})
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: uniqueViolationCode}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: uniqueViolationCode})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("not a pg error")))
}

type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestRowsChanged(t *testing.T) {
	t.Parallel()

	assert.NoError(t, rowsChanged(fakeResult{rows: 1}, store.ErrTaskNotFound))
	assert.ErrorIs(t, rowsChanged(fakeResult{rows: 0}, store.ErrBatchNotFound), store.ErrBatchNotFound)

	err := rowsChanged(fakeResult{err: errors.New("driver broke")}, store.ErrTaskNotFound)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rows affected")
}
