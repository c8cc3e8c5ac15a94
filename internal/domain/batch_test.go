package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() json.RawMessage {
	return json.RawMessage(`{"template":"certificate","recipients":10}`)
}

func TestNewBatchTask(t *testing.T) {
	t.Parallel()

	t.Run("valid batch", func(t *testing.T) {
		t.Parallel()

		batch, err := NewBatchTask(validParams(), 10)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, batch.ID)
		assert.Equal(t, BatchStatusPending, batch.Status)
		assert.Equal(t, 10, batch.TotalItems)
		assert.Zero(t, batch.CompletedItems)
		assert.Zero(t, batch.FailedItems)
	})

	t.Run("empty batch rejected", func(t *testing.T) {
		t.Parallel()

		batch, err := NewBatchTask(validParams(), 0)
		assert.ErrorIs(t, err, ErrEmptyBatch)
		assert.Nil(t, batch)
	})

	t.Run("empty params", func(t *testing.T) {
		t.Parallel()

		batch, err := NewBatchTask(nil, 5)
		assert.ErrorIs(t, err, ErrEmptyBatchParams)
		assert.Nil(t, batch)
	})
}

func TestBatchTask_Items(t *testing.T) {
	t.Parallel()

	batch, err := NewBatchTask(validParams(), 4)
	require.NoError(t, err)

	items := batch.Items()
	require.Len(t, items, 4)

	for i, item := range items {
		assert.Equal(t, batch.ID, item.BatchID)
		assert.Equal(t, i+1, item.ItemNo)
		assert.Equal(t, ItemStatusPending, item.Status)
	}
}

func TestBatchTask_Terminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   BatchStatus
		terminal bool
	}{
		{BatchStatusPending, false},
		{BatchStatusRunning, false},
		{BatchStatusCompleted, true},
		{BatchStatusStopped, true},
		{BatchStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()

			batch := BatchTask{Status: tt.status}
			assert.Equal(t, tt.terminal, batch.Terminal())
		})
	}
}
