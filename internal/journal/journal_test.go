package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOrderJournal_AppendAndIsActive(t *testing.T) {
	j := NewMemoryOrderJournal()

	require.NoError(t, j.Append("ord-1"))
	assert.True(t, j.IsActive("ord-1"))
	assert.False(t, j.IsActive("ord-unknown"))
}

func TestMemoryOrderJournal_AppendDuplicate(t *testing.T) {
	j := NewMemoryOrderJournal()

	require.NoError(t, j.Append("ord-1"))
	err := j.Append("ord-1")
	assert.ErrorIs(t, err, ErrDuplicateOrderID)
}

func TestMemoryOrderJournal_MarkCompleted(t *testing.T) {
	j := NewMemoryOrderJournal()

	require.NoError(t, j.Append("ord-1"))
	require.NoError(t, j.MarkCompleted("ord-1"))
	assert.False(t, j.IsActive("ord-1"))

	err := j.MarkCompleted("ord-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryOrderJournal_Replay(t *testing.T) {
	j := NewMemoryOrderJournal()

	require.NoError(t, j.Append("ord-1"))
	require.NoError(t, j.Append("ord-2"))
	require.NoError(t, j.MarkCompleted("ord-1"))

	entries := j.Replay()
	require.Len(t, entries, 2)
	assert.Equal(t, "ord-1", entries[0].OrderID)
	assert.Equal(t, StatusCompleted, entries[0].Status)
	assert.Equal(t, "ord-2", entries[1].OrderID)
	assert.Equal(t, StatusActive, entries[1].Status)
}

func TestMemoryOrderJournal_Compact(t *testing.T) {
	j := NewMemoryOrderJournal()

	require.NoError(t, j.Append("ord-1"))
	require.NoError(t, j.Append("ord-2"))
	require.NoError(t, j.MarkCompleted("ord-1"))

	j.Compact()

	entries := j.Replay()
	require.Len(t, entries, 1)
	assert.Equal(t, "ord-2", entries[0].OrderID)
	assert.False(t, j.IsActive("ord-1"))
}

func TestMemoryOrderJournal_AppendAfterCompact(t *testing.T) {
	j := NewMemoryOrderJournal()

	require.NoError(t, j.Append("ord-1"))
	require.NoError(t, j.MarkCompleted("ord-1"))
	j.Compact()

	// Once compacted, the order ID is eligible for reuse — the journal
	// only protects against duplicates within a live idempotency window.
	require.NoError(t, j.Append("ord-1"))
	assert.True(t, j.IsActive("ord-1"))
}
