package recovery

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rishav/matching-engine/internal/events"
	"github.com/rishav/matching-engine/internal/journal"
	"github.com/rishav/matching-engine/internal/snapshot"
)

type fakeEngine struct {
	restored []byte
	err      error
	applied  []interface{}
}

func (e *fakeEngine) Restore(data []byte) error {
	e.restored = data
	return e.err
}

func (e *fakeEngine) ApplyReplayEvent(event interface{}) error {
	e.applied = append(e.applied, event)
	return nil
}

type fakeReenqueuer struct {
	calls []string
	fail  map[string]bool
}

func (r *fakeReenqueuer) Reenqueue(orderID string) error {
	r.calls = append(r.calls, orderID)
	if r.fail[orderID] {
		return errors.New("reenqueue boom")
	}
	return nil
}

func TestCoordinator_Recover_NoSnapshotNoJournal(t *testing.T) {
	storage := events.NewMemoryEventStorage()
	snaps := snapshot.NewMemoryStorage()
	eng := &fakeEngine{}

	c := NewCoordinator(snaps, storage, nil, eng, nil, zerolog.Nop())
	result, err := c.Recover()
	require.NoError(t, err)
	assert.False(t, result.SnapshotLoaded)
	assert.Empty(t, result.Reenqueued)
}

func TestCoordinator_Recover_LoadsSnapshotAndReplays(t *testing.T) {
	storage := events.NewMemoryEventStorage()
	accepted := &events.OrderAcceptedEvent{OrderID: "ord-1"}
	events.SetSequence(accepted, 1)
	_, err := storage.Append(accepted)
	require.NoError(t, err)
	filled := &events.OrderFilledEvent{OrderID: "ord-1"}
	events.SetSequence(filled, 2)
	_, err = storage.Append(filled)
	require.NoError(t, err)

	snaps := snapshot.NewMemoryStorage()
	require.NoError(t, snaps.Save(snapshot.Record{EventSeq: 1, Data: []byte("state")}))

	eng := &fakeEngine{}

	c := NewCoordinator(snaps, storage, nil, eng, nil, zerolog.Nop())
	result, err := c.Recover()
	require.NoError(t, err)
	assert.True(t, result.SnapshotLoaded)
	assert.Equal(t, uint64(1), result.SnapshotSeq)
	assert.Equal(t, []byte("state"), eng.restored)
	assert.Equal(t, 1, result.EventsReplayed)
	require.Len(t, eng.applied, 1)
	assert.Equal(t, filled, eng.applied[0])
}

func TestCoordinator_Recover_ReenqueuesActiveOrders(t *testing.T) {
	j := journal.NewMemoryOrderJournal()
	require.NoError(t, j.Append("ord-active"))
	require.NoError(t, j.Append("ord-done"))
	require.NoError(t, j.MarkCompleted("ord-done"))

	storage := events.NewMemoryEventStorage()
	snaps := snapshot.NewMemoryStorage()
	eng := &fakeEngine{}
	reenq := &fakeReenqueuer{fail: map[string]bool{}}

	c := NewCoordinator(snaps, storage, j, eng, reenq, zerolog.Nop())
	result, err := c.Recover()
	require.NoError(t, err)

	assert.Equal(t, []string{"ord-active"}, result.Reenqueued)
	assert.Equal(t, []string{"ord-active"}, reenq.calls)
	assert.Empty(t, result.ReenqueueErrors)
}

func TestCoordinator_Recover_ReenqueueErrorIsNonFatal(t *testing.T) {
	j := journal.NewMemoryOrderJournal()
	require.NoError(t, j.Append("ord-active"))

	storage := events.NewMemoryEventStorage()
	snaps := snapshot.NewMemoryStorage()
	eng := &fakeEngine{}
	reenq := &fakeReenqueuer{fail: map[string]bool{"ord-active": true}}

	c := NewCoordinator(snaps, storage, j, eng, reenq, zerolog.Nop())
	result, err := c.Recover()
	require.NoError(t, err)

	assert.Contains(t, result.ReenqueueErrors, "ord-active")
}

func TestCoordinator_Recover_SnapshotLoadFailureAborts(t *testing.T) {
	j := journal.NewMemoryOrderJournal()
	storage := events.NewMemoryEventStorage()
	snaps := snapshot.NewMemoryStorage()
	require.NoError(t, snaps.Save(snapshot.Record{EventSeq: 1, Data: []byte("bad")}))
	eng := &fakeEngine{err: errors.New("corrupt snapshot")}

	c := NewCoordinator(snaps, storage, j, eng, nil, zerolog.Nop())
	_, err := c.Recover()
	require.Error(t, err)
}
