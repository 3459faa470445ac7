package gateway

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rishav/matching-engine/internal/journal"
	"github.com/rishav/matching-engine/internal/orders"
	"github.com/rishav/matching-engine/internal/queue"
	"github.com/rishav/matching-engine/internal/risk"
)

func newTestGateway(t *testing.T, capacity int) (*Gateway, *queue.QueueReceiver) {
	t.Helper()

	j := journal.NewMemoryOrderJournal()
	sender, receiver := queue.New(capacity)
	registry := NewMarketRegistry("AAPL")
	riskChecker := risk.NewChecker("AAPL", risk.DefaultConfig())

	g := New(riskChecker, j, sender, registry, nil, Config{}, zerolog.Nop())
	return g, receiver
}

func validRequest() SubmitRequest {
	return SubmitRequest{
		Symbol:      "AAPL",
		Side:        orders.SideBuy,
		Type:        orders.OrderTypeLimit,
		PriceString: "150.25",
		Quantity:    10,
		AccountID:   "acct-1",
	}
}

func TestGateway_SubmitOrder_HappyPath(t *testing.T) {
	g, receiver := newTestGateway(t, 8)

	ack, err := g.SubmitOrder(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, ack)
	assert.True(t, ack.Accepted)
	assert.NotEmpty(t, ack.OrderID)

	cmd, ok := receiver.Recv()
	require.True(t, ok)
	newOrder, ok := cmd.(NewOrderCommand)
	require.True(t, ok)
	assert.Equal(t, ack.OrderID, newOrder.Order.ID)
	assert.Equal(t, int64(15025), newOrder.Order.Price)

	assert.True(t, g.journal.IsActive(ack.OrderID))
}

func TestGateway_SubmitOrder_UnknownSymbol(t *testing.T) {
	g, _ := newTestGateway(t, 8)

	req := validRequest()
	req.Symbol = "ZZZZ"

	ack, err := g.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, ack.Accepted)
	assert.Contains(t, ack.Reason, "unknown symbol")
}

func TestGateway_SubmitOrder_DuplicateOrderID(t *testing.T) {
	g, receiver := newTestGateway(t, 8)

	req := validRequest()
	req.OrderID = "client-assigned-1"

	first, err := g.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Accepted)
	_, _ = receiver.Recv()

	second, err := g.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Contains(t, second.Reason, "duplicate")
}

func TestGateway_SubmitOrder_RiskRejection(t *testing.T) {
	g, _ := newTestGateway(t, 8)

	req := validRequest()
	req.Quantity = 10_000_000 // far beyond DefaultConfig's MaxOrderSize

	ack, err := g.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, ack.Accepted)
	assert.Contains(t, ack.Reason, "order size")

	// Rejected orders never reach the journal.
	assert.False(t, g.journal.IsActive(ack.OrderID))
}

func TestGateway_SubmitOrder_QueueFull(t *testing.T) {
	g, _ := newTestGateway(t, 1)

	req1 := validRequest()
	req1.OrderID = "ord-1"
	ack1, err := g.SubmitOrder(context.Background(), req1)
	require.NoError(t, err)
	require.True(t, ack1.Accepted)

	req2 := validRequest()
	req2.OrderID = "ord-2"
	ack2, err := g.SubmitOrder(context.Background(), req2)
	require.NoError(t, err)
	assert.False(t, ack2.Accepted)
	assert.Contains(t, ack2.Reason, "queue full")

	// The journal entry for the rejected-at-enqueue order must not be left
	// dangling as Active, or the order_id could never be resubmitted.
	assert.False(t, g.journal.IsActive("ord-2"))
}

func TestGateway_SubmitOrder_InvalidPrice(t *testing.T) {
	g, _ := newTestGateway(t, 8)

	req := validRequest()
	req.PriceString = "not-a-number"

	ack, err := g.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, ack.Accepted)
}

func TestGateway_CancelOrder(t *testing.T) {
	g, receiver := newTestGateway(t, 8)

	err := g.CancelOrder(context.Background(), "AAPL", "ord-1")
	require.NoError(t, err)

	cmd, ok := receiver.Recv()
	require.True(t, ok)
	cancel, ok := cmd.(CancelOrderCommand)
	require.True(t, ok)
	assert.Equal(t, "ord-1", cancel.OrderID)
	assert.Equal(t, "AAPL", cancel.Symbol)
}

func TestGateway_CancelOrder_UnknownSymbol(t *testing.T) {
	g, _ := newTestGateway(t, 8)

	err := g.CancelOrder(context.Background(), "ZZZZ", "ord-1")
	assert.Error(t, err)
}

func TestGateway_Reenqueue(t *testing.T) {
	g, receiver := newTestGateway(t, 8)

	req := validRequest()
	req.OrderID = "ord-1"
	ack, err := g.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	require.True(t, ack.Accepted)
	_, _ = receiver.Recv() // drain the original enqueue

	err = g.Reenqueue("ord-1")
	require.NoError(t, err)

	cmd, ok := receiver.Recv()
	require.True(t, ok)
	newOrder, ok := cmd.(NewOrderCommand)
	require.True(t, ok)
	assert.Equal(t, "ord-1", newOrder.Order.ID)
}

func TestGateway_Reenqueue_NotPending(t *testing.T) {
	g, _ := newTestGateway(t, 8)

	err := g.Reenqueue("never-submitted")
	assert.Error(t, err)
}

func TestGateway_ForgetCompleted(t *testing.T) {
	g, receiver := newTestGateway(t, 8)

	req := validRequest()
	req.OrderID = "ord-1"
	_, err := g.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	_, _ = receiver.Recv()

	g.ForgetCompleted("ord-1")

	err = g.Reenqueue("ord-1")
	assert.Error(t, err)
}
