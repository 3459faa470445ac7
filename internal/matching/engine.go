// Package matching implements the order matching engine.
//
// The matching engine is the heart of the exchange. It processes incoming
// limit orders for a single configured market and matches them against
// resting orders in that market's order book using price-time priority
// (FIFO at each price level). One Engine instance serves exactly one
// market — cross-market matching, order amendment, and market/IOC/FOK
// order types are out of scope; the original source's richer order-type
// support lives on in orders.OrderType for documentation purposes only.
//
// Architecture: Single-Threaded Core (LMAX Disruptor Pattern)
//
// Why single-threaded?
// 1. Determinism: Same input sequence always produces same output
// 2. No locks: Eliminates contention in the hot path
// 3. Replay: Can rebuild state by replaying event log
// 4. Simplicity: No race conditions to debug
//
// Real exchanges like LMAX achieve 6 million orders/second with this pattern.
// The key insight is that matching logic is CPU-bound, not I/O-bound, so
// parallelism doesn't help - it only adds overhead.
package matching

import (
	"fmt"
	"sync/atomic"

	"github.com/rishav/matching-engine/internal/orderbook"
	"github.com/rishav/matching-engine/internal/orders"
)

// Engine is the single-threaded order matching engine for one market.
//
// Thread Safety: ProcessOrder, CancelOrder, and HandleControl must only be
// called from a single goroutine. External synchronization is handled by
// the sequencer/ring buffer that feeds requests to the engine.
type Engine struct {
	symbol      string
	book        *orderbook.OrderBook
	sequenceNum uint64 // event sequence counter; see NextEventSeq
	tradeID     uint64 // global trade ID counter
}

// NewEngine creates a matching engine for the given market symbol.
func NewEngine(symbol string) *Engine {
	return &Engine{
		symbol: symbol,
		book:   orderbook.NewOrderBook(symbol),
	}
}

// Symbol returns the market this engine serves.
func (e *Engine) Symbol() string {
	return e.symbol
}

// Book returns the engine's order book.
func (e *Engine) Book() *orderbook.OrderBook {
	return e.book
}

// nextTradeID generates the next trade ID.
func (e *Engine) nextTradeID() uint64 {
	return atomic.AddUint64(&e.tradeID, 1)
}

// NextEventSeq assigns the next sequence number in the single canonical
// per-event numbering space. The matching loop is the only component that
// assigns event sequence numbers: internal/disruptor.EventProcessor calls
// this once per event emitted from ProcessOrder/CancelOrder's result,
// stamping each event (via events.SetSequence) in emission order before
// handing it to the Event Buffer. Nothing downstream — Event Storage, a
// snapshot's EventSeq, the Recovery Coordinator's replay cursor — assigns
// its own number; they all read back the one stamped here.
func (e *Engine) NextEventSeq() uint64 {
	return atomic.AddUint64(&e.sequenceNum, 1)
}

// ProcessOrder processes an incoming limit order and returns the
// execution result.
//
// This is the main entry point for order processing. It:
// 1. Validates the order
// 2. Attempts to match against resting orders, oldest-first at the best
//    crossing price level
// 3. Rests any remaining quantity in the book
//
// Time complexity: O(M * log P) where M = number of fills, P = price levels
func (e *Engine) ProcessOrder(order *orders.Order) *orders.ExecutionResult {
	result := &orders.ExecutionResult{
		Order:    order,
		Fills:    make([]orders.Fill, 0),
		Accepted: false,
	}

	if order.Symbol != e.symbol {
		result.RejectReason = fmt.Sprintf("unknown symbol: %s", order.Symbol)
		order.Status = orders.OrderStatusRejected
		return result
	}

	if order.Quantity <= 0 {
		result.RejectReason = "quantity must be positive"
		order.Status = orders.OrderStatusRejected
		return result
	}

	if order.Type != orders.OrderTypeLimit {
		result.RejectReason = "only limit orders are accepted"
		order.Status = orders.OrderStatusRejected
		return result
	}

	if order.Price <= 0 {
		result.RejectReason = "limit order must have positive price"
		order.Status = orders.OrderStatusRejected
		return result
	}

	// The order_id is assigned upstream (gateway or client) and carried in
	// on the command; the engine only refuses to process an order that
	// arrives without one.
	if order.ID == "" {
		result.RejectReason = "order_id must not be empty"
		order.Status = orders.OrderStatusRejected
		return result
	}

	if order.Timestamp == 0 {
		order.Timestamp = orders.Now()
	}
	order.Status = orders.OrderStatusNew
	result.Accepted = true

	result.Fills = e.matchOrder(order)

	if order.IsFilled() {
		order.Status = orders.OrderStatusFilled
	} else if order.FilledQty > 0 {
		order.Status = orders.OrderStatusPartiallyFilled
	}

	if remaining := order.RemainingQty(); remaining > 0 {
		e.book.AddOrder(order)
		result.RestingQty = remaining
	}

	return result
}

// matchOrder attempts to match an incoming limit order against resting
// orders, per price-time priority:
//
//  1. Peek the best crossing level (best ask for a buy, best bid for a
//     sell). Stop if there is none, or its price no longer crosses.
//  2. Take the oldest order resting at that level as the maker.
//  3. Trade min(taker remaining, maker remaining) at the maker's price —
//     price improvement goes to the taker, which is also the tie-break
//     when both sides name a crossing price.
//  4. If the maker is exhausted, remove it from the book; otherwise leave
//     it resting with its reduced remaining quantity so it keeps its
//     place in the FIFO queue.
//  5. Repeat until the taker is filled or no crossing level remains.
func (e *Engine) matchOrder(order *orders.Order) []orders.Fill {
	var fills []orders.Fill

	var bestLevel func() *orderbook.PriceLevel
	var crosses func(bookPrice int64) bool

	if order.Side == orders.SideBuy {
		bestLevel = e.book.GetBestAsk
		crosses = func(bookPrice int64) bool { return bookPrice <= order.Price }
	} else {
		bestLevel = e.book.GetBestBid
		crosses = func(bookPrice int64) bool { return bookPrice >= order.Price }
	}

	for order.RemainingQty() > 0 {
		level := bestLevel()
		if level == nil || !crosses(level.Price) {
			break
		}

		maker := level.Head().Order
		tradeQty := min(order.RemainingQty(), maker.RemainingQty())
		tradePrice := level.Price

		order.FilledQty += tradeQty
		maker.FilledQty += tradeQty

		fills = append(fills, orders.Fill{
			TradeID:           e.nextTradeID(),
			MakerOrderID:      maker.ID,
			TakerOrderID:      order.ID,
			Price:             tradePrice,
			Quantity:          tradeQty,
			Timestamp:         orders.Now(),
			Symbol:            order.Symbol,
			MakerAccountID:    maker.AccountID,
			TakerAccountID:    order.AccountID,
			TakerSide:         order.Side,
			MakerRemainingQty: maker.RemainingQty(),
		})

		level.UpdateQuantity(-tradeQty)
		if maker.IsFilled() {
			maker.Status = orders.OrderStatusFilled
			e.book.CancelOrder(maker.ID)
		} else {
			maker.Status = orders.OrderStatusPartiallyFilled
		}
	}

	return fills
}

// CancelOrder cancels an existing resting order by ID.
func (e *Engine) CancelOrder(orderID string) (*orders.Order, error) {
	order := e.book.CancelOrder(orderID)
	if order == nil {
		return nil, fmt.Errorf("order %s not found", orderID)
	}

	order.Status = orders.OrderStatusCancelled
	return order, nil
}

// GetOrder retrieves a resting order by ID.
func (e *Engine) GetOrder(orderID string) *orders.Order {
	return e.book.GetOrder(orderID)
}

func min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
