package events

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/rishav/matching-engine/internal/journal"
	"github.com/rishav/matching-engine/internal/marketdata"
	"github.com/rishav/matching-engine/internal/orders"
	"github.com/rishav/matching-engine/internal/settlement"
)

// WriterConfig mirrors the original source's event/writer.rs
// EventWriterConfig{batch_size, batch_timeout_ms} defaults.
type WriterConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
}

// DefaultWriterConfig matches the original source's defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{BatchSize: 1000, BatchTimeout: 10 * time.Millisecond}
}

// ProjectionSinks are the downstream systems the Event Writer fans a
// committed batch out to once it is durable. Both are optional; a nil
// sink is simply skipped.
type ProjectionSinks struct {
	MarketData *marketdata.Publisher
	Clearing   *settlement.ClearingHouse

	// Pending, if set, is notified alongside the journal sweep so the
	// Gateway can drop an order from its own pending-order cache once the
	// order's terminal event is durable (see internal/gateway.Gateway.pending).
	Pending PendingForgetter
}

// PendingForgetter is implemented by the Gateway's pending-order cache.
type PendingForgetter interface {
	ForgetCompleted(orderID string)
}

// CommitCounter receives one increment per event durably committed.
// Optional — a nil counter just skips instrumentation.
type CommitCounter interface {
	IncEventsCommitted()
}

// Writer drains the Event Buffer, commits batches to Event Storage, sweeps
// the Order Journal, and projects trades into the market data and
// settlement sinks.
//
// Batching code shape kept from the teacher's internal/disruptor/batcher.go
// (ticker + size check over a channel); retargeted here at the Event
// Buffer/Event Storage pair instead of the disruptor ring buffer, per
// original source's event/writer.rs batch-on-size-or-timeout loop.
type Writer struct {
	buffer   *EventBuffer
	storage  EventStorage
	journal  journal.OrderJournal
	sinks    ProjectionSinks
	breaker  *gobreaker.CircuitBreaker
	cfg      WriterConfig
	log      zerolog.Logger
	metrics  CommitCounter
	shutdown chan struct{}
	done     chan struct{}
}

// SetMetrics attaches a commit counter. Must be called before Start.
func (w *Writer) SetMetrics(counter CommitCounter) {
	w.metrics = counter
}

// NewWriter creates an Event Writer. journal and sinks may be nil.
func NewWriter(buffer *EventBuffer, storage EventStorage, j journal.OrderJournal, sinks ProjectionSinks, cfg WriterConfig, log zerolog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "event-writer-projection",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Writer{
		buffer:   buffer,
		storage:  storage,
		journal:  j,
		sinks:    sinks,
		breaker:  breaker,
		cfg:      cfg,
		log:      log.With().Str("component", "event_writer").Logger(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the writer loop in its own goroutine.
func (w *Writer) Start() {
	go w.loop()
}

func (w *Writer) loop() {
	defer close(w.done)

	batch := make([]interface{}, 0, w.cfg.BatchSize)
	ticker := time.NewTicker(w.cfg.BatchTimeout)
	defer ticker.Stop()

	ch := w.buffer.Chan()

	for {
		select {
		case event := <-ch:
			batch = append(batch, event)
			if len(batch) >= w.cfg.BatchSize {
				w.commit(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.commit(batch)
				batch = batch[:0]
			}

		case <-w.shutdown:
			if len(batch) > 0 {
				w.commit(batch)
			}
			// Drain whatever is left in the channel before exiting.
			for {
				select {
				case event := <-ch:
					w.commit([]interface{}{event})
				default:
					return
				}
			}
		}
	}
}

// commit appends each event in batch to storage, sweeps the journal for
// the order_ids whose fate just became durable, and projects trades to
// the configured sinks.
func (w *Writer) commit(batch []interface{}) {
	for _, event := range batch {
		if _, err := w.storage.Append(event); err != nil {
			w.log.Error().Err(err).Msg("failed to append event to storage")
			continue
		}
		if w.metrics != nil {
			w.metrics.IncEventsCommitted()
		}
		w.sweepJournal(event)
		w.project(event)
	}
}

// sweepJournal marks an order_id Completed once its terminal event
// (filled, rejected, or cancelled) has been durably committed.
func (w *Writer) sweepJournal(event interface{}) {
	if w.journal == nil {
		return
	}

	var orderID string
	switch e := event.(type) {
	case *OrderRejectedEvent:
		orderID = e.OrderID
	case *OrderFilledEvent:
		orderID = e.OrderID
	case *OrderCancelledEvent:
		orderID = e.OrderID
	default:
		return
	}

	if err := w.journal.MarkCompleted(orderID); err != nil {
		w.log.Warn().Err(err).Str("order_id", orderID).Msg("journal sweep failed")
	}

	if w.sinks.Pending != nil {
		w.sinks.Pending.ForgetCompleted(orderID)
	}
}

// project fans a committed TradeExecutedEvent out to market data and
// settlement. Projection failures are non-fatal to the write path — they
// are wrapped in a circuit breaker so a failing downstream sink degrades
// gracefully instead of back-pressuring the event commit loop.
func (w *Writer) project(event interface{}) {
	trade, ok := event.(*TradeExecutedEvent)
	if !ok {
		return
	}

	if w.sinks.MarketData != nil {
		w.sinks.MarketData.PublishTrade(marketdata.TradeReport{
			TradeID:       trade.Trade.ID,
			Symbol:        trade.Trade.Symbol,
			Price:         trade.Trade.Price,
			Quantity:      trade.Trade.Quantity,
			AggressorSide: trade.Trade.TakerSide,
			Timestamp:     trade.Trade.Timestamp,
		})
	}

	if w.sinks.Clearing != nil {
		fill := fillFromTrade(trade.Trade)
		_, err := w.breaker.Execute(func() (interface{}, error) {
			_, err := w.sinks.Clearing.RecordTrade(fill)
			return nil, err
		})
		if err != nil {
			w.log.Warn().Err(err).Uint64("trade_id", trade.Trade.ID).Msg("settlement projection failed")
		}
	}
}

// fillFromTrade reconstructs an orders.Fill view of a completed trade for
// the settlement sink, which was written against the Fill shape.
func fillFromTrade(t orders.Trade) orders.Fill {
	makerOrderID, takerOrderID := t.SellOrderID, t.BuyOrderID
	makerAccount, takerAccount := t.SellerAccount, t.BuyerAccount
	if t.TakerSide == orders.SideSell {
		makerOrderID, takerOrderID = t.BuyOrderID, t.SellOrderID
		makerAccount, takerAccount = t.BuyerAccount, t.SellerAccount
	}

	return orders.Fill{
		TradeID:        t.ID,
		MakerOrderID:   makerOrderID,
		TakerOrderID:   takerOrderID,
		Price:          t.Price,
		Quantity:       t.Quantity,
		Timestamp:      t.Timestamp,
		Symbol:         t.Symbol,
		MakerAccountID: makerAccount,
		TakerAccountID: takerAccount,
		TakerSide:      t.TakerSide,
	}
}

// Shutdown flushes any buffered events and stops the writer loop.
func (w *Writer) Shutdown() {
	close(w.shutdown)
	<-w.done
}
