// Package gateway is the HTTP admission surface: it turns a client's order
// submission into a validated, risk-checked, idempotency-protected command
// on the Ingress Queue, then gets out of the way — it never touches
// matching engine state directly.
//
// Admission pipeline: market registry check -> rate limit -> assign
// order_id -> idempotency check -> parse price -> risk check ->
// journal.Append -> queue.TryEnqueue.
// Adapted from the teacher's cmd/server/main.go handler bodies
// (handleOrder/handleCancel), pulled out of main into a reusable package
// per the teacher's own stated intent that "NewServer wires all
// components."
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rishav/matching-engine/internal/journal"
	"github.com/rishav/matching-engine/internal/orders"
	"github.com/rishav/matching-engine/internal/queue"
	"github.com/rishav/matching-engine/internal/risk"
)

// NewOrderCommand is the Ingress Queue payload for a new order submission.
type NewOrderCommand struct {
	Order *orders.Order
}

// CancelOrderCommand is the Ingress Queue payload for a cancellation.
type CancelOrderCommand struct {
	Symbol  string
	OrderID string
}

// Ack is returned to the HTTP caller once a command has been admitted (or
// rejected before ever reaching the Ingress Queue).
type Ack struct {
	OrderID  string
	Accepted bool
	Reason   string
}

// SubmitRequest is the client-facing shape of a new order, before price
// parsing and order_id assignment.
type SubmitRequest struct {
	OrderID     string
	Symbol      string
	Side        orders.Side
	Type        orders.OrderType
	PriceString string
	Quantity    int64
	AccountID   string
}

// Config bundles the Gateway's tunables, layered from internal/config.Config.
type Config struct {
	IdempotencyTTL  time.Duration
	RateLimitPerSec int64
	RateLimitBurst  int64
}

// Gateway is the admission surface wiring risk checks, the order journal,
// the Ingress Queue, a multi-market registry, and a Redis-backed
// idempotency cache / rate limiter.
type Gateway struct {
	risk     *risk.Checker
	journal  journal.OrderJournal
	sender   *queue.QueueSender
	registry *MarketRegistry
	limiter  *TokenBucket
	redis    redis.Cmdable
	cfg      Config
	log      zerolog.Logger

	// pending holds the order a successful SubmitOrder call admitted,
	// keyed by order_id, until the Event Writer's journal sweep marks it
	// Completed. It exists so Reenqueue (called by the Recovery
	// Coordinator for order_ids the journal left Active across a crash)
	// has the original order payload to resubmit — the journal itself
	// only ever stores the order_id, not the command.
	pending sync.Map // order_id -> *orders.Order
}

// New creates a Gateway. redisClient may be nil, in which case idempotency
// falls back to the in-process journal alone and no rate limiting is
// applied — suitable for a single-instance deployment or tests. The rate
// limiter is built only when redisClient is non-nil and
// cfg.RateLimitPerSec > 0.
func New(riskChecker *risk.Checker, j journal.OrderJournal, sender *queue.QueueSender, registry *MarketRegistry, redisClient redis.Cmdable, cfg Config, log zerolog.Logger) *Gateway {
	g := &Gateway{
		risk:     riskChecker,
		journal:  j,
		sender:   sender,
		registry: registry,
		redis:    redisClient,
		cfg:      cfg,
		log:      log.With().Str("component", "gateway").Logger(),
	}
	if redisClient != nil && cfg.RateLimitPerSec > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = cfg.RateLimitPerSec
		}
		g.limiter = NewTokenBucket(redisClient, burst, float64(cfg.RateLimitPerSec))
	}
	return g
}

// SubmitOrder runs the full admission pipeline for a new order.
func (g *Gateway) SubmitOrder(ctx context.Context, req SubmitRequest) (*Ack, error) {
	if !g.registry.IsListed(req.Symbol) {
		return &Ack{OrderID: req.OrderID, Reason: fmt.Sprintf("unknown symbol: %s", req.Symbol)}, nil
	}

	if g.limiter != nil {
		result, err := g.limiter.Allow(ctx, req.AccountID)
		if err != nil {
			return nil, fmt.Errorf("rate limit check failed: %w", err)
		}
		if !result.Allowed {
			return &Ack{OrderID: req.OrderID, Reason: fmt.Sprintf("rate limited, retry after %s", result.RetryAfter)}, nil
		}
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}

	if dup, err := g.checkIdempotent(ctx, orderID); err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	} else if dup {
		return &Ack{OrderID: orderID, Reason: "duplicate order_id"}, nil
	}

	price, err := orders.ParsePriceString(req.PriceString)
	if err != nil {
		return &Ack{OrderID: orderID, Reason: err.Error()}, nil
	}

	order := &orders.Order{
		ID:        orderID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Price:     price,
		Quantity:  req.Quantity,
		AccountID: req.AccountID,
		Timestamp: orders.Now(),
		Status:    orders.OrderStatusNew,
	}

	if g.risk != nil {
		result := g.risk.Check(order)
		if !result.Passed {
			return &Ack{OrderID: orderID, Reason: result.Reason}, nil
		}
	}

	if err := g.journal.Append(orderID); err != nil {
		if err == journal.ErrDuplicateOrderID {
			return &Ack{OrderID: orderID, Reason: "duplicate order_id"}, nil
		}
		return nil, fmt.Errorf("journal append failed: %w", err)
	}

	g.pending.Store(orderID, order)

	if err := g.sender.TryEnqueue(NewOrderCommand{Order: order}); err != nil {
		// The journal entry now has no corresponding command in flight;
		// mark it completed immediately so a later retry with the same
		// order_id from the client isn't permanently blocked.
		_ = g.journal.MarkCompleted(orderID)
		g.pending.Delete(orderID)
		return &Ack{OrderID: orderID, Reason: "ingress queue full, retry"}, nil
	}

	return &Ack{OrderID: orderID, Accepted: true}, nil
}

// ForgetCompleted drops an order from the pending cache once its terminal
// event has been durably committed. The Event Writer calls this from its
// journal sweep so the cache doesn't grow unboundedly across a long-lived
// Gateway process.
func (g *Gateway) ForgetCompleted(orderID string) {
	g.pending.Delete(orderID)
}

// Reenqueue implements recovery.Reenqueuer: it resubmits the original
// order command for an order_id the journal left Active across a crash.
// Returns an error if the order was never held in this Gateway instance's
// pending cache (e.g. it was admitted by a different instance).
func (g *Gateway) Reenqueue(orderID string) error {
	value, ok := g.pending.Load(orderID)
	if !ok {
		return fmt.Errorf("order %s not found in pending cache, cannot reenqueue", orderID)
	}
	order := value.(*orders.Order)
	return g.sender.TryEnqueue(NewOrderCommand{Order: order})
}

// CancelOrder admits a cancellation onto the Ingress Queue.
func (g *Gateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if !g.registry.IsListed(symbol) {
		return fmt.Errorf("unknown symbol: %s", symbol)
	}
	return g.sender.TryEnqueue(CancelOrderCommand{Symbol: symbol, OrderID: orderID})
}

// checkIdempotent consults the Redis-backed cache (shared across Gateway
// instances) in addition to the local in-process journal, so a duplicate
// submission that lands on a different instance is still caught.
func (g *Gateway) checkIdempotent(ctx context.Context, orderID string) (bool, error) {
	if g.journal.IsActive(orderID) {
		return true, nil
	}

	if g.redis == nil {
		return false, nil
	}

	key := "idempotency:order:" + orderID
	ttl := g.cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	set, err := g.redis.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}
