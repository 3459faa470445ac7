// Package marketdata handles real-time market data distribution for the
// one market an engine instance serves.
//
// Market Data Levels:
//
// L1 (Level 1) - Top of Book:
//   - Best bid price and size
//   - Best ask price and size
//   - Last trade price and size
//   - Used by: Retail traders, basic displays
//
// L2 (Level 2) - Depth:
//   - Multiple price levels (typically top 5-10)
//   - Total size at each level
//   - Used by: Active traders, algorithms
//
// L3 (Level 3) - Full Order Book:
//   - Every individual order
//   - Rarely available to public
//   - Used by: Market makers, exchanges
//
// Distribution: in-process Go channels, fanned out over WebSocket to
// external clients by WSServer.
package marketdata

import (
	"sync"

	"github.com/rishav/matching-engine/internal/orders"
)

// L1Quote represents Level 1 (top of book) market data.
type L1Quote struct {
	Symbol    string
	BidPrice  int64
	BidSize   int64
	AskPrice  int64
	AskSize   int64
	LastPrice int64
	LastSize  int64
	Timestamp int64
}

// L2Depth represents Level 2 (depth) market data.
type L2Depth struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp int64
}

// PriceLevel represents a single price level in depth data.
type PriceLevel struct {
	Price    int64
	Quantity int64
	Count    int // Number of orders at this level
}

// TradeReport represents a trade execution report.
type TradeReport struct {
	TradeID       uint64
	Symbol        string
	Price         int64
	Quantity      int64
	AggressorSide orders.Side // Which side initiated the trade
	Timestamp     int64
}

// Publisher distributes market data for one symbol to subscribers. Since
// an engine instance serves exactly one market, every subscriber sees
// the same stream regardless of which Subscribe* method it came in
// through; the per-symbol and firehose entry points are kept separate
// only so external clients can still ask for a symbol explicitly over
// the wire without the Gateway having to reject anything but the one
// symbol it knows about.
type Publisher struct {
	mu         sync.RWMutex
	l1Subs     []chan L1Quote
	l2Subs     []chan L2Depth
	tradeSubs  []chan TradeReport
	bufferSize int
}

// NewPublisher creates a new market data publisher.
func NewPublisher(bufferSize int) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Publisher{bufferSize: bufferSize}
}

// SubscribeL1 subscribes to L1 quotes. The symbol parameter is accepted
// for API symmetry with a multi-market publisher but otherwise ignored —
// there is only one market to subscribe to.
func (p *Publisher) SubscribeL1(symbol string) <-chan L1Quote {
	return p.SubscribeAllL1()
}

// SubscribeAllL1 subscribes to L1 quotes.
func (p *Publisher) SubscribeAllL1() <-chan L1Quote {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan L1Quote, p.bufferSize)
	p.l1Subs = append(p.l1Subs, ch)
	return ch
}

// SubscribeL2 subscribes to L2 depth.
func (p *Publisher) SubscribeL2(symbol string) <-chan L2Depth {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan L2Depth, p.bufferSize)
	p.l2Subs = append(p.l2Subs, ch)
	return ch
}

// SubscribeTrades subscribes to trade reports. The symbol parameter is
// accepted for API symmetry; see SubscribeL1.
func (p *Publisher) SubscribeTrades(symbol string) <-chan TradeReport {
	return p.SubscribeAllTrades()
}

// SubscribeAllTrades subscribes to trade reports.
func (p *Publisher) SubscribeAllTrades() <-chan TradeReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan TradeReport, p.bufferSize)
	p.tradeSubs = append(p.tradeSubs, ch)
	return ch
}

// PublishL1 sends an L1 quote update to subscribers.
// Non-blocking: drops updates if a subscriber channel is full.
func (p *Publisher) PublishL1(quote L1Quote) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ch := range p.l1Subs {
		select {
		case ch <- quote:
		default:
			// Channel full, drop update (subscriber is slow)
		}
	}
}

// PublishL2 sends an L2 depth update to subscribers.
func (p *Publisher) PublishL2(depth L2Depth) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ch := range p.l2Subs {
		select {
		case ch <- depth:
		default:
		}
	}
}

// PublishTrade sends a trade report to subscribers.
func (p *Publisher) PublishTrade(trade TradeReport) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ch := range p.tradeSubs {
		select {
		case ch <- trade:
		default:
		}
	}
}

// UnsubscribeL1 removes an L1 subscription channel.
func (p *Publisher) UnsubscribeL1(symbol string, ch <-chan L1Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, sub := range p.l1Subs {
		if sub == ch {
			p.l1Subs = append(p.l1Subs[:i], p.l1Subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close closes all subscription channels.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ch := range p.l1Subs {
		close(ch)
	}
	for _, ch := range p.l2Subs {
		close(ch)
	}
	for _, ch := range p.tradeSubs {
		close(ch)
	}
}
