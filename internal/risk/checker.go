// Package risk implements pre-trade risk checks for the single market an
// engine instance serves.
//
// Pre-trade risk checks are critical for:
// 1. Protecting the exchange from bad actors
// 2. Protecting traders from their own mistakes (fat finger errors)
// 3. Ensuring orderly markets
// 4. Regulatory compliance
//
// Checks run BEFORE an order reaches the matching engine, at the Gateway.
// They can run in parallel since they don't touch order book state.
//
// Common Risk Controls:
// - Order size limits (max shares per order)
// - Order value limits (max dollar value per order)
// - Price bands (reject orders too far from the last traded price)
// - Position limits (max shares held, net of side)
// - Daily volume limits (max traded per day)
package risk

import (
	"fmt"
	"sync"

	"github.com/rishav/matching-engine/internal/orders"
)

// CheckResult contains the result of a risk check.
type CheckResult struct {
	Passed    bool
	Reason    string   // If failed, why
	ChecksRun []string // List of checks that were run
}

// Config configures the risk checker for the engine's one market.
type Config struct {
	MaxOrderSize     int64   // Maximum shares per order
	MaxOrderValue    int64   // Maximum dollar value per order (in cents)
	MaxPositionSize  int64   // Maximum net position size
	MaxDailyVolume   int64   // Maximum daily trading volume per account (in cents)
	PriceBandPercent float64 // Max deviation from reference price (0.1 = 10%)
}

// DefaultConfig returns a reasonable default configuration.
func DefaultConfig() Config {
	return Config{
		MaxOrderSize:     100000,    // 100,000 shares
		MaxOrderValue:    10000000,  // $100,000
		MaxPositionSize:  1000000,   // 1,000,000 shares
		MaxDailyVolume:   100000000, // $1,000,000 daily
		PriceBandPercent: 0.10,      // 10% from reference price
	}
}

// Checker performs pre-trade risk checks for one market. A Checker is
// scoped to the symbol it was constructed with; an order for any other
// symbol is rejected before any other check runs, mirroring the matching
// engine's own single-market rejection.
type Checker struct {
	config         Config
	symbol         string
	positions      map[string]int64 // account -> net position
	dailyVolume    map[string]int64 // account -> daily volume (in cents)
	referencePrice int64            // last traded price
	mu             sync.RWMutex
}

// NewChecker creates a risk checker for symbol.
func NewChecker(symbol string, config Config) *Checker {
	return &Checker{
		config:      config,
		symbol:      symbol,
		positions:   make(map[string]int64),
		dailyVolume: make(map[string]int64),
	}
}

// Check performs all risk checks on an order. Returns immediately on the
// first failure.
func (c *Checker) Check(order *orders.Order) CheckResult {
	result := CheckResult{
		Passed:    true,
		ChecksRun: make([]string, 0),
	}

	if order.Symbol != c.symbol {
		return CheckResult{
			Passed: false,
			Reason: fmt.Sprintf("unknown symbol: %s", order.Symbol),
		}
	}

	// 1. Order size check
	result.ChecksRun = append(result.ChecksRun, "order_size")
	if order.Quantity > c.config.MaxOrderSize {
		return CheckResult{
			Passed:    false,
			Reason:    fmt.Sprintf("order size %d exceeds max %d", order.Quantity, c.config.MaxOrderSize),
			ChecksRun: result.ChecksRun,
		}
	}

	// 2. Order value check
	if order.Price > 0 {
		result.ChecksRun = append(result.ChecksRun, "order_value")
		orderValue := order.Price * order.Quantity
		if orderValue > c.config.MaxOrderValue {
			return CheckResult{
				Passed:    false,
				Reason:    fmt.Sprintf("order value %s exceeds max %s", orders.FormatPrice(orderValue), orders.FormatPrice(c.config.MaxOrderValue)),
				ChecksRun: result.ChecksRun,
			}
		}
	}

	// 3. Price band check
	if order.Type == orders.OrderTypeLimit && order.Price > 0 {
		result.ChecksRun = append(result.ChecksRun, "price_band")
		if !c.checkPriceBand(order.Price) {
			refPrice := c.GetReferencePrice()
			return CheckResult{
				Passed: false,
				Reason: fmt.Sprintf("price %s outside band (ref: %s, band: %.0f%%)",
					orders.FormatPrice(order.Price),
					orders.FormatPrice(refPrice),
					c.config.PriceBandPercent*100),
				ChecksRun: result.ChecksRun,
			}
		}
	}

	// 4. Position limit check
	result.ChecksRun = append(result.ChecksRun, "position_limit")
	if !c.checkPositionLimit(order) {
		currentPos := c.GetPosition(order.AccountID)
		return CheckResult{
			Passed:    false,
			Reason:    fmt.Sprintf("would exceed position limit (current: %d, order: %d, max: %d)", currentPos, order.Quantity, c.config.MaxPositionSize),
			ChecksRun: result.ChecksRun,
		}
	}

	// 5. Daily volume check
	if order.Price > 0 {
		result.ChecksRun = append(result.ChecksRun, "daily_volume")
		orderValue := order.Price * order.Quantity
		if !c.checkDailyVolume(order.AccountID, orderValue) {
			currentVol := c.GetDailyVolume(order.AccountID)
			return CheckResult{
				Passed:    false,
				Reason:    fmt.Sprintf("would exceed daily volume limit (current: %s, order: %s, max: %s)", orders.FormatPrice(currentVol), orders.FormatPrice(orderValue), orders.FormatPrice(c.config.MaxDailyVolume)),
				ChecksRun: result.ChecksRun,
			}
		}
	}

	return result
}

// checkPriceBand verifies price is within the acceptable range of the
// last traded price.
func (c *Checker) checkPriceBand(price int64) bool {
	c.mu.RLock()
	refPrice := c.referencePrice
	c.mu.RUnlock()

	if refPrice == 0 {
		return true // No reference price yet, allow order
	}

	band := float64(refPrice) * c.config.PriceBandPercent
	lowBound := refPrice - int64(band)
	highBound := refPrice + int64(band)

	return price >= lowBound && price <= highBound
}

// checkPositionLimit verifies the order won't push the account's net
// position past MaxPositionSize.
func (c *Checker) checkPositionLimit(order *orders.Order) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	currentPos := c.positions[order.AccountID]

	var projectedPos int64
	if order.Side == orders.SideBuy {
		projectedPos = currentPos + order.Quantity
	} else {
		projectedPos = currentPos - order.Quantity
	}

	if projectedPos < 0 {
		projectedPos = -projectedPos
	}
	return projectedPos <= c.config.MaxPositionSize
}

// checkDailyVolume verifies the order won't exceed daily volume limits.
func (c *Checker) checkDailyVolume(accountID string, orderValue int64) bool {
	c.mu.RLock()
	currentVolume := c.dailyVolume[accountID]
	c.mu.RUnlock()

	return currentVolume+orderValue <= c.config.MaxDailyVolume
}

// UpdatePosition updates an account's net position after a fill.
func (c *Checker) UpdatePosition(accountID string, side orders.Side, quantity int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if side == orders.SideBuy {
		c.positions[accountID] += quantity
	} else {
		c.positions[accountID] -= quantity
	}
}

// UpdateDailyVolume updates an account's daily volume after a fill.
func (c *Checker) UpdateDailyVolume(accountID string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyVolume[accountID] += value
}

// SetReferencePrice updates the last traded price. Called after each trade.
func (c *Checker) SetReferencePrice(price int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.referencePrice = price
}

// GetReferencePrice returns the current reference price.
func (c *Checker) GetReferencePrice() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.referencePrice
}

// GetPosition returns the current net position for an account.
func (c *Checker) GetPosition(accountID string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positions[accountID]
}

// GetDailyVolume returns the current daily volume for an account.
func (c *Checker) GetDailyVolume(accountID string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dailyVolume[accountID]
}

// ResetDailyVolume resets daily volume counters (called at start of trading day).
func (c *Checker) ResetDailyVolume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyVolume = make(map[string]int64)
}
