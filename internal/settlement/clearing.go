// Package settlement simulates the clearing and settlement process for the
// one market an engine instance serves.
//
// Trade Lifecycle:
//
// T+0 (Trade Date):
//   - Order matched → Trade executed
//   - Trade reported to clearing house
//   - Both parties notified
//
// T+1 (Trade Date + 1):
//   - Clearing house calculates obligations
//   - Netting: Reduce multiple trades to net positions
//   - Margin verification
//   - Generate settlement instructions
//
// T+2 (Settlement Date):
//   - Delivery vs Payment (DVP): Securities and cash exchanged atomically
//   - Final settlement
//   - Positions updated
//
// Why T+2?
// - Historically T+5 (paper certificates), then T+3, now T+2
// - US moving to T+1 in 2024
// - Gives time to arrange financing, locate securities
// - Risk: Counterparty might fail before settlement
//
// This is a netting/DVP simulation, not a blockchain settlement client:
// it stands in for the out-of-scope chain-specific transaction
// construction and submission a production settlement leg would do.
//
// Netting Example:
//
//	Without netting:
//	  Trade 1: A buys 100 shares from B @ $150
//	  Trade 2: A sells 60 shares to B @ $151
//	  Trade 3: A buys 40 shares from B @ $149
//	  = 3 settlements, 200 shares moved
//
//	With netting:
//	  Net: A buys 80 shares from B @ weighted avg price
//	  = 1 settlement, 80 shares moved (60% reduction!)
package settlement

import (
	"fmt"
	"sync"
	"time"

	"github.com/rishav/matching-engine/internal/orders"
)

// TradeStatus represents the settlement status of a trade.
type TradeStatus int

const (
	TradeStatusExecuted TradeStatus = iota
	TradeStatusClearing
	TradeStatusReadyToSettle
	TradeStatusSettled
	TradeStatusFailed
)

func (s TradeStatus) String() string {
	switch s {
	case TradeStatusExecuted:
		return "EXECUTED"
	case TradeStatusClearing:
		return "CLEARING"
	case TradeStatusReadyToSettle:
		return "READY_TO_SETTLE"
	case TradeStatusSettled:
		return "SETTLED"
	case TradeStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Trade represents a trade pending settlement.
type Trade struct {
	ID            uint64
	Price         int64
	Quantity      int64
	BuyerAccount  string
	SellerAccount string
	TradeTime     time.Time
	SettleDate    time.Time
	Status        TradeStatus
}

// NetPosition represents a netted position for an account in the market
// this clearing house serves.
type NetPosition struct {
	AccountID string
	NetQty    int64 // Positive = net buyer (receives shares), Negative = net seller (delivers shares)
	NetValue  int64 // Net cash value (positive = owes cash)
}

// SettlementInstruction represents what needs to happen at settlement.
type SettlementInstruction struct {
	FromAccount string
	ToAccount   string
	Quantity    int64
	CashAmount  int64 // In cents
	SettleDate  time.Time
	Status      TradeStatus
}

// Account represents an account's balances in this market: cash plus a
// single share holding, since a ClearingHouse only ever clears trades in
// the one symbol its engine instance serves.
type Account struct {
	ID       string
	Cash     int64 // Cash balance in cents
	Holdings int64 // Shares held in this clearing house's symbol
}

// ClearingHouse manages clearing and settlement for one symbol.
type ClearingHouse struct {
	symbol         string
	trades         map[uint64]*Trade
	accounts       map[string]*Account
	instructions   []SettlementInstruction
	mu             sync.RWMutex
	settlementDays int // T+N settlement (default 2)
}

// NewClearingHouse creates a clearing house for symbol.
func NewClearingHouse(symbol string) *ClearingHouse {
	return &ClearingHouse{
		symbol:         symbol,
		trades:         make(map[uint64]*Trade),
		accounts:       make(map[string]*Account),
		settlementDays: 2,
	}
}

// GetOrCreateAccount gets or creates an account.
func (ch *ClearingHouse) GetOrCreateAccount(accountID string, initialCash int64) *Account {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if acct, exists := ch.accounts[accountID]; exists {
		return acct
	}

	acct := &Account{ID: accountID, Cash: initialCash}
	ch.accounts[accountID] = acct
	return acct
}

// GetAccount retrieves an account.
func (ch *ClearingHouse) GetAccount(accountID string) *Account {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.accounts[accountID]
}

// RecordTrade records a fill in this clearing house's symbol for
// settlement. Fills for any other symbol are rejected: a ClearingHouse
// only clears the one market its engine instance trades.
func (ch *ClearingHouse) RecordTrade(fill orders.Fill) (*Trade, error) {
	if fill.Symbol != ch.symbol {
		return nil, fmt.Errorf("clearing house for %s cannot record a %s fill", ch.symbol, fill.Symbol)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	now := time.Now()
	settleDate := ch.calculateSettleDate(now)

	var buyerAccount, sellerAccount string
	if fill.TakerSide == orders.SideBuy {
		buyerAccount = fill.TakerAccountID
		sellerAccount = fill.MakerAccountID
	} else {
		buyerAccount = fill.MakerAccountID
		sellerAccount = fill.TakerAccountID
	}

	trade := &Trade{
		ID:            fill.TradeID,
		Price:         fill.Price,
		Quantity:      fill.Quantity,
		BuyerAccount:  buyerAccount,
		SellerAccount: sellerAccount,
		TradeTime:     now,
		SettleDate:    settleDate,
		Status:        TradeStatusExecuted,
	}

	ch.trades[trade.ID] = trade
	return trade, nil
}

// calculateSettleDate calculates T+N settlement date.
func (ch *ClearingHouse) calculateSettleDate(tradeDate time.Time) time.Time {
	settleDate := tradeDate
	daysAdded := 0

	for daysAdded < ch.settlementDays {
		settleDate = settleDate.AddDate(0, 0, 1)
		// Skip weekends
		if settleDate.Weekday() != time.Saturday && settleDate.Weekday() != time.Sunday {
			daysAdded++
		}
	}

	return settleDate
}

// CalculateNetting calculates net per-account positions across all
// pending trades. This reduces the number of actual transfers needed.
func (ch *ClearingHouse) CalculateNetting() map[string]NetPosition {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.calculateNettingLocked()
}

// calculateNettingLocked is the internal version that assumes the caller holds a lock.
func (ch *ClearingHouse) calculateNettingLocked() map[string]NetPosition {
	netPositions := make(map[string]NetPosition)

	for _, trade := range ch.trades {
		if trade.Status != TradeStatusExecuted && trade.Status != TradeStatusClearing {
			continue
		}

		tradeValue := trade.Price * trade.Quantity

		buyerPos := netPositions[trade.BuyerAccount]
		buyerPos.AccountID = trade.BuyerAccount
		buyerPos.NetQty += trade.Quantity // Will receive shares
		buyerPos.NetValue += tradeValue   // Owes cash
		netPositions[trade.BuyerAccount] = buyerPos

		sellerPos := netPositions[trade.SellerAccount]
		sellerPos.AccountID = trade.SellerAccount
		sellerPos.NetQty -= trade.Quantity // Will deliver shares
		sellerPos.NetValue -= tradeValue   // Will receive cash
		netPositions[trade.SellerAccount] = sellerPos
	}

	return netPositions
}

// GenerateSettlementInstructions creates settlement instructions from netted positions.
func (ch *ClearingHouse) GenerateSettlementInstructions() []SettlementInstruction {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	netPositions := ch.calculateNettingLocked()

	var receivers, deliverers []NetPosition
	for _, pos := range netPositions {
		if pos.NetQty > 0 {
			receivers = append(receivers, pos)
		} else if pos.NetQty < 0 {
			deliverers = append(deliverers, pos)
		}
	}

	var instructions []SettlementInstruction
	for _, deliverer := range deliverers {
		qtyToDeliver := -deliverer.NetQty

		for i := range receivers {
			if qtyToDeliver <= 0 {
				break
			}
			if receivers[i].NetQty <= 0 {
				continue
			}

			matchQty := min64(qtyToDeliver, receivers[i].NetQty)
			avgPrice := deliverer.NetValue / deliverer.NetQty
			cashAmount := matchQty * avgPrice

			instructions = append(instructions, SettlementInstruction{
				FromAccount: deliverer.AccountID,
				ToAccount:   receivers[i].AccountID,
				Quantity:    matchQty,
				CashAmount:  cashAmount, // Settle moves this from the receiver to the deliverer
				SettleDate:  time.Now().AddDate(0, 0, ch.settlementDays),
				Status:      TradeStatusReadyToSettle,
			})

			qtyToDeliver -= matchQty
			receivers[i].NetQty -= matchQty
		}
	}

	ch.instructions = instructions
	return instructions
}

// Settle executes settlement for all ready instructions.
func (ch *ClearingHouse) Settle() ([]SettlementInstruction, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	var settled []SettlementInstruction
	var errs []string

	for i := range ch.instructions {
		instr := &ch.instructions[i]
		if instr.Status != TradeStatusReadyToSettle {
			continue
		}

		fromAcct := ch.accounts[instr.FromAccount]
		toAcct := ch.accounts[instr.ToAccount]

		if fromAcct == nil || toAcct == nil {
			instr.Status = TradeStatusFailed
			errs = append(errs, fmt.Sprintf("account not found for instruction %s->%s",
				instr.FromAccount, instr.ToAccount))
			continue
		}

		if fromAcct.Holdings < instr.Quantity {
			instr.Status = TradeStatusFailed
			errs = append(errs, fmt.Sprintf("insufficient shares: %s has %d, needs %d",
				instr.FromAccount, fromAcct.Holdings, instr.Quantity))
			continue
		}

		if toAcct.Cash < instr.CashAmount {
			instr.Status = TradeStatusFailed
			errs = append(errs, fmt.Sprintf("insufficient cash: %s has %s, needs %s",
				instr.ToAccount, orders.FormatPrice(toAcct.Cash), orders.FormatPrice(instr.CashAmount)))
			continue
		}

		// Execute DVP (Delivery vs Payment) atomically.
		fromAcct.Holdings -= instr.Quantity
		toAcct.Holdings += instr.Quantity

		toAcct.Cash -= instr.CashAmount
		fromAcct.Cash += instr.CashAmount

		instr.Status = TradeStatusSettled
		settled = append(settled, *instr)
	}

	for _, trade := range ch.trades {
		if trade.Status == TradeStatusClearing || trade.Status == TradeStatusReadyToSettle {
			trade.Status = TradeStatusSettled
		}
	}

	if len(errs) > 0 {
		return settled, fmt.Errorf("settlement errors: %v", errs)
	}

	return settled, nil
}

// GetPendingTrades returns all trades pending settlement.
func (ch *ClearingHouse) GetPendingTrades() []*Trade {
	ch.mu.RLock()
	defer ch.mu.RUnlock()

	var pending []*Trade
	for _, trade := range ch.trades {
		if trade.Status != TradeStatusSettled && trade.Status != TradeStatusFailed {
			pending = append(pending, trade)
		}
	}
	return pending
}

// GetSettlementStats returns statistics about the settlement process.
func (ch *ClearingHouse) GetSettlementStats() map[string]int {
	ch.mu.RLock()
	defer ch.mu.RUnlock()

	stats := map[string]int{
		"total_trades": len(ch.trades),
		"executed":     0,
		"clearing":     0,
		"ready":        0,
		"settled":      0,
		"failed":       0,
		"instructions": len(ch.instructions),
	}

	for _, trade := range ch.trades {
		switch trade.Status {
		case TradeStatusExecuted:
			stats["executed"]++
		case TradeStatusClearing:
			stats["clearing"]++
		case TradeStatusReadyToSettle:
			stats["ready"]++
		case TradeStatusSettled:
			stats["settled"]++
		case TradeStatusFailed:
			stats["failed"]++
		}
	}

	return stats
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
