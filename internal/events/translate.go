package events

import "github.com/rishav/matching-engine/internal/orders"

// FromExecutionResult converts the matching engine's output for a single
// incoming order into the ordered stream of events that must be appended to
// the log. Sequence numbers are left zero here; the matching loop stamps
// each one via events.SetSequence, in this call order, immediately before
// pushing it onto the Event Buffer — that call order is what fixes the
// final sequence order, not anything storage does with it.
//
// Order emitted, mirroring the matching loop itself:
//  1. Per fill: TradeExecuted, then MakerOrderFilled or MakerOrderPartiallyFilled.
//  2. Taker completion: OrderFilled, or OrderPartiallyFilled (+OrderAccepted for
//     the resting residual, or OrderCancelled if the order's status is Cancelled).
//  3. No fills: OrderAccepted for the resting order (or OrderCancelled, as
//     above). A rejected order yields a single OrderRejected and nothing else.
func FromExecutionResult(order *orders.Order, result *orders.ExecutionResult) []interface{} {
	now := orders.Now()
	var out []interface{}

	if !result.Accepted {
		out = append(out, &OrderRejectedEvent{
			Event:   Event{Timestamp: now, Type: EventTypeOrderRejected},
			OrderID: order.ID,
			Symbol:  order.Symbol,
			Reason:  result.RejectReason,
		})
		return out
	}

	for _, fill := range result.Fills {
		out = append(out, &TradeExecutedEvent{
			Event: Event{Timestamp: fill.Timestamp, Type: EventTypeTradeExecuted},
			Trade: orders.Trade{
				ID:            fill.TradeID,
				Symbol:        fill.Symbol,
				Price:         fill.Price,
				Quantity:      fill.Quantity,
				BuyOrderID:    buyOrderID(order, fill),
				SellOrderID:   sellOrderID(order, fill),
				BuyerAccount:  buyerAccount(order, fill),
				SellerAccount: sellerAccount(order, fill),
				Timestamp:     fill.Timestamp,
				TakerSide:     fill.TakerSide,
			},
		})

		if fill.MakerRemainingQty == 0 {
			out = append(out, &MakerOrderFilledEvent{
				Event:      Event{Timestamp: fill.Timestamp, Type: EventTypeMakerOrderFilled},
				OrderID:    fill.MakerOrderID,
				Symbol:     fill.Symbol,
				FilledSize: fill.Quantity,
			})
		} else {
			out = append(out, &MakerOrderPartiallyFilledEvent{
				Event:         Event{Timestamp: fill.Timestamp, Type: EventTypeMakerOrderPartiallyFilled},
				OrderID:       fill.MakerOrderID,
				Symbol:        fill.Symbol,
				FilledSize:    fill.Quantity,
				RemainingSize: fill.MakerRemainingQty,
			})
		}
	}

	switch {
	case order.IsFilled():
		out = append(out, &OrderFilledEvent{
			Event:      Event{Timestamp: now, Type: EventTypeOrderFilled},
			OrderID:    order.ID,
			Symbol:     order.Symbol,
			FilledSize: order.FilledQty,
		})

	case order.FilledQty > 0:
		out = append(out, &OrderPartiallyFilledEvent{
			Event:         Event{Timestamp: now, Type: EventTypeOrderPartiallyFilled},
			OrderID:       order.ID,
			Symbol:        order.Symbol,
			FilledSize:    order.FilledQty,
			RemainingSize: order.RemainingQty(),
		})
		if order.Status == orders.OrderStatusCancelled {
			out = append(out, &OrderCancelledEvent{
				Event:         Event{Timestamp: now, Type: EventTypeOrderCancelled},
				OrderID:       order.ID,
				Symbol:        order.Symbol,
				RemainingSize: order.RemainingQty(),
			})
		} else {
			out = append(out, &OrderAcceptedEvent{
				Event:   Event{Timestamp: now, Type: EventTypeOrderAccepted},
				OrderID: order.ID,
				Symbol:  order.Symbol,
				Side:    order.Side,
				Price:   order.Price,
				Size:    order.RemainingQty(),
			})
		}

	default:
		// No trades occurred at all.
		if order.Status == orders.OrderStatusCancelled {
			out = append(out, &OrderCancelledEvent{
				Event:         Event{Timestamp: now, Type: EventTypeOrderCancelled},
				OrderID:       order.ID,
				Symbol:        order.Symbol,
				RemainingSize: order.RemainingQty(),
			})
		} else {
			out = append(out, &OrderAcceptedEvent{
				Event:   Event{Timestamp: now, Type: EventTypeOrderAccepted},
				OrderID: order.ID,
				Symbol:  order.Symbol,
				Side:    order.Side,
				Price:   order.Price,
				Size:    order.RemainingQty(),
			})
		}
	}

	return out
}

func buyOrderID(taker *orders.Order, f orders.Fill) string {
	if taker.Side == orders.SideBuy {
		return f.TakerOrderID
	}
	return f.MakerOrderID
}

func sellOrderID(taker *orders.Order, f orders.Fill) string {
	if taker.Side == orders.SideBuy {
		return f.MakerOrderID
	}
	return f.TakerOrderID
}

func buyerAccount(taker *orders.Order, f orders.Fill) string {
	if taker.Side == orders.SideBuy {
		return f.TakerAccountID
	}
	return f.MakerAccountID
}

func sellerAccount(taker *orders.Order, f orders.Fill) string {
	if taker.Side == orders.SideBuy {
		return f.MakerAccountID
	}
	return f.TakerAccountID
}
