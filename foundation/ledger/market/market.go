// Package market implements the order matching engine: a continuous double
// auction with price-time priority. Matching mutates the chain state it is
// given and is deterministic, so replaying the transaction log reproduces
// the same fills, trades, and settlements.
package market

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
)

// Match applies an incoming order against the opposite side of the book.
// Each crossing resting order produces a trade for the overlapping amount
// at the resting order's price. Settlement moves grid and watt tokens as
// part of the same application. Any unfilled remainder rests in the book.
//
// The caller is responsible for having checked the incoming trader can fund
// the full order; settlement still re-checks both parties per fill because
// earlier fills may have consumed balances.
func Match(st *database.ChainState, incoming database.Order, now uint64) []database.Trade {
	var trades []database.Trade

	for incoming.Remaining > 0 {
		resting, exists := bestOpposite(st, incoming, now)
		if !exists || !crosses(incoming, resting) {
			break
		}

		amount := incoming.Remaining
		if resting.Remaining < amount {
			amount = resting.Remaining
		}
		price := resting.PricePerKWH

		buyOrder, sellOrder := incoming, resting
		if incoming.Side == database.OrderSideSell {
			buyOrder, sellOrder = resting, incoming
		}

		// A party that can no longer fund its resting order is removed
		// from the book; an incoming party that cannot fund stops matching
		// and rests with what remains.
		if !canSettle(st, buyOrder.Trader, sellOrder.Trader, amount, price) {
			if resting.ID == buyOrder.ID && !canFundBuy(st, buyOrder.Trader, amount, price) ||
				resting.ID == sellOrder.ID && !canFundSell(st, sellOrder.Trader, amount) {
				resting.Status = database.OrderStatusCancelled
				st.Orders[resting.ID] = resting
				continue
			}
			break
		}

		trade := settle(st, buyOrder, sellOrder, amount, price, now)
		trades = append(trades, trade)

		incoming.Fill(amount)
		resting.Fill(amount)
		st.Orders[resting.ID] = resting
	}

	if incoming.Remaining > 0 && incoming.Status != database.OrderStatusPartial {
		incoming.Status = database.OrderStatusOpen
	}
	st.Orders[incoming.ID] = incoming

	return trades
}

// Cancel removes the unexecuted remainder of an order owned by the
// requester. Executed trades are never reversed.
func Cancel(st *database.ChainState, orderID string, requester database.AccountID) error {
	order, exists := st.Orders[orderID]
	if !exists {
		return fmt.Errorf("%w: order %s", database.ErrNotFound, orderID)
	}

	if order.Trader != requester {
		return fmt.Errorf("%w: order %s is not owned by %s", database.ErrUnauthorized, orderID, requester)
	}

	if order.Remaining <= 0 || order.Status == database.OrderStatusFilled || order.Status == database.OrderStatusCancelled {
		return fmt.Errorf("%w: order %s has no remaining amount", database.ErrNotFound, orderID)
	}

	order.Status = database.OrderStatusCancelled
	st.Orders[orderID] = order

	return nil
}

// BookSide returns the resting orders for one side of the book in matching
// priority order: best price first, then earliest submission, then order id.
func BookSide(st *database.ChainState, side database.OrderSide, now uint64) []database.Order {
	var book []database.Order
	for _, order := range st.Orders {
		if order.Side != side || !restable(order) || order.Expired(now) {
			continue
		}
		book = append(book, order)
	}

	sortBook(book, side)

	return book
}

// =============================================================================

// bestOpposite finds the highest priority resting order on the opposite
// side of the book. Expired resting orders encountered during the scan are
// flagged cancelled.
func bestOpposite(st *database.ChainState, incoming database.Order, now uint64) (database.Order, bool) {
	opposite := database.OrderSideSell
	if incoming.Side == database.OrderSideSell {
		opposite = database.OrderSideBuy
	}

	var book []database.Order
	for _, order := range st.Orders {
		if order.Side != opposite || !restable(order) {
			continue
		}
		if order.Expired(now) {
			order.Status = database.OrderStatusCancelled
			st.Orders[order.ID] = order
			continue
		}
		if order.Trader == incoming.Trader {
			continue
		}
		book = append(book, order)
	}

	if len(book) == 0 {
		return database.Order{}, false
	}

	sortBook(book, opposite)

	return book[0], true
}

// sortBook orders a book slice by price-time priority with the order id as
// the final tie break so matching is a total order.
func sortBook(book []database.Order, side database.OrderSide) {
	sort.Slice(book, func(i, j int) bool {
		if book[i].PricePerKWH != book[j].PricePerKWH {
			if side == database.OrderSideBuy {
				return book[i].PricePerKWH > book[j].PricePerKWH
			}
			return book[i].PricePerKWH < book[j].PricePerKWH
		}
		if book[i].CreatedAt != book[j].CreatedAt {
			return book[i].CreatedAt < book[j].CreatedAt
		}
		return book[i].ID < book[j].ID
	})
}

// restable reports whether an order still participates in the book.
func restable(order database.Order) bool {
	return (order.Status == database.OrderStatusOpen || order.Status == database.OrderStatusPartial) && order.Remaining > 0
}

// crosses reports whether the two orders overlap in price.
func crosses(incoming database.Order, resting database.Order) bool {
	if incoming.Side == database.OrderSideBuy {
		return incoming.PricePerKWH >= resting.PricePerKWH
	}
	return resting.PricePerKWH >= incoming.PricePerKWH
}

func canFundBuy(st *database.ChainState, buyer database.AccountID, amount float64, price float64) bool {
	return st.Prosumers[buyer].GridTokens >= amount*price
}

func canFundSell(st *database.ChainState, seller database.AccountID, amount float64) bool {
	return st.Prosumers[seller].WattTokens >= amount
}

func canSettle(st *database.ChainState, buyer database.AccountID, seller database.AccountID, amount float64, price float64) bool {
	return canFundBuy(st, buyer, amount, price) && canFundSell(st, seller, amount)
}

// settle executes the token flows for a fill and records the trade: the
// buyer pays amount x price grid tokens, the grid retains its fee, the
// seller receives the rest, and watt tokens move seller to buyer.
func settle(st *database.ChainState, buyOrder database.Order, sellOrder database.Order, amount float64, price float64, now uint64) database.Trade {
	total := amount * price
	fee := total * st.Config.GridFeeRate

	buyer := st.Prosumers[buyOrder.Trader]
	seller := st.Prosumers[sellOrder.Trader]

	buyer.GridTokens -= total
	seller.GridTokens += total - fee
	buyer.WattTokens += amount
	seller.WattTokens -= amount

	st.Prosumers[buyOrder.Trader] = buyer
	st.Prosumers[sellOrder.Trader] = seller

	trade := database.Trade{
		ID:           tradeID(buyOrder.ID, sellOrder.ID, len(st.Trades)),
		BuyOrderID:   buyOrder.ID,
		SellOrderID:  sellOrder.ID,
		Buyer:        buyOrder.Trader,
		Seller:       sellOrder.Trader,
		EnergyAmount: amount,
		PricePerKWH:  price,
		TotalPrice:   total,
		GridFee:      fee,
		ExecutedAt:   now,
	}
	st.Trades = append(st.Trades, trade)

	return trade
}

// tradeID derives a deterministic id from the participating orders and the
// trade sequence so replaying the chain reproduces identical trades.
func tradeID(buyOrderID string, sellOrderID string, sequence int) string {
	name := fmt.Sprintf("%s:%s:%d", buyOrderID, sellOrderID, sequence)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
