package market_test

import (
	"errors"
	"testing"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
	"github.com/gridmesh/energyledger/foundation/ledger/genesis"
	"github.com/gridmesh/energyledger/foundation/ledger/market"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	buyerID  = database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
	sellerID = database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	thirdID  = database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")
)

// newState builds a chain state with three funded prosumers and the given
// grid fee rate.
func newState(feeRate float64) database.ChainState {
	st := database.NewChainState(genesis.Genesis{
		GridFeeRate: feeRate,
		Balances: map[string]float64{
			string(buyerID):  1000,
			string(sellerID): 1000,
			string(thirdID):  1000,
		},
	})

	for id, p := range st.Prosumers {
		p.Name = "prosumer-" + string(id[:6])
		p.WattTokens = 500
		st.Prosumers[id] = p
	}

	return st
}

func sellOrder(id string, trader database.AccountID, amount float64, price float64, at uint64) database.Order {
	return database.Order{
		ID:           id,
		Trader:       trader,
		Side:         database.OrderSideSell,
		EnergyAmount: amount,
		Remaining:    amount,
		PricePerKWH:  price,
		Status:       database.OrderStatusOpen,
		CreatedAt:    at,
	}
}

func buyOrder(id string, trader database.AccountID, amount float64, price float64, at uint64) database.Order {
	o := sellOrder(id, trader, amount, price, at)
	o.Side = database.OrderSideBuy
	return o
}

// =============================================================================

func Test_PartialFillAtRestingPrice(t *testing.T) {
	t.Log("Given the need to fill an incoming order at the resting order's price.")
	{
		t.Log("\tTest 0:\tWhen a buy for 100 kwh at 0.20 meets a resting sell of 60 kwh at 0.15.")
		{
			st := newState(0)

			market.Match(&st, sellOrder("0a", sellerID, 60, 0.15, 100), 100)
			trades := market.Match(&st, buyOrder("0b", buyerID, 100, 0.20, 200), 200)

			if len(trades) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould produce one trade: got %d", failed, len(trades))
			}
			t.Logf("\t%s\tTest 0:\tShould produce one trade.", success)

			if trades[0].EnergyAmount != 60 || trades[0].PricePerKWH != 0.15 {
				t.Fatalf("\t%s\tTest 0:\tShould trade 60 kwh at 0.15: got %.2f at %.2f", failed, trades[0].EnergyAmount, trades[0].PricePerKWH)
			}
			t.Logf("\t%s\tTest 0:\tShould trade 60 kwh at 0.15.", success)

			buy := st.Orders["0b"]
			if buy.Remaining != 40 || buy.Status != database.OrderStatusPartial {
				t.Fatalf("\t%s\tTest 0:\tShould rest the buy with 40 kwh remaining: got %.2f %s", failed, buy.Remaining, buy.Status)
			}
			t.Logf("\t%s\tTest 0:\tShould rest the buy with 40 kwh remaining.", success)

			sell := st.Orders["0a"]
			if sell.Remaining != 0 || sell.Status != database.OrderStatusFilled {
				t.Fatalf("\t%s\tTest 0:\tShould fully fill the sell: got %.2f %s", failed, sell.Remaining, sell.Status)
			}
			t.Logf("\t%s\tTest 0:\tShould fully fill the sell.", success)

			buyer := st.Prosumers[buyerID]
			seller := st.Prosumers[sellerID]
			if buyer.GridTokens != 1000-9 || buyer.WattTokens != 560 {
				t.Fatalf("\t%s\tTest 0:\tShould settle the buyer: grid %.2f watt %.2f", failed, buyer.GridTokens, buyer.WattTokens)
			}
			if seller.GridTokens != 1000+9 || seller.WattTokens != 440 {
				t.Fatalf("\t%s\tTest 0:\tShould settle the seller: grid %.2f watt %.2f", failed, seller.GridTokens, seller.WattTokens)
			}
			t.Logf("\t%s\tTest 0:\tShould settle both parties.", success)
		}
	}
}

func Test_PriceTimePriority(t *testing.T) {
	t.Log("Given the need to match against the best price first, then arrival time, then order id.")
	{
		t.Log("\tTest 0:\tWhen two resting sells differ in price.")
		{
			st := newState(0)

			market.Match(&st, sellOrder("aa", sellerID, 50, 0.20, 100), 100)
			market.Match(&st, sellOrder("ab", thirdID, 50, 0.10, 200), 200)

			trades := market.Match(&st, buyOrder("ac", buyerID, 50, 0.25, 300), 300)

			if len(trades) != 1 || trades[0].SellOrderID != "ab" {
				t.Fatalf("\t%s\tTest 0:\tShould match the cheaper sell first.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould match the cheaper sell first.", success)

			if trades[0].PricePerKWH != 0.10 {
				t.Fatalf("\t%s\tTest 0:\tShould trade at the resting price 0.10: got %.2f", failed, trades[0].PricePerKWH)
			}
			t.Logf("\t%s\tTest 0:\tShould trade at the resting price.", success)
		}

		t.Log("\tTest 1:\tWhen two resting sells share a price but differ in arrival time.")
		{
			st := newState(0)

			market.Match(&st, sellOrder("ba", sellerID, 50, 0.10, 200), 200)
			market.Match(&st, sellOrder("bb", thirdID, 50, 0.10, 100), 100)

			trades := market.Match(&st, buyOrder("bc", buyerID, 50, 0.10, 300), 300)

			if len(trades) != 1 || trades[0].SellOrderID != "bb" {
				t.Fatalf("\t%s\tTest 1:\tShould match the earlier sell first.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould match the earlier sell first.", success)
		}

		t.Log("\tTest 2:\tWhen two resting sells share a price and arrival time.")
		{
			st := newState(0)

			market.Match(&st, sellOrder("cb", sellerID, 50, 0.10, 100), 100)
			market.Match(&st, sellOrder("ca", thirdID, 50, 0.10, 100), 100)

			trades := market.Match(&st, buyOrder("cc", buyerID, 50, 0.10, 300), 300)

			if len(trades) != 1 || trades[0].SellOrderID != "ca" {
				t.Fatalf("\t%s\tTest 2:\tShould break the tie by order id.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould break the tie by order id.", success)
		}
	}
}

func Test_GridFee(t *testing.T) {
	t.Log("Given the need to retain a grid fee from the seller's proceeds.")
	{
		t.Log("\tTest 0:\tWhen the grid fee rate is 5 percent.")
		{
			st := newState(0.05)

			market.Match(&st, sellOrder("da", sellerID, 100, 0.10, 100), 100)
			trades := market.Match(&st, buyOrder("db", buyerID, 100, 0.10, 200), 200)

			if len(trades) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould produce one trade: got %d", failed, len(trades))
			}

			trade := trades[0]
			if trade.TotalPrice != 10 || trade.GridFee != 0.5 {
				t.Fatalf("\t%s\tTest 0:\tShould compute total 10 and fee 0.5: got %.4f and %.4f", failed, trade.TotalPrice, trade.GridFee)
			}
			t.Logf("\t%s\tTest 0:\tShould compute the fee from the total.", success)

			buyer := st.Prosumers[buyerID]
			seller := st.Prosumers[sellerID]
			if buyer.GridTokens != 990 {
				t.Fatalf("\t%s\tTest 0:\tShould debit the buyer the full total: got %.4f", failed, buyer.GridTokens)
			}
			if seller.GridTokens != 1009.5 {
				t.Fatalf("\t%s\tTest 0:\tShould credit the seller net of the fee: got %.4f", failed, seller.GridTokens)
			}
			t.Logf("\t%s\tTest 0:\tShould settle net of the fee.", success)
		}
	}
}

func Test_Cancel(t *testing.T) {
	t.Log("Given the need to cancel only an open order owned by the requester.")
	{
		st := newState(0)
		market.Match(&st, sellOrder("ea", sellerID, 50, 0.10, 100), 100)

		t.Log("\tTest 0:\tWhen the order does not exist.")
		{
			err := market.Cancel(&st, "missing", sellerID)
			if !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("\t%s\tTest 0:\tShould get ErrNotFound: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get ErrNotFound.", success)
		}

		t.Log("\tTest 1:\tWhen the requester does not own the order.")
		{
			err := market.Cancel(&st, "ea", buyerID)
			if !errors.Is(err, database.ErrUnauthorized) {
				t.Fatalf("\t%s\tTest 1:\tShould get ErrUnauthorized: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get ErrUnauthorized.", success)
		}

		t.Log("\tTest 2:\tWhen the owner cancels an open order.")
		{
			if err := market.Cancel(&st, "ea", sellerID); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to cancel: %v", failed, err)
			}
			if st.Orders["ea"].Status != database.OrderStatusCancelled {
				t.Fatalf("\t%s\tTest 2:\tShould flag the order cancelled.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould be able to cancel.", success)
		}

		t.Log("\tTest 3:\tWhen the order is already cancelled.")
		{
			err := market.Cancel(&st, "ea", sellerID)
			if !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("\t%s\tTest 3:\tShould get ErrNotFound: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould get ErrNotFound.", success)
		}
	}
}

func Test_ExpiredOrdersSkipped(t *testing.T) {
	t.Log("Given the need to skip expired resting orders during matching.")
	{
		t.Log("\tTest 0:\tWhen the best priced sell has expired.")
		{
			st := newState(0)

			expired := sellOrder("fa", sellerID, 50, 0.05, 100)
			expired.ExpiresAt = 150
			market.Match(&st, expired, 100)
			market.Match(&st, sellOrder("fb", thirdID, 50, 0.10, 100), 100)

			trades := market.Match(&st, buyOrder("fc", buyerID, 50, 0.20, 300), 300)

			if len(trades) != 1 || trades[0].SellOrderID != "fb" {
				t.Fatalf("\t%s\tTest 0:\tShould skip the expired sell.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould skip the expired sell.", success)

			if st.Orders["fa"].Status != database.OrderStatusCancelled {
				t.Fatalf("\t%s\tTest 0:\tShould flag the expired order cancelled.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould flag the expired order cancelled.", success)
		}
	}
}

func Test_SelfMatchPrevented(t *testing.T) {
	t.Log("Given the need to keep a trader from trading with themselves.")
	{
		t.Log("\tTest 0:\tWhen a buy crosses the trader's own resting sell.")
		{
			st := newState(0)

			market.Match(&st, sellOrder("ga", sellerID, 50, 0.10, 100), 100)
			trades := market.Match(&st, buyOrder("gb", sellerID, 50, 0.20, 200), 200)

			if len(trades) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould not produce a trade: got %d", failed, len(trades))
			}
			t.Logf("\t%s\tTest 0:\tShould not produce a trade.", success)
		}
	}
}

func Test_UnfundedRestingOrderRemoved(t *testing.T) {
	t.Log("Given the need to drop a resting order its owner can no longer fund.")
	{
		t.Log("\tTest 0:\tWhen the seller's watt tokens are gone before the fill.")
		{
			st := newState(0)

			market.Match(&st, sellOrder("ha", sellerID, 50, 0.10, 100), 100)
			market.Match(&st, sellOrder("hb", thirdID, 50, 0.20, 100), 100)

			// Drain the first seller's watt tokens out from under the order.
			p := st.Prosumers[sellerID]
			p.WattTokens = 0
			st.Prosumers[sellerID] = p

			trades := market.Match(&st, buyOrder("hc", buyerID, 50, 0.25, 300), 300)

			if len(trades) != 1 || trades[0].SellOrderID != "hb" {
				t.Fatalf("\t%s\tTest 0:\tShould fill from the funded seller.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould fill from the funded seller.", success)

			if st.Orders["ha"].Status != database.OrderStatusCancelled {
				t.Fatalf("\t%s\tTest 0:\tShould cancel the unfunded resting order.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould cancel the unfunded resting order.", success)
		}
	}
}
