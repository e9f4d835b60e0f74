package state

import (
	"fmt"
	"sort"
	"time"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
	"github.com/gridmesh/energyledger/foundation/ledger/genesis"
	"github.com/gridmesh/energyledger/foundation/ledger/market"
)

// MarketStats aggregates trading activity across the life of the chain.
type MarketStats struct {
	TotalTrades     int     `json:"total_trades"`
	TotalEnergy     float64 `json:"total_energy"`
	TotalValue      float64 `json:"total_value"`
	TotalGridFees   float64 `json:"total_grid_fees"`
	AveragePrice    float64 `json:"average_price"`
	OpenBuyOrders   int     `json:"open_buy_orders"`
	OpenSellOrders  int     `json:"open_sell_orders"`
	RegisteredUsers int     `json:"registered_users"`
}

// ProsumerStats aggregates one prosumer's activity.
type ProsumerStats struct {
	Prosumer     database.Prosumer `json:"prosumer"`
	EnergyBought float64           `json:"energy_bought"`
	EnergySold   float64           `json:"energy_sold"`
	TradesAsBuy  int               `json:"trades_as_buyer"`
	TradesAsSell int               `json:"trades_as_seller"`
	OpenOrders   int               `json:"open_orders"`
}

// =============================================================================

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// ChainState returns a copy of the materialized state snapshot.
func (s *State) ChainState() database.ChainState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chainState.Copy()
}

// LatestBlock returns the chain head and whether one exists.
func (s *State) LatestBlock() (database.BlockData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latestBlock, s.hasBlocks
}

// ChainLength returns the number of committed blocks.
func (s *State) ChainLength() (uint64, error) {
	return s.storage.ChainLength()
}

// MempoolCount returns the number of pending transactions.
func (s *State) MempoolCount() int {
	return s.mempool.Count()
}

// QueryBlock returns the committed block at the given height.
func (s *State) QueryBlock(num uint64) (database.BlockData, error) {
	return s.storage.GetBlock(num)
}

// QueryBlockByHash returns the committed block with the given hash.
func (s *State) QueryBlockByHash(hash string) (database.BlockData, error) {
	return s.storage.GetBlockByHash(hash)
}

// QueryTransaction returns a committed transaction by id.
func (s *State) QueryTransaction(id string) (database.BlockTx, error) {
	return s.storage.GetTransaction(id)
}

// QueryProsumer returns the prosumer account for the given id.
func (s *State) QueryProsumer(accountID database.AccountID) (database.Prosumer, error) {
	st := s.ChainState()

	prosumer, exists := st.Prosumers[accountID]
	if !exists {
		return database.Prosumer{}, fmt.Errorf("%w: account %s", database.ErrNotFound, accountID)
	}

	return prosumer, nil
}

// QueryOrderBook returns the resting orders for one side of the book in
// matching priority order.
func (s *State) QueryOrderBook(side database.OrderSide) []database.Order {
	st := s.ChainState()
	return market.BookSide(&st, side, uint64(time.Now().UTC().Unix()))
}

// QueryOrder returns a single order by id.
func (s *State) QueryOrder(orderID string) (database.Order, error) {
	st := s.ChainState()

	order, exists := st.Orders[orderID]
	if !exists {
		return database.Order{}, fmt.Errorf("%w: order %s", database.ErrNotFound, orderID)
	}

	return order, nil
}

// QueryTrades returns the trade history, newest first. Pass an empty
// account id for all trades, otherwise only trades the account took part
// in are returned.
func (s *State) QueryTrades(accountID database.AccountID) []database.Trade {
	st := s.ChainState()

	trades := make([]database.Trade, 0, len(st.Trades))
	for _, trade := range st.Trades {
		if accountID != "" && trade.Buyer != accountID && trade.Seller != accountID {
			continue
		}
		trades = append(trades, trade)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ExecutedAt > trades[j].ExecutedAt
	})

	return trades
}

// QueryProposals returns all governance proposals sorted by id. A proposal
// whose deadline has passed is presented as closed; the chain state itself
// records only votes, so closure never has to be written back.
func (s *State) QueryProposals() []database.Proposal {
	st := s.ChainState()
	now := uint64(time.Now().UTC().Unix())

	proposals := make([]database.Proposal, 0, len(st.Proposals))
	for _, proposal := range st.Proposals {
		if proposal.Status == database.ProposalStatusOpen && now > proposal.VotingDeadline {
			proposal.Status = database.ProposalStatusClosed
		}
		proposals = append(proposals, proposal)
	}

	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].ID < proposals[j].ID
	})

	return proposals
}

// QueryMarketStats aggregates trading activity across the chain.
func (s *State) QueryMarketStats() MarketStats {
	st := s.ChainState()
	now := uint64(time.Now().UTC().Unix())

	stats := MarketStats{
		TotalTrades: len(st.Trades),
	}

	for _, trade := range st.Trades {
		stats.TotalEnergy += trade.EnergyAmount
		stats.TotalValue += trade.TotalPrice
		stats.TotalGridFees += trade.GridFee
	}
	if stats.TotalEnergy > 0 {
		stats.AveragePrice = stats.TotalValue / stats.TotalEnergy
	}

	stats.OpenBuyOrders = len(market.BookSide(&st, database.OrderSideBuy, now))
	stats.OpenSellOrders = len(market.BookSide(&st, database.OrderSideSell, now))

	for _, prosumer := range st.Prosumers {
		if prosumer.Name != "" {
			stats.RegisteredUsers++
		}
	}

	return stats
}

// QueryProsumerStats aggregates one prosumer's market activity.
func (s *State) QueryProsumerStats(accountID database.AccountID) (ProsumerStats, error) {
	st := s.ChainState()

	prosumer, exists := st.Prosumers[accountID]
	if !exists {
		return ProsumerStats{}, fmt.Errorf("%w: account %s", database.ErrNotFound, accountID)
	}

	stats := ProsumerStats{
		Prosumer: prosumer,
	}

	for _, trade := range st.Trades {
		if trade.Buyer == accountID {
			stats.EnergyBought += trade.EnergyAmount
			stats.TradesAsBuy++
		}
		if trade.Seller == accountID {
			stats.EnergySold += trade.EnergyAmount
			stats.TradesAsSell++
		}
	}

	now := uint64(time.Now().UTC().Unix())
	for _, side := range []database.OrderSide{database.OrderSideBuy, database.OrderSideSell} {
		for _, order := range market.BookSide(&st, side, now) {
			if order.Trader == accountID {
				stats.OpenOrders++
			}
		}
	}

	return stats, nil
}
