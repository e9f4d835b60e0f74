package database

import (
	"github.com/gridmesh/energyledger/foundation/ledger/genesis"
	"github.com/gridmesh/energyledger/foundation/ledger/signature"
)

// ChainState is the materialized snapshot of the chain: everything the
// committed transactions have produced. Exactly one authoritative state
// exists per chain height and it is reproduced deterministically by
// replaying the transaction log from genesis.
type ChainState struct {
	LastBlockNumber uint64                 `json:"last_block_number"` // Height of the last applied block.
	HasBlocks       bool                   `json:"has_blocks"`        // False until the first block is applied.
	Prosumers       map[AccountID]Prosumer `json:"prosumers"`
	Orders          map[string]Order       `json:"orders"`
	Trades          []Trade                `json:"trades"` // Append-only.
	Proposals       map[string]Proposal    `json:"proposals"`
	Config          SystemConfig           `json:"config"`
}

// NewChainState constructs the pre-genesis state from the genesis file,
// seeding prosumer accounts with their starting grid token balances.
func NewChainState(g genesis.Genesis) ChainState {
	cs := ChainState{
		Prosumers: make(map[AccountID]Prosumer),
		Orders:    make(map[string]Order),
		Trades:    []Trade{},
		Proposals: make(map[string]Proposal),
		Config: SystemConfig{
			GridFeeRate: g.GridFeeRate,
		},
	}

	for account, balance := range g.Balances {
		accountID := AccountID(account)
		cs.Prosumers[accountID] = Prosumer{
			AccountID:  accountID,
			GridTokens: balance,
		}
	}

	return cs
}

// Copy produces a deep copy of the chain state so a production cycle can
// apply transactions without the live snapshot observing partial updates.
func (cs ChainState) Copy() ChainState {
	cp := ChainState{
		LastBlockNumber: cs.LastBlockNumber,
		HasBlocks:       cs.HasBlocks,
		Prosumers:       make(map[AccountID]Prosumer, len(cs.Prosumers)),
		Orders:          make(map[string]Order, len(cs.Orders)),
		Trades:          make([]Trade, len(cs.Trades)),
		Proposals:       make(map[string]Proposal, len(cs.Proposals)),
		Config:          cs.Config,
	}

	for accountID, prosumer := range cs.Prosumers {
		cp.Prosumers[accountID] = prosumer
	}
	for id, order := range cs.Orders {
		cp.Orders[id] = order
	}
	copy(cp.Trades, cs.Trades)
	for id, proposal := range cs.Proposals {
		voters := make(map[AccountID]bool, len(proposal.Voters))
		for voter, approve := range proposal.Voters {
			voters[voter] = approve
		}
		proposal.Voters = voters
		cp.Proposals[id] = proposal
	}

	return cp
}

// StateRoot returns a hash that uniquely identifies the chain state. JSON
// marshaling sorts map keys, which keeps the hash deterministic.
func (cs ChainState) StateRoot() string {
	return signature.Hash(cs)
}
