// Package state is the core API for the ledger and implements all the
// business rules and processing.
package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
	"github.com/gridmesh/energyledger/foundation/ledger/genesis"
	"github.com/gridmesh/energyledger/foundation/ledger/mempool"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for block production.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
}

// =============================================================================

// Config represents the configuration required to start the ledger engine.
type Config struct {
	Genesis   genesis.Genesis
	Storage   database.Storage
	EvHandler EventHandler
}

// State manages the ledger: the transaction pool, the committed chain, and
// the materialized chain state.
type State struct {
	genesis   genesis.Genesis
	storage   database.Storage
	mempool   *mempool.Mempool
	evHandler EventHandler

	// produceMu serializes block production. Only one block can be worked
	// on at a time.
	produceMu sync.Mutex

	// mu guards the live snapshot and the chain head. Block production
	// serializes on it for the swap; readers take the read lock.
	mu          sync.RWMutex
	chainState  database.ChainState
	latestBlock database.BlockData
	hasBlocks   bool

	Worker Worker
}

// New constructs the ledger engine on top of the given storage backend. The
// materialized state is loaded from the backend's snapshot; if the backend
// holds blocks but no snapshot, the state is rebuilt by replaying the chain
// from genesis.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	s := State{
		genesis:   cfg.Genesis,
		storage:   cfg.Storage,
		mempool:   mempool.New(),
		evHandler: ev,
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the engine.

	return &s, nil
}

// Shutdown cleanly brings the engine down.
func (s *State) Shutdown() error {

	// Make sure the storage backend is properly closed.
	defer func() {
		s.storage.Close()
	}()

	// Stop all block producing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// =============================================================================

// load initializes the in-memory snapshot and chain head from storage.
func (s *State) load() error {
	latest, err := s.storage.LatestBlock()
	switch {
	case errors.Is(err, database.ErrNotFound):
		s.chainState = database.NewChainState(s.genesis)
		s.evHandler("state: load: empty chain: starting from genesis state")
		return nil
	case err != nil:
		return fmt.Errorf("load latest block: %w", err)
	}

	s.latestBlock = latest
	s.hasBlocks = true

	snapshot, err := s.storage.State()
	switch {
	case errors.Is(err, database.ErrNotFound):
		snapshot, err = s.replay()
		if err != nil {
			return fmt.Errorf("replay chain: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load state snapshot: %w", err)
	}

	if snapshot.LastBlockNumber != latest.Header.Number {
		return fmt.Errorf("%w: state at block %d but chain head is %d", database.ErrChainIntegrity, snapshot.LastBlockNumber, latest.Header.Number)
	}

	s.chainState = snapshot
	s.evHandler("state: load: chain head blk[%d] hash[%s]", latest.Header.Number, latest.Hash)

	return nil
}

// replay rebuilds the materialized state by applying every committed
// transaction in block order starting from the genesis state. Transactions
// that fail to apply were rejected at production time as well, so skipping
// them reproduces the identical state.
func (s *State) replay() (database.ChainState, error) {
	s.evHandler("state: replay: rebuilding state from the chain")

	length, err := s.storage.ChainLength()
	if err != nil {
		return database.ChainState{}, err
	}

	st := database.NewChainState(s.genesis)

	for num := uint64(0); num < length; num++ {
		block, err := s.storage.GetBlock(num)
		if err != nil {
			return database.ChainState{}, err
		}

		for _, tx := range block.Trans {
			if err := s.applyTransaction(&st, tx); err != nil {
				s.evHandler("state: replay: blk[%d]: tx[%s] skipped: %s", num, tx.ID, err)
			}
		}

		st.LastBlockNumber = num
		st.HasBlocks = true

		if root := st.StateRoot(); root != block.Header.StateRoot {
			return database.ChainState{}, fmt.Errorf("%w: state root mismatch at block %d, got %s, exp %s", database.ErrChainIntegrity, num, root, block.Header.StateRoot)
		}
	}

	return st, nil
}
