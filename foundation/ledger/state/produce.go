package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are no transactions to include.
var ErrNoTransactions = errors.New("no transactions in mempool")

// RejectedTx reports a pooled transaction that failed the business rules
// during block production and why, so the submitter can be told instead of
// the transaction disappearing silently.
type RejectedTx struct {
	TxID string
	Err  error
}

// ProduceBlock attempts to create a new block that becomes the next block in
// the chain. Transactions are read from the pool in arrival order and each is
// applied to a working copy of the state; the ones that fail are reported in
// the rejected set. The pool is mutated only after the cycle settles: a
// cancelled or failed cycle leaves every transaction in place for the next
// trigger, a committed block removes the transactions it consumed.
func (s *State) ProduceBlock(ctx context.Context) (database.Block, []RejectedTx, error) {
	s.produceMu.Lock()
	defer s.produceMu.Unlock()

	s.evHandler("state: ProduceBlock: MINING: check mempool count")

	if s.mempool.Count() == 0 {
		return database.Block{}, nil, ErrNoTransactions
	}

	trans := s.mempool.PickBest(int(s.genesis.TransPerBlock))

	parent, hasParent := s.latestBlockHeader()
	number := uint64(0)
	if hasParent {
		number = parent.Number + 1
	}

	s.evHandler("state: ProduceBlock: MINING: apply transactions to working state")

	st := s.ChainState()
	applied := make([]database.BlockTx, 0, len(trans))
	var rejected []RejectedTx
	for _, tx := range trans {
		if err := s.applyTransaction(&st, tx); err != nil {
			s.evHandler("state: ProduceBlock: WARNING: tx[%s] rejected: %s", tx.ID, err)
			rejected = append(rejected, RejectedTx{TxID: tx.ID, Err: err})
			continue
		}
		applied = append(applied, tx)
	}

	// Rejections are terminal: the submitter has been told and resubmission
	// requires caller action, so the transactions leave the pool even when
	// nothing is left to mine.
	if len(applied) == 0 {
		s.removeFromPool(trans)
		return database.Block{}, rejected, ErrNoTransactions
	}

	st.LastBlockNumber = number
	st.HasBlocks = true

	s.evHandler("state: ProduceBlock: MINING: perform POW")

	// Attempt to create a new block by solving the POW puzzle.
	// This can be cancelled.
	block, err := database.POW(ctx, s.genesis.Difficulty, parent, hasParent, st.StateRoot(), applied, s.evHandler)
	if err != nil {
		return database.Block{}, rejected, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, rejected, ctx.Err()
	}

	s.evHandler("state: ProduceBlock: MINING: commit to storage and update state")

	if err := s.commitBlock(block, st); err != nil {
		return database.Block{}, rejected, err
	}

	s.removeFromPool(trans)

	return block, rejected, nil
}

// ProcessExternalBlock takes a block produced elsewhere, validates it against
// the current head and the state machine, and commits it. Any in-flight
// production is cancelled first since the head is about to move.
func (s *State) ProcessExternalBlock(block database.Block) error {
	s.evHandler("state: ProcessExternalBlock: started: blk[%s]", block.Hash())
	defer s.evHandler("state: ProcessExternalBlock: completed")

	if s.Worker != nil {
		done := s.Worker.SignalCancelMining()
		defer done()
	}

	s.produceMu.Lock()
	defer s.produceMu.Unlock()

	parent, hasParent := s.latestBlockHeader()

	if err := block.ValidateBlock(parent, hasParent, s.evHandler); err != nil {
		return err
	}

	// Replay the block's transactions on a copy of the state and require
	// the declared state root to match.
	st := s.ChainState()
	for _, tx := range block.Trans.Values() {
		if err := s.applyTransaction(&st, tx); err != nil {
			return fmt.Errorf("%w: tx %s does not apply: %s", database.ErrChainIntegrity, tx.ID, err)
		}
	}
	st.LastBlockNumber = block.Header.Number
	st.HasBlocks = true

	if root := st.StateRoot(); root != block.Header.StateRoot {
		return fmt.Errorf("%w: state root mismatch, got %s, exp %s", database.ErrChainIntegrity, root, block.Header.StateRoot)
	}

	return s.commitBlock(block, st)
}

// =============================================================================

// removeFromPool deletes the transactions a settled production cycle has
// consumed.
func (s *State) removeFromPool(trans []database.BlockTx) {
	for _, tx := range trans {
		s.mempool.Delete(tx)
	}
}

// commitBlock persists the block with its state snapshot and swaps the live
// state to the new snapshot.
func (s *State) commitBlock(block database.Block, st database.ChainState) error {
	blockData := database.NewBlockData(block)

	if err := s.storage.Commit(blockData, st); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.chainState = st
	s.latestBlock = blockData
	s.hasBlocks = true

	return nil
}

// latestBlockHeader returns the chain head header and whether one exists.
func (s *State) latestBlockHeader() (database.BlockHeader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latestBlock.Header, s.hasBlocks
}
