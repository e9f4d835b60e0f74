// Package memory implements the database.Storage interface entirely in
// memory. Nothing survives a restart, which makes it the backend of choice
// for tests and local experimentation.
package memory

import (
	"fmt"
	"sync"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
)

// Memory represents the in-memory storage implementation. This implements
// the database.Storage interface.
type Memory struct {
	mu       sync.RWMutex
	blocks   []database.BlockData
	byHash   map[string]int
	byTxID   map[string]database.BlockTx
	state    database.ChainState
	hasState bool
}

// New constructs an empty in-memory store.
func New() *Memory {
	return &Memory{
		byHash: make(map[string]int),
		byTxID: make(map[string]database.BlockTx),
	}
}

// Close in this implementation has nothing to release.
func (m *Memory) Close() error {
	return nil
}

// Commit appends the block and replaces the state snapshot as one unit.
func (m *Memory) Commit(block database.BlockData, state database.ChainState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(block.Header.Number) < len(m.blocks) {
		return fmt.Errorf("%w: block %d already committed", database.ErrDupBlock, block.Header.Number)
	}

	if err := m.checkParent(block); err != nil {
		return err
	}

	m.blocks = append(m.blocks, block)
	m.byHash[block.Hash] = len(m.blocks) - 1
	for _, tx := range block.Trans {
		m.byTxID[tx.ID] = tx
	}
	m.state = state.Copy()
	m.hasState = true

	return nil
}

// LatestBlock returns the chain head.
func (m *Memory) LatestBlock() (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.blocks) == 0 {
		return database.BlockData{}, fmt.Errorf("%w: chain is empty", database.ErrNotFound)
	}

	return m.blocks[len(m.blocks)-1], nil
}

// GetBlock returns the block at the given height.
func (m *Memory) GetBlock(num uint64) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if int(num) >= len(m.blocks) {
		return database.BlockData{}, fmt.Errorf("%w: block %d", database.ErrNotFound, num)
	}

	return m.blocks[num], nil
}

// GetBlockByHash returns the block with the given hash.
func (m *Memory) GetBlockByHash(hash string) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, exists := m.byHash[hash]
	if !exists {
		return database.BlockData{}, fmt.Errorf("%w: block %s", database.ErrNotFound, hash)
	}

	return m.blocks[idx], nil
}

// GetTransaction returns a committed transaction by id.
func (m *Memory) GetTransaction(id string) (database.BlockTx, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, exists := m.byTxID[id]
	if !exists {
		return database.BlockTx{}, fmt.Errorf("%w: transaction %s", database.ErrNotFound, id)
	}

	return tx, nil
}

// State returns the persisted snapshot.
func (m *Memory) State() (database.ChainState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasState {
		return database.ChainState{}, fmt.Errorf("%w: no state committed", database.ErrNotFound)
	}

	return m.state.Copy(), nil
}

// ChainLength returns the number of committed blocks.
func (m *Memory) ChainLength() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return uint64(len(m.blocks)), nil
}

// checkParent validates the block extends the current head. Must be called
// with the write lock held.
func (m *Memory) checkParent(block database.BlockData) error {
	if len(m.blocks) == 0 {
		if block.Header.Number != 0 {
			return fmt.Errorf("%w: first block must be number 0, got %d", database.ErrChainIntegrity, block.Header.Number)
		}
		return nil
	}

	head := m.blocks[len(m.blocks)-1]
	if block.Header.Number != head.Header.Number+1 {
		return fmt.Errorf("%w: block %d does not follow head %d", database.ErrChainIntegrity, block.Header.Number, head.Header.Number)
	}
	if block.Header.ParentHash != head.Hash {
		return fmt.Errorf("%w: parent hash %s does not match head %s", database.ErrChainIntegrity, block.Header.ParentHash, head.Hash)
	}

	return nil
}
