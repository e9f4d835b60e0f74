// Package mempool maintains the pool of transactions waiting to be included
// in a block. Admission order is preserved: transactions leave the pool for
// block production in exactly the order they arrived.
package mempool

import (
	"fmt"
	"sync"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
)

// Mempool represents a cache of pending transactions ordered first in,
// first out.
type Mempool struct {
	mu    sync.RWMutex
	queue []database.BlockTx
	index map[string]struct{}
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		index: make(map[string]struct{}),
	}
}

// Upsert adds a transaction to the back of the pool. A transaction id that
// is already pending is rejected with ErrDupTransaction.
func (mp *Mempool) Upsert(tx database.BlockTx) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.index[tx.ID]; exists {
		return fmt.Errorf("%w: transaction %s already pending", database.ErrDupTransaction, tx.ID)
	}

	mp.queue = append(mp.queue, tx)
	mp.index[tx.ID] = struct{}{}

	return nil
}

// Contains reports whether the transaction id is pending.
func (mp *Mempool) Contains(id string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.index[id]
	return exists
}

// PickBest returns copies of up to howMany transactions from the front of
// the pool without removing them. A production cycle that is cancelled or
// fails leaves the pool intact; the producer deletes the picked transactions
// only once their cycle has committed. Pass a value <= 0 for all.
func (mp *Mempool) PickBest(howMany int) []database.BlockTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if howMany <= 0 || howMany > len(mp.queue) {
		howMany = len(mp.queue)
	}

	picked := make([]database.BlockTx, howMany)
	copy(picked, mp.queue[:howMany])

	return picked
}

// Delete removes the transaction from the pool.
func (mp *Mempool) Delete(tx database.BlockTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.index[tx.ID]; !exists {
		return
	}

	for i, pending := range mp.queue {
		if pending.ID == tx.ID {
			mp.queue = append(mp.queue[:i], mp.queue[i+1:]...)
			break
		}
	}
	delete(mp.index, tx.ID)
}

// Count returns the number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.queue)
}

// Truncate clears the pool of all transactions.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.queue = nil
	mp.index = make(map[string]struct{})
}
