package database

// Storage represents the behavior required to be implemented by any backend
// providing persistence for the chain and its materialized state. All
// methods must be safe for concurrent readers; Commit is the single writer
// path and persists the block and state snapshot as one atomic unit so a
// partially applied commit is never observable.
type Storage interface {
	// Commit appends the block and replaces the state snapshot atomically.
	// It fails with ErrChainIntegrity when the block's parent hash does not
	// match the current head, and ErrDupBlock when the number exists.
	Commit(block BlockData, state ChainState) error

	// LatestBlock returns the chain head, or ErrNotFound before genesis.
	LatestBlock() (BlockData, error)

	// GetBlock returns the block at the given height, or ErrNotFound.
	GetBlock(num uint64) (BlockData, error)

	// GetBlockByHash returns the block with the given hash, or ErrNotFound.
	GetBlockByHash(hash string) (BlockData, error)

	// GetTransaction returns a committed transaction by id, or ErrNotFound.
	GetTransaction(id string) (BlockTx, error)

	// State returns the persisted snapshot, or ErrNotFound when no block
	// has ever been committed.
	State() (ChainState, error)

	// ChainLength returns the number of committed blocks.
	ChainLength() (uint64, error)

	// Close releases backend resources.
	Close() error
}
