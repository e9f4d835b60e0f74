// Package level implements the database.Storage interface on top of a
// LevelDB key/value store. Blocks, indexes, and the state snapshot are
// written through a single batch so a commit is all or nothing.
package level

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
)

// Key prefixes partition the keyspace per record type.
const (
	prefixBlock = "b:" // prefixBlock + big-endian number -> block JSON
	prefixHash  = "h:" // prefixHash + block hash -> big-endian number
	prefixTx    = "t:" // prefixTx + tx id -> transaction JSON
)

// Singleton keys.
var (
	keyHead  = []byte("head")  // big-endian number of the chain head
	keyState = []byte("state") // chain state snapshot JSON
)

// Level represents the LevelDB storage implementation. This implements the
// database.Storage interface.
type Level struct {
	mu sync.RWMutex
	db *leveldb.DB
}

// New opens or creates the LevelDB database at the given path.
func New(dbPath string) (*Level, error) {
	db, err := leveldb.OpenFile(dbPath, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %q: %w", dbPath, err)
	}

	return &Level{db: db}, nil
}

// Close releases the database handle.
func (l *Level) Close() error {
	return l.db.Close()
}

// Commit appends the block and replaces the state snapshot in one batch.
func (l *Level) Commit(block database.BlockData, state database.ChainState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkParent(block); err != nil {
		return err
	}

	blockData, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	stateData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	num := encodeNum(block.Header.Number)

	batch := new(leveldb.Batch)
	batch.Put(blockKey(block.Header.Number), blockData)
	batch.Put([]byte(prefixHash+block.Hash), num)
	for _, tx := range block.Trans {
		txData, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("marshal transaction %s: %w", tx.ID, err)
		}
		batch.Put([]byte(prefixTx+tx.ID), txData)
	}
	batch.Put(keyHead, num)
	batch.Put(keyState, stateData)

	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("%w: write batch: %s", database.ErrStorage, err)
	}

	return nil
}

// LatestBlock returns the chain head.
func (l *Level) LatestBlock() (database.BlockData, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := l.db.Get(keyHead, nil)
	if err != nil {
		return database.BlockData{}, notFound(err, "chain is empty")
	}

	return l.readBlock(decodeNum(data))
}

// GetBlock returns the block at the given height.
func (l *Level) GetBlock(num uint64) (database.BlockData, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.readBlock(num)
}

// GetBlockByHash returns the block with the given hash.
func (l *Level) GetBlockByHash(hash string) (database.BlockData, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := l.db.Get([]byte(prefixHash+hash), nil)
	if err != nil {
		return database.BlockData{}, notFound(err, "block "+hash)
	}

	return l.readBlock(decodeNum(data))
}

// GetTransaction returns a committed transaction by id.
func (l *Level) GetTransaction(id string) (database.BlockTx, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := l.db.Get([]byte(prefixTx+id), nil)
	if err != nil {
		return database.BlockTx{}, notFound(err, "transaction "+id)
	}

	var tx database.BlockTx
	if err := json.Unmarshal(data, &tx); err != nil {
		return database.BlockTx{}, fmt.Errorf("unmarshal transaction %s: %w", id, err)
	}

	return tx, nil
}

// State returns the persisted snapshot.
func (l *Level) State() (database.ChainState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := l.db.Get(keyState, nil)
	if err != nil {
		return database.ChainState{}, notFound(err, "no state committed")
	}

	var state database.ChainState
	if err := json.Unmarshal(data, &state); err != nil {
		return database.ChainState{}, fmt.Errorf("unmarshal state: %w", err)
	}

	return state, nil
}

// ChainLength returns the number of committed blocks.
func (l *Level) ChainLength() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := l.db.Get(keyHead, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read head: %w", err)
	}

	return decodeNum(data) + 1, nil
}

// =============================================================================

func (l *Level) readBlock(num uint64) (database.BlockData, error) {
	data, err := l.db.Get(blockKey(num), nil)
	if err != nil {
		return database.BlockData{}, notFound(err, fmt.Sprintf("block %d", num))
	}

	var block database.BlockData
	if err := json.Unmarshal(data, &block); err != nil {
		return database.BlockData{}, fmt.Errorf("unmarshal block %d: %w", num, err)
	}

	return block, nil
}

// checkParent validates the block extends the current head. Must be called
// with the write lock held.
func (l *Level) checkParent(block database.BlockData) error {
	data, err := l.db.Get(keyHead, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		if block.Header.Number != 0 {
			return fmt.Errorf("%w: first block must be number 0, got %d", database.ErrChainIntegrity, block.Header.Number)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read head: %w", err)
	}

	headNum := decodeNum(data)
	if block.Header.Number <= headNum {
		return fmt.Errorf("%w: block %d already committed", database.ErrDupBlock, block.Header.Number)
	}
	if block.Header.Number != headNum+1 {
		return fmt.Errorf("%w: block %d does not follow head %d", database.ErrChainIntegrity, block.Header.Number, headNum)
	}

	head, err := l.readBlock(headNum)
	if err != nil {
		return err
	}
	if block.Header.ParentHash != head.Hash {
		return fmt.Errorf("%w: parent hash %s does not match head %s", database.ErrChainIntegrity, block.Header.ParentHash, head.Hash)
	}

	return nil
}

func blockKey(num uint64) []byte {
	key := make([]byte, len(prefixBlock)+8)
	copy(key, prefixBlock)
	binary.BigEndian.PutUint64(key[len(prefixBlock):], num)
	return key
}

func encodeNum(num uint64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, num)
	return data
}

func decodeNum(data []byte) uint64 {
	return binary.BigEndian.Uint64(data)
}

// notFound maps leveldb's missing-key error onto the storage contract.
func notFound(err error, what string) error {
	if errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("%w: %s", database.ErrNotFound, what)
	}
	return err
}
