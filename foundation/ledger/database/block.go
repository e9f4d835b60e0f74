package database

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/gridmesh/energyledger/foundation/ledger/merkle"
	"github.com/gridmesh/energyledger/foundation/ledger/signature"
)

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number     uint64 `json:"number"`      // Block height, strictly increasing from 0.
	ParentHash string `json:"parent_hash"` // Hash of the previous block in the chain.
	TimeStamp  uint64 `json:"timestamp"`   // Unix seconds the block was produced.
	Nonce      uint64 `json:"nonce"`       // Value identified to solve the work problem.
	Difficulty uint16 `json:"difficulty"`  // Number of leading zeros needed to solve the work problem.
	TransRoot  string `json:"trans_root"`  // Merkle tree root hash for the transactions in this block.
	StateRoot  string `json:"state_root"`  // Hash of the chain state after applying this block.
}

// Block represents a group of transactions batched together.
type Block struct {
	Header BlockHeader
	Trans  *merkle.Tree[BlockTx]
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic puzzle. The parent hash is the zero hash when
// producing the genesis block.
func POW(ctx context.Context, difficulty uint16, parent BlockHeader, hasParent bool, stateRoot string, trans []BlockTx, ev func(v string, args ...any)) (Block, error) {
	parentHash := signature.ZeroHash
	number := uint64(0)
	if hasParent {
		parentHash = parent.Hash()
		number = parent.Number + 1
	}

	// The root of this tree is part of the block to be mined.
	tree, err := merkle.NewTree(trans)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Header: BlockHeader{
			Number:     number,
			ParentHash: parentHash,
			TimeStamp:  uint64(time.Now().UTC().Unix()),
			Nonce:      0, // Identified by the POW search below.
			Difficulty: difficulty,
			TransRoot:  tree.RootHex(),
			StateRoot:  stateRoot,
		},
		Trans: tree,
	}

	if err := nb.performPOW(ctx, ev); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("database: performPOW: mining: started: blk[%d]", b.Header.Number)
	defer ev("database: performPOW: mining: completed: blk[%d]", b.Header.Number)

	// Choose a random starting point for the nonce and increment from there.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return err
	}
	b.Header.Nonce = nBig.Uint64()

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: performPOW: mining: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			ev("database: performPOW: mining: cancelled")
			return ctx.Err()
		}

		hash := b.Header.Hash()
		if !isHashSolved(b.Header.Difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		ev("database: performPOW: mining: solved: prevBlk[%s]: newBlk[%s]: attempts[%d]", b.Header.ParentHash, hash, attempts)

		return nil
	}
}

// Hash returns the unique hash for the block header. Hashing the header and
// not the whole block lets the chain be verified from headers alone, with
// the merkle root covering the transaction set.
func (bh BlockHeader) Hash() string {
	return signature.Hash(bh)
}

// Hash returns the unique hash for the block.
func (b Block) Hash() string {
	return b.Header.Hash()
}

// ValidateBlock takes a block and validates it to be included into the
// chain after the specified parent. Pass hasParent false when validating
// the genesis block. All failures wrap ErrChainIntegrity.
func (b Block) ValidateBlock(parent BlockHeader, hasParent bool, ev func(v string, args ...any)) error {
	ev("database: ValidateBlock: blk[%d]: check: block hash has been solved", b.Header.Number)

	hash := b.Hash()
	if !isHashSolved(b.Header.Difficulty, hash) {
		return fmt.Errorf("%w: block hash %s does not meet difficulty %d", ErrChainIntegrity, hash, b.Header.Difficulty)
	}

	nextNumber := uint64(0)
	parentHash := signature.ZeroHash
	if hasParent {
		nextNumber = parent.Number + 1
		parentHash = parent.Hash()
	}

	ev("database: ValidateBlock: blk[%d]: check: block number is the next number", b.Header.Number)

	if b.Header.Number != nextNumber {
		return fmt.Errorf("%w: block is not the next number, got %d, exp %d", ErrChainIntegrity, b.Header.Number, nextNumber)
	}

	ev("database: ValidateBlock: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.ParentHash != parentHash {
		return fmt.Errorf("%w: parent hash doesn't match, got %s, exp %s", ErrChainIntegrity, b.Header.ParentHash, parentHash)
	}

	if hasParent && b.Header.TimeStamp < parent.TimeStamp {
		return fmt.Errorf("%w: block timestamp %d is before parent %d", ErrChainIntegrity, b.Header.TimeStamp, parent.TimeStamp)
	}

	ev("database: ValidateBlock: blk[%d]: check: merkle root does match transactions", b.Header.Number)

	if b.Header.TransRoot != b.Trans.RootHex() {
		return fmt.Errorf("%w: merkle root does not match transactions, got %s, exp %s", ErrChainIntegrity, b.Trans.RootHex(), b.Header.TransRoot)
	}

	return nil
}

// isHashSolved checks the hash complies with the POW rules: a difficulty
// number of leading zeros after the 0x prefix.
func isHashSolved(difficulty uint16, hash string) bool {
	if len(hash) != 66 || !strings.HasPrefix(hash, "0x") {
		return false
	}

	digits := hash[2:]
	for i := 0; i < int(difficulty); i++ {
		if digits[i] != '0' {
			return false
		}
	}

	return true
}

// =============================================================================

// BlockData represents what is written to storage.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"header"`
	Trans  []BlockTx   `json:"trans"`
}

// NewBlockData constructs the value to persist.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Trans.Values(),
	}
}

// ToBlock converts a stored BlockData into a Block.
func ToBlock(blockData BlockData) (Block, error) {
	tree, err := merkle.NewTree(blockData.Trans)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Header: blockData.Header,
		Trans:  tree,
	}

	return nb, nil
}
