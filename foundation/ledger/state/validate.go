package state

import (
	"fmt"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
)

// ValidateChain walks the committed chain from genesis and verifies every
// link: the work on each block, the parent hash chain, the merkle root over
// the transactions, and the state root produced by replaying them. Returns
// the number of blocks verified.
func (s *State) ValidateChain() (uint64, error) {
	s.evHandler("state: ValidateChain: started")
	defer s.evHandler("state: ValidateChain: completed")

	length, err := s.storage.ChainLength()
	if err != nil {
		return 0, err
	}

	st := database.NewChainState(s.genesis)

	var parent database.BlockHeader
	hasParent := false

	for num := uint64(0); num < length; num++ {
		blockData, err := s.storage.GetBlock(num)
		if err != nil {
			return num, err
		}

		block, err := database.ToBlock(blockData)
		if err != nil {
			return num, err
		}

		if err := block.ValidateBlock(parent, hasParent, s.evHandler); err != nil {
			return num, err
		}

		for _, tx := range blockData.Trans {
			if err := s.applyTransaction(&st, tx); err != nil {
				return num, fmt.Errorf("%w: blk[%d] tx %s does not apply: %s", database.ErrChainIntegrity, num, tx.ID, err)
			}
		}
		st.LastBlockNumber = num
		st.HasBlocks = true

		if root := st.StateRoot(); root != block.Header.StateRoot {
			return num, fmt.Errorf("%w: state root mismatch at block %d, got %s, exp %s", database.ErrChainIntegrity, num, root, block.Header.StateRoot)
		}

		parent = block.Header
		hasParent = true
	}

	return length, nil
}
