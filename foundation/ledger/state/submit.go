package state

import (
	"errors"
	"fmt"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
)

// SubmitTransaction accepts a signed transaction for inclusion in a block.
// The signature and payload are checked here; balance and business rules are
// enforced when the transaction is applied during production. The pool
// timestamp assigned on admission is the time component of price-time
// priority.
func (s *State) SubmitTransaction(signedTx database.SignedTx) error {
	if err := signedTx.Validate(s.genesis.ChainID); err != nil {
		return err
	}

	if err := s.checkDuplicate(signedTx.ID); err != nil {
		return err
	}

	tx := database.NewBlockTx(signedTx)

	if err := s.mempool.Upsert(tx); err != nil {
		return err
	}

	s.evHandler("state: SubmitTransaction: accepted: tx[%s]", signedTx)

	if s.Worker != nil && s.mempool.Count() >= int(s.genesis.TransPerBlock) {
		s.Worker.SignalStartMining()
	}

	return nil
}

// checkDuplicate rejects a transaction id that is already pending or
// already committed to the chain.
func (s *State) checkDuplicate(id string) error {
	if s.mempool.Contains(id) {
		return fmt.Errorf("%w: transaction %s already pending", database.ErrDupTransaction, id)
	}

	_, err := s.storage.GetTransaction(id)
	switch {
	case err == nil:
		return fmt.Errorf("%w: transaction %s already committed", database.ErrDupTransaction, id)
	case errors.Is(err, database.ErrNotFound):
		return nil
	}

	return err
}
