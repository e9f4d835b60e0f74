package state

import (
	"fmt"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
	"github.com/gridmesh/energyledger/foundation/ledger/market"
)

// applyTransaction executes one transaction against the chain state. The
// function is deterministic: the outcome depends only on the state and the
// transaction, never on wall clock or iteration order. An error means the
// transaction must not be included in a block.
func (s *State) applyTransaction(st *database.ChainState, tx database.BlockTx) error {
	switch tx.Type {
	case database.TxTypeUserRegistration:
		return applyRegistration(st, tx)

	case database.TxTypeProsumerUpdate:
		return applyProsumerUpdate(st, tx)

	case database.TxTypeEnergyOrder:
		return applyEnergyOrder(st, tx)

	case database.TxTypeTokenTransfer:
		return applyTransfer(st, tx)

	case database.TxTypeGovernanceProposal:
		return applyProposal(st, tx)

	case database.TxTypeGovernanceVote:
		return applyVote(st, tx)

	case database.TxTypeSystemConfig:
		return s.applyConfig(st, tx)

	case database.TxTypeEnergyTrade:
		return fmt.Errorf("%w: energy trades are system generated", database.ErrValidation)
	}

	return fmt.Errorf("%w: unknown transaction type %q", database.ErrValidation, tx.Type)
}

// =============================================================================

func applyRegistration(st *database.ChainState, tx database.BlockTx) error {
	prosumer := st.Prosumers[tx.Submitter]
	if prosumer.Name != "" {
		return fmt.Errorf("%w: account %s is already registered as %q", database.ErrValidation, tx.Submitter, prosumer.Name)
	}

	prosumer.AccountID = tx.Submitter
	prosumer.Name = tx.Registration.Name
	st.Prosumers[tx.Submitter] = prosumer

	return nil
}

func applyProsumerUpdate(st *database.ChainState, tx database.BlockTx) error {
	prosumer, err := registered(st, tx.Submitter)
	if err != nil {
		return err
	}

	if tx.ProsumerUpdate.Name != "" {
		prosumer.Name = tx.ProsumerUpdate.Name
	}

	prosumer.EnergyGenerated += tx.ProsumerUpdate.EnergyGenerated
	prosumer.EnergyConsumed += tx.ProsumerUpdate.EnergyConsumed

	// Generated energy mints watt tokens one to one.
	prosumer.WattTokens += tx.ProsumerUpdate.EnergyGenerated

	st.Prosumers[tx.Submitter] = prosumer

	return nil
}

func applyEnergyOrder(st *database.ChainState, tx database.BlockTx) error {
	if tx.Order.Action == database.OrderActionCancel {
		return market.Cancel(st, tx.Order.OrderID, tx.Submitter)
	}

	prosumer, err := registered(st, tx.Submitter)
	if err != nil {
		return err
	}

	if _, exists := st.Orders[tx.Order.OrderID]; exists {
		return fmt.Errorf("%w: order %s already exists", database.ErrValidation, tx.Order.OrderID)
	}

	if tx.Order.ExpiresAt != 0 && tx.Order.ExpiresAt <= tx.TimeStamp {
		return fmt.Errorf("%w: order %s is already expired", database.ErrValidation, tx.Order.OrderID)
	}

	// The full order must be funded up front: grid tokens for a buy at the
	// limit price, watt tokens for a sell.
	switch tx.Order.Side {
	case database.OrderSideBuy:
		if cost := tx.Order.EnergyAmount * tx.Order.PricePerKWH; prosumer.GridTokens < cost {
			return fmt.Errorf("%w: account %s has %.4f grid tokens, order needs %.4f", database.ErrInsufficientBalance, tx.Submitter, prosumer.GridTokens, cost)
		}
	case database.OrderSideSell:
		if prosumer.WattTokens < tx.Order.EnergyAmount {
			return fmt.Errorf("%w: account %s has %.4f watt tokens, order needs %.4f", database.ErrInsufficientBalance, tx.Submitter, prosumer.WattTokens, tx.Order.EnergyAmount)
		}
	}

	order := database.Order{
		ID:           tx.Order.OrderID,
		Trader:       tx.Submitter,
		Side:         tx.Order.Side,
		EnergyAmount: tx.Order.EnergyAmount,
		Remaining:    tx.Order.EnergyAmount,
		PricePerKWH:  tx.Order.PricePerKWH,
		Status:       database.OrderStatusOpen,
		CreatedAt:    tx.TimeStamp,
		ExpiresAt:    tx.Order.ExpiresAt,
	}

	market.Match(st, order, tx.TimeStamp)

	return nil
}

func applyTransfer(st *database.ChainState, tx database.BlockTx) error {
	if tx.Transfer.ToID == tx.Submitter {
		return fmt.Errorf("%w: cannot transfer to self", database.ErrValidation)
	}
	if !tx.Transfer.ToID.IsAccountID() {
		return fmt.Errorf("%w: invalid recipient account %q", database.ErrValidation, tx.Transfer.ToID)
	}

	from := st.Prosumers[tx.Submitter]
	to := st.Prosumers[tx.Transfer.ToID]
	to.AccountID = tx.Transfer.ToID

	switch tx.Transfer.Token {
	case database.TokenGrid:
		if from.GridTokens < tx.Transfer.Amount {
			return fmt.Errorf("%w: account %s has %.4f grid tokens, transfer needs %.4f", database.ErrInsufficientBalance, tx.Submitter, from.GridTokens, tx.Transfer.Amount)
		}
		from.GridTokens -= tx.Transfer.Amount
		to.GridTokens += tx.Transfer.Amount

	case database.TokenWatt:
		if from.WattTokens < tx.Transfer.Amount {
			return fmt.Errorf("%w: account %s has %.4f watt tokens, transfer needs %.4f", database.ErrInsufficientBalance, tx.Submitter, from.WattTokens, tx.Transfer.Amount)
		}
		from.WattTokens -= tx.Transfer.Amount
		to.WattTokens += tx.Transfer.Amount
	}

	st.Prosumers[tx.Submitter] = from
	st.Prosumers[tx.Transfer.ToID] = to

	return nil
}

func applyProposal(st *database.ChainState, tx database.BlockTx) error {
	if _, err := registered(st, tx.Submitter); err != nil {
		return err
	}

	if _, exists := st.Proposals[tx.Proposal.ProposalID]; exists {
		return fmt.Errorf("%w: proposal %s already exists", database.ErrValidation, tx.Proposal.ProposalID)
	}

	if tx.Proposal.VotingDeadline <= tx.TimeStamp {
		return fmt.Errorf("%w: voting deadline is in the past", database.ErrValidation)
	}

	st.Proposals[tx.Proposal.ProposalID] = database.Proposal{
		ID:             tx.Proposal.ProposalID,
		Proposer:       tx.Submitter,
		Title:          tx.Proposal.Title,
		Description:    tx.Proposal.Description,
		VotingDeadline: tx.Proposal.VotingDeadline,
		Voters:         make(map[database.AccountID]bool),
		Status:         database.ProposalStatusOpen,
	}

	return nil
}

func applyVote(st *database.ChainState, tx database.BlockTx) error {
	voter, err := registered(st, tx.Submitter)
	if err != nil {
		return err
	}

	proposal, exists := st.Proposals[tx.Vote.ProposalID]
	if !exists {
		return fmt.Errorf("%w: proposal %s", database.ErrNotFound, tx.Vote.ProposalID)
	}

	// A rejected transaction must leave the state untouched, so a late vote
	// is refused here and closure is derived from the deadline at read time.
	if tx.TimeStamp > proposal.VotingDeadline {
		return fmt.Errorf("%w: voting on proposal %s has closed", database.ErrValidation, proposal.ID)
	}

	if proposal.Status != database.ProposalStatusOpen {
		return fmt.Errorf("%w: proposal %s is not open", database.ErrValidation, proposal.ID)
	}

	if _, voted := proposal.Voters[tx.Submitter]; voted {
		return fmt.Errorf("%w: account %s has already voted on proposal %s", database.ErrValidation, tx.Submitter, proposal.ID)
	}

	// Vote weight is the voter's grid token balance at the time of the vote.
	if tx.Vote.Approve {
		proposal.YesWeight += voter.GridTokens
	} else {
		proposal.NoWeight += voter.GridTokens
	}
	proposal.Voters[tx.Submitter] = tx.Vote.Approve

	st.Proposals[proposal.ID] = proposal

	return nil
}

func (s *State) applyConfig(st *database.ChainState, tx database.BlockTx) error {
	if string(tx.Submitter) != s.genesis.Operator {
		return fmt.Errorf("%w: account %s is not the grid operator", database.ErrUnauthorized, tx.Submitter)
	}

	st.Config.GridFeeRate = tx.Config.GridFeeRate

	return nil
}

// =============================================================================

// registered returns the prosumer for the account or an error when the
// account has never registered.
func registered(st *database.ChainState, accountID database.AccountID) (database.Prosumer, error) {
	prosumer, exists := st.Prosumers[accountID]
	if !exists || prosumer.Name == "" {
		return database.Prosumer{}, fmt.Errorf("%w: account %s is not a registered prosumer", database.ErrNotFound, accountID)
	}

	return prosumer, nil
}
