package database

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gridmesh/energyledger/foundation/ledger/signature"
)

// TxType identifies the variant of a transaction. Exactly one payload field
// matching the type must be set.
type TxType string

// Set of transaction variants the state machine can apply.
const (
	TxTypeUserRegistration   TxType = "user_registration"
	TxTypeProsumerUpdate     TxType = "prosumer_update"
	TxTypeEnergyOrder        TxType = "energy_order"
	TxTypeEnergyTrade        TxType = "energy_trade"
	TxTypeTokenTransfer      TxType = "token_transfer"
	TxTypeGovernanceProposal TxType = "governance_proposal"
	TxTypeGovernanceVote     TxType = "governance_vote"
	TxTypeSystemConfig       TxType = "system_config"
)

// TokenKind selects which balance a token transfer moves.
type TokenKind string

// Set of transferable token kinds.
const (
	TokenGrid TokenKind = "grid"
	TokenWatt TokenKind = "watt"
)

// OrderAction selects what an energy order transaction does to the book.
type OrderAction string

// Set of order actions.
const (
	OrderActionPlace  OrderAction = "place"
	OrderActionCancel OrderAction = "cancel"
)

// =============================================================================

// RegistrationPayload creates a prosumer account for the submitter.
type RegistrationPayload struct {
	Name string `json:"name" validate:"required,min=1,max=64"`
}

// ProsumerUpdatePayload accumulates energy accounting for the submitter.
// Generated energy mints watt tokens one to one.
type ProsumerUpdatePayload struct {
	Name            string  `json:"name,omitempty" validate:"omitempty,min=1,max=64"`
	EnergyGenerated float64 `json:"energy_generated" validate:"gte=0"`
	EnergyConsumed  float64 `json:"energy_consumed" validate:"gte=0"`
}

// EnergyOrderPayload places a new order into the book or cancels an
// existing one owned by the submitter.
type EnergyOrderPayload struct {
	OrderID      string      `json:"order_id" validate:"required,uuid4"`
	Action       OrderAction `json:"action" validate:"required,oneof=place cancel"`
	Side         OrderSide   `json:"side,omitempty" validate:"omitempty,oneof=buy sell"`
	EnergyAmount float64     `json:"energy_amount,omitempty"`
	PricePerKWH  float64     `json:"price_per_kwh,omitempty"`
	ExpiresAt    uint64      `json:"expires_at,omitempty"` // Unix seconds, zero means never.
}

// TradePayload exists to round out the transaction union. Trades are
// generated by the matching engine while an order is applied and are never
// accepted from a submitter.
type TradePayload struct {
	BuyOrderID   string  `json:"buy_order_id"`
	SellOrderID  string  `json:"sell_order_id"`
	EnergyAmount float64 `json:"energy_amount"`
	PricePerKWH  float64 `json:"price_per_kwh"`
}

// TransferPayload moves tokens from the submitter to another prosumer.
type TransferPayload struct {
	ToID   AccountID `json:"to" validate:"required"`
	Amount float64   `json:"amount" validate:"gt=0"`
	Token  TokenKind `json:"token" validate:"required,oneof=grid watt"`
}

// ProposalPayload opens a governance proposal for voting.
type ProposalPayload struct {
	ProposalID     string `json:"proposal_id" validate:"required,uuid4"`
	Title          string `json:"title" validate:"required,min=1,max=128"`
	Description    string `json:"description" validate:"max=4096"`
	VotingDeadline uint64 `json:"voting_deadline" validate:"gt=0"` // Unix seconds.
}

// VotePayload records a yes/no vote weighted by the voter's grid tokens.
type VotePayload struct {
	ProposalID string `json:"proposal_id" validate:"required,uuid4"`
	Approve    bool   `json:"approve"`
}

// ConfigPayload updates the system configuration. Only the genesis operator
// account may submit it.
type ConfigPayload struct {
	GridFeeRate float64 `json:"grid_fee_rate" validate:"gte=0,lt=1"`
}

// =============================================================================

// Tx is the tagged union of everything that can be recorded on the chain.
// The Type field selects which payload pointer is populated.
type Tx struct {
	ID        string    `json:"id" validate:"required,uuid4"`
	ChainID   uint16    `json:"chain_id"`
	Type      TxType    `json:"type"`
	Submitter AccountID `json:"submitter"`

	Registration   *RegistrationPayload   `json:"registration,omitempty"`
	ProsumerUpdate *ProsumerUpdatePayload `json:"prosumer_update,omitempty"`
	Order          *EnergyOrderPayload    `json:"order,omitempty"`
	Trade          *TradePayload          `json:"trade,omitempty"`
	Transfer       *TransferPayload       `json:"transfer,omitempty"`
	Proposal       *ProposalPayload       `json:"proposal,omitempty"`
	Vote           *VotePayload           `json:"vote,omitempty"`
	Config         *ConfigPayload         `json:"config,omitempty"`
}

var validate = validator.New()

// ValidatePayload checks the structural validity of the transaction: a known
// type, exactly the matching payload set, well-formed field values. Failures
// wrap ErrValidation so callers can classify them.
func (tx Tx) ValidatePayload() error {
	if tx.ID == "" {
		return fmt.Errorf("%w: missing transaction id", ErrValidation)
	}
	if !tx.Submitter.IsAccountID() {
		return fmt.Errorf("%w: invalid submitter account %q", ErrValidation, tx.Submitter)
	}

	payload, err := tx.payload()
	if err != nil {
		return err
	}

	if err := validate.Struct(tx); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}

	// Cross-field rules the struct tags can't express.
	if tx.Type == TxTypeEnergyOrder && tx.Order.Action == OrderActionPlace {
		if tx.Order.Side != OrderSideBuy && tx.Order.Side != OrderSideSell {
			return fmt.Errorf("%w: order side is required", ErrValidation)
		}
		if tx.Order.EnergyAmount <= 0 {
			return fmt.Errorf("%w: energy amount must be greater than zero", ErrValidation)
		}
		if tx.Order.PricePerKWH <= 0 {
			return fmt.Errorf("%w: price per kwh must be greater than zero", ErrValidation)
		}
	}

	return nil
}

// payload returns the payload value matching the transaction type and
// verifies no other payload is populated.
func (tx Tx) payload() (any, error) {
	set := map[TxType]any{}
	if tx.Registration != nil {
		set[TxTypeUserRegistration] = *tx.Registration
	}
	if tx.ProsumerUpdate != nil {
		set[TxTypeProsumerUpdate] = *tx.ProsumerUpdate
	}
	if tx.Order != nil {
		set[TxTypeEnergyOrder] = *tx.Order
	}
	if tx.Trade != nil {
		set[TxTypeEnergyTrade] = *tx.Trade
	}
	if tx.Transfer != nil {
		set[TxTypeTokenTransfer] = *tx.Transfer
	}
	if tx.Proposal != nil {
		set[TxTypeGovernanceProposal] = *tx.Proposal
	}
	if tx.Vote != nil {
		set[TxTypeGovernanceVote] = *tx.Vote
	}
	if tx.Config != nil {
		set[TxTypeSystemConfig] = *tx.Config
	}

	if len(set) != 1 {
		return nil, fmt.Errorf("%w: transaction must carry exactly one payload, got %d", ErrValidation, len(set))
	}

	payload, exists := set[tx.Type]
	if !exists {
		return nil, fmt.Errorf("%w: payload does not match transaction type %q", ErrValidation, tx.Type)
	}

	if tx.Type == TxTypeEnergyTrade {
		return nil, fmt.Errorf("%w: energy trades are system generated and cannot be submitted", ErrValidation)
	}

	return payload, nil
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx: tx,
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients
// provide transactions for inclusion into the ledger.
type SignedTx struct {
	Tx
	V *big.Int `json:"v"` // Recovery identifier.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// Validate verifies the transaction has a proper signature that conforms to
// our standards, that the signer matches the declared submitter, and that
// the payload is well formed.
func (tx SignedTx) Validate(chainID uint16) error {
	if tx.ChainID != chainID {
		return fmt.Errorf("%w: wrong chain id, got %d, exp %d", ErrValidation, tx.ChainID, chainID)
	}

	if err := tx.ValidatePayload(); err != nil {
		return err
	}

	if err := signature.VerifySignature(tx.V, tx.R, tx.S); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}

	address, err := signature.FromAddress(tx.Tx, tx.V, tx.R, tx.S)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if AccountID(address) != tx.Submitter {
		return fmt.Errorf("%w: signature does not match submitter", ErrValidation)
	}

	return nil
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%s:%s", tx.Submitter, tx.Type, tx.ID)
}

// =============================================================================

// BlockTx represents the transaction as it's recorded inside a block. The
// timestamp is assigned when the transaction is accepted into the pool and
// provides the time component of price-time priority.
type BlockTx struct {
	SignedTx
	TimeStamp uint64 `json:"timestamp"` // Unix seconds the transaction was accepted.
}

// NewBlockTx constructs a new block transaction.
func NewBlockTx(signedTx SignedTx) BlockTx {
	return BlockTx{
		SignedTx:  signedTx,
		TimeStamp: uint64(time.Now().UTC().Unix()),
	}
}

// Hash implements the merkle Hashable interface for providing a hash
// of a block transaction.
func (tx BlockTx) Hash() ([]byte, error) {
	str := signature.Hash(tx)
	return hex.DecodeString(str[2:])
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two block transactions.
func (tx BlockTx) Equals(otherTx BlockTx) bool {
	return tx.ID == otherTx.ID
}
