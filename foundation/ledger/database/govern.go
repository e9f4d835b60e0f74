package database

// ProposalStatus tracks the lifecycle of a governance proposal.
type ProposalStatus string

// Set of proposal statuses.
const (
	ProposalStatusOpen   ProposalStatus = "open"
	ProposalStatusClosed ProposalStatus = "closed"
)

// Proposal represents a governance proposal being voted on by prosumers.
// Vote weight is the voter's grid token balance at the time of the vote.
type Proposal struct {
	ID             string             `json:"id"`
	Proposer       AccountID          `json:"proposer"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	VotingDeadline uint64             `json:"voting_deadline"` // Unix seconds.
	YesWeight      float64            `json:"yes_weight"`
	NoWeight       float64            `json:"no_weight"`
	Voters         map[AccountID]bool `json:"voters"` // Vote cast per account.
	Status         ProposalStatus     `json:"status"`
}

// =============================================================================

// SystemConfig holds the chain-state resident configuration that system
// config transactions may change at runtime.
type SystemConfig struct {
	GridFeeRate float64 `json:"grid_fee_rate"`
}
