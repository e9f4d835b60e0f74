// Package database defines the data model for the energy market ledger:
// blocks, the transaction union, prosumers, orders, trades, the materialized
// chain state, and the storage contract every persistence backend implements.
package database

import "errors"

// Set of errors the ledger operates with. Callers classify failures with
// errors.Is against these values.
var (
	// ErrNotFound is returned when a block, transaction, order, or prosumer
	// does not exist. An empty chain reports its head this way as well.
	ErrNotFound = errors.New("not found")

	// ErrDupTransaction is the idempotency guard for transaction submission.
	ErrDupTransaction = errors.New("duplicate transaction")

	// ErrDupBlock is returned when a block with an existing number is
	// committed a second time.
	ErrDupBlock = errors.New("duplicate block")

	// ErrChainIntegrity is fatal: a hash, parent linkage, or merkle mismatch
	// was detected. Block production halts and the condition is surfaced to
	// operators, never repaired silently.
	ErrChainIntegrity = errors.New("chain integrity violation")

	// ErrInsufficientBalance rejects a transaction at application time when
	// the submitter cannot cover the required tokens.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnauthorized rejects an operation the submitter does not own.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation rejects malformed or out-of-range input before pooling.
	ErrValidation = errors.New("validation failed")

	// ErrStorage wraps a backend I/O failure. A production cycle that hits
	// one aborts without a partial commit and runs again on the next trigger.
	ErrStorage = errors.New("storage failure")
)
