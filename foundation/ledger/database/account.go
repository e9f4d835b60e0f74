package database

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// AccountID represents an account id that is used to participate in the
// market and is derived from a public key.
type AccountID string

// ToAccountID converts a hex-encoded string to an account and validates
// the hex-encoded string is formatted correctly.
func ToAccountID(hex string) (AccountID, error) {
	a := AccountID(hex)
	if !a.IsAccountID() {
		return "", fmt.Errorf("%w: invalid account format %q", ErrValidation, hex)
	}

	return a, nil
}

// PublicKeyToAccountID converts the public key to an account value.
func PublicKeyToAccountID(pk ecdsa.PublicKey) AccountID {
	return AccountID(crypto.PubkeyToAddress(pk).String())
}

// IsAccountID verifies whether the underlying data represents a valid
// hex-encoded account.
func (a AccountID) IsAccountID() bool {
	const addressLength = 20

	if has0xPrefix(a) {
		a = a[2:]
	}
	return len(a) == 2*addressLength && isHex(a)
}

// =============================================================================

// Prosumer represents an account that both produces and consumes energy and
// holds the token balances used for trading. Prosumers are mutated only by
// the state machine applying transactions.
type Prosumer struct {
	AccountID       AccountID `json:"account_id"`
	Name            string    `json:"name"`
	EnergyGenerated float64   `json:"energy_generated"` // Cumulative kWh produced.
	EnergyConsumed  float64   `json:"energy_consumed"`  // Cumulative kWh consumed.
	GridTokens      float64   `json:"grid_tokens"`      // Currency used to pay for energy.
	WattTokens      float64   `json:"watt_tokens"`      // Energy credits, minted by generation.
}

// NetEnergy returns the cumulative generation surplus for the prosumer.
func (p Prosumer) NetEnergy() float64 {
	return p.EnergyGenerated - p.EnergyConsumed
}

// =============================================================================

func has0xPrefix(a AccountID) bool {
	return len(a) >= 2 && a[0] == '0' && (a[1] == 'x' || a[1] == 'X')
}

func isHex(a AccountID) bool {
	if len(a)%2 != 0 {
		return false
	}

	for _, c := range []byte(a) {
		if !isHexCharacter(c) {
			return false
		}
	}

	return true
}

func isHexCharacter(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
