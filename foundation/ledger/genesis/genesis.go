// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time          `json:"date"`
	ChainID       uint16             `json:"chain_id"`        // Unique id for this running chain.
	TransPerBlock uint16             `json:"trans_per_block"` // Maximum number of transactions per block.
	Difficulty    uint16             `json:"difficulty"`      // Number of leading zeros required to solve the work problem.
	BlockInterval time.Duration      `json:"block_interval"`  // How often a block is produced when the pool is non-empty.
	GridFeeRate   float64            `json:"grid_fee_rate"`   // Fraction of trade proceeds retained by the grid.
	Operator      string             `json:"operator"`        // Account allowed to submit system configuration changes.
	Balances      map[string]float64 `json:"balances"`        // Starting grid token balances.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
