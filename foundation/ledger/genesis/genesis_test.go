package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gridmesh/energyledger/foundation/ledger/genesis"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const doc = `{
	"date": "2026-01-01T00:00:00Z",
	"chain_id": 31,
	"trans_per_block": 10,
	"difficulty": 2,
	"block_interval": 10000000000,
	"grid_fee_rate": 0.05,
	"operator": "0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8",
	"balances": {
		"0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4": 1000,
		"0xF01813E4B85e178A83e29B8E7bF26BD830a25f32": 500
	}
}`

func Test_Load(t *testing.T) {
	t.Log("Given the need to load the genesis file.")
	{
		t.Log("\tTest 0:\tWhen reading a well formed file.")
		{
			path := filepath.Join(t.TempDir(), "genesis.json")
			if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to write the file: %v", failed, err)
			}

			gen, err := genesis.Load(path)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to load the file: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to load the file.", success)

			if gen.ChainID != 31 || gen.Difficulty != 2 || gen.GridFeeRate != 0.05 {
				t.Fatalf("\t%s\tTest 0:\tShould decode the chain parameters: %+v", failed, gen)
			}
			t.Logf("\t%s\tTest 0:\tShould decode the chain parameters.", success)

			if len(gen.Balances) != 2 || gen.Balances["0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"] != 1000 {
				t.Fatalf("\t%s\tTest 0:\tShould decode the starting balances: %+v", failed, gen.Balances)
			}
			t.Logf("\t%s\tTest 0:\tShould decode the starting balances.", success)
		}

		t.Log("\tTest 1:\tWhen the file does not exist.")
		{
			if _, err := genesis.Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould get an error for a missing file.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould get an error for a missing file.", success)
		}
	}
}
