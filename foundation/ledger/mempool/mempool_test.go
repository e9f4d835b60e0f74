package mempool_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
	"github.com/gridmesh/energyledger/foundation/ledger/mempool"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func newTx(id string) database.BlockTx {
	return database.BlockTx{
		SignedTx: database.SignedTx{
			Tx: database.Tx{ID: id},
		},
	}
}

// =============================================================================

func Test_FIFO(t *testing.T) {
	t.Log("Given the need to read transactions in arrival order.")
	{
		t.Log("\tTest 0:\tWhen adding five transactions.")
		{
			mp := mempool.New()

			for i := 0; i < 5; i++ {
				if err := mp.Upsert(newTx(fmt.Sprintf("tx-%d", i))); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to add transaction: %v", failed, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould be able to add transactions.", success)

			if mp.Count() != 5 {
				t.Fatalf("\t%s\tTest 0:\tShould count 5 transactions: got %d", failed, mp.Count())
			}
			t.Logf("\t%s\tTest 0:\tShould count 5 transactions.", success)

			picked := mp.PickBest(3)
			if len(picked) != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould pick 3 transactions: got %d", failed, len(picked))
			}
			for i, tx := range picked {
				if exp := fmt.Sprintf("tx-%d", i); tx.ID != exp {
					t.Fatalf("\t%s\tTest 0:\tShould pick in arrival order: got %s, exp %s", failed, tx.ID, exp)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould pick in arrival order.", success)

			if mp.Count() != 5 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the pool intact after picking: got %d", failed, mp.Count())
			}
			t.Logf("\t%s\tTest 0:\tShould leave the pool intact after picking.", success)
		}

		t.Log("\tTest 1:\tWhen deleting the picked transactions.")
		{
			mp := mempool.New()

			for i := 0; i < 5; i++ {
				mp.Upsert(newTx(fmt.Sprintf("tx-%d", i)))
			}

			for _, tx := range mp.PickBest(3) {
				mp.Delete(tx)
			}

			if mp.Count() != 2 {
				t.Fatalf("\t%s\tTest 1:\tShould leave 2 transactions: got %d", failed, mp.Count())
			}
			t.Logf("\t%s\tTest 1:\tShould leave 2 transactions.", success)

			rest := mp.PickBest(0)
			if len(rest) != 2 || rest[0].ID != "tx-3" || rest[1].ID != "tx-4" {
				t.Fatalf("\t%s\tTest 1:\tShould keep the remainder in order.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould keep the remainder in order.", success)
		}
	}
}

func Test_Duplicates(t *testing.T) {
	t.Log("Given the need to reject a transaction id that is already pending.")
	{
		t.Log("\tTest 0:\tWhen adding the same id twice.")
		{
			mp := mempool.New()

			if err := mp.Upsert(newTx("tx-1")); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to add transaction: %v", failed, err)
			}

			err := mp.Upsert(newTx("tx-1"))
			if !errors.Is(err, database.ErrDupTransaction) {
				t.Fatalf("\t%s\tTest 0:\tShould get ErrDupTransaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get ErrDupTransaction.", success)

			if !mp.Contains("tx-1") {
				t.Fatalf("\t%s\tTest 0:\tShould still contain the original.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould still contain the original.", success)

			mp.Delete(newTx("tx-1"))
			if err := mp.Upsert(newTx("tx-1")); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the id again after deletion: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept the id again after deletion.", success)
		}
	}
}

func Test_Truncate(t *testing.T) {
	t.Log("Given the need to clear the pool.")
	{
		t.Log("\tTest 0:\tWhen truncating a pool with transactions.")
		{
			mp := mempool.New()
			mp.Upsert(newTx("tx-1"))
			mp.Upsert(newTx("tx-2"))

			mp.Truncate()

			if mp.Count() != 0 || mp.Contains("tx-1") {
				t.Fatalf("\t%s\tTest 0:\tShould be empty after truncate.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be empty after truncate.", success)
		}
	}
}
