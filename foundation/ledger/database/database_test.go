package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const chainID = uint16(31)

func ev(v string, args ...any) {}

// =============================================================================

func Test_SignedTransaction(t *testing.T) {
	t.Log("Given the need to sign and validate transactions.")
	{
		privateKey, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a private key: %v", failed, err)
		}
		submitter := database.PublicKeyToAccountID(privateKey.PublicKey)

		tx := database.Tx{
			ID:        "9e0f7baf-5bc6-4e1e-8f40-ec82ad06cfbd",
			ChainID:   chainID,
			Type:      database.TxTypeUserRegistration,
			Submitter: submitter,
			Registration: &database.RegistrationPayload{
				Name: "rooftop-solar-7",
			},
		}

		t.Log("\tTest 0:\tWhen validating a properly signed transaction.")
		{
			signedTx, err := tx.Sign(privateKey)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to sign the transaction.", success)

			if err := signedTx.Validate(chainID); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate the signed transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate the signed transaction.", success)
		}

		t.Log("\tTest 1:\tWhen the chain id does not match.")
		{
			signedTx, _ := tx.Sign(privateKey)
			if err := signedTx.Validate(chainID + 1); !errors.Is(err, database.ErrValidation) {
				t.Fatalf("\t%s\tTest 1:\tShould get ErrValidation: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get ErrValidation.", success)
		}

		t.Log("\tTest 2:\tWhen the declared submitter is not the signer.")
		{
			otherKey, _ := crypto.GenerateKey()
			forged := tx
			forged.Submitter = database.PublicKeyToAccountID(otherKey.PublicKey)

			signedTx, err := forged.Sign(privateKey)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to sign the transaction: %v", failed, err)
			}

			if err := signedTx.Validate(chainID); !errors.Is(err, database.ErrValidation) {
				t.Fatalf("\t%s\tTest 2:\tShould get ErrValidation: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould get ErrValidation.", success)
		}
	}
}

func Test_PayloadValidation(t *testing.T) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a private key: %v", failed, err)
	}
	submitter := database.PublicKeyToAccountID(privateKey.PublicKey)

	t.Log("Given the need to reject malformed transaction payloads.")
	{
		t.Log("\tTest 0:\tWhen the payload does not match the declared type.")
		{
			tx := database.Tx{
				ID:        "9e0f7baf-5bc6-4e1e-8f40-ec82ad06cfbd",
				ChainID:   chainID,
				Type:      database.TxTypeTokenTransfer,
				Submitter: submitter,
				Registration: &database.RegistrationPayload{
					Name: "rooftop-solar-7",
				},
			}

			if err := tx.ValidatePayload(); !errors.Is(err, database.ErrValidation) {
				t.Fatalf("\t%s\tTest 0:\tShould get ErrValidation: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get ErrValidation.", success)
		}

		t.Log("\tTest 1:\tWhen two payloads are populated.")
		{
			tx := database.Tx{
				ID:        "9e0f7baf-5bc6-4e1e-8f40-ec82ad06cfbd",
				ChainID:   chainID,
				Type:      database.TxTypeUserRegistration,
				Submitter: submitter,
				Registration: &database.RegistrationPayload{
					Name: "rooftop-solar-7",
				},
				Transfer: &database.TransferPayload{
					ToID:   submitter,
					Amount: 10,
					Token:  database.TokenGrid,
				},
			}

			if err := tx.ValidatePayload(); !errors.Is(err, database.ErrValidation) {
				t.Fatalf("\t%s\tTest 1:\tShould get ErrValidation: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get ErrValidation.", success)
		}

		t.Log("\tTest 2:\tWhen submitting a system generated trade.")
		{
			tx := database.Tx{
				ID:        "9e0f7baf-5bc6-4e1e-8f40-ec82ad06cfbd",
				ChainID:   chainID,
				Type:      database.TxTypeEnergyTrade,
				Submitter: submitter,
				Trade: &database.TradePayload{
					BuyOrderID:   "a",
					SellOrderID:  "b",
					EnergyAmount: 10,
					PricePerKWH:  0.10,
				},
			}

			if err := tx.ValidatePayload(); !errors.Is(err, database.ErrValidation) {
				t.Fatalf("\t%s\tTest 2:\tShould get ErrValidation: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould get ErrValidation.", success)
		}

		t.Log("\tTest 3:\tWhen placing an order without a side.")
		{
			tx := database.Tx{
				ID:        "9e0f7baf-5bc6-4e1e-8f40-ec82ad06cfbd",
				ChainID:   chainID,
				Type:      database.TxTypeEnergyOrder,
				Submitter: submitter,
				Order: &database.EnergyOrderPayload{
					OrderID:      "b61f8a67-3d3c-4a0e-b3a6-b0a2ad06cfbd",
					Action:       database.OrderActionPlace,
					EnergyAmount: 10,
					PricePerKWH:  0.10,
				},
			}

			if err := tx.ValidatePayload(); !errors.Is(err, database.ErrValidation) {
				t.Fatalf("\t%s\tTest 3:\tShould get ErrValidation: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould get ErrValidation.", success)
		}

		t.Log("\tTest 4:\tWhen cancelling an order.")
		{
			tx := database.Tx{
				ID:        "9e0f7baf-5bc6-4e1e-8f40-ec82ad06cfbd",
				ChainID:   chainID,
				Type:      database.TxTypeEnergyOrder,
				Submitter: submitter,
				Order: &database.EnergyOrderPayload{
					OrderID: "b61f8a67-3d3c-4a0e-b3a6-b0a2ad06cfbd",
					Action:  database.OrderActionCancel,
				},
			}

			if err := tx.ValidatePayload(); err != nil {
				t.Fatalf("\t%s\tTest 4:\tShould validate a cancel without order fields: %v", failed, err)
			}
			t.Logf("\t%s\tTest 4:\tShould validate a cancel without order fields.", success)
		}
	}
}

// =============================================================================

func Test_ProofOfWork(t *testing.T) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a private key: %v", failed, err)
	}
	submitter := database.PublicKeyToAccountID(privateKey.PublicKey)

	tx := database.Tx{
		ID:        "9e0f7baf-5bc6-4e1e-8f40-ec82ad06cfbd",
		ChainID:   chainID,
		Type:      database.TxTypeUserRegistration,
		Submitter: submitter,
		Registration: &database.RegistrationPayload{
			Name: "rooftop-solar-7",
		},
	}
	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}
	trans := []database.BlockTx{database.NewBlockTx(signedTx)}

	t.Log("Given the need to mine and validate blocks.")
	{
		t.Log("\tTest 0:\tWhen mining the first block at difficulty 1.")
		{
			block, err := database.POW(context.Background(), 1, database.BlockHeader{}, false, "0xstate", trans, ev)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine the block.", success)

			if block.Header.Number != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould number the first block 0: got %d", failed, block.Header.Number)
			}
			t.Logf("\t%s\tTest 0:\tShould number the first block 0.", success)

			if err := block.ValidateBlock(database.BlockHeader{}, false, ev); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate the mined block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate the mined block.", success)

			t.Log("\tTest 1:\tWhen mining a second block on top of the first.")
			{
				next, err := database.POW(context.Background(), 1, block.Header, true, "0xstate2", trans, ev)
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to mine the block: %v", failed, err)
				}

				if err := next.ValidateBlock(block.Header, true, ev); err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould validate against its parent: %v", failed, err)
				}
				t.Logf("\t%s\tTest 1:\tShould validate against its parent.", success)

				if err := next.ValidateBlock(next.Header, true, ev); !errors.Is(err, database.ErrChainIntegrity) {
					t.Fatalf("\t%s\tTest 1:\tShould get ErrChainIntegrity with the wrong parent: %v", failed, err)
				}
				t.Logf("\t%s\tTest 1:\tShould get ErrChainIntegrity with the wrong parent.", success)
			}

			t.Log("\tTest 2:\tWhen the merkle root does not cover the transactions.")
			{
				tampered := block
				tampered.Header.TransRoot = "0xtampered"

				if err := tampered.ValidateBlock(database.BlockHeader{}, false, ev); !errors.Is(err, database.ErrChainIntegrity) {
					t.Fatalf("\t%s\tTest 2:\tShould get ErrChainIntegrity: %v", failed, err)
				}
				t.Logf("\t%s\tTest 2:\tShould get ErrChainIntegrity.", success)
			}
		}
	}
}

func Test_Cancellation(t *testing.T) {
	t.Log("Given the need to cancel mining when a context expires.")
	{
		t.Log("\tTest 0:\tWhen the context is already cancelled.")
		{
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			// Difficulty high enough that the solve can't win the race.
			_, err := database.POW(ctx, 16, database.BlockHeader{}, false, "0xstate", []database.BlockTx{{}}, ev)
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest 0:\tShould get context.Canceled: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get context.Canceled.", success)
		}
	}
}
