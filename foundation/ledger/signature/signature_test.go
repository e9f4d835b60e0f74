package signature_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gridmesh/energyledger/foundation/ledger/signature"
)

// =============================================================================

func Test_Signing(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "rooftop-solar-7",
	}

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}
	from := crypto.PubkeyToAddress(pk.PublicKey).String()

	v, r, s, err := signature.Sign(value, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	if err := signature.VerifySignature(v, r, s); err != nil {
		t.Fatalf("Should be able to verify the signature: %s", err)
	}

	addr, err := signature.FromAddress(value, v, r, s)
	if err != nil {
		t.Fatalf("Should be able to generate from address: %s", err)
	}

	if from != addr {
		t.Logf("got: %s", addr)
		t.Logf("exp: %s", from)
		t.Fatalf("Should get back the right address.")
	}

	other := struct {
		Name string
	}{
		Name: "downtown-battery",
	}

	addr, err = signature.FromAddress(other, v, r, s)
	if err != nil {
		t.Fatalf("Should be able to generate from address: %s", err)
	}
	if from == addr {
		t.Fatalf("Should not recover the signer from different data.")
	}
}

func Test_Hash(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "rooftop-solar-7",
	}

	h := signature.Hash(value)

	if len(h) != 66 || h[:2] != "0x" {
		t.Fatalf("Should produce a 32 byte hex hash with the 0x prefix: %s", h)
	}

	if h != signature.Hash(value) {
		t.Fatalf("Should get back the same hash twice.")
	}

	if h == signature.ZeroHash {
		t.Fatalf("Should not collide with the zero hash.")
	}
}
