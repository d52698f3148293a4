package account

import (
	"testing"

	"github.com/gagliardetto/solana-go"
)

var testProgramID = solana.MustPublicKeyFromBase58("5WueEVLErzfDRck9tRxBijEfU8Q3XL2bLPXdoGEXLJTj")

func TestDeriveAddress(t *testing.T) {
	owner := solana.NewWallet().PublicKey()

	addr, bump, err := DeriveAddress(testProgramID, owner)
	if err != nil {
		t.Fatalf("DeriveAddress: %v", err)
	}
	if addr.IsZero() {
		t.Error("derived zero address")
	}

	// Deriving again should produce the same result.
	addr2, bump2, err := DeriveAddress(testProgramID, owner)
	if err != nil {
		t.Fatalf("DeriveAddress (2nd): %v", err)
	}
	if addr != addr2 || bump != bump2 {
		t.Error("derivation not deterministic")
	}

	if !VerifyAddress(testProgramID, owner, bump, addr) {
		t.Error("VerifyAddress rejected the derived address")
	}
}

func TestDeriveAddress_DistinctOwners(t *testing.T) {
	a, _, err := DeriveAddress(testProgramID, solana.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("DeriveAddress: %v", err)
	}
	b, _, err := DeriveAddress(testProgramID, solana.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("DeriveAddress: %v", err)
	}
	if a == b {
		t.Error("different owners produced the same address")
	}
}

func TestDeriveAddress_DistinctPrograms(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	a, _, err := DeriveAddress(testProgramID, owner)
	if err != nil {
		t.Fatalf("DeriveAddress: %v", err)
	}
	b, _, err := DeriveAddress(other, owner)
	if err != nil {
		t.Fatalf("DeriveAddress: %v", err)
	}
	if a == b {
		t.Error("different programs produced the same address")
	}
}

func TestVerifyAddress_WrongOwner(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	addr, bump, err := DeriveAddress(testProgramID, owner)
	if err != nil {
		t.Fatalf("DeriveAddress: %v", err)
	}

	if VerifyAddress(testProgramID, solana.NewWallet().PublicKey(), bump, addr) {
		t.Error("VerifyAddress accepted an address derived for another owner")
	}
}
