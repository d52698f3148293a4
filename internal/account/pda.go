package account

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// SeedPrefix is the fixed label mixed into every portfolio address
const SeedPrefix = "portfolio"

// Seeds returns the derivation seeds for owner's portfolio
func Seeds(owner solana.PublicKey) [][]byte {
	return [][]byte{[]byte(SeedPrefix), owner.Bytes()}
}

// DeriveAddress finds the portfolio address and bump for owner under programID
func DeriveAddress(programID, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(Seeds(owner), programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive portfolio address for %s: %w", owner, err)
	}
	return addr, bump, nil
}

// VerifyAddress checks that addr is the portfolio address of owner for the given bump
func VerifyAddress(programID, owner solana.PublicKey, bump uint8, addr solana.PublicKey) bool {
	seeds := append(Seeds(owner), []byte{bump})
	expected, err := solana.CreateProgramAddress(seeds, programID)
	if err != nil {
		return false
	}
	return expected.Equals(addr)
}
