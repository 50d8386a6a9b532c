package solana

import (
	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
)

// DeriveAssociatedAddress returns the associated token account of owner for
// mint. The address is a program derived address with seeds
// [owner, token program, mint] under the associated token account program.
func DeriveAssociatedAddress(mint, owner solana.PublicKey) solana.PublicKey {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		// only returned when no bump seed in [0, 255] lands off curve
		panic(err)
	}
	return ata
}

// IsOnCurve reports whether key is a valid ed25519 point, i.e. a key that
// some private key can sign for. Program derived addresses are never on the
// curve.
func IsOnCurve(key solana.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(key[:])
	return err == nil
}
