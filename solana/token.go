package solana

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// Mint represents a token mint with its owning program.
type Mint struct {
	token.Mint
	Address solana.PublicKey
	// Owner is the program that owns the mint account
	Owner solana.PublicKey
}

// TokenLayout provides methods for decoding mint data
type TokenLayout struct {
}

func (l *TokenLayout) Decode(data []byte) (*Mint, error) {
	mint := token.Mint{}

	if err := mint.Decode(data); err != nil {
		return nil, err
	}
	return &Mint{Mint: mint}, nil
}
