package solana

import (
	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

type AccountState uint8

const (
	AccountStateUninitialized AccountState = 0
	AccountStateInitialized   AccountState = 1
	AccountStateFrozen        AccountState = 2
)

// TokenAccount is the decoded state of an SPL token account.
type TokenAccount struct {
	Address solana.PublicKey

	// Mint associated with the account
	Mint solana.PublicKey

	// Owner of the account
	Owner solana.PublicKey

	// Raw number of tokens the account holds, unscaled by decimals
	Amount uint64

	IsInitialized bool
	IsFrozen      bool
}

// AccountLayout decodes the 165 byte token account layout.
type AccountLayout struct {
}

func (l *AccountLayout) Decode(data []byte) (*TokenAccount, error) {
	raw := new(token.Account)
	if err := raw.UnmarshalWithDecoder(binary.NewBinDecoder(data)); err != nil {
		return nil, err
	}
	return &TokenAccount{
		Mint:          raw.Mint,
		Owner:         raw.Owner,
		Amount:        raw.Amount,
		IsInitialized: AccountState(raw.State) != AccountStateUninitialized,
		IsFrozen:      AccountState(raw.State) == AccountStateFrozen,
	}, nil
}
