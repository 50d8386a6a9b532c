// Package solana holds the ledger-facing building blocks of the token workflow:
// associated account derivation, instruction construction, transaction
// assembly and multi-party signing. Nothing in this package talks to the
// network directly; reads go through the small interfaces declared here.
package solana

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// MaxDecimals is the largest mint precision this client will create.
const MaxDecimals uint8 = 9

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrInvalidDecimals  = errors.New("decimals out of range")
	ErrInstructionOrder = errors.New("instruction references an account created later in the transaction")
	ErrMissingSigner    = errors.New("missing signer")
	ErrSigningRejected  = errors.New("signing rejected by wallet")
)

// AccountReader reads token accounts. It returns ErrAccountNotFound when the
// account does not exist yet.
type AccountReader interface {
	GetTokenAccount(ctx context.Context, account solana.PublicKey) (*TokenAccount, error)
}

// BlockhashSource hands out freshness tokens for new transactions.
type BlockhashSource interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}
