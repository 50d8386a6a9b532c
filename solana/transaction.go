package solana

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PendingTransaction is an assembled, not yet submitted transaction. It is
// single use: a failed submission is retried with a newly assembled one.
type PendingTransaction struct {
	Tx        *solana.Transaction
	Blockhash solana.Hash
	FeePayer  solana.PublicKey
	// Signers lists the keys that must sign, fee payer first.
	Signers []solana.PublicKey
}

// Assemble bundles instructions into one atomic transaction paid by feePayer.
// A fresh blockhash is fetched for every call.
func Assemble(ctx context.Context, source BlockhashSource, feePayer solana.PublicKey, instructions []solana.Instruction) (*PendingTransaction, error) {
	if len(instructions) == 0 {
		return nil, errors.New("no instructions to assemble")
	}

	instructions = DedupeInstructions(instructions)
	if err := CheckInstructionOrder(instructions); err != nil {
		return nil, err
	}

	latestBlockhash, err := source.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, latestBlockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, err
	}

	return &PendingTransaction{
		Tx:        tx,
		Blockhash: latestBlockhash,
		FeePayer:  feePayer,
		Signers:   requiredSigners(tx),
	}, nil
}

// Signature returns the fee payer signature, which identifies the
// transaction once signed.
func (p *PendingTransaction) Signature() solana.Signature {
	if len(p.Tx.Signatures) == 0 {
		return solana.Signature{}
	}
	return p.Tx.Signatures[0]
}

func requiredSigners(tx *solana.Transaction) []solana.PublicKey {
	n := int(tx.Message.Header.NumRequiredSignatures)
	if n > len(tx.Message.AccountKeys) {
		n = len(tx.Message.AccountKeys)
	}
	signers := make([]solana.PublicKey, n)
	copy(signers, tx.Message.AccountKeys[:n])
	return signers
}
