package solana

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// MintToInstructions mints amount raw units into the associated account of
// owner. When the account does not exist and assumeExists is false, its
// creation is placed ahead of the mint-to. The bool result reports whether a
// creation was included.
func MintToInstructions(
	ctx context.Context,
	reader AccountReader,
	payer solana.PublicKey,
	authority solana.PublicKey,
	owner solana.PublicKey,
	mint solana.PublicKey,
	amount uint64,
	assumeExists bool,
) ([]solana.Instruction, bool, error) {

	var instructions []solana.Instruction

	destination := DeriveAssociatedAddress(mint, owner)
	created := false
	if !assumeExists {
		var err error
		destination, created, err = PrepareAssociatedAccount(ctx, reader, payer, mint, owner, &instructions)
		if err != nil {
			return nil, false, err
		}
	}

	mintIx, err := MintToInstruction(mint, destination, authority, amount)
	if err != nil {
		return nil, false, err
	}

	return append(instructions, mintIx), created, nil
}

// TransferInstructions moves amount raw units from sender's associated account
// to receiver's, creating the receiver account first when needed.
func TransferInstructions(
	ctx context.Context,
	reader AccountReader,
	payer solana.PublicKey,
	sender solana.PublicKey,
	receiver solana.PublicKey,
	mint solana.PublicKey,
	decimals uint8,
	amount uint64,
	assumeExists bool,
) ([]solana.Instruction, bool, error) {

	var instructions []solana.Instruction

	sendTokenAccount := DeriveAssociatedAddress(mint, sender)

	receiveTokenAccount := DeriveAssociatedAddress(mint, receiver)
	created := false
	if !assumeExists {
		var err error
		receiveTokenAccount, created, err = PrepareAssociatedAccount(ctx, reader, payer, mint, receiver, &instructions)
		if err != nil {
			return nil, false, err
		}
	}

	transferIx, err := TransferInstruction(
		sendTokenAccount,
		mint,
		receiveTokenAccount,
		sender,
		amount,
		decimals,
	)
	if err != nil {
		return nil, false, err
	}

	return append(instructions, transferIx), created, nil
}
