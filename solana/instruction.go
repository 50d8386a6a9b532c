package solana

import (
	"context"
	bin "encoding/binary"
	"errors"
	"fmt"

	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

var (
	ataInstructionTypeID           = binary.NoTypeIDDefaultID
	createAccountInstructionTypeID = binary.TypeIDFromUint32(system.Instruction_CreateAccount, bin.LittleEndian)
)

// CreateMintAccountInstruction allocates storage for a new mint, funded by payer
// and owned by the token program.
func CreateMintAccountInstruction(payer, mint solana.PublicKey, rentExemptLamports uint64) solana.Instruction {
	return system.NewCreateAccountInstruction(
		rentExemptLamports,
		uint64(token.MINT_SIZE),
		solana.TokenProgramID,
		payer,
		mint,
	).Build()
}

// InitializeMintInstruction fixes the precision and authorities of a freshly
// allocated mint. A nil freezeAuthority leaves the mint unfreezable.
func InitializeMintInstruction(mint solana.PublicKey, decimals uint8, mintAuthority solana.PublicKey, freezeAuthority *solana.PublicKey) (solana.Instruction, error) {
	if decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrInvalidDecimals, decimals, MaxDecimals)
	}

	builder := token.NewInitializeMint2InstructionBuilder().
		SetDecimals(decimals).
		SetMintAuthority(mintAuthority).
		SetMintAccount(mint)
	if freezeAuthority != nil {
		builder.SetFreezeAuthority(*freezeAuthority)
	}
	return builder.Build(), nil
}

// CreateAssociatedAccountInstruction creates the associated token account of
// owner for mint. Submitting it for an account that already exists fails with
// "already in use".
func CreateAssociatedAccountInstruction(payer, mint, owner solana.PublicKey) solana.Instruction {
	return associatedtokenaccount.NewCreateInstruction(payer, owner, mint).Build()
}

// MintToInstruction mints amount raw units of mint into destination.
func MintToInstruction(mint, destination, authority solana.PublicKey, amount uint64) (solana.Instruction, error) {
	if amount == 0 {
		return nil, errors.New("mint amount must be greater than 0")
	}
	return token.NewMintToInstruction(
		amount,
		mint,
		destination,
		authority,
		nil,
	).Build(), nil
}

// TransferInstruction moves amount raw units from source to destination. The
// checked variant makes the ledger verify mint and decimals as well.
func TransferInstruction(source, mint, destination, owner solana.PublicKey, amount uint64, decimals uint8) (solana.Instruction, error) {
	if amount == 0 {
		return nil, errors.New("transfer amount must be greater than 0")
	}
	return token.NewTransferCheckedInstruction(
		amount,
		decimals,
		source,
		mint,
		destination,
		owner,
		[]solana.PublicKey{},
	).Build(), nil
}

// PrepareAssociatedAccount derives the associated account of owner and, unless
// it already exists, appends its creation to instructions.
func PrepareAssociatedAccount(
	ctx context.Context,
	reader AccountReader,
	payer solana.PublicKey,
	mint solana.PublicKey,
	owner solana.PublicKey,
	instructions *[]solana.Instruction,
) (solana.PublicKey, bool, error) {
	ata := DeriveAssociatedAddress(mint, owner)

	_, err := reader.GetTokenAccount(ctx, ata)
	if err == nil {
		return ata, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return solana.PublicKey{}, false, err
	}

	*instructions = append(*instructions, CreateAssociatedAccountInstruction(payer, mint, owner))
	return ata, true, nil
}

// createdAccount returns the account an instruction brings into existence.
func createdAccount(ix solana.Instruction) (solana.PublicKey, bool) {
	switch inst := ix.(type) {
	case *system.Instruction:
		if inst.TypeID != createAccountInstructionTypeID {
			return solana.PublicKey{}, false
		}
	case *associatedtokenaccount.Instruction:
		if inst.TypeID != ataInstructionTypeID {
			return solana.PublicKey{}, false
		}
	default:
		return solana.PublicKey{}, false
	}

	accounts := ix.Accounts()
	if len(accounts) < 2 {
		return solana.PublicKey{}, false
	}
	return accounts[1].PublicKey, true
}

// CheckInstructionOrder verifies that no instruction references an account
// which is only created by a later instruction of the same transaction.
func CheckInstructionOrder(instructions []solana.Instruction) error {
	createdAt := make(map[solana.PublicKey]int)
	for i, ix := range instructions {
		if key, ok := createdAccount(ix); ok {
			if _, dup := createdAt[key]; !dup {
				createdAt[key] = i
			}
		}
	}

	for i, ix := range instructions {
		for _, meta := range ix.Accounts() {
			j, ok := createdAt[meta.PublicKey]
			if ok && j > i {
				return fmt.Errorf("%w: instruction %d uses %s created by instruction %d", ErrInstructionOrder, i, meta.PublicKey, j)
			}
		}
	}
	return nil
}

// DedupeInstructions drops repeated associated account creations for the same
// (payer, owner, mint), keeping the first one in place.
func DedupeInstructions(oldInstructions []solana.Instruction) []solana.Instruction {
	var (
		ataCreateInstructions []associatedtokenaccount.Create
		newInstructions       []solana.Instruction
	)

	for _, v := range oldInstructions {
		inst, ok := v.(*associatedtokenaccount.Instruction)
		if !ok || inst.TypeID != ataInstructionTypeID {
			newInstructions = append(newInstructions, v)
			continue
		}

		ataCreate, ok := inst.Impl.(associatedtokenaccount.Create)
		if !ok {
			if p, isPtr := inst.Impl.(*associatedtokenaccount.Create); isPtr {
				ataCreate, ok = *p, true
			}
		}
		if !ok {
			newInstructions = append(newInstructions, v)
			continue
		}

		// deduplicate
		bSave := false
		for _, instruction := range ataCreateInstructions {
			if ataCreate.Mint != instruction.Mint ||
				ataCreate.Payer != instruction.Payer ||
				ataCreate.Wallet != instruction.Wallet {
				continue
			}
			bSave = true
			break
		}

		if !bSave {
			ataCreateInstructions = append(ataCreateInstructions, ataCreate)
			newInstructions = append(newInstructions, v)
		}
	}

	return newInstructions
}
