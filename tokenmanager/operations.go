package tokenmanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/Ojas-Arora/token-app/decimal_math"
	"github.com/Ojas-Arora/token-app/gateway"
	solanago "github.com/Ojas-Arora/token-app/solana"
)

const (
	OpCreateMint = "create_mint"
	OpMintSupply = "mint_supply"
	OpTransfer   = "transfer"
	OpUseMint    = "use_mint"
)

type CreateMintRequest struct {
	Name     string
	Symbol   string
	Decimals string
}

type MintRequest struct {
	Amount string
}

type TransferRequest struct {
	Recipient string
	Amount    string
}

// Result is returned by successful operations.
type Result struct {
	Signature solana.Signature
	Mint      solana.PublicKey
	// Amount is the raw amount moved, zero for CreateMint and UseMint.
	Amount uint64
}

func isIndeterminate(err error) bool {
	return errors.Is(err, ErrIndeterminate)
}

// CreateMint creates a new mint with the connected wallet as mint and freeze
// authority. On success the mint becomes the session mint.
func (m *TokenManager) CreateMint(ctx context.Context, req CreateMintRequest) (*Result, error) {
	var result *Result
	err := m.run(ctx, OpCreateMint, func(ctx context.Context, op *operation) (string, solana.Signature, error) {
		name, err := requireText(op.name, "token name", req.Name)
		if err != nil {
			return "", solana.Signature{}, err
		}
		symbol, err := requireText(op.name, "token symbol", req.Symbol)
		if err != nil {
			return "", solana.Signature{}, err
		}
		decimals, err := parseDecimals(op.name, req.Decimals)
		if err != nil {
			return "", solana.Signature{}, err
		}

		m.setState(StateBuilding)
		owner := op.wallet.PublicKey()
		mintKey, err := solanago.NewKeypair()
		if err != nil {
			return "", solana.Signature{}, fmt.Errorf("generate mint key: %w", err)
		}
		mint := mintKey.PublicKey()
		op.log = op.log.With().Str("mint", mint.String()).Logger()

		rent, err := m.gateway.MinimumRentExemptBalance(ctx, uint64(token.MINT_SIZE))
		if err != nil {
			return "", solana.Signature{}, fmt.Errorf("get rent exempt balance: %w", err)
		}
		initIx, err := solanago.InitializeMintInstruction(mint, decimals, owner, &owner)
		if err != nil {
			return "", solana.Signature{}, err
		}
		instructions := []solana.Instruction{
			solanago.CreateMintAccountInstruction(owner, mint, rent),
			initIx,
		}

		sig, err := m.send(ctx, op, instructions, mintKey)
		if err != nil {
			return "", sig, err
		}

		session := &Session{
			Mint:          mint,
			Decimals:      decimals,
			MintAuthority: &owner,
			Name:          name,
			Symbol:        symbol,
			Keypair:       mintKey,
		}
		m.setSession(op, session)
		m.refresh(ctx, op)

		result = &Result{Signature: sig, Mint: mint}
		return fmt.Sprintf("Token created successfully! Mint address: %s", mint), sig, nil
	})
	return result, err
}

// UseMint loads an existing mint into the session so supply can be minted or
// transferred without creating a new one.
func (m *TokenManager) UseMint(ctx context.Context, mintAddress string) (*Result, error) {
	var result *Result
	err := m.run(ctx, OpUseMint, func(ctx context.Context, op *operation) (string, solana.Signature, error) {
		mint, err := parseAddress(op.name, "mint address", mintAddress)
		if err != nil {
			return "", solana.Signature{}, err
		}

		account, err := m.gateway.GetMint(ctx, mint)
		if errors.Is(err, gateway.ErrNotFound) {
			return "", solana.Signature{}, invalidInput(op.name, "mint %s does not exist", mint)
		}
		if err != nil {
			return "", solana.Signature{}, fmt.Errorf("get mint %s: %w", mint, err)
		}
		if account.Decimals > solanago.MaxDecimals {
			return "", solana.Signature{}, invalidInput(op.name, "mint %s has %d decimals, at most %d are supported", mint, account.Decimals, solanago.MaxDecimals)
		}

		m.setSession(op, &Session{
			Mint:          mint,
			Decimals:      account.Decimals,
			MintAuthority: account.MintAuthority,
		})
		result = &Result{Mint: mint}
		return fmt.Sprintf("Using mint %s", mint), solana.Signature{}, nil
	})
	return result, err
}

// MintSupply mints amount of the session mint into the connected wallet's
// associated account, creating the account in the same transaction when it
// does not exist yet.
func (m *TokenManager) MintSupply(ctx context.Context, req MintRequest) (*Result, error) {
	var result *Result
	err := m.run(ctx, OpMintSupply, func(ctx context.Context, op *operation) (string, solana.Signature, error) {
		if op.session == nil {
			return "", solana.Signature{}, invalidInput(op.name, "Please connect your wallet and create a token first")
		}
		owner := op.wallet.PublicKey()
		session := op.session
		if session.MintAuthority == nil || !session.MintAuthority.Equals(owner) {
			return "", solana.Signature{}, invalidInput(op.name, "wallet %s is not the mint authority of %s", owner, session.Mint)
		}
		amount, err := decimal_math.ParseRaw(req.Amount, session.Decimals)
		if err != nil {
			return "", solana.Signature{}, invalidInput(op.name, "%v", err)
		}
		op.log = op.log.With().Str("mint", session.Mint.String()).Uint64("amount", amount).Logger()

		sig, err := m.sendCreatingAccount(ctx, op, func(assumeExists bool) ([]solana.Instruction, bool, error) {
			return solanago.MintToInstructions(ctx, m.gateway, owner, owner, owner, session.Mint, amount, assumeExists)
		})
		if err != nil {
			return "", sig, err
		}

		m.refresh(ctx, op)
		result = &Result{Signature: sig, Mint: session.Mint, Amount: amount}
		return fmt.Sprintf("Tokens minted successfully! Transaction: %s", sig), sig, nil
	})
	return result, err
}

// Transfer moves amount of the session mint from the connected wallet to
// recipient. The cached balance is checked first; the ledger stays the final
// judge.
func (m *TokenManager) Transfer(ctx context.Context, req TransferRequest) (*Result, error) {
	var result *Result
	err := m.run(ctx, OpTransfer, func(ctx context.Context, op *operation) (string, solana.Signature, error) {
		if op.session == nil {
			return "", solana.Signature{}, invalidInput(op.name, "Please connect your wallet and create a token first")
		}
		owner := op.wallet.PublicKey()
		session := op.session
		recipient, err := parseWalletAddress(op.name, "recipient", req.Recipient)
		if err != nil {
			return "", solana.Signature{}, err
		}
		amount, err := decimal_math.ParseRaw(req.Amount, session.Decimals)
		if err != nil {
			return "", solana.Signature{}, invalidInput(op.name, "%v", err)
		}
		if snapshot, ok := m.tracker.Snapshot(); ok && snapshot.TokenKnown &&
			snapshot.Owner.Equals(owner) && snapshot.Mint.Equals(session.Mint) && amount > snapshot.TokenRaw {
			return "", solana.Signature{}, invalidInput(op.name, "insufficient balance: %s requested, %s available",
				decimal_math.FromRaw(amount, session.Decimals), snapshot.TokenDisplay())
		}
		op.log = op.log.With().
			Str("mint", session.Mint.String()).
			Str("recipient", recipient.String()).
			Uint64("amount", amount).
			Logger()

		sig, err := m.sendCreatingAccount(ctx, op, func(assumeExists bool) ([]solana.Instruction, bool, error) {
			return solanago.TransferInstructions(ctx, m.gateway, owner, owner, recipient, session.Mint, session.Decimals, amount, assumeExists)
		})
		if err != nil {
			return "", sig, err
		}

		m.refresh(ctx, op)
		result = &Result{Signature: sig, Mint: session.Mint, Amount: amount}
		return fmt.Sprintf("Tokens transferred successfully! Transaction: %s", sig), sig, nil
	})
	return result, err
}

// sendCreatingAccount sends the instructions produced by build. When the
// transaction included an associated account creation and lost the race to
// another creator, it is rebuilt once without the creation and sent again.
func (m *TokenManager) sendCreatingAccount(ctx context.Context, op *operation, build func(assumeExists bool) ([]solana.Instruction, bool, error)) (solana.Signature, error) {
	m.setState(StateBuilding)
	instructions, created, err := build(false)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build instructions: %w", err)
	}

	sig, err := m.send(ctx, op, instructions)
	if err == nil || !created || !gateway.IsAccountInUse(err) {
		return sig, err
	}

	op.log.Info().Err(fmt.Errorf("%w: %v", ErrAccountAlreadyExists, err)).Msg("associated account created concurrently, retrying without creation")
	m.setState(StateBuilding)
	instructions, _, err = build(true)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build instructions: %w", err)
	}
	return m.send(ctx, op, instructions)
}

// send assembles, signs, submits and confirms one transaction. A fresh
// blockhash is fetched on every call.
func (m *TokenManager) send(ctx context.Context, op *operation, instructions []solana.Instruction, coSigners ...solanago.CoSigner) (solana.Signature, error) {
	m.setState(StateBuilding)
	pending, err := solanago.Assemble(ctx, m.gateway, op.wallet.PublicKey(), instructions)
	if err != nil {
		return solana.Signature{}, err
	}

	m.setState(StateSigning)
	raw, err := solanago.Sign(ctx, pending, op.wallet, coSigners...)
	if err != nil {
		return solana.Signature{}, err
	}
	sig := pending.Signature()
	log := op.log.With().Str("signature", sig.String()).Logger()

	m.setState(StateSubmitting)
	if _, err = m.gateway.Submit(ctx, raw); err != nil {
		return sig, err
	}
	log.Debug().Msg("transaction submitted")

	m.setState(StateConfirming)
	confirmation, err := m.gateway.Confirm(ctx, sig)
	if err != nil {
		return sig, &OperationError{Op: op.name, Kind: ErrIndeterminate, Signature: sig, Reason: err.Error(), Err: err}
	}
	switch confirmation.Status {
	case gateway.StatusConfirmed:
		log.Debug().Uint64("slot", confirmation.Slot).Msg("transaction confirmed")
		return sig, nil
	case gateway.StatusTimedOut:
		return sig, &OperationError{
			Op:        op.name,
			Kind:      ErrIndeterminate,
			Signature: sig,
			Reason:    "confirmation timed out",
		}
	default:
		return sig, confirmation.Err()
	}
}

// setSession installs session and points the tracker at the new mint.
func (m *TokenManager) setSession(op *operation, session *Session) {
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	op.session = session
	m.tracker.Track(op.wallet.PublicKey(), session.Mint, session.Decimals)
}
