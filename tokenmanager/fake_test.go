package tokenmanager

import (
	"context"
	"encoding/binary"
	"errors"
	"strconv"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/Ojas-Arora/token-app/gateway"
	"github.com/Ojas-Arora/token-app/poller"
	solanago "github.com/Ojas-Arora/token-app/solana"
)

// fakeLedger is an in-memory Gateway that executes the subset of system,
// token and associated account instructions the manager emits.
type fakeLedger struct {
	mu        sync.Mutex
	lamports  map[solana.PublicKey]uint64
	accounts  map[solana.PublicKey]solanago.TokenAccount
	mints     map[solana.PublicKey]solanago.Mint
	hidden    map[solana.PublicKey]bool
	submitted []*solana.Transaction
	calls     int

	// submitErr fails Submit after the transaction reached the fake.
	submitErr error
	// confirm overrides the default immediate confirmation.
	confirm func(ctx context.Context, sig solana.Signature) (*gateway.Confirmation, error)
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		lamports: map[solana.PublicKey]uint64{},
		accounts: map[solana.PublicKey]solanago.TokenAccount{},
		mints:    map[solana.PublicKey]solanago.Mint{},
		hidden:   map[solana.PublicKey]bool{},
	}
}

func (f *fakeLedger) addMint(mint, authority solana.PublicKey, decimals uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := solanago.Mint{Address: mint, Owner: solana.TokenProgramID}
	m.Decimals = decimals
	m.IsInitialized = true
	m.MintAuthority = &authority
	f.mints[mint] = m
}

func (f *fakeLedger) addAccount(mint, owner solana.PublicKey, amount uint64) solana.PublicKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	ata := solanago.DeriveAssociatedAddress(mint, owner)
	f.accounts[ata] = solanago.TokenAccount{Address: ata, Mint: mint, Owner: owner, Amount: amount, IsInitialized: true}
	return ata
}

func (f *fakeLedger) balance(mint, owner solana.PublicKey) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[solanago.DeriveAssociatedAddress(mint, owner)]
	return acc.Amount, ok
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLedger) transactions() []*solana.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*solana.Transaction(nil), f.submitted...)
}

func (f *fakeLedger) LatestBlockhash(context.Context) (solana.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var h solana.Hash
	h[0] = byte(f.calls)
	return h, nil
}

func (f *fakeLedger) MinimumRentExemptBalance(context.Context, uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 1_461_600, nil
}

func (f *fakeLedger) NativeBalance(_ context.Context, owner solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lamports[owner], nil
}

func (f *fakeLedger) GetTokenAccount(_ context.Context, account solana.PublicKey) (*solanago.TokenAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	acc, ok := f.accounts[account]
	if !ok || f.hidden[account] {
		return nil, gateway.ErrNotFound
	}
	return &acc, nil
}

func (f *fakeLedger) GetMint(_ context.Context, mint solana.PublicKey) (*solanago.Mint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	m, ok := f.mints[mint]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return &m, nil
}

func (f *fakeLedger) Submit(_ context.Context, raw []byte) (solana.Signature, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return solana.Signature{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.submitted = append(f.submitted, tx)
	if f.submitErr != nil {
		return solana.Signature{}, f.submitErr
	}
	sig := tx.Signatures[0]
	if err := f.execute(tx); err != nil {
		var txErr *gateway.TransactionError
		if errors.As(err, &txErr) {
			txErr.Signature = sig
		}
		return solana.Signature{}, err
	}
	return sig, nil
}

func (f *fakeLedger) Confirm(ctx context.Context, sig solana.Signature) (*gateway.Confirmation, error) {
	f.mu.Lock()
	f.calls++
	confirm := f.confirm
	f.mu.Unlock()
	if confirm != nil {
		return confirm(ctx, sig)
	}
	return &gateway.Confirmation{Signature: sig, Status: gateway.StatusConfirmed, Slot: 1}, nil
}

func rejected(reason string, logs ...string) error {
	return &gateway.TransactionError{Reason: reason, Logs: logs}
}

// execute applies tx all-or-nothing. Callers hold f.mu.
func (f *fakeLedger) execute(tx *solana.Transaction) error {
	accounts := make(map[solana.PublicKey]solanago.TokenAccount, len(f.accounts))
	for k, v := range f.accounts {
		accounts[k] = v
	}
	mints := make(map[solana.PublicKey]solanago.Mint, len(f.mints))
	for k, v := range f.mints {
		mints[k] = v
	}

	for i, ci := range tx.Message.Instructions {
		program, err := tx.Message.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil {
			return err
		}
		key := func(n int) solana.PublicKey {
			return tx.Message.AccountKeys[ci.Accounts[n]]
		}
		data := []byte(ci.Data)

		switch {
		case program.Equals(solana.SystemProgramID):
			mints[key(1)] = solanago.Mint{Address: key(1), Owner: solana.TokenProgramID}

		case program.Equals(solana.SPLAssociatedTokenAccountProgramID):
			ata, owner, mint := key(1), key(2), key(3)
			if _, ok := accounts[ata]; ok {
				return rejected(
					"Transaction simulation failed: Error processing Instruction 0: custom program error: 0x0",
					"Program ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL invoke [1]",
					"Allocate: account Address { address: "+ata.String()+", base: None } already in use",
				)
			}
			accounts[ata] = solanago.TokenAccount{Address: ata, Mint: mint, Owner: owner, IsInitialized: true}

		case program.Equals(solana.TokenProgramID) && data[0] == 20:
			m := mints[key(0)]
			m.Decimals = data[1]
			authority := solana.PublicKeyFromBytes(data[2:34])
			m.MintAuthority = &authority
			m.IsInitialized = true
			mints[key(0)] = m

		case program.Equals(solana.TokenProgramID) && data[0] == 7:
			dest, ok := accounts[key(1)]
			if !ok {
				return rejected("Error processing Instruction " + strconv.Itoa(i) + ": invalid account data for instruction")
			}
			dest.Amount += binary.LittleEndian.Uint64(data[1:9])
			accounts[key(1)] = dest

		case program.Equals(solana.TokenProgramID) && data[0] == 12:
			amount := binary.LittleEndian.Uint64(data[1:9])
			source, ok := accounts[key(0)]
			if !ok || source.Amount < amount {
				return rejected("Error processing Instruction "+strconv.Itoa(i)+": custom program error: 0x1",
					"Program log: Error: insufficient funds")
			}
			dest, ok := accounts[key(2)]
			if !ok {
				return rejected("Error processing Instruction " + strconv.Itoa(i) + ": invalid account data for instruction")
			}
			source.Amount -= amount
			accounts[key(0)] = source
			dest.Amount += amount
			accounts[key(2)] = dest

		default:
			return rejected("unsupported instruction")
		}
	}

	f.accounts = accounts
	f.mints = mints
	for k := range f.hidden {
		delete(f.hidden, k)
	}
	return nil
}

// fakeTracker serves a fixed snapshot.
type fakeTracker struct {
	mu        sync.Mutex
	snapshot  poller.Snapshot
	tracking  bool
	tracked   []solana.PublicKey
	refreshes int
}

func (t *fakeTracker) Track(owner, mint solana.PublicKey, decimals uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracking = true
	t.tracked = append(t.tracked, mint)
	t.snapshot.Owner = owner
	t.snapshot.Mint = mint
	t.snapshot.Decimals = decimals
}

func (t *fakeTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracking = false
}

func (t *fakeTracker) Snapshot() (poller.Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot, t.tracking
}

func (t *fakeTracker) Refresh(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshes++
	return nil
}

func (t *fakeTracker) setTokenBalance(raw uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshot.TokenRaw = raw
	t.snapshot.TokenKnown = true
}

// rejectingWallet declines every signature request.
type rejectingWallet struct {
	key solana.PublicKey
}

func (w rejectingWallet) PublicKey() solana.PublicKey {
	return w.key
}

func (w rejectingWallet) SignTransaction(context.Context, *solana.Transaction) (*solana.Transaction, error) {
	return nil, errors.New("user rejected the request")
}
