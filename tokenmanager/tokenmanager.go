// Package tokenmanager sequences mint creation, supply minting and transfers
// for one connected wallet. Only one operation runs at a time; a second call
// while busy fails with ErrBusy instead of queueing.
package tokenmanager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ojas-Arora/token-app/gateway"
	"github.com/Ojas-Arora/token-app/metrics"
	"github.com/Ojas-Arora/token-app/poller"
	solanago "github.com/Ojas-Arora/token-app/solana"
)

// Gateway is the network boundary the manager drives.
type Gateway interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	MinimumRentExemptBalance(ctx context.Context, size uint64) (uint64, error)
	GetTokenAccount(ctx context.Context, account solana.PublicKey) (*solanago.TokenAccount, error)
	GetMint(ctx context.Context, mint solana.PublicKey) (*solanago.Mint, error)
	Submit(ctx context.Context, raw []byte) (solana.Signature, error)
	Confirm(ctx context.Context, sig solana.Signature) (*gateway.Confirmation, error)
}

// BalanceTracker keeps the cached balances used for display and for the
// advisory transfer check.
type BalanceTracker interface {
	Track(owner, mint solana.PublicKey, decimals uint8)
	Stop()
	Snapshot() (poller.Snapshot, bool)
	Refresh(ctx context.Context) error
}

type Level int

const (
	LevelSuccess Level = iota
	LevelError
	// LevelWarning is used for outcomes that are neither success nor failure.
	LevelWarning
)

// Notification is emitted once per operation attempt.
type Notification struct {
	Level     Level
	Operation string
	Message   string
	Signature solana.Signature
	Err       error
}

type Notifier func(Notification)

// Session is what the manager remembers about the active mint. Nothing is
// persisted; a new process starts without one.
type Session struct {
	Mint          solana.PublicKey
	Decimals      uint8
	MintAuthority *solana.PublicKey
	Name          string
	Symbol        string
	// Keypair is the generated mint key when the mint was created in this
	// session, nil when it was loaded with UseMint.
	Keypair *solanago.Keypair
}

type TokenManager struct {
	gateway  Gateway
	tracker  BalanceTracker
	notifier Notifier
	metrics  *metrics.Metrics
	log      zerolog.Logger

	busy  atomic.Bool
	state atomic.Int32

	mu      sync.RWMutex
	wallet  solanago.WalletSigner
	session *Session
}

type Option func(*TokenManager)

func WithLogger(log zerolog.Logger) Option {
	return func(m *TokenManager) {
		m.log = log
	}
}

func WithNotifier(fn Notifier) Option {
	return func(m *TokenManager) {
		m.notifier = fn
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *TokenManager) {
		m.metrics = mt
	}
}

// WithTracker replaces the balance poller built from the gateway.
func WithTracker(t BalanceTracker) Option {
	return func(m *TokenManager) {
		m.tracker = t
	}
}

// BalanceGateway is a Gateway that can also read native balances, which is
// what the default poller needs.
type BalanceGateway interface {
	Gateway
	NativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error)
}

func NewTokenManager(gw BalanceGateway, opts ...Option) *TokenManager {
	m := &TokenManager{
		gateway: gw,
		log:     zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(m)
	}
	if m.tracker == nil {
		m.tracker = poller.New(gw, poller.WithLogger(m.log), poller.WithMetrics(m.metrics))
	}
	return m
}

func (m *TokenManager) State() State {
	return State(m.state.Load())
}

// Loading reports whether an operation is in flight.
func (m *TokenManager) Loading() bool {
	return m.busy.Load()
}

// Session returns a copy of the active mint session, if any.
func (m *TokenManager) Session() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Balances returns the cached balances of the connected wallet.
func (m *TokenManager) Balances() (poller.Snapshot, bool) {
	return m.tracker.Snapshot()
}

// Connect attaches wallet and starts balance polling for it. Any session of a
// previously connected wallet is dropped.
func (m *TokenManager) Connect(wallet solanago.WalletSigner) error {
	if wallet == nil {
		return invalidInput("connect", "wallet is required")
	}
	if !m.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer m.busy.Store(false)

	m.mu.Lock()
	if m.wallet != nil && !m.wallet.PublicKey().Equals(wallet.PublicKey()) {
		m.session = nil
	}
	m.wallet = wallet
	session := m.session
	m.mu.Unlock()

	owner := wallet.PublicKey()
	if session != nil {
		m.tracker.Track(owner, session.Mint, session.Decimals)
	} else {
		m.tracker.Track(owner, solana.PublicKey{}, 0)
	}
	m.log.Info().Str("owner", owner.String()).Msg("wallet connected")
	return nil
}

// Disconnect detaches the wallet, stops polling and clears the session.
func (m *TokenManager) Disconnect() error {
	if !m.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer m.busy.Store(false)

	m.tracker.Stop()
	m.mu.Lock()
	m.wallet = nil
	m.session = nil
	m.mu.Unlock()
	m.log.Info().Msg("wallet disconnected")
	return nil
}

// operation is the per-call context handed to operation bodies.
type operation struct {
	name   string
	log    zerolog.Logger
	wallet solanago.WalletSigner
	// session is a snapshot taken when the operation started.
	session *Session
}

// run executes fn as one operation attempt: busy gating, state transitions,
// logging, metrics and the single notification.
func (m *TokenManager) run(ctx context.Context, name string, fn func(ctx context.Context, op *operation) (string, solana.Signature, error)) error {
	if !m.busy.CompareAndSwap(false, true) {
		m.log.Debug().Str("op", name).Msg("rejected while busy")
		return ErrBusy
	}
	m.metrics.SetBusy(true)
	defer func() {
		m.setState(StateIdle)
		m.metrics.SetBusy(false)
		m.busy.Store(false)
	}()

	start := time.Now()
	op := &operation{
		name: name,
		log:  m.log.With().Str("op", name).Str("op_id", uuid.NewString()).Logger(),
	}
	m.setState(StateValidating)

	m.mu.RLock()
	op.wallet = m.wallet
	if m.session != nil {
		s := *m.session
		op.session = &s
	}
	m.mu.RUnlock()

	var (
		message string
		sig     solana.Signature
		err     error
	)
	if op.wallet == nil {
		err = invalidInput(name, "Please connect your wallet first")
	} else {
		message, sig, err = fn(ctx, op)
	}

	if err != nil {
		opErr := classify(name, sig, err)
		err = opErr
		sig = opErr.Signature
		m.setState(StateFailed)
		op.log.Error().Err(err).Str("kind", kindLabel(err)).Msg("operation failed")
	} else {
		m.setState(StateSucceeded)
		op.log.Info().Str("signature", sig.String()).Dur("elapsed", time.Since(start)).Msg(message)
	}
	m.metrics.ObserveOperation(name, kindLabel(err), time.Since(start))
	m.notify(name, message, sig, err)
	return err
}

func (m *TokenManager) notify(name, message string, sig solana.Signature, err error) {
	if m.notifier == nil {
		return
	}
	n := Notification{Level: LevelSuccess, Operation: name, Message: message, Signature: sig, Err: err}
	if err != nil {
		n.Level = LevelError
		n.Message = UserMessage(err)
		if isIndeterminate(err) {
			n.Level = LevelWarning
		}
	}
	m.notifier(n)
}

func (m *TokenManager) setState(s State) {
	m.state.Store(int32(s))
}

// refresh asks the tracker for fresh balances after a confirmed transaction.
func (m *TokenManager) refresh(ctx context.Context, op *operation) {
	if err := m.tracker.Refresh(ctx); err != nil {
		op.log.Warn().Err(err).Msg("balance refresh failed")
	}
}
