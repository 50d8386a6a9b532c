// Package poller keeps a cached balance snapshot for the connected owner and
// the session mint, refreshed on fixed intervals in a single goroutine.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/Ojas-Arora/token-app/decimal_math"
	"github.com/Ojas-Arora/token-app/metrics"
	solanago "github.com/Ojas-Arora/token-app/solana"
)

const (
	DefaultNativeInterval = 10 * time.Second
	DefaultTokenInterval  = 5 * time.Second

	nativeDecimals uint8 = 9
)

// BalanceReader is the read side of the gateway the poller needs.
type BalanceReader interface {
	NativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	GetTokenAccount(ctx context.Context, account solana.PublicKey) (*solanago.TokenAccount, error)
}

// Snapshot is the last known balances of one owner. Known flags stay false
// until the first successful read.
type Snapshot struct {
	Owner       solana.PublicKey
	Mint        solana.PublicKey
	Decimals    uint8
	Lamports    uint64
	NativeKnown bool
	TokenRaw    uint64
	TokenKnown  bool
	UpdatedAt   time.Time
}

func (s Snapshot) NativeDisplay() string {
	return decimal_math.Format(s.Lamports, nativeDecimals, decimal_math.DisplayPlaces)
}

func (s Snapshot) TokenDisplay() string {
	return decimal_math.Format(s.TokenRaw, s.Decimals, decimal_math.DisplayPlaces)
}

type Poller struct {
	reader         BalanceReader
	nativeInterval time.Duration
	tokenInterval  time.Duration
	metrics        *metrics.Metrics
	log            zerolog.Logger

	mu         sync.RWMutex
	snapshot   Snapshot
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	refresh    chan chan struct{}
}

type Option func(*Poller)

func WithNativeInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.nativeInterval = d
	}
}

func WithTokenInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.tokenInterval = d
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(p *Poller) {
		p.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

func New(reader BalanceReader, opts ...Option) *Poller {
	p := &Poller{
		reader:         reader,
		nativeInterval: DefaultNativeInterval,
		tokenInterval:  DefaultTokenInterval,
		log:            zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(p)
	}
	return p
}

// Track starts polling owner, and mint when it is not the zero key. Any
// previous tracking is stopped first and its results are discarded.
func (p *Poller) Track(owner, mint solana.PublicKey, decimals uint8) {
	p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	refresh := make(chan chan struct{})

	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.snapshot = Snapshot{Owner: owner, Mint: mint, Decimals: decimals}
	p.cancel = cancel
	p.done = done
	p.refresh = refresh
	p.mu.Unlock()

	p.log.Debug().
		Str("owner", owner.String()).
		Str("mint", mint.String()).
		Uint64("generation", gen).
		Msg("balance polling started")

	go p.run(ctx, gen, owner, mint, refresh, done)
}

// Stop cancels polling and waits for an in-flight tick to return. The last
// snapshot is cleared.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done, p.refresh = nil, nil, nil
	p.generation++
	p.snapshot = Snapshot{}
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Snapshot returns a copy of the current balances. ok is false while nothing
// is being tracked.
func (p *Poller) Snapshot() (snapshot Snapshot, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot, p.cancel != nil
}

// Refresh runs one immediate tick of both reads and returns once it has been
// applied. It is a no-op while nothing is tracked.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.RLock()
	refresh, done := p.refresh, p.done
	p.mu.RUnlock()
	if refresh == nil {
		return nil
	}

	applied := make(chan struct{})
	select {
	case refresh <- applied:
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-applied:
		return nil
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context, gen uint64, owner, mint solana.PublicKey, refresh <-chan chan struct{}, done chan struct{}) {
	defer close(done)

	hasMint := !mint.IsZero()
	p.pollNative(ctx, gen, owner)
	if hasMint {
		p.pollToken(ctx, gen, owner, mint)
	}

	nativeTicker := time.NewTicker(p.nativeInterval)
	defer nativeTicker.Stop()

	var tokenTick <-chan time.Time
	if hasMint {
		tokenTicker := time.NewTicker(p.tokenInterval)
		defer tokenTicker.Stop()
		tokenTick = tokenTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-nativeTicker.C:
			p.pollNative(ctx, gen, owner)
		case <-tokenTick:
			p.pollToken(ctx, gen, owner, mint)
		case applied := <-refresh:
			p.pollNative(ctx, gen, owner)
			if hasMint {
				p.pollToken(ctx, gen, owner, mint)
			}
			close(applied)
		}
	}
}

func (p *Poller) pollNative(ctx context.Context, gen uint64, owner solana.PublicKey) {
	lamports, err := p.reader.NativeBalance(ctx, owner)
	if ctx.Err() != nil {
		return
	}
	p.metrics.PollTick("native", err)
	if err != nil {
		p.log.Warn().Err(err).Str("owner", owner.String()).Msg("native balance read failed")
		return
	}

	p.apply(gen, func(s *Snapshot) {
		s.Lamports = lamports
		s.NativeKnown = true
	})
}

func (p *Poller) pollToken(ctx context.Context, gen uint64, owner, mint solana.PublicKey) {
	account := solanago.DeriveAssociatedAddress(mint, owner)
	acc, err := p.reader.GetTokenAccount(ctx, account)
	if ctx.Err() != nil {
		return
	}

	var amount uint64
	switch {
	case errors.Is(err, solanago.ErrAccountNotFound):
		err = nil
	case err != nil:
	default:
		amount = acc.Amount
	}
	p.metrics.PollTick("token", err)
	if err != nil {
		p.log.Warn().Err(err).
			Str("owner", owner.String()).
			Str("mint", mint.String()).
			Msg("token balance read failed")
		return
	}

	p.apply(gen, func(s *Snapshot) {
		s.TokenRaw = amount
		s.TokenKnown = true
	})
}

// apply mutates the snapshot unless gen has been superseded.
func (p *Poller) apply(gen uint64, fn func(*Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return
	}
	fn(&p.snapshot)
	p.snapshot.UpdatedAt = time.Now()
}
