// Package gateway is the single network boundary of the token workflow. It
// wraps an explicitly constructed solana-go RPC client (and optionally a
// websocket client) and applies one commitment level to every read and
// confirmation.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/rs/zerolog"

	"github.com/Ojas-Arora/token-app/metrics"
	solanago "github.com/Ojas-Arora/token-app/solana"
)

const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

var (
	// ErrNotFound is returned by account reads for accounts that do not exist.
	ErrNotFound = solanago.ErrAccountNotFound

	ErrRejected = errors.New("transaction rejected")
)

type Gateway struct {
	rpcClient      *rpc.Client
	wsClient       *ws.Client
	commitment     rpc.CommitmentType
	confirmTimeout time.Duration
	pollInterval   time.Duration
	metrics        *metrics.Metrics
	log            zerolog.Logger
}

type Option func(*Gateway)

// WithWebsocket makes Confirm wait on a signature subscription instead of
// polling signature statuses.
func WithWebsocket(wsClient *ws.Client) Option {
	return func(g *Gateway) {
		g.wsClient = wsClient
	}
}

func WithCommitment(commitment rpc.CommitmentType) Option {
	return func(g *Gateway) {
		g.commitment = commitment
	}
}

// WithConfirmTimeout bounds how long Confirm waits.
func WithConfirmTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.confirmTimeout = d
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(g *Gateway) {
		g.pollInterval = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(g *Gateway) {
		g.log = log
	}
}

func New(rpcClient *rpc.Client, opts ...Option) *Gateway {
	g := &Gateway{
		rpcClient:      rpcClient,
		commitment:     rpc.CommitmentConfirmed,
		confirmTimeout: DefaultConfirmTimeout,
		pollInterval:   DefaultPollInterval,
		log:            zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(g)
	}
	return g
}

func (g *Gateway) Commitment() rpc.CommitmentType {
	return g.commitment
}

// LatestBlockhash returns a fresh freshness token for a new transaction.
func (g *Gateway) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	recent, err := g.rpcClient.GetLatestBlockhash(ctx, g.commitment)
	g.metrics.ObserveRPC("getLatestBlockhash", start, err)
	if err != nil {
		return solana.Hash{}, err
	}
	return recent.Value.Blockhash, nil
}

// MinimumRentExemptBalance returns the lamports an account of size bytes
// needs to be rent exempt.
func (g *Gateway) MinimumRentExemptBalance(ctx context.Context, size uint64) (uint64, error) {
	start := time.Now()
	lamports, err := g.rpcClient.GetMinimumBalanceForRentExemption(ctx, size, g.commitment)
	g.metrics.ObserveRPC("getMinimumBalanceForRentExemption", start, err)
	return lamports, err
}

// NativeBalance returns the lamports held by address.
func (g *Gateway) NativeBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	start := time.Now()
	out, err := g.rpcClient.GetBalance(ctx, address, g.commitment)
	g.metrics.ObserveRPC("getBalance", start, err)
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}

func (g *Gateway) getAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	start := time.Now()
	out, err := g.rpcClient.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: g.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (out == nil || out.Value == nil)) {
		g.metrics.ObserveRPC("getAccountInfo", start, nil)
		return nil, ErrNotFound
	}
	g.metrics.ObserveRPC("getAccountInfo", start, err)
	return out, err
}

// GetTokenAccount reads and decodes a token account. It returns ErrNotFound
// when the account has not been created yet.
func (g *Gateway) GetTokenAccount(ctx context.Context, account solana.PublicKey) (*solanago.TokenAccount, error) {
	out, err := g.getAccountInfo(ctx, account)
	if err != nil {
		return nil, err
	}
	if !out.Value.Owner.Equals(solana.TokenProgramID) {
		return nil, fmt.Errorf("account %s is owned by %s, not the token program", account, out.Value.Owner)
	}

	acc, err := new(solanago.AccountLayout).Decode(out.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("decode token account %s: %w", account, err)
	}
	acc.Address = account
	return acc, nil
}

// GetMint reads and decodes a mint owned by the token program.
func (g *Gateway) GetMint(ctx context.Context, mint solana.PublicKey) (*solanago.Mint, error) {
	out, err := g.getAccountInfo(ctx, mint)
	if err != nil {
		return nil, err
	}
	if !out.Value.Owner.Equals(solana.TokenProgramID) {
		return nil, fmt.Errorf("mint %s is owned by %s, not the token program", mint, out.Value.Owner)
	}

	token, err := new(solanago.TokenLayout).Decode(out.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("decode mint %s: %w", mint, err)
	}
	if !token.IsInitialized {
		return nil, fmt.Errorf("mint %s is not initialized", mint)
	}
	token.Address = mint
	token.Owner = out.Value.Owner
	return token, nil
}

// Submit sends a signed, serialized transaction after preflight simulation
// at the configured commitment. Ledger rejections come back as
// *TransactionError.
func (g *Gateway) Submit(ctx context.Context, raw []byte) (solana.Signature, error) {
	start := time.Now()
	sig, err := g.rpcClient.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: g.commitment,
	})
	g.metrics.ObserveRPC("sendTransaction", start, err)
	if err != nil {
		if txErr := rejection(err); txErr != nil {
			return solana.Signature{}, txErr
		}
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// SignatureStatus looks a transaction up by signature, including history.
// A nil status means the cluster does not know the signature (yet).
func (g *Gateway) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	start := time.Now()
	out, err := g.rpcClient.GetSignatureStatuses(ctx, true, sig)
	g.metrics.ObserveRPC("getSignatureStatuses", start, err)
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}
