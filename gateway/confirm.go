package gateway

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	jsoniter "github.com/json-iterator/go"
)

type Status int

const (
	StatusConfirmed Status = iota
	// StatusTimedOut means the bound elapsed without a verdict. The
	// transaction may still land; re-query by signature, never resubmit.
	StatusTimedOut
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusTimedOut:
		return "timed_out"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Confirmation is the outcome of waiting on a submitted transaction.
type Confirmation struct {
	Signature solana.Signature
	Status    Status
	Reason    string
	Logs      []string
	Slot      uint64
}

// Err returns a *TransactionError for rejected confirmations and nil
// otherwise.
func (c *Confirmation) Err() error {
	if c.Status != StatusRejected {
		return nil
	}
	return &TransactionError{Signature: c.Signature, Reason: c.Reason, Logs: c.Logs}
}

var commitmentRank = map[string]int{
	string(rpc.CommitmentProcessed): 0,
	string(rpc.CommitmentConfirmed): 1,
	string(rpc.CommitmentFinalized): 2,
}

// Confirm blocks until sig reaches the configured commitment, is rejected,
// or the confirmation bound elapses. An error is only returned when ctx ends.
func (g *Gateway) Confirm(ctx context.Context, sig solana.Signature) (*Confirmation, error) {
	if g.wsClient != nil {
		return g.confirmWebsocket(ctx, sig)
	}
	return g.confirmPolling(ctx, sig)
}

// confirmWebsocket waits on a signature subscription at the configured
// commitment. A subscription that fails or stays silent until the bound falls
// back to one signature status read.
func (g *Gateway) confirmWebsocket(ctx context.Context, sig solana.Signature) (*Confirmation, error) {
	sub, err := g.wsClient.SignatureSubscribe(sig, g.commitment)
	if err != nil {
		g.log.Warn().Err(err).Str("signature", sig.String()).Msg("signature subscription failed, polling instead")
		return g.confirmPolling(ctx, sig)
	}
	defer sub.Unsubscribe()

	waitCtx, cancel := context.WithTimeout(ctx, g.confirmTimeout)
	defer cancel()
	res, err := sub.Recv(waitCtx)
	if err == nil && res != nil {
		if res.Value.Err != nil {
			return g.rejected(ctx, sig, res.Value.Err, res.Context.Slot), nil
		}
		return &Confirmation{Signature: sig, Status: StatusConfirmed, Slot: res.Context.Slot}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && waitCtx.Err() == nil {
		g.log.Debug().Err(err).Str("signature", sig.String()).Msg("signature subscription ended without a result")
	}

	c, err := g.checkStatus(ctx, sig)
	if err != nil {
		g.log.Warn().Err(err).Str("signature", sig.String()).Msg("signature status read failed")
	}
	if c == nil {
		return &Confirmation{Signature: sig, Status: StatusTimedOut}, nil
	}
	return c, nil
}

func (g *Gateway) confirmPolling(ctx context.Context, sig solana.Signature) (*Confirmation, error) {
	deadline := time.NewTimer(g.confirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		c, err := g.checkStatus(ctx, sig)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			g.log.Debug().Err(err).Str("signature", sig.String()).Msg("signature status read failed, retrying")
		case c != nil:
			return c, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return &Confirmation{Signature: sig, Status: StatusTimedOut}, nil
		case <-ticker.C:
		}
	}
}

// checkStatus returns nil, nil while the transaction has not reached the
// configured commitment.
func (g *Gateway) checkStatus(ctx context.Context, sig solana.Signature) (*Confirmation, error) {
	status, err := g.SignatureStatus(ctx, sig)
	if err != nil || status == nil {
		return nil, err
	}
	if status.Err != nil {
		return g.rejected(ctx, sig, status.Err, status.Slot), nil
	}
	if !g.reached(status) {
		return nil, nil
	}
	return &Confirmation{Signature: sig, Status: StatusConfirmed, Slot: status.Slot}, nil
}

// rejected renders the ledger error of a landed transaction.
func (g *Gateway) rejected(ctx context.Context, sig solana.Signature, txErr any, slot uint64) *Confirmation {
	reason, err := jsoniter.MarshalToString(txErr)
	if err != nil {
		reason = "transaction failed"
	}
	return &Confirmation{
		Signature: sig,
		Status:    StatusRejected,
		Reason:    reason,
		Logs:      g.transactionLogs(ctx, sig),
		Slot:      slot,
	}
}

func (g *Gateway) reached(status *rpc.SignatureStatusesResult) bool {
	got := string(status.ConfirmationStatus)
	if got == "" && status.Confirmations == nil {
		// nodes predating confirmationStatus report finalized as null confirmations
		got = string(rpc.CommitmentFinalized)
	}
	have, ok := commitmentRank[got]
	if !ok {
		return false
	}
	return have >= commitmentRank[string(g.commitment)]
}

// transactionLogs fetches program logs of a landed transaction, best effort.
func (g *Gateway) transactionLogs(ctx context.Context, sig solana.Signature) []string {
	commitment := g.commitment
	if commitment == rpc.CommitmentProcessed {
		commitment = rpc.CommitmentConfirmed
	}

	start := time.Now()
	out, err := g.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{Commitment: commitment})
	g.metrics.ObserveRPC("getTransaction", start, err)
	if err != nil || out == nil || out.Meta == nil {
		return nil
	}
	return out.Meta.LogMessages
}
