package gateway

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fakeNode answers JSON-RPC calls from a table of method handlers. A handler
// returns either a result or an error object.
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]func(params gjson.Result) (result any, rpcErr map[string]any)
	calls    map[string]int
}

func newFakeNode(t *testing.T) (*fakeNode, *rpc.Client) {
	node := &fakeNode{
		handlers: map[string]func(gjson.Result) (any, map[string]any){},
		calls:    map[string]int{},
	}
	srv := httptest.NewServer(http.HandlerFunc(node.serve))
	t.Cleanup(srv.Close)
	return node, rpc.New(srv.URL)
}

func (n *fakeNode) on(method string, fn func(params gjson.Result) (any, map[string]any)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = fn
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	method := gjson.GetBytes(body, "method").String()
	id := gjson.GetBytes(body, "id")

	n.mu.Lock()
	n.calls[method]++
	fn := n.handlers[method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": jsoniter.RawMessage(id.Raw)}
	if fn == nil {
		resp["error"] = map[string]any{"code": -32601, "message": "Method not found"}
	} else {
		result, rpcErr := fn(gjson.GetBytes(body, "params"))
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = jsoniter.NewEncoder(w).Encode(resp)
}

func withContext(value any) any {
	return map[string]any{"context": map[string]any{"slot": 1}, "value": value}
}

func accountValue(owner solana.PublicKey, data []byte) any {
	return withContext(map[string]any{
		"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
		"executable": false,
		"lamports":   2039280,
		"owner":      owner.String(),
		"rentEpoch":  0,
	})
}

func encodeTokenAccount(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, 165)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = 1
	return data
}

func encodeMint(authority solana.PublicKey, decimals uint8) []byte {
	data := make([]byte, 82)
	binary.LittleEndian.PutUint32(data[0:4], 1)
	copy(data[4:36], authority[:])
	data[44] = decimals
	data[45] = 1
	return data
}

func statusValue(status string, txErr any) func(gjson.Result) (any, map[string]any) {
	return func(gjson.Result) (any, map[string]any) {
		return withContext([]any{map[string]any{
			"slot":               42,
			"confirmations":      nil,
			"err":                txErr,
			"confirmationStatus": status,
		}}), nil
	}
}

func TestLatestBlockhashAndBalance(t *testing.T) {
	node, client := newFakeNode(t)
	var hash solana.Hash
	hash[0] = 7

	node.on("getLatestBlockhash", func(gjson.Result) (any, map[string]any) {
		return withContext(map[string]any{"blockhash": hash.String(), "lastValidBlockHeight": 100}), nil
	})
	node.on("getBalance", func(params gjson.Result) (any, map[string]any) {
		return withContext(1_500_000_000), nil
	})

	g := New(client)
	got, err := g.LatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hash, got)

	lamports, err := g.NativeBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), lamports)
}

func TestGetTokenAccount(t *testing.T) {
	node, client := newFakeNode(t)
	mint, owner := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	ata := solana.NewWallet().PublicKey()
	missing := solana.NewWallet().PublicKey()

	node.on("getAccountInfo", func(params gjson.Result) (any, map[string]any) {
		if params.Get("0").String() == missing.String() {
			return withContext(nil), nil
		}
		return accountValue(solana.TokenProgramID, encodeTokenAccount(mint, owner, 2_500_000_000)), nil
	})

	g := New(client)
	acc, err := g.GetTokenAccount(context.Background(), ata)
	require.NoError(t, err)
	assert.Equal(t, ata, acc.Address)
	assert.Equal(t, mint, acc.Mint)
	assert.Equal(t, owner, acc.Owner)
	assert.Equal(t, uint64(2_500_000_000), acc.Amount)

	_, err = g.GetTokenAccount(context.Background(), missing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTokenAccountWrongOwner(t *testing.T) {
	node, client := newFakeNode(t)
	node.on("getAccountInfo", func(gjson.Result) (any, map[string]any) {
		return accountValue(solana.SystemProgramID, make([]byte, 165)), nil
	})

	_, err := New(client).GetTokenAccount(context.Background(), solana.NewWallet().PublicKey())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGetMint(t *testing.T) {
	node, client := newFakeNode(t)
	authority := solana.NewWallet().PublicKey()
	node.on("getAccountInfo", func(gjson.Result) (any, map[string]any) {
		return accountValue(solana.TokenProgramID, encodeMint(authority, 9)), nil
	})

	mintKey := solana.NewWallet().PublicKey()
	mint, err := New(client).GetMint(context.Background(), mintKey)
	require.NoError(t, err)
	assert.Equal(t, mintKey, mint.Address)
	assert.Equal(t, uint8(9), mint.Decimals)
	require.NotNil(t, mint.MintAuthority)
	assert.Equal(t, authority, *mint.MintAuthority)
}

func TestSubmit(t *testing.T) {
	node, client := newFakeNode(t)
	var sig solana.Signature
	sig[0] = 1
	node.on("sendTransaction", func(params gjson.Result) (any, map[string]any) {
		assert.Equal(t, "base64", params.Get("1.encoding").String())
		return sig.String(), nil
	})

	got, err := New(client).Submit(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, sig, got)
}

func TestSubmitRejected(t *testing.T) {
	node, client := newFakeNode(t)
	node.on("sendTransaction", func(gjson.Result) (any, map[string]any) {
		return nil, map[string]any{
			"code":    -32002,
			"message": "Transaction simulation failed: Error processing Instruction 0: custom program error: 0x0",
			"data": map[string]any{
				"err": map[string]any{"InstructionError": []any{0, map[string]any{"Custom": 0}}},
				"logs": []string{
					"Program 11111111111111111111111111111111 invoke [1]",
					"Allocate: account Address { address: X, base: None } already in use",
				},
			},
		}
	})

	_, err := New(client).Submit(context.Background(), []byte{1, 2, 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)

	var txErr *TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Contains(t, txErr.Reason, "InstructionError")
	assert.Len(t, txErr.Logs, 2)
	assert.True(t, IsAccountInUse(err))
}

func TestSubmitTransportError(t *testing.T) {
	node, client := newFakeNode(t)
	node.on("sendTransaction", func(gjson.Result) (any, map[string]any) {
		return nil, map[string]any{"code": -32005, "message": "Node is behind"}
	})

	_, err := New(client).Submit(context.Background(), []byte{1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.False(t, IsAccountInUse(err))
}

func TestConfirmConfirmed(t *testing.T) {
	node, client := newFakeNode(t)
	node.on("getSignatureStatuses", statusValue("confirmed", nil))

	var sig solana.Signature
	c, err := New(client, WithPollInterval(10*time.Millisecond)).Confirm(context.Background(), sig)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, c.Status)
	assert.Equal(t, uint64(42), c.Slot)
	assert.NoError(t, c.Err())
}

func TestConfirmWaitsForCommitment(t *testing.T) {
	node, client := newFakeNode(t)
	node.on("getSignatureStatuses", statusValue("confirmed", nil))

	g := New(client,
		WithCommitment(rpc.CommitmentFinalized),
		WithPollInterval(10*time.Millisecond),
		WithConfirmTimeout(80*time.Millisecond),
	)
	c, err := g.Confirm(context.Background(), solana.Signature{})
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, c.Status)
	assert.Greater(t, node.count("getSignatureStatuses"), 1)
}

func TestConfirmTimesOutOnUnknownSignature(t *testing.T) {
	node, client := newFakeNode(t)
	node.on("getSignatureStatuses", func(gjson.Result) (any, map[string]any) {
		return withContext([]any{nil}), nil
	})

	g := New(client, WithPollInterval(10*time.Millisecond), WithConfirmTimeout(50*time.Millisecond))
	c, err := g.Confirm(context.Background(), solana.Signature{})
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, c.Status)
	assert.Equal(t, "timed_out", c.Status.String())
}

func TestConfirmRejected(t *testing.T) {
	node, client := newFakeNode(t)
	node.on("getSignatureStatuses", statusValue("confirmed", map[string]any{
		"InstructionError": []any{0, map[string]any{"Custom": 1}},
	}))
	node.on("getTransaction", func(gjson.Result) (any, map[string]any) {
		return map[string]any{
			"slot": 42,
			"meta": map[string]any{
				"err":         map[string]any{"InstructionError": []any{0, map[string]any{"Custom": 1}}},
				"logMessages": []string{"Program log: Error: insufficient funds"},
			},
		}, nil
	})

	c, err := New(client, WithPollInterval(10*time.Millisecond)).Confirm(context.Background(), solana.Signature{})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, c.Status)
	assert.Contains(t, c.Reason, "InstructionError")
	assert.Equal(t, []string{"Program log: Error: insufficient funds"}, c.Logs)
	assert.ErrorIs(t, c.Err(), ErrRejected)
}

func TestConfirmContextCancelled(t *testing.T) {
	node, client := newFakeNode(t)
	node.on("getSignatureStatuses", func(gjson.Result) (any, map[string]any) {
		return withContext([]any{nil}), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := New(client, WithPollInterval(5*time.Millisecond)).Confirm(ctx, solana.Signature{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
