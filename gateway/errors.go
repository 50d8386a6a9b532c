package gateway

import (
	"errors"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

// JSON-RPC error codes that mean the ledger (or its preflight simulation)
// refused the transaction rather than the request failing in transit.
const (
	codeInvalidParams                = -32602
	codePreflightFailure             = -32002
	codeSignatureVerificationFailure = -32003
)

const accountInUse = "already in use"

// TransactionError is a transaction the ledger refused, with the reason the
// node gave and any program logs.
type TransactionError struct {
	Signature solana.Signature
	Reason    string
	Logs      []string
}

func (e *TransactionError) Error() string {
	return "transaction rejected: " + e.Reason
}

func (e *TransactionError) Unwrap() error {
	return ErrRejected
}

// rejection converts a preflight/verification RPC error into a
// *TransactionError. Any other error yields nil.
func rejection(err error) *TransactionError {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return nil
	}
	switch rpcErr.Code {
	case codePreflightFailure, codeSignatureVerificationFailure, codeInvalidParams:
	default:
		return nil
	}

	txErr := &TransactionError{Reason: rpcErr.Message}
	if rpcErr.Data == nil {
		return txErr
	}
	data, mErr := jsoniter.Marshal(rpcErr.Data)
	if mErr != nil {
		return txErr
	}
	if e := gjson.GetBytes(data, "err"); e.Exists() && e.Type != gjson.Null {
		txErr.Reason = rpcErr.Message + ": " + e.Raw
	}
	for _, l := range gjson.GetBytes(data, "logs").Array() {
		txErr.Logs = append(txErr.Logs, l.String())
	}
	return txErr
}

// IsAccountInUse reports whether err is a rejection caused by creating an
// account that already exists.
func IsAccountInUse(err error) bool {
	var txErr *TransactionError
	if !errors.As(err, &txErr) {
		return false
	}
	if strings.Contains(txErr.Reason, accountInUse) {
		return true
	}
	for _, l := range txErr.Logs {
		if strings.Contains(l, accountInUse) {
			return true
		}
	}
	return false
}
