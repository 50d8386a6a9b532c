package tokenmanager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/Ojas-Arora/token-app/decimal_math"
	"github.com/Ojas-Arora/token-app/gateway"
	solanago "github.com/Ojas-Arora/token-app/solana"
)

// Error kinds. Every error returned by an operation matches exactly one of
// these with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrSigningRejected     = errors.New("signing rejected")
	ErrRPCTransient        = errors.New("rpc unavailable")
	ErrTransactionRejected = errors.New("transaction rejected")
	ErrIndeterminate       = errors.New("transaction outcome unknown")
	ErrBusy                = errors.New("another operation is in progress")

	// ErrAccountAlreadyExists marks the associated account creation race. It
	// is resolved internally and never returned.
	ErrAccountAlreadyExists = errors.New("account already exists")
)

// OperationError describes why an operation ended without success.
type OperationError struct {
	Op   string
	Kind error
	// Signature is set once the transaction has been signed.
	Signature solana.Signature
	Reason    string
	Logs      []string
	Err       error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if signed(e.Signature) {
		b.WriteString(" (signature ")
		b.WriteString(e.Signature.String())
		b.WriteString(")")
	}
	return b.String()
}

func (e *OperationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func signed(sig solana.Signature) bool {
	return sig != solana.Signature{}
}

func invalidInput(op, format string, args ...any) *OperationError {
	return &OperationError{Op: op, Kind: ErrInvalidInput, Reason: fmt.Sprintf(format, args...)}
}

// classify wraps err in an *OperationError of the matching kind. sig is the
// transaction signature when one exists.
func classify(op string, sig solana.Signature, err error) *OperationError {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr
	}

	e := &OperationError{Op: op, Signature: sig, Reason: err.Error(), Err: err}
	var txErr *gateway.TransactionError
	switch {
	case errors.Is(err, decimal_math.ErrInvalidAmount):
		e.Kind = ErrInvalidInput
	case errors.Is(err, solanago.ErrSigningRejected), errors.Is(err, solanago.ErrMissingSigner):
		e.Kind = ErrSigningRejected
	case errors.As(err, &txErr):
		e.Kind = ErrTransactionRejected
		e.Reason = txErr.Reason
		e.Logs = txErr.Logs
	case errors.Is(err, solanago.ErrInstructionOrder):
		e.Kind = ErrTransactionRejected
	case errors.Is(err, solanago.ErrInvalidDecimals):
		e.Kind = ErrInvalidInput
	case signed(sig):
		// the node may have received the transaction
		e.Kind = ErrIndeterminate
	default:
		e.Kind = ErrRPCTransient
	}
	return e
}

// kindLabel names the kind of err for metrics and logs.
func kindLabel(err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSigningRejected):
		return "signing_rejected"
	case errors.Is(err, ErrTransactionRejected):
		return "transaction_rejected"
	case errors.Is(err, ErrIndeterminate):
		return "indeterminate"
	default:
		return "rpc_transient"
	}
}

// UserMessage returns the single line shown to the user for the outcome of
// an operation.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var opErr *OperationError
	errors.As(err, &opErr)
	reason := err.Error()
	if opErr != nil && opErr.Reason != "" {
		reason = opErr.Reason
	}

	switch {
	case errors.Is(err, ErrBusy):
		return "Another operation is still in progress"
	case errors.Is(err, ErrInvalidInput):
		return reason
	case errors.Is(err, ErrSigningRejected):
		return "Transaction was not signed: " + reason
	case errors.Is(err, ErrTransactionRejected):
		return "Transaction failed: " + reason
	case errors.Is(err, ErrIndeterminate):
		if opErr != nil && signed(opErr.Signature) {
			return fmt.Sprintf("Transaction %s was sent but its outcome is unknown, check it later", opErr.Signature)
		}
		return "Transaction was sent but its outcome is unknown, check it later"
	default:
		return "Network error: " + reason
	}
}
