package chainadapter

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSubscriptionUnsupported = errors.New("event subscription not supported")
	ErrUnknownEvent            = errors.New("unknown event")
	ErrMalformedEvent          = errors.New("malformed event")
)

// FailureKind classifies a failed submission.
type FailureKind string

const (
	// the chain refused the call (revert, nonce used, unauthorized); do not retry blindly
	FailureRejected FailureKind = "rejected"
	// the call was sent but no confirmation arrived in time; it may still land
	FailureTimeout FailureKind = "timeout"
	// network or node trouble before the call reached the chain
	FailureTransient FailureKind = "transient"
)

type SubmitError struct {
	Kind   FailureKind
	Call   CallKind
	TxHash string // known for Timeout and receipt-level Rejected
	Err    error
}

func (e *SubmitError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("%s %s (tx=%s): %v", e.Call, e.Kind, e.TxHash, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Call, e.Kind, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

func Rejected(call CallKind, txHash string, err error) error {
	return &SubmitError{Kind: FailureRejected, Call: call, TxHash: txHash, Err: err}
}

func Timeout(call CallKind, txHash string, err error) error {
	return &SubmitError{Kind: FailureTimeout, Call: call, TxHash: txHash, Err: err}
}

func Transient(call CallKind, err error) error {
	return &SubmitError{Kind: FailureTransient, Call: call, Err: err}
}

// KindOf classifies err. Errors that are not *SubmitError count as transient,
// except a context deadline which counts as a timeout.
func KindOf(err error) FailureKind {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureTransient
}

func IsRejected(err error) bool {
	return err != nil && KindOf(err) == FailureRejected
}
