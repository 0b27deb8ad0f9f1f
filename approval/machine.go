// Package approval is the read model of withdraw approvals.
//
// States move pending → approved → cancelled | executed, and cancelled →
// approved on an admin reenable. Only observed chain events (or a fresh
// chain query) move a record; local actions never do.
package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/statedb"
)

var (
	ErrInvalidTransition = errors.New("invalid approval transition")
	ErrUnknownApproval   = errors.New("event for an unknown approval")
	ErrUnexpectedEvent   = errors.New("not an approval event")
)

func transitionError(from agreement.ApprovalState, ev agreement.Event) error {
	return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.Kind(), from)
}

func setState(rec *statedb.ApprovalRecord, state agreement.ApprovalState) {
	rec.State = state
	rec.Approval.Cancelled = state == agreement.ApprovalCancelled
	rec.Approval.Executed = state == agreement.ApprovalExecuted
}

// MarkSubmitted returns the pending record for an approval this process just
// sent. An existing record is returned unchanged: chain truth wins.
func MarkSubmitted(existing *statedb.ApprovalRecord, a *agreement.WithdrawApproval, txHash string) *statedb.ApprovalRecord {
	if existing != nil {
		return existing
	}
	rec := &statedb.ApprovalRecord{
		Approval:  *a.Clone(),
		Verdict:   agreement.VerdictUnverified,
		TxHash:    txHash,
		UpdatedAt: time.Now().Unix(),
	}
	setState(rec, agreement.ApprovalPending)
	return rec
}

// Apply applies an observed chain event to rec, which is nil when the
// approval was never seen. It returns the new record and whether it changed.
// Events older than the last applied one are ignored, so replays are harmless.
func Apply(rec *statedb.ApprovalRecord, ev agreement.Event) (*statedb.ApprovalRecord, bool, error) {
	meta := ev.Meta()
	if rec != nil && meta.Height < rec.Height {
		return rec, false, nil
	}

	var next *statedb.ApprovalRecord
	if rec != nil {
		next = rec.Clone()
	}

	switch e := ev.(type) {
	case *agreement.WithdrawApprovedObserved:
		if next == nil {
			next = &statedb.ApprovalRecord{
				Approval: *e.Approval.Clone(),
				Verdict:  agreement.VerdictUnverified,
			}
			setState(next, agreement.ApprovalApproved)
			break
		}
		if next.State != agreement.ApprovalPending {
			return rec, false, nil
		}
		verdict := next.Verdict
		next.Approval = *e.Approval.Clone()
		next.Verdict = verdict
		setState(next, agreement.ApprovalApproved)

	case *agreement.WithdrawCancelledObserved:
		if next == nil {
			return nil, false, ErrUnknownApproval
		}
		switch next.State {
		case agreement.ApprovalCancelled:
			return rec, false, nil
		case agreement.ApprovalApproved:
			setState(next, agreement.ApprovalCancelled)
		default:
			return rec, false, transitionError(next.State, ev)
		}

	case *agreement.WithdrawExecutedObserved:
		if next == nil {
			return nil, false, ErrUnknownApproval
		}
		switch next.State {
		case agreement.ApprovalExecuted:
			return rec, false, nil
		case agreement.ApprovalApproved:
			setState(next, agreement.ApprovalExecuted)
		default:
			return rec, false, transitionError(next.State, ev)
		}

	case *agreement.WithdrawReenabledObserved:
		if next == nil {
			return nil, false, ErrUnknownApproval
		}
		switch next.State {
		case agreement.ApprovalCancelled:
			setState(next, agreement.ApprovalApproved)
			next.Approval.ApprovedAt = e.ApprovedAt
			next.Reenabled = true
			next.Verdict = agreement.VerdictUnverified
			next.Reason = ""
		case agreement.ApprovalApproved:
			if next.Reenabled && next.Approval.ApprovedAt == e.ApprovedAt {
				return rec, false, nil
			}
			return rec, false, transitionError(next.State, ev)
		default:
			return rec, false, transitionError(next.State, ev)
		}

	default:
		return rec, false, fmt.Errorf("%w: %s", ErrUnexpectedEvent, ev.Kind())
	}

	next.Height = meta.Height
	next.TxHash = meta.TxHash
	next.UpdatedAt = time.Now().Unix()
	return next, true, nil
}

// Reconcile rebuilds rec from a fresh query of the destination contract.
// found is false when the contract has no such approval.
func Reconcile(rec *statedb.ApprovalRecord, onchain *agreement.WithdrawApproval, found bool) (*statedb.ApprovalRecord, bool) {
	if !found {
		return rec, false
	}

	var state agreement.ApprovalState
	switch {
	case onchain.Executed:
		state = agreement.ApprovalExecuted
	case onchain.Cancelled:
		state = agreement.ApprovalCancelled
	default:
		state = agreement.ApprovalApproved
	}

	if rec == nil {
		next := &statedb.ApprovalRecord{
			Approval:  *onchain.Clone(),
			Verdict:   agreement.VerdictUnverified,
			UpdatedAt: time.Now().Unix(),
		}
		setState(next, state)
		return next, true
	}

	if rec.State == state && rec.Approval.ApprovedAt == onchain.ApprovedAt {
		return rec, false
	}

	next := rec.Clone()
	if rec.State == agreement.ApprovalCancelled && state == agreement.ApprovalApproved {
		next.Reenabled = true
		next.Verdict = agreement.VerdictUnverified
		next.Reason = ""
	}
	next.Approval.ApprovedAt = onchain.ApprovedAt
	setState(next, state)
	next.UpdatedAt = time.Now().Unix()
	return next, true
}

// ExecutableAt is the first moment the contract accepts executeWithdraw.
func ExecutableAt(rec *statedb.ApprovalRecord, delay time.Duration) time.Time {
	return time.Unix(int64(rec.Approval.ApprovedAt), 0).Add(delay)
}

// CanExecute reports whether rec is approved and its delay has passed.
func CanExecute(rec *statedb.ApprovalRecord, now time.Time, delay time.Duration) bool {
	if rec.State != agreement.ApprovalApproved {
		return false
	}
	return !now.Before(ExecutableAt(rec, delay))
}
