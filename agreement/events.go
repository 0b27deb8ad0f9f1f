package agreement

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	KindDeposit           EventKind = "deposit"
	KindWithdrawApproved  EventKind = "withdraw_approved"
	KindWithdrawCancelled EventKind = "withdraw_approval_cancelled"
	KindWithdrawExecuted  EventKind = "withdraw_executed"
	KindWithdrawReenabled EventKind = "withdraw_approval_reenabled"
)

// EventMeta locates an event on its chain.
type EventMeta struct {
	ChainKey ChainKey
	Height   uint64
	TxHash   string
	Index    uint
}

func (m EventMeta) Meta() EventMeta {
	return m
}

// Event is a normalized domain event produced by a watcher.
// Events of one chain are handed over in block order.
type Event interface {
	Meta() EventMeta
	Kind() EventKind
}

type DepositObserved struct {
	EventMeta
	Deposit Deposit
}

func (ev *DepositObserved) Kind() EventKind { return KindDeposit }

func (ev *DepositObserved) String() string {
	return fmt.Sprintf("DepositObserved{height=%d tx=%s deposit=%s}", ev.Height, ev.TxHash, ev.Deposit.String())
}

type WithdrawApprovedObserved struct {
	EventMeta
	Approval WithdrawApproval
}

func (ev *WithdrawApprovedObserved) Kind() EventKind { return KindWithdrawApproved }

type WithdrawCancelledObserved struct {
	EventMeta
	WithdrawHash ethcommon.Hash
}

func (ev *WithdrawCancelledObserved) Kind() EventKind { return KindWithdrawCancelled }

type WithdrawExecutedObserved struct {
	EventMeta
	WithdrawHash ethcommon.Hash
}

func (ev *WithdrawExecutedObserved) Kind() EventKind { return KindWithdrawExecuted }

// WithdrawReenabledObserved carries the new approval time, which restarts the delay.
type WithdrawReenabledObserved struct {
	EventMeta
	WithdrawHash ethcommon.Hash
	ApprovedAt   uint64
}

func (ev *WithdrawReenabledObserved) Kind() EventKind { return KindWithdrawReenabled }
