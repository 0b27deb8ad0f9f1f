package statedb

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	ErrNilRecord     = errors.New("nil record")
	ErrEmptyStream   = errors.New("empty watermark stream")
	ErrZeroHash      = errors.New("zero withdraw hash")
	ErrZeroChainKey  = errors.New("zero chain key")
	ErrMissingNonce  = errors.New("missing nonce")
	ErrEmptyLeaseKey = errors.New("empty lease key")

	// ErrPersistence marks a store failure that the calling task cannot work around.
	ErrPersistence = errors.New("persistence failure")
)

func PersistenceError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// Watermark streams. Each stream keeps its own height per chain.
const (
	StreamOperatorDeposits  = "operator/deposits"
	StreamOperatorApprovals = "operator/approvals"
	StreamCancelerApprovals = "canceler/approvals"
)

type DepositStatus string

const (
	DepositObserved  DepositStatus = "observed"  // recorded, not yet handled
	DepositRetrying  DepositStatus = "retrying"  // a retry task owns it
	DepositSubmitted DepositStatus = "submitted" // approval landed on the destination
	DepositRejected  DepositStatus = "rejected"  // destination refused the approval
	DepositSkipped   DepositStatus = "skipped"   // no route or already handled elsewhere
)

type DepositRecord struct {
	Deposit      agreement.Deposit
	WithdrawHash ethcommon.Hash
	Height       uint64
	TxHash       string
	Status       DepositStatus
	Reason       string
	UpdatedAt    int64
}

// ApprovalRecord is the local projection of a withdraw approval.
// Approval.Cancelled and Approval.Executed mirror State.
type ApprovalRecord struct {
	Approval  agreement.WithdrawApproval
	State     agreement.ApprovalState
	Verdict   agreement.Verdict
	Reason    string
	Reenabled bool
	Height    uint64
	TxHash    string
	UpdatedAt int64
}

func (r *ApprovalRecord) Clone() *ApprovalRecord {
	c := *r
	c.Approval = *r.Approval.Clone()
	return &c
}

type ApprovalFilter struct {
	DestChainKey *agreement.ChainKey
	States       []agreement.ApprovalState
	Verdicts     []agreement.Verdict
	Limit        int
}

type SubmissionStatus string

const (
	SubmissionInflight  SubmissionStatus = "inflight"
	SubmissionSuccess   SubmissionStatus = "success"
	SubmissionRejected  SubmissionStatus = "rejected"
	SubmissionTimeout   SubmissionStatus = "timeout"
	SubmissionTransient SubmissionStatus = "transient"
)

// Submission tracks the latest attempt of one contract call per withdraw hash.
type Submission struct {
	Kind         chainadapter.CallKind
	WithdrawHash ethcommon.Hash
	ChainKey     agreement.ChainKey
	AttemptID    string
	TxHash       string
	SentHeight   uint64
	Status       SubmissionStatus
	Attempts     int
	LastError    string
	CreatedAt    int64
	UpdatedAt    int64
}

// SubmissionStatusOf maps a submit result to the stored status.
func SubmissionStatusOf(err error) SubmissionStatus {
	if err == nil {
		return SubmissionSuccess
	}
	switch chainadapter.KindOf(err) {
	case chainadapter.FailureRejected:
		return SubmissionRejected
	case chainadapter.FailureTimeout:
		return SubmissionTimeout
	}
	return SubmissionTransient
}

type Stats struct {
	Deposits    map[DepositStatus]int
	Approvals   map[agreement.ApprovalState]int
	Verdicts    map[agreement.Verdict]int
	Submissions map[SubmissionStatus]int
}

func newStats() *Stats {
	return &Stats{
		Deposits:    map[DepositStatus]int{},
		Approvals:   map[agreement.ApprovalState]int{},
		Verdicts:    map[agreement.Verdict]int{},
		Submissions: map[SubmissionStatus]int{},
	}
}

// Store is the durable state shared by watchers and services.
// Getters return (value, found, error).
type Store interface {
	Close()

	GetWatermark(stream string, chain agreement.ChainKey) (uint64, bool, error)
	SetWatermark(stream string, chain agreement.ChainKey, height uint64) error

	// SaveDeposit inserts rec unless the (source chain, nonce) pair exists.
	// It reports whether a row was inserted.
	SaveDeposit(rec *DepositRecord) (bool, error)
	GetDeposit(src agreement.ChainKey, nonce *big.Int) (*DepositRecord, bool, error)
	// ListDeposits returns deposits of src with one of statuses, in nonce order.
	ListDeposits(src agreement.ChainKey, statuses []DepositStatus, limit int) ([]*DepositRecord, error)
	UpdateDepositStatus(src agreement.ChainKey, nonce *big.Int, status DepositStatus, reason string) error

	SaveApproval(rec *ApprovalRecord) error
	GetApproval(hash ethcommon.Hash) (*ApprovalRecord, bool, error)
	ListApprovals(filter ApprovalFilter) ([]*ApprovalRecord, error)

	IsNonceUsed(src agreement.ChainKey, nonce *big.Int) (bool, error)
	// MarkNonceUsed reports whether this call was the one that marked it.
	MarkNonceUsed(src agreement.ChainKey, nonce *big.Int) (bool, error)

	GetSubmission(kind chainadapter.CallKind, hash ethcommon.Hash) (*Submission, bool, error)
	SaveSubmission(s *Submission) error

	// AcquireLease takes or renews key for owner until now+ttl.
	// It fails without error when another owner holds an unexpired lease.
	AcquireLease(key, owner string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(key, owner string) error

	Stats() (*Stats, error)
}

func validateDeposit(rec *DepositRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if rec.Deposit.SrcChainKey.IsZero() {
		return ErrZeroChainKey
	}
	if rec.Deposit.Nonce == nil {
		return ErrMissingNonce
	}
	return nil
}

func validateApproval(rec *ApprovalRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if rec.Approval.WithdrawHash == (ethcommon.Hash{}) {
		return ErrZeroHash
	}
	if rec.Approval.Nonce == nil {
		return ErrMissingNonce
	}
	return nil
}
