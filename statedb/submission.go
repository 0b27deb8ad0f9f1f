package statedb

import (
	"errors"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// NeedsQuery tells whether the last attempt may have landed without us
// knowing, so the chain must be asked before sending again.
func (s *Submission) NeedsQuery() bool {
	switch s.Status {
	case SubmissionInflight, SubmissionTimeout, SubmissionTransient:
		return true
	}
	return false
}

// BeginSubmission records a new inflight attempt. prev is the last attempt
// for the same call and hash, or nil.
func BeginSubmission(st Store, prev *Submission, kind chainadapter.CallKind, hash ethcommon.Hash, chain agreement.ChainKey) (*Submission, error) {
	now := time.Now().Unix()
	sub := &Submission{
		Kind:         kind,
		WithdrawHash: hash,
		ChainKey:     chain,
		AttemptID:    uuid.NewString(),
		Status:       SubmissionInflight,
		Attempts:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if prev != nil {
		sub.Attempts = prev.Attempts + 1
		sub.CreatedAt = prev.CreatedAt
	}
	if err := st.SaveSubmission(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// FinishSubmission stores the outcome of sub.
func FinishSubmission(st Store, sub *Submission, receipt *chainadapter.Receipt, err error) error {
	sub.Status = SubmissionStatusOf(err)
	sub.LastError = ""
	if err != nil {
		sub.LastError = err.Error()
	}
	if receipt != nil {
		sub.TxHash = receipt.TxHash
		sub.SentHeight = receipt.Height
	}
	var se *chainadapter.SubmitError
	if errors.As(err, &se) && se.TxHash != "" {
		sub.TxHash = se.TxHash
	}
	sub.UpdatedAt = time.Now().Unix()
	return st.SaveSubmission(sub)
}

// MarkLanded records that the chain shows the effect of sub's call.
func MarkLanded(st Store, sub *Submission) error {
	sub.Status = SubmissionSuccess
	sub.LastError = ""
	sub.UpdatedAt = time.Now().Unix()
	return st.SaveSubmission(sub)
}
