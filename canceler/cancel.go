package canceler

import (
	"context"
	"fmt"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/alert"
	"github.com/TEENet-io/watchtower-go/approval"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/metrics"
	"github.com/TEENet-io/watchtower-go/statedb"
	logger "github.com/sirupsen/logrus"
)

// cancelLocked cancels an invalid approval. Caller holds the withdraw hash lock.
// A returned error means the cancel may not have landed and must be retried.
func (c *Canceler) cancelLocked(ctx context.Context, dest *destination, rec *statedb.ApprovalRecord) error {
	// 1. Skip if a cancel already succeeded or was rejected
	// 2. Ask the contract, it may already be cancelled or executed
	// 3. Record the attempt and submit

	hash := rec.Approval.WithdrawHash
	fields := logger.Fields{
		"chain":        dest.info.Name,
		"withdrawHash": hash.Hex(),
	}

	// 1. Skip if a cancel already succeeded or was rejected
	prev, _, err := c.store.GetSubmission(chainadapter.CallCancelWithdrawApproval, hash)
	if err != nil {
		return err
	}
	if prev != nil && (prev.Status == statedb.SubmissionSuccess || prev.Status == statedb.SubmissionRejected) {
		return nil
	}

	// 2. Ask the contract, it may already be cancelled or executed
	next, err := c.refresh(ctx, dest, rec)
	if err != nil {
		return err
	}
	switch next.State {
	case agreement.ApprovalCancelled:
		if prev != nil && prev.NeedsQuery() {
			logger.WithFields(fields).Info("earlier cancel attempt landed")
			return statedb.MarkLanded(c.store, prev)
		}
		return nil
	case agreement.ApprovalExecuted:
		metrics.Cancellations.WithLabelValues(dest.info.Name, "too_late").Inc()
		alert.Raise(ctx, c.alerts, alert.Alert{
			Kind:         alert.CancelFailed,
			Chain:        dest.info.Name,
			WithdrawHash: hash.Hex(),
			Reason:       "invalid approval was executed before it could be cancelled",
		})
		return nil
	case agreement.ApprovalApproved:
	default:
		return nil
	}

	// 3. Record the attempt and submit
	sub, err := statedb.BeginSubmission(c.store, prev, chainadapter.CallCancelWithdrawApproval, hash, dest.info.ChainKey)
	if err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	receipt, serr := dest.adapter.Submit(sctx, chainadapter.CancelWithdrawApproval(hash))
	cancel()

	if err := statedb.FinishSubmission(c.store, sub, receipt, serr); err != nil {
		return err
	}
	metrics.Submissions.WithLabelValues(dest.info.Name, string(chainadapter.CallCancelWithdrawApproval), string(sub.Status)).Inc()
	metrics.Cancellations.WithLabelValues(dest.info.Name, string(sub.Status)).Inc()

	if serr == nil {
		logger.WithFields(fields).WithField("tx", receipt.TxHash).Warn("invalid approval cancelled")
		alert.Raise(ctx, c.alerts, alert.Alert{
			Kind:         alert.CancelSubmitted,
			Chain:        dest.info.Name,
			WithdrawHash: hash.Hex(),
			TxHash:       receipt.TxHash,
			Reason:       rec.Reason,
		})
		return nil
	}

	if chainadapter.IsRejected(serr) {
		alert.Raise(ctx, c.alerts, alert.Alert{
			Kind:         alert.CancelFailed,
			Chain:        dest.info.Name,
			WithdrawHash: hash.Hex(),
			Reason:       serr.Error(),
		})
		if _, err := c.refresh(ctx, dest, rec); err != nil {
			logger.WithFields(fields).Warnf("failed to refresh approval: err=%v", err)
		}
		return nil
	}

	return serr
}

// refresh reconciles rec with the contract and saves any change.
func (c *Canceler) refresh(ctx context.Context, dest *destination, rec *statedb.ApprovalRecord) (*statedb.ApprovalRecord, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	onchain, found, err := dest.adapter.WithdrawApproval(cctx, rec.Approval.WithdrawHash)
	if err != nil {
		return nil, err
	}
	next, changed := approval.Reconcile(rec, onchain, found)
	if changed {
		if err := c.store.SaveApproval(next); err != nil {
			return nil, err
		}
	}
	return next, nil
}

func (c *Canceler) scheduleCancel(dest *destination, rec *statedb.ApprovalRecord) {
	if c.sched == nil {
		return
	}
	hash := rec.Approval.WithdrawHash

	task := func(ctx context.Context) error {
		unlock, acquired, err := c.locker.Lock(ctx, statedb.HashLockKey(hash))
		if err != nil {
			return err
		}
		if !acquired {
			return errLeaseHeld
		}
		defer unlock()

		cur, found, err := c.store.GetApproval(hash)
		if err != nil {
			return err
		}
		if !found || cur.Verdict != agreement.VerdictInvalid || cur.Reenabled {
			return nil
		}
		return c.cancelLocked(ctx, dest, cur)
	}
	giveUp := func(err error) {
		alert.Raise(context.Background(), c.alerts, alert.Alert{
			Kind:         alert.CancelFailed,
			Chain:        dest.info.Name,
			WithdrawHash: hash.Hex(),
			Reason:       fmt.Sprintf("cancel retries exhausted: %v", err),
		})
	}
	if c.sched.ScheduleWithGiveUp("cancel/"+hash.Hex(), task, giveUp) {
		metrics.RetryQueue.Set(float64(c.sched.Pending()))
	}
}
