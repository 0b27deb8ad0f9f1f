package operator

import (
	"context"
	"errors"
	"fmt"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/alert"
	"github.com/TEENet-io/watchtower-go/approval"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/metrics"
	"github.com/TEENet-io/watchtower-go/statedb"
	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ExecuteDue submits executeWithdraw for every approved record whose delay passed.
// Approvals whose last execution reverted are left to a backoff retry.
func (o *Operator) ExecuteDue(ctx context.Context) error {
	var errs []error
	for _, dest := range o.destinations() {
		key := dest.info.ChainKey
		recs, err := o.store.ListApprovals(statedb.ApprovalFilter{
			DestChainKey: &key,
			States:       []agreement.ApprovalState{agreement.ApprovalApproved},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("destination %s: %w", dest.info.Name, statedb.PersistenceError(err)))
			continue
		}

		now := o.now()
		queued := 0
		var g errgroup.Group
		g.SetLimit(o.cfg.Workers)
		for _, rec := range recs {
			if !approval.CanExecute(rec, now, dest.delay) {
				continue
			}
			dest, hash := dest, rec.Approval.WithdrawHash
			if o.sched != nil && o.sched.Has(executeRetryKey(hash)) {
				continue
			}
			prev, _, err := o.store.GetSubmission(chainadapter.CallExecuteWithdraw, hash)
			if err != nil {
				errs = append(errs, fmt.Errorf("destination %s: %w", dest.info.Name, statedb.PersistenceError(err)))
				break
			}
			if prev != nil && prev.Status == statedb.SubmissionRejected {
				o.scheduleExecute(dest, hash)
				continue
			}
			if queued >= o.cfg.BatchSize {
				continue
			}
			queued++
			g.Go(func() error {
				if err := o.executeApproval(ctx, dest, hash, false); err != nil && !errors.Is(err, errLeaseHeld) {
					logger.WithField("withdrawHash", hash.Hex()).Warnf("failed to execute withdraw: err=%v", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return errors.Join(errs...)
}

func executeRetryKey(hash ethcommon.Hash) string {
	return "execute/" + hash.Hex()
}

// scheduleExecute retries a reverted execution with backoff until the
// approval executes, gets cancelled or the policy runs out.
func (o *Operator) scheduleExecute(dest *destination, hash ethcommon.Hash) {
	if o.sched == nil {
		return
	}
	task := func(ctx context.Context) error {
		return o.executeApproval(ctx, dest, hash, true)
	}
	giveUp := func(err error) {
		alert.Raise(context.Background(), o.alerts, alert.Alert{
			Kind:         alert.RetriesExhausted,
			Chain:        dest.info.Name,
			WithdrawHash: hash.Hex(),
			Reason:       fmt.Sprintf("execution of approval gave up: %v", err),
		})
	}
	if o.sched.ScheduleWithGiveUp(executeRetryKey(hash), task, giveUp) {
		metrics.RetryQueue.Set(float64(o.sched.Pending()))
	}
}

// executeApproval executes one approval. Transient failures are picked up by
// the next pass since the record stays approved. A revert is only resent by
// the retry task (retrying set).
func (o *Operator) executeApproval(ctx context.Context, dest *destination, hash ethcommon.Hash, retrying bool) error {
	// 1. Lock the approval
	// 2. Reload and skip an attempt that already succeeded or reverted
	// 3. Refresh from the contract, the source of truth
	// 4. Submit

	// 1. Lock the approval
	unlock, acquired, err := o.locker.Lock(ctx, statedb.HashLockKey(hash))
	if err != nil {
		return err
	}
	if !acquired {
		return errLeaseHeld
	}
	defer unlock()

	// 2. Reload and skip an attempt that already succeeded or reverted
	rec, found, err := o.store.GetApproval(hash)
	if err != nil {
		return err
	}
	if !found || rec.State != agreement.ApprovalApproved {
		return nil
	}
	prev, _, err := o.store.GetSubmission(chainadapter.CallExecuteWithdraw, hash)
	if err != nil {
		return err
	}
	if prev != nil && prev.Status == statedb.SubmissionSuccess {
		return nil
	}
	if prev != nil && prev.Status == statedb.SubmissionRejected && !retrying {
		return nil
	}

	// 3. Refresh from the contract, the source of truth
	rec, err = o.refreshApproval(ctx, dest, rec)
	if err != nil {
		return err
	}
	if !approval.CanExecute(rec, o.now(), dest.delay) {
		if prev != nil && prev.NeedsQuery() && rec.State == agreement.ApprovalExecuted {
			return statedb.MarkLanded(o.store, prev)
		}
		return nil
	}

	// 4. Submit
	sub, err := statedb.BeginSubmission(o.store, prev, chainadapter.CallExecuteWithdraw, hash, dest.info.ChainKey)
	if err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, o.cfg.SubmitTimeout)
	receipt, serr := dest.adapter.Submit(sctx, chainadapter.ExecuteWithdraw(hash))
	cancel()

	if err := statedb.FinishSubmission(o.store, sub, receipt, serr); err != nil {
		return err
	}
	metrics.Submissions.WithLabelValues(dest.info.Name, string(chainadapter.CallExecuteWithdraw), string(sub.Status)).Inc()

	if serr != nil {
		if chainadapter.IsRejected(serr) {
			// cancelled or executed meanwhile, the contract knows which
			next, err := o.refreshApproval(ctx, dest, rec)
			if err != nil {
				logger.Warnf("failed to refresh approval: err=%v", err)
			}
			if next != nil && next.State != agreement.ApprovalApproved {
				return nil
			}
			if !retrying {
				logger.WithFields(logger.Fields{
					"chain":        dest.info.Name,
					"withdrawHash": hash.Hex(),
				}).Warnf("withdraw execution reverted, backing off: err=%v", serr)
				alert.Raise(ctx, o.alerts, alert.Alert{
					Kind:         alert.ExecuteRejected,
					Chain:        dest.info.Name,
					WithdrawHash: hash.Hex(),
					Reason:       serr.Error(),
				})
				o.scheduleExecute(dest, hash)
			}
		}
		return serr
	}

	logger.WithFields(logger.Fields{
		"chain":        dest.info.Name,
		"withdrawHash": hash.Hex(),
		"tx":           receipt.TxHash,
	}).Info("withdraw executed")
	return nil
}

// refreshApproval reconciles rec with the destination contract and saves any change.
func (o *Operator) refreshApproval(ctx context.Context, dest *destination, rec *statedb.ApprovalRecord) (*statedb.ApprovalRecord, error) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	onchain, found, err := dest.adapter.WithdrawApproval(cctx, rec.Approval.WithdrawHash)
	if err != nil {
		return nil, err
	}
	next, changed := approval.Reconcile(rec, onchain, found)
	if changed {
		if err := o.store.SaveApproval(next); err != nil {
			return nil, err
		}
	}
	return next, nil
}
