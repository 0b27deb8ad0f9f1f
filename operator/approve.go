package operator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

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

var errLeaseHeld = errors.New("deposit is locked by another instance")

// ProcessDeposits runs one approval pass over every source chain.
func (o *Operator) ProcessDeposits(ctx context.Context) error {
	var errs []error
	for _, key := range o.sourceKeys() {
		if err := o.ProcessSource(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// ProcessSource submits approvals for the observed deposits of one source chain.
func (o *Operator) ProcessSource(ctx context.Context, src agreement.ChainKey) error {
	// 1. Re-arm retries that a restart or an exhausted backoff dropped
	// 2. Find new deposits, in nonce order
	// 3. Submit on the worker pool

	// 1. Re-arm retries that a restart dropped
	retrying, err := o.store.ListDeposits(src, []statedb.DepositStatus{statedb.DepositRetrying}, 0)
	if err != nil {
		return statedb.PersistenceError(err)
	}
	for _, rec := range retrying {
		o.scheduleRetry(rec)
	}

	// 2. Find new deposits, in nonce order
	recs, err := o.store.ListDeposits(src, []statedb.DepositStatus{statedb.DepositObserved}, o.cfg.BatchSize)
	if err != nil {
		return statedb.PersistenceError(err)
	}
	if len(recs) == 0 {
		return nil
	}

	// 3. Submit on the worker pool
	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			err := o.approveDeposit(ctx, rec)
			switch {
			case err == nil, errors.Is(err, errLeaseHeld):
			case ctx.Err() != nil:
			default:
				o.deferDeposit(rec, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func retryKey(rec *statedb.DepositRecord) string {
	return "approve/" + statedb.NonceLockKey(rec.Deposit.SrcChainKey, rec.Deposit.Nonce)
}

func (o *Operator) deferDeposit(rec *statedb.DepositRecord, cause error) {
	logger.WithFields(logger.Fields{
		"nonce":        rec.Deposit.Nonce,
		"withdrawHash": rec.WithdrawHash.Hex(),
	}).Warnf("approval deferred to retry: err=%v", cause)

	if err := o.store.UpdateDepositStatus(rec.Deposit.SrcChainKey, rec.Deposit.Nonce, statedb.DepositRetrying, cause.Error()); err != nil {
		logger.Errorf("failed to update deposit status: err=%v", err)
		return
	}
	o.scheduleRetry(rec)
}

func (o *Operator) scheduleRetry(rec *statedb.DepositRecord) {
	if o.sched == nil {
		return
	}
	src, nonce := rec.Deposit.SrcChainKey, rec.Deposit.Nonce

	task := func(ctx context.Context) error {
		cur, found, err := o.store.GetDeposit(src, nonce)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		return o.approveDeposit(ctx, cur)
	}
	// the deposit stays retrying, so the next pass re-arms it with a fresh backoff
	giveUp := func(err error) {
		if uerr := o.store.UpdateDepositStatus(src, nonce, statedb.DepositRetrying, "retries exhausted: "+err.Error()); uerr != nil {
			logger.Errorf("failed to update deposit status: err=%v", uerr)
		}
		alert.Raise(context.Background(), o.alerts, alert.Alert{
			Kind:         alert.RetriesExhausted,
			WithdrawHash: rec.WithdrawHash.Hex(),
			Reason:       fmt.Sprintf("approval of deposit nonce %v gave up: %v", nonce, err),
		})
	}
	if o.sched.ScheduleWithGiveUp(retryKey(rec), task, giveUp) {
		metrics.RetryQueue.Set(float64(o.sched.Pending()))
	}
}

func (o *Operator) buildApproval(d *agreement.Deposit, hash ethcommon.Hash) *agreement.WithdrawApproval {
	fee := o.cfg.feeFor(d.DestTokenAddress)
	return &agreement.WithdrawApproval{
		WithdrawHash:     hash,
		SrcChainKey:      d.SrcChainKey,
		DestChainKey:     d.DestChainKey,
		Token:            d.DestTokenAddress,
		Recipient:        d.DestAccount,
		DestAccount:      d.DestAccount,
		Amount:           new(big.Int).Set(d.Amount),
		Nonce:            new(big.Int).Set(d.Nonce),
		Fee:              fee.Fee,
		FeeRecipient:     fee.FeeRecipient,
		DeductFromAmount: fee.DeductFromAmount,
	}
}

// approveDeposit drives one deposit to a submitted approval.
// A nil return means the deposit needs nothing more; an error means retry later.
func (o *Operator) approveDeposit(ctx context.Context, rec *statedb.DepositRecord) error {
	// 0. Route to the destination chain
	// 1. Lock the (source chain, nonce) pair
	// 2. Reload, another worker may have finished it
	// 3. Skip nonces already used
	// 4. Query before retrying an attempt that may have landed
	// 5. Record the attempt and submit

	d := &rec.Deposit
	fields := logger.Fields{
		"nonce":        d.Nonce,
		"withdrawHash": rec.WithdrawHash.Hex(),
	}

	// 0. Route to the destination chain
	dest, ok := o.destination(d.DestChainKey)
	if !ok {
		logger.WithFields(fields).Warn("no route to destination chain, skipping deposit")
		return o.store.UpdateDepositStatus(d.SrcChainKey, d.Nonce, statedb.DepositSkipped, "no route to destination chain")
	}

	// 1. Lock the (source chain, nonce) pair
	unlock, acquired, err := o.locker.Lock(ctx, statedb.NonceLockKey(d.SrcChainKey, d.Nonce))
	if err != nil {
		return err
	}
	if !acquired {
		return errLeaseHeld
	}
	defer unlock()

	// 2. Reload, another worker may have finished it
	cur, found, err := o.store.GetDeposit(d.SrcChainKey, d.Nonce)
	if err != nil {
		return err
	}
	if !found || (cur.Status != statedb.DepositObserved && cur.Status != statedb.DepositRetrying) {
		return nil
	}

	// 3. Skip nonces already used
	used, err := o.store.IsNonceUsed(d.SrcChainKey, d.Nonce)
	if err != nil {
		return err
	}
	if used {
		logger.WithFields(fields).Debug("nonce already used, skipping deposit")
		return o.store.UpdateDepositStatus(d.SrcChainKey, d.Nonce, statedb.DepositSubmitted, "nonce already used")
	}

	a := o.buildApproval(d, rec.WithdrawHash)
	if a.DeductFromAmount && a.Fee.Cmp(a.Amount) > 0 {
		logger.WithFields(fields).Warn("fee exceeds deposit amount, not approving")
		return o.store.UpdateDepositStatus(d.SrcChainKey, d.Nonce, statedb.DepositRejected, "fee exceeds amount")
	}

	// 4. Query before retrying an attempt that may have landed
	prev, found, err := o.store.GetSubmission(chainadapter.CallApproveWithdraw, a.WithdrawHash)
	if err != nil {
		return err
	}
	if found {
		switch {
		case prev.Status == statedb.SubmissionSuccess:
			return o.onApproved(ctx, a, prev.TxHash)
		case prev.Status == statedb.SubmissionRejected:
			return o.store.UpdateDepositStatus(d.SrcChainKey, d.Nonce, statedb.DepositRejected, prev.LastError)
		case prev.NeedsQuery():
			landed, taken, err := o.queryApproval(ctx, dest, a)
			if err != nil {
				return err
			}
			if landed {
				logger.WithFields(fields).Info("earlier approval attempt landed")
				if err := statedb.MarkLanded(o.store, prev); err != nil {
					return err
				}
				return o.onApproved(ctx, a, prev.TxHash)
			}
			if taken {
				logger.WithFields(fields).Warn("nonce used on destination by another approval")
				return o.store.UpdateDepositStatus(d.SrcChainKey, d.Nonce, statedb.DepositSkipped, "nonce used on destination")
			}
		}
	}

	// 5. Record the attempt and submit
	sub, err := statedb.BeginSubmission(o.store, prev, chainadapter.CallApproveWithdraw, a.WithdrawHash, dest.info.ChainKey)
	if err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.SubmitTimeout)
	receipt, serr := dest.adapter.Submit(sctx, chainadapter.ApproveWithdraw(a))
	cancel()

	if err := statedb.FinishSubmission(o.store, sub, receipt, serr); err != nil {
		return err
	}
	metrics.Submissions.WithLabelValues(dest.info.Name, string(chainadapter.CallApproveWithdraw), string(sub.Status)).Inc()

	if serr == nil {
		logger.WithFields(fields).WithField("tx", receipt.TxHash).Info("withdraw approved")
		return o.onApproved(ctx, a, receipt.TxHash)
	}

	if chainadapter.IsRejected(serr) {
		// an earlier attempt may have landed in the meantime
		if prev != nil {
			if landed, _, qerr := o.queryApproval(ctx, dest, a); qerr == nil && landed {
				if err := statedb.MarkLanded(o.store, sub); err != nil {
					return err
				}
				return o.onApproved(ctx, a, prev.TxHash)
			}
		}
		logger.WithFields(fields).Warnf("approval rejected, not retrying: err=%v", serr)
		alert.Raise(ctx, o.alerts, alert.Alert{
			Kind:         alert.ApprovalRejected,
			Chain:        dest.info.Name,
			WithdrawHash: a.WithdrawHash.Hex(),
			Reason:       serr.Error(),
		})
		return o.store.UpdateDepositStatus(d.SrcChainKey, d.Nonce, statedb.DepositRejected, serr.Error())
	}

	return serr
}

// queryApproval asks the destination whether the approval exists (landed)
// or the nonce was consumed by a different approval (taken).
func (o *Operator) queryApproval(ctx context.Context, dest *destination, a *agreement.WithdrawApproval) (landed, taken bool, err error) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	_, found, err := dest.adapter.WithdrawApproval(cctx, a.WithdrawHash)
	if err != nil {
		return false, false, err
	}
	if found {
		return true, false, nil
	}
	used, err := dest.adapter.NonceUsed(cctx, a.SrcChainKey, a.Nonce)
	if err != nil {
		return false, false, err
	}
	return false, used, nil
}

// onApproved records a landed approval: nonce used, pending approval record,
// deposit submitted. Caller holds the nonce lock.
func (o *Operator) onApproved(ctx context.Context, a *agreement.WithdrawApproval, txHash string) error {
	if _, err := o.store.MarkNonceUsed(a.SrcChainKey, a.Nonce); err != nil {
		return err
	}

	unlock, acquired, err := o.locker.Lock(ctx, statedb.HashLockKey(a.WithdrawHash))
	if err != nil {
		return err
	}
	if acquired {
		existing, _, err := o.store.GetApproval(a.WithdrawHash)
		if err != nil {
			unlock()
			return err
		}
		if existing == nil {
			if err := o.store.SaveApproval(approval.MarkSubmitted(nil, a, txHash)); err != nil {
				unlock()
				return err
			}
		}
		unlock()
	}

	return o.store.UpdateDepositStatus(a.SrcChainKey, a.Nonce, statedb.DepositSubmitted, "")
}
