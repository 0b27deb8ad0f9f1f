// Package canceler verifies every withdraw approval on the destination chains
// against its source chain and cancels the ones no deposit backs.
package canceler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/alert"
	"github.com/TEENet-io/watchtower-go/approval"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/chainsync"
	"github.com/TEENet-io/watchtower-go/metrics"
	"github.com/TEENet-io/watchtower-go/retry"
	"github.com/TEENet-io/watchtower-go/statedb"
	"github.com/TEENet-io/watchtower-go/verifier"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var errLeaseHeld = errors.New("approval is locked by another instance")

type destination struct {
	info    chainadapter.Info
	adapter chainadapter.Adapter
	watcher *chainsync.Watcher
}

type Canceler struct {
	cfg      *Config
	store    statedb.Store
	locker   *statedb.KeyLocker
	recorder *approval.Recorder
	verifier *verifier.Verifier
	sched    *retry.Scheduler
	alerts   alert.Sink

	// kicks the verification loop when new approvals are recorded
	wake chan struct{}

	mu    sync.RWMutex
	dests map[agreement.ChainKey]*destination
	order []agreement.ChainKey
}

func New(cfg *Config, store statedb.Store, locker *statedb.KeyLocker, v *verifier.Verifier, sched *retry.Scheduler, alerts alert.Sink) *Canceler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Canceler{
		cfg:      cfg,
		store:    store,
		locker:   locker,
		recorder: approval.NewRecorder(store, locker),
		verifier: v,
		sched:    sched,
		alerts:   alerts,
		wake:     make(chan struct{}, 1),
		dests:    make(map[agreement.ChainKey]*destination),
	}
}

// AddSource lets approvals claiming src as their origin be verified against q.
func (c *Canceler) AddSource(src agreement.ChainKey, q chainadapter.Querier) {
	c.verifier.AddSource(src, q)
}

// AddDestination watches the approvals of adapter's chain. adapter must
// submit as the canceler role.
func (c *Canceler) AddDestination(adapter chainadapter.Adapter, wcfg chainsync.Config) (*chainsync.Watcher, error) {
	info := adapter.Info()
	wcfg.Stream = statedb.StreamCancelerApprovals
	w, err := chainsync.NewWatcher(&wcfg, adapter, c.store, c.handleApprovals(info))
	if err != nil {
		return nil, fmt.Errorf("failed to create approval watcher for %s: %w", info.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dests[info.ChainKey] = &destination{info: info, adapter: adapter, watcher: w}
	c.order = append(c.order, info.ChainKey)
	return w, nil
}

func (c *Canceler) destinations() []*destination {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*destination, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.dests[key])
	}
	return out
}

func (c *Canceler) Watchers() []*chainsync.Watcher {
	var out []*chainsync.Watcher
	for _, d := range c.destinations() {
		out = append(out, d.watcher)
	}
	return out
}

func (c *Canceler) handleApprovals(info chainadapter.Info) chainsync.Handler {
	return func(ctx context.Context, events []agreement.Event) error {
		kick := false
		for _, ev := range events {
			if _, ok := approval.HashOf(ev); !ok {
				continue
			}
			metrics.EventsObserved.WithLabelValues(info.Name, string(ev.Kind())).Inc()
			change, err := c.recorder.Record(ctx, ev)
			if err != nil {
				return err
			}
			if change == nil {
				continue
			}
			logger.WithFields(logger.Fields{
				"chain":        info.Name,
				"withdrawHash": change.Next.Approval.WithdrawHash.Hex(),
				"state":        change.Next.State,
				"verdict":      change.Next.Verdict,
			}).Info("approval updated")
			if change.Next.State == agreement.ApprovalApproved && change.Next.Verdict == agreement.VerdictUnverified {
				kick = true
			}
		}
		if kick {
			select {
			case c.wake <- struct{}{}:
			default:
			}
		}
		return nil
	}
}

// VerifyPending runs one verification pass over every destination chain.
func (c *Canceler) VerifyPending(ctx context.Context) error {
	var errs []error
	for _, dest := range c.destinations() {
		if err := c.verifyDestination(ctx, dest); err != nil {
			errs = append(errs, fmt.Errorf("destination %s: %w", dest.info.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Canceler) verifyDestination(ctx context.Context, dest *destination) error {
	// 1. Re-arm retries a restart dropped: indeterminate verdicts and
	//    invalid approvals whose cancel never completed
	// 2. Verify the unverified approvals on the worker pool

	key := dest.info.ChainKey

	// 1. Re-arm retries
	stale, err := c.store.ListApprovals(statedb.ApprovalFilter{
		DestChainKey: &key,
		States:       []agreement.ApprovalState{agreement.ApprovalApproved},
		Verdicts:     []agreement.Verdict{agreement.VerdictIndeterminate, agreement.VerdictInvalid},
	})
	if err != nil {
		return statedb.PersistenceError(err)
	}
	for _, rec := range stale {
		switch {
		case rec.Verdict == agreement.VerdictIndeterminate:
			c.scheduleVerify(dest, rec)
		case !rec.Reenabled:
			c.scheduleCancel(dest, rec)
		}
	}

	// 2. Verify the unverified approvals
	recs, err := c.store.ListApprovals(statedb.ApprovalFilter{
		DestChainKey: &key,
		States:       []agreement.ApprovalState{agreement.ApprovalApproved},
		Verdicts:     []agreement.Verdict{agreement.VerdictUnverified},
		Limit:        c.cfg.BatchSize,
	})
	if err != nil {
		return statedb.PersistenceError(err)
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			if err := c.verifyApproval(ctx, dest, rec); err != nil && !errors.Is(err, errLeaseHeld) {
				logger.WithField("withdrawHash", rec.Approval.WithdrawHash.Hex()).Errorf("failed to verify approval: err=%v", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// verifyApproval verifies one approval, records the verdict and acts on it.
func (c *Canceler) verifyApproval(ctx context.Context, dest *destination, rec *statedb.ApprovalRecord) error {
	hash := rec.Approval.WithdrawHash
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
	if !found || cur.State != agreement.ApprovalApproved {
		return nil
	}
	if cur.Verdict == agreement.VerdictValid || cur.Verdict == agreement.VerdictInvalid {
		return nil
	}

	res := c.verifier.Verify(ctx, &cur.Approval)
	metrics.Verdicts.WithLabelValues(dest.info.Name, string(res.Verdict)).Inc()

	next := cur.Clone()
	next.Verdict = res.Verdict
	next.Reason = res.Reason
	next.UpdatedAt = time.Now().Unix()
	if err := c.store.SaveApproval(next); err != nil {
		return err
	}

	fields := logger.Fields{
		"chain":        dest.info.Name,
		"withdrawHash": hash.Hex(),
		"verdict":      res.Verdict,
		"reason":       res.Reason,
	}

	switch res.Verdict {
	case agreement.VerdictValid:
		logger.WithFields(fields).Info("approval verified")

	case agreement.VerdictIndeterminate:
		logger.WithFields(fields).Warn("approval could not be verified, will retry")
		if res.Reason == verifier.ReasonUnknownSource && cur.Verdict != agreement.VerdictIndeterminate {
			alert.Raise(ctx, c.alerts, alert.Alert{
				Kind:         alert.UnverifiableApproval,
				Chain:        dest.info.Name,
				WithdrawHash: hash.Hex(),
				Reason:       "approval names a source chain that is not configured",
			})
		}
		c.scheduleVerify(dest, next)

	case agreement.VerdictInvalid:
		if next.Reenabled {
			alert.Raise(ctx, c.alerts, alert.Alert{
				Kind:         alert.ReenabledInvalid,
				Chain:        dest.info.Name,
				WithdrawHash: hash.Hex(),
				Reason:       "reenabled approval is not backed by a deposit: " + res.Reason,
			})
			return nil
		}
		alert.Raise(ctx, c.alerts, alert.Alert{
			Kind:         alert.InvalidApproval,
			Chain:        dest.info.Name,
			WithdrawHash: hash.Hex(),
			Reason:       res.Reason,
		})
		if err := c.cancelLocked(ctx, dest, next); err != nil {
			logger.WithFields(fields).Warnf("cancel deferred to retry: err=%v", err)
			c.scheduleCancel(dest, next)
		}
	}
	return nil
}

func (c *Canceler) scheduleVerify(dest *destination, rec *statedb.ApprovalRecord) {
	if c.sched == nil {
		return
	}
	hash := rec.Approval.WithdrawHash
	task := func(ctx context.Context) error {
		cur, found, err := c.store.GetApproval(hash)
		if err != nil {
			return err
		}
		if !found || cur.State != agreement.ApprovalApproved || cur.Verdict != agreement.VerdictIndeterminate {
			return nil
		}
		if err := c.verifyApproval(ctx, dest, cur); err != nil {
			return err
		}
		// still indeterminate: keep backing off under this task
		cur, _, err = c.store.GetApproval(hash)
		if err != nil {
			return err
		}
		if cur != nil && cur.Verdict == agreement.VerdictIndeterminate {
			return errors.New(cur.Reason)
		}
		return nil
	}
	giveUp := func(err error) {
		alert.Raise(context.Background(), c.alerts, alert.Alert{
			Kind:         alert.RetriesExhausted,
			Chain:        dest.info.Name,
			WithdrawHash: hash.Hex(),
			Reason:       fmt.Sprintf("approval could not be verified: %v", err),
		})
	}
	if c.sched.ScheduleWithGiveUp("verify/"+hash.Hex(), task, giveUp) {
		metrics.RetryQueue.Set(float64(c.sched.Pending()))
	}
}

// The Big Loop!
// Returns on a store failure so the supervisor restarts it.
func (c *Canceler) Loop(ctx context.Context) error {
	logger.Debug("starting canceler")
	defer logger.Debug("stopping canceler")

	ticker := time.NewTicker(c.cfg.VerifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-c.wake:
		}
		if err := c.VerifyPending(ctx); err != nil {
			logger.Errorf("failed to verify approvals: err=%v", err)
			if statedb.IsPersistence(err) {
				return err
			}
		}
	}
}
