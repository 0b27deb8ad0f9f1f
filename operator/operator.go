// Package operator proposes withdraw approvals for observed deposits and,
// optionally, executes them once their delay has passed.
package operator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/alert"
	"github.com/TEENet-io/watchtower-go/approval"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/chainsync"
	"github.com/TEENet-io/watchtower-go/identity"
	"github.com/TEENet-io/watchtower-go/metrics"
	"github.com/TEENet-io/watchtower-go/retry"
	"github.com/TEENet-io/watchtower-go/statedb"
	logger "github.com/sirupsen/logrus"
)

type source struct {
	info    chainadapter.Info
	adapter chainadapter.Adapter
	watcher *chainsync.Watcher
}

type destination struct {
	info    chainadapter.Info
	adapter chainadapter.Adapter
	delay   time.Duration
	watcher *chainsync.Watcher
}

type Operator struct {
	cfg      *Config
	store    statedb.Store
	locker   *statedb.KeyLocker
	recorder *approval.Recorder
	hasher   identity.Hasher
	sched    *retry.Scheduler
	alerts   alert.Sink
	now      func() time.Time

	mu      sync.RWMutex
	sources map[agreement.ChainKey]*source
	dests   map[agreement.ChainKey]*destination
	order   []agreement.ChainKey // sources in configuration order
}

func New(cfg *Config, store statedb.Store, locker *statedb.KeyLocker, sched *retry.Scheduler, alerts alert.Sink) *Operator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Operator{
		cfg:      cfg,
		store:    store,
		locker:   locker,
		recorder: approval.NewRecorder(store, locker),
		hasher:   identity.Default,
		sched:    sched,
		alerts:   alerts,
		now:      time.Now,
		sources:  make(map[agreement.ChainKey]*source),
		dests:    make(map[agreement.ChainKey]*destination),
	}
}

// SetClock replaces the wall clock used to decide when approvals can execute.
func (o *Operator) SetClock(now func() time.Time) {
	o.now = now
}

// AddSource watches adapter for deposits and returns the watcher to run.
func (o *Operator) AddSource(adapter chainadapter.Adapter, wcfg chainsync.Config) (*chainsync.Watcher, error) {
	info := adapter.Info()
	wcfg.Stream = statedb.StreamOperatorDeposits
	w, err := chainsync.NewWatcher(&wcfg, adapter, o.store, o.handleDeposits(info))
	if err != nil {
		return nil, fmt.Errorf("failed to create deposit watcher for %s: %w", info.Name, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources[info.ChainKey] = &source{info: info, adapter: adapter, watcher: w}
	o.order = append(o.order, info.ChainKey)
	return w, nil
}

// AddDestination routes approvals to adapter and watches their lifecycle.
func (o *Operator) AddDestination(adapter chainadapter.Adapter, wcfg chainsync.Config, delay time.Duration) (*chainsync.Watcher, error) {
	info := adapter.Info()
	wcfg.Stream = statedb.StreamOperatorApprovals
	w, err := chainsync.NewWatcher(&wcfg, adapter, o.store, o.handleApprovals(info))
	if err != nil {
		return nil, fmt.Errorf("failed to create approval watcher for %s: %w", info.Name, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.dests[info.ChainKey] = &destination{info: info, adapter: adapter, delay: delay, watcher: w}
	return w, nil
}

func (o *Operator) destination(key agreement.ChainKey) (*destination, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	d, ok := o.dests[key]
	return d, ok
}

func (o *Operator) sourceKeys() []agreement.ChainKey {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]agreement.ChainKey(nil), o.order...)
}

func (o *Operator) destinations() []*destination {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*destination, 0, len(o.dests))
	for _, d := range o.dests {
		out = append(out, d)
	}
	return out
}

// handleDeposits stores observed deposits. Processing happens later from the store.
func (o *Operator) handleDeposits(info chainadapter.Info) chainsync.Handler {
	return func(ctx context.Context, events []agreement.Event) error {
		for _, ev := range events {
			dep, ok := ev.(*agreement.DepositObserved)
			if !ok {
				continue
			}
			metrics.EventsObserved.WithLabelValues(info.Name, string(ev.Kind())).Inc()

			d := dep.Deposit.Clone()
			d.SrcChainKey = info.ChainKey
			hash, err := identity.WithdrawHashOf(o.hasher, d)
			if err != nil {
				logger.WithFields(logger.Fields{
					"chain":  info.Name,
					"height": dep.Height,
					"tx":     dep.TxHash,
				}).Errorf("skipping deposit with malformed fields: err=%v", err)
				continue
			}

			inserted, err := o.store.SaveDeposit(&statedb.DepositRecord{
				Deposit:      *d,
				WithdrawHash: hash,
				Height:       dep.Height,
				TxHash:       dep.TxHash,
				Status:       statedb.DepositObserved,
				UpdatedAt:    time.Now().Unix(),
			})
			if err != nil {
				return fmt.Errorf("failed to save deposit: %w", err)
			}
			if inserted {
				logger.WithFields(logger.Fields{
					"chain":        info.Name,
					"nonce":        d.Nonce,
					"withdrawHash": hash.Hex(),
				}).Info("deposit observed")
			}
		}
		return nil
	}
}

// handleApprovals keeps the local approval records in step with the destination.
func (o *Operator) handleApprovals(info chainadapter.Info) chainsync.Handler {
	return func(ctx context.Context, events []agreement.Event) error {
		for _, ev := range events {
			if _, ok := approval.HashOf(ev); !ok {
				continue
			}
			metrics.EventsObserved.WithLabelValues(info.Name, string(ev.Kind())).Inc()
			change, err := o.recorder.Record(ctx, ev)
			if err != nil {
				return err
			}
			if change != nil {
				logger.WithFields(logger.Fields{
					"chain":        info.Name,
					"withdrawHash": change.Next.Approval.WithdrawHash.Hex(),
					"state":        change.Next.State,
				}).Info("approval updated")
			}
		}
		return nil
	}
}

// Watchers returns every watcher the operator needs running.
func (o *Operator) Watchers() []*chainsync.Watcher {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []*chainsync.Watcher
	for _, key := range o.order {
		out = append(out, o.sources[key].watcher)
	}
	for _, d := range o.dests {
		out = append(out, d.watcher)
	}
	return out
}

// The Big Loop!
// Returns on a store failure so the supervisor restarts it.
func (o *Operator) Loop(ctx context.Context) error {
	logger.Debug("starting operator")
	defer logger.Debug("stopping operator")

	ticker := time.NewTicker(o.cfg.ProcessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.ProcessDeposits(ctx); err != nil {
				logger.Errorf("failed to process deposits: err=%v", err)
				if statedb.IsPersistence(err) {
					return err
				}
			}
			if o.cfg.AutoExecute {
				if err := o.ExecuteDue(ctx); err != nil {
					logger.Errorf("failed to execute approvals: err=%v", err)
					if statedb.IsPersistence(err) {
						return err
					}
				}
			}
		}
	}
}
