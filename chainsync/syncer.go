// Watcher: turns a chain's event feed into durable, ordered, at-least-once
// deliveries to a Handler, tracking progress with a watermark.
package chainsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	logger "github.com/sirupsen/logrus"
)

var (
	ErrHandlerFailed   = errors.New("event handler failed")
	ErrWatermarkFailed = errors.New("failed to persist watermark")
)

const (
	DefaultPollInterval  = 5 * time.Second
	DefaultMaxBlockRange = 1000
	DefaultCallTimeout   = 30 * time.Second
)

type Config struct {
	Stream         string
	PollInterval   time.Duration // interval to trigger the scan of the chain
	FinalityMargin uint64        // blocks behind head considered final
	MaxBlockRange  uint64        // max blocks per poll request
	CallTimeout    time.Duration
	StartHeight    uint64 // used when no watermark is stored
	// ForceStartHeight rescans from this height when set, ignoring the stored watermark.
	ForceStartHeight *uint64
}

type Watcher struct {
	cfg     Config
	source  Source
	marks   Watermarks
	handler Handler
	info    chainadapter.Info

	mu     sync.Mutex
	last   uint64
	status Status
	sink   StatusSink
}

func NewWatcher(cfg *Config, source Source, marks Watermarks, handler Handler) (*Watcher, error) {
	if cfg.Stream == "" {
		return nil, errors.New("watcher stream not set")
	}
	c := *cfg
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxBlockRange == 0 {
		c.MaxBlockRange = DefaultMaxBlockRange
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}

	info := source.Info()
	stored, ok, err := marks.GetWatermark(c.Stream, info.ChainKey)
	if err != nil {
		logger.WithFields(logger.Fields{
			"stream": c.Stream,
			"chain":  info.Name,
		}).Errorf("failed to get watermark from database when initializing watcher: err=%v", err)
		return nil, err
	}

	last := c.StartHeight
	if ok {
		last = stored
	}
	if c.ForceStartHeight != nil {
		last = *c.ForceStartHeight
	}

	w := &Watcher{
		cfg:     c,
		source:  source,
		marks:   marks,
		handler: handler,
		info:    info,
		last:    last,
	}
	w.status = Status{Stream: c.Stream, Chain: info.Name, ChainKey: info.ChainKey, LastHeight: last}
	return w, nil
}

func (w *Watcher) Name() string {
	return w.cfg.Stream + "@" + w.info.Name
}

func (w *Watcher) SetStatusSink(sink StatusSink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sink = sink
}

// LastProcessed is the highest height whose events were handed over.
func (w *Watcher) LastProcessed() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Tick processes every final block not processed yet.
// On error the watermark stays at the last range fully handed over.
func (w *Watcher) Tick(ctx context.Context) error {
	head, err := w.head(ctx)
	if err != nil {
		w.report(0, err)
		return err
	}

	if head < w.cfg.FinalityMargin {
		w.report(head, nil)
		return nil
	}
	target := head - w.cfg.FinalityMargin

	last := w.LastProcessed()
	if target <= last {
		w.report(head, nil)
		return nil
	}

	logger.WithFields(logger.Fields{
		"watcher": w.Name(),
		"from":    last + 1,
		"to":      target,
		"head":    head,
	}).Debug("scanning blocks")

	for from := last; from < target; {
		to := from + w.cfg.MaxBlockRange
		if to > target {
			to = target
		}
		if err := w.process(ctx, from, to); err != nil {
			w.report(head, err)
			return err
		}
		from = to
	}

	w.report(head, nil)
	return nil
}

func (w *Watcher) head(ctx context.Context) (uint64, error) {
	cctx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()
	return w.source.Height(cctx)
}

// process hands over the events in (from, to] and then moves the watermark to to.
func (w *Watcher) process(ctx context.Context, from, to uint64) error {
	cctx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	raw, err := w.source.PollEvents(cctx, from, to)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to poll events (%d, %d]: %w", from, to, err)
	}

	events := make([]agreement.Event, 0, len(raw))
	for _, r := range raw {
		ev, err := w.source.Decode(r)
		if err != nil {
			logger.WithFields(logger.Fields{
				"watcher": w.Name(),
				"height":  r.Height,
				"tx":      r.TxHash,
				"name":    r.Name,
			}).Warnf("skipping undecodable event: err=%v", err)
			continue
		}
		events = append(events, ev)
	}

	if len(events) > 0 {
		if err := w.handler(ctx, events); err != nil {
			return fmt.Errorf("%w: range (%d, %d]: %w", ErrHandlerFailed, from, to, err)
		}
	}

	if err := w.marks.SetWatermark(w.cfg.Stream, w.info.ChainKey, to); err != nil {
		return fmt.Errorf("%w: %w", ErrWatermarkFailed, err)
	}

	w.mu.Lock()
	w.last = to
	w.mu.Unlock()

	if len(events) > 0 {
		logger.WithFields(logger.Fields{
			"watcher": w.Name(),
			"events":  len(events),
			"height":  to,
		}).Info("events handed over")
	}
	return nil
}

func (w *Watcher) report(head uint64, err error) {
	w.mu.Lock()
	w.status.LastHeight = w.last
	if head > 0 {
		w.status.Head = head
	}
	w.status.LastError = ""
	if err != nil {
		w.status.LastError = err.Error()
	}
	w.status.LastTick = time.Now()
	w.status.Ticks++
	st := w.status
	sink := w.sink
	w.mu.Unlock()

	if sink != nil {
		sink.ReportWatcher(st)
	}
}

// IsFatal tells whether a tick error needs the task restarted.
// Adapter errors are retried on the next tick instead.
func IsFatal(err error) bool {
	return errors.Is(err, ErrHandlerFailed) || errors.Is(err, ErrWatermarkFailed)
}

// The Big Loop!
// Ticks on the poll interval, and sooner when the adapter pushes new events.
func (w *Watcher) Loop(ctx context.Context) error {
	logger.WithField("watcher", w.Name()).Debug("starting watcher")
	defer logger.WithField("watcher", w.Name()).Debug("stopping watcher")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	wakeups, sub := w.subscribe(ctx)
	defer func() {
		if sub != nil {
			sub.Unsubscribe()
		}
	}()
	var subErr <-chan error
	if sub != nil {
		subErr = sub.Err()
	}

	tick := func() error {
		err := w.Tick(ctx)
		if err == nil {
			return nil
		}
		if IsFatal(err) {
			logger.WithField("watcher", w.Name()).Errorf("watcher stopped: err=%v", err)
			return err
		}
		if ctx.Err() == nil {
			logger.WithField("watcher", w.Name()).Warnf("tick failed: err=%v", err)
		}
		return nil
	}

	if err := tick(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := tick(); err != nil {
				return err
			}

		case _, ok := <-wakeups:
			if !ok {
				wakeups = nil
				continue
			}
			if err := tick(); err != nil {
				return err
			}

		case err := <-subErr:
			logger.WithField("watcher", w.Name()).Warnf("subscription dropped, polling only: err=%v", err)
			sub.Unsubscribe()
			sub, subErr, wakeups = nil, nil, nil
		}
	}
}

func (w *Watcher) subscribe(ctx context.Context) (<-chan chainadapter.RawEvent, chainadapter.Subscription) {
	ch, sub, err := w.source.SubscribeEvents(ctx)
	if err != nil {
		if !errors.Is(err, chainadapter.ErrSubscriptionUnsupported) {
			logger.WithField("watcher", w.Name()).Warnf("failed to subscribe, polling only: err=%v", err)
		}
		return nil, nil
	}
	return ch, sub
}
