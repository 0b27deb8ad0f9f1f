// Package alert delivers security-relevant events to humans.
package alert

import (
	"context"
	"errors"
	"time"

	"github.com/TEENet-io/watchtower-go/metrics"
	logger "github.com/sirupsen/logrus"
)

type Kind string

const (
	InvalidApproval      Kind = "invalid_approval"
	UnverifiableApproval Kind = "unverifiable_approval"
	CancelSubmitted      Kind = "cancel_submitted"
	CancelFailed         Kind = "cancel_failed"
	ReenabledInvalid     Kind = "reenabled_invalid"
	RetriesExhausted     Kind = "retries_exhausted"
	ApprovalRejected     Kind = "approval_rejected"
	ExecuteRejected      Kind = "execute_rejected"
	SupervisorFailure    Kind = "task_failure"
)

type Alert struct {
	Kind         Kind      `json:"kind"`
	Chain        string    `json:"chain,omitempty"`
	WithdrawHash string    `json:"withdraw_hash,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	TxHash       string    `json:"tx_hash,omitempty"`
	Time         time.Time `json:"time"`
}

type Sink interface {
	Alert(ctx context.Context, a Alert) error
}

// Raise fills in the time, counts the alert and sends it to sink.
// Delivery failures are logged, never returned.
func Raise(ctx context.Context, sink Sink, a Alert) {
	if a.Time.IsZero() {
		a.Time = time.Now()
	}
	metrics.AlertsPublished.WithLabelValues(string(a.Kind)).Inc()
	if sink == nil {
		return
	}
	if err := sink.Alert(ctx, a); err != nil {
		logger.WithField("kind", a.Kind).Errorf("failed to deliver alert: err=%v", err)
	}
}

// LogSink writes alerts at error level with alert=true.
type LogSink struct{}

func (LogSink) Alert(ctx context.Context, a Alert) error {
	logger.WithFields(logger.Fields{
		"alert":        true,
		"kind":         a.Kind,
		"chain":        a.Chain,
		"withdrawHash": a.WithdrawHash,
		"tx":           a.TxHash,
	}).Error(a.Reason)
	return nil
}

type Multi []Sink

func (m Multi) Alert(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Alert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps alerts in memory. Used in tests.
type Recorder struct {
	ch chan Alert
}

func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Alert, size)}
}

func (r *Recorder) Alert(ctx context.Context, a Alert) error {
	select {
	case r.ch <- a:
	default:
	}
	return nil
}

// Drain returns the alerts received so far.
func (r *Recorder) Drain() []Alert {
	var out []Alert
	for {
		select {
		case a := <-r.ch:
			out = append(out, a)
		default:
			return out
		}
	}
}
