package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TEENet-io/watchtower-go/alert"
	"github.com/TEENet-io/watchtower-go/metrics"
	"github.com/TEENet-io/watchtower-go/reporter"
	"github.com/TEENet-io/watchtower-go/retry"
	"github.com/cenkalti/backoff/v4"
	logger "github.com/sirupsen/logrus"
)

var errTaskReturned = errors.New("task returned")

// Task is a long running loop. It returns only on failure or when ctx is done.
type Task func(ctx context.Context) error

// Supervisor restarts failed tasks after a growing delay and reports their
// failures to health and alerts.
type Supervisor struct {
	health *reporter.Health
	alerts alert.Sink
	policy retry.Policy
	clock  retry.Clock
}

func NewSupervisor(health *reporter.Health, alerts alert.Sink, firstDelay time.Duration) *Supervisor {
	return &Supervisor{
		health: health,
		alerts: alerts,
		policy: retry.Policy{
			InitialInterval:     firstDelay,
			MaxInterval:         time.Minute,
			Multiplier:          2,
			RandomizationFactor: 0.1,
		},
		clock: retry.SystemClock{},
	}
}

// Go runs task in its own goroutine until ctx is done.
func (s *Supervisor) Go(ctx context.Context, wg *sync.WaitGroup, name string, task Task) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run(ctx, name, task)
	}()
}

func (s *Supervisor) run(ctx context.Context, name string, task Task) {
	bo := s.policy.NewBackOff(s.clock)

	for {
		started := time.Now()
		err := task(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errTaskReturned
		}

		// a task that ran for a while starts over with the shortest delay
		if time.Since(started) > s.policy.MaxInterval {
			bo.Reset()
		}
		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			delay = s.policy.MaxInterval
		}

		logger.WithFields(logger.Fields{
			"task":    name,
			"restart": delay,
		}).Errorf("task failed: err=%v", err)
		s.health.TaskFailed(name, err)
		metrics.TaskRestarts.WithLabelValues(name).Inc()
		alert.Raise(ctx, s.alerts, alert.Alert{
			Kind:   alert.SupervisorFailure,
			Reason: fmt.Sprintf("%s: %v", name, err),
		})

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(delay):
		}
		s.health.TaskRestarted(name)
	}
}
