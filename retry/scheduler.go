package retry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	logger "github.com/sirupsen/logrus"
)

// Task is one retryable unit of work.
// Return nil when done, Permanent(err) to drop it, any other error to run it again later.
type Task func(ctx context.Context) error

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

type entry struct {
	key      string
	task     Task
	giveUp   func(err error)
	bo       *backoff.ExponentialBackOff
	due      time.Time
	attempts int
	running  bool
}

// Scheduler runs tasks with backoff. At most one task per key is pending.
type Scheduler struct {
	mu     sync.Mutex
	clock  Clock
	policy Policy
	tasks  map[string]*entry

	// OnGiveUp is called when a task exhausts its policy.
	OnGiveUp func(key string, err error)
}

func NewScheduler(clock Clock, policy Policy) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		clock:  clock,
		policy: policy,
		tasks:  make(map[string]*entry),
	}
}

// Schedule queues task under key, to run after the first backoff interval.
// It returns false when a task with the same key is already queued.
func (s *Scheduler) Schedule(key string, task Task) bool {
	return s.ScheduleWithGiveUp(key, task, nil)
}

// ScheduleWithGiveUp is Schedule with a callback run when the task exhausts
// its policy, before OnGiveUp.
func (s *Scheduler) ScheduleWithGiveUp(key string, task Task, giveUp func(err error)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[key]; ok {
		return false
	}
	bo := s.policy.NewBackOff(s.clock)
	e := &entry{key: key, task: task, giveUp: giveUp, bo: bo, due: s.clock.Now().Add(bo.NextBackOff())}
	s.tasks[key] = e

	logger.WithFields(logger.Fields{
		"key": key,
		"due": e.due,
	}).Debug("retry task scheduled")
	return true
}

func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, key)
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// RunDue runs every task whose time has come and returns how many ran.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.tasks {
		if !e.running && !e.due.After(now) {
			e.running = true
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].key < due[j].key
		}
		return due[i].due.Before(due[j].due)
	})

	for _, e := range due {
		if ctx.Err() != nil {
			s.release(e)
			continue
		}
		e.attempts++
		err := e.task(ctx)
		if s.finish(e, err) {
			if e.giveUp != nil {
				e.giveUp(err)
			}
			if s.OnGiveUp != nil {
				s.OnGiveUp(e.key, err)
			}
		}
	}
	return len(due)
}

func (s *Scheduler) release(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.running = false
}

// finish records the outcome of a run and reports whether the task gave up.
func (s *Scheduler) finish(e *entry, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.running = false
	if s.tasks[e.key] != e {
		return false
	}
	if err == nil {
		delete(s.tasks, e.key)
		return false
	}
	if IsPermanent(err) {
		delete(s.tasks, e.key)
		logger.WithFields(logger.Fields{
			"key":      e.key,
			"attempts": e.attempts,
		}).Warnf("retry task dropped: err=%v", err)
		return false
	}

	next := e.bo.NextBackOff()
	if next == backoff.Stop {
		delete(s.tasks, e.key)
		logger.WithFields(logger.Fields{
			"key":      e.key,
			"attempts": e.attempts,
		}).Errorf("retry task gave up: err=%v", err)
		return true
	}
	e.due = s.clock.Now().Add(next)
	logger.WithFields(logger.Fields{
		"key":      e.key,
		"attempts": e.attempts,
		"next":     next,
	}).Debugf("retry task rescheduled: err=%v", err)
	return false
}

// Loop calls RunDue every interval until ctx is done.
func (s *Scheduler) Loop(ctx context.Context, interval time.Duration) error {
	logger.Debug("starting retry scheduler")
	defer logger.Debug("stopping retry scheduler")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(interval):
			s.RunDue(ctx)
		}
	}
}
