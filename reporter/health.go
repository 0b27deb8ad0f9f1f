package reporter

import (
	"sort"
	"sync"
	"time"

	"github.com/TEENet-io/watchtower-go/chainsync"
	"go.uber.org/atomic"
)

// Health collects watcher reports and task failures for the http routes.
// It implements chainsync.StatusSink.
type Health struct {
	started time.Time

	ticks    *atomic.Uint64
	failures *atomic.Uint64
	restarts *atomic.Uint64

	mu       sync.RWMutex
	expected map[string]bool
	watchers map[string]chainsync.Status
	failed   map[string]string
}

func NewHealth() *Health {
	return &Health{
		started:  time.Now(),
		ticks:    atomic.NewUint64(0),
		failures: atomic.NewUint64(0),
		restarts: atomic.NewUint64(0),
		expected: make(map[string]bool),
		watchers: make(map[string]chainsync.Status),
		failed:   make(map[string]string),
	}
}

func watcherName(stream, chain string) string {
	return stream + "@" + chain
}

// Expect registers a watcher that must tick once before the service is ready.
func (h *Health) Expect(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expected[name] = true
}

func (h *Health) ReportWatcher(st chainsync.Status) {
	h.ticks.Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.watchers[watcherName(st.Stream, st.Chain)] = st
}

func (h *Health) TaskFailed(task string, err error) {
	h.failures.Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed[task] = err.Error()
}

// TaskRestarted clears the failure of task once it runs again.
func (h *Health) TaskRestarted(task string) {
	h.restarts.Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failed, task)
}

func (h *Health) Uptime() time.Duration {
	return time.Since(h.started)
}

// Ready reports whether every expected watcher ticked and no task is down.
// The reasons list what is missing otherwise.
func (h *Health) Ready() (bool, []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var reasons []string
	for name := range h.expected {
		if _, ok := h.watchers[name]; !ok {
			reasons = append(reasons, "waiting for "+name)
		}
	}
	for task, err := range h.failed {
		reasons = append(reasons, task+" failed: "+err)
	}
	sort.Strings(reasons)
	return len(reasons) == 0, reasons
}

func (h *Health) Watchers() []chainsync.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]chainsync.Status, 0, len(h.watchers))
	for _, st := range h.watchers {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chain == out[j].Chain {
			return out[i].Stream < out[j].Stream
		}
		return out[i].Chain < out[j].Chain
	})
	return out
}

func (h *Health) FailedTasks() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string, len(h.failed))
	for k, v := range h.failed {
		out[k] = v
	}
	return out
}
