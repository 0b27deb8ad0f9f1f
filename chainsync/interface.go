// Implement following interfaces to plug a chain or a consumer into a watcher.
package chainsync

import (
	"context"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
)

// Source is the part of a chain adapter a watcher reads from.
type Source interface {
	Info() chainadapter.Info
	chainadapter.HeightReader
	chainadapter.EventSource
	chainadapter.EventDecoder
}

// Watermarks persists the last fully processed height per stream and chain.
type Watermarks interface {
	GetWatermark(stream string, chain agreement.ChainKey) (uint64, bool, error)
	SetWatermark(stream string, chain agreement.ChainKey, height uint64) error
}

// Handler receives the decoded events of one block range, in block order.
// The watermark moves past the range only when the handler returns nil,
// so the handler must have stored whatever it needs before returning.
type Handler func(ctx context.Context, events []agreement.Event) error

// Status is what a watcher reports after every tick.
type Status struct {
	Stream     string
	Chain      string
	ChainKey   agreement.ChainKey
	LastHeight uint64
	Head       uint64
	LastError  string
	LastTick   time.Time
	Ticks      uint64
}

type StatusSink interface {
	ReportWatcher(st Status)
}
