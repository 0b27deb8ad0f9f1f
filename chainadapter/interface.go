// Implement following interfaces to make the watchtower work with your chain.
package chainadapter

import (
	"context"
	"math/big"

	"github.com/TEENet-io/watchtower-go/agreement"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Info describes the chain an adapter talks to.
type Info struct {
	Name     string
	Family   agreement.ChainFamily
	ChainKey agreement.ChainKey
}

// RawEvent is a chain-native event record.
// Native holds types.Log on EVM chains and an abci event on Cosmos chains.
type RawEvent struct {
	Height uint64
	TxHash string
	Index  uint
	Name   string
	Native interface{}
}

type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

type HeightReader interface {
	// Current head height of the chain.
	Height(ctx context.Context) (uint64, error)
}

type EventSource interface {
	// Events of the bridge contract in (from, to], ordered old -> new.
	PollEvents(ctx context.Context, from, to uint64) ([]RawEvent, error)

	// Push feed of new events. Chains without push support return
	// ErrSubscriptionUnsupported and callers fall back to polling.
	SubscribeEvents(ctx context.Context) (<-chan RawEvent, Subscription, error)
}

type EventDecoder interface {
	// Decode turns a raw event into a domain event.
	// Events the watchtower is not interested in yield ErrUnknownEvent.
	Decode(ev RawEvent) (agreement.Event, error)
}

// Querier reads bridge contract state. Absence is reported with found=false;
// any returned error is a transient failure of the query itself.
type Querier interface {
	GetDepositFromHash(ctx context.Context, hash ethcommon.Hash) (*agreement.Deposit, bool, error)
	DepositHash(ctx context.Context, nonce *big.Int) (ethcommon.Hash, bool, error)
	WithdrawApproval(ctx context.Context, hash ethcommon.Hash) (*agreement.WithdrawApproval, bool, error)
	NonceUsed(ctx context.Context, src agreement.ChainKey, nonce *big.Int) (bool, error)
}

// Submitter signs and broadcasts a state-changing call.
// Calls are not idempotent; callers must dedup before submitting.
// Failures are returned as *SubmitError.
type Submitter interface {
	Submit(ctx context.Context, call Call) (*Receipt, error)
}

// AddressCodec converts between native addresses and their 32-byte form.
type AddressCodec interface {
	AddressKey(native string) (ethcommon.Hash, error)
	NativeAddress(key ethcommon.Hash) (string, error)
}

// Adapter is the full capability set of one chain.
type Adapter interface {
	Info() Info
	HeightReader
	EventSource
	EventDecoder
	Querier
	Submitter
	AddressCodec
}
