package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/statedb"
	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"
)

var ErrLeaseHeld = errors.New("approval is locked by another instance")

// HashOf returns the withdraw hash an approval event refers to.
func HashOf(ev agreement.Event) (ethcommon.Hash, bool) {
	switch e := ev.(type) {
	case *agreement.WithdrawApprovedObserved:
		return e.Approval.WithdrawHash, true
	case *agreement.WithdrawCancelledObserved:
		return e.WithdrawHash, true
	case *agreement.WithdrawExecutedObserved:
		return e.WithdrawHash, true
	case *agreement.WithdrawReenabledObserved:
		return e.WithdrawHash, true
	}
	return ethcommon.Hash{}, false
}

// Change describes what one event did to a record.
type Change struct {
	Prev  *statedb.ApprovalRecord // nil for a first observation
	Next  *statedb.ApprovalRecord
	Event agreement.Event
}

// Recorder applies observed events to the stored approvals, one writer per hash.
type Recorder struct {
	store  statedb.Store
	locker *statedb.KeyLocker
}

func NewRecorder(store statedb.Store, locker *statedb.KeyLocker) *Recorder {
	return &Recorder{store: store, locker: locker}
}

// Record applies ev and stores the result. It returns nil when the event
// changed nothing or cannot be applied; such events are logged and skipped
// so that one odd approval does not stall the stream.
func (r *Recorder) Record(ctx context.Context, ev agreement.Event) (*Change, error) {
	hash, ok := HashOf(ev)
	if !ok {
		return nil, nil
	}

	unlock, acquired, err := r.locker.Lock(ctx, statedb.HashLockKey(hash))
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrLeaseHeld, hash.Hex())
	}
	defer unlock()

	prev, _, err := r.store.GetApproval(hash)
	if err != nil {
		return nil, err
	}

	next, changed, err := Apply(prev, ev)
	if err != nil {
		fields := logger.Fields{
			"withdrawHash": hash.Hex(),
			"event":        ev.Kind(),
			"height":       ev.Meta().Height,
		}
		if errors.Is(err, ErrUnknownApproval) {
			logger.WithFields(fields).Warn("skipping event for an approval never observed")
			return nil, nil
		}
		logger.WithFields(fields).Errorf("skipping event: err=%v", err)
		return nil, nil
	}
	if !changed {
		return nil, nil
	}

	if err := r.store.SaveApproval(next); err != nil {
		return nil, err
	}
	if e, ok := ev.(*agreement.WithdrawApprovedObserved); ok {
		if _, err := r.store.MarkNonceUsed(e.Approval.SrcChainKey, e.Approval.Nonce); err != nil {
			return nil, err
		}
	}
	return &Change{Prev: prev, Next: next, Event: ev}, nil
}
