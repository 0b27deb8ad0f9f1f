package approval

import (
	"math/big"
	"testing"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/statedb"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hash = ethcommon.Hash{0x42}

func newApproval(approvedAt uint64) *agreement.WithdrawApproval {
	return &agreement.WithdrawApproval{
		WithdrawHash: hash,
		Amount:       big.NewInt(10),
		Nonce:        big.NewInt(1),
		Fee:          big.NewInt(0),
		ApprovedAt:   approvedAt,
	}
}

func meta(h uint64) agreement.EventMeta {
	return agreement.EventMeta{Height: h, TxHash: "0x01"}
}

func approved(h uint64, at uint64) agreement.Event {
	return &agreement.WithdrawApprovedObserved{EventMeta: meta(h), Approval: *newApproval(at)}
}

func cancelled(h uint64) agreement.Event {
	return &agreement.WithdrawCancelledObserved{EventMeta: meta(h), WithdrawHash: hash}
}

func executed(h uint64) agreement.Event {
	return &agreement.WithdrawExecutedObserved{EventMeta: meta(h), WithdrawHash: hash}
}

func reenabled(h uint64, at uint64) agreement.Event {
	return &agreement.WithdrawReenabledObserved{EventMeta: meta(h), WithdrawHash: hash, ApprovedAt: at}
}

func apply(t *testing.T, rec *statedb.ApprovalRecord, ev agreement.Event) *statedb.ApprovalRecord {
	next, _, err := Apply(rec, ev)
	require.NoError(t, err)
	return next
}

func TestPendingIsConfirmedByEvent(t *testing.T) {
	rec := MarkSubmitted(nil, newApproval(0), "0xabc")
	assert.Equal(t, agreement.ApprovalPending, rec.State)
	assert.Same(t, rec, MarkSubmitted(rec, newApproval(0), "0xdef"))

	next, changed, err := Apply(rec, approved(5, 100))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, agreement.ApprovalApproved, next.State)
	assert.Equal(t, uint64(100), next.Approval.ApprovedAt)
	assert.Equal(t, agreement.ApprovalPending, rec.State, "input is not modified")
}

func TestLifecycle(t *testing.T) {
	rec := apply(t, nil, approved(1, 100))
	assert.Equal(t, agreement.ApprovalApproved, rec.State)
	assert.Equal(t, agreement.VerdictUnverified, rec.Verdict)

	rec.Verdict = agreement.VerdictInvalid
	rec = apply(t, rec, cancelled(2))
	assert.Equal(t, agreement.ApprovalCancelled, rec.State)
	assert.True(t, rec.Approval.Cancelled)

	rec = apply(t, rec, reenabled(3, 500))
	assert.Equal(t, agreement.ApprovalApproved, rec.State)
	assert.True(t, rec.Reenabled)
	assert.Equal(t, uint64(500), rec.Approval.ApprovedAt)
	assert.Equal(t, agreement.VerdictUnverified, rec.Verdict, "reenabled approvals are verified again")
	assert.False(t, rec.Approval.Cancelled)

	rec = apply(t, rec, executed(4))
	assert.Equal(t, agreement.ApprovalExecuted, rec.State)
	assert.True(t, rec.Approval.Executed)
}

func TestDuplicatesAndReplaysAreNoops(t *testing.T) {
	rec := apply(t, nil, approved(1, 100))

	_, changed, err := Apply(rec, approved(1, 100))
	require.NoError(t, err)
	assert.False(t, changed)

	rec = apply(t, rec, cancelled(2))
	rec = apply(t, rec, reenabled(3, 500))

	// replay of an older range
	for _, ev := range []agreement.Event{approved(1, 100), cancelled(2)} {
		next, changed, err := Apply(rec, ev)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, agreement.ApprovalApproved, next.State)
	}

	_, changed, err = Apply(rec, reenabled(3, 500))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestInvalidTransitions(t *testing.T) {
	_, _, err := Apply(nil, cancelled(1))
	assert.ErrorIs(t, err, ErrUnknownApproval)

	pending := MarkSubmitted(nil, newApproval(0), "")
	_, _, err = Apply(pending, executed(2))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	rec := apply(t, nil, approved(1, 100))
	rec = apply(t, rec, executed(2))
	_, _, err = Apply(rec, cancelled(3))
	assert.ErrorIs(t, err, ErrInvalidTransition, "executed is terminal")
	_, _, err = Apply(rec, reenabled(3, 1))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	rec = apply(t, nil, approved(1, 100))
	rec = apply(t, rec, cancelled(2))
	_, _, err = Apply(rec, executed(3))
	assert.ErrorIs(t, err, ErrInvalidTransition, "cancelled approvals never execute")

	_, _, err = Apply(rec, &agreement.DepositObserved{EventMeta: meta(9)})
	assert.ErrorIs(t, err, ErrUnexpectedEvent)
}

func TestReconcile(t *testing.T) {
	rec := MarkSubmitted(nil, newApproval(0), "")

	same, changed := Reconcile(rec, nil, false)
	assert.False(t, changed)
	assert.Same(t, rec, same)

	onchain := newApproval(100)
	rec, changed = Reconcile(rec, onchain, true)
	assert.True(t, changed)
	assert.Equal(t, agreement.ApprovalApproved, rec.State)

	onchain.Cancelled = true
	rec, _ = Reconcile(rec, onchain, true)
	assert.Equal(t, agreement.ApprovalCancelled, rec.State)

	onchain.Cancelled = false
	onchain.ApprovedAt = 900
	rec, _ = Reconcile(rec, onchain, true)
	assert.Equal(t, agreement.ApprovalApproved, rec.State)
	assert.True(t, rec.Reenabled)
	assert.Equal(t, uint64(900), rec.Approval.ApprovedAt)

	fresh, changed := Reconcile(nil, onchain, true)
	assert.True(t, changed)
	assert.Equal(t, agreement.ApprovalApproved, fresh.State)
}

func TestCanExecute(t *testing.T) {
	rec := apply(t, nil, approved(1, 1000))
	delay := time.Minute

	assert.False(t, CanExecute(rec, time.Unix(1059, 0), delay))
	assert.True(t, CanExecute(rec, time.Unix(1060, 0), delay))
	assert.Equal(t, time.Unix(1060, 0), ExecutableAt(rec, delay))

	rec = apply(t, rec, cancelled(2))
	assert.False(t, CanExecute(rec, time.Unix(5000, 0), delay))

	pending := MarkSubmitted(nil, newApproval(0), "")
	assert.False(t, CanExecute(pending, time.Unix(5000, 0), delay))
}
