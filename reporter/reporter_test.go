package reporter

import (
	"context"
	"errors"
	"math/big"
	"net"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainsync"
	"github.com/TEENet-io/watchtower-go/common"
	"github.com/TEENet-io/watchtower-go/statedb"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeState struct {
	stats     *statedb.Stats
	statsErr  error
	approvals map[ethcommon.Hash]*statedb.ApprovalRecord
}

func (f *fakeState) Stats() (*statedb.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeState) GetApproval(hash ethcommon.Hash) (*statedb.ApprovalRecord, bool, error) {
	rec, ok := f.approvals[hash]
	return rec, ok, nil
}

type fakeQueue int

func (q fakeQueue) Pending() int { return int(q) }

func newFakeState() *fakeState {
	return &fakeState{
		stats: &statedb.Stats{
			Deposits: map[statedb.DepositStatus]int{
				statedb.DepositObserved:  2,
				statedb.DepositRetrying:  1,
				statedb.DepositSubmitted: 5,
			},
			Approvals: map[agreement.ApprovalState]int{
				agreement.ApprovalApproved:  3,
				agreement.ApprovalCancelled: 1,
			},
			Verdicts: map[agreement.Verdict]int{
				agreement.VerdictValid:   3,
				agreement.VerdictInvalid: 1,
			},
			Submissions: map[statedb.SubmissionStatus]int{
				statedb.SubmissionSuccess: 6,
			},
		},
		approvals: map[ethcommon.Hash]*statedb.ApprovalRecord{},
	}
}

func startServer(t *testing.T, h *HttpReporter) *HttpReader {
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(h.SetupRouter())
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	return NewHttpReader(host, port)
}

func TestHealthAndReadiness(t *testing.T) {
	health := NewHealth()
	health.Expect("operator/deposits@sepolia")
	reader := startServer(t, NewHttpReporter("", "", health, newFakeState(), fakeQueue(0)))

	ok, err := reader.Healthy()
	require.NoError(t, err)
	assert.True(t, ok)

	// no tick yet
	ok, err = reader.Ready()
	require.NoError(t, err)
	assert.False(t, ok)

	health.ReportWatcher(chainsync.Status{Stream: "operator/deposits", Chain: "sepolia", LastHeight: 10})
	ok, err = reader.Ready()
	require.NoError(t, err)
	assert.True(t, ok)

	health.TaskFailed("watcher operator/deposits@sepolia", errors.New("database is locked"))
	ok, err = reader.Ready()
	require.NoError(t, err)
	assert.False(t, ok)
	_, reasons := health.Ready()
	assert.Equal(t, []string{"watcher operator/deposits@sepolia failed: database is locked"}, reasons)

	health.TaskRestarted("watcher operator/deposits@sepolia")
	ok, err = reader.Ready()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStatus(t *testing.T) {
	health := NewHealth()
	key := agreement.ChainKey(common.RandBytes32())
	health.ReportWatcher(chainsync.Status{Stream: "operator/deposits", Chain: "sepolia", ChainKey: key, LastHeight: 10, Head: 16, Ticks: 1})
	health.ReportWatcher(chainsync.Status{Stream: "canceler/approvals", Chain: "osmosis", LastHeight: 7, Head: 7, LastError: "timeout"})
	health.TaskFailed("operator", errors.New("boom"))

	reader := startServer(t, NewHttpReporter("", "", health, newFakeState(), fakeQueue(4)))
	view, err := reader.GetStatus()
	require.NoError(t, err)

	assert.Equal(t, 3, view.PendingDeposits)
	assert.Equal(t, 3, view.VerifiedApprovals)
	assert.Equal(t, 1, view.InvalidApprovals)
	assert.Equal(t, 1, view.CancelledApprovals)
	assert.Equal(t, 4, view.RetryQueue)
	assert.Equal(t, 5, view.Deposits[statedb.DepositSubmitted])
	assert.Equal(t, map[string]string{"operator": "boom"}, view.FailedTasks)

	require.Len(t, view.Watchers, 2)
	assert.Equal(t, "osmosis", view.Watchers[0].Chain)
	assert.Equal(t, "timeout", view.Watchers[0].LastError)
	assert.Equal(t, "sepolia", view.Watchers[1].Chain)
	assert.Equal(t, key.Hex(), view.Watchers[1].ChainKey)
	assert.Equal(t, uint64(16), view.Watchers[1].Head)
}

func TestStatusStoreError(t *testing.T) {
	state := newFakeState()
	state.statsErr = errors.New("disk full")
	reader := startServer(t, NewHttpReporter("", "", NewHealth(), state, nil))

	_, err := reader.GetStatus()
	assert.ErrorContains(t, err, "500")
}

func TestApproval(t *testing.T) {
	state := newFakeState()
	hash := ethcommon.Hash(common.RandBytes32())
	state.approvals[hash] = &statedb.ApprovalRecord{
		Approval: agreement.WithdrawApproval{
			WithdrawHash: hash,
			Amount:       big.NewInt(1000),
			Nonce:        big.NewInt(7),
			ApprovedAt:   100,
		},
		State:   agreement.ApprovalApproved,
		Verdict: agreement.VerdictInvalid,
		Reason:  "deposit absent",
	}
	reader := startServer(t, NewHttpReporter("", "", NewHealth(), state, nil))

	view, err := reader.GetApproval(hash.Hex())
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, hash.Hex(), view.WithdrawHash)
	assert.Equal(t, "1000", view.Amount)
	assert.Equal(t, "7", view.Nonce)
	assert.Equal(t, "0", view.Fee)
	assert.Equal(t, agreement.VerdictInvalid, view.Verdict)
	assert.Equal(t, "deposit absent", view.Reason)

	// without the 0x prefix
	view, err = reader.GetApproval(hash.Hex()[2:])
	require.NoError(t, err)
	require.NotNil(t, view)

	view, err = reader.GetApproval(ethcommon.Hash{1}.Hex())
	require.NoError(t, err)
	assert.Nil(t, view)

	_, err = reader.GetApproval("0x1234")
	assert.ErrorContains(t, err, "400")
	_, err = reader.GetApproval("")
	assert.ErrorContains(t, err, "400")
}

func TestApprovalFromStore(t *testing.T) {
	st, err := statedb.OpenSQLite(t.TempDir() + "/reporter.db")
	require.NoError(t, err)
	defer st.Close()

	src := agreement.ChainKey(common.RandBytes32())
	rec := &statedb.ApprovalRecord{
		Approval: agreement.WithdrawApproval{
			WithdrawHash: ethcommon.Hash(common.RandBytes32()),
			SrcChainKey:  src,
			DestChainKey: agreement.ChainKey(common.RandBytes32()),
			Amount:       big.NewInt(5),
			Nonce:        big.NewInt(1),
			Fee:          big.NewInt(0),
			ApprovedAt:   10,
		},
		State:   agreement.ApprovalApproved,
		Verdict: agreement.VerdictValid,
	}
	require.NoError(t, st.SaveApproval(rec))

	reader := startServer(t, NewHttpReporter("", "", NewHealth(), st, nil))
	view, err := reader.GetApproval(rec.Approval.WithdrawHash.Hex())
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, src.Hex(), view.SrcChainKey)
	assert.Equal(t, agreement.VerdictValid, view.Verdict)

	status, err := reader.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, status.VerifiedApprovals)
}

func TestMetricsRoute(t *testing.T) {
	reader := startServer(t, NewHttpReporter("", "", NewHealth(), newFakeState(), nil))
	body, err := reader.GetMetrics()
	require.NoError(t, err)
	assert.Contains(t, body, "go_goroutines")
}

func TestLoop(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, _ := net.SplitHostPort(l.Addr().String())
	l.Close()

	gin.SetMode(gin.TestMode)
	h := NewHttpReporter("127.0.0.1", port, NewHealth(), newFakeState(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Loop(ctx) }()

	reader := NewHttpReader("127.0.0.1", port)
	require.Eventually(t, func() bool {
		ok, err := reader.Healthy()
		return err == nil && ok
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("reporter did not stop")
	}
}
