package canceler

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/alert"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/chainsync"
	"github.com/TEENet-io/watchtower-go/identity"
	"github.com/TEENet-io/watchtower-go/retry"
	"github.com/TEENet-io/watchtower-go/statedb"
	"github.com/TEENet-io/watchtower-go/verifier"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token   = ethcommon.HexToHash("0x0a")
	account = ethcommon.HexToHash("0x0b")
)

type testEnv struct {
	clock  *retry.ManualClock
	src    *chainadapter.SimulatedChain
	dst    *chainadapter.SimulatedChain
	store  statedb.Store
	sched  *retry.Scheduler
	alerts *alert.Recorder
	c      *Canceler
	w      *chainsync.Watcher
}

func newTestEnv(t *testing.T) *testEnv {
	clock := retry.NewManualClock(time.Unix(1_700_000_000, 0))

	srcKey, err := identity.Default.ChainKey(agreement.FamilyCosmos, "testnet-1", "wasm")
	require.NoError(t, err)
	dstKey, err := identity.Default.ChainKey(agreement.FamilyEVM, "1337", "")
	require.NoError(t, err)

	st, err := statedb.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(st.Close)

	env := &testEnv{
		clock: clock,
		src:   chainadapter.NewSimulatedChain("cosmos", agreement.FamilyCosmos, srcKey, time.Hour, clock.Now),
		dst:   chainadapter.NewSimulatedChain("evm", agreement.FamilyEVM, dstKey, time.Hour, clock.Now),
		store: st,
		sched: retry.NewScheduler(clock, retry.Policy{
			InitialInterval: time.Second,
			MaxInterval:     10 * time.Second,
			Multiplier:      2,
			MaxElapsedTime:  time.Minute,
		}),
		alerts: alert.NewRecorder(16),
	}

	cfg := DefaultConfig()
	cfg.Workers = 2
	env.c = New(cfg, st, statedb.NewKeyLocker(st, time.Minute), verifier.New(identity.Default, time.Second), env.sched, env.alerts)
	env.c.AddSource(srcKey, env.src.Client(chainadapter.RoleUser))
	env.w, err = env.c.AddDestination(env.dst.Client(chainadapter.RoleCanceler), chainsync.Config{})
	require.NoError(t, err)
	return env
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func approvalFor(d *agreement.Deposit) *agreement.WithdrawApproval {
	return &agreement.WithdrawApproval{
		SrcChainKey:      d.SrcChainKey,
		DestChainKey:     d.DestChainKey,
		Token:            d.DestTokenAddress,
		Recipient:        d.DestAccount,
		DestAccount:      d.DestAccount,
		Amount:           new(big.Int).Set(d.Amount),
		Nonce:            new(big.Int).Set(d.Nonce),
		Fee:              big.NewInt(0),
		DeductFromAmount: true,
	}
}

// approve submits a as the operator and returns the resulting withdraw hash.
func (env *testEnv) approve(t *testing.T, a *agreement.WithdrawApproval) ethcommon.Hash {
	a.DestChainKey = env.dst.Info().ChainKey
	hash, err := identity.ApprovalHashOf(identity.Default, a)
	require.NoError(t, err)
	_, err = env.dst.Client(chainadapter.RoleOperator).Submit(testContext(t), chainadapter.ApproveWithdraw(a))
	require.NoError(t, err)
	return hash
}

func (env *testEnv) record(t *testing.T, hash ethcommon.Hash) *statedb.ApprovalRecord {
	rec, ok, err := env.store.GetApproval(hash)
	require.NoError(t, err)
	require.True(t, ok)
	return rec
}

func kinds(alerts []alert.Alert) []alert.Kind {
	var out []alert.Kind
	for _, a := range alerts {
		out = append(out, a.Kind)
	}
	return out
}

func TestValidApprovalIsLeftAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	d := env.src.Deposit(env.dst.Info().ChainKey, token, account, big.NewInt(100))
	hash := env.approve(t, approvalFor(d))

	require.NoError(t, env.w.Tick(ctx))
	assert.Equal(t, agreement.VerdictUnverified, env.record(t, hash).Verdict)

	require.NoError(t, env.c.VerifyPending(ctx))
	rec := env.record(t, hash)
	assert.Equal(t, agreement.VerdictValid, rec.Verdict)
	assert.Equal(t, agreement.ApprovalApproved, rec.State)
	assert.Equal(t, 0, env.dst.Attempts(chainadapter.CallCancelWithdrawApproval))
	assert.Empty(t, env.alerts.Drain())
}

func TestInvalidApprovalsAreCancelled(t *testing.T) {
	cases := []struct {
		name   string
		build  func(env *testEnv) *agreement.WithdrawApproval
		reason string
	}{
		{
			name: "no deposit",
			build: func(env *testEnv) *agreement.WithdrawApproval {
				return approvalFor(&agreement.Deposit{
					SrcChainKey:      env.src.Info().ChainKey,
					DestTokenAddress: token,
					DestAccount:      account,
					Amount:           big.NewInt(100),
					Nonce:            big.NewInt(99),
				})
			},
			reason: verifier.ReasonDepositAbsent,
		},
		{
			name: "inflated amount",
			build: func(env *testEnv) *agreement.WithdrawApproval {
				d := env.src.Deposit(env.dst.Info().ChainKey, token, account, big.NewInt(100))
				a := approvalFor(d)
				a.Amount = big.NewInt(1000)
				return a
			},
			reason: "amount mismatch",
		},
		{
			name: "recipient swapped",
			build: func(env *testEnv) *agreement.WithdrawApproval {
				d := env.src.Deposit(env.dst.Info().ChainKey, token, account, big.NewInt(100))
				a := approvalFor(d)
				a.Recipient = ethcommon.HexToHash("0xbad")
				return a
			},
			reason: verifier.ReasonRecipient,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := testContext(t)

			hash := env.approve(t, tc.build(env))
			require.NoError(t, env.w.Tick(ctx))
			require.NoError(t, env.c.VerifyPending(ctx))

			rec := env.record(t, hash)
			assert.Equal(t, agreement.VerdictInvalid, rec.Verdict)
			assert.Equal(t, tc.reason, rec.Reason)

			onchain, ok := env.dst.Approval(hash)
			require.True(t, ok)
			assert.True(t, onchain.Cancelled)
			assert.Equal(t, []alert.Kind{alert.InvalidApproval, alert.CancelSubmitted}, kinds(env.alerts.Drain()))

			require.NoError(t, env.w.Tick(ctx))
			assert.Equal(t, agreement.ApprovalCancelled, env.record(t, hash).State)

			// nothing to do on the next pass
			require.NoError(t, env.c.VerifyPending(ctx))
			assert.Equal(t, 1, env.dst.Attempts(chainadapter.CallCancelWithdrawApproval))
		})
	}
}

func TestIndeterminateIsRetried(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	d := env.src.Deposit(env.dst.Info().ChainKey, token, account, big.NewInt(100))
	hash := env.approve(t, approvalFor(d))
	require.NoError(t, env.w.Tick(ctx))

	env.src.FailQueries(1)
	require.NoError(t, env.c.VerifyPending(ctx))
	assert.Equal(t, agreement.VerdictIndeterminate, env.record(t, hash).Verdict)
	assert.Equal(t, 1, env.sched.Pending())
	assert.Equal(t, 0, env.dst.Attempts(chainadapter.CallCancelWithdrawApproval))

	env.clock.Advance(time.Second)
	assert.Equal(t, 1, env.sched.RunDue(ctx))
	assert.Equal(t, agreement.VerdictValid, env.record(t, hash).Verdict)
	assert.Equal(t, 0, env.sched.Pending())
}

func TestUnknownSourceIsNotCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	d := env.src.Deposit(env.dst.Info().ChainKey, token, account, big.NewInt(100))
	a := approvalFor(d)
	a.SrcChainKey = agreement.HexToChainKey("0x1234")
	hash := env.approve(t, a)
	require.NoError(t, env.w.Tick(ctx))

	require.NoError(t, env.c.VerifyPending(ctx))
	rec := env.record(t, hash)
	assert.Equal(t, agreement.VerdictIndeterminate, rec.Verdict)
	assert.Equal(t, verifier.ReasonUnknownSource, rec.Reason)
	assert.Equal(t, []alert.Kind{alert.UnverifiableApproval}, kinds(env.alerts.Drain()))
	assert.Equal(t, 1, env.sched.Pending())

	// retries back off quietly and never cancel
	env.clock.Advance(time.Second)
	assert.Equal(t, 1, env.sched.RunDue(ctx))
	require.NoError(t, env.c.VerifyPending(ctx))
	assert.Empty(t, env.alerts.Drain())
	assert.Equal(t, 0, env.dst.Attempts(chainadapter.CallCancelWithdrawApproval))
	onchain, ok := env.dst.Approval(hash)
	require.True(t, ok)
	assert.False(t, onchain.Cancelled)
}

func TestCancelTimeoutIsQueriedBeforeRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	a := approvalFor(&agreement.Deposit{
		SrcChainKey:      env.src.Info().ChainKey,
		DestTokenAddress: token,
		DestAccount:      account,
		Amount:           big.NewInt(100),
		Nonce:            big.NewInt(7),
	})
	hash := env.approve(t, a)
	require.NoError(t, env.w.Tick(ctx))

	env.dst.FailSubmit(chainadapter.Fault{Call: chainadapter.CallCancelWithdrawApproval, Kind: chainadapter.FailureTimeout, Landed: true, Times: 1})
	require.NoError(t, env.c.VerifyPending(ctx))
	assert.Equal(t, 1, env.sched.Pending())

	sub, ok, err := env.store.GetSubmission(chainadapter.CallCancelWithdrawApproval, hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, statedb.SubmissionTimeout, sub.Status)

	env.clock.Advance(time.Second)
	env.sched.RunDue(ctx)
	assert.Equal(t, 0, env.sched.Pending())
	assert.Equal(t, 1, env.dst.Attempts(chainadapter.CallCancelWithdrawApproval))

	sub, _, err = env.store.GetSubmission(chainadapter.CallCancelWithdrawApproval, hash)
	require.NoError(t, err)
	assert.Equal(t, statedb.SubmissionSuccess, sub.Status)
	assert.Equal(t, agreement.ApprovalCancelled, env.record(t, hash).State)
}

func TestTransientCancelIsRetried(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	a := approvalFor(&agreement.Deposit{
		SrcChainKey:      env.src.Info().ChainKey,
		DestTokenAddress: token,
		DestAccount:      account,
		Amount:           big.NewInt(100),
		Nonce:            big.NewInt(7),
	})
	hash := env.approve(t, a)
	require.NoError(t, env.w.Tick(ctx))

	env.dst.FailSubmit(chainadapter.Fault{Call: chainadapter.CallCancelWithdrawApproval, Kind: chainadapter.FailureTransient, Times: 1})
	require.NoError(t, env.c.VerifyPending(ctx))
	assert.Equal(t, 0, env.dst.Landed(chainadapter.CallCancelWithdrawApproval))

	env.clock.Advance(time.Second)
	env.sched.RunDue(ctx)
	assert.Equal(t, 2, env.dst.Attempts(chainadapter.CallCancelWithdrawApproval))
	onchain, ok := env.dst.Approval(hash)
	require.True(t, ok)
	assert.True(t, onchain.Cancelled)
}

func TestRejectedCancelIsAlerted(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	a := approvalFor(&agreement.Deposit{
		SrcChainKey:      env.src.Info().ChainKey,
		DestTokenAddress: token,
		DestAccount:      account,
		Amount:           big.NewInt(100),
		Nonce:            big.NewInt(7),
	})
	env.approve(t, a)
	require.NoError(t, env.w.Tick(ctx))

	env.dst.FailSubmit(chainadapter.Fault{Call: chainadapter.CallCancelWithdrawApproval, Kind: chainadapter.FailureRejected, Times: 1})
	require.NoError(t, env.c.VerifyPending(ctx))
	assert.Equal(t, []alert.Kind{alert.InvalidApproval, alert.CancelFailed}, kinds(env.alerts.Drain()))

	require.NoError(t, env.c.VerifyPending(ctx))
	env.clock.Advance(time.Second)
	env.sched.RunDue(ctx)
	assert.Equal(t, 1, env.dst.Attempts(chainadapter.CallCancelWithdrawApproval))
}

func TestReenabledInvalidIsNotCancelledAgain(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	a := approvalFor(&agreement.Deposit{
		SrcChainKey:      env.src.Info().ChainKey,
		DestTokenAddress: token,
		DestAccount:      account,
		Amount:           big.NewInt(100),
		Nonce:            big.NewInt(7),
	})
	hash := env.approve(t, a)
	require.NoError(t, env.w.Tick(ctx))
	require.NoError(t, env.c.VerifyPending(ctx))
	require.NoError(t, env.w.Tick(ctx))
	env.alerts.Drain()

	_, err := env.dst.Client(chainadapter.RoleAdmin).Submit(ctx, chainadapter.ReenableWithdrawApproval(hash))
	require.NoError(t, err)
	require.NoError(t, env.w.Tick(ctx))

	rec := env.record(t, hash)
	assert.True(t, rec.Reenabled)
	assert.Equal(t, agreement.ApprovalApproved, rec.State)
	assert.Equal(t, agreement.VerdictUnverified, rec.Verdict)

	require.NoError(t, env.c.VerifyPending(ctx))
	assert.Equal(t, agreement.VerdictInvalid, env.record(t, hash).Verdict)
	assert.Equal(t, []alert.Kind{alert.ReenabledInvalid}, kinds(env.alerts.Drain()))
	assert.Equal(t, 1, env.dst.Attempts(chainadapter.CallCancelWithdrawApproval))

	onchain, ok := env.dst.Approval(hash)
	require.True(t, ok)
	assert.False(t, onchain.Cancelled)
}

func TestExecutedBeforeCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	a := approvalFor(&agreement.Deposit{
		SrcChainKey:      env.src.Info().ChainKey,
		DestTokenAddress: token,
		DestAccount:      account,
		Amount:           big.NewInt(100),
		Nonce:            big.NewInt(7),
	})
	hash := env.approve(t, a)
	require.NoError(t, env.w.Tick(ctx))

	env.clock.Advance(time.Hour)
	_, err := env.dst.Client(chainadapter.RoleUser).Submit(ctx, chainadapter.ExecuteWithdraw(hash))
	require.NoError(t, err)

	require.NoError(t, env.c.VerifyPending(ctx))
	assert.Equal(t, 0, env.dst.Attempts(chainadapter.CallCancelWithdrawApproval))
	assert.Equal(t, agreement.ApprovalExecuted, env.record(t, hash).State)
	assert.Equal(t, []alert.Kind{alert.InvalidApproval, alert.CancelFailed}, kinds(env.alerts.Drain()))
}

var errDisk = errors.New("disk I/O error")

type brokenApprovalStore struct {
	statedb.Store
}

func (brokenApprovalStore) ListApprovals(statedb.ApprovalFilter) ([]*statedb.ApprovalRecord, error) {
	return nil, errDisk
}

func TestLoopStopsOnStoreFailure(t *testing.T) {
	env := newTestEnv(t)

	cfg := DefaultConfig()
	cfg.VerifyInterval = 10 * time.Millisecond
	st := brokenApprovalStore{env.store}
	c := New(cfg, st, statedb.NewKeyLocker(st, time.Minute), verifier.New(identity.Default, time.Second), env.sched, env.alerts)
	_, err := c.AddDestination(env.dst.Client(chainadapter.RoleCanceler), chainsync.Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = c.Loop(ctx)
	require.Error(t, err)
	assert.True(t, statedb.IsPersistence(err))
	assert.ErrorIs(t, err, errDisk)
	assert.NoError(t, ctx.Err())
}
