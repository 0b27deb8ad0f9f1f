package statedb

import (
	"math/big"
	"testing"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	srcKey  = agreement.ChainKey(common.RandBytes32())
	destKey = agreement.ChainKey(common.RandBytes32())
)

func randDeposit(nonce int64, amount int64) *DepositRecord {
	return &DepositRecord{
		Deposit: agreement.Deposit{
			SrcChainKey:      srcKey,
			DestChainKey:     destKey,
			DestTokenAddress: common.RandBytes32(),
			DestAccount:      common.RandBytes32(),
			Amount:           big.NewInt(amount),
			Nonce:            big.NewInt(nonce),
			DepositedAt:      1_700_000_000,
		},
		WithdrawHash: common.RandBytes32(),
		Height:       uint64(100 + nonce),
		TxHash:       "0x" + common.ByteSliceToPureHexStr(common.RandBytes(32)),
		Status:       DepositObserved,
		UpdatedAt:    1_700_000_000,
	}
}

func randApproval(state agreement.ApprovalState, verdict agreement.Verdict, approvedAt uint64) *ApprovalRecord {
	return &ApprovalRecord{
		Approval: agreement.WithdrawApproval{
			WithdrawHash:     common.RandBytes32(),
			SrcChainKey:      srcKey,
			DestChainKey:     destKey,
			Token:            common.RandBytes32(),
			Recipient:        common.RandBytes32(),
			DestAccount:      common.RandBytes32(),
			Amount:           common.RandBigInt(16),
			Nonce:            common.RandBigInt(8),
			Fee:              big.NewInt(3),
			FeeRecipient:     common.RandBytes32(),
			ApprovedAt:       approvedAt,
			DeductFromAmount: true,
		},
		State:   state,
		Verdict: verdict,
	}
}

// runStoreSuite checks the behaviour every Store implementation shares.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("watermarks", func(t *testing.T) {
		st := newStore(t)

		_, ok, err := st.GetWatermark(StreamOperatorDeposits, srcKey)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, st.SetWatermark(StreamOperatorDeposits, srcKey, 10))
		require.NoError(t, st.SetWatermark(StreamCancelerApprovals, srcKey, 3))
		require.NoError(t, st.SetWatermark(StreamOperatorDeposits, srcKey, 12))

		h, ok, err := st.GetWatermark(StreamOperatorDeposits, srcKey)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint64(12), h)

		h, _, err = st.GetWatermark(StreamCancelerApprovals, srcKey)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), h, "streams are independent")

		assert.ErrorIs(t, st.SetWatermark("", srcKey, 1), ErrEmptyStream)
	})

	t.Run("deposits", func(t *testing.T) {
		st := newStore(t)

		nonces := []int64{256, 9, 10, 0}
		recs := map[int64]*DepositRecord{}
		for _, n := range nonces {
			rec := randDeposit(n, 100+n)
			recs[n] = rec
			inserted, err := st.SaveDeposit(rec)
			require.NoError(t, err)
			assert.True(t, inserted)
		}

		dup := randDeposit(9, 1)
		inserted, err := st.SaveDeposit(dup)
		require.NoError(t, err)
		assert.False(t, inserted, "first observation wins")

		got, ok, err := st.GetDeposit(srcKey, big.NewInt(9))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, recs[9].WithdrawHash, got.WithdrawHash)
		assert.Equal(t, 0, got.Deposit.Amount.Cmp(big.NewInt(109)))
		assert.Equal(t, recs[9].Deposit.DestAccount, got.Deposit.DestAccount)
		assert.Equal(t, recs[9].TxHash, got.TxHash)

		list, err := st.ListDeposits(srcKey, []DepositStatus{DepositObserved}, 0)
		require.NoError(t, err)
		require.Len(t, list, 4)
		var order []int64
		for _, r := range list {
			order = append(order, r.Deposit.Nonce.Int64())
		}
		assert.Equal(t, []int64{0, 9, 10, 256}, order)

		require.NoError(t, st.UpdateDepositStatus(srcKey, big.NewInt(0), DepositSubmitted, ""))
		require.NoError(t, st.UpdateDepositStatus(srcKey, big.NewInt(9), DepositRetrying, "timeout"))

		list, err = st.ListDeposits(srcKey, []DepositStatus{DepositObserved, DepositRetrying}, 2)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, int64(9), list[0].Deposit.Nonce.Int64())
		assert.Equal(t, DepositRetrying, list[0].Status)
		assert.Equal(t, "timeout", list[0].Reason)

		assert.Error(t, st.UpdateDepositStatus(srcKey, big.NewInt(77), DepositSkipped, ""))

		_, ok, err = st.GetDeposit(destKey, big.NewInt(0))
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = st.SaveDeposit(&DepositRecord{})
		assert.Error(t, err)
	})

	t.Run("approvals", func(t *testing.T) {
		st := newStore(t)

		a1 := randApproval(agreement.ApprovalApproved, agreement.VerdictUnverified, 30)
		a2 := randApproval(agreement.ApprovalApproved, agreement.VerdictValid, 10)
		a3 := randApproval(agreement.ApprovalCancelled, agreement.VerdictInvalid, 20)
		for _, a := range []*ApprovalRecord{a1, a2, a3} {
			require.NoError(t, st.SaveApproval(a))
		}

		got, ok, err := st.GetApproval(a3.Approval.WithdrawHash)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, got.Approval.Cancelled)
		assert.False(t, got.Approval.Executed)
		assert.Equal(t, 0, got.Approval.Amount.Cmp(a3.Approval.Amount))
		assert.Equal(t, a3.Approval.FeeRecipient, got.Approval.FeeRecipient)
		assert.True(t, got.Approval.DeductFromAmount)

		list, err := st.ListApprovals(ApprovalFilter{DestChainKey: &destKey, States: []agreement.ApprovalState{agreement.ApprovalApproved}})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, a2.Approval.WithdrawHash, list[0].Approval.WithdrawHash, "ordered by approval time")

		list, err = st.ListApprovals(ApprovalFilter{Verdicts: []agreement.Verdict{agreement.VerdictUnverified, agreement.VerdictIndeterminate}})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, a1.Approval.WithdrawHash, list[0].Approval.WithdrawHash)

		a1.Verdict = agreement.VerdictValid
		a1.Reason = "deposit matches"
		require.NoError(t, st.SaveApproval(a1))
		got, _, err = st.GetApproval(a1.Approval.WithdrawHash)
		require.NoError(t, err)
		assert.Equal(t, agreement.VerdictValid, got.Verdict)
		assert.Equal(t, "deposit matches", got.Reason)

		_, ok, err = st.GetApproval(ethcommon.Hash{1})
		require.NoError(t, err)
		assert.False(t, ok)

		other := agreement.ChainKey{9}
		list, err = st.ListApprovals(ApprovalFilter{DestChainKey: &other})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("nonce used", func(t *testing.T) {
		st := newStore(t)

		used, err := st.IsNonceUsed(srcKey, big.NewInt(5))
		require.NoError(t, err)
		assert.False(t, used)

		first, err := st.MarkNonceUsed(srcKey, big.NewInt(5))
		require.NoError(t, err)
		assert.True(t, first)
		again, err := st.MarkNonceUsed(srcKey, big.NewInt(5))
		require.NoError(t, err)
		assert.False(t, again)

		used, err = st.IsNonceUsed(srcKey, big.NewInt(5))
		require.NoError(t, err)
		assert.True(t, used)
		used, err = st.IsNonceUsed(destKey, big.NewInt(5))
		require.NoError(t, err)
		assert.False(t, used)
	})

	t.Run("submissions", func(t *testing.T) {
		st := newStore(t)
		hash := ethcommon.Hash(common.RandBytes32())

		_, ok, err := st.GetSubmission(chainadapter.CallApproveWithdraw, hash)
		require.NoError(t, err)
		assert.False(t, ok)

		sub := &Submission{
			Kind:         chainadapter.CallApproveWithdraw,
			WithdrawHash: hash,
			ChainKey:     destKey,
			AttemptID:    "7d3f1c2a-0000-4000-8000-000000000001",
			Status:       SubmissionInflight,
			Attempts:     1,
			CreatedAt:    1,
			UpdatedAt:    1,
		}
		require.NoError(t, st.SaveSubmission(sub))

		sub.Status = SubmissionTimeout
		sub.TxHash = "0xabc"
		sub.LastError = "no receipt"
		sub.Attempts = 2
		require.NoError(t, st.SaveSubmission(sub))

		got, ok, err := st.GetSubmission(chainadapter.CallApproveWithdraw, hash)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, SubmissionTimeout, got.Status)
		assert.Equal(t, "0xabc", got.TxHash)
		assert.Equal(t, 2, got.Attempts)
		assert.Equal(t, destKey, got.ChainKey)

		_, ok, err = st.GetSubmission(chainadapter.CallCancelWithdrawApproval, hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("leases", func(t *testing.T) {
		st := newStore(t)
		now := time.Unix(1_700_000_000, 0)

		ok, err := st.AcquireLease("withdraw/1", "a", time.Minute, now)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = st.AcquireLease("withdraw/1", "b", time.Minute, now.Add(30*time.Second))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = st.AcquireLease("withdraw/1", "a", time.Minute, now.Add(30*time.Second))
		require.NoError(t, err)
		assert.True(t, ok, "owner renews")

		ok, err = st.AcquireLease("withdraw/1", "b", time.Minute, now.Add(91*time.Second))
		require.NoError(t, err)
		assert.True(t, ok, "expired lease is taken over")

		require.NoError(t, st.ReleaseLease("withdraw/1", "a"))
		ok, err = st.AcquireLease("withdraw/1", "a", time.Minute, now.Add(92*time.Second))
		require.NoError(t, err)
		assert.False(t, ok, "release by a non-owner is ignored")

		require.NoError(t, st.ReleaseLease("withdraw/1", "b"))
		ok, err = st.AcquireLease("withdraw/1", "a", time.Minute, now.Add(92*time.Second))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stats", func(t *testing.T) {
		st := newStore(t)

		_, err := st.SaveDeposit(randDeposit(1, 1))
		require.NoError(t, err)
		_, err = st.SaveDeposit(randDeposit(2, 1))
		require.NoError(t, err)
		require.NoError(t, st.UpdateDepositStatus(srcKey, big.NewInt(2), DepositSubmitted, ""))
		require.NoError(t, st.SaveApproval(randApproval(agreement.ApprovalCancelled, agreement.VerdictInvalid, 1)))

		stats, err := st.Stats()
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Deposits[DepositObserved])
		assert.Equal(t, 1, stats.Deposits[DepositSubmitted])
		assert.Equal(t, 1, stats.Approvals[agreement.ApprovalCancelled])
		assert.Equal(t, 1, stats.Verdicts[agreement.VerdictInvalid])
	})

	t.Run("key locker", func(t *testing.T) {
		st := newStore(t)
		l1 := NewKeyLocker(st, time.Minute)
		l2 := NewKeyLocker(st, time.Minute)
		key := NonceLockKey(srcKey, big.NewInt(1))

		unlock, ok, err := l1.Lock(testContext(t), key)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = l2.Lock(testContext(t), key)
		require.NoError(t, err)
		assert.False(t, ok, "another instance holds the lease")

		unlock()
		unlock2, ok, err := l2.Lock(testContext(t), key)
		require.NoError(t, err)
		assert.True(t, ok)
		unlock2()
	})
}
