// Package verifier checks withdraw approvals against the deposits on their
// source chain.
//
// A query failure is never turned into an Invalid verdict: only a definite
// answer from the source chain can prove an approval wrong.
package verifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/common"
	"github.com/TEENet-io/watchtower-go/identity"
	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"
)

const DefaultTimeout = 15 * time.Second

const (
	ReasonUnknownSource   = "unknown source chain"
	ReasonHashMismatch    = "withdraw hash mismatch"
	ReasonDepositAbsent   = "deposit absent"
	ReasonFeeExceedsValue = "fee exceeds amount"
	ReasonRecipient       = "recipient differs from destAccount"
)

type Result struct {
	Verdict agreement.Verdict
	Reason  string
}

func (r Result) String() string {
	if r.Reason == "" {
		return string(r.Verdict)
	}
	return fmt.Sprintf("%s(%s)", r.Verdict, r.Reason)
}

func Valid() Result { return Result{Verdict: agreement.VerdictValid} }

func Invalid(reason string) Result {
	return Result{Verdict: agreement.VerdictInvalid, Reason: reason}
}

func Indeterminate(reason string) Result {
	return Result{Verdict: agreement.VerdictIndeterminate, Reason: reason}
}

// Verifier maps source chain keys to the queriers of those chains.
type Verifier struct {
	hasher  identity.Hasher
	timeout time.Duration

	mu      sync.RWMutex
	sources map[agreement.ChainKey]chainadapter.Querier
}

func New(hasher identity.Hasher, timeout time.Duration) *Verifier {
	if hasher == nil {
		hasher = identity.Default
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Verifier{
		hasher:  hasher,
		timeout: timeout,
		sources: make(map[agreement.ChainKey]chainadapter.Querier),
	}
}

func (v *Verifier) AddSource(key agreement.ChainKey, q chainadapter.Querier) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sources[key] = q
}

func (v *Verifier) source(key agreement.ChainKey) (chainadapter.Querier, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	q, ok := v.sources[key]
	return q, ok
}

// Verify decides whether approval is backed by a matching source deposit.
func (v *Verifier) Verify(ctx context.Context, approval *agreement.WithdrawApproval) Result {
	res := v.verify(ctx, approval)
	logger.WithFields(logger.Fields{
		"withdrawHash": approval.WithdrawHash.Hex(),
		"src":          approval.SrcChainKey,
		"nonce":        approval.Nonce,
		"verdict":      res.Verdict,
		"reason":       res.Reason,
	}).Debug("approval verified")
	return res
}

func (v *Verifier) verify(ctx context.Context, approval *agreement.WithdrawApproval) Result {
	// no source to ask is our own gap, never proof of fraud
	src, ok := v.source(approval.SrcChainKey)
	if !ok {
		return Indeterminate(ReasonUnknownSource)
	}

	expected, err := identity.ApprovalHashOf(v.hasher, approval)
	if err != nil {
		return Invalid(fmt.Sprintf("malformed approval: %v", err))
	}
	if expected != approval.WithdrawHash {
		return Invalid(ReasonHashMismatch)
	}

	deposit, found, err := v.depositFromHash(ctx, src, expected)
	if err != nil {
		return Indeterminate(fmt.Sprintf("source query failed: %v", err))
	}
	if found {
		return compare(approval, deposit)
	}

	// No deposit under this hash. Look the nonce up to explain the mismatch.
	cctx, cancel := context.WithTimeout(ctx, v.timeout)
	hash, found, err := src.DepositHash(cctx, approval.Nonce)
	cancel()
	if err != nil {
		return Indeterminate(fmt.Sprintf("source query failed: %v", err))
	}
	if !found {
		return Invalid(ReasonDepositAbsent)
	}

	deposit, found, err = v.depositFromHash(ctx, src, hash)
	if err != nil {
		return Indeterminate(fmt.Sprintf("source query failed: %v", err))
	}
	if !found {
		return Invalid(ReasonDepositAbsent)
	}
	res := compare(approval, deposit)
	if res.Verdict == agreement.VerdictValid {
		// same fields, different hash: the approval was built for another chain pair
		return Invalid(ReasonHashMismatch)
	}
	return res
}

func (v *Verifier) depositFromHash(ctx context.Context, src chainadapter.Querier, hash ethcommon.Hash) (*agreement.Deposit, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return src.GetDepositFromHash(cctx, hash)
}

// compare reports the first field of approval that disagrees with deposit.
func compare(a *agreement.WithdrawApproval, d *agreement.Deposit) Result {
	switch {
	case !common.BigIntEqual(a.Amount, d.Amount):
		return Invalid("amount mismatch")
	case a.DestAccount != d.DestAccount:
		return Invalid("destAccount mismatch")
	case a.Recipient != d.DestAccount:
		return Invalid(ReasonRecipient)
	case a.Token != d.DestTokenAddress:
		return Invalid("token mismatch")
	case a.DestChainKey != d.DestChainKey:
		return Invalid("destChainKey mismatch")
	case a.SrcChainKey != d.SrcChainKey:
		return Invalid("srcChainKey mismatch")
	case !common.BigIntEqual(a.Nonce, d.Nonce):
		return Invalid("nonce mismatch")
	case a.DeductFromAmount && a.Fee != nil && a.Fee.Cmp(a.Amount) > 0:
		return Invalid(ReasonFeeExceedsValue)
	}
	return Valid()
}
