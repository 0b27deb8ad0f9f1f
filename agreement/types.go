// Global agreement on the types shared by both sides of the bridge.

package agreement

import (
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// ChainFamily tells which execution environment a chain runs.
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "evm"
	FamilyCosmos ChainFamily = "cosmos"
)

func ParseChainFamily(s string) (ChainFamily, error) {
	switch ChainFamily(strings.ToLower(strings.TrimSpace(s))) {
	case FamilyEVM:
		return FamilyEVM, nil
	case FamilyCosmos:
		return FamilyCosmos, nil
	}
	return "", fmt.Errorf("unknown chain family: %q", s)
}

// ChainKey is the 32-byte canonical identifier of a chain.
// It is always derived from chain metadata, never configured directly.
type ChainKey [32]byte

func (k ChainKey) Hex() string {
	return ethcommon.Hash(k).Hex()
}

// String returns a shortened form suitable for logs.
func (k ChainKey) String() string {
	return ethcommon.Hash(k).TerminalString()
}

func (k ChainKey) IsZero() bool {
	return k == ChainKey{}
}

func HexToChainKey(s string) ChainKey {
	return ChainKey(ethcommon.HexToHash(s))
}

// Deposit is a source-chain lock/burn observed by the operator.
// All 32-byte fields are left-padded native values.
type Deposit struct {
	SrcChainKey      ChainKey
	DestChainKey     ChainKey
	DestTokenAddress ethcommon.Hash
	DestAccount      ethcommon.Hash
	Amount           *big.Int
	Nonce            *big.Int
	DepositedAt      uint64 // unix seconds
}

func (d *Deposit) String() string {
	return fmt.Sprintf("{src=%s dest=%s token=%s account=%s amount=%v nonce=%v}",
		d.SrcChainKey, d.DestChainKey, d.DestTokenAddress.Hex(), d.DestAccount.Hex(), d.Amount, d.Nonce)
}

func (d *Deposit) Clone() *Deposit {
	c := *d
	if d.Amount != nil {
		c.Amount = new(big.Int).Set(d.Amount)
	}
	if d.Nonce != nil {
		c.Nonce = new(big.Int).Set(d.Nonce)
	}
	return &c
}

// WithdrawApproval is the destination-chain record created by approveWithdraw.
// The destination contract is the source of truth for Cancelled and Executed.
type WithdrawApproval struct {
	WithdrawHash     ethcommon.Hash
	SrcChainKey      ChainKey
	DestChainKey     ChainKey
	Token            ethcommon.Hash
	Recipient        ethcommon.Hash
	DestAccount      ethcommon.Hash
	Amount           *big.Int
	Nonce            *big.Int
	Fee              *big.Int
	FeeRecipient     ethcommon.Hash
	ApprovedAt       uint64 // unix seconds, reset by reenable
	DeductFromAmount bool
	Cancelled        bool
	Executed         bool
}

func (a *WithdrawApproval) String() string {
	return fmt.Sprintf("{hash=%s src=%s amount=%v nonce=%v cancelled=%v executed=%v}",
		a.WithdrawHash.Hex(), a.SrcChainKey, a.Amount, a.Nonce, a.Cancelled, a.Executed)
}

func (a *WithdrawApproval) Clone() *WithdrawApproval {
	c := *a
	for _, p := range []**big.Int{&c.Amount, &c.Nonce, &c.Fee} {
		if *p != nil {
			*p = new(big.Int).Set(*p)
		}
	}
	return &c
}

// ApprovalState is the lifecycle state of a withdrawal approval as seen from chain events.
type ApprovalState string

const (
	ApprovalPending   ApprovalState = "pending"
	ApprovalApproved  ApprovalState = "approved"
	ApprovalCancelled ApprovalState = "cancelled"
	ApprovalExecuted  ApprovalState = "executed"
)

// Verdict is the outcome of verifying an approval against its source chain.
type Verdict string

const (
	VerdictUnverified    Verdict = "unverified"
	VerdictValid         Verdict = "valid"
	VerdictInvalid       Verdict = "invalid"
	VerdictIndeterminate Verdict = "indeterminate"
)
