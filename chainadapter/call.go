package chainadapter

import (
	"fmt"

	"github.com/TEENet-io/watchtower-go/agreement"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

type CallKind string

const (
	CallApproveWithdraw          CallKind = "approve"
	CallExecuteWithdraw          CallKind = "execute"
	CallCancelWithdrawApproval   CallKind = "cancel"
	CallReenableWithdrawApproval CallKind = "reenable"
)

// Call is one state-changing contract call.
// Approval is set for approve calls, WithdrawHash for the others.
type Call struct {
	Kind         CallKind
	WithdrawHash ethcommon.Hash
	Approval     *agreement.WithdrawApproval
}

func (c Call) String() string {
	if c.Approval != nil {
		return fmt.Sprintf("%s(%s)", c.Kind, c.Approval.String())
	}
	return fmt.Sprintf("%s(%s)", c.Kind, c.WithdrawHash.Hex())
}

func ApproveWithdraw(a *agreement.WithdrawApproval) Call {
	return Call{Kind: CallApproveWithdraw, WithdrawHash: a.WithdrawHash, Approval: a}
}

func ExecuteWithdraw(hash ethcommon.Hash) Call {
	return Call{Kind: CallExecuteWithdraw, WithdrawHash: hash}
}

func CancelWithdrawApproval(hash ethcommon.Hash) Call {
	return Call{Kind: CallCancelWithdrawApproval, WithdrawHash: hash}
}

func ReenableWithdrawApproval(hash ethcommon.Hash) Call {
	return Call{Kind: CallReenableWithdrawApproval, WithdrawHash: hash}
}

// Receipt confirms a call landed on chain.
type Receipt struct {
	TxHash string
	Height uint64
}
