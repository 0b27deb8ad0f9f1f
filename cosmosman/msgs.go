package cosmosman

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Bridge contract messages. Field names are snake_case, Uint128 values are
// decimal strings and 32-byte values are unprefixed hex.

type ExecuteMsg struct {
	ApproveWithdraw          *ApproveWithdrawMsg `json:"approve_withdraw,omitempty"`
	ExecuteWithdraw          *WithdrawHashMsg    `json:"execute_withdraw,omitempty"`
	CancelWithdrawApproval   *WithdrawHashMsg    `json:"cancel_withdraw_approval,omitempty"`
	ReenableWithdrawApproval *WithdrawHashMsg    `json:"reenable_withdraw_approval,omitempty"`
}

type ApproveWithdrawMsg struct {
	SrcChainKey      string `json:"src_chain_key"`
	Token            string `json:"token"`
	Recipient        string `json:"recipient"`
	DestAccount      string `json:"dest_account"`
	Amount           string `json:"amount"`
	Nonce            string `json:"nonce"`
	Fee              string `json:"fee"`
	FeeRecipient     string `json:"fee_recipient"`
	DeductFromAmount bool   `json:"deduct_from_amount"`
}

type WithdrawHashMsg struct {
	WithdrawHash string `json:"withdraw_hash"`
}

type QueryMsg struct {
	GetDepositFromHash *WithdrawHashMsg `json:"get_deposit_from_hash,omitempty"`
	DepositHash        *NonceMsg        `json:"deposit_hash,omitempty"`
	WithdrawApproval   *WithdrawHashMsg `json:"withdraw_approval,omitempty"`
	NonceUsed          *NonceUsedMsg    `json:"nonce_used,omitempty"`
}

type NonceMsg struct {
	Nonce string `json:"nonce"`
}

type NonceUsedMsg struct {
	SrcChainKey string `json:"src_chain_key"`
	Nonce       string `json:"nonce"`
}

type DepositInfo struct {
	DestChainKey     string `json:"dest_chain_key"`
	DestTokenAddress string `json:"dest_token_address"`
	DestAccount      string `json:"dest_account"`
	Amount           string `json:"amount"`
	Nonce            string `json:"nonce"`
	DepositedAt      uint64 `json:"deposited_at,string"`
}

type DepositResponse struct {
	Deposit *DepositInfo `json:"deposit"`
}

type DepositHashResponse struct {
	Hash *string `json:"hash"`
}

type ApprovalInfo struct {
	SrcChainKey      string `json:"src_chain_key"`
	Token            string `json:"token"`
	Recipient        string `json:"recipient"`
	DestAccount      string `json:"dest_account"`
	Amount           string `json:"amount"`
	Nonce            string `json:"nonce"`
	Fee              string `json:"fee"`
	FeeRecipient     string `json:"fee_recipient"`
	ApprovedAt       uint64 `json:"approved_at,string"`
	DeductFromAmount bool   `json:"deduct_from_amount"`
	Cancelled        bool   `json:"cancelled"`
	Executed         bool   `json:"executed"`
}

type ApprovalResponse struct {
	Approval *ApprovalInfo `json:"approval"`
}

type NonceUsedResponse struct {
	Used bool `json:"used"`
}

var ErrUint128Overflow = errors.New("value does not fit in Uint128")

func FormatUint128(v *big.Int) (string, error) {
	if v == nil {
		return "0", nil
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		return "", fmt.Errorf("%w: %v", ErrUint128Overflow, v)
	}
	return v.String(), nil
}

func ParseUint128(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid Uint128: %q", s)
	}
	if v.BitLen() > 128 {
		return nil, fmt.Errorf("%w: %s", ErrUint128Overflow, s)
	}
	return v, nil
}

func FormatBytes32(b [32]byte) string {
	return common.ByteSliceToPureHexStr(b[:])
}

// ParseBytes32 accepts exactly 64 hex digits, with or without 0x.
func ParseBytes32(s string) ([32]byte, error) {
	raw := common.Trim0xPrefix(strings.TrimSpace(s))
	if len(raw) != 64 {
		return [32]byte{}, fmt.Errorf("invalid bytes32: %q", s)
	}
	bz := ethcommon.FromHex(raw)
	if len(bz) != 32 {
		return [32]byte{}, fmt.Errorf("invalid bytes32: %q", s)
	}
	var out [32]byte
	copy(out[:], bz)
	return out, nil
}

func approveMsg(a *agreement.WithdrawApproval) (*ExecuteMsg, error) {
	amount, err := FormatUint128(a.Amount)
	if err != nil {
		return nil, err
	}
	nonce, err := FormatUint128(a.Nonce)
	if err != nil {
		return nil, err
	}
	fee, err := FormatUint128(a.Fee)
	if err != nil {
		return nil, err
	}
	return &ExecuteMsg{ApproveWithdraw: &ApproveWithdrawMsg{
		SrcChainKey:      FormatBytes32(a.SrcChainKey),
		Token:            FormatBytes32(a.Token),
		Recipient:        FormatBytes32(a.Recipient),
		DestAccount:      FormatBytes32(a.DestAccount),
		Amount:           amount,
		Nonce:            nonce,
		Fee:              fee,
		FeeRecipient:     FormatBytes32(a.FeeRecipient),
		DeductFromAmount: a.DeductFromAmount,
	}}, nil
}

func (d *DepositInfo) toDeposit(src agreement.ChainKey) (*agreement.Deposit, error) {
	dest, err := ParseBytes32(d.DestChainKey)
	if err != nil {
		return nil, err
	}
	token, err := ParseBytes32(d.DestTokenAddress)
	if err != nil {
		return nil, err
	}
	account, err := ParseBytes32(d.DestAccount)
	if err != nil {
		return nil, err
	}
	amount, err := ParseUint128(d.Amount)
	if err != nil {
		return nil, err
	}
	nonce, err := ParseUint128(d.Nonce)
	if err != nil {
		return nil, err
	}
	return &agreement.Deposit{
		SrcChainKey:      src,
		DestChainKey:     dest,
		DestTokenAddress: token,
		DestAccount:      account,
		Amount:           amount,
		Nonce:            nonce,
		DepositedAt:      d.DepositedAt,
	}, nil
}

func (a *ApprovalInfo) toApproval(hash ethcommon.Hash, dest agreement.ChainKey) (*agreement.WithdrawApproval, error) {
	var err error
	out := &agreement.WithdrawApproval{
		WithdrawHash:     hash,
		DestChainKey:     dest,
		ApprovedAt:       a.ApprovedAt,
		DeductFromAmount: a.DeductFromAmount,
		Cancelled:        a.Cancelled,
		Executed:         a.Executed,
	}
	var src [32]byte
	if src, err = ParseBytes32(a.SrcChainKey); err != nil {
		return nil, err
	}
	out.SrcChainKey = src
	for _, f := range []struct {
		dst *ethcommon.Hash
		src string
	}{
		{&out.Token, a.Token},
		{&out.Recipient, a.Recipient},
		{&out.DestAccount, a.DestAccount},
		{&out.FeeRecipient, a.FeeRecipient},
	} {
		v, err := ParseBytes32(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	for _, f := range []struct {
		dst **big.Int
		src string
	}{
		{&out.Amount, a.Amount},
		{&out.Nonce, a.Nonce},
		{&out.Fee, a.Fee},
	} {
		if *f.dst, err = ParseUint128(f.src); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseTimestamp(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
