package statedb

import (
	"math/big"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Rows are shared by the SQLite and gorm stores.
// 32-byte values and integers are 64-char hex strings without the 0x prefix,
// so lexical order on amount and nonce columns is numeric order.

type watermarkRow struct {
	Stream   string `gorm:"primaryKey;size:64"`
	ChainKey string `gorm:"primaryKey;size:64"`
	Height   int64  `gorm:"not null"`
}

func (watermarkRow) TableName() string { return "watermarks" }

type depositRow struct {
	SrcChainKey  string `gorm:"primaryKey;size:64"`
	Nonce        string `gorm:"primaryKey;size:64"`
	DestChainKey string `gorm:"size:64;not null"`
	DestToken    string `gorm:"size:64;not null"`
	DestAccount  string `gorm:"size:64;not null"`
	Amount       string `gorm:"size:64;not null"`
	DepositedAt  int64  `gorm:"not null"`
	WithdrawHash string `gorm:"size:64;not null;index"`
	Height       int64  `gorm:"not null"`
	TxHash       string `gorm:"size:128"`
	Status       string `gorm:"size:16;not null;index"`
	Reason       string
	UpdatedUnix  int64 `gorm:"column:updated_at"`
}

func (depositRow) TableName() string { return "deposits" }

type approvalRow struct {
	WithdrawHash     string `gorm:"primaryKey;size:64"`
	SrcChainKey      string `gorm:"size:64;not null"`
	DestChainKey     string `gorm:"size:64;not null;index"`
	Token            string `gorm:"size:64;not null"`
	Recipient        string `gorm:"size:64;not null"`
	DestAccount      string `gorm:"size:64;not null"`
	Amount           string `gorm:"size:64;not null"`
	Nonce            string `gorm:"size:64;not null"`
	Fee              string `gorm:"size:64;not null"`
	FeeRecipient     string `gorm:"size:64;not null"`
	ApprovedAt       int64  `gorm:"not null"`
	DeductFromAmount bool
	State            string `gorm:"size:16;not null;index"`
	Verdict          string `gorm:"size:16;not null;index"`
	Reason           string
	Reenabled        bool
	Height           int64
	TxHash           string `gorm:"size:128"`
	UpdatedUnix      int64  `gorm:"column:updated_at"`
}

func (approvalRow) TableName() string { return "approvals" }

type nonceUsedRow struct {
	SrcChainKey string `gorm:"primaryKey;size:64"`
	Nonce       string `gorm:"primaryKey;size:64"`
}

func (nonceUsedRow) TableName() string { return "nonce_used" }

type submissionRow struct {
	Kind         string `gorm:"primaryKey;size:16"`
	WithdrawHash string `gorm:"primaryKey;size:64"`
	ChainKey     string `gorm:"size:64;not null"`
	AttemptID    string `gorm:"size:36;not null"`
	TxHash       string `gorm:"size:128"`
	SentHeight   int64
	Status       string `gorm:"size:16;not null;index"`
	Attempts     int
	LastError    string
	CreatedUnix  int64 `gorm:"column:created_at"`
	UpdatedUnix  int64 `gorm:"column:updated_at"`
}

func (submissionRow) TableName() string { return "submissions" }

type leaseRow struct {
	LeaseKey  string `gorm:"primaryKey;size:160"`
	Owner     string `gorm:"size:64;not null"`
	ExpiresAt int64  `gorm:"not null"`
}

func (leaseRow) TableName() string { return "leases" }

func hexOf(b [32]byte) string {
	return common.ByteSliceToPureHexStr(b[:])
}

func intHex(v *big.Int) string {
	if v == nil {
		return common.BigIntToPaddedHex(big.NewInt(0))
	}
	return common.BigIntToPaddedHex(v)
}

func hashOf(s string) ethcommon.Hash {
	return common.HexStrToBytes32(s)
}

func chainKeyOf(s string) agreement.ChainKey {
	return common.HexStrToBytes32(s)
}

func intOf(s string) *big.Int {
	v := common.HexStrToBigInt(s)
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func toDepositRow(rec *DepositRecord) *depositRow {
	d := &rec.Deposit
	return &depositRow{
		SrcChainKey:  hexOf(d.SrcChainKey),
		Nonce:        intHex(d.Nonce),
		DestChainKey: hexOf(d.DestChainKey),
		DestToken:    hexOf(d.DestTokenAddress),
		DestAccount:  hexOf(d.DestAccount),
		Amount:       intHex(d.Amount),
		DepositedAt:  int64(d.DepositedAt),
		WithdrawHash: hexOf(rec.WithdrawHash),
		Height:       int64(rec.Height),
		TxHash:       rec.TxHash,
		Status:       string(rec.Status),
		Reason:       rec.Reason,
		UpdatedUnix:  rec.UpdatedAt,
	}
}

func (r *depositRow) record() *DepositRecord {
	return &DepositRecord{
		Deposit: agreement.Deposit{
			SrcChainKey:      chainKeyOf(r.SrcChainKey),
			DestChainKey:     chainKeyOf(r.DestChainKey),
			DestTokenAddress: hashOf(r.DestToken),
			DestAccount:      hashOf(r.DestAccount),
			Amount:           intOf(r.Amount),
			Nonce:            intOf(r.Nonce),
			DepositedAt:      uint64(r.DepositedAt),
		},
		WithdrawHash: hashOf(r.WithdrawHash),
		Height:       uint64(r.Height),
		TxHash:       r.TxHash,
		Status:       DepositStatus(r.Status),
		Reason:       r.Reason,
		UpdatedAt:    r.UpdatedUnix,
	}
}

func toApprovalRow(rec *ApprovalRecord) *approvalRow {
	a := &rec.Approval
	verdict := rec.Verdict
	if verdict == "" {
		verdict = agreement.VerdictUnverified
	}
	return &approvalRow{
		WithdrawHash:     hexOf(a.WithdrawHash),
		SrcChainKey:      hexOf(a.SrcChainKey),
		DestChainKey:     hexOf(a.DestChainKey),
		Token:            hexOf(a.Token),
		Recipient:        hexOf(a.Recipient),
		DestAccount:      hexOf(a.DestAccount),
		Amount:           intHex(a.Amount),
		Nonce:            intHex(a.Nonce),
		Fee:              intHex(a.Fee),
		FeeRecipient:     hexOf(a.FeeRecipient),
		ApprovedAt:       int64(a.ApprovedAt),
		DeductFromAmount: a.DeductFromAmount,
		State:            string(rec.State),
		Verdict:          string(verdict),
		Reason:           rec.Reason,
		Reenabled:        rec.Reenabled,
		Height:           int64(rec.Height),
		TxHash:           rec.TxHash,
		UpdatedUnix:      rec.UpdatedAt,
	}
}

func (r *approvalRow) record() *ApprovalRecord {
	state := agreement.ApprovalState(r.State)
	return &ApprovalRecord{
		Approval: agreement.WithdrawApproval{
			WithdrawHash:     hashOf(r.WithdrawHash),
			SrcChainKey:      chainKeyOf(r.SrcChainKey),
			DestChainKey:     chainKeyOf(r.DestChainKey),
			Token:            hashOf(r.Token),
			Recipient:        hashOf(r.Recipient),
			DestAccount:      hashOf(r.DestAccount),
			Amount:           intOf(r.Amount),
			Nonce:            intOf(r.Nonce),
			Fee:              intOf(r.Fee),
			FeeRecipient:     hashOf(r.FeeRecipient),
			ApprovedAt:       uint64(r.ApprovedAt),
			DeductFromAmount: r.DeductFromAmount,
			Cancelled:        state == agreement.ApprovalCancelled,
			Executed:         state == agreement.ApprovalExecuted,
		},
		State:     state,
		Verdict:   agreement.Verdict(r.Verdict),
		Reason:    r.Reason,
		Reenabled: r.Reenabled,
		Height:    uint64(r.Height),
		TxHash:    r.TxHash,
		UpdatedAt: r.UpdatedUnix,
	}
}

func toSubmissionRow(s *Submission) *submissionRow {
	return &submissionRow{
		Kind:         string(s.Kind),
		WithdrawHash: hexOf(s.WithdrawHash),
		ChainKey:     hexOf(s.ChainKey),
		AttemptID:    s.AttemptID,
		TxHash:       s.TxHash,
		SentHeight:   int64(s.SentHeight),
		Status:       string(s.Status),
		Attempts:     s.Attempts,
		LastError:    s.LastError,
		CreatedUnix:  s.CreatedAt,
		UpdatedUnix:  s.UpdatedAt,
	}
}

func (r *submissionRow) record() *Submission {
	return &Submission{
		Kind:         chainadapter.CallKind(r.Kind),
		WithdrawHash: hashOf(r.WithdrawHash),
		ChainKey:     chainKeyOf(r.ChainKey),
		AttemptID:    r.AttemptID,
		TxHash:       r.TxHash,
		SentHeight:   uint64(r.SentHeight),
		Status:       SubmissionStatus(r.Status),
		Attempts:     r.Attempts,
		LastError:    r.LastError,
		CreatedAt:    r.CreatedUnix,
		UpdatedAt:    r.UpdatedUnix,
	}
}

func stringsOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
