package cosmosman

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	abci "github.com/tendermint/tendermint/abci/types"
)

const (
	wasmEventPrefix = "wasm-"
	contractAttr    = "_contract_address"

	EventDeposit                   = "deposit"
	EventWithdrawApproved          = "withdraw_approved"
	EventWithdrawApprovalCancelled = "withdraw_approval_cancelled"
	EventWithdrawExecuted          = "withdraw_executed"
	EventWithdrawApprovalReenabled = "withdraw_approval_reenabled"
)

func attributes(ev abci.Event) map[string]string {
	attrs := make(map[string]string, len(ev.Attributes))
	for _, a := range ev.Attributes {
		attrs[string(a.Key)] = string(a.Value)
	}
	return attrs
}

// bridgeEvent reports the bridge event name of ev, or false when ev was not
// emitted by contract.
func bridgeEvent(ev abci.Event, contract string) (string, bool) {
	if !strings.HasPrefix(ev.Type, wasmEventPrefix) {
		return "", false
	}
	if attributes(ev)[contractAttr] != contract {
		return "", false
	}
	return strings.TrimPrefix(ev.Type, wasmEventPrefix), true
}

type attrReader struct {
	attrs map[string]string
	err   error
}

func (r *attrReader) get(key string) string {
	v, ok := r.attrs[key]
	if !ok && r.err == nil {
		r.err = fmt.Errorf("missing attribute %s", key)
	}
	return v
}

func (r *attrReader) bytes32(key string) [32]byte {
	s := r.get(key)
	if r.err != nil {
		return [32]byte{}
	}
	v, err := ParseBytes32(s)
	if err != nil {
		r.err = fmt.Errorf("attribute %s: %w", key, err)
	}
	return v
}

func (r *attrReader) uint128(key string) *big.Int {
	s := r.get(key)
	if r.err != nil {
		return nil
	}
	n, err := ParseUint128(s)
	if err != nil {
		r.err = fmt.Errorf("attribute %s: %w", key, err)
	}
	return n
}

func (r *attrReader) uint64(key string) uint64 {
	s := r.get(key)
	if r.err != nil {
		return 0
	}
	n, err := parseTimestamp(s)
	if err != nil {
		r.err = fmt.Errorf("attribute %s: %w", key, err)
	}
	return n
}

func (r *attrReader) bool(key string) bool {
	s := r.get(key)
	if r.err != nil {
		return false
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	r.err = fmt.Errorf("attribute %s: invalid bool %q", key, s)
	return false
}

func (cosmosman *Cosmosman) decode(raw chainadapter.RawEvent) (agreement.Event, error) {
	ev, ok := raw.Native.(abci.Event)
	if !ok {
		return nil, fmt.Errorf("%w: not an abci event", chainadapter.ErrMalformedEvent)
	}
	name, ok := bridgeEvent(ev, cosmosman.contract)
	if !ok {
		return nil, chainadapter.ErrUnknownEvent
	}

	meta := agreement.EventMeta{
		ChainKey: cosmosman.info.ChainKey,
		Height:   raw.Height,
		TxHash:   raw.TxHash,
		Index:    raw.Index,
	}
	r := &attrReader{attrs: attributes(ev)}

	var out agreement.Event
	switch name {
	case EventDeposit:
		out = &agreement.DepositObserved{
			EventMeta: meta,
			Deposit: agreement.Deposit{
				SrcChainKey:      cosmosman.info.ChainKey,
				DestChainKey:     r.bytes32("dest_chain_key"),
				DestTokenAddress: r.bytes32("dest_token_address"),
				DestAccount:      r.bytes32("dest_account"),
				Amount:           r.uint128("amount"),
				Nonce:            r.uint128("nonce"),
				DepositedAt:      r.uint64("deposited_at"),
			},
		}
	case EventWithdrawApproved:
		out = &agreement.WithdrawApprovedObserved{
			EventMeta: meta,
			Approval: agreement.WithdrawApproval{
				WithdrawHash:     r.bytes32("withdraw_hash"),
				SrcChainKey:      r.bytes32("src_chain_key"),
				DestChainKey:     cosmosman.info.ChainKey,
				Token:            r.bytes32("token"),
				Recipient:        r.bytes32("recipient"),
				DestAccount:      r.bytes32("dest_account"),
				Amount:           r.uint128("amount"),
				Nonce:            r.uint128("nonce"),
				Fee:              r.uint128("fee"),
				FeeRecipient:     r.bytes32("fee_recipient"),
				DeductFromAmount: r.bool("deduct_from_amount"),
				ApprovedAt:       r.uint64("approved_at"),
			},
		}
	case EventWithdrawApprovalCancelled:
		out = &agreement.WithdrawCancelledObserved{EventMeta: meta, WithdrawHash: r.bytes32("withdraw_hash")}
	case EventWithdrawExecuted:
		out = &agreement.WithdrawExecutedObserved{EventMeta: meta, WithdrawHash: r.bytes32("withdraw_hash")}
	case EventWithdrawApprovalReenabled:
		out = &agreement.WithdrawReenabledObserved{
			EventMeta:    meta,
			WithdrawHash: r.bytes32("withdraw_hash"),
			ApprovedAt:   r.uint64("approved_at"),
		}
	default:
		return nil, chainadapter.ErrUnknownEvent
	}

	if r.err != nil {
		return nil, fmt.Errorf("%w: %s: %v", chainadapter.ErrMalformedEvent, name, r.err)
	}
	return out, nil
}
