// Package identity derives the canonical cross-chain identifiers.
//
// Both chain families must produce byte-identical results for the same
// inputs. EvmHasher and CosmosHasher are written independently so that
// tests can check the parity the protocol depends on.
package identity

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/TEENet-io/watchtower-go/agreement"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

const (
	evmChainKeyTag    = "EVM"
	cosmosChainKeyTag = "COSMOS"

	// native address widths before left-padding to 32 bytes
	evmAddressWidth    = 20
	cosmosAddressWidth = 32
)

var (
	ErrAddressTooLong  = errors.New("address longer than the chain's native width")
	ErrEmptyChainID    = errors.New("empty chain id")
	ErrEmptyPrefix     = errors.New("empty address prefix")
	ErrBadEvmChainID   = errors.New("evm chain id must be a decimal integer")
	ErrUnknownFamily   = errors.New("unknown chain family")
	ErrIntegerOverflow = errors.New("integer does not fit 32 bytes")
	ErrNegativeInteger = errors.New("negative integer")
	ErrMissingInteger  = errors.New("missing integer input")
)

// Hasher computes chain keys and withdraw hashes.
type Hasher interface {
	ChainKey(family agreement.ChainFamily, chainID string, prefix string) (agreement.ChainKey, error)
	WithdrawHash(
		src agreement.ChainKey,
		dest agreement.ChainKey,
		destToken ethcommon.Hash,
		destAccount ethcommon.Hash,
		amount *big.Int,
		nonce *big.Int,
	) (ethcommon.Hash, error)
}

// Default is the hasher used by services. Both implementations agree, so the
// choice only matters for which library computes keccak.
var Default Hasher = &EvmHasher{}

// NativeWidth returns the native address width of a chain family.
func NativeWidth(family agreement.ChainFamily) (int, error) {
	switch family {
	case agreement.FamilyEVM:
		return evmAddressWidth, nil
	case agreement.FamilyCosmos:
		return cosmosAddressWidth, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
}

// PadAddress left-pads a native address to 32 bytes.
func PadAddress(family agreement.ChainFamily, raw []byte) (ethcommon.Hash, error) {
	width, err := NativeWidth(family)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	if len(raw) > width {
		return ethcommon.Hash{}, fmt.Errorf("%w: %d > %d bytes", ErrAddressTooLong, len(raw), width)
	}
	return ethcommon.BytesToHash(raw), nil
}

// WithdrawHashOf is a convenience for hashing a deposit.
func WithdrawHashOf(h Hasher, d *agreement.Deposit) (ethcommon.Hash, error) {
	return h.WithdrawHash(d.SrcChainKey, d.DestChainKey, d.DestTokenAddress, d.DestAccount, d.Amount, d.Nonce)
}

// ApprovalHashOf recomputes the withdraw hash from an approval's own fields.
func ApprovalHashOf(h Hasher, a *agreement.WithdrawApproval) (ethcommon.Hash, error) {
	return h.WithdrawHash(a.SrcChainKey, a.DestChainKey, a.Token, a.DestAccount, a.Amount, a.Nonce)
}

func checkInteger(v *big.Int) error {
	if v == nil {
		return ErrMissingInteger
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeInteger, v)
	}
	if v.BitLen() > 256 {
		return fmt.Errorf("%w: %v", ErrIntegerOverflow, v)
	}
	return nil
}
