package identity

import (
	"fmt"
	"math/big"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// EvmHasher mirrors the Solidity side: keccak256(abi.encodePacked(...)).
type EvmHasher struct{}

func (h *EvmHasher) ChainKey(family agreement.ChainFamily, chainID string, prefix string) (agreement.ChainKey, error) {
	if chainID == "" {
		return agreement.ChainKey{}, ErrEmptyChainID
	}

	switch family {
	case agreement.FamilyEVM:
		id, ok := new(big.Int).SetString(chainID, 10)
		if !ok {
			return agreement.ChainKey{}, fmt.Errorf("%w: %q", ErrBadEvmChainID, chainID)
		}
		if err := checkInteger(id); err != nil {
			return agreement.ChainKey{}, err
		}
		return agreement.ChainKey(crypto.Keccak256Hash([]byte(evmChainKeyTag), math.U256Bytes(id))), nil
	case agreement.FamilyCosmos:
		if prefix == "" {
			return agreement.ChainKey{}, ErrEmptyPrefix
		}
		return agreement.ChainKey(crypto.Keccak256Hash(
			[]byte(cosmosChainKeyTag),
			[]byte(chainID),
			[]byte(prefix),
		)), nil
	}

	return agreement.ChainKey{}, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
}

func (h *EvmHasher) WithdrawHash(
	src agreement.ChainKey,
	dest agreement.ChainKey,
	destToken ethcommon.Hash,
	destAccount ethcommon.Hash,
	amount *big.Int,
	nonce *big.Int,
) (ethcommon.Hash, error) {
	if err := checkInteger(amount); err != nil {
		return ethcommon.Hash{}, err
	}
	if err := checkInteger(nonce); err != nil {
		return ethcommon.Hash{}, err
	}

	packed, err := common.EncodePacked(
		[32]byte(src),
		[32]byte(dest),
		destToken,
		destAccount,
		amount,
		nonce,
	)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}
