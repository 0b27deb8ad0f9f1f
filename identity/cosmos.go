package identity

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/TEENet-io/watchtower-go/agreement"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// CosmosHasher mirrors the CosmWasm contract, which hashes with the legacy
// keccak256 from the sha3 family and writes integers as 32-byte big-endian.
type CosmosHasher struct{}

func (h *CosmosHasher) ChainKey(family agreement.ChainFamily, chainID string, prefix string) (agreement.ChainKey, error) {
	if chainID == "" {
		return agreement.ChainKey{}, ErrEmptyChainID
	}

	hasher := sha3.NewLegacyKeccak256()
	switch family {
	case agreement.FamilyEVM:
		id, err := strconv.ParseUint(chainID, 10, 64)
		if err != nil {
			// chain ids beyond uint64 are still valid uint256 values
			wide, ok := new(big.Int).SetString(chainID, 10)
			if !ok || wide.Sign() < 0 || wide.BitLen() > 256 {
				return agreement.ChainKey{}, fmt.Errorf("%w: %q", ErrBadEvmChainID, chainID)
			}
			hasher.Write([]byte(evmChainKeyTag))
			hasher.Write(uint256BE(wide))
			break
		}
		var word [32]byte
		for i := 0; i < 8; i++ {
			word[31-i] = byte(id >> (8 * i))
		}
		hasher.Write([]byte(evmChainKeyTag))
		hasher.Write(word[:])
	case agreement.FamilyCosmos:
		if prefix == "" {
			return agreement.ChainKey{}, ErrEmptyPrefix
		}
		hasher.Write([]byte(cosmosChainKeyTag))
		hasher.Write([]byte(chainID))
		hasher.Write([]byte(prefix))
	default:
		return agreement.ChainKey{}, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}

	var key agreement.ChainKey
	copy(key[:], hasher.Sum(nil))
	return key, nil
}

func (h *CosmosHasher) WithdrawHash(
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

	buf := make([]byte, 0, 6*32)
	buf = append(buf, src[:]...)
	buf = append(buf, dest[:]...)
	buf = append(buf, destToken[:]...)
	buf = append(buf, destAccount[:]...)
	buf = append(buf, uint256BE(amount)...)
	buf = append(buf, uint256BE(nonce)...)

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(buf)

	return ethcommon.BytesToHash(hasher.Sum(nil)), nil
}

func uint256BE(v *big.Int) []byte {
	out := make([]byte, 32)
	return v.FillBytes(out)
}
