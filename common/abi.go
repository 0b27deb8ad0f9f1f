package common

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

var ErrUint256OutOfRange = errors.New("integer out of uint256 range")

// CheckUint256 reports whether v fits a uint256 slot.
func CheckUint256(v *big.Int) error {
	if v == nil || v.Sign() < 0 || v.BitLen() > 256 {
		return fmt.Errorf("%w: %v", ErrUint256OutOfRange, v)
	}
	return nil
}

// EncodePacked concatenates fixed-width values the way abi.encodePacked does
// for bytes32 and uint256 arguments.
func EncodePacked(values ...interface{}) ([]byte, error) {
	var res [][]byte
	for _, value := range values {
		switch v := value.(type) {
		case []byte:
			res = append(res, v)
		case [32]byte:
			res = append(res, v[:])
		case ethcommon.Hash:
			res = append(res, v[:])
		case ethcommon.Address:
			res = append(res, ethcommon.LeftPadBytes(v[:], 32))
		case *big.Int:
			if err := CheckUint256(v); err != nil {
				return nil, err
			}
			res = append(res, math.U256Bytes(new(big.Int).Set(v)))
		default:
			return nil, fmt.Errorf("unsupported type for packed encoding: %T", value)
		}
	}
	return bytes.Join(res, nil), nil
}
