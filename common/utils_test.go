package common

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestHexStrToBytes32(t *testing.T) {
	b := HexStrToBytes32("0x01")
	assert.Equal(t, byte(1), b[31])
	assert.Equal(t, [31]byte{}, [31]byte(b[:31]))

	full := RandBytes32()
	assert.Equal(t, full, HexStrToBytes32(ethcommon.Bytes2Hex(full[:])))
}

func TestBigIntToPaddedHexOrdering(t *testing.T) {
	a := BigIntToPaddedHex(big.NewInt(9))
	b := BigIntToPaddedHex(big.NewInt(10))
	c := BigIntToPaddedHex(big.NewInt(256))
	assert.Len(t, a, 64)
	assert.True(t, a < b)
	assert.True(t, b < c)
	assert.Equal(t, big.NewInt(256), HexStrToBigInt(c))
}

func TestEncodePacked(t *testing.T) {
	h := ethcommon.HexToHash("0xabcd")
	out, err := EncodePacked(h, big.NewInt(1), []byte{0x01, 0x02})
	assert.NoError(t, err)
	assert.Len(t, out, 66)
	assert.Equal(t, h[:], out[:32])
	assert.Equal(t, byte(1), out[63])

	_, err = EncodePacked(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrUint256OutOfRange)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = EncodePacked(tooBig)
	assert.ErrorIs(t, err, ErrUint256OutOfRange)

	_, err = EncodePacked("str")
	assert.Error(t, err)
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "0x1234...cdef", Shorten("0x1234567890abcdef", 4))
	assert.Equal(t, "0x12", Shorten("12", 4))
}
