package common

import (
	"crypto/rand"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// The returned string has No 0x prefix
func ByteSliceToPureHexStr(b []byte) string {
	return Trim0xPrefix(ethcommon.Bytes2Hex(b))
}

// HexStrToBytes32 converts a hex string (with/without prefix 0x) to [32]byte.
// Shorter input is left-padded with zeros.
func HexStrToBytes32(hexStr string) [32]byte {
	var bytes32 [32]byte
	b := ethcommon.FromHex(Prepend0xPrefix(hexStr))
	copy(bytes32[:], ethcommon.LeftPadBytes(b, 32))
	return bytes32
}

// HexStrToBigInt converts a hex string (with/without prefix 0x) to *big.Int
func HexStrToBigInt(hexStr string) *big.Int {
	bigInt, ok := new(big.Int).SetString(Trim0xPrefix(hexStr), 16)
	if !ok {
		return nil
	}
	return bigInt
}

// BigIntToPaddedHex renders v as a 64-char hex string without prefix.
// Lexical order of the output equals numeric order for values below 2^256.
func BigIntToPaddedHex(v *big.Int) string {
	var b [32]byte
	v.FillBytes(b[:])
	return ethcommon.Bytes2Hex(b[:])
}

// Trim 0x or 0X prefix off the string.
func Trim0xPrefix(str string) string {
	s := strings.TrimPrefix(str, "0x")
	return strings.TrimPrefix(s, "0X")
}

func Prepend0xPrefix(str string) string {
	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		return str
	}
	return "0x" + str
}

// RandBytes32 generates [32]byte with random values
func RandBytes32() [32]byte {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return [32]byte{}
	}
	return b
}

func RandBytes(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil
	}
	return b
}

func RandBigInt(byteNum int) *big.Int {
	b := RandBytes(byteNum)
	return new(big.Int).SetBytes(b)
}

// Shorten shortens a hex string so that both sides have n characters and
// the rest is replaced with "..."
func Shorten(hexStr string, n int) string {
	str := Trim0xPrefix(hexStr)

	if len(str) <= n*2 {
		return Prepend0xPrefix(str)
	}
	return Prepend0xPrefix(str[:n] + "..." + str[len(str)-n:])
}

func BigIntClone(bigInt *big.Int) *big.Int {
	if bigInt == nil {
		return nil
	}
	return new(big.Int).Set(bigInt)
}

// BigIntEqual treats nil as zero.
func BigIntEqual(a, b *big.Int) bool {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	return a.Cmp(b) == 0
}
