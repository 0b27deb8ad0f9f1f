package identity

import (
	"math/big"
	"testing"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randTuple() (agreement.ChainKey, agreement.ChainKey, ethcommon.Hash, ethcommon.Hash, *big.Int, *big.Int) {
	return agreement.ChainKey(common.RandBytes32()),
		agreement.ChainKey(common.RandBytes32()),
		ethcommon.Hash(common.RandBytes32()),
		ethcommon.Hash(common.RandBytes32()),
		common.RandBigInt(32),
		common.RandBigInt(8)
}

func TestWithdrawHashParity(t *testing.T) {
	evm := &EvmHasher{}
	cosmos := &CosmosHasher{}

	for i := 0; i < 256; i++ {
		src, dest, token, account, amount, nonce := randTuple()

		h1, err := evm.WithdrawHash(src, dest, token, account, amount, nonce)
		require.NoError(t, err)
		h2, err := cosmos.WithdrawHash(src, dest, token, account, amount, nonce)
		require.NoError(t, err)
		assert.Equal(t, h1, h2, "iteration %d", i)
	}

	// boundaries
	maxU256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	for _, v := range []*big.Int{big.NewInt(0), big.NewInt(1), maxU256} {
		h1, err := evm.WithdrawHash(agreement.ChainKey{}, agreement.ChainKey{}, ethcommon.Hash{}, ethcommon.Hash{}, v, v)
		require.NoError(t, err)
		h2, err := cosmos.WithdrawHash(agreement.ChainKey{}, agreement.ChainKey{}, ethcommon.Hash{}, ethcommon.Hash{}, v, v)
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
	}
}

func TestWithdrawHashLayout(t *testing.T) {
	src, dest, token, account, _, _ := randTuple()
	amount := big.NewInt(1_000_000)
	nonce := big.NewInt(7)

	var buf []byte
	buf = append(buf, src[:]...)
	buf = append(buf, dest[:]...)
	buf = append(buf, token[:]...)
	buf = append(buf, account[:]...)
	buf = append(buf, ethcommon.LeftPadBytes(amount.Bytes(), 32)...)
	buf = append(buf, ethcommon.LeftPadBytes(nonce.Bytes(), 32)...)
	assert.Len(t, buf, 192)

	h, err := Default.WithdrawHash(src, dest, token, account, amount, nonce)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(buf), h)

	// every field participates
	h2, err := Default.WithdrawHash(src, dest, token, account, big.NewInt(900_000), nonce)
	require.NoError(t, err)
	assert.NotEqual(t, h, h2)
	h3, err := Default.WithdrawHash(dest, src, token, account, amount, nonce)
	require.NoError(t, err)
	assert.NotEqual(t, h, h3)
}

func TestWithdrawHashRejectsBadIntegers(t *testing.T) {
	for _, hasher := range []Hasher{&EvmHasher{}, &CosmosHasher{}} {
		_, err := hasher.WithdrawHash(agreement.ChainKey{}, agreement.ChainKey{}, ethcommon.Hash{}, ethcommon.Hash{}, big.NewInt(-1), big.NewInt(1))
		assert.ErrorIs(t, err, ErrNegativeInteger)

		tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
		_, err = hasher.WithdrawHash(agreement.ChainKey{}, agreement.ChainKey{}, ethcommon.Hash{}, ethcommon.Hash{}, big.NewInt(1), tooBig)
		assert.ErrorIs(t, err, ErrIntegerOverflow)

		_, err = hasher.WithdrawHash(agreement.ChainKey{}, agreement.ChainKey{}, ethcommon.Hash{}, ethcommon.Hash{}, nil, big.NewInt(1))
		assert.ErrorIs(t, err, ErrMissingInteger)
	}
}

func TestChainKeyParity(t *testing.T) {
	evm := &EvmHasher{}
	cosmos := &CosmosHasher{}

	cases := []struct {
		family  agreement.ChainFamily
		chainID string
		prefix  string
	}{
		{agreement.FamilyEVM, "1", ""},
		{agreement.FamilyEVM, "1337", ""},
		{agreement.FamilyEVM, "115792089237316195423570985008687907853269984665640564039457584007913129639935", ""},
		{agreement.FamilyCosmos, "osmosis-1", "osmo"},
		{agreement.FamilyCosmos, "wasmd-testnet", "wasm"},
	}
	for _, c := range cases {
		k1, err := evm.ChainKey(c.family, c.chainID, c.prefix)
		require.NoError(t, err)
		k2, err := cosmos.ChainKey(c.family, c.chainID, c.prefix)
		require.NoError(t, err)
		assert.Equal(t, k1, k2, c.chainID)
		assert.False(t, k1.IsZero())
	}
}

func TestChainKeyDerivation(t *testing.T) {
	k, err := Default.ChainKey(agreement.FamilyEVM, "1", "")
	require.NoError(t, err)
	expected := crypto.Keccak256Hash([]byte("EVM"), ethcommon.LeftPadBytes([]byte{1}, 32))
	assert.Equal(t, agreement.ChainKey(expected), k)

	k, err = Default.ChainKey(agreement.FamilyCosmos, "osmosis-1", "osmo")
	require.NoError(t, err)
	expected = crypto.Keccak256Hash([]byte("COSMOSosmosis-1osmo"))
	assert.Equal(t, agreement.ChainKey(expected), k)

	// prefix is part of the identity
	k2, err := Default.ChainKey(agreement.FamilyCosmos, "osmosis-1", "osmo2")
	require.NoError(t, err)
	assert.NotEqual(t, k, k2)
}

func TestChainKeyErrors(t *testing.T) {
	for _, hasher := range []Hasher{&EvmHasher{}, &CosmosHasher{}} {
		_, err := hasher.ChainKey(agreement.FamilyEVM, "", "")
		assert.ErrorIs(t, err, ErrEmptyChainID)

		_, err = hasher.ChainKey(agreement.FamilyEVM, "mainnet", "")
		assert.ErrorIs(t, err, ErrBadEvmChainID)

		_, err = hasher.ChainKey(agreement.FamilyCosmos, "osmosis-1", "")
		assert.ErrorIs(t, err, ErrEmptyPrefix)

		_, err = hasher.ChainKey(agreement.ChainFamily("solana"), "1", "")
		assert.ErrorIs(t, err, ErrUnknownFamily)
	}
}

func TestPadAddress(t *testing.T) {
	addr := ethcommon.HexToAddress("0x00000000000000000000000000000000deadbeef")
	padded, err := PadAddress(agreement.FamilyEVM, addr.Bytes())
	require.NoError(t, err)
	assert.Equal(t, addr.Bytes(), padded[12:])
	assert.Equal(t, make([]byte, 12), padded[:12])

	_, err = PadAddress(agreement.FamilyEVM, make([]byte, 21))
	assert.ErrorIs(t, err, ErrAddressTooLong)

	_, err = PadAddress(agreement.FamilyCosmos, make([]byte, 32))
	assert.NoError(t, err)
	_, err = PadAddress(agreement.FamilyCosmos, make([]byte, 33))
	assert.ErrorIs(t, err, ErrAddressTooLong)
}

func TestDepositAndApprovalHashAgree(t *testing.T) {
	src, dest, token, account, amount, nonce := randTuple()
	d := &agreement.Deposit{
		SrcChainKey:      src,
		DestChainKey:     dest,
		DestTokenAddress: token,
		DestAccount:      account,
		Amount:           amount,
		Nonce:            nonce,
	}
	a := &agreement.WithdrawApproval{
		SrcChainKey:  src,
		DestChainKey: dest,
		Token:        token,
		Recipient:    account,
		DestAccount:  account,
		Amount:       amount,
		Nonce:        nonce,
	}
	h1, err := WithdrawHashOf(Default, d)
	require.NoError(t, err)
	h2, err := ApprovalHashOf(&CosmosHasher{}, a)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
