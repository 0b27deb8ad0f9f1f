package etherman

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/identity"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// StringToPrivateKey parses a hex private key, with or without 0x.
func StringToPrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
}

func NewAuth(sk *ecdsa.PrivateKey, chainID *big.Int) (*bind.TransactOpts, error) {
	return bind.NewKeyedTransactorWithChainID(sk, chainID)
}

func GenPrivateKeys(n int) []*ecdsa.PrivateKey {
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		keys[i], _ = crypto.GenerateKey()
	}
	return keys
}

// AddressToKey left-pads an EVM address to its 32-byte form.
func AddressToKey(addr common.Address) common.Hash {
	key, _ := identity.PadAddress(agreement.FamilyEVM, addr.Bytes())
	return key
}

// KeyToAddress is the inverse of AddressToKey. It fails when key does not
// hold a 20-byte value.
func KeyToAddress(key common.Hash) (common.Address, error) {
	for _, b := range key[:common.HashLength-common.AddressLength] {
		if b != 0 {
			return common.Address{}, fmt.Errorf("not an evm address: %s", key.Hex())
		}
	}
	return common.BytesToAddress(key[common.HashLength-common.AddressLength:]), nil
}
