package cosmosman

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/identity"
	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/cosmos/go-bip39"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// KeyFromMnemonic derives the secp256k1 key at path.
func KeyFromMnemonic(mnemonic, path string) (*secp256k1.PrivKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	if path == "" {
		path = DefaultHDPath
	}
	seed := bip39.NewSeed(mnemonic, "")
	master, ch := hd.ComputeMastersFromSeed(seed)
	bz, err := hd.DerivePrivateKeyForPath(master, ch, path)
	if err != nil {
		return nil, err
	}
	return &secp256k1.PrivKey{Key: bz}, nil
}

// NewMnemonic returns a fresh 24-word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

func AccountAddress(prefix string, key *secp256k1.PrivKey) (string, error) {
	return bech32.ConvertAndEncode(prefix, key.PubKey().Address())
}

// AddressToKey left-pads the bytes of a bech32 address of the given prefix.
func AddressToKey(prefix, addr string) (ethcommon.Hash, error) {
	hrp, bz, err := bech32.DecodeAndConvert(addr)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	if hrp != prefix {
		return ethcommon.Hash{}, fmt.Errorf("address %s: prefix %q, want %q", addr, hrp, prefix)
	}
	return identity.PadAddress(agreement.FamilyCosmos, bz)
}

// KeyToAddress renders key as bech32. Keys with 12 leading zero bytes are
// 20-byte account addresses, anything else a 32-byte contract address.
func KeyToAddress(prefix string, key ethcommon.Hash) (string, error) {
	if key == (ethcommon.Hash{}) {
		return "", errors.New("empty address")
	}
	bz := key.Bytes()
	if ethcommon.BytesToHash(bz[12:]) == key {
		bz = bz[12:]
	}
	return bech32.ConvertAndEncode(prefix, bz)
}

var sequenceMismatch = regexp.MustCompile(`account sequence mismatch, expected (\d+), got (\d+)`)

// expectedSequence extracts the sequence the node wants from a mismatch log.
func expectedSequence(log string) (uint64, bool) {
	match := sequenceMismatch.FindStringSubmatch(log)
	if len(match) < 3 {
		return 0, false
	}
	seq, err := strconv.ParseUint(match[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}
