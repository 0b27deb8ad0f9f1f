package etherman

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	// Name of the chain in logs and metrics
	Name string

	// URL is the URL of the Ethereum node, http(s) or ws(s).
	// Push subscriptions need ws(s).
	URL string

	// ChainID expected from the node, 0 to accept what the node reports
	ChainID uint64

	// BridgeContractAddress is the deployed bridge contract address
	BridgeContractAddress common.Address

	// PrivateKey in hex signs submissions; empty for a read-only adapter
	PrivateKey string

	// GasLimit of submissions, 0 to estimate
	GasLimit uint64

	// GasPrice of submissions, nil to let the node suggest
	GasPrice *big.Int

	// DialTimeout bounds the initial connection
	DialTimeout time.Duration
}
