package cosmosman

import "time"

const (
	DefaultHDPath          = "m/44'/118'/0'/0/0"
	DefaultGasLimit        = 500000
	DefaultPageSize        = 100
	DefaultConfirmInterval = time.Second
)

type Config struct {
	// Name of the chain in logs and metrics
	Name string

	ChainID       string
	AddressPrefix string

	// RPCURL is the tendermint rpc endpoint, GRPCURL the node's gRPC endpoint
	RPCURL  string
	GRPCURL string

	// ContractAddress is the bech32 address of the bridge contract
	ContractAddress string

	// Mnemonic signs submissions; empty for a read-only adapter
	Mnemonic string
	HDPath   string

	GasLimit uint64
	// GasPrice is a decimal coin such as "0.025uatom"
	GasPrice string

	// PageSize of tx searches
	PageSize int
	// ConfirmInterval between tx lookups after broadcast
	ConfirmInterval time.Duration
	DialTimeout     time.Duration
}

func (cfg *Config) withDefaults() Config {
	c := *cfg
	if c.HDPath == "" {
		c.HDPath = DefaultHDPath
	}
	if c.GasLimit == 0 {
		c.GasLimit = DefaultGasLimit
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.ConfirmInterval <= 0 {
		c.ConfirmInterval = DefaultConfirmInterval
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 15 * time.Second
	}
	return c
}
