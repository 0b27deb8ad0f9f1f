package operator

import (
	"math/big"
	"time"

	"github.com/TEENet-io/watchtower-go/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

type FeePolicy struct {
	Fee              *big.Int
	FeeRecipient     ethcommon.Hash
	DeductFromAmount bool
}

type Config struct {
	// Loop's main interval
	ProcessInterval time.Duration

	// Max concurrent submissions
	Workers int

	// Max deposits taken per source chain per pass
	BatchSize int

	// Timeout on one chain query
	CallTimeout time.Duration

	// Timeout on one submission, confirmation included
	SubmitTimeout time.Duration

	// Execute approvals once their delay passed
	AutoExecute bool

	// Fee policy per destination token; DefaultFee for the others
	Fees       map[ethcommon.Hash]FeePolicy
	DefaultFee FeePolicy
}

func DefaultConfig() *Config {
	return &Config{
		ProcessInterval: 5 * time.Second,
		Workers:         4,
		BatchSize:       100,
		CallTimeout:     15 * time.Second,
		SubmitTimeout:   2 * time.Minute,
		DefaultFee:      FeePolicy{Fee: big.NewInt(0), DeductFromAmount: true},
	}
}

func (c *Config) feeFor(token ethcommon.Hash) FeePolicy {
	p, ok := c.Fees[token]
	if !ok {
		p = c.DefaultFee
	}
	p.Fee = common.BigIntClone(p.Fee)
	if p.Fee == nil {
		p.Fee = big.NewInt(0)
	}
	return p
}
