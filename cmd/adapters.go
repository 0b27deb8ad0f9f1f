package cmd

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/config"
	"github.com/TEENet-io/watchtower-go/cosmosman"
	"github.com/TEENet-io/watchtower-go/etherman"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Dialer connects to chain and returns an adapter submitting as role.
// The returned func releases the connection.
type Dialer func(ctx context.Context, chain *config.ChainConfig, role chainadapter.Role) (chainadapter.Adapter, func(), error)

func keyOf(chain *config.ChainConfig, role chainadapter.Role) string {
	switch role {
	case chainadapter.RoleOperator:
		return chain.OperatorKey
	case chainadapter.RoleCanceler:
		return chain.CancelerKey
	case chainadapter.RoleAdmin:
		return chain.AdminKey
	}
	return ""
}

// DialAdapter connects to a real node of chain's family.
func DialAdapter(ctx context.Context, chain *config.ChainConfig, role chainadapter.Role) (chainadapter.Adapter, func(), error) {
	key := keyOf(chain, role)
	if role != chainadapter.RoleUser && key == "" {
		return nil, nil, fmt.Errorf("chain %s: no %s key configured", chain.Name, role)
	}

	switch chain.ChainFamily() {
	case agreement.FamilyEVM:
		chainID, err := strconv.ParseUint(chain.ChainID, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("chain %s: invalid chain id %q: %w", chain.Name, chain.ChainID, err)
		}
		if !ethcommon.IsHexAddress(chain.BridgeAddress) {
			return nil, nil, fmt.Errorf("chain %s: invalid bridge address %q", chain.Name, chain.BridgeAddress)
		}
		var gasPrice *big.Int
		if chain.GasPrice != "" {
			var ok bool
			if gasPrice, ok = new(big.Int).SetString(chain.GasPrice, 10); !ok {
				return nil, nil, fmt.Errorf("chain %s: invalid gas price %q", chain.Name, chain.GasPrice)
			}
		}
		url := chain.RPCURL
		if chain.WSURL != "" {
			url = chain.WSURL
		}
		e, err := etherman.NewEtherman(ctx, &etherman.Config{
			Name:                  chain.Name,
			URL:                   url,
			ChainID:               chainID,
			BridgeContractAddress: ethcommon.HexToAddress(chain.BridgeAddress),
			PrivateKey:            key,
			GasLimit:              chain.GasLimit,
			GasPrice:              gasPrice,
			DialTimeout:           chain.CallTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil

	case agreement.FamilyCosmos:
		gasPrice := ""
		if chain.GasPrice != "" {
			gasPrice = chain.GasPrice + chain.Denom
		}
		c, err := cosmosman.NewCosmosman(ctx, &cosmosman.Config{
			Name:            chain.Name,
			ChainID:         chain.ChainID,
			AddressPrefix:   chain.AddressPrefix,
			RPCURL:          chain.RPCURL,
			GRPCURL:         chain.GRPCURL,
			ContractAddress: chain.BridgeAddress,
			Mnemonic:        key,
			GasLimit:        chain.GasLimit,
			GasPrice:        gasPrice,
			DialTimeout:     chain.CallTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}

	return nil, nil, fmt.Errorf("chain %s: unknown family %q", chain.Name, chain.Family)
}

type adapterKey struct {
	chain string
	role  chainadapter.Role
}

// adapterPool dials each (chain, role) pair once.
type adapterPool struct {
	dial Dialer

	mu       sync.Mutex
	adapters map[adapterKey]chainadapter.Adapter
	closers  []func()
}

func newAdapterPool(dial Dialer) *adapterPool {
	return &adapterPool{dial: dial, adapters: make(map[adapterKey]chainadapter.Adapter)}
}

func (p *adapterPool) get(ctx context.Context, chain *config.ChainConfig, role chainadapter.Role) (chainadapter.Adapter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := adapterKey{chain: chain.Name, role: role}
	if a, ok := p.adapters[k]; ok {
		return a, nil
	}
	a, closer, err := p.dial(ctx, chain, role)
	if err != nil {
		return nil, err
	}

	// the adapter must agree with the configuration on the chain's identity
	want, err := chain.ChainKey()
	if err != nil {
		if closer != nil {
			closer()
		}
		return nil, err
	}
	if got := a.Info().ChainKey; got != want {
		if closer != nil {
			closer()
		}
		return nil, fmt.Errorf("chain %s: adapter chain key %s, configured %s", chain.Name, got.Hex(), want.Hex())
	}

	p.adapters[k] = a
	if closer != nil {
		p.closers = append(p.closers, closer)
	}
	return a, nil
}

func (p *adapterPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.closers {
		c()
	}
	p.closers = nil
	p.adapters = make(map[adapterKey]chainadapter.Adapter)
}
