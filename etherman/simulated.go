package etherman

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

var blockGasLimit = uint64(999999999999999999)

// SimulatedChain is an in-process geth backend with funded accounts.
type SimulatedChain struct {
	Backend  *simulated.Backend
	Accounts []*bind.TransactOpts
	ChainID  *big.Int
}

func NewSimulatedChain(keys []*ecdsa.PrivateKey, chainID *big.Int) *SimulatedChain {
	accounts := make([]*bind.TransactOpts, len(keys))
	for i, sk := range keys {
		auth, err := NewAuth(sk, chainID)
		if err != nil {
			return nil
		}
		accounts[i] = auth
	}

	// allocate funds to accounts
	genesisAlloc := map[common.Address]types.Account{}
	for _, account := range accounts {
		balance, _ := new(big.Int).SetString("100000000000000000000", 10)
		genesisAlloc[account.From] = types.Account{
			Balance: balance,
		}
	}

	backend := simulated.NewBackend(genesisAlloc, simulated.WithBlockGasLimit(blockGasLimit))

	return &SimulatedChain{
		Backend:  backend,
		Accounts: accounts,
		ChainID:  chainID,
	}
}
