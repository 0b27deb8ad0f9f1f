package cmd

import (
	"context"
	"fmt"

	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/config"
	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"
)

// Reenable submits reenableWithdrawApproval for hash on chain with the admin key.
func Reenable(ctx context.Context, cfg *config.Config, dial Dialer, chainName string, hash ethcommon.Hash) (*chainadapter.Receipt, error) {
	chain, ok := cfg.Chain(chainName)
	if !ok {
		return nil, fmt.Errorf("unknown chain %q", chainName)
	}
	if chain.AdminKey == "" {
		return nil, fmt.Errorf("chain %s: no admin_key configured", chainName)
	}

	pool := newAdapterPool(dial)
	defer pool.close()

	adapter, err := pool.get(ctx, chain, chainadapter.RoleAdmin)
	if err != nil {
		return nil, err
	}

	// 1) The approval must exist and be cancelled.
	qctx, cancel := context.WithTimeout(ctx, chain.CallTimeout)
	onchain, found, err := adapter.WithdrawApproval(qctx, hash)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to query approval: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("no approval %s on %s", hash.Hex(), chainName)
	}
	if !onchain.Cancelled {
		return nil, fmt.Errorf("approval %s on %s is not cancelled", hash.Hex(), chainName)
	}

	// 2) Submit and wait for the receipt.
	sctx, cancel := context.WithTimeout(ctx, chain.SubmitTimeout)
	defer cancel()
	receipt, err := adapter.Submit(sctx, chainadapter.ReenableWithdrawApproval(hash))
	if err != nil {
		logger.WithFields(logger.Fields{
			"chain":        chainName,
			"withdrawHash": hash.Hex(),
		}).Errorf("failed to reenable approval: err=%v", err)
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"chain":        chainName,
		"withdrawHash": hash.Hex(),
		"tx":           receipt.TxHash,
	}).Info("approval reenabled")
	return receipt, nil
}
