package etherman

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/contracts/bridge"
	"github.com/TEENet-io/watchtower-go/identity"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	logger "github.com/sirupsen/logrus"
)

var (
	bridgeABI *abi.ABI

	// Events
	DepositSignatureHash                   ethcommon.Hash
	WithdrawApprovedSignatureHash          ethcommon.Hash
	WithdrawApprovalCancelledSignatureHash ethcommon.Hash
	WithdrawExecutedSignatureHash          ethcommon.Hash
	WithdrawApprovalReenabledSignatureHash ethcommon.Hash

	ErrReadOnly = errors.New("adapter has no signing key")
)

func init() {
	var err error
	bridgeABI, err = bridge.BridgeMetaData.GetAbi()
	if err != nil {
		panic(err)
	}
	DepositSignatureHash = bridgeABI.Events["Deposit"].ID
	WithdrawApprovedSignatureHash = bridgeABI.Events["WithdrawApproved"].ID
	WithdrawApprovalCancelledSignatureHash = bridgeABI.Events["WithdrawApprovalCancelled"].ID
	WithdrawExecutedSignatureHash = bridgeABI.Events["WithdrawExecuted"].ID
	WithdrawApprovalReenabledSignatureHash = bridgeABI.Events["WithdrawApprovalReenabled"].ID
}

type ethereumClient interface {
	ethereum.BlockNumberReader
	ethereum.TransactionReader

	bind.DeployBackend
	bind.ContractBackend
}

// Etherman is the EVM chain adapter of the watchtower.
type Etherman struct {
	info          chainadapter.Info
	ethClient     ethereumClient
	bridgeAddress ethcommon.Address
	bridge        *bridge.Bridge
	auth          *bind.TransactOpts
	gasLimit      uint64
	gasPrice      *big.Int

	// one transaction in flight to the node at a time, so nonces stay in order
	sendMu sync.Mutex
}

var _ chainadapter.Adapter = (*Etherman)(nil)

// NewEtherman dials the node of cfg and binds the bridge contract.
func NewEtherman(ctx context.Context, cfg *Config) (*Etherman, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(dctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.Name, err)
	}
	client := ethclient.NewClient(rpcClient)

	chainID, err := client.ChainID(dctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id of %s: %w", cfg.Name, err)
	}
	if cfg.ChainID != 0 && chainID.Uint64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("chain %s: node reports chain id %v, configured %d", cfg.Name, chainID, cfg.ChainID)
	}

	code, err := client.CodeAt(dctx, cfg.BridgeContractAddress, nil)
	if err != nil {
		client.Close()
		return nil, err
	}
	if len(code) == 0 {
		client.Close()
		return nil, fmt.Errorf("chain %s: address %s doesn't contain smart contract", cfg.Name, cfg.BridgeContractAddress.Hex())
	}

	return New(cfg, client, chainID)
}

// New builds an Etherman over an existing client.
func New(cfg *Config, client ethereumClient, chainID *big.Int) (*Etherman, error) {
	key, err := identity.Default.ChainKey(agreement.FamilyEVM, chainID.String(), "")
	if err != nil {
		return nil, err
	}

	contract, err := bridge.NewBridge(cfg.BridgeContractAddress, client)
	if err != nil {
		return nil, err
	}

	var auth *bind.TransactOpts
	if cfg.PrivateKey != "" {
		sk, err := StringToPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("chain %s: invalid private key: %w", cfg.Name, err)
		}
		if auth, err = NewAuth(sk, chainID); err != nil {
			return nil, err
		}
	}

	logger.WithFields(logger.Fields{
		"chain":    cfg.Name,
		"chainId":  chainID,
		"chainKey": key.Hex(),
		"bridge":   cfg.BridgeContractAddress.Hex(),
		"readOnly": auth == nil,
	}).Info("evm adapter ready")

	return &Etherman{
		info:          chainadapter.Info{Name: cfg.Name, Family: agreement.FamilyEVM, ChainKey: key},
		ethClient:     client,
		bridgeAddress: cfg.BridgeContractAddress,
		bridge:        contract,
		auth:          auth,
		gasLimit:      cfg.GasLimit,
		gasPrice:      cfg.GasPrice,
	}, nil
}

// Close releases the node connection when the client holds one.
func (etherman *Etherman) Close() {
	if c, ok := etherman.ethClient.(interface{ Close() }); ok {
		c.Close()
	}
}

func (etherman *Etherman) Info() chainadapter.Info {
	return etherman.info
}

// Signer is the address submissions are sent from, zero when read-only.
func (etherman *Etherman) Signer() ethcommon.Address {
	if etherman.auth == nil {
		return ethcommon.Address{}
	}
	return etherman.auth.From
}

func (etherman *Etherman) Height(ctx context.Context) (uint64, error) {
	return etherman.ethClient.BlockNumber(ctx)
}

func (etherman *Etherman) filterQuery() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []ethcommon.Address{etherman.bridgeAddress},
		Topics: [][]ethcommon.Hash{{
			DepositSignatureHash,
			WithdrawApprovedSignatureHash,
			WithdrawApprovalCancelledSignatureHash,
			WithdrawExecutedSignatureHash,
			WithdrawApprovalReenabledSignatureHash,
		}},
	}
}

func toRawEvent(vlog types.Log) chainadapter.RawEvent {
	name := ""
	if len(vlog.Topics) > 0 {
		if ev, err := bridgeABI.EventByID(vlog.Topics[0]); err == nil {
			name = ev.Name
		}
	}
	return chainadapter.RawEvent{
		Height: vlog.BlockNumber,
		TxHash: vlog.TxHash.Hex(),
		Index:  vlog.Index,
		Name:   name,
		Native: vlog,
	}
}

func (etherman *Etherman) PollEvents(ctx context.Context, from, to uint64) ([]chainadapter.RawEvent, error) {
	if to <= from {
		return nil, nil
	}
	query := etherman.filterQuery()
	query.FromBlock = new(big.Int).SetUint64(from + 1)
	query.ToBlock = new(big.Int).SetUint64(to)

	logs, err := etherman.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	events := make([]chainadapter.RawEvent, 0, len(logs))
	for _, vlog := range logs {
		if vlog.Removed {
			continue
		}
		events = append(events, toRawEvent(vlog))
	}
	return events, nil
}

// SubscribeEvents forwards new bridge logs. Endpoints without notification
// support (plain http) yield ErrSubscriptionUnsupported.
func (etherman *Etherman) SubscribeEvents(ctx context.Context) (<-chan chainadapter.RawEvent, chainadapter.Subscription, error) {
	logs := make(chan types.Log, 64)
	sub, err := etherman.ethClient.SubscribeFilterLogs(ctx, etherman.filterQuery(), logs)
	if err != nil {
		if errors.Is(err, rpc.ErrNotificationsUnsupported) {
			return nil, nil, chainadapter.ErrSubscriptionUnsupported
		}
		return nil, nil, err
	}

	out := make(chan chainadapter.RawEvent, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Err():
				return
			case vlog := <-logs:
				if vlog.Removed {
					continue
				}
				select {
				case out <- toRawEvent(vlog):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, sub, nil
}

func (etherman *Etherman) Decode(raw chainadapter.RawEvent) (agreement.Event, error) {
	vlog, ok := raw.Native.(types.Log)
	if !ok {
		return nil, fmt.Errorf("%w: not an evm log", chainadapter.ErrMalformedEvent)
	}
	if len(vlog.Topics) == 0 {
		return nil, chainadapter.ErrUnknownEvent
	}

	meta := agreement.EventMeta{
		ChainKey: etherman.info.ChainKey,
		Height:   raw.Height,
		TxHash:   raw.TxHash,
		Index:    raw.Index,
	}
	malformed := func(err error) error {
		return fmt.Errorf("%w: %v", chainadapter.ErrMalformedEvent, err)
	}

	switch vlog.Topics[0] {
	case DepositSignatureHash:
		ev, err := etherman.bridge.ParseDeposit(vlog)
		if err != nil {
			return nil, malformed(err)
		}
		return &agreement.DepositObserved{
			EventMeta: meta,
			Deposit: agreement.Deposit{
				SrcChainKey:      etherman.info.ChainKey,
				DestChainKey:     ev.DestChainKey,
				DestTokenAddress: ev.DestTokenAddress,
				DestAccount:      ev.DestAccount,
				Amount:           ev.Amount,
				Nonce:            ev.Nonce,
				DepositedAt:      ev.DepositedAt,
			},
		}, nil

	case WithdrawApprovedSignatureHash:
		ev, err := etherman.bridge.ParseWithdrawApproved(vlog)
		if err != nil {
			return nil, malformed(err)
		}
		return &agreement.WithdrawApprovedObserved{
			EventMeta: meta,
			Approval: agreement.WithdrawApproval{
				WithdrawHash:     ev.WithdrawHash,
				SrcChainKey:      ev.SrcChainKey,
				DestChainKey:     etherman.info.ChainKey,
				Token:            AddressToKey(ev.Token),
				Recipient:        AddressToKey(ev.Recipient),
				DestAccount:      AddressToKey(ev.DestAccount),
				Amount:           ev.Amount,
				Nonce:            ev.Nonce,
				Fee:              ev.Fee,
				FeeRecipient:     AddressToKey(ev.FeeRecipient),
				ApprovedAt:       ev.ApprovedAt,
				DeductFromAmount: ev.DeductFromAmount,
			},
		}, nil

	case WithdrawApprovalCancelledSignatureHash:
		ev, err := etherman.bridge.ParseWithdrawApprovalCancelled(vlog)
		if err != nil {
			return nil, malformed(err)
		}
		return &agreement.WithdrawCancelledObserved{EventMeta: meta, WithdrawHash: ev.WithdrawHash}, nil

	case WithdrawExecutedSignatureHash:
		ev, err := etherman.bridge.ParseWithdrawExecuted(vlog)
		if err != nil {
			return nil, malformed(err)
		}
		return &agreement.WithdrawExecutedObserved{EventMeta: meta, WithdrawHash: ev.WithdrawHash}, nil

	case WithdrawApprovalReenabledSignatureHash:
		ev, err := etherman.bridge.ParseWithdrawApprovalReenabled(vlog)
		if err != nil {
			return nil, malformed(err)
		}
		return &agreement.WithdrawReenabledObserved{EventMeta: meta, WithdrawHash: ev.WithdrawHash, ApprovedAt: ev.ApprovedAt}, nil
	}

	return nil, chainadapter.ErrUnknownEvent
}

func (etherman *Etherman) GetDepositFromHash(ctx context.Context, hash ethcommon.Hash) (*agreement.Deposit, bool, error) {
	out, err := etherman.bridge.GetDepositFromHash(&bind.CallOpts{Context: ctx}, hash)
	if err != nil {
		return nil, false, err
	}
	if out.DestChainKey == ([32]byte{}) {
		return nil, false, nil
	}
	return &agreement.Deposit{
		SrcChainKey:      etherman.info.ChainKey,
		DestChainKey:     out.DestChainKey,
		DestTokenAddress: out.DestTokenAddress,
		DestAccount:      out.DestAccount,
		Amount:           out.Amount,
		Nonce:            out.Nonce,
		DepositedAt:      out.DepositedAt,
	}, true, nil
}

func (etherman *Etherman) DepositHash(ctx context.Context, nonce *big.Int) (ethcommon.Hash, bool, error) {
	hash, err := etherman.bridge.DepositHash(&bind.CallOpts{Context: ctx}, nonce)
	if err != nil {
		return ethcommon.Hash{}, false, err
	}
	if hash == ([32]byte{}) {
		return ethcommon.Hash{}, false, nil
	}
	return hash, true, nil
}

func (etherman *Etherman) WithdrawApproval(ctx context.Context, hash ethcommon.Hash) (*agreement.WithdrawApproval, bool, error) {
	out, err := etherman.bridge.WithdrawApproval(&bind.CallOpts{Context: ctx}, hash)
	if err != nil {
		return nil, false, err
	}
	if out.ApprovedAt == 0 {
		return nil, false, nil
	}
	return &agreement.WithdrawApproval{
		WithdrawHash:     hash,
		SrcChainKey:      out.SrcChainKey,
		DestChainKey:     etherman.info.ChainKey,
		Token:            AddressToKey(out.Token),
		Recipient:        AddressToKey(out.Recipient),
		DestAccount:      AddressToKey(out.DestAccount),
		Amount:           out.Amount,
		Nonce:            out.Nonce,
		Fee:              out.Fee,
		FeeRecipient:     AddressToKey(out.FeeRecipient),
		ApprovedAt:       out.ApprovedAt,
		DeductFromAmount: out.DeductFromAmount,
		Cancelled:        out.Cancelled,
		Executed:         out.Executed,
	}, true, nil
}

func (etherman *Etherman) NonceUsed(ctx context.Context, src agreement.ChainKey, nonce *big.Int) (bool, error) {
	return etherman.bridge.NonceUsed(&bind.CallOpts{Context: ctx}, src, nonce)
}

// Submit sends call and waits for its receipt until ctx is done.
func (etherman *Etherman) Submit(ctx context.Context, call chainadapter.Call) (*chainadapter.Receipt, error) {
	if etherman.auth == nil {
		return nil, chainadapter.Rejected(call.Kind, "", ErrReadOnly)
	}

	tx, err := etherman.send(ctx, call)
	if err != nil {
		return nil, classifySendError(call.Kind, err)
	}

	fields := logger.Fields{
		"chain": etherman.info.Name,
		"call":  call.String(),
		"tx":    tx.Hash().Hex(),
	}
	logger.WithFields(fields).Debug("transaction sent")

	receipt, err := bind.WaitMined(ctx, etherman.ethClient, tx)
	if err != nil {
		// sent but unconfirmed, it may still land
		return nil, chainadapter.Timeout(call.Kind, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		logger.WithFields(fields).Warn("transaction reverted")
		return nil, chainadapter.Rejected(call.Kind, tx.Hash().Hex(), errors.New("transaction reverted"))
	}

	return &chainadapter.Receipt{
		TxHash: tx.Hash().Hex(),
		Height: receipt.BlockNumber.Uint64(),
	}, nil
}

func (etherman *Etherman) send(ctx context.Context, call chainadapter.Call) (*types.Transaction, error) {
	etherman.sendMu.Lock()
	defer etherman.sendMu.Unlock()

	opts := *etherman.auth
	opts.Context = ctx
	opts.GasLimit = etherman.gasLimit
	opts.GasPrice = etherman.gasPrice

	switch call.Kind {
	case chainadapter.CallApproveWithdraw:
		a := call.Approval
		if a == nil {
			return nil, errors.New("missing approval parameters")
		}
		addrs := make([]ethcommon.Address, 0, 4)
		for _, key := range []ethcommon.Hash{a.Token, a.Recipient, a.DestAccount, a.FeeRecipient} {
			addr, err := KeyToAddress(key)
			if err != nil {
				return nil, chainadapter.Rejected(call.Kind, "", err)
			}
			addrs = append(addrs, addr)
		}
		fee := a.Fee
		if fee == nil {
			fee = big.NewInt(0)
		}
		return etherman.bridge.ApproveWithdraw(&opts, a.SrcChainKey, addrs[0], addrs[1], addrs[2], a.Amount, a.Nonce, fee, addrs[3], a.DeductFromAmount)
	case chainadapter.CallExecuteWithdraw:
		return etherman.bridge.ExecuteWithdraw(&opts, call.WithdrawHash)
	case chainadapter.CallCancelWithdrawApproval:
		return etherman.bridge.CancelWithdrawApproval(&opts, call.WithdrawHash)
	case chainadapter.CallReenableWithdrawApproval:
		return etherman.bridge.ReenableWithdrawApproval(&opts, call.WithdrawHash)
	}
	return nil, chainadapter.Rejected(call.Kind, "", fmt.Errorf("unknown call %q", call.Kind))
}

func (etherman *Etherman) AddressKey(native string) (ethcommon.Hash, error) {
	if !ethcommon.IsHexAddress(native) {
		return ethcommon.Hash{}, fmt.Errorf("invalid evm address: %q", native)
	}
	return AddressToKey(ethcommon.HexToAddress(native)), nil
}

func (etherman *Etherman) NativeAddress(key ethcommon.Hash) (string, error) {
	addr, err := KeyToAddress(key)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}
