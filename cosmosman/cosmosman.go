package cosmosman

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/identity"
	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	"github.com/cosmos/cosmos-sdk/std"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	authsigning "github.com/cosmos/cosmos-sdk/x/auth/signing"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"
	rpchttp "github.com/tendermint/tendermint/rpc/client/http"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var ErrReadOnly = errors.New("adapter has no signing key")

// rpcNode is the part of the tendermint rpc client the adapter uses.
type rpcNode interface {
	Status(ctx context.Context) (*ctypes.ResultStatus, error)
	TxSearch(ctx context.Context, query string, prove bool, page, perPage *int, orderBy string) (*ctypes.ResultTxSearch, error)
	Tx(ctx context.Context, hash []byte, prove bool) (*ctypes.ResultTx, error)
	BroadcastTxSync(ctx context.Context, tx tmtypes.Tx) (*ctypes.ResultBroadcastTx, error)
}

type wasmQuerier interface {
	SmartContractState(ctx context.Context, in *wasmtypes.QuerySmartContractStateRequest, opts ...grpc.CallOption) (*wasmtypes.QuerySmartContractStateResponse, error)
}

type accountQuerier interface {
	Account(ctx context.Context, in *authtypes.QueryAccountRequest, opts ...grpc.CallOption) (*authtypes.QueryAccountResponse, error)
}

// Cosmosman is the CosmWasm chain adapter of the watchtower. It polls;
// tendermint event subscriptions are not used.
type Cosmosman struct {
	cfg      Config
	info     chainadapter.Info
	contract string

	node     rpcNode
	wasm     wasmQuerier
	accounts accountQuerier
	conn     *grpc.ClientConn

	registry codectypes.InterfaceRegistry
	txConfig client.TxConfig

	key      *secp256k1.PrivKey
	sender   string
	gasPrice sdk.DecCoin

	// guards the account sequence across submissions
	mu         sync.Mutex
	accountNum uint64
	sequence   uint64
	seqLoaded  bool
}

var _ chainadapter.Adapter = (*Cosmosman)(nil)

// NewCosmosman connects to the rpc and gRPC endpoints of cfg.
func NewCosmosman(ctx context.Context, cfg *Config) (*Cosmosman, error) {
	c := cfg.withDefaults()

	node, err := rpchttp.New(c.RPCURL, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc client for %s: %w", c.Name, err)
	}

	dctx, cancel := context.WithTimeout(ctx, c.DialTimeout)
	defer cancel()

	status, err := node.Status(dctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get status of %s: %w", c.Name, err)
	}
	if status.NodeInfo.Network != c.ChainID {
		return nil, fmt.Errorf("chain %s: node reports chain id %s, configured %s", c.Name, status.NodeInfo.Network, c.ChainID)
	}

	conn, err := grpc.DialContext(dctx, c.GRPCURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gRPC of %s: %w", c.Name, err)
	}

	cosmosman, err := New(&c, node, wasmtypes.NewQueryClient(conn), authtypes.NewQueryClient(conn))
	if err != nil {
		conn.Close()
		return nil, err
	}
	cosmosman.conn = conn
	return cosmosman, nil
}

// New builds a Cosmosman over existing clients.
func New(cfg *Config, node rpcNode, wasm wasmQuerier, accounts accountQuerier) (*Cosmosman, error) {
	c := cfg.withDefaults()

	key, err := identity.Default.ChainKey(agreement.FamilyCosmos, c.ChainID, c.AddressPrefix)
	if err != nil {
		return nil, err
	}
	if _, err := AddressToKey(c.AddressPrefix, c.ContractAddress); err != nil {
		return nil, fmt.Errorf("chain %s: invalid contract address: %w", c.Name, err)
	}

	registry := codectypes.NewInterfaceRegistry()
	std.RegisterInterfaces(registry)
	authtypes.RegisterInterfaces(registry)
	wasmtypes.RegisterInterfaces(registry)

	cosmosman := &Cosmosman{
		cfg:      c,
		info:     chainadapter.Info{Name: c.Name, Family: agreement.FamilyCosmos, ChainKey: key},
		contract: c.ContractAddress,
		node:     node,
		wasm:     wasm,
		accounts: accounts,
		registry: registry,
		txConfig: authtx.NewTxConfig(codec.NewProtoCodec(registry), authtx.DefaultSignModes),
	}

	if c.Mnemonic != "" {
		if cosmosman.key, err = KeyFromMnemonic(c.Mnemonic, c.HDPath); err != nil {
			return nil, fmt.Errorf("chain %s: %w", c.Name, err)
		}
		if cosmosman.sender, err = AccountAddress(c.AddressPrefix, cosmosman.key); err != nil {
			return nil, err
		}
		if c.GasPrice != "" {
			if cosmosman.gasPrice, err = sdk.ParseDecCoin(c.GasPrice); err != nil {
				return nil, fmt.Errorf("chain %s: invalid gas price: %w", c.Name, err)
			}
		}
	}

	logger.WithFields(logger.Fields{
		"chain":    c.Name,
		"chainId":  c.ChainID,
		"chainKey": key.Hex(),
		"bridge":   c.ContractAddress,
		"sender":   cosmosman.sender,
	}).Info("cosmos adapter ready")

	return cosmosman, nil
}

func (cosmosman *Cosmosman) Close() {
	if cosmosman.conn != nil {
		cosmosman.conn.Close()
	}
}

func (cosmosman *Cosmosman) Info() chainadapter.Info {
	return cosmosman.info
}

// Sender is the bech32 account submissions are signed by, empty when read-only.
func (cosmosman *Cosmosman) Sender() string {
	return cosmosman.sender
}

func (cosmosman *Cosmosman) Height(ctx context.Context) (uint64, error) {
	status, err := cosmosman.node.Status(ctx)
	if err != nil {
		return 0, err
	}
	return uint64(status.SyncInfo.LatestBlockHeight), nil
}

func (cosmosman *Cosmosman) PollEvents(ctx context.Context, from, to uint64) ([]chainadapter.RawEvent, error) {
	if to <= from {
		return nil, nil
	}
	query := fmt.Sprintf("wasm.%s='%s' AND tx.height>=%d AND tx.height<=%d", contractAttr, cosmosman.contract, from+1, to)

	var events []chainadapter.RawEvent
	perPage := cosmosman.cfg.PageSize
	for page, seen := 1, 0; ; page++ {
		p := page
		res, err := cosmosman.node.TxSearch(ctx, query, false, &p, &perPage, "asc")
		if err != nil {
			return nil, err
		}
		for _, tx := range res.Txs {
			for i, ev := range tx.TxResult.Events {
				name, ok := bridgeEvent(ev, cosmosman.contract)
				if !ok {
					continue
				}
				events = append(events, chainadapter.RawEvent{
					Height: uint64(tx.Height),
					TxHash: tx.Hash.String(),
					Index:  uint(i),
					Name:   name,
					Native: ev,
				})
			}
		}
		seen += len(res.Txs)
		if len(res.Txs) == 0 || seen >= res.TotalCount {
			break
		}
	}
	return events, nil
}

func (cosmosman *Cosmosman) SubscribeEvents(ctx context.Context) (<-chan chainadapter.RawEvent, chainadapter.Subscription, error) {
	return nil, nil, chainadapter.ErrSubscriptionUnsupported
}

func (cosmosman *Cosmosman) Decode(raw chainadapter.RawEvent) (agreement.Event, error) {
	return cosmosman.decode(raw)
}

func (cosmosman *Cosmosman) smartQuery(ctx context.Context, msg *QueryMsg, out interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	res, err := cosmosman.wasm.SmartContractState(ctx, &wasmtypes.QuerySmartContractStateRequest{
		Address:   cosmosman.contract,
		QueryData: data,
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(res.Data, out)
}

func (cosmosman *Cosmosman) GetDepositFromHash(ctx context.Context, hash ethcommon.Hash) (*agreement.Deposit, bool, error) {
	var res DepositResponse
	err := cosmosman.smartQuery(ctx, &QueryMsg{GetDepositFromHash: &WithdrawHashMsg{WithdrawHash: FormatBytes32(hash)}}, &res)
	if err != nil {
		return nil, false, err
	}
	if res.Deposit == nil {
		return nil, false, nil
	}
	d, err := res.Deposit.toDeposit(cosmosman.info.ChainKey)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func (cosmosman *Cosmosman) DepositHash(ctx context.Context, nonce *big.Int) (ethcommon.Hash, bool, error) {
	n, err := FormatUint128(nonce)
	if err != nil {
		// no deposit can carry a nonce wider than the contract's integers
		return ethcommon.Hash{}, false, nil
	}
	var res DepositHashResponse
	if err := cosmosman.smartQuery(ctx, &QueryMsg{DepositHash: &NonceMsg{Nonce: n}}, &res); err != nil {
		return ethcommon.Hash{}, false, err
	}
	if res.Hash == nil {
		return ethcommon.Hash{}, false, nil
	}
	hash, err := ParseBytes32(*res.Hash)
	if err != nil {
		return ethcommon.Hash{}, false, err
	}
	return hash, true, nil
}

func (cosmosman *Cosmosman) WithdrawApproval(ctx context.Context, hash ethcommon.Hash) (*agreement.WithdrawApproval, bool, error) {
	var res ApprovalResponse
	err := cosmosman.smartQuery(ctx, &QueryMsg{WithdrawApproval: &WithdrawHashMsg{WithdrawHash: FormatBytes32(hash)}}, &res)
	if err != nil {
		return nil, false, err
	}
	if res.Approval == nil {
		return nil, false, nil
	}
	a, err := res.Approval.toApproval(hash, cosmosman.info.ChainKey)
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (cosmosman *Cosmosman) NonceUsed(ctx context.Context, src agreement.ChainKey, nonce *big.Int) (bool, error) {
	n, err := FormatUint128(nonce)
	if err != nil {
		return false, nil
	}
	var res NonceUsedResponse
	err = cosmosman.smartQuery(ctx, &QueryMsg{NonceUsed: &NonceUsedMsg{SrcChainKey: FormatBytes32(src), Nonce: n}}, &res)
	if err != nil {
		return false, err
	}
	return res.Used, nil
}

func executeMsgOf(call chainadapter.Call) (*ExecuteMsg, error) {
	hash := &WithdrawHashMsg{WithdrawHash: FormatBytes32(call.WithdrawHash)}
	switch call.Kind {
	case chainadapter.CallApproveWithdraw:
		if call.Approval == nil {
			return nil, errors.New("missing approval parameters")
		}
		return approveMsg(call.Approval)
	case chainadapter.CallExecuteWithdraw:
		return &ExecuteMsg{ExecuteWithdraw: hash}, nil
	case chainadapter.CallCancelWithdrawApproval:
		return &ExecuteMsg{CancelWithdrawApproval: hash}, nil
	case chainadapter.CallReenableWithdrawApproval:
		return &ExecuteMsg{ReenableWithdrawApproval: hash}, nil
	}
	return nil, fmt.Errorf("unknown call %q", call.Kind)
}

// Submit signs call as a MsgExecuteContract, broadcasts it and waits until
// the tx is included or ctx is done.
func (cosmosman *Cosmosman) Submit(ctx context.Context, call chainadapter.Call) (*chainadapter.Receipt, error) {
	if cosmosman.key == nil {
		return nil, chainadapter.Rejected(call.Kind, "", ErrReadOnly)
	}

	msg, err := executeMsgOf(call)
	if err != nil {
		return nil, chainadapter.Rejected(call.Kind, "", err)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, chainadapter.Rejected(call.Kind, "", err)
	}

	txHash, err := cosmosman.broadcast(ctx, call.Kind, &wasmtypes.MsgExecuteContract{
		Sender:   cosmosman.sender,
		Contract: cosmosman.contract,
		Msg:      payload,
	})
	if err != nil {
		return nil, err
	}

	fields := logger.Fields{
		"chain": cosmosman.info.Name,
		"call":  call.String(),
		"tx":    txHash,
	}
	logger.WithFields(fields).Debug("transaction broadcast")

	receipt, err := cosmosman.waitIncluded(ctx, call.Kind, txHash)
	if err != nil {
		if chainadapter.IsRejected(err) {
			logger.WithFields(fields).Warnf("transaction failed: err=%v", err)
		}
		return nil, err
	}
	return receipt, nil
}

// broadcast signs msg with the next account sequence and hands it to the
// mempool. It returns the tx hash once CheckTx passed.
func (cosmosman *Cosmosman) broadcast(ctx context.Context, call chainadapter.CallKind, msg sdk.Msg) (string, error) {
	cosmosman.mu.Lock()
	defer cosmosman.mu.Unlock()

	if !cosmosman.seqLoaded {
		if err := cosmosman.loadAccount(ctx); err != nil {
			return "", chainadapter.Transient(call, fmt.Errorf("failed to load account: %w", err))
		}
	}

	txBytes, err := cosmosman.signTx(msg, cosmosman.accountNum, cosmosman.sequence)
	if err != nil {
		return "", chainadapter.Rejected(call, "", err)
	}

	res, err := cosmosman.node.BroadcastTxSync(ctx, txBytes)
	if err != nil {
		return "", chainadapter.Transient(call, err)
	}
	txHash := res.Hash.String()

	if res.Code != 0 {
		checkErr := fmt.Errorf("check tx failed: codespace=%s code=%d log=%s", res.Codespace, res.Code, res.Log)
		if res.Codespace == sdkerrors.ErrWrongSequence.Codespace() && res.Code == sdkerrors.ErrWrongSequence.ABCICode() {
			if seq, ok := expectedSequence(res.Log); ok {
				cosmosman.sequence = seq
			} else {
				cosmosman.seqLoaded = false
			}
			return "", chainadapter.Transient(call, checkErr)
		}
		if res.Codespace == sdkerrors.ErrMempoolIsFull.Codespace() && res.Code == sdkerrors.ErrMempoolIsFull.ABCICode() {
			return "", chainadapter.Transient(call, checkErr)
		}
		return "", chainadapter.Rejected(call, txHash, checkErr)
	}

	cosmosman.sequence++
	return txHash, nil
}

func (cosmosman *Cosmosman) loadAccount(ctx context.Context) error {
	res, err := cosmosman.accounts.Account(ctx, &authtypes.QueryAccountRequest{Address: cosmosman.sender})
	if err != nil {
		return err
	}
	var acc authtypes.AccountI
	if err := cosmosman.registry.UnpackAny(res.Account, &acc); err != nil {
		return err
	}
	cosmosman.accountNum = acc.GetAccountNumber()
	cosmosman.sequence = acc.GetSequence()
	cosmosman.seqLoaded = true
	return nil
}

func (cosmosman *Cosmosman) signTx(msg sdk.Msg, accountNum, sequence uint64) ([]byte, error) {
	builder := cosmosman.txConfig.NewTxBuilder()
	if err := builder.SetMsgs(msg); err != nil {
		return nil, err
	}
	builder.SetGasLimit(cosmosman.cfg.GasLimit)
	if cosmosman.gasPrice.Denom != "" {
		fee := cosmosman.gasPrice.Amount.MulInt64(int64(cosmosman.cfg.GasLimit)).Ceil().TruncateInt()
		builder.SetFeeAmount(sdk.NewCoins(sdk.NewCoin(cosmosman.gasPrice.Denom, fee)))
	}

	mode := signing.SignMode_SIGN_MODE_DIRECT
	pub := cosmosman.key.PubKey()

	// signer infos have to be in place before the sign bytes are built
	if err := builder.SetSignatures(signing.SignatureV2{
		PubKey:   pub,
		Data:     &signing.SingleSignatureData{SignMode: mode},
		Sequence: sequence,
	}); err != nil {
		return nil, err
	}

	signerData := authsigning.SignerData{
		ChainID:       cosmosman.cfg.ChainID,
		AccountNumber: accountNum,
		Sequence:      sequence,
	}
	bytesToSign, err := cosmosman.txConfig.SignModeHandler().GetSignBytes(mode, signerData, builder.GetTx())
	if err != nil {
		return nil, err
	}
	sig, err := cosmosman.key.Sign(bytesToSign)
	if err != nil {
		return nil, err
	}
	if err := builder.SetSignatures(signing.SignatureV2{
		PubKey:   pub,
		Data:     &signing.SingleSignatureData{SignMode: mode, Signature: sig},
		Sequence: sequence,
	}); err != nil {
		return nil, err
	}

	return cosmosman.txConfig.TxEncoder()(builder.GetTx())
}

// waitIncluded polls for the tx until it is in a block or ctx is done.
func (cosmosman *Cosmosman) waitIncluded(ctx context.Context, call chainadapter.CallKind, txHash string) (*chainadapter.Receipt, error) {
	hash := ethcommon.FromHex(txHash)
	ticker := time.NewTicker(cosmosman.cfg.ConfirmInterval)
	defer ticker.Stop()

	for {
		res, err := cosmosman.node.Tx(ctx, hash, false)
		if err == nil {
			if res.TxResult.Code != 0 {
				return nil, chainadapter.Rejected(call, txHash, fmt.Errorf("deliver tx failed: codespace=%s code=%d log=%s",
					res.TxResult.Codespace, res.TxResult.Code, res.TxResult.Log))
			}
			return &chainadapter.Receipt{TxHash: txHash, Height: uint64(res.Height)}, nil
		}
		if !strings.Contains(err.Error(), "not found") {
			logger.WithFields(logger.Fields{
				"chain": cosmosman.info.Name,
				"tx":    txHash,
			}).Debugf("failed to look up tx: err=%v", err)
		}

		select {
		case <-ctx.Done():
			return nil, chainadapter.Timeout(call, txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (cosmosman *Cosmosman) AddressKey(native string) (ethcommon.Hash, error) {
	return AddressToKey(cosmosman.cfg.AddressPrefix, native)
}

func (cosmosman *Cosmosman) NativeAddress(key ethcommon.Hash) (string, error) {
	return KeyToAddress(cosmosman.cfg.AddressPrefix, key)
}
