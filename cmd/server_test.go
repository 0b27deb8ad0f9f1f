package cmd_test

// The test includes:
// 1. Set up of a watchtower server over two simulated chains (cosmos -> evm).
// 2. A deposit on the source gets approved on the destination.
// 3. A forged approval on the destination gets cancelled.
// 4. The admin reenables a cancelled approval.

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/alert"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/cmd"
	"github.com/TEENet-io/watchtower-go/config"
	"github.com/TEENet-io/watchtower-go/identity"
	"github.com/TEENet-io/watchtower-go/reporter"
	"github.com/TEENet-io/watchtower-go/retry"
	"github.com/TEENet-io/watchtower-go/statedb"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token   = ethcommon.HexToHash("0x0a")
	account = ethcommon.HexToHash("0x0b")
)

const (
	waitFor = 10 * time.Second
	tick    = 20 * time.Millisecond
)

func chainConfig(name, family, chainID, prefix string) config.ChainConfig {
	c := config.ChainConfig{
		Name:          name,
		Family:        family,
		ChainID:       chainID,
		AddressPrefix: prefix,
		RPCURL:        "sim://" + name,
		BridgeAddress: "sim",
		OperatorKey:   "operator",
		CancelerKey:   "canceler",
		AdminKey:      "admin",
		PollInterval:  tick,
		MaxBlockRange: 100,
		CallTimeout:   time.Second,
		SubmitTimeout: time.Second,
		WithdrawDelay: time.Hour,
	}
	if family == "cosmos" {
		c.GRPCURL = "sim://" + name
	}
	return c
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		LogLevel:       "info",
		LogFormat:      "text",
		LeaseTTL:       time.Minute,
		RetryInterval:  tick,
		RestartBackoff: tick,
		Database:       config.DatabaseConfig{Driver: config.DriverSQLite, DSN: t.TempDir() + "/watchtower.db"},
		Http:           config.HttpConfig{IP: "127.0.0.1", Port: "0"},
		Operator: config.OperatorConfig{
			Enabled:         true,
			Workers:         2,
			BatchSize:       10,
			ProcessInterval: tick,
			Sources:         []string{"cosmos"},
			Destinations:    []string{"evm"},
		},
		Canceler: config.CancelerConfig{
			Enabled:             true,
			Workers:             2,
			BatchSize:           10,
			VerifyInterval:      tick,
			VerificationTimeout: time.Second,
			Destinations:        []string{"evm"},
		},
		Retry: retry.Policy{InitialInterval: tick, MaxInterval: time.Second, Multiplier: 2},
		Chains: []config.ChainConfig{
			chainConfig("cosmos", "cosmos", "testnet-1", "wasm"),
			chainConfig("evm", "evm", "1337", ""),
		},
	}
}

type simChains map[string]*chainadapter.SimulatedChain

func newSimChains(t *testing.T, cfg *config.Config) simChains {
	chains := simChains{}
	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		key, err := c.ChainKey()
		require.NoError(t, err)
		chains[c.Name] = chainadapter.NewSimulatedChain(c.Name, c.ChainFamily(), key, c.WithdrawDelay, nil)
	}
	return chains
}

func (chains simChains) dial(ctx context.Context, chain *config.ChainConfig, role chainadapter.Role) (chainadapter.Adapter, func(), error) {
	sim, ok := chains[chain.Name]
	if !ok {
		return nil, nil, errors.New("no such chain")
	}
	return sim.Client(role), nil, nil
}

func startServer(t *testing.T, cfg *config.Config, chains simChains) *cmd.WatchtowerServer {
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	ws, err := cmd.NewWatchtowerServerWithDialer(cfg, ctx, &wg, chains.dial)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		ws.Close()
	})
	return ws
}

func TestServerApprovesDeposits(t *testing.T) {
	cfg := testConfig(t)
	chains := newSimChains(t, cfg)
	ws := startServer(t, cfg, chains)

	src, dst := chains["cosmos"], chains["evm"]
	d := src.Deposit(dst.Info().ChainKey, token, account, big.NewInt(100))
	hash, err := identity.WithdrawHashOf(identity.Default, d)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := dst.Approval(hash)
		return ok
	}, waitFor, tick)

	// the canceler finds the approval backed by the deposit
	require.Eventually(t, func() bool {
		rec, ok, err := ws.Store.GetApproval(hash)
		return err == nil && ok && rec.Verdict == agreement.VerdictValid
	}, waitFor, tick)
	onchain, _ := dst.Approval(hash)
	assert.False(t, onchain.Cancelled)
	assert.Equal(t, 0, dst.Attempts(chainadapter.CallCancelWithdrawApproval))

	require.Eventually(t, func() bool {
		ok, _ := ws.Health.Ready()
		return ok
	}, waitFor, tick)
	assert.Len(t, ws.Watchers(), 3)
}

func TestServerCancelsForgedApproval(t *testing.T) {
	cfg := testConfig(t)
	chains := newSimChains(t, cfg)
	ws := startServer(t, cfg, chains)

	src, dst := chains["cosmos"], chains["evm"]
	forged := &agreement.WithdrawApproval{
		SrcChainKey:  src.Info().ChainKey,
		DestChainKey: dst.Info().ChainKey,
		Token:        token,
		Recipient:    account,
		DestAccount:  account,
		Amount:       big.NewInt(1_000_000),
		Nonce:        big.NewInt(77),
		Fee:          big.NewInt(0),
	}
	_, err := dst.Client(chainadapter.RoleOperator).Submit(context.Background(), chainadapter.ApproveWithdraw(forged))
	require.NoError(t, err)
	hash, err := identity.ApprovalHashOf(identity.Default, forged)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		a, ok := dst.Approval(hash)
		return ok && a.Cancelled
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		rec, ok, err := ws.Store.GetApproval(hash)
		return err == nil && ok && rec.Verdict == agreement.VerdictInvalid
	}, waitFor, tick)
}

func TestServerOperatorOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Canceler.Enabled = false
	chains := newSimChains(t, cfg)
	ws := startServer(t, cfg, chains)

	assert.Nil(t, ws.Canceler)
	assert.NotNil(t, ws.Operator)
	assert.Len(t, ws.Watchers(), 2)
}

func TestServerSetupErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Operator.Enabled = false
	cfg.Canceler.Enabled = false
	_, err := cmd.NewWatchtowerServerWithDialer(cfg, context.Background(), &sync.WaitGroup{}, newSimChains(t, cfg).dial)
	assert.Error(t, err)

	// the node disagrees with the configured chain id
	cfg = testConfig(t)
	chains := newSimChains(t, cfg)
	chains["evm"] = chainadapter.NewSimulatedChain("evm", agreement.FamilyEVM, agreement.ChainKey{1}, time.Hour, nil)
	_, err = cmd.NewWatchtowerServerWithDialer(cfg, context.Background(), &sync.WaitGroup{}, chains.dial)
	assert.ErrorContains(t, err, "adapter chain key")

	cfg = testConfig(t)
	cfg.Database.Driver = "mysql"
	_, err = cmd.NewWatchtowerServerWithDialer(cfg, context.Background(), &sync.WaitGroup{}, newSimChains(t, cfg).dial)
	assert.Error(t, err)
}

func TestReenable(t *testing.T) {
	cfg := testConfig(t)
	chains := newSimChains(t, cfg)
	src, dst := chains["cosmos"], chains["evm"]
	ctx := context.Background()

	a := &agreement.WithdrawApproval{
		SrcChainKey:  src.Info().ChainKey,
		DestChainKey: dst.Info().ChainKey,
		Token:        token,
		Recipient:    account,
		DestAccount:  account,
		Amount:       big.NewInt(5),
		Nonce:        big.NewInt(1),
		Fee:          big.NewInt(0),
	}
	_, err := dst.Client(chainadapter.RoleOperator).Submit(ctx, chainadapter.ApproveWithdraw(a))
	require.NoError(t, err)
	hash, err := identity.ApprovalHashOf(identity.Default, a)
	require.NoError(t, err)

	// not cancelled yet
	_, err = cmd.Reenable(ctx, cfg, chains.dial, "evm", hash)
	assert.ErrorContains(t, err, "not cancelled")

	_, err = dst.Client(chainadapter.RoleCanceler).Submit(ctx, chainadapter.CancelWithdrawApproval(hash))
	require.NoError(t, err)

	receipt, err := cmd.Reenable(ctx, cfg, chains.dial, "evm", hash)
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.TxHash)
	onchain, ok := dst.Approval(hash)
	require.True(t, ok)
	assert.False(t, onchain.Cancelled)
	assert.Equal(t, 1, dst.Landed(chainadapter.CallReenableWithdrawApproval))

	_, err = cmd.Reenable(ctx, cfg, chains.dial, "unknown", hash)
	assert.Error(t, err)
	_, err = cmd.Reenable(ctx, cfg, chains.dial, "evm", ethcommon.Hash{9})
	assert.ErrorContains(t, err, "no approval")

	cfg.Chains[1].AdminKey = ""
	_, err = cmd.Reenable(ctx, cfg, chains.dial, "evm", hash)
	assert.ErrorContains(t, err, "admin_key")
}

func TestSupervisorRestartsFailedTask(t *testing.T) {
	health := reporter.NewHealth()
	alerts := alert.NewRecorder(8)
	sup := cmd.NewSupervisor(health, alerts, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		calls int
	)
	running := make(chan struct{})
	var wg sync.WaitGroup
	sup.Go(ctx, &wg, "flaky", func(ctx context.Context) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n <= 2 {
			return errors.New("database is locked")
		}
		close(running)
		<-ctx.Done()
		return ctx.Err()
	})

	select {
	case <-running:
	case <-time.After(waitFor):
		t.Fatal("task was not restarted")
	}
	ok, reasons := health.Ready()
	assert.True(t, ok, reasons)

	got := alerts.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, alert.SupervisorFailure, got[0].Kind)
	assert.Contains(t, got[0].Reason, "flaky")

	cancel()
	wg.Wait()
	assert.Equal(t, 3, calls)
}

func TestStoreStatsAfterRun(t *testing.T) {
	cfg := testConfig(t)
	chains := newSimChains(t, cfg)
	ws := startServer(t, cfg, chains)

	src, dst := chains["cosmos"], chains["evm"]
	d := src.Deposit(dst.Info().ChainKey, token, account, big.NewInt(7))

	require.Eventually(t, func() bool {
		rec, ok, err := ws.Store.GetDeposit(d.SrcChainKey, d.Nonce)
		return err == nil && ok && rec.Status == statedb.DepositSubmitted
	}, waitFor, tick)

	stats, err := ws.Store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deposits[statedb.DepositSubmitted])
}
