// Server = chain adapters + watchers + operator/canceler services + db/state + http reporter.
// All components are configured via config.Config (file, .env and environment).

package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/TEENet-io/watchtower-go/alert"
	"github.com/TEENet-io/watchtower-go/canceler"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/chainsync"
	"github.com/TEENet-io/watchtower-go/config"
	"github.com/TEENet-io/watchtower-go/identity"
	"github.com/TEENet-io/watchtower-go/metrics"
	"github.com/TEENet-io/watchtower-go/operator"
	"github.com/TEENet-io/watchtower-go/reporter"
	"github.com/TEENet-io/watchtower-go/retry"
	"github.com/TEENet-io/watchtower-go/statedb"
	"github.com/TEENet-io/watchtower-go/verifier"
	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"
)

// WatchtowerServer holds the objects that consists of the watchtower.
type WatchtowerServer struct {
	Config *config.Config

	Store      statedb.Store
	Locker     *statedb.KeyLocker
	Scheduler  *retry.Scheduler
	Alerts     alert.Sink
	Health     *reporter.Health
	Reporter   *reporter.HttpReporter
	Supervisor *Supervisor

	// nil when the role is disabled
	Operator *operator.Operator
	Canceler *canceler.Canceler
	Verifier *verifier.Verifier

	adapters *adapterPool
	nats     *alert.NatsSink
}

// NewWatchtowerServer creates a new watchtower server connected to real nodes.
// ctx is used for parental context to cancel the operation of the server.
// wg is used to wait for all the goroutines inside the server (watchers, services, reporter) to finish.
func NewWatchtowerServer(cfg *config.Config, ctx context.Context, wg *sync.WaitGroup) (*WatchtowerServer, error) {
	return NewWatchtowerServerWithDialer(cfg, ctx, wg, DialAdapter)
}

// NewWatchtowerServerWithDialer is NewWatchtowerServer with adapters built by dial.
func NewWatchtowerServerWithDialer(cfg *config.Config, ctx context.Context, wg *sync.WaitGroup, dial Dialer) (*WatchtowerServer, error) {
	ws := &WatchtowerServer{
		Config:   cfg,
		Health:   reporter.NewHealth(),
		adapters: newAdapterPool(dial),
	}
	if err := ws.setup(ctx); err != nil {
		ws.Close()
		return nil, err
	}
	ws.start(ctx, wg)
	return ws, nil
}

func openStore(db config.DatabaseConfig) (statedb.Store, error) {
	switch db.Driver {
	case config.DriverPostgres:
		return statedb.OpenPostgres(db.DSN)
	case config.DriverSQLite, "":
		return statedb.OpenSQLite(db.DSN)
	}
	return nil, fmt.Errorf("unknown database driver %q", db.Driver)
}

func watcherConfig(chain *config.ChainConfig) chainsync.Config {
	return chainsync.Config{
		PollInterval:     chain.PollInterval,
		FinalityMargin:   chain.FinalityMargin,
		MaxBlockRange:    chain.MaxBlockRange,
		CallTimeout:      chain.CallTimeout,
		StartHeight:      chain.StartHeight,
		ForceStartHeight: chain.ForceStartHeight,
	}
}

// longest call and submit timeouts over the chains a service talks to
func timeouts(cfg *config.Config, names []string) (call, submit time.Duration) {
	for _, name := range names {
		c, ok := cfg.Chain(name)
		if !ok {
			continue
		}
		if c.CallTimeout > call {
			call = c.CallTimeout
		}
		if c.SubmitTimeout > submit {
			submit = c.SubmitTimeout
		}
	}
	return call, submit
}

func (ws *WatchtowerServer) setup(ctx context.Context) error {
	cfg := ws.Config

	// 1) Alerts: always logged, also published on nats when configured.
	sinks := alert.Multi{alert.LogSink{}}
	if cfg.Nats.URL != "" {
		ns, err := alert.NewNatsSink(cfg.Nats.URL, cfg.Nats.Subject)
		if err != nil {
			logger.Errorf("failed to connect to nats: err=%v", err)
			return err
		}
		ws.nats = ns
		sinks = append(sinks, ns)
	}
	ws.Alerts = sinks

	// 2) Store, shared by every component.
	store, err := openStore(cfg.Database)
	if err != nil {
		logger.Errorf("failed to open %s database: err=%v", cfg.Database.Driver, err)
		return err
	}
	ws.Store = store
	ws.Locker = statedb.NewKeyLocker(store, cfg.LeaseTTL)

	// 3) Retry scheduler shared by the services.
	ws.Scheduler = retry.NewScheduler(retry.SystemClock{}, cfg.Retry)
	ws.Scheduler.OnGiveUp = func(key string, err error) {
		metrics.RetryQueue.Set(float64(ws.Scheduler.Pending()))
	}

	// 4) Services.
	if cfg.Operator.Enabled {
		if err := ws.setupOperator(ctx); err != nil {
			return err
		}
	}
	if cfg.Canceler.Enabled {
		if err := ws.setupCanceler(ctx); err != nil {
			return err
		}
	}
	if ws.Operator == nil && ws.Canceler == nil {
		return fmt.Errorf("neither operator nor canceler is enabled")
	}

	// 5) Reporter.
	ws.Reporter = reporter.NewHttpReporter(cfg.Http.IP, cfg.Http.Port, ws.Health, store, ws.Scheduler)
	ws.Supervisor = NewSupervisor(ws.Health, ws.Alerts, cfg.RestartBackoff)
	return nil
}

func (ws *WatchtowerServer) setupOperator(ctx context.Context) error {
	cfg := ws.Config

	ocfg := operator.DefaultConfig()
	ocfg.ProcessInterval = cfg.Operator.ProcessInterval
	ocfg.Workers = cfg.Operator.Workers
	ocfg.BatchSize = cfg.Operator.BatchSize
	ocfg.AutoExecute = cfg.Operator.AutoExecute
	ocfg.CallTimeout, ocfg.SubmitTimeout = timeouts(cfg, append(cfg.OperatorSources(), cfg.OperatorDestinations()...))
	ocfg.Fees = make(map[ethcommon.Hash]operator.FeePolicy)

	op := operator.New(ocfg, ws.Store, ws.Locker, ws.Scheduler, ws.Alerts)

	for _, name := range cfg.OperatorSources() {
		chain, _ := cfg.Chain(name)
		adapter, err := ws.adapters.get(ctx, chain, chainadapter.RoleUser)
		if err != nil {
			logger.WithField("chain", name).Errorf("failed to connect to source chain: err=%v", err)
			return err
		}
		if _, err := op.AddSource(adapter, watcherConfig(chain)); err != nil {
			return err
		}
	}

	for _, name := range cfg.OperatorDestinations() {
		chain, _ := cfg.Chain(name)
		adapter, err := ws.adapters.get(ctx, chain, chainadapter.RoleOperator)
		if err != nil {
			logger.WithField("chain", name).Errorf("failed to connect to destination chain: err=%v", err)
			return err
		}
		if _, err := op.AddDestination(adapter, watcherConfig(chain), chain.WithdrawDelay); err != nil {
			return err
		}
	}

	// Fee tokens and recipients are native addresses of their chain.
	for _, fee := range cfg.Operator.Fees {
		chain, _ := cfg.Chain(fee.Chain)
		adapter, err := ws.adapters.get(ctx, chain, chainadapter.RoleUser)
		if err != nil {
			return err
		}
		token, err := adapter.AddressKey(fee.Token)
		if err != nil {
			return fmt.Errorf("fee token %s on %s: %w", fee.Token, fee.Chain, err)
		}
		amount, ok := new(big.Int).SetString(fee.Fee, 10)
		if !ok {
			return fmt.Errorf("fee %q on %s is not an integer", fee.Fee, fee.Chain)
		}
		policy := operator.FeePolicy{Fee: amount, DeductFromAmount: fee.DeductFromAmount}
		if fee.FeeRecipient != "" {
			if policy.FeeRecipient, err = adapter.AddressKey(fee.FeeRecipient); err != nil {
				return fmt.Errorf("fee recipient %s on %s: %w", fee.FeeRecipient, fee.Chain, err)
			}
		}
		ocfg.Fees[token] = policy
	}

	ws.Operator = op
	return nil
}

func (ws *WatchtowerServer) setupCanceler(ctx context.Context) error {
	cfg := ws.Config

	ccfg := canceler.DefaultConfig()
	ccfg.VerifyInterval = cfg.Canceler.VerifyInterval
	ccfg.Workers = cfg.Canceler.Workers
	ccfg.BatchSize = cfg.Canceler.BatchSize
	ccfg.CallTimeout, ccfg.SubmitTimeout = timeouts(cfg, cfg.CancelerDestinations())

	ws.Verifier = verifier.New(identity.Default, cfg.Canceler.VerificationTimeout)
	c := canceler.New(ccfg, ws.Store, ws.Locker, ws.Verifier, ws.Scheduler, ws.Alerts)

	// Any configured chain may be the source of an approval.
	for i := range cfg.Chains {
		chain := &cfg.Chains[i]
		adapter, err := ws.adapters.get(ctx, chain, chainadapter.RoleUser)
		if err != nil {
			logger.WithField("chain", chain.Name).Errorf("failed to connect to source chain: err=%v", err)
			return err
		}
		c.AddSource(adapter.Info().ChainKey, adapter)
	}

	for _, name := range cfg.CancelerDestinations() {
		chain, _ := cfg.Chain(name)
		adapter, err := ws.adapters.get(ctx, chain, chainadapter.RoleCanceler)
		if err != nil {
			logger.WithField("chain", name).Errorf("failed to connect to destination chain: err=%v", err)
			return err
		}
		if _, err := c.AddDestination(adapter, watcherConfig(chain)); err != nil {
			return err
		}
	}

	ws.Canceler = c
	return nil
}

// Watchers returns every watcher of the enabled services.
func (ws *WatchtowerServer) Watchers() []*chainsync.Watcher {
	var out []*chainsync.Watcher
	if ws.Operator != nil {
		out = append(out, ws.Operator.Watchers()...)
	}
	if ws.Canceler != nil {
		out = append(out, ws.Canceler.Watchers()...)
	}
	return out
}

// Important: Turn on the components!
func (ws *WatchtowerServer) start(ctx context.Context, wg *sync.WaitGroup) {
	for _, w := range ws.Watchers() {
		w.SetStatusSink(ws.Health)
		ws.Health.Expect(w.Name())
		ws.Supervisor.Go(ctx, wg, "watcher "+w.Name(), w.Loop)
	}
	if ws.Operator != nil {
		ws.Supervisor.Go(ctx, wg, "operator", ws.Operator.Loop)
	}
	if ws.Canceler != nil {
		ws.Supervisor.Go(ctx, wg, "canceler", ws.Canceler.Loop)
	}
	ws.Supervisor.Go(ctx, wg, "retry", func(ctx context.Context) error {
		return ws.Scheduler.Loop(ctx, ws.Config.RetryInterval)
	})
	ws.Supervisor.Go(ctx, wg, "reporter", ws.Reporter.Loop)

	logger.WithFields(logger.Fields{
		"operator": ws.Operator != nil,
		"canceler": ws.Canceler != nil,
		"watchers": len(ws.Watchers()),
	}).Info("watchtower started")
}

// Close releases connections. Call it after every task has stopped.
func (ws *WatchtowerServer) Close() {
	if ws.adapters != nil {
		ws.adapters.close()
	}
	if ws.nats != nil {
		ws.nats.Close()
	}
	if ws.Store != nil {
		ws.Store.Close()
	}
}

// Create, then start the watchtower and wait.
// Press Ctrl-C to stop the server.
func StartWatchtowerAndWait(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Infof("received signal %v, stopping watchtower", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup

	ws, err := NewWatchtowerServer(cfg, ctx, &wg)
	if err != nil {
		logger.Errorf("failed to create watchtower server: err=%v", err)
		return err
	}

	// wait for all routines to finish, which is after a signal
	wg.Wait()
	ws.Close()
	logger.Info("watchtower stopped")
	return nil
}
