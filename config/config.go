// Package config loads the watchtower configuration from a file, an optional
// .env file and WATCHTOWER_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/identity"
	"github.com/TEENet-io/watchtower-go/retry"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix     = "WATCHTOWER"
	EnvConfigFile = "WATCHTOWER_CONFIG"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type ChainConfig struct {
	Name          string `mapstructure:"name" validate:"required"`
	Family        string `mapstructure:"family" validate:"required,oneof=evm cosmos"`
	ChainID       string `mapstructure:"chain_id" validate:"required"`
	AddressPrefix string `mapstructure:"address_prefix" validate:"required_if=Family cosmos"`

	RPCURL  string `mapstructure:"rpc_url" validate:"required"`
	WSURL   string `mapstructure:"ws_url"`
	GRPCURL string `mapstructure:"grpc_url" validate:"required_if=Family cosmos"`

	BridgeAddress string `mapstructure:"bridge_address" validate:"required"`

	// hex private keys on EVM chains, mnemonics on Cosmos chains; ${VAR} is expanded
	OperatorKey string `mapstructure:"operator_key"`
	CancelerKey string `mapstructure:"canceler_key"`
	AdminKey    string `mapstructure:"admin_key"`

	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gte=0"`
	FinalityMargin uint64        `mapstructure:"finality_margin"`
	StartHeight    uint64        `mapstructure:"start_height"`

	// nil honors the stored watermark
	ForceStartHeight *uint64 `mapstructure:"force_start_height"`
	MaxBlockRange    uint64  `mapstructure:"max_block_range"`

	CallTimeout   time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout" validate:"gt=0"`
	WithdrawDelay time.Duration `mapstructure:"withdraw_delay" validate:"gt=0"`

	GasLimit uint64 `mapstructure:"gas_limit"`
	// wei on EVM chains, a decimal amount of Denom on Cosmos chains
	GasPrice string `mapstructure:"gas_price"`
	Denom    string `mapstructure:"denom"`
}

func (c *ChainConfig) ChainFamily() agreement.ChainFamily {
	family, _ := agreement.ParseChainFamily(c.Family)
	return family
}

// ChainKey is recomputed from the chain metadata on every call.
func (c *ChainConfig) ChainKey() (agreement.ChainKey, error) {
	family, err := agreement.ParseChainFamily(c.Family)
	if err != nil {
		return agreement.ChainKey{}, err
	}
	return identity.Default.ChainKey(family, c.ChainID, c.AddressPrefix)
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required"`
}

type HttpConfig struct {
	IP   string `mapstructure:"ip"`
	Port string `mapstructure:"port" validate:"required,numeric"`
}

type NatsConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject" validate:"required_with=URL"`
}

type FeeConfig struct {
	Chain            string `mapstructure:"chain" validate:"required"`
	Token            string `mapstructure:"token" validate:"required"`
	Fee              string `mapstructure:"fee" validate:"required,numeric"`
	FeeRecipient     string `mapstructure:"fee_recipient"`
	DeductFromAmount bool   `mapstructure:"deduct_from_amount"`
}

type OperatorConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	AutoExecute     bool          `mapstructure:"auto_execute"`
	Workers         int           `mapstructure:"workers" validate:"gte=1"`
	BatchSize       int           `mapstructure:"batch_size" validate:"gte=1"`
	ProcessInterval time.Duration `mapstructure:"process_interval" validate:"gt=0"`
	Sources         []string      `mapstructure:"sources"`
	Destinations    []string      `mapstructure:"destinations"`
	Fees            []FeeConfig   `mapstructure:"fees" validate:"dive"`
}

type CancelerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Workers             int           `mapstructure:"workers" validate:"gte=1"`
	BatchSize           int           `mapstructure:"batch_size" validate:"gte=1"`
	VerifyInterval      time.Duration `mapstructure:"verify_interval" validate:"gt=0"`
	VerificationTimeout time.Duration `mapstructure:"verification_timeout" validate:"gt=0"`
	// chains whose approvals are verified; every chain when empty
	Destinations []string `mapstructure:"destinations"`
}

type Config struct {
	LogLevel  string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string        `mapstructure:"log_format" validate:"oneof=text json"`
	LeaseTTL  time.Duration `mapstructure:"lease_ttl" validate:"gt=0"`

	// RetryInterval is how often due retries are run
	RetryInterval time.Duration `mapstructure:"retry_interval" validate:"gt=0"`
	// RestartBackoff is the first delay before a failed task is restarted
	RestartBackoff time.Duration `mapstructure:"restart_backoff" validate:"gt=0"`

	Chains   []ChainConfig  `mapstructure:"chains" validate:"required,min=1,dive"`
	Database DatabaseConfig `mapstructure:"database"`
	Http     HttpConfig     `mapstructure:"http"`
	Nats     NatsConfig     `mapstructure:"nats"`
	Operator OperatorConfig `mapstructure:"operator"`
	Canceler CancelerConfig `mapstructure:"canceler"`
	Retry    retry.Policy   `mapstructure:"retry"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("lease_ttl", "5m")
	v.SetDefault("retry_interval", "1s")
	v.SetDefault("restart_backoff", "2s")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "watchtower.db")

	v.SetDefault("http.ip", "0.0.0.0")
	v.SetDefault("http.port", "8080")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "watchtower.alerts")

	v.SetDefault("operator.enabled", false)
	v.SetDefault("operator.auto_execute", false)
	v.SetDefault("operator.workers", 4)
	v.SetDefault("operator.batch_size", 100)
	v.SetDefault("operator.process_interval", "5s")

	v.SetDefault("canceler.enabled", false)
	v.SetDefault("canceler.workers", 4)
	v.SetDefault("canceler.batch_size", 100)
	v.SetDefault("canceler.verify_interval", "5s")
	v.SetDefault("canceler.verification_timeout", "15s")

	p := retry.DefaultPolicy()
	v.SetDefault("retry.initial_interval", p.InitialInterval)
	v.SetDefault("retry.max_interval", p.MaxInterval)
	v.SetDefault("retry.multiplier", p.Multiplier)
	v.SetDefault("retry.randomization_factor", p.RandomizationFactor)
	v.SetDefault("retry.max_elapsed_time", p.MaxElapsedTime)
}

func (c *ChainConfig) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxBlockRange == 0 {
		c.MaxBlockRange = 1000
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = 2 * time.Minute
	}
	c.Family = strings.ToLower(strings.TrimSpace(c.Family))
	c.OperatorKey = os.ExpandEnv(c.OperatorKey)
	c.CancelerKey = os.ExpandEnv(c.CancelerKey)
	c.AdminKey = os.ExpandEnv(c.AdminKey)
}

// Load reads the configuration file at path, or the file named by
// WATCHTOWER_CONFIG when path is empty. envFiles are loaded into the
// environment first; missing ones are skipped.
func Load(path string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path == "" {
		return nil, fmt.Errorf("no configuration file, set --config or %s", EnvConfigFile)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	for i := range cfg.Chains {
		cfg.Chains[i].applyDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Chain(name string) (*ChainConfig, bool) {
	for i := range cfg.Chains {
		if cfg.Chains[i].Name == name {
			return &cfg.Chains[i], true
		}
	}
	return nil, false
}

// OperatorSources lists the chains deposits are taken from, every chain when
// none is configured.
func (cfg *Config) OperatorSources() []string {
	return namesOr(cfg.Operator.Sources, cfg.Chains)
}

func (cfg *Config) OperatorDestinations() []string {
	return namesOr(cfg.Operator.Destinations, cfg.Chains)
}

func (cfg *Config) CancelerDestinations() []string {
	return namesOr(cfg.Canceler.Destinations, cfg.Chains)
}

func namesOr(names []string, chains []ChainConfig) []string {
	if len(names) > 0 {
		return names
	}
	all := make([]string, 0, len(chains))
	for _, c := range chains {
		all = append(all, c.Name)
	}
	return all
}
