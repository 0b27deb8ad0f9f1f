package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/TEENet-io/watchtower-go/cmd"
	"github.com/TEENet-io/watchtower-go/config"
	"github.com/TEENet-io/watchtower-go/logconfig"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFile    string

	rootCmd = &cobra.Command{
		Use:          "watchtower",
		Short:        "Operator and canceler for the EVM <-> Cosmos bridge",
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the roles enabled in the configuration",
		RunE: func(c *cobra.Command, args []string) error {
			return serve(nil)
		},
	}

	operatorCmd = &cobra.Command{
		Use:   "operator",
		Short: "Run the operator only",
		RunE: func(c *cobra.Command, args []string) error {
			return serve(func(cfg *config.Config) {
				cfg.Operator.Enabled = true
				cfg.Canceler.Enabled = false
			})
		},
	}

	cancelerCmd = &cobra.Command{
		Use:   "canceler",
		Short: "Run the canceler only",
		RunE: func(c *cobra.Command, args []string) error {
			return serve(func(cfg *config.Config) {
				cfg.Operator.Enabled = false
				cfg.Canceler.Enabled = true
			})
		},
	}

	adminCmd = &cobra.Command{
		Use:   "admin",
		Short: "Admin-only contract calls",
	}

	reenableCmd = &cobra.Command{
		Use:   "reenable <chain> <withdrawHash>",
		Short: "Reenable a cancelled withdraw approval",
		Args:  cobra.ExactArgs(2),
		RunE:  reenable,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file, defaults to $"+config.EnvConfigFile)
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before the configuration")

	adminCmd.AddCommand(reenableCmd)
	rootCmd.AddCommand(runCmd, operatorCmd, cancelerCmd, adminCmd)
}

func load(tweak func(cfg *config.Config)) (*config.Config, error) {
	var envFiles []string
	if envFile != "" && cmd.FileExists(envFile) {
		envFiles = append(envFiles, envFile)
	}
	cfg, err := config.Load(configFile, envFiles...)
	if err != nil {
		return nil, err
	}
	if tweak != nil {
		tweak(cfg)
		// role keys are checked against the final roles
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if err := logconfig.Config(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(tweak func(cfg *config.Config)) error {
	cfg, err := load(tweak)
	if err != nil {
		return err
	}
	logger.Info("starting watchtower... press Ctrl+C to stop")
	return cmd.StartWatchtowerAndWait(cfg)
}

func reenable(c *cobra.Command, args []string) error {
	cfg, err := load(nil)
	if err != nil {
		return err
	}

	raw := args[1]
	if !strings.HasPrefix(raw, "0x") {
		raw = "0x" + raw
	}
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != ethcommon.HashLength {
		return fmt.Errorf("withdraw hash %q is not 32 bytes of hex", args[1])
	}

	receipt, err := cmd.Reenable(context.Background(), cfg, cmd.DialAdapter, args[0], ethcommon.BytesToHash(b))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.OutOrStdout(), "reenabled %s on %s in tx %s\n", ethcommon.BytesToHash(b).Hex(), args[0], receipt.TxHash)
	return nil
}
