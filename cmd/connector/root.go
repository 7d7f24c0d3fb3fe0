package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gitlab.com/warrant1/connector/internal/config"
	"gitlab.com/warrant1/connector/internal/di"
)

var cfgFile string

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("CONNECTOR")
	viper.AutomaticEnv()

	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")
	viper.BindEnv("signer.master_seed_hex", "SIGNER_MASTER_SEED_HEX")
	viper.BindEnv("store.path", "STORE_PATH")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "logfmt")
	viper.SetDefault("store.path", "connector.db")
	viper.SetDefault("settlement.trigger_threshold", "100")
	viper.SetDefault("channel.rebalance_enabled", false)
	viper.SetDefault("channel.min_channel_balance", "0")
	viper.SetDefault("channel.max_channel_balance", "0")
	viper.SetDefault("channel.settlement_timeout_seconds", 300)
	viper.SetDefault("channel.challenge_period_slack_seconds", 60)
	viper.SetDefault("channel.max_channel_lifetime_seconds", 2592000)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

var rootCmd = &cobra.Command{
	Use:   "connector",
	Short: "Interledger-style payment-channel connector",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Println(cfg.RedactedConfigLog())

		srv, err := di.InitializeServer(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize connector: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.RunWithGracefulShutdown(ctx)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run connector: %v\n", err)
		os.Exit(1)
	}
}
