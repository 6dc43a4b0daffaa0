// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the kproduce command tree.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Configuration keys.  Each may be set by flag, by KPRODUCE_<KEY> in the
// environment or in the config file.
const (
	keyBrokers      = "brokers"
	keyClientID     = "client_id"
	keyAcks         = "acks"
	keyCompression  = "compression"
	keyLinger       = "linger"
	keyMsgTimeout   = "message_timeout"
	keyOutstanding  = "max_outstanding"
	keyLogLevel     = "log_level"
	keyTimeout      = "timeout"
	keyMetricsAddr  = "metrics_addr"
	keyAutoCreate   = "allow_auto_topic_creation"
	envPrefix       = "KPRODUCE"
	defaultTimeout  = 30 * time.Second
	defaultLogLevel = "warn"
)

var (
	configFile string

	// cfg holds the merged configuration of flags, environment and file.
	cfg = viper.New()

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kproduce",
	Short: "Produce messages to Kafka and report their delivery",
	Long: `kproduce sends messages to Kafka and prints the delivery report of each.

Configuration is read from flags, KPRODUCE_* environment variables and an
optional YAML config file, in that order of precedence.

Use "kproduce [command] --help" for more information about a command.`,
	PersistentPreRunE: initialize,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.StringSlice(keyBrokers, []string{"localhost:9092"}, "Kafka seed brokers")
	flags.String("client-id", "kproduce", "Client ID sent to the brokers")
	flags.String(keyAcks, "all", "Required acks: all, leader, none")
	flags.String(keyCompression, "none", "Batch compression: snappy, gzip, lz4, zstd, none")
	flags.Duration(keyLinger, 0, "Batching delay")
	flags.Duration("message-timeout", 0, "Per message delivery timeout (0 for none)")
	flags.Int("max-outstanding", 0, "Maximum unreported messages (0 for no limit)")
	flags.Bool("allow-auto-topic-creation", false, "Let the brokers create missing topics")
	flags.String("log-level", defaultLogLevel, "Log level: debug, info, warn, error, none")
	flags.Duration(keyTimeout, defaultTimeout, "Overall time limit for the command")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")

	bindings := map[string]string{
		keyBrokers:     keyBrokers,
		keyClientID:    "client-id",
		keyAcks:        keyAcks,
		keyCompression: keyCompression,
		keyLinger:      keyLinger,
		keyMsgTimeout:  "message-timeout",
		keyOutstanding: "max-outstanding",
		keyAutoCreate:  "allow-auto-topic-creation",
		keyLogLevel:    "log-level",
		keyTimeout:     keyTimeout,
		keyMetricsAddr: "metrics-addr",
	}
	for key, flag := range bindings {
		if err := cfg.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(produceCmd)
	rootCmd.AddCommand(versionCmd)
}

// initialize loads the configuration and builds the logger before each
// command.
func initialize(*cobra.Command, []string) error {
	if err := loadConfig(cfg, configFile); err != nil {
		return err
	}

	var err error
	logger, err = newZapLogger(cfg.GetString(keyLogLevel))
	return err
}

// loadConfig wires environment variables into v and reads file, if any.
func loadConfig(v *viper.Viper, file string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if file == "" {
		return nil
	}

	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("config file %s not found: %w", file, err)
		}
		return fmt.Errorf("reading config file %s: %w", file, err)
	}
	return nil
}
