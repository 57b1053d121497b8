// Command quickhnsw builds, queries and maintains quantized HNSW index files.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xDarkicex/quickhnsw/internal/config"
	"github.com/xDarkicex/quickhnsw/internal/obs"
)

var (
	configPath string
	logLevel   string

	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "quickhnsw",
	Short:         "Build and query quantized HNSW indexes",
	Long:          `A command-line interface for building, searching, rebuilding and verifying HNSW index files with inline scalar quantization.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.ApplyEnv(); err != nil {
			return err
		}

		obs.ConfigureFromEnv()
		if cmd.Flags().Changed("log-level") || os.Getenv(obs.LogEnv) == "" {
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			zerolog.SetGlobalLevel(cfg.Level())
		}

		logger = obs.NewLogger(os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (off, error, warn, info, debug)")

	rootCmd.AddCommand(
		buildCmd,
		searchCmd,
		rebuildCmd,
		infoCmd,
		verifyCmd,
	)
}

func main() {
	logger = obs.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}
