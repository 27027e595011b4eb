package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/habitkit/habits/internal/apiclient"
	"github.com/habitkit/habits/internal/config"
	"github.com/habitkit/habits/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "habits",
	Short: "Track daily habits and keep your streaks alive",
	Long: `
	Habits is a small habit tracker. The server command runs the web app and JSON API;
	the other commands talk to a running server with an API key, or manage accounts
	directly in the configured storage.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.LoadFile(cfgFile, true)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger.Setup(cmd.ErrOrStderr(), level, cfg.LogFormat)
		return nil
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newClient() (*apiclient.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured: set api_key or HABITS_API_KEY (see 'habits user api-key')")
	}
	return apiclient.New(cfg.APIBaseURL, cfg.APIKey), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HABITS_CONFIG or config.yaml)")
}
