package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/strefethen/harmony-go/internal/config"
	"github.com/strefethen/harmony-go/internal/logging"
)

// Set via ldflags at build time
var (
	Version = "0.1.0"
	Commit  = "unknown"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "harmony",
		Short: "Playback queue orchestrator for a browser player",
		Long: `Harmony resolves play requests against YouTube, downloads the audio with yt-dlp
and drives a browser player page over a websocket.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				return os.Setenv("HARMONY_CONFIG", cfgFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "TOML config file (default: $HARMONY_CONFIG)")

	serve := newServeCmd()
	root.AddCommand(serve, newTokenCmd(), newVersionCmd())
	root.RunE = serve.RunE
	return root
}

func loadConfig() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
