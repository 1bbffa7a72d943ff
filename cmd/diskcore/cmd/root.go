// Package cmd implements the diskcore command-line tree: thin cobra
// subcommands that exercise internal/orchestration and render results
// or errors, carrying no parsing logic of their own.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/forensiccore/diskvault/internal/config"
	"github.com/forensiccore/diskvault/internal/coreerr"
)

var (
	configFile string
	useMmap    bool
	logLevel   string
	logFile    string

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "diskcore",
	Short:         "Forensic disk-image analysis: vaults, zones, and filesystem territories",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("mmap") {
			cfg.DefaultUseMmap = useMmap
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-file") {
			cfg.LogPath = logFile
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		appConfig = cfg
		configureLogging(cfg)
		return nil
	},
}

func configureLogging(cfg *config.Config) {
	var out io.Writer = os.Stderr
	if cfg.LogPath != "" {
		out = &lumberjack.Logger{Filename: cfg.LogPath, MaxSize: 100, MaxBackups: 3, MaxAge: 28}
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
}

// Execute runs the root command and returns any error from a subcommand,
// with a *coreerr.Error rendered as "kind: context" per the universal
// failure-handling contract; exiting non-zero is left to main.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return renderErr(err)
	}
	return nil
}

func renderErr(err error) error {
	var ce *coreerr.Error
	if e, ok := err.(*coreerr.Error); ok {
		ce = e
	}
	if ce != nil {
		return fmt.Errorf("%s: %s", ce.Kind, ce.Context)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&useMmap, "mmap", false, "use a memory-mapped stream view where supported")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file (with rotation) instead of stderr")
}
