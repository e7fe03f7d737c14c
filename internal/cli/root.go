// Package cli provides the command-line interface for the backtester.
package cli

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dorsadeh/wheel/internal/config"
)

// Version is the CLI version reported by --version.
const Version = "0.3.0"

// App holds the dependencies shared by all commands.
type App struct {
	ConfigPath string
	Config     *config.Config
	Log        *logrus.Logger

	// flag overrides applied on top of the loaded config
	CacheDir  string
	OutputDir string
	LogLevel  string
	LogFile   string
}

// loadConfig reads the configured YAML file once, layers any flag
// overrides on top, and applies the logging section. Commands that need
// configuration call this from their RunE.
func (a *App) loadConfig() (*config.Config, error) {
	if a.Config != nil {
		return a.Config, nil
	}
	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return nil, err
	}
	if a.CacheDir != "" {
		cfg.Data.CacheDir = a.CacheDir
	}
	if a.OutputDir != "" {
		cfg.Output.Dir = a.OutputDir
	}
	if a.LogLevel != "" {
		cfg.Logging.Level = a.LogLevel
	}
	if a.LogFile != "" {
		cfg.Logging.File = a.LogFile
	}
	a.Config = cfg
	a.applyLogging(cfg.Logging)
	return cfg, nil
}

func (a *App) applyLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	a.Log.SetLevel(level)

	if cfg.Format == "json" {
		a.Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		a.Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		a.Log.SetOutput(io.MultiWriter(a.Log.Out, rotator))
	}
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(log *logrus.Logger) *cobra.Command {
	app := &App{Log: log}

	rootCmd := &cobra.Command{
		Use:   "wheel",
		Short: "Wheel strategy backtester",
		Long: `wheel backtests the options wheel strategy over historical daily
option chains: sell cash-secured puts, take assignment, sell covered calls,
and start over when the shares are called away.

Use 'wheel help <command>' for more information about a command.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&app.ConfigPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&app.CacheDir, "cache-dir", "", "override the data cache directory")
	rootCmd.PersistentFlags().StringVar(&app.OutputDir, "output-dir", "", "override the report output directory")
	rootCmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "override the log level")
	rootCmd.PersistentFlags().StringVar(&app.LogFile, "log-file", "", "override the log file path")

	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newBenchmarkCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newCacheCmd(app))
	rootCmd.AddCommand(newTickersCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))

	return rootCmd
}

// Execute runs the CLI and returns an exit code.
func Execute(log *logrus.Logger) int {
	rootCmd := NewRootCmd(log)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}
