// Package main implements the agentflow CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/config"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
	"github.com/fyrsmithlabs/agentflow/internal/secrets"
	"github.com/fyrsmithlabs/agentflow/internal/telemetry"
)

var (
	// configFile overrides ~/.config/agentflow/config.yaml
	configFile string
	// logLevel overrides logging.level
	logLevel string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentflow",
	Short: "Multi-agent development workflow orchestrator",
	Long: `agentflow drives a team of LLM agents (product analyst, architect,
developer, debugger, code reviewer) through a phased development workflow,
recording every decision in an activity log.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config-file", "", "path to agentflow config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
}

// app bundles the ambient services every command needs.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	scrubber secrets.Scrubber
}

// loadApp reads configuration and builds the logger, telemetry and
// scrubber from it.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configFile)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, logLevel)
}

func newApp(ctx context.Context, cfg *config.Config, levelOverride string) (*app, error) {
	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry))
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	logger, err := newLogger(cfg.Logging, levelOverride, tel)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	scrubber := secrets.Scrubber(secrets.Nop{})
	if cfg.Secrets.ScrubPrompts {
		scrubber, err = secrets.New(secrets.DefaultConfig())
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("secrets: %w", err)
		}
	}

	return &app{cfg: cfg, logger: logger, tel: tel, scrubber: scrubber}, nil
}

// newLogger writes to stderr so stdout stays free for command output and
// the MCP stdio transport.
func newLogger(lc config.LoggingConfig, levelOverride string, tel *telemetry.Telemetry) (*logging.Logger, error) {
	cfg := logging.NewDefaultConfig()
	cfg.Format = lc.Format
	cfg.Output = logging.OutputConfig{Stderr: true}

	level := lc.Level
	if levelOverride != "" {
		level = levelOverride
	}
	if level != "" {
		lvl, err := logging.LevelFromString(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}

	provider := tel.LoggerProvider()
	if lc.OTEL && provider != nil {
		cfg.Output.OTEL = true
	} else {
		provider = nil
	}
	return logging.NewLogger(cfg, provider)
}

func (a *app) close(ctx context.Context) {
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
