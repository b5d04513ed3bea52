package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aldas/go-canxl-regs/internal/config"
	"github.com/aldas/go-canxl-regs/internal/ctxlog"
	"github.com/aldas/go-canxl-regs/internal/logging"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// app holds configuration and logger shared by subcommands. Filled by root command before subcommand runs.
type app struct {
	config config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{config: config.Default(), logger: slog.Default()}

	root := &cobra.Command{
		Use:           "canxl",
		Short:         "X_CAN / XS_CAN / X_CANB register decoder and bit-timing calculator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().String("config", "", "path to TOML configuration file (default ./"+config.DefaultPath+" when it exists)")
	root.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	root.PersistentFlags().String("log-format", "", "log format (text|json)")
	root.PersistentFlags().Bool("no-color", false, "disable colored output")

	root.AddCommand(
		newBitsCmd(),
		newBinaryCmd(),
		newDecodeCmd(a),
		newBitTimingCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	path, err := flags.GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if noColor, _ := flags.GetBool("no-color"); noColor {
		color.NoColor = true
	}

	a.config = cfg
	a.logger = logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), a.logger))
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
