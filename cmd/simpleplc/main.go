// Command simpleplc runs the soft-PLC simulator: it loads the
// configuration file, wires the register bank to the scan engine and
// the Modbus/OPC UA front-ends, and runs until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tommy-berg/SimplePLC/internal/config"
	"github.com/tommy-berg/SimplePLC/internal/orchestrator"
)

const banner = "SimplePLC - Combined Modbus and OPC UA Server"

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "simpleplc [config_path]",
		Short: "Soft-PLC simulator exposing a register bank over Modbus/TCP and OPC UA",
		Args:  cobra.MaximumNArgs(1),
		RunE:  run,
	}
}

func run(_ *cobra.Command, args []string) error {
	configPath := "settings.ini"
	if len(args) == 1 {
		configPath = args[0]
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("simpleplc: create logger: %w", err)
	}
	defer logger.Sync()

	fmt.Println(banner)
	logger.Info(banner)

	cfg, err := config.Load(configPath, logger)
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orchestrator.Run(ctx, cfg, logger); err != nil {
		logger.Error("simpleplc exited with error", zap.Error(err))
		return err
	}

	logger.Info("simpleplc stopped cleanly")
	return nil
}
