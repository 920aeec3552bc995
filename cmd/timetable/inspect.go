package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/woxQAQ/timetable-bridge/internal/app"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show a guest's imports and exports and check them against the host",
		Args:  cobra.NoArgs,
		RunE:  runInspect,
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	info, err := app.Inspect(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	out := newEncoder(cmd.OutOrStdout(), cfg.Format)
	if err := out.Encode(info); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if !info.Contract.OK() {
		return fmt.Errorf("guest %s does not satisfy the host contract", info.Name)
	}
	return nil
}
