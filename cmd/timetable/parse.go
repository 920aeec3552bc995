package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/woxQAQ/timetable-bridge/internal/app"
	"github.com/woxQAQ/timetable-bridge/internal/timetable"
)

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse timetable records",
		Long: `Parse tab-delimited timetable records, one per line, with the guest.

Records can be provided via:
  - File argument: timetable parse records.tsv
  - Inline flag: timetable parse -r "$(head -1 records.tsv)"
  - Stdin: cat records.tsv | timetable parse`,
		Args: cobra.MaximumNArgs(1),
		RunE: runParse,
	}
	cmd.Flags().StringArrayP("record", "r", nil, "Record to parse (repeatable)")
	return cmd
}

func readRecords(cmd *cobra.Command, args []string) ([]string, error) {
	if records, _ := cmd.Flags().GetStringArray("record"); len(records) > 0 {
		return records, nil
	}

	in := cmd.InOrStdin()
	if len(args) == 0 {
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return nil, fmt.Errorf("no records: pass a file, use --record, or pipe records on stdin")
		}
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("error reading records: %w", err)
		}
		defer f.Close()
		in = f
	}
	return timetable.ScanRecords(in)
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	records, err := readRecords(cmd, args)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no records to parse")
	}

	ctx := cmd.Context()
	bridge, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer bridge.Close(context.Background())

	out := newEncoder(cmd.OutOrStdout(), cfg.Format)
	defer out.Close()

	failed := 0
	for i, record := range records {
		report, err := bridge.Parse(ctx, record)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			logger.Error("Record failed", zap.Int("index", i), zap.Error(err))
		}
		if err := out.Encode(report); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d records failed", failed, len(records))
	}
	return nil
}
