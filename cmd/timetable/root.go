package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/timetable-bridge/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "timetable",
		Short: "Run a WebAssembly timetable parser against timetable records",
		Long: `timetable - Feed timetable records to a WebAssembly guest parser.

The guest is a core Wasm module exporting alloc, parse and memory. It reports
what it finds through the host callbacks log, beginCalendar, endCalendar,
doSemester and getUTC, which this tool collects into one report per record.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Path to configuration file")
	root.PersistentFlags().StringP("guest", "g", "", "Guest .wasm file or directory with manifest.yaml")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringP("format", "o", "", "Output format: yaml, json")

	root.AddCommand(newParseCmd(), newUTCCmd(), newInspectCmd())
	return root
}

// loadConfig reads the config file and environment, then applies flags that
// were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("guest") {
		cfg.Guest, _ = cmd.Flags().GetString("guest")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("format") {
		cfg.Format, _ = cmd.Flags().GetString("format")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes to stderr so stdout only carries reports.
func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

type encoder interface {
	Encode(v any) error
	Close() error
}

type jsonEncoder struct {
	*json.Encoder
}

func (jsonEncoder) Close() error { return nil }

func newEncoder(w io.Writer, format string) encoder {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return jsonEncoder{enc}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return enc
}
