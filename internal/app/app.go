// Package app wires configuration, the Wasm runtime, the guest and the
// timetable collector together.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/woxQAQ/timetable-bridge/internal/config"
	"github.com/woxQAQ/timetable-bridge/internal/guest"
	"github.com/woxQAQ/timetable-bridge/internal/timetable"
	"github.com/woxQAQ/timetable-bridge/internal/wasm"
	"github.com/woxQAQ/timetable-bridge/pkg/protocol"
)

// App is a loaded guest bound to a collector, ready to parse records.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	runtime   *wasm.Runtime
	guest     *guest.Guest
	instance  *wasm.Instance
	collector *timetable.Collector

	// Pairs a collector reset with the submit it belongs to.
	mu sync.Mutex
}

// GuestInfo describes a loaded guest and how it matches the host contract.
type GuestInfo struct {
	Name        string               `json:"name" yaml:"name"`
	Version     string               `json:"version" yaml:"version"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Wasm        string               `json:"wasm" yaml:"wasm"`
	SizeBytes   int64                `json:"size_bytes" yaml:"size_bytes"`
	Contract    *wasm.ContractReport `json:"contract" yaml:"contract"`
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*wasm.Runtime, error) {
	wasmConfig := &wasm.RuntimeConfig{
		MemoryPages:  cfg.Wasm.MemoryPages,
		DebugEnabled: cfg.Wasm.Debug,
		CacheDir:     cfg.Wasm.CacheDir,
		MaxInstances: cfg.Wasm.MaxInstances,
	}

	runtime, err := wasm.NewRuntime(ctx, logger, wasmConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}
	return runtime, nil
}

// New loads the configured guest and instantiates it with a collector.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	runtime, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	g, err := guest.NewLoader(runtime, logger).Load(ctx, cfg.Guest)
	if err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	collector := timetable.NewCollector(logger)
	instance, err := wasm.NewInstanceManager(runtime, logger).Instantiate(ctx, &wasm.InstanceConfig{
		ModuleName: g.ModuleName(),
		Callbacks:  collector,
	})
	if err != nil {
		runtime.Close(ctx)
		return nil, &guest.GuestLoadError{GuestName: g.Name(), Err: err}
	}

	logger.Info("Timetable bridge initialized",
		zap.String("guest", g.Name()),
		zap.String("guest_version", g.Manifest.Version),
		zap.Uint32("wasm_memory_pages", cfg.Wasm.MemoryPages),
		zap.String("wasm_cache_dir", cfg.Wasm.CacheDir),
	)

	return &App{
		cfg:       cfg,
		logger:    logger,
		runtime:   runtime,
		guest:     g,
		instance:  instance,
		collector: collector,
	}, nil
}

// Parse submits one record to the guest and returns what it reported. On a
// guest failure the partial report is returned alongside the error.
func (a *App) Parse(ctx context.Context, record string) (*protocol.Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.collector.Reset(record)
	err := a.instance.Submit(ctx, record)
	report := a.collector.Report()
	if err != nil {
		a.logger.Error("Guest failed to parse record",
			zap.Int("bytes", len(record)),
			zap.Error(err),
		)
		return report, err
	}
	return report, nil
}

// Guest describes the running guest.
func (a *App) Guest() *GuestInfo {
	return describe(a.guest)
}

// Close gracefully shuts down the bridge.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("Shutting down timetable bridge")

	if err := a.runtime.Close(ctx); err != nil {
		a.logger.Error("Failed to shutdown Wasm runtime", zap.Error(err))
		return err
	}

	a.logger.Info("Timetable bridge shutdown complete")
	return nil
}

// Inspect compiles the configured guest without instantiating it, so guests
// that do not satisfy the contract can still be described.
func Inspect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*GuestInfo, error) {
	runtime, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer runtime.Close(ctx)

	g, err := guest.NewLoader(runtime, logger).Load(ctx, cfg.Guest)
	if err != nil {
		return nil, err
	}
	return describe(g), nil
}

func describe(g *guest.Guest) *GuestInfo {
	return &GuestInfo{
		Name:        g.Name(),
		Version:     g.Manifest.Version,
		Description: g.Manifest.Description,
		Wasm:        g.Manifest.WasmPath(),
		SizeBytes:   g.Compiled.SizeBytes,
		Contract:    g.Contract,
	}
}
