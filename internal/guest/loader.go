package guest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/timetable-bridge/internal/wasm"
)

// Guest is a compiled timetable guest together with its manifest.
type Guest struct {
	Manifest *Manifest

	// Compiled is cached in the runtime under ModuleName.
	Compiled *wasm.CompiledModule

	// Contract reports how the module's imports and exports match the host.
	Contract *wasm.ContractReport

	LoadedAt time.Time
}

// Name returns the guest name from the manifest.
func (g *Guest) Name() string {
	return g.Manifest.Name
}

// ModuleName is the key to instantiate the guest with.
func (g *Guest) ModuleName() string {
	return g.Compiled.Name
}

// Loader handles loading guests from disk.
type Loader struct {
	runtime      *wasm.Runtime
	moduleLoader *wasm.ModuleLoader
	logger       *zap.Logger
}

// NewLoader creates a new guest loader.
func NewLoader(runtime *wasm.Runtime, logger *zap.Logger) *Loader {
	return &Loader{
		runtime:      runtime,
		moduleLoader: wasm.NewModuleLoader(runtime, logger),
		logger:       logger.With(zap.String("component", "guest-loader")),
	}
}

// Load loads a guest from a .wasm file, a manifest.yaml, or a directory
// holding a manifest.yaml, and compiles it.
func (l *Loader) Load(ctx context.Context, path string) (*Guest, error) {
	if path == "" {
		return nil, fmt.Errorf("no guest configured")
	}

	manifest, err := l.resolve(path)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loading guest",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.String("wasm", manifest.WasmPath()),
	)

	compiled, err := l.moduleLoader.LoadModuleFromFile(ctx, manifest.WasmPath())
	if err != nil {
		return nil, &GuestLoadError{
			GuestName: manifest.Name,
			Err:       err,
		}
	}

	guest := &Guest{
		Manifest: manifest,
		Compiled: compiled,
		Contract: wasm.CheckContract(compiled.Module),
		LoadedAt: time.Now(),
	}

	if !guest.Contract.OK() {
		l.logger.Warn("Guest does not satisfy the host contract",
			zap.String("name", manifest.Name),
			zap.Strings("problems", guest.Contract.Problems),
		)
	}

	l.logger.Info("Guest loaded successfully",
		zap.String("name", manifest.Name),
		zap.Int64("size_bytes", compiled.SizeBytes),
	)

	return guest, nil
}

func (l *Loader) resolve(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat guest '%s': %w", path, err)
	}

	switch {
	case info.IsDir():
		return ParseManifest(path)
	case filepath.Base(path) == ManifestFile:
		return ParseManifest(filepath.Dir(path))
	case filepath.Ext(path) == ".wasm":
		l.logger.Debug("Guest has no manifest", zap.String("path", path))
		return manifestForFile(path), nil
	default:
		return nil, fmt.Errorf("guest '%s' is neither a .wasm file nor a guest directory", path)
	}
}
