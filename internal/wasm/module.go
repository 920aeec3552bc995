package wasm

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ModuleLoader compiles guest images and keeps them in the runtime's
// compiled-module cache.
type ModuleLoader struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewModuleLoader creates a new module loader.
func NewModuleLoader(runtime *Runtime, logger *zap.Logger) *ModuleLoader {
	return &ModuleLoader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// ModuleSource supplies a guest image.
type ModuleSource interface {
	// Bytes returns the Wasm bytecode.
	Bytes() ([]byte, error)

	// Name identifies the module in the compiled-module cache.
	Name() string
}

// FileModuleSource reads a guest image from disk. The cleaned path is the
// module name.
type FileModuleSource struct {
	Path string
}

func (f *FileModuleSource) Bytes() ([]byte, error) {
	return os.ReadFile(f.Path)
}

func (f *FileModuleSource) Name() string {
	return filepath.Clean(f.Path)
}

// MemoryModuleSource is a guest image already in memory, e.g. embedded.
type MemoryModuleSource struct {
	ModuleName string
	Data       []byte
}

func (m *MemoryModuleSource) Bytes() ([]byte, error) {
	return m.Data, nil
}

func (m *MemoryModuleSource) Name() string {
	return m.ModuleName
}

// LoadModule compiles the image from source unless the module cached under
// the same name was compiled from identical bytes. A changed image replaces
// the cached module once it compiles. Read and compile failures are
// *ModuleLoadError.
func (l *ModuleLoader) LoadModule(ctx context.Context, source ModuleSource) (*CompiledModule, error) {
	name := source.Name()

	image, err := source.Bytes()
	if err != nil {
		return nil, &ModuleLoadError{ModuleName: name, Stage: StageRead, Err: err}
	}
	digest := sha256.Sum256(image)

	if cached, ok := l.runtime.GetCompiledModule(name); ok {
		if cached.Digest == digest {
			l.logger.Debug("Module cache hit", zap.String("module", name))
			return cached, nil
		}
		l.logger.Info("Module image changed, recompiling", zap.String("module", name))
	}

	l.logger.Info("Compiling guest module",
		zap.String("module", name),
		zap.Int("size_bytes", len(image)),
	)

	start := time.Now()
	compiled, err := l.runtime.runtime.CompileModule(ctx, image)
	if err != nil {
		return nil, &ModuleLoadError{ModuleName: name, Stage: StageCompile, Err: err}
	}

	module := &CompiledModule{
		Module:     compiled,
		Name:       name,
		Source:     name,
		SizeBytes:  int64(len(image)),
		Digest:     digest,
		CompiledAt: time.Now().Unix(),
	}
	l.runtime.StoreCompiledModule(module)

	l.logger.Info("Guest module compiled",
		zap.String("module", name),
		zap.Duration("duration", time.Since(start)),
		zap.Int("imports", len(compiled.ImportedFunctions())),
		zap.Int("exports", len(compiled.ExportedFunctions())),
	)

	return module, nil
}

// LoadModuleFromFile is a convenience function for loading from a file path.
func (l *ModuleLoader) LoadModuleFromFile(ctx context.Context, path string) (*CompiledModule, error) {
	return l.LoadModule(ctx, &FileModuleSource{Path: path})
}

// LoadModuleFromMemory loads from a byte slice.
func (l *ModuleLoader) LoadModuleFromMemory(ctx context.Context, name string, data []byte) (*CompiledModule, error) {
	return l.LoadModule(ctx, &MemoryModuleSource{ModuleName: name, Data: data})
}
