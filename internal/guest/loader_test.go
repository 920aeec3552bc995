package guest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/woxQAQ/timetable-bridge/internal/testutil"
	"github.com/woxQAQ/timetable-bridge/internal/wasm"
)

func newLoader(t *testing.T) *Loader {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	runtime, err := wasm.NewRuntime(ctx, logger, wasm.DefaultRuntimeConfig())
	require.NoError(t, err)
	t.Cleanup(func() { runtime.Close(ctx) })

	return NewLoader(runtime, logger)
}

func TestLoader_Load_Directory(t *testing.T) {
	loader := newLoader(t)
	dir := writeGuest(t, validManifest, testutil.EchoGuest())

	guest, err := loader.Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "bk-timetable", guest.Name())
	assert.Equal(t, filepath.Join(dir, "parser.wasm"), guest.ModuleName())
	assert.True(t, guest.Contract.OK(), "problems: %v", guest.Contract.Problems)
	assert.False(t, guest.LoadedAt.IsZero())

	// The manifest file itself is accepted too.
	again, err := loader.Load(context.Background(), filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	assert.Same(t, guest.Compiled, again.Compiled)
}

func TestLoader_Load_WasmFile(t *testing.T) {
	loader := newLoader(t)
	path := filepath.Join(t.TempDir(), "bk.wasm")
	require.NoError(t, os.WriteFile(path, testutil.EchoGuest(), 0o644))

	guest, err := loader.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "bk", guest.Name())
	assert.Equal(t, path, guest.Manifest.WasmPath())
}

func TestLoader_Load_ContractProblemsAreReported(t *testing.T) {
	loader := newLoader(t)
	dir := writeGuest(t, validManifest, testutil.GuestWithoutParse())

	guest, err := loader.Load(context.Background(), dir)
	require.NoError(t, err)

	assert.False(t, guest.Contract.OK())
	assert.Contains(t, guest.Contract.Problems, `missing export "parse"`)
}

func TestLoader_Load_Errors(t *testing.T) {
	loader := newLoader(t)

	t.Run("no path", func(t *testing.T) {
		_, err := loader.Load(context.Background(), "")
		assert.Error(t, err)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("not a guest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))
		_, err := loader.Load(context.Background(), path)
		assert.ErrorContains(t, err, "neither a .wasm file nor a guest directory")
	})

	t.Run("manifest not found", func(t *testing.T) {
		_, err := loader.Load(context.Background(), t.TempDir())
		var notFound *ManifestNotFoundError
		assert.True(t, errors.As(err, &notFound), "got %T", err)
	})

	t.Run("invalid manifest", func(t *testing.T) {
		dir := writeGuest(t, "version: 1.0.0\n", testutil.EchoGuest())
		_, err := loader.Load(context.Background(), dir)
		var invalid *ManifestValidationError
		assert.True(t, errors.As(err, &invalid), "got %T", err)
	})

	t.Run("wasm not found", func(t *testing.T) {
		dir := writeGuest(t, validManifest, nil)
		_, err := loader.Load(context.Background(), dir)
		var notFound *WasmNotFoundError
		assert.True(t, errors.As(err, &notFound), "got %T", err)
	})

	t.Run("malformed wasm", func(t *testing.T) {
		dir := writeGuest(t, validManifest, []byte("definitely not wasm"))
		_, err := loader.Load(context.Background(), dir)

		var loadErr *GuestLoadError
		require.True(t, errors.As(err, &loadErr), "got %T", err)
		assert.Equal(t, "bk-timetable", loadErr.GuestName)

		var moduleErr *wasm.ModuleLoadError
		require.True(t, errors.As(err, &moduleErr))
		assert.Equal(t, wasm.StageCompile, moduleErr.Stage)
	})
}
