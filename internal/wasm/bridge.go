package wasm

import (
	"context"

	"go.uber.org/zap"
)

// Instantiate compiles image and instantiates it with callbacks bound to its
// host imports. Malformed images and contract mismatches are *ModuleLoadError.
func Instantiate(ctx context.Context, runtime *Runtime, logger *zap.Logger, name string, image []byte, callbacks Callbacks) (*Instance, error) {
	if _, err := NewModuleLoader(runtime, logger).LoadModuleFromMemory(ctx, name, image); err != nil {
		return nil, err
	}
	return NewInstanceManager(runtime, logger).Instantiate(ctx, &InstanceConfig{
		ModuleName: name,
		Callbacks:  callbacks,
	})
}
