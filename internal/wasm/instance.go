package wasm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/timetable-bridge/pkg/protocol"
)

// InstanceManager creates and manages module instances.
type InstanceManager struct {
	runtime   *Runtime
	logger    *zap.Logger
	hostFuncs *HostFunctionsImpl
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime:   runtime,
		hostFuncs: NewHostFunctions(runtime, logger),
		logger:    logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (if empty, one is generated).
	InstanceID string

	// Callbacks the guest's host imports are bound to. Required.
	Callbacks Callbacks
}

// Instance represents an instantiated Wasm module.
//
// Submit calls on one Instance are serialised; the guest allocator is not
// re-entrant.
type Instance struct {
	// wazero module instance.
	module api.Module

	// Instance metadata.
	ID        string
	Name      string
	CreatedAt int64

	// Exported functions (cached for performance).
	exports map[string]api.Function

	callbacks Callbacks
	runtime   *Runtime
	logger    *zap.Logger

	mu sync.Mutex
}

// Instantiate creates a new instance from a compiled module.
// The guest's imports are checked against the callback table before the
// module is instantiated; any mismatch is a *ModuleLoadError.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	if config.Callbacks == nil {
		return nil, errors.New("instance config requires callbacks")
	}

	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	if report := CheckContract(compiled.Module); !report.OK() {
		return nil, &ModuleLoadError{
			ModuleName: config.ModuleName,
			Stage:      StageBind,
			Reason:     strings.Join(report.Problems, "; "),
		}
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = generateInstanceID()
	}

	m.logger.Info("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	if err := m.hostFuncs.instantiate(ctx); err != nil {
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	instance := &Instance{
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now().Unix(),
		callbacks: config.Callbacks,
		runtime:   m.runtime,
		logger: m.logger.With(
			zap.String("instance_id", instanceID),
			zap.String("module", config.ModuleName),
		),
	}

	// Tracked before instantiation so callbacks from an _initialize
	// function can be routed.
	if limit := m.runtime.config.MaxInstances; !m.runtime.trackInstance(instance, limit) {
		return nil, fmt.Errorf("instance limit reached (%d)", limit)
	}

	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions("_initialize")

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		m.runtime.DeleteInstance(instanceID)
		return nil, &ModuleLoadError{
			ModuleName: config.ModuleName,
			Stage:      StageInstantiate,
			Reason:     "instance " + instanceID,
			Err:        err,
		}
	}

	instance.module = module
	instance.exports = m.cacheExportedFunctions(module)

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(instance.exports)),
	)

	return instance, nil
}

// Submit encodes record as UTF-8, copies it into a buffer obtained from the
// guest's alloc export and runs the guest's parse export over it. All host
// callbacks issued by the guest run before Submit returns.
func (i *Instance) Submit(ctx context.Context, record string) error {
	if sub := submissionFromContext(ctx); sub != nil && sub.instance == i {
		return &ReentrantSubmitError{InstanceID: i.ID}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if i.module == nil || i.module.IsClosed() {
		return fmt.Errorf("instance '%s' is closed", i.ID)
	}

	alloc, ok := i.exports[protocol.ExportAlloc]
	if !ok {
		return &FunctionNotFoundError{ModuleName: i.Name, FunctionName: protocol.ExportAlloc}
	}
	parse, ok := i.exports[protocol.ExportParse]
	if !ok {
		return &FunctionNotFoundError{ModuleName: i.Name, FunctionName: protocol.ExportParse}
	}

	sub := &submission{instance: i}
	ctx = withSubmission(ctx, sub)

	buf, err := i.Memory().WriteString(ctx, alloc, record)
	if err != nil {
		if sub.err != nil {
			return sub.err
		}
		i.logger.Error("Failed to copy record into guest memory",
			zap.Int("bytes", len(record)),
			zap.Error(err),
		)
		return err
	}

	i.logger.Debug("Parsing record",
		zap.Uint32("ptr", buf.Ptr),
		zap.Uint32("size", buf.Len),
	)

	if _, err := parse.Call(ctx, uint64(buf.Ptr), uint64(buf.Len)); err != nil {
		if sub.err != nil {
			return sub.err
		}
		return fmt.Errorf("guest parse failed: %w", err)
	}

	return nil
}

// Memory returns a memory helper for the instance.
func (i *Instance) Memory() *Memory {
	return NewMemory(i.module)
}

// Close closes the instance and releases resources. It waits for an
// in-flight Submit to return and must not be called from a callback of the
// same instance.
func (i *Instance) Close(ctx context.Context) error {
	if sub := submissionFromContext(ctx); sub != nil && sub.instance == i {
		return fmt.Errorf("instance '%s' cannot be closed from within its own guest callback", i.ID)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.runtime.DeleteInstance(i.ID)
	if i.module == nil {
		return nil
	}
	return i.module.Close(ctx)
}

// cacheExportedFunctions caches references to exported functions.
// This improves performance by avoiding repeated lookups.
func (m *InstanceManager) cacheExportedFunctions(module api.Module) map[string]api.Function {
	exports := make(map[string]api.Function)

	for _, name := range []string{protocol.ExportAlloc, protocol.ExportParse} {
		if fn := module.ExportedFunction(name); fn != nil {
			exports[name] = fn
		}
	}

	return exports
}

// submission is the state of one in-flight Submit call, carried through the
// context wazero hands to host functions.
type submission struct {
	instance *Instance

	// First error recorded by a host function; it aborts the guest.
	err error
}

type submissionKey struct{}

func withSubmission(ctx context.Context, sub *submission) context.Context {
	return context.WithValue(ctx, submissionKey{}, sub)
}

func submissionFromContext(ctx context.Context) *submission {
	sub, _ := ctx.Value(submissionKey{}).(*submission)
	return sub
}

var instanceSeq atomic.Uint64

// generateInstanceID generates a unique instance ID.
func generateInstanceID() string {
	return fmt.Sprintf("inst-%d-%d", time.Now().UnixNano(), instanceSeq.Add(1))
}
