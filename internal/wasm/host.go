package wasm

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/timetable-bridge/pkg/protocol"
)

// Callbacks is the host side of the guest's import table. One method per
// callback; every call happens synchronously inside Instance.Submit.
type Callbacks interface {
	// BeginCalendar opens a run of related getUTC/doSemester calls.
	BeginCalendar(ctx context.Context)

	// EndCalendar closes the run opened by BeginCalendar.
	EndCalendar(ctx context.Context)

	// DoSemester reports a semester found in the record.
	DoSemester(ctx context.Context, year, semester int32)

	// Log receives a diagnostic message decoded from guest memory.
	Log(ctx context.Context, message string)

	// GetUTC converts an ISO week date into seconds since the Unix epoch.
	GetUTC(ctx context.Context, year, week, weekday int32) float64
}

// HostFunctionsImpl implements host functions for Wasm modules.
// Calls are routed to the Callbacks bound to the calling instance.
type HostFunctionsImpl struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewHostFunctions creates a new host functions implementation.
func NewHostFunctions(runtime *Runtime, logger *zap.Logger) *HostFunctionsImpl {
	return &HostFunctionsImpl{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-host")),
	}
}

// instantiate registers the host import module with the runtime. It runs at
// most once per runtime.
func (h *HostFunctionsImpl) instantiate(ctx context.Context) error {
	h.runtime.hostOnce.Do(func() {
		builder := h.runtime.runtime.NewHostModuleBuilder(protocol.ImportModule)
		h.export(builder)
		_, h.runtime.hostErr = builder.Instantiate(ctx)
	})
	return h.runtime.hostErr
}

// export registers Go functions for import by Wasm modules.
func (h *HostFunctionsImpl) export(builder wazero.HostModuleBuilder) {
	builder.NewFunctionBuilder().
		WithFunc(h.beginCalendar).
		Export(protocol.CallbackBeginCalendar)

	builder.NewFunctionBuilder().
		WithFunc(h.endCalendar).
		Export(protocol.CallbackEndCalendar)

	builder.NewFunctionBuilder().
		WithFunc(h.doSemester).
		WithParameterNames("year", "semester").
		Export(protocol.CallbackDoSemester)

	builder.NewFunctionBuilder().
		WithFunc(h.log).
		WithParameterNames("ptr", "size").
		Export(protocol.CallbackLog)

	builder.NewFunctionBuilder().
		WithFunc(h.getUTC).
		WithParameterNames("year", "week", "weekday").
		WithResultNames("seconds").
		Export(protocol.CallbackGetUTC)
}

// instanceFor finds the instance the guest call belongs to: the in-flight
// submission first, then the runtime's instance table.
func (h *HostFunctionsImpl) instanceFor(ctx context.Context, mod api.Module, callback string) *Instance {
	if sub := submissionFromContext(ctx); sub != nil && sub.instance.ID == mod.Name() {
		return sub.instance
	}

	inst, ok := h.runtime.GetInstance(mod.Name())
	if !ok {
		h.logger.Error("Callback from untracked module",
			zap.String("callback", callback),
			zap.String("module", mod.Name()),
		)
		return nil
	}

	h.logger.Warn("Callback outside of parse",
		zap.String("callback", callback),
		zap.String("instance_id", inst.ID),
	)
	return inst
}

// fail records err on the in-flight submission and aborts guest execution.
func (h *HostFunctionsImpl) fail(ctx context.Context, callback string, err error) {
	hostErr := &HostFunctionError{FunctionName: callback, Err: err}
	if sub := submissionFromContext(ctx); sub != nil && sub.err == nil {
		sub.err = hostErr
	}
	panic(hostErr)
}

func (h *HostFunctionsImpl) beginCalendar(ctx context.Context, mod api.Module) {
	inst := h.instanceFor(ctx, mod, protocol.CallbackBeginCalendar)
	if inst == nil {
		return
	}
	h.logger.Debug("beginCalendar", zap.String("instance_id", inst.ID))
	inst.callbacks.BeginCalendar(ctx)
}

func (h *HostFunctionsImpl) endCalendar(ctx context.Context, mod api.Module) {
	inst := h.instanceFor(ctx, mod, protocol.CallbackEndCalendar)
	if inst == nil {
		return
	}
	h.logger.Debug("endCalendar", zap.String("instance_id", inst.ID))
	inst.callbacks.EndCalendar(ctx)
}

func (h *HostFunctionsImpl) doSemester(ctx context.Context, mod api.Module, year, semester int32) {
	inst := h.instanceFor(ctx, mod, protocol.CallbackDoSemester)
	if inst == nil {
		return
	}
	h.logger.Debug("doSemester",
		zap.String("instance_id", inst.ID),
		zap.Int32("year", year),
		zap.Int32("semester", semester),
	)
	inst.callbacks.DoSemester(ctx, year, semester)
}

// log is called by Wasm modules to log messages.
// Signature: log(ptr, size)
func (h *HostFunctionsImpl) log(ctx context.Context, mod api.Module, ptr uint32, size uint32) {
	inst := h.instanceFor(ctx, mod, protocol.CallbackLog)
	if inst == nil {
		return
	}

	// Read message from the current memory; guest allocation may have grown it.
	msg, warn, err := NewMemory(mod).ReadString(ptr, size)
	if err != nil {
		h.logger.Error("Failed to read log message from Wasm memory",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err),
		)
		h.fail(ctx, protocol.CallbackLog, err)
		return
	}
	if warn != nil {
		h.logger.Warn("Guest log message is not valid UTF-8",
			zap.String("instance_id", inst.ID),
			zap.Error(warn),
		)
	}

	inst.callbacks.Log(ctx, msg)
}

func (h *HostFunctionsImpl) getUTC(ctx context.Context, mod api.Module, year, week, weekday int32) float64 {
	inst := h.instanceFor(ctx, mod, protocol.CallbackGetUTC)
	if inst == nil {
		return 0
	}
	seconds := inst.callbacks.GetUTC(ctx, year, week, weekday)
	h.logger.Debug("getUTC",
		zap.String("instance_id", inst.ID),
		zap.Int32("year", year),
		zap.Int32("week", week),
		zap.Int32("weekday", weekday),
		zap.Float64("seconds", seconds),
	)
	return seconds
}
