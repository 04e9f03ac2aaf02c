package native

import (
	"context"

	"github.com/sugawarayuuta/sonnet"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
	"github.com/aws/aws-gamekit-unity-sub001/handle"
)

// CallbackModule is the import namespace native libraries use to call back
// into Go:
//
//	(import "gamekit" "receive" (func (param i64 i32 i32 i32)))  ;; receiver, kind, ptr, len
//	(import "gamekit" "log"     (func (param i64 i32 i32 i32)))  ;; sink, level, ptr, len
const CallbackModule = "gamekit"

// Payload is one result delivered by a native callback. Data is a copy and
// remains valid after the callback returns.
type Payload struct {
	Data []byte
	Kind uint32
}

// String returns Data as a string.
func (p Payload) String() string {
	return string(p.Data)
}

// Decode unmarshals a JSON payload into v.
func (p Payload) Decode(v any) error {
	if len(p.Data) == 0 {
		return errors.InvalidData(errors.PhaseDecode, nil, "empty payload")
	}
	if err := sonnet.Unmarshal(p.Data, v); err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode payload")
	}
	return nil
}

// Receiver is the Go object behind a dispatch receiver handle. Native code
// calls it zero or more times during the call it was handed to.
//
// For a library with its own memory, Receive runs while that library is
// mid-call: it must not touch the library's memory or allocator, and a
// nested call made with the context it was given fails with
// KindReentrantCall instead of deadlocking.
type Receiver interface {
	Receive(ctx context.Context, p Payload)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, p Payload)

func (f ReceiverFunc) Receive(ctx context.Context, p Payload) {
	f(ctx, p)
}

// LogSink receives log lines from native code.
type LogSink interface {
	Log(level uint32, message string)
}

// Deliver resolves h to a Receiver and hands it p on the calling goroutine.
// Unknown, released or mistyped handles are logged and ignored.
func (r *Runtime) Deliver(ctx context.Context, h handle.Handle, p Payload) {
	recv, err := handle.GetDispatchObject[Receiver](r.registry, h)
	if err != nil {
		Logger().Warn("native callback for unusable receiver dropped",
			zap.Uint64("handle", uint64(h)),
			zap.Uint32("kind", p.Kind),
			zap.Error(err))
		return
	}
	recv.Receive(ctx, p)
}

// Log routes a native log line to the sink pinned as h. With no usable sink
// the line goes to the package logger.
func (r *Runtime) Log(h handle.Handle, level uint32, message string) {
	if h != 0 {
		if sink, err := handle.GetDispatchObject[LogSink](r.registry, h); err == nil {
			sink.Log(level, message)
			return
		}
	}
	Logger().Info(message,
		zap.String("source", "native"),
		zap.Uint32("level", level))
}

func (r *Runtime) instantiateCallbacks(ctx context.Context, rt wazero.Runtime) error {
	params := []api.ValueType{api.ValueTypeI64, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}

	_, err := rt.NewHostModuleBuilder(CallbackModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(r.receive), params, nil).
		WithParameterNames("receiver", "kind", "ptr", "len").
		Export("receive").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(r.log), params, nil).
		WithParameterNames("sink", "level", "ptr", "len").
		Export("log").
		Instantiate(ctx)
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindNativeFailure, err, "instantiate callback module")
	}
	return nil
}

func (r *Runtime) receive(ctx context.Context, mod api.Module, stack []uint64) {
	h := handle.Handle(stack[0])
	kind := api.DecodeU32(stack[1])
	data, ok := r.copyFrom(mod, api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
	if !ok {
		Logger().Warn("native callback payload out of bounds",
			zap.String("library", mod.Name()),
			zap.Uint64("handle", uint64(h)))
		return
	}
	r.Deliver(ctx, h, Payload{Kind: kind, Data: data})
}

func (r *Runtime) log(_ context.Context, mod api.Module, stack []uint64) {
	data, ok := r.copyFrom(mod, api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
	if !ok {
		return
	}
	r.Log(handle.Handle(stack[0]), api.DecodeU32(stack[1]), string(data))
}

// copyFrom reads len bytes at ptr from the caller's memory, or from the
// runtime heap when the caller has none. A guest caller is mid-call and holds
// its memory exclusively, so its memory is read directly.
func (r *Runtime) copyFrom(mod api.Module, ptr, length uint32) ([]byte, bool) {
	if length == 0 {
		return nil, true
	}
	mem := memoryOf(mod)
	if mem == nil {
		data, err := r.heap.Memory().Read(ptr, length)
		return data, err == nil
	}
	data, ok := mem.Read(ptr, length)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
