package native

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	gamekit "github.com/aws/aws-gamekit-unity-sub001"
	"github.com/aws/aws-gamekit-unity-sub001/errors"
	"github.com/aws/aws-gamekit-unity-sub001/handle"
)

// Ptr is a native pointer or opaque native handle (wasm32).
type Ptr uint32

// Status is the code returned by native entry points. 0 is success; every
// other value is defined by the feature that returned it.
type Status uint32

const StatusSuccess Status = 0

// OK reports whether s is StatusSuccess.
func (s Status) OK() bool {
	return s == StatusSuccess
}

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return fmt.Sprintf("status %#x", uint32(s))
}

// Library is one loaded native library.
type Library struct {
	id      string
	mod     api.Module
	runtime *Runtime
	memory  *Memory
	alloc   gamekit.Allocator
	entries map[string]*EntryPoint
	mu      sync.Mutex

	// callMu serializes calls into libraries that run guest code, whose
	// linear memory and stack are not safe for concurrent use.
	callMu sync.Mutex
	serial bool
}

// ID returns the library identifier it was loaded under.
func (l *Library) ID() string {
	return l.id
}

// Runtime returns the runtime the library was loaded into.
func (l *Library) Runtime() *Runtime {
	return l.runtime
}

// Memory returns the memory that pointers passed to the library refer to.
func (l *Library) Memory() *Memory {
	return l.memory
}

// Allocator returns the allocator for buffers passed to the library.
func (l *Library) Allocator() gamekit.Allocator {
	return l.alloc
}

// Bind looks up the entry point sig.Name and checks its flattened signature.
// A missing export or a signature mismatch is KindEntryPointNotFound.
func (l *Library) Bind(sig Signature) (*EntryPoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	def, ok := l.mod.ExportedFunctionDefinitions()[sig.Name]
	if !ok {
		return nil, errors.EntryPointNotFound(l.id, sig.Name, "no such export")
	}
	ok, detail, err := sig.matches(def)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.EntryPointNotFound(l.id, sig.Name, "signature mismatch: "+detail)
	}

	if ep, ok := l.entries[sig.Name]; ok {
		return ep, nil
	}
	ep := &EntryPoint{lib: l, sig: sig}
	if goFn := def.GoFunction(); goFn != nil {
		// host modules forbid ExportedFunction; their Go code is called directly
		ep.goFn = goFn
		ep.stack = max(len(def.ParamTypes()), len(def.ResultTypes()))
		ep.results = len(def.ResultTypes())
	} else {
		ep.fn = l.mod.ExportedFunction(sig.Name)
	}
	l.entries[sig.Name] = ep
	return ep, nil
}

// Signatures lists the library's exported functions. Types are recovered
// from the core signature, so every integer reads as unsigned.
func (l *Library) Signatures() []Signature {
	defs := l.mod.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		if name == allocExport || name == freeExport {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Signature, 0, len(names))
	for _, name := range names {
		def := defs[name]
		sig := Signature{Name: name}
		for _, p := range def.ParamTypes() {
			sig.Params = append(sig.Params, unflatten(p))
		}
		for _, r := range def.ResultTypes() {
			sig.Results = append(sig.Results, unflatten(r))
		}
		out = append(out, sig)
	}
	return out
}

// EntryPoint is a bound native function.
type EntryPoint struct {
	lib  *Library
	fn   api.Function
	goFn any // api.GoFunction or api.GoModuleFunction
	sig  Signature

	stack   int
	results int
}

// inCall marks a context passed into a guest library's call.
type inCall struct{ lib *Library }

// Name returns the exported name.
func (e *EntryPoint) Name() string {
	return e.sig.Name
}

// Library returns the library the entry point belongs to.
func (e *EntryPoint) Library() *Library {
	return e.lib
}

// Signature returns the signature the entry point was bound with.
func (e *EntryPoint) Signature() Signature {
	return e.sig
}

// Invoke calls the entry point with flattened arguments and returns its raw
// results. A trap, a panic in a host callback or an argument count mismatch
// is reported as KindNativeFailure.
func (e *EntryPoint) Invoke(ctx context.Context, args ...uint64) (results []uint64, err error) {
	if len(args) != len(e.sig.Params) {
		return nil, errors.New(errors.PhaseBoundary, errors.KindNativeFailure).
			Symbol(e.lib.id + "!" + e.sig.Name).
			Detail("got %d arguments, want %d", len(args), len(e.sig.Params)).
			Build()
	}

	if e.lib.serial {
		if ctx.Value(inCall{e.lib}) != nil {
			return nil, errors.New(errors.PhaseBoundary, errors.KindReentrantCall).
				Symbol(e.lib.id + "!" + e.sig.Name).
				Detail("called from a callback of the same library").
				Build()
		}
		ctx = context.WithValue(ctx, inCall{e.lib}, true)
		e.lib.callMu.Lock()
		defer e.lib.callMu.Unlock()
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.NativeFailure(e.lib.id+"!"+e.sig.Name,
				errors.Panic(errors.PhaseBoundary, errors.KindNativeFailure, r))
			results = nil
		}
	}()

	if e.goFn != nil {
		return e.callGo(ctx, args), nil
	}
	e.lib.memory.exclusive(func() {
		results, err = e.fn.Call(ctx, args...)
	})
	if err != nil {
		Logger().Debug("native call failed",
			zap.String("library", e.lib.id),
			zap.String("entry_point", e.sig.Name),
			zap.Error(err))
		return nil, errors.NativeFailure(e.lib.id+"!"+e.sig.Name, err)
	}
	return results, nil
}

// callGo runs a host-module function on a stack laid out the way wazero
// lays it out for Go functions: parameters in, results out from index 0.
func (e *EntryPoint) callGo(ctx context.Context, args []uint64) []uint64 {
	stack := make([]uint64, e.stack)
	copy(stack, args)
	switch fn := e.goFn.(type) {
	case api.GoModuleFunction:
		fn.Call(ctx, e.lib.mod, stack)
	case api.GoFunction:
		fn.Call(ctx, stack)
	default:
		panic(fmt.Sprintf("unsupported host function %T", e.goFn))
	}
	return stack[:e.results]
}

// Call invokes an entry point that returns a status code, or nothing.
func (e *EntryPoint) Call(ctx context.Context, args ...uint64) (Status, error) {
	results, err := e.Invoke(ctx, args...)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return StatusSuccess, nil
	}
	return Status(api.DecodeU32(results[0])), nil
}

// CallWithReceiver pins recv for the duration of one call and passes its
// handle as the final argument, so native code can deliver results through
// the gamekit.receive callback.
func (e *EntryPoint) CallWithReceiver(ctx context.Context, recv Receiver, args ...uint64) (Status, error) {
	var (
		status  Status
		callErr error
	)
	err := e.lib.runtime.registry.Dispatch(recv, func(h handle.Handle) {
		status, callErr = e.Call(ctx, append(args[:len(args):len(args)], uint64(h))...)
	})
	if err != nil {
		return 0, err
	}
	return status, callErr
}
