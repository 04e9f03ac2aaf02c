package native

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
	"github.com/aws/aws-gamekit-unity-sub001/handle"
)

// Config holds configuration for runtime creation
type Config struct {
	// LibraryDir is searched by Load when no directory is given.
	LibraryDir string

	// MemoryLimitPages caps each library's memory in 64KB pages.
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// Runtime owns the wazero runtime that native libraries run in, the
// callback module they import and the handle registry that dispatch
// receivers are resolved through.
type Runtime struct {
	rt       wazero.Runtime
	heapMod  api.Module
	heap     *Heap
	registry *handle.Registry
	libs     map[string]*Library
	cfg      Config
	mu       sync.Mutex
	closed   bool
}

// NewRuntime creates a runtime with the gamekit callback module and the
// runtime heap instantiated.
func NewRuntime(ctx context.Context, cfg Config) (*Runtime, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	r := &Runtime{
		rt:       wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		registry: handle.NewRegistry(),
		libs:     make(map[string]*Library),
		cfg:      cfg,
	}

	if err := r.instantiateCallbacks(ctx, r.rt); err != nil {
		_ = r.rt.Close(ctx)
		return nil, err
	}

	heapMod, heap, err := instantiateHeap(ctx, r.rt)
	if err != nil {
		_ = r.rt.Close(ctx)
		return nil, err
	}
	r.heapMod = heapMod
	r.heap = heap

	return r, nil
}

// Registry returns the handle registry used for dispatch receivers.
func (r *Runtime) Registry() *handle.Registry {
	return r.registry
}

// Heap returns the allocator used by libraries without their own memory.
func (r *Runtime) Heap() *Heap {
	return r.heap
}

// Wazero exposes the underlying runtime, for building host-module libraries.
func (r *Runtime) Wazero() wazero.Runtime {
	return r.rt
}

// LibraryFile resolves a library identifier to a file, preferring a
// platform-specific build: <dir>/<goos>_<goarch>/<id>.wasm, then <dir>/<id>.wasm.
func LibraryFile(dir, id string) (string, error) {
	candidates := []string{
		filepath.Join(dir, runtime.GOOS+"_"+runtime.GOARCH, id+".wasm"),
		filepath.Join(dir, id+".wasm"),
	}
	for _, path := range candidates {
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path, nil
		}
	}
	return "", errors.LibraryNotFound(id, os.ErrNotExist)
}

// Library returns an already loaded library.
func (r *Runtime) Library(id string) (*Library, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lib, ok := r.libs[id]
	return lib, ok
}

// Load loads library id from dir, or from Config.LibraryDir when dir is
// empty. Loading an id twice returns the same Library.
func (r *Runtime) Load(ctx context.Context, dir, id string) (*Library, error) {
	if lib, ok := r.Library(id); ok {
		return lib, nil
	}
	if dir == "" {
		dir = r.cfg.LibraryDir
	}

	path, err := LibraryFile(dir, id)
	if err != nil {
		return nil, err
	}
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.LibraryNotFound(id, err)
	}
	return r.LoadBytes(ctx, id, wasm)
}

// LoadBytes instantiates wasm as library id.
func (r *Runtime) LoadBytes(ctx context.Context, id string, wasm []byte) (*Library, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.Closed(errors.PhaseLoad, "runtime")
	}
	if lib, ok := r.libs[id]; ok {
		return lib, nil
	}

	mod, err := r.rt.InstantiateWithConfig(ctx, wasm, wazero.NewModuleConfig().WithName(id))
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindNativeFailure).
			Symbol(id).
			Detail("instantiate").
			Cause(err).
			Build()
	}

	lib, err := r.attach(id, mod)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}
	Logger().Debug("library loaded",
		zap.String("library", id),
		zap.Int("exports", len(mod.ExportedFunctionDefinitions())))
	return lib, nil
}

// Attach registers an already instantiated module as library id. This is
// how libraries implemented as host modules are made available.
func (r *Runtime) Attach(id string, mod api.Module) (*Library, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.Closed(errors.PhaseLoad, "runtime")
	}
	if _, ok := r.libs[id]; ok {
		return nil, errors.InvalidInput(errors.PhaseLoad, "library "+id+" already loaded")
	}
	return r.attach(id, mod)
}

func (r *Runtime) attach(id string, mod api.Module) (*Library, error) {
	lib := &Library{
		id:      id,
		mod:     mod,
		runtime: r,
		entries: make(map[string]*EntryPoint),
	}

	if mem := memoryOf(mod); mem != nil {
		lib.memory = NewMemory(mem)
		lib.serial = true

		allocFn := mod.ExportedFunction(allocExport)
		freeFn := mod.ExportedFunction(freeExport)
		if allocFn == nil || freeFn == nil {
			return nil, errors.EntryPointNotFound(id, allocExport,
				"libraries with their own memory must export "+allocExport+" and "+freeExport)
		}
		lib.alloc = &guestAllocator{lib: lib, allocFn: allocFn, freeFn: freeFn}
	} else {
		lib.memory = r.heap.Memory()
		lib.alloc = r.heap
	}

	r.libs[id] = lib
	return lib, nil
}

// memoryOf returns the memory mod exports, or nil. Module.Memory cannot be
// nil-checked: host modules return a typed nil.
func memoryOf(mod api.Module) api.Memory {
	if len(mod.ExportedMemoryDefinitions()) == 0 {
		return nil
	}
	return mod.Memory()
}

// Close closes every library, the handle registry and the wazero runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.libs = nil
	r.mu.Unlock()

	_ = r.registry.Close()
	return r.rt.Close(ctx)
}
