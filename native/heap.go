package native

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	gamekit "github.com/aws/aws-gamekit-unity-sub001"
	"github.com/aws/aws-gamekit-unity-sub001/errors"
)

const (
	pageSize = 65536

	// heapBase keeps the first bytes of the heap unused so 0 is never a
	// valid allocation.
	heapBase = 16

	heapModuleName = "gamekit_heap"
)

// heapModule is a core wasm module that only exports one growable memory:
//
//	(module (memory (export "memory") 1))
var heapModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 memory, min 1 page
	0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // export "memory" mem 0
}

type span struct {
	off  uint32
	size uint32
}

// Heap is a first-fit allocator over a wazero memory. It backs libraries
// implemented as host modules, which have no linear memory of their own.
type Heap struct {
	mem  *Memory
	free []span // sorted by offset, coalesced
	live map[uint32]uint32
	mu   sync.Mutex
}

func newHeap(mem api.Memory) *Heap {
	return &Heap{
		mem:  NewMemory(mem),
		free: []span{{off: heapBase, size: mem.Size() - heapBase}},
		live: make(map[uint32]uint32),
	}
}

func instantiateHeap(ctx context.Context, rt wazero.Runtime) (api.Module, *Heap, error) {
	mod, err := rt.InstantiateWithConfig(ctx, heapModule, wazero.NewModuleConfig().WithName(heapModuleName))
	if err != nil {
		return nil, nil, errors.Wrap(errors.PhaseLoad, errors.KindNativeFailure, err, "instantiate runtime heap")
	}
	return mod, newHeap(mod.Memory()), nil
}

// Alloc returns size bytes aligned to align, growing memory when no free
// span fits.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		size = 1
	}
	align = max(align, 1)
	if align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseBoundary, fmt.Sprintf("alignment %d is not a power of two", align))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if ptr, ok := h.take(size, align); ok {
		return ptr, nil
	}

	need := size + align
	pages := (need + pageSize - 1) / pageSize
	var (
		prev uint32
		ok   bool
	)
	h.mem.exclusive(func() { prev, ok = h.mem.mem.Grow(pages) })
	if !ok {
		return 0, errors.AllocationFailed(errors.PhaseBoundary, size, align,
			fmt.Errorf("grow by %d pages failed", pages))
	}
	h.release(prev*pageSize, pages*pageSize)

	ptr, ok := h.take(size, align)
	if !ok {
		return 0, errors.AllocationFailed(errors.PhaseBoundary, size, align, nil)
	}
	return ptr, nil
}

func (h *Heap) take(size, align uint32) (uint32, bool) {
	for i, s := range h.free {
		start := alignUp(s.off, align)
		end := start + size
		if start < s.off || end > s.off+s.size {
			continue
		}

		var rest []span
		if start > s.off {
			rest = append(rest, span{off: s.off, size: start - s.off})
		}
		if tail := s.off + s.size - end; tail > 0 {
			rest = append(rest, span{off: end, size: tail})
		}
		h.free = append(h.free[:i], append(rest, h.free[i+1:]...)...)
		h.live[start] = size
		return start, true
	}
	return 0, false
}

// Free returns a block to the heap. Unknown pointers are logged and ignored.
func (h *Heap) Free(ptr, size, align uint32) {
	if ptr == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	got, ok := h.live[ptr]
	if !ok {
		Logger().Warn("heap: free of unknown pointer",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size))
		return
	}
	delete(h.live, ptr)
	h.release(ptr, got)
}

func (h *Heap) release(off, size uint32) {
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].off > off })
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = span{off: off, size: size}

	// merge with next, then previous
	if i+1 < len(h.free) && h.free[i].off+h.free[i].size == h.free[i+1].off {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].off+h.free[i-1].size == h.free[i].off {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}

// Memory returns the memory the heap allocates from.
func (h *Heap) Memory() *Memory {
	return h.mem
}

// Live returns the number of outstanding allocations.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// guestAllocator calls a library's exported gamekit_alloc and gamekit_free.
type guestAllocator struct {
	lib     *Library
	allocFn api.Function
	freeFn  api.Function
}

const (
	allocExport = "gamekit_alloc"
	freeExport  = "gamekit_free"
)

func (a *guestAllocator) Alloc(size, align uint32) (uint32, error) {
	a.lib.callMu.Lock()
	defer a.lib.callMu.Unlock()

	var (
		res []uint64
		err error
	)
	a.lib.memory.exclusive(func() {
		res, err = a.allocFn.Call(context.Background(), uint64(size), uint64(max(align, 1)))
	})
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseBoundary, size, align, err)
	}
	ptr := uint32(res[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseBoundary, size, align, nil)
	}
	return ptr, nil
}

func (a *guestAllocator) Free(ptr, size, align uint32) {
	if ptr == 0 {
		return
	}
	a.lib.callMu.Lock()
	defer a.lib.callMu.Unlock()

	var err error
	a.lib.memory.exclusive(func() {
		_, err = a.freeFn.Call(context.Background(), uint64(ptr), uint64(size), uint64(max(align, 1)))
	})
	if err != nil {
		Logger().Warn("free: gamekit_free failed",
			zap.String("library", a.lib.id),
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

var (
	_ gamekit.Allocator = (*Heap)(nil)
	_ gamekit.Allocator = (*guestAllocator)(nil)
)
