package marshal

import (
	gamekit "github.com/aws/aws-gamekit-unity-sub001"
	"github.com/aws/aws-gamekit-unity-sub001/errors"
)

type Memory = gamekit.Memory
type Allocator = gamekit.Allocator

type block struct {
	ptr, size, align uint32
}

// Arena owns the native blocks one call allocates from a single Allocator
// and frees them together, newest first. A block must go back to the
// allocator it came from, so an Arena refuses to be freed through another.
type Arena struct {
	mem    Memory
	alloc  Allocator
	blocks []block
}

// NewArena returns an empty arena allocating from alloc inside mem.
func NewArena(mem Memory, alloc Allocator) *Arena {
	return &Arena{mem: mem, alloc: alloc}
}

// Alloc allocates size bytes and records the block.
func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	ptr, err := a.alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, align, err)
	}
	a.blocks = append(a.blocks, block{ptr: ptr, size: size, align: align})
	return ptr, nil
}

// String copies s into the arena as a NUL-terminated string.
func (a *Arena) String(s string) (uint32, error) {
	ptr, err := StringToPtr(a.mem, a.alloc, s)
	if err != nil {
		return 0, err
	}
	a.blocks = append(a.blocks, block{ptr: ptr, size: uint32(len(s)) + 1, align: 1})
	return ptr, nil
}

// Owns reports whether alloc is the allocator the arena allocates from.
func (a *Arena) Owns(alloc Allocator) bool {
	return a != nil && a.alloc == alloc
}

// Len returns the number of blocks not yet freed.
func (a *Arena) Len() int {
	if a == nil {
		return 0
	}
	return len(a.blocks)
}

// Free releases every block. Safe to call more than once.
func (a *Arena) Free() {
	if a == nil {
		return
	}
	for i := len(a.blocks) - 1; i >= 0; i-- {
		b := a.blocks[i]
		a.alloc.Free(b.ptr, b.size, b.align)
	}
	a.blocks = a.blocks[:0]
}
