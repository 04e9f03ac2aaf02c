package marshal

import (
	"encoding/binary"
	"math"
	"reflect"
	"strconv"

	"go.uber.org/zap"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
)

// PtrToArray decodes count records of type T starting at ptr.
// Records that fail to decode are left as the zero T and logged.
// An error is returned only when T has no native layout or the block
// itself cannot be read.
func PtrToArray[T any](mem Memory, ptr uint32, count int) ([]T, error) {
	l, err := LayoutOf[T]()
	if err != nil {
		return nil, err
	}

	if count <= 0 {
		return []T{}, nil
	}
	total := uint64(l.Size) * uint64(count)
	if total > math.MaxUint32 {
		return nil, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			GoType(l.Type.String()).
			Detail("%d records of %d bytes exceed the address space", count, l.Size).
			Build()
	}

	out := make([]T, count)
	if ptr == 0 {
		return out, nil
	}

	block, err := mem.Read(ptr, uint32(total))
	if err != nil {
		return nil, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			GoType(l.Type.String()).
			Detail("%d records at %#x", count, ptr).
			Cause(err).
			Build()
	}

	for i := range out {
		off := uint32(i) * l.Size
		elem := reflect.ValueOf(&out[i]).Elem()
		path := []string{l.Type.String(), strconv.Itoa(i)}
		if err := decodeValue(mem, block[off:off+l.Size], l, elem, path); err != nil {
			var zero T
			out[i] = zero
			Logger().Warn("marshal: record decode failed, using zero value",
				zap.String("type", l.Type.String()),
				zap.Int("index", i),
				zap.Error(err))
		}
	}
	return out, nil
}

// Buffer is a packed array in native memory. The record block and every
// string a record references belong to one Arena.
type Buffer struct {
	arena *Arena
	ptr   uint32
	count int
}

// Ptr returns the address of the first record, or 0 for a nil Buffer.
func (b *Buffer) Ptr() uint32 {
	if b == nil {
		return 0
	}
	return b.ptr
}

// Len returns the number of records.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return b.count
}

// Free releases the record block and every string it references. alloc
// must be the allocator the Buffer was packed with; anything else is
// rejected and nothing is freed. Safe to call on a nil Buffer and more
// than once.
func (b *Buffer) Free(alloc Allocator) error {
	if b == nil || b.ptr == 0 {
		return nil
	}
	if !b.arena.Owns(alloc) {
		return errors.InvalidInput(errors.PhaseEncode, "buffer freed with an allocator it was not packed with")
	}
	b.arena.Free()
	b.ptr = 0
	return nil
}

// ArrayToPtr packs items into a newly allocated native block.
// An empty slice returns a nil Buffer without allocating.
func ArrayToPtr[T any](mem Memory, alloc Allocator, items []T) (*Buffer, error) {
	l, err := LayoutOf[T]()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	arena := NewArena(mem, alloc)
	size := l.Size * uint32(len(items))
	ptr, err := arena.Alloc(size, max(l.Align, 1))
	if err != nil {
		return nil, err
	}

	data := make([]byte, size)
	for i := range items {
		off := uint32(i) * l.Size
		if err := encodeValue(arena, data[off:off+l.Size], l, reflect.ValueOf(items[i])); err != nil {
			arena.Free()
			return nil, err
		}
	}

	if err := mem.Write(ptr, data); err != nil {
		arena.Free()
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write records")
	}

	return &Buffer{arena: arena, ptr: ptr, count: len(items)}, nil
}

// StringArray is a set of individually allocated native strings plus a
// pointer table referencing them.
type StringArray struct {
	// Ptrs holds one native pointer per string; freed slots read 0.
	Ptrs  []uint32
	sizes []uint32
	table uint32
}

// Table returns the address of the native pointer table, 0 when empty or freed.
func (a *StringArray) Table() uint32 {
	return a.table
}

// StringArrayToPtrs allocates every string in strs and a table of their
// pointers.
func StringArrayToPtrs(mem Memory, alloc Allocator, strs []string) (*StringArray, error) {
	a := &StringArray{
		Ptrs:  make([]uint32, len(strs)),
		sizes: make([]uint32, len(strs)),
	}
	if len(strs) == 0 {
		return a, nil
	}

	for i, s := range strs {
		ptr, err := StringToPtr(mem, alloc, s)
		if err != nil {
			a.Free(alloc)
			return nil, err
		}
		a.Ptrs[i] = ptr
		a.sizes[i] = uint32(len(s)) + 1
	}

	tableSize := uint32(len(strs)) * PointerSize
	table, err := alloc.Alloc(tableSize, PointerSize)
	if err != nil {
		a.Free(alloc)
		return nil, errors.AllocationFailed(errors.PhaseEncode, tableSize, PointerSize, err)
	}
	a.table = table

	data := make([]byte, tableSize)
	for i, p := range a.Ptrs {
		binary.LittleEndian.PutUint32(data[i*PointerSize:], p)
	}
	if err := mem.Write(table, data); err != nil {
		a.Free(alloc)
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write string table")
	}
	return a, nil
}

// Free releases every string and the table, zeroing each slot.
func (a *StringArray) Free(alloc Allocator) {
	for i, p := range a.Ptrs {
		if p == 0 {
			continue
		}
		alloc.Free(p, a.sizes[i], 1)
		a.Ptrs[i] = 0
	}
	if a.table != 0 {
		alloc.Free(a.table, uint32(len(a.Ptrs))*PointerSize, PointerSize)
		a.table = 0
	}
}
