// Package marshal converts Go values to and from native buffers.
//
// Native buffers live in a gamekit.Memory and are obtained from a
// gamekit.Allocator. Records use a fixed C layout computed by reflection:
//
//	bool, int8, uint8           1 byte
//	int16, uint16               2 bytes
//	int32, uint32, float32      4 bytes
//	int64, uint64, float64      8 bytes
//	uintptr, string             4 bytes (wasm32 pointer; strings are NUL-terminated)
//	[N]T                        N consecutive T
//	struct                      fields in order, each naturally aligned
//
// Fields tagged `gamekit:"-"` are skipped.
//
// # Arrays
//
// PtrToArray decodes a flat buffer of records. A record that fails to decode
// (for example a string pointer outside memory) becomes the zero value and is
// logged; the rest of the array is still decoded.
//
//	achievements, err := marshal.PtrToArray[Achievement](mem, ptr, count)
//
// ArrayToPtr packs a slice into one allocation. An empty slice yields a nil
// Buffer whose Ptr is 0 and allocates nothing.
//
//	buf, err := marshal.ArrayToPtr(mem, alloc, items)
//	defer buf.Free(alloc)
//	call(buf.Ptr(), uint32(buf.Len()))
//
// # Strings
//
// StringArrayToPtrs allocates every string individually plus a pointer table;
// StringArray.Free releases them and zeroes every slot. Free is idempotent.
package marshal
