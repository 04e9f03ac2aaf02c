package marshal

import (
	"encoding/binary"
	"math"
	"reflect"
	"strconv"

	gamekit "github.com/aws/aws-gamekit-unity-sub001"
	"github.com/aws/aws-gamekit-unity-sub001/errors"
)

// MaxStringLength bounds the scan for a string terminator.
const MaxStringLength = 1 << 20

// decodeValue fills v from buf, which holds exactly l.Size bytes.
func decodeValue(mem Memory, buf []byte, l *Layout, v reflect.Value, path []string) error {
	switch l.kind {
	case kindBool:
		v.SetBool(buf[0] != 0)
	case kindI8:
		v.SetInt(int64(int8(buf[0])))
	case kindU8:
		v.SetUint(uint64(buf[0]))
	case kindI16:
		v.SetInt(int64(int16(binary.LittleEndian.Uint16(buf))))
	case kindU16:
		v.SetUint(uint64(binary.LittleEndian.Uint16(buf)))
	case kindI32:
		v.SetInt(int64(int32(binary.LittleEndian.Uint32(buf))))
	case kindU32:
		v.SetUint(uint64(binary.LittleEndian.Uint32(buf)))
	case kindI64:
		v.SetInt(int64(binary.LittleEndian.Uint64(buf)))
	case kindU64:
		v.SetUint(binary.LittleEndian.Uint64(buf))
	case kindF32:
		v.SetFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))))
	case kindF64:
		v.SetFloat(math.Float64frombits(binary.LittleEndian.Uint64(buf)))
	case kindPtr:
		v.SetUint(uint64(binary.LittleEndian.Uint32(buf)))
	case kindString:
		ptr := binary.LittleEndian.Uint32(buf)
		s, err := PtrToString(mem, ptr)
		if err != nil {
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path(path...).
				GoType("string").
				Cause(err).
				Build()
		}
		v.SetString(s)
	case kindArray:
		for i := 0; i < l.count; i++ {
			off := uint32(i) * l.elem.Size
			if err := decodeValue(mem, buf[off:off+l.elem.Size], l.elem, v.Index(i),
				append(path, strconv.Itoa(i))); err != nil {
				return err
			}
		}
	case kindStruct:
		for _, f := range l.fields {
			if err := decodeValue(mem, buf[f.offset:f.offset+f.layout.Size], f.layout, v.Field(f.index),
				append(path, f.name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeValue writes v into buf, allocating strings in a as it goes.
func encodeValue(a *Arena, buf []byte, l *Layout, v reflect.Value) error {
	switch l.kind {
	case kindBool:
		if v.Bool() {
			buf[0] = 1
		} else {
			buf[0] = 0
		}
	case kindI8, kindI16, kindI32, kindI64:
		putUint(buf, l.Size, uint64(v.Int()))
	case kindU8, kindU16, kindU32, kindU64, kindPtr:
		putUint(buf, l.Size, v.Uint())
	case kindF32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v.Float())))
	case kindF64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.Float()))
	case kindString:
		ptr, err := a.String(v.String())
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(buf, ptr)
	case kindArray:
		for i := 0; i < l.count; i++ {
			off := uint32(i) * l.elem.Size
			if err := encodeValue(a, buf[off:off+l.elem.Size], l.elem, v.Index(i)); err != nil {
				return err
			}
		}
	case kindStruct:
		for _, f := range l.fields {
			if err := encodeValue(a, buf[f.offset:f.offset+f.layout.Size], f.layout, v.Field(f.index)); err != nil {
				return err
			}
		}
	}
	return nil
}

func putUint(buf []byte, size uint32, v uint64) {
	switch size {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, v)
	}
}

// StringToPtr copies s into a new NUL-terminated native buffer.
// The buffer is len(s)+1 bytes with alignment 1.
func StringToPtr(mem Memory, alloc Allocator, s string) (uint32, error) {
	size := uint32(len(s)) + 1
	ptr, err := alloc.Alloc(size, 1)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, 1, err)
	}

	data := make([]byte, size)
	copy(data, s)
	if err := mem.Write(ptr, data); err != nil {
		alloc.Free(ptr, size, 1)
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write string")
	}
	return ptr, nil
}

// PtrToString reads a NUL-terminated string. A zero pointer reads as "".
func PtrToString(mem Memory, ptr uint32) (string, error) {
	if ptr == 0 {
		return "", nil
	}

	limit := uint32(MaxStringLength)
	if sizer, ok := mem.(gamekit.MemorySizer); ok {
		size := sizer.Size()
		if ptr >= size {
			return "", errors.OutOfBounds(errors.PhaseDecode, nil, ptr, 1)
		}
		if size-ptr < limit {
			limit = size - ptr
		}
		data, err := mem.Read(ptr, limit)
		if err != nil {
			return "", err
		}
		for i, b := range data {
			if b == 0 {
				return string(data[:i]), nil
			}
		}
		return "", errors.InvalidData(errors.PhaseDecode, nil, "unterminated string")
	}

	var out []byte
	for i := uint32(0); i < limit; i++ {
		b, err := mem.ReadU8(ptr + i)
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
	return "", errors.InvalidData(errors.PhaseDecode, nil, "unterminated string")
}
