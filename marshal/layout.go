package marshal

import (
	"reflect"
	"sync"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
)

// PointerSize is the size of a native pointer.
const PointerSize = 4

type kind uint8

const (
	kindBool kind = iota
	kindI8
	kindU8
	kindI16
	kindU16
	kindI32
	kindU32
	kindI64
	kindU64
	kindF32
	kindF64
	kindPtr
	kindString
	kindStruct
	kindArray
)

// Layout describes how a Go type is laid out in a native buffer.
type Layout struct {
	Type   reflect.Type
	elem   *Layout
	fields []field
	Size   uint32
	Align  uint32
	count  int
	kind   kind
}

type field struct {
	layout *Layout
	name   string
	index  int
	offset uint32
}

// FieldOffset returns the byte offset of the named struct field.
func (l *Layout) FieldOffset(name string) (uint32, bool) {
	for _, f := range l.fields {
		if f.name == name {
			return f.offset, true
		}
	}
	return 0, false
}

var layoutCache sync.Map // reflect.Type -> *Layout

// LayoutOf returns the native layout of T.
func LayoutOf[T any]() (*Layout, error) {
	return layoutOf(reflect.TypeFor[T]())
}

func layoutOf(t reflect.Type) (*Layout, error) {
	if cached, ok := layoutCache.Load(t); ok {
		return cached.(*Layout), nil
	}

	l, err := calculate(t, []string{t.String()})
	if err != nil {
		return nil, err
	}

	actual, _ := layoutCache.LoadOrStore(t, l)
	return actual.(*Layout), nil
}

func calculate(t reflect.Type, path []string) (*Layout, error) {
	switch t.Kind() {
	case reflect.Bool:
		return &Layout{Type: t, kind: kindBool, Size: 1, Align: 1}, nil
	case reflect.Int8:
		return &Layout{Type: t, kind: kindI8, Size: 1, Align: 1}, nil
	case reflect.Uint8:
		return &Layout{Type: t, kind: kindU8, Size: 1, Align: 1}, nil
	case reflect.Int16:
		return &Layout{Type: t, kind: kindI16, Size: 2, Align: 2}, nil
	case reflect.Uint16:
		return &Layout{Type: t, kind: kindU16, Size: 2, Align: 2}, nil
	case reflect.Int32:
		return &Layout{Type: t, kind: kindI32, Size: 4, Align: 4}, nil
	case reflect.Uint32:
		return &Layout{Type: t, kind: kindU32, Size: 4, Align: 4}, nil
	case reflect.Int64:
		return &Layout{Type: t, kind: kindI64, Size: 8, Align: 8}, nil
	case reflect.Uint64:
		return &Layout{Type: t, kind: kindU64, Size: 8, Align: 8}, nil
	case reflect.Float32:
		return &Layout{Type: t, kind: kindF32, Size: 4, Align: 4}, nil
	case reflect.Float64:
		return &Layout{Type: t, kind: kindF64, Size: 8, Align: 8}, nil
	case reflect.Uintptr:
		return &Layout{Type: t, kind: kindPtr, Size: PointerSize, Align: PointerSize}, nil
	case reflect.String:
		return &Layout{Type: t, kind: kindString, Size: PointerSize, Align: PointerSize}, nil
	case reflect.Array:
		elem, err := calculate(t.Elem(), append(path, "[]"))
		if err != nil {
			return nil, err
		}
		return &Layout{
			Type:  t,
			kind:  kindArray,
			elem:  elem,
			count: t.Len(),
			Size:  elem.Size * uint32(t.Len()),
			Align: elem.Align,
		}, nil
	case reflect.Struct:
		return calculateStruct(t, path)
	default:
		return nil, errors.Unsupported(errors.PhaseEncode,
			"type "+t.String()+" at "+joinPath(path)+" has no fixed native layout")
	}
}

func calculateStruct(t reflect.Type, path []string) (*Layout, error) {
	l := &Layout{Type: t, kind: kindStruct, Align: 1}
	offset := uint32(0)

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Tag.Get("gamekit") == "-" {
			continue
		}
		if !sf.IsExported() {
			return nil, errors.Unsupported(errors.PhaseEncode,
				"unexported field "+sf.Name+" in "+t.String())
		}

		fl, err := calculate(sf.Type, append(path, sf.Name))
		if err != nil {
			return nil, err
		}

		offset = alignTo(offset, fl.Align)
		l.fields = append(l.fields, field{
			layout: fl,
			name:   sf.Name,
			index:  i,
			offset: offset,
		})
		offset += fl.Size

		if fl.Align > l.Align {
			l.Align = fl.Align
		}
	}

	l.Size = alignTo(offset, l.Align)
	return l, nil
}

func alignTo(offset, align uint32) uint32 {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

func joinPath(path []string) string {
	s := ""
	for i, p := range path {
		if i > 0 && p != "[]" {
			s += "."
		}
		s += p
	}
	return s
}
