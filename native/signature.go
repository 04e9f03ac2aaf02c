package native

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
)

// Signature describes a native entry point with wit primitive types.
// Strings and handles cross as pointers, so they flatten to one i32;
// dispatch receivers and log sinks are u64.
type Signature struct {
	Name    string
	Params  []wit.Type
	Results []wit.Type
}

// String renders the signature in wit function syntax.
func (s Signature) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteString(": func(")
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(TypeName(p))
	}
	b.WriteByte(')')
	switch len(s.Results) {
	case 0:
	case 1:
		b.WriteString(" -> ")
		b.WriteString(TypeName(s.Results[0]))
	default:
		b.WriteString(" -> (")
		for i, r := range s.Results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(TypeName(r))
		}
		b.WriteByte(')')
	}
	return b.String()
}

// TypeName returns the wit spelling of a primitive type.
func TypeName(t wit.Type) string {
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}

// flatten maps a wit primitive to its core wasm value type.
func flatten(t wit.Type) (api.ValueType, bool) {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char, wit.String:
		return api.ValueTypeI32, true
	case wit.U64, wit.S64:
		return api.ValueTypeI64, true
	case wit.F32:
		return api.ValueTypeF32, true
	case wit.F64:
		return api.ValueTypeF64, true
	}
	return 0, false
}

func flattenAll(ts []wit.Type) ([]api.ValueType, error) {
	out := make([]api.ValueType, 0, len(ts))
	for _, t := range ts {
		vt, ok := flatten(t)
		if !ok {
			return nil, errors.Unsupported(errors.PhaseBoundary,
				"type "+TypeName(t)+" cannot cross the native boundary")
		}
		out = append(out, vt)
	}
	return out, nil
}

// unflatten picks the unsigned wit type for a core value type.
func unflatten(vt api.ValueType) wit.Type {
	switch vt {
	case api.ValueTypeI64:
		return wit.U64{}
	case api.ValueTypeF32:
		return wit.F32{}
	case api.ValueTypeF64:
		return wit.F64{}
	default:
		return wit.U32{}
	}
}

// matches reports whether def has exactly the flattened params and results.
func (s Signature) matches(def api.FunctionDefinition) (bool, string, error) {
	params, err := flattenAll(s.Params)
	if err != nil {
		return false, "", err
	}
	results, err := flattenAll(s.Results)
	if err != nil {
		return false, "", err
	}
	if !slices.Equal(params, def.ParamTypes()) || !slices.Equal(results, def.ResultTypes()) {
		return false, fmt.Sprintf("want %s, have %s", describe(params, results),
			describe(def.ParamTypes(), def.ResultTypes())), nil
	}
	return true, "", nil
}

func describe(params, results []api.ValueType) string {
	names := func(ts []api.ValueType) string {
		s := make([]string, len(ts))
		for i, t := range ts {
			s[i] = api.ValueTypeName(t)
		}
		return strings.Join(s, " ")
	}
	return "(param " + names(params) + ") (result " + names(results) + ")"
}
