package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/aws/aws-gamekit-unity-sub001/handle"
	"github.com/aws/aws-gamekit-unity-sub001/marshal"
	"github.com/aws/aws-gamekit-unity-sub001/native"
)

// outcome is what one console call produced.
type outcome struct {
	err      error
	sig      native.Signature
	results  []uint64
	payloads []native.Payload
}

func (o outcome) String() string {
	var b strings.Builder
	switch len(o.results) {
	case 0:
		b.WriteString("(no result)")
	default:
		for i, r := range o.results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(formatResult(r, o.sig.Results[i]))
		}
	}
	for _, p := range o.payloads {
		fmt.Fprintf(&b, "\n  payload kind %d: %s", p.Kind, p)
	}
	return b.String()
}

func formatResult(v uint64, t wit.Type) string {
	switch t.(type) {
	case wit.U64:
		return strconv.FormatUint(v, 10)
	case wit.F32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case wit.F64:
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	default:
		s := native.Status(api.DecodeU32(v))
		return fmt.Sprintf("%d (%s)", uint32(s), s)
	}
}

func findSignature(lib *native.Library, name string) (native.Signature, bool) {
	for _, sig := range lib.Signatures() {
		if sig.Name == name {
			return sig, true
		}
	}
	return native.Signature{}, false
}

// collector records every payload delivered to it.
type collector struct {
	mu       sync.Mutex
	payloads []native.Payload
}

func (c *collector) Receive(_ context.Context, p native.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, p)
}

// invoke encodes values for sig and calls it. When one value is missing and
// the last parameter is u64, a receiver is passed there and everything
// native code delivers to it is returned with the results.
func invoke(ctx context.Context, lib *native.Library, sig native.Signature, values []string) outcome {
	out := outcome{sig: sig}

	params := sig.Params
	withReceiver := false
	if len(values) == len(params)-1 && len(params) > 0 {
		if _, ok := params[len(params)-1].(wit.U64); ok {
			params = params[:len(params)-1]
			withReceiver = true
		}
	}
	if len(values) != len(params) {
		out.err = fmt.Errorf("%s takes %d arguments, got %d", sig.Name, len(sig.Params), len(values))
		return out
	}

	arena := marshal.NewArena(lib.Memory(), lib.Allocator())
	defer arena.Free()

	args, err := encodeArgs(arena, params, values)
	if err != nil {
		out.err = err
		return out
	}

	ep, err := lib.Bind(sig)
	if err != nil {
		out.err = err
		return out
	}

	if !withReceiver {
		out.results, out.err = ep.Invoke(ctx, args...)
		return out
	}

	c := &collector{}
	err = lib.Runtime().Registry().Dispatch(c, func(h handle.Handle) {
		out.results, out.err = ep.Invoke(ctx, append(args, uint64(h))...)
	})
	if err != nil {
		out.err = err
	}
	out.payloads = c.payloads
	return out
}

// encodeArgs converts command-line values to flattened arguments. 32-bit
// parameters that do not parse as numbers are copied into the library's
// memory as strings and passed by pointer.
func encodeArgs(arena *marshal.Arena, params []wit.Type, values []string) ([]uint64, error) {
	args := make([]uint64, len(values))
	for i, v := range values {
		switch params[i].(type) {
		case wit.U64:
			n, err := strconv.ParseUint(v, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = n
		case wit.S64:
			n, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = api.EncodeI64(n)
		case wit.F32:
			f, err := strconv.ParseFloat(v, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = api.EncodeF32(float32(f))
		case wit.F64:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = api.EncodeF64(f)
		case wit.Bool:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			if b {
				args[i] = 1
			}
		default:
			if n, err := strconv.ParseInt(v, 0, 64); err == nil {
				args[i] = api.EncodeI32(int32(n))
				continue
			}
			ptr, err := arena.String(v)
			if err != nil {
				return nil, err
			}
			args[i] = uint64(ptr)
		}
	}
	return args, nil
}
