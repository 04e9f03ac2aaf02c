package handle

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
)

// Handle is an opaque reference to a pinned value.
// The low 32 bits hold slot index+1, the high 32 bits the slot sequence.
type Handle uint64

func makeHandle(idx, seq uint32) Handle {
	return Handle(uint64(seq)<<32 | uint64(idx+1))
}

func (h Handle) slot() (idx uint32, seq uint32, ok bool) {
	lo := uint32(h)
	if lo == 0 {
		return 0, 0, false
	}
	return lo - 1, uint32(h >> 32), true
}

// Registry maps handles to pinned values.
type Registry struct {
	entries  []entry
	freeList []uint32
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value any
	seq   uint32
	valid bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make([]entry, 0, 16),
		freeList: make([]uint32, 0, 16),
	}
}

// Pin stores v and returns its handle.
func (r *Registry) Pin(v any) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, errors.Closed(errors.PhaseMarshal, "handle registry")
	}

	if n := len(r.freeList); n > 0 {
		idx := r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		e := &r.entries[idx]
		e.seq++
		e.value = v
		e.valid = true
		return makeHandle(idx, e.seq), nil
	}

	if uint64(len(r.entries)) >= 1<<32-1 {
		return 0, errors.AllocationFailed(errors.PhaseMarshal, 1, 1, fmt.Errorf("handle space exhausted"))
	}
	r.entries = append(r.entries, entry{value: v, valid: true})
	return makeHandle(uint32(len(r.entries)-1), 0), nil
}

// Unpin removes the value behind h and returns it.
// Returns (nil, false) for invalid or already released handles.
func (r *Registry) Unpin(h Handle) (any, bool) {
	idx, seq, ok := h.slot()
	if !ok {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if int(idx) >= len(r.entries) {
		return nil, false
	}
	e := &r.entries[idx]
	if !e.valid || e.seq != seq {
		return nil, false
	}

	value := e.value
	e.value = nil
	e.valid = false
	r.freeList = append(r.freeList, idx)
	return value, true
}

// Get returns the value pinned behind h.
func (r *Registry) Get(h Handle) (any, bool) {
	idx, seq, ok := h.slot()
	if !ok {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if int(idx) >= len(r.entries) {
		return nil, false
	}
	e := r.entries[idx]
	if !e.valid || e.seq != seq {
		return nil, false
	}
	return e.value, true
}

// Len returns the number of pinned values.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries) - len(r.freeList)
}

// Close drops every pin. Pin fails afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.entries = nil
	r.freeList = nil
	return nil
}

// Dispatch pins obj for the duration of work and passes work its handle.
// The pin is released when work returns or panics.
func (r *Registry) Dispatch(obj any, work func(Handle)) error {
	h, err := r.Pin(obj)
	if err != nil {
		return err
	}
	defer r.Unpin(h)

	work(h)
	return nil
}

// DispatchResult is Dispatch for work that produces a value. The value is
// returned unchanged.
func DispatchResult[R any](r *Registry, obj any, work func(Handle) R) (R, error) {
	h, err := r.Pin(obj)
	if err != nil {
		var zero R
		return zero, err
	}
	defer r.Unpin(h)

	return work(h), nil
}

// GetDispatchObject recovers the value pinned behind h as a T.
// It must only be called while the Dispatch that produced h is running.
func GetDispatchObject[T any](r *Registry, h Handle) (T, error) {
	var zero T

	v, ok := r.Get(h)
	if !ok {
		return zero, errors.New(errors.PhaseMarshal, errors.KindStaleHandle).
			Value(uint64(h)).
			Detail("handle %#x is not pinned", uint64(h)).
			Build()
	}

	t, ok := v.(T)
	if !ok {
		return zero, errors.TypeMismatch(errors.PhaseMarshal, nil,
			fmt.Sprintf("%T", v),
			fmt.Sprintf("want %s", reflect.TypeFor[T]()))
	}
	return t, nil
}
