package feature

import (
	"context"
	"sync"

	"github.com/aws/aws-gamekit-unity-sub001/handle"
	"github.com/aws/aws-gamekit-unity-sub001/native"
)

// Library loads a feature's native library on first use and binds its
// entry points by signature. A failed load is retried on the next call.
type Library struct {
	rt  *native.Runtime
	id  string
	lib *native.Library
	mu  sync.Mutex
}

// NewLibrary returns a lazily loaded library.
func NewLibrary(rt *native.Runtime, id string) *Library {
	return &Library{rt: rt, id: id}
}

// ID returns the native library identifier.
func (l *Library) ID() string {
	return l.id
}

// Native returns the loaded library.
func (l *Library) Native(ctx context.Context) (*native.Library, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lib != nil {
		return l.lib, nil
	}
	lib, err := l.rt.Load(ctx, "", l.id)
	if err != nil {
		return nil, err
	}
	l.lib = lib
	return lib, nil
}

// Entry binds sig in the library.
func (l *Library) Entry(ctx context.Context, sig native.Signature) (*native.EntryPoint, error) {
	lib, err := l.Native(ctx)
	if err != nil {
		return nil, err
	}
	return lib.Bind(sig)
}

// PinLog pins log for the lifetime of a native instance, returning the
// handle native code logs through. 0 with a nil log.
func (l *Library) PinLog(log LogFunc) (handle.Handle, error) {
	if log == nil {
		return 0, nil
	}
	return l.rt.Registry().Pin(log)
}

// UnpinLog releases a handle returned by PinLog.
func (l *Library) UnpinLog(h handle.Handle) {
	if h != 0 {
		l.rt.Registry().Unpin(h)
	}
}

// Bind returns the instance of s together with sig bound in the library,
// the two things every feature method needs before calling native code.
func (l *Library) Bind(ctx context.Context, s Session, sig native.Signature) (native.Ptr, *native.EntryPoint, error) {
	instance, err := s.Instance(ctx)
	if err != nil {
		return 0, nil, err
	}
	ep, err := l.Entry(ctx, sig)
	if err != nil {
		return 0, nil, err
	}
	return instance, ep, nil
}
