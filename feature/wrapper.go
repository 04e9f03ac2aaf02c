package feature

import (
	"context"
	"sync"

	"github.com/aws/aws-gamekit-unity-sub001/native"
)

// Creator creates and releases one kind of native feature instance.
type Creator interface {
	Create(ctx context.Context, session native.Ptr, log LogFunc) (native.Ptr, error)
	Release(ctx context.Context, instance native.Ptr) error
}

// Session provides the native session handle a feature is created against.
// *Wrapper is a Session, so a session manager wrapper can be passed directly.
type Session interface {
	Instance(ctx context.Context) (native.Ptr, error)
}

// NoSession is the Session for features created without one.
var NoSession Session = noSession{}

type noSession struct{}

func (noSession) Instance(context.Context) (native.Ptr, error) { return 0, nil }

// Wrapper owns one native feature instance. It is created on first use and
// released at most once.
type Wrapper struct {
	creator  Creator
	session  Session
	log      LogFunc
	instance native.Ptr
	created  bool
	mu       sync.Mutex
}

// NewWrapper returns a Wrapper that creates its instance with creator.
// A nil session means NoSession.
func NewWrapper(creator Creator, session Session, log LogFunc) *Wrapper {
	if session == nil {
		session = NoSession
	}
	return &Wrapper{creator: creator, session: session, log: log}
}

// Instance returns the native instance, creating it on the first call.
// Concurrent first calls create it once. A failed Create is not cached.
func (w *Wrapper) Instance(ctx context.Context) (native.Ptr, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.created {
		return w.instance, nil
	}

	session, err := w.session.Instance(ctx)
	if err != nil {
		return 0, err
	}
	instance, err := w.creator.Create(ctx, session, w.log)
	if err != nil {
		return 0, err
	}
	w.instance = instance
	w.created = true
	return instance, nil
}

// Created reports whether an instance is currently held.
func (w *Wrapper) Created() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.created
}

// Release releases the instance if one was created. Calling it again, or
// before any Instance call, does nothing.
func (w *Wrapper) Release(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.created {
		return nil
	}
	instance := w.instance
	w.instance = 0
	w.created = false
	return w.creator.Release(ctx, instance)
}

// Log returns the wrapper's logging sink.
func (w *Wrapper) Log() LogFunc {
	return w.log
}
