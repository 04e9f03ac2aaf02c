package feature

import (
	"fmt"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
	"github.com/aws/aws-gamekit-unity-sub001/marshal"
	"github.com/aws/aws-gamekit-unity-sub001/native"
)

// Invoke runs one boundary call. Panics and errors from fn are returned as
// *errors.Error and reported to log exactly once; a missing library or entry
// point is reported separately from a failure inside native code. Errors
// that already passed through an inner Invoke are returned without being
// reported again.
func Invoke[T any](name string, log LogFunc, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = errors.NativeFailure(name, errors.Panic(errors.PhaseFeature, errors.KindNativeFailure, r))
		}
		if err == nil {
			return
		}
		var done *reportedError
		if errors.As(err, &done) {
			return
		}
		err = classify(name, err)
		if log != nil {
			report(name, log, err)
			err = &reportedError{err: err}
		}
	}()
	return fn()
}

// InvokeOr runs fn through Invoke and returns sentinel on any failure.
func InvokeOr[T any](name string, log LogFunc, sentinel T, fn func() (T, error)) T {
	v, err := Invoke(name, log, fn)
	if err != nil {
		return sentinel
	}
	return v
}

// WithStrings copies strs into the library's memory for the duration of fn,
// which receives one pointer per string.
func WithStrings[T any](lib *native.Library, strs []string, fn func(ptrs []uint32) (T, error)) (T, error) {
	arr, err := marshal.StringArrayToPtrs(lib.Memory(), lib.Allocator(), strs)
	if err != nil {
		var zero T
		return zero, err
	}
	defer arr.Free(lib.Allocator())
	return fn(arr.Ptrs)
}

// reportedError marks an error that has already been sent to a LogFunc.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func classify(name string, err error) error {
	var e *errors.Error
	if errors.As(err, &e) {
		return err
	}
	return errors.NativeFailure(name, err)
}

func report(name string, log LogFunc, err error) {
	if errors.IsNativeAbsence(err) {
		log(LevelError, fmt.Sprintf("%s: native library or entry point not found: %v", name, err))
		return
	}
	log(LevelException, fmt.Sprintf("%s: native call failed: %v", name, err))
}

// NonNull rejects the null instance a native create call returns when it
// could not build one.
func NonNull(name string, instance native.Ptr) (native.Ptr, error) {
	if instance == 0 {
		return 0, errors.NativeFailure(name, fmt.Errorf("returned a null instance"))
	}
	return instance, nil
}
