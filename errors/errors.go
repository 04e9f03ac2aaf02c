package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBoundary Phase = "boundary" // crossing into native code
	PhaseDispatch Phase = "dispatch" // threader scheduling and replay
	PhaseMarshal  Phase = "marshal"  // handle pinning
	PhaseEncode   Phase = "encode"   // Go to native buffer
	PhaseDecode   Phase = "decode"   // native buffer to Go
	PhaseLoad     Phase = "load"     // library loading
	PhaseFeature  Phase = "feature"  // feature handle lifecycle
	PhaseConfig   Phase = "config"   // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindLibraryNotFound    Kind = "library_not_found"
	KindEntryPointNotFound Kind = "entry_point_not_found"
	KindNativeFailure      Kind = "native_failure"
	KindCallbackPanic      Kind = "callback_panic"
	KindWorkPanic          Kind = "work_panic"
	KindStaleHandle        Kind = "stale_handle"
	KindTypeMismatch       Kind = "type_mismatch"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindInvalidData        Kind = "invalid_data"
	KindUnsupported        Kind = "unsupported"
	KindAllocation         Kind = "allocation"
	KindNotInitialized     Kind = "not_initialized"
	KindInvalidInput       Kind = "invalid_input"
	KindClosed             Kind = "closed"
	KindTimeout            Kind = "timeout"
	KindReentrantCall      Kind = "reentrant_call"
)

// Error is the structured error type used throughout SDK
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	Symbol string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Symbol != "" {
		b.WriteString(" in ")
		b.WriteString(e.Symbol)
	}

	if e.GoType != "" {
		b.WriteString(": Go type ")
		b.WriteString(e.GoType)
	}

	if e.Detail != "" {
		if e.GoType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Symbol sets the native library or entry point name
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// LibraryNotFound reports a native library that could not be located or loaded.
func LibraryNotFound(library string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLibraryNotFound,
		Symbol: library,
		Cause:  cause,
	}
}

// EntryPointNotFound reports a missing or mismatched native export.
func EntryPointNotFound(library, entryPoint, detail string) *Error {
	return &Error{
		Phase:  PhaseBoundary,
		Kind:   KindEntryPointNotFound,
		Symbol: library + "!" + entryPoint,
		Detail: detail,
	}
}

// NativeFailure wraps any other failure raised while crossing the boundary.
func NativeFailure(entryPoint string, cause error) *Error {
	return &Error{
		Phase:  PhaseBoundary,
		Kind:   KindNativeFailure,
		Symbol: entryPoint,
		Cause:  cause,
	}
}

// Panic converts a recovered panic value into an error of the given kind.
func Panic(phase Phase, kind Kind, recovered any) *Error {
	e := &Error{
		Phase: phase,
		Kind:  kind,
		Value: recovered,
	}
	if err, ok := recovered.(error); ok {
		e.Cause = err
	} else {
		e.Detail = fmt.Sprintf("panic: %v", recovered)
	}
	return e
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		GoType: goType,
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("access of %d bytes at offset %d out of bounds", length, offset),
		Value:  offset,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: what + " not initialized",
	}
}

// Closed reports use of a component after Close.
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNativeAbsence reports whether err means the native library or one of
// its entry points is missing, as opposed to a failure inside native code.
func IsNativeAbsence(err error) bool {
	switch KindOf(err) {
	case KindLibraryNotFound, KindEntryPointNotFound:
		return true
	}
	return false
}

// Is forwards to the standard library errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As forwards to the standard library errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join forwards to the standard library errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
