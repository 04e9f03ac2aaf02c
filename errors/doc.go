// Package errors provides structured error types for the GameKit runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the native symbol involved, a field path, the Go type
// name and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBoundary, errors.KindEntryPointNotFound).
//		Symbol("aws-gamekit-identity!GameKitIdentityLogin").
//		Detail("export missing").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.LibraryNotFound("aws-gamekit-identity", cause)
//	err := errors.NativeFailure("GameKitIdentityLogin", trap)
//
// Native absence (library or entry point missing) is distinguished from
// every other boundary failure by IsNativeAbsence, so callers can degrade
// gracefully when the native SDK is not installed.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
