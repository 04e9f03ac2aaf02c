// Package handle provides opaque dispatch handles for Go values passed to
// native code.
//
// Native entry points cannot hold Go pointers. Instead a value is pinned in a
// Registry for the duration of one native call and the native side receives
// a Handle, an integer it hands back when it re-enters Go through a callback:
//
//	reg := handle.NewRegistry()
//
//	status, err := handle.DispatchResult(reg, receiver, func(h handle.Handle) native.Status {
//	    return login(sessionPtr, uint64(h))
//	})
//
//	// inside the native callback
//	recv, err := handle.GetDispatchObject[native.Receiver](reg, h)
//
// # Liveness
//
// A Handle is valid only while the Dispatch call that produced it is running.
// The pin is removed on every exit path, including panics. Each slot carries a
// sequence number in the high 32 bits of the Handle, so a handle kept past its
// Dispatch is rejected even after its slot has been reused.
//
// Handle 0 is reserved and always invalid.
package handle
