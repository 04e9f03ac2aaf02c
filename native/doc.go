// Package native loads GameKit native libraries and calls into them.
//
// A native library is a WebAssembly module run by wazero. Its exported
// functions are the library's entry points; every entry point takes
// flattened scalar arguments and returns a Status (0 is success):
//
//	rt, err := native.NewRuntime(ctx, native.Config{LibraryDir: "Plugins"})
//	lib, err := rt.Load(ctx, "", "aws-gamekit-identity")
//	login, err := lib.Bind(native.Signature{
//	    Name:    "GameKitIdentityLogin",
//	    Params:  []wit.Type{wit.U32{}, wit.String{}, wit.String{}},
//	    Results: []wit.Type{wit.U32{}},
//	})
//	status, err := login.Call(ctx, uint64(instance), uint64(userPtr), uint64(passPtr))
//
// A missing library file is errors.KindLibraryNotFound, and a missing or
// mismatched export is errors.KindEntryPointNotFound. Anything that goes
// wrong inside the call is errors.KindNativeFailure.
//
// # Callbacks
//
// Libraries import the "gamekit" module to call back into Go. Results are
// delivered to a Receiver pinned in the runtime's handle registry for the
// duration of one call:
//
//	status, err := getUser.CallWithReceiver(ctx, native.ReceiverFunc(func(ctx context.Context, p native.Payload) {
//	    _ = p.Decode(&user)
//	}), uint64(instance))
//
// Log lines go to a LogSink pinned the same way, or to the package logger.
//
// # Memory
//
// Pointers passed to a library refer to Library.Memory and are allocated
// with Library.Allocator. Libraries that own a memory must export
// gamekit_alloc(size, align) and gamekit_free(ptr, size, align). Libraries
// implemented as wazero host modules and registered with Runtime.Attach have
// no memory, so they share the runtime heap.
//
// Host-module entry points are called through their Go implementation, since
// wazero forbids ExportedFunction on host modules.
//
// Every Memory access holds a read lock, and anything that can grow the
// memory (the runtime heap, a call into guest code) holds it exclusively, so
// concurrent marshalling never touches a buffer that is being replaced.
// Calls into a library with its own memory are serialized; a Receiver must
// not call back into the library that is delivering to it.
package native
