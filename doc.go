// Package gamekit is the managed half of the GameKit game-backend SDK. It
// loads the native SDK across a foreign-function boundary, marshals values
// and callbacks across it, and replays asynchronous results on the single
// cooperative thread that owns game state.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	gamekit/             Root package with core Memory and Allocator interfaces
//	├── native/          wazero-backed native library loader and entry points
//	├── handle/          Opaque dispatch handles for objects given to native code
//	├── marshal/         Arrays, records and strings to and from native buffers
//	├── threader/        Off-thread work with replay on Update()
//	├── feature/         Native feature handle lifecycle and boundary call helpers
//	│   ├── core/        Session manager wrapper
//	│   ├── identity/    Identity wrapper and async facade
//	│   └── achievements/ Achievements wrapper and async facade
//	├── config/          koanf-based configuration
//	├── testbed/         In-process fake native libraries
//	├── cmd/gamekit/     Console for listing and calling entry points
//	└── errors/          Structured error types
//
// # Quick Start
//
// Load a library and drive results from the game loop:
//
//	rt, err := native.NewRuntime(ctx, native.Config{LibraryDir: "Plugins"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	sink := feature.ZapSink(logger)
//	d := threader.New(threader.WithLogger(logger))
//	session := core.NewSessionManager(rt, "awsGameKitClientConfig.yml", sink)
//	id := identity.New(d, identity.NewWrapper(rt, session, sink))
//
//	id.Login(identity.LoginRequest{UserName: name, Password: pass}, func(r feature.Result) {
//	    if !r.OK() {
//	        log.Print(r.Status, r.Err)
//	    }
//	})
//	id.GetUser(func(r identity.GetUserResult) {
//	    fmt.Println(r.Status, r.User.UserName)
//	})
//
//	for running {
//	    if err := d.Update(); err != nil {
//	        log.Print(err)
//	    }
//	}
//
// # Thread Safety
//
// Runtime, Registry and Dispatcher are safe for concurrent use. Callbacks
// passed to the dispatcher only run inside Update, on whichever goroutine
// calls it, so callback bodies need no synchronization of their own.
package gamekit
