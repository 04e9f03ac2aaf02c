// Package threader runs blocking native or network work off the cooperative
// game-loop goroutine and replays the results on it.
//
// A Dispatcher is owned by one engine session. Work is submitted with one of
// the package-level call shapes:
//
//	threader.CallAction(d, fn, done)                          // no result
//	threader.Call(d, fn, cb)                                  // one result
//	threader.CallWithDescription(d, fn, desc, cb)             // request value, one result
//	threader.CallStreaming(d, fn, desc, cb, onComplete)       // paged results plus final
//
// Every call increments the outstanding count, runs fn on its own goroutine
// and queues one completion per result. Completions only run inside Update,
// in the order they were queued:
//
//	for frame := range frames {
//	    if err := d.Update(); err != nil {
//	        log.Print(err)
//	    }
//	}
//
// # Epochs
//
// Awake ends the current epoch. Work submitted before it keeps running (its
// context is cancelled, so cooperative work can stop early) but anything it
// produces afterwards is dropped instead of queued. Generation reports the
// epoch number.
//
// # Failures
//
// A panicking callback stops the current Update tick; the panic is returned
// as an errors.KindCallbackPanic error and the rest of the tick's completions
// are discarded. A panicking work function is recovered on its worker and
// returned from a later Update as errors.KindWorkPanic, subject to the same
// epoch check as any other result.
//
// # Draining
//
// WaitForThreadedWork blocks until the outstanding count reaches zero. It
// waits on a signal closed by the last finishing worker rather than polling.
package threader
