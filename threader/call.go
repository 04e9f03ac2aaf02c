package threader

import "context"

// CallAction runs fn off the update goroutine and queues done, if non-nil,
// for the next Update once fn returns.
func CallAction(d *Dispatcher, fn func(ctx context.Context), done func()) {
	d.schedule(shapeAction, func(ctx context.Context, post func(func())) {
		fn(ctx)
		if done != nil {
			post(done)
		}
	})
}

// Call runs fn off the update goroutine and replays cb with its result.
func Call[R any](d *Dispatcher, fn func(ctx context.Context) R, cb func(R)) {
	d.schedule(shapeCall, func(ctx context.Context, post func(func())) {
		result := fn(ctx)
		if cb != nil {
			post(func() { cb(result) })
		}
	})
}

// CallWithDescription is Call for functions that take a request value.
func CallWithDescription[D, R any](d *Dispatcher, fn func(ctx context.Context, desc D) R, desc D, cb func(R)) {
	d.schedule(shapeDescribed, func(ctx context.Context, post func(func())) {
		result := fn(ctx, desc)
		if cb != nil {
			post(func() { cb(result) })
		}
	})
}

// CallStreaming runs fn, which may emit any number of partial results before
// returning a final one. Each emitted result is replayed through cb in
// emission order, followed by onComplete with the final result.
//
// emit is safe to call only from within fn (or goroutines fn waits for).
func CallStreaming[D, R, C any](d *Dispatcher, fn func(ctx context.Context, desc D, emit func(R)) C, desc D, cb func(R), onComplete func(C)) {
	d.schedule(shapeStreaming, func(ctx context.Context, post func(func())) {
		emit := func(r R) {
			if cb != nil {
				post(func() { cb(r) })
			}
		}
		final := fn(ctx, desc, emit)
		if onComplete != nil {
			post(func() { onComplete(final) })
		}
	})
}
