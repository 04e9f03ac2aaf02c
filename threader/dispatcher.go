package threader

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
)

// State reports whether a Dispatcher has work in flight.
type State int

const (
	Idle State = iota // no outstanding work
	Busy              // at least one work function has not finished
)

func (s State) String() string {
	if s == Busy {
		return "busy"
	}
	return "idle"
}

// Call shapes, used as metric and log labels.
const (
	shapeAction    = "action"
	shapeCall      = "call"
	shapeDescribed = "described"
	shapeStreaming = "streaming"
)

// action is one queued completion. A non-nil error stops the Update tick.
type action func() error

// epoch is the cancellation token captured by every submitted work item.
// Awake cancels the current epoch and installs a new one; results posted
// under a cancelled epoch are dropped.
type epoch struct {
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64
}

func newEpoch(gen uint64) *epoch {
	ctx, cancel := context.WithCancel(context.Background())
	return &epoch{ctx: ctx, cancel: cancel, gen: gen}
}

// Dispatcher runs work functions on worker goroutines and replays their
// results on the goroutine that calls Update.
//
// Each engine session owns its own Dispatcher. The waiting queue, execution
// queue and current epoch are guarded by one mutex; the outstanding count is
// atomic and only used to implement WaitForThreadedWork.
type Dispatcher struct {
	mu        sync.Mutex
	waiting   []action
	execution []action
	epoch     *epoch

	outstanding atomic.Int64
	idleMu      sync.Mutex
	idle        chan struct{} // closed while outstanding == 0

	sem     chan struct{}
	log     *zap.Logger
	metrics *metrics
}

// New creates an idle Dispatcher at generation 1.
func New(opts ...Option) *Dispatcher {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = Logger()
	}

	idle := make(chan struct{})
	close(idle)

	d := &Dispatcher{
		epoch:   newEpoch(1),
		idle:    idle,
		log:     o.logger,
		metrics: newMetrics(o.meterProvider, o.logger),
	}
	if o.maxWorkers > 0 {
		d.sem = make(chan struct{}, o.maxWorkers)
	}
	return d
}

// Awake starts a new epoch. Both queues are cleared and the context handed
// to in-flight work is cancelled. That work still runs to completion, but
// its results are discarded instead of queued.
func (d *Dispatcher) Awake() {
	d.mu.Lock()
	prev := d.epoch
	d.epoch = newEpoch(prev.gen + 1)
	clear(d.waiting)
	d.waiting = d.waiting[:0]
	clear(d.execution)
	d.execution = d.execution[:0]
	d.mu.Unlock()

	prev.cancel()
	d.log.Debug("dispatcher awake",
		zap.Uint64("generation", prev.gen+1),
		zap.Int64("outstanding", d.outstanding.Load()))
}

// Update moves every queued completion onto the execution queue and runs
// them in the order they were queued, on the calling goroutine.
//
// A panicking callback, or a replayed panic from a work function, stops the
// tick and is returned as an error. The execution queue is cleared either
// way, so completions queued after the failing one in the same tick are lost.
//
// Update is not reentrant: callbacks must not call Update or
// WaitForThreadedWork.
func (d *Dispatcher) Update() (err error) {
	d.mu.Lock()
	d.execution = append(d.execution, d.waiting...)
	clear(d.waiting)
	d.waiting = d.waiting[:0]
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		clear(d.execution)
		d.execution = d.execution[:0]
		d.mu.Unlock()

		if r := recover(); r != nil {
			err = errors.Panic(errors.PhaseDispatch, errors.KindCallbackPanic, r)
		}
		if err != nil {
			d.metrics.callbackFailures.Add(context.Background(), 1)
			d.log.Error("dispatcher update stopped", zap.Error(err))
		}
	}()

	for i := 0; ; i++ {
		d.mu.Lock()
		if i >= len(d.execution) {
			d.mu.Unlock()
			return nil
		}
		run := d.execution[i]
		d.mu.Unlock()

		if err := run(); err != nil {
			return err
		}
	}
}

// WaitForThreadedWork blocks until no work is outstanding or ctx is done.
// It is meant for teardown and tests; calling it from a callback inside
// Update can deadlock the only goroutine able to drain results.
func (d *Dispatcher) WaitForThreadedWork(ctx context.Context) error {
	d.idleMu.Lock()
	idle := d.idle
	d.idleMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return errors.New(errors.PhaseDispatch, errors.KindTimeout).
			Detail("%d work items still outstanding", d.outstanding.Load()).
			Cause(ctx.Err()).
			Build()
	}
}

// Shutdown ends the current epoch and waits for in-flight work to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.Awake()
	return d.WaitForThreadedWork(ctx)
}

// Outstanding returns the number of work functions that have not finished.
func (d *Dispatcher) Outstanding() int64 {
	return d.outstanding.Load()
}

// State returns Busy while any work is outstanding.
func (d *Dispatcher) State() State {
	if d.outstanding.Load() > 0 {
		return Busy
	}
	return Idle
}

// WaitingQueueCount returns the number of completions waiting for Update.
func (d *Dispatcher) WaitingQueueCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.waiting)
}

// ExecutionQueueCount returns the number of completions in the current tick.
// Outside of Update it is always 0.
func (d *Dispatcher) ExecutionQueueCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.execution)
}

// Generation returns the current epoch number. It starts at 1 and is
// incremented by every Awake.
func (d *Dispatcher) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.epoch.gen
}

func (d *Dispatcher) currentEpoch() *epoch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.epoch
}

// post queues a completion if ep is still the current epoch.
func (d *Dispatcher) post(ep *epoch, a action) {
	d.mu.Lock()
	if ep != d.epoch {
		d.mu.Unlock()
		d.metrics.staleDropped.Add(context.Background(), 1)
		return
	}
	d.waiting = append(d.waiting, a)
	d.mu.Unlock()
}

func (d *Dispatcher) begin() {
	d.idleMu.Lock()
	if d.outstanding.Add(1) == 1 {
		d.idle = make(chan struct{})
	}
	d.idleMu.Unlock()
}

func (d *Dispatcher) end() {
	d.idleMu.Lock()
	if d.outstanding.Add(-1) == 0 {
		close(d.idle)
	}
	d.idleMu.Unlock()
}

// schedule runs work on a new goroutine under the current epoch. work
// receives the epoch's context and a function that queues a callback.
func (d *Dispatcher) schedule(shape string, work func(ctx context.Context, post func(func()))) {
	ep := d.currentEpoch()
	d.begin()
	d.metrics.onScheduled(context.Background(), shape)

	go d.run(ep, shape, work)
}

func (d *Dispatcher) run(ep *epoch, shape string, work func(ctx context.Context, post func(func()))) {
	defer d.end()
	defer d.metrics.onFinished(context.Background(), shape)

	if d.sem != nil {
		d.sem <- struct{}{}
		defer func() { <-d.sem }()
	}

	defer func() {
		if r := recover(); r != nil {
			err := errors.Panic(errors.PhaseDispatch, errors.KindWorkPanic, r)
			d.log.Error("work function panicked",
				zap.String("shape", shape),
				zap.Uint64("generation", ep.gen),
				zap.Error(err))
			d.post(ep, func() error { return err })
		}
	}()

	work(ep.ctx, func(cb func()) {
		d.post(ep, func() error {
			cb()
			return nil
		})
	})
}
