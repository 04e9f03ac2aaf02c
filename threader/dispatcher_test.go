package threader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
)

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.WaitForThreadedWork(ctx); err != nil {
		t.Fatalf("WaitForThreadedWork: %v", err)
	}
}

func TestNewDispatcher(t *testing.T) {
	d := New()
	if d.Generation() != 1 {
		t.Errorf("Generation = %d, want 1", d.Generation())
	}
	if d.State() != Idle {
		t.Errorf("State = %v, want idle", d.State())
	}
	if d.Outstanding() != 0 || d.WaitingQueueCount() != 0 || d.ExecutionQueueCount() != 0 {
		t.Error("new dispatcher should have no work")
	}
	if err := d.Update(); err != nil {
		t.Errorf("Update on empty dispatcher: %v", err)
	}
	drain(t, d)
}

func TestCallWithDescription_Scenario(t *testing.T) {
	d := New()

	var calls []string
	CallWithDescription(d, func(_ context.Context, desc string) string {
		return "result for " + desc
	}, "desc", func(r string) {
		calls = append(calls, r)
	})

	drain(t, d)
	if err := d.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(calls) != 1 || calls[0] != "result for desc" {
		t.Fatalf("callbacks = %q, want exactly one \"result for desc\"", calls)
	}
	if d.WaitingQueueCount() != 0 || d.ExecutionQueueCount() != 0 {
		t.Fatalf("queues not empty: waiting=%d execution=%d", d.WaitingQueueCount(), d.ExecutionQueueCount())
	}
}

func TestStaleAfterAwake(t *testing.T) {
	tests := []struct {
		name   string
		submit func(d *Dispatcher, gate <-chan struct{}, fired *atomic.Int32)
	}{
		{
			name: "action",
			submit: func(d *Dispatcher, gate <-chan struct{}, fired *atomic.Int32) {
				CallAction(d, func(context.Context) { <-gate }, func() { fired.Add(1) })
			},
		},
		{
			name: "call",
			submit: func(d *Dispatcher, gate <-chan struct{}, fired *atomic.Int32) {
				Call(d, func(context.Context) int { <-gate; return 1 }, func(int) { fired.Add(1) })
			},
		},
		{
			name: "described",
			submit: func(d *Dispatcher, gate <-chan struct{}, fired *atomic.Int32) {
				CallWithDescription(d, func(_ context.Context, n int) int { <-gate; return n }, 7,
					func(int) { fired.Add(1) })
			},
		},
		{
			name: "streaming",
			submit: func(d *Dispatcher, gate <-chan struct{}, fired *atomic.Int32) {
				CallStreaming(d, func(_ context.Context, pages int, emit func(int)) string {
					<-gate
					for i := 0; i < pages; i++ {
						emit(i)
					}
					return "done"
				}, 3, func(int) { fired.Add(1) }, func(string) { fired.Add(1) })
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			gate := make(chan struct{})
			var fired atomic.Int32

			tt.submit(d, gate, &fired)
			d.Awake()
			close(gate)

			drain(t, d)
			if err := d.Update(); err != nil {
				t.Fatalf("Update: %v", err)
			}
			if n := fired.Load(); n != 0 {
				t.Fatalf("%d stale callbacks fired", n)
			}
			if d.Generation() != 2 {
				t.Errorf("Generation = %d, want 2", d.Generation())
			}
		})
	}
}

func TestAwakeClearsQueuedResults(t *testing.T) {
	d := New()
	fired := false
	Call(d, func(context.Context) int { return 1 }, func(int) { fired = true })
	drain(t, d)

	if d.WaitingQueueCount() != 1 {
		t.Fatalf("WaitingQueueCount = %d, want 1", d.WaitingQueueCount())
	}
	d.Awake()
	if d.WaitingQueueCount() != 0 {
		t.Fatal("Awake should clear the waiting queue")
	}
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}
	if fired {
		t.Fatal("callback queued before Awake should not fire")
	}
}

func TestAwakeCancelsWorkContext(t *testing.T) {
	d := New()
	started := make(chan struct{})
	var cancelled atomic.Bool

	CallAction(d, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}, nil)

	<-started
	d.Awake()
	drain(t, d)

	if !cancelled.Load() {
		t.Fatal("work context should be cancelled by Awake")
	}
}

func TestUpdate_FIFOExactlyOnce(t *testing.T) {
	d := New()
	var got []string

	for i := 0; i < 5; i++ {
		CallWithDescription(d, func(_ context.Context, n int) string {
			return fmt.Sprintf("call-%d", n)
		}, i, func(s string) { got = append(got, s) })
		drain(t, d)
	}

	CallStreaming(d, func(_ context.Context, pages int, emit func(string)) int {
		for i := 0; i < pages; i++ {
			emit(fmt.Sprintf("page-%d", i))
		}
		return pages
	}, 3, func(s string) { got = append(got, s) }, func(n int) { got = append(got, fmt.Sprintf("complete-%d", n)) })
	drain(t, d)

	CallAction(d, func(context.Context) {}, func() { got = append(got, "action") })
	drain(t, d)

	if err := d.Update(); err != nil {
		t.Fatal(err)
	}
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"call-0", "call-1", "call-2", "call-3", "call-4",
		"page-0", "page-1", "page-2", "complete-3",
		"action",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d callbacks %q, want %q", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("callback %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUpdate_ClearsQueueOnCallbackPanic(t *testing.T) {
	d := New()
	secondRan := false

	Call(d, func(context.Context) int { return 1 }, func(int) { panic("callback exploded") })
	drain(t, d)
	Call(d, func(context.Context) int { return 2 }, func(int) { secondRan = true })
	drain(t, d)

	if d.WaitingQueueCount() != 2 {
		t.Fatalf("WaitingQueueCount = %d, want 2", d.WaitingQueueCount())
	}

	err := d.Update()
	if errors.KindOf(err) != errors.KindCallbackPanic {
		t.Fatalf("Update error = %v, want callback panic", err)
	}
	if d.ExecutionQueueCount() != 0 || d.WaitingQueueCount() != 0 {
		t.Fatalf("queues not cleared: execution=%d waiting=%d", d.ExecutionQueueCount(), d.WaitingQueueCount())
	}

	if err := d.Update(); err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if secondRan {
		t.Fatal("callback after the panicking one should be lost")
	}
}

func TestUpdate_PanicWithErrorValue(t *testing.T) {
	d := New()
	boom := fmt.Errorf("boom")
	CallAction(d, func(context.Context) {}, func() { panic(boom) })
	drain(t, d)

	err := d.Update()
	var e *errors.Error
	if !errors.As(err, &e) || e.Kind != errors.KindCallbackPanic {
		t.Fatalf("Update error = %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatal("panic error should be the cause")
	}
}

func TestWorkPanicSurfacesThroughUpdate(t *testing.T) {
	d := New()
	CallAction(d, func(context.Context) { panic("work exploded") }, func() {
		t.Error("done should not run after a work panic")
	})
	drain(t, d)

	if d.Outstanding() != 0 {
		t.Fatalf("Outstanding = %d after panic", d.Outstanding())
	}
	err := d.Update()
	if errors.KindOf(err) != errors.KindWorkPanic {
		t.Fatalf("Update error = %v, want work panic", err)
	}
}

func TestWorkPanicAfterAwakeIsDropped(t *testing.T) {
	d := New()
	gate := make(chan struct{})
	CallAction(d, func(context.Context) {
		<-gate
		panic("late")
	}, nil)

	d.Awake()
	close(gate)
	drain(t, d)

	if err := d.Update(); err != nil {
		t.Fatalf("stale work panic should be dropped, got %v", err)
	}
}

func TestWaitForThreadedWork_SlowWork(t *testing.T) {
	d := New()
	start := time.Now()

	CallAction(d, func(context.Context) {
		time.Sleep(250 * time.Millisecond)
	}, nil)

	if d.Outstanding() == 0 {
		t.Fatal("Outstanding should be nonzero before the drain")
	}
	if d.State() != Busy {
		t.Fatalf("State = %v, want busy", d.State())
	}

	drain(t, d)

	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Fatalf("drain returned after %v, before the work finished", elapsed)
	}
	if d.Outstanding() != 0 || d.State() != Idle {
		t.Fatalf("Outstanding = %d after drain", d.Outstanding())
	}
}

func TestWaitForThreadedWork_Timeout(t *testing.T) {
	d := New()
	gate := make(chan struct{})
	CallAction(d, func(context.Context) { <-gate }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.WaitForThreadedWork(ctx)
	if errors.KindOf(err) != errors.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}

	close(gate)
	drain(t, d)
}

func TestWaitForThreadedWork_Repeated(t *testing.T) {
	d := New()
	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		wg.Add(3)
		for i := 0; i < 3; i++ {
			CallAction(d, func(context.Context) {
				defer wg.Done()
				time.Sleep(time.Millisecond)
			}, nil)
		}
		drain(t, d)
		if d.Outstanding() != 0 {
			t.Fatalf("round %d: Outstanding = %d", round, d.Outstanding())
		}
		wg.Wait()
	}
}

func TestWithMaxWorkers(t *testing.T) {
	d := New(WithMaxWorkers(2))

	var running, peak atomic.Int32
	results := 0
	for i := 0; i < 8; i++ {
		Call(d, func(context.Context) int {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return 1
		}, func(n int) { results += n })
	}

	drain(t, d)
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}

	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
	if results != 8 {
		t.Fatalf("results = %d, want 8", results)
	}
}

func TestAwakeInsideCallback(t *testing.T) {
	d := New()
	var got []int
	for i := 0; i < 3; i++ {
		CallWithDescription(d, func(_ context.Context, n int) int { return n }, i, func(n int) {
			got = append(got, n)
			if n == 0 {
				d.Awake()
			}
		})
		drain(t, d)
	}

	if err := d.Update(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("callbacks = %v, want only the first", got)
	}
}

func TestCallbacksRunOnUpdateGoroutine(t *testing.T) {
	d := New()
	inUpdate := false
	ok := true

	for i := 0; i < 10; i++ {
		Call(d, func(context.Context) int { return i }, func(int) {
			if !inUpdate {
				ok = false
			}
		})
	}
	drain(t, d)

	inUpdate = true
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}
	inUpdate = false

	if !ok {
		t.Fatal("callback ran outside Update")
	}
}

func TestShutdown(t *testing.T) {
	d := New()
	fired := false
	CallAction(d, func(context.Context) { time.Sleep(10 * time.Millisecond) }, func() { fired = true })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}
	if fired {
		t.Fatal("work finished after Shutdown should be dropped")
	}
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	d := New(WithMeterProvider(mp))

	Call(d, func(context.Context) int { return 1 }, func(int) {})
	CallAction(d, func(context.Context) {}, func() { panic("bad callback") })
	drain(t, d)
	_ = d.Update()

	gate := make(chan struct{})
	Call(d, func(context.Context) int { <-gate; return 1 }, func(int) {})
	d.Awake()
	close(gate)
	drain(t, d)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}

	want := map[string]int64{
		"gamekit.dispatcher.scheduled":         3,
		"gamekit.dispatcher.completed":         3,
		"gamekit.dispatcher.stale_dropped":     1,
		"gamekit.dispatcher.callback_failures": 1,
		"gamekit.dispatcher.outstanding":       0,
	}
	for name, v := range want {
		if sums[name] != v {
			t.Errorf("%s = %d, want %d", name, sums[name], v)
		}
	}
}
