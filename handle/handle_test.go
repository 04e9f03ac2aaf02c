package handle

import (
	"sync"
	"testing"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
)

type receiver struct {
	name string
}

func TestRegistry_Basic(t *testing.T) {
	reg := NewRegistry()

	h, err := reg.Pin("test")
	if err != nil {
		t.Fatalf("Pin failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := reg.Get(h)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	val, ok = reg.Unpin(h)
	if !ok || val != "test" {
		t.Fatalf("Unpin = %v, %v", val, ok)
	}

	if reg.Len() != 0 {
		t.Fatalf("Expected Len() == 0 after Unpin, got %d", reg.Len())
	}

	if _, ok := reg.Unpin(h); ok {
		t.Fatal("second Unpin should fail")
	}
}

func TestRegistry_ZeroHandle(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Get(0); ok {
		t.Fatal("handle 0 must be invalid")
	}
	if _, ok := reg.Unpin(0); ok {
		t.Fatal("handle 0 must be invalid")
	}
}

func TestRegistry_ReusedSlotRejectsOldHandle(t *testing.T) {
	reg := NewRegistry()

	old, _ := reg.Pin("first")
	reg.Unpin(old)

	fresh, _ := reg.Pin("second")
	if uint32(fresh) != uint32(old) {
		t.Fatalf("expected slot reuse, old=%#x fresh=%#x", old, fresh)
	}
	if fresh == old {
		t.Fatal("reused slot must carry a new sequence")
	}

	if _, ok := reg.Get(old); ok {
		t.Fatal("stale handle resolved after slot reuse")
	}
	if v, ok := reg.Get(fresh); !ok || v != "second" {
		t.Fatalf("Get(fresh) = %v, %v", v, ok)
	}
}

func TestRegistry_Close(t *testing.T) {
	reg := NewRegistry()
	h, _ := reg.Pin("a")

	if err := reg.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := reg.Get(h); ok {
		t.Fatal("Get should fail after Close")
	}

	_, err := reg.Pin("b")
	if errors.KindOf(err) != errors.KindClosed {
		t.Fatalf("Pin after Close = %v, want closed error", err)
	}

	called := false
	err = reg.Dispatch("c", func(Handle) { called = true })
	if err == nil || called {
		t.Fatal("Dispatch after Close must fail without running work")
	}
}

func TestDispatch_ReleasesHandle(t *testing.T) {
	reg := NewRegistry()
	recv := &receiver{name: "login"}

	var seen Handle
	err := reg.Dispatch(recv, func(h Handle) {
		seen = h
		got, err := GetDispatchObject[*receiver](reg, h)
		if err != nil {
			t.Fatalf("GetDispatchObject: %v", err)
		}
		if got != recv {
			t.Fatal("GetDispatchObject returned a different object")
		}
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if reg.Len() != 0 {
		t.Fatalf("handle still pinned after Dispatch, Len=%d", reg.Len())
	}
	if _, err := GetDispatchObject[*receiver](reg, seen); errors.KindOf(err) != errors.KindStaleHandle {
		t.Fatalf("expected stale handle error, got %v", err)
	}
}

func TestDispatch_ReleasesOnPanic(t *testing.T) {
	reg := NewRegistry()

	func() {
		defer func() {
			if r := recover(); r != "native exploded" {
				t.Fatalf("recover() = %v", r)
			}
		}()
		_ = reg.Dispatch(&receiver{}, func(Handle) {
			panic("native exploded")
		})
	}()

	if reg.Len() != 0 {
		t.Fatalf("panic leaked a pin, Len=%d", reg.Len())
	}
}

func TestDispatchResult(t *testing.T) {
	reg := NewRegistry()

	got, err := DispatchResult(reg, &receiver{name: "x"}, func(h Handle) uint32 {
		r, err := GetDispatchObject[*receiver](reg, h)
		if err != nil {
			t.Fatalf("GetDispatchObject: %v", err)
		}
		return uint32(len(r.name)) + 41
	})
	if err != nil {
		t.Fatalf("DispatchResult: %v", err)
	}
	if got != 42 {
		t.Fatalf("result = %d, want 42", got)
	}
	if reg.Len() != 0 {
		t.Fatal("handle still pinned")
	}
}

func TestGetDispatchObject_WrongType(t *testing.T) {
	reg := NewRegistry()

	err := reg.Dispatch(&receiver{}, func(h Handle) {
		_, err := GetDispatchObject[string](reg, h)
		if errors.KindOf(err) != errors.KindTypeMismatch {
			t.Fatalf("expected type mismatch, got %v", err)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = reg.Dispatch(i, func(h Handle) {
					v, err := GetDispatchObject[int](reg, h)
					if err != nil || v != i {
						t.Errorf("goroutine %d: got %v, %v", i, v, err)
					}
				})
			}
		}(i)
	}
	wg.Wait()

	if reg.Len() != 0 {
		t.Fatalf("Len = %d after all dispatches", reg.Len())
	}
}
