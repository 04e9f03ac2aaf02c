package main

import (
	"context"
	"strconv"
	"testing"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/aws/aws-gamekit-unity-sub001/feature/achievements"
	"github.com/aws/aws-gamekit-unity-sub001/feature/core"
	"github.com/aws/aws-gamekit-unity-sub001/native"
	"github.com/aws/aws-gamekit-unity-sub001/testbed"
)

func newTestRuntime(t *testing.T) *native.Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := native.NewRuntime(ctx, native.Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.Close(ctx) })
	if err := testbed.New().Attach(ctx, rt); err != nil {
		t.Fatal(err)
	}
	return rt
}

func mustCall(t *testing.T, lib *native.Library, name string, values ...string) outcome {
	t.Helper()
	sig, ok := findSignature(lib, name)
	if !ok {
		t.Fatalf("%s not exported", name)
	}
	out := invoke(context.Background(), lib, sig, values)
	if out.err != nil {
		t.Fatalf("%s: %v", name, out.err)
	}
	return out
}

func TestInvoke(t *testing.T) {
	rt := newTestRuntime(t)
	sm, _ := rt.Library(core.LibraryName)
	ach, _ := rt.Library(achievements.LibraryName)

	out := mustCall(t, sm, "GameKitSessionManagerInstanceCreate", "cfg.yml", "0")
	session := api.DecodeU32(out.results[0])
	if session == 0 {
		t.Fatal("null session")
	}

	out = mustCall(t, sm, "GameKitSessionManagerAreSettingsLoaded", strconv.Itoa(int(session)), "1")
	if out.results[0] != 1 {
		t.Fatalf("AreSettingsLoaded = %v", out.results)
	}

	out = mustCall(t, ach, "GameKitAchievementsInstanceCreateWithSessionManager", strconv.Itoa(int(session)), "0")
	instance := strconv.Itoa(int(api.DecodeU32(out.results[0])))

	// receiver supplied by invoke
	out = mustCall(t, ach, "GameKitListAchievements", instance, "2", "0")
	if len(out.payloads) != 3 {
		t.Fatalf("got %d payloads, want 3", len(out.payloads))
	}
	if rt.Registry().Len() != 0 {
		t.Fatal("receiver still pinned")
	}
	if rt.Heap().Live() != 0 {
		t.Fatalf("%d string arguments leaked", rt.Heap().Live())
	}
	if out.String() == "" {
		t.Fatal("empty rendering")
	}
}

func TestInvoke_BadArguments(t *testing.T) {
	rt := newTestRuntime(t)
	ach, _ := rt.Library(achievements.LibraryName)
	sig, _ := findSignature(ach, "GameKitListAchievements")

	tests := []struct {
		name   string
		values []string
	}{
		{"too few", []string{"1"}},
		{"too many", []string{"1", "2", "3", "4", "5"}},
		{"bad u64", []string{"1", "2", "3", "not-a-number"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := invoke(context.Background(), ach, sig, tt.values); out.err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		v    uint64
		t    wit.Type
		want string
	}{
		{0, wit.U32{}, "0 (success)"},
		{0x503, wit.U32{}, "1283 (status 0x503)"},
		{1 << 40, wit.U64{}, "1099511627776"},
	}
	for _, tt := range tests {
		if got := formatResult(tt.v, tt.t); got != tt.want {
			t.Errorf("formatResult(%d, %s) = %q, want %q", tt.v, native.TypeName(tt.t), got, tt.want)
		}
	}
}
