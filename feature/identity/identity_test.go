package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
	"github.com/aws/aws-gamekit-unity-sub001/feature"
	"github.com/aws/aws-gamekit-unity-sub001/feature/core"
	"github.com/aws/aws-gamekit-unity-sub001/feature/identity"
	"github.com/aws/aws-gamekit-unity-sub001/native"
	"github.com/aws/aws-gamekit-unity-sub001/testbed"
	"github.com/aws/aws-gamekit-unity-sub001/threader"
)

type fixture struct {
	rt      *native.Runtime
	backend *testbed.Backend
	session *core.SessionManager
	w       *identity.Wrapper
	levels  []feature.Level
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	rt, err := native.NewRuntime(ctx, native.Config{LibraryDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.Close(ctx) })

	f := &fixture{rt: rt, backend: testbed.New()}
	if err := f.backend.Attach(ctx, rt); err != nil {
		t.Fatal(err)
	}
	log := func(level feature.Level, _ string) { f.levels = append(f.levels, level) }
	f.session = core.NewSessionManager(rt, "cfg.yml", nil)
	f.w = identity.NewWrapper(rt, f.session, log)
	return f
}

func TestWrapper_Login(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		req  identity.LoginRequest
		want native.Status
	}{
		{"ok", identity.LoginRequest{UserName: "player1", Password: "correct-horse"}, native.StatusSuccess},
		{"empty user", identity.LoginRequest{Password: "correct-horse"}, identity.StatusMalformedUsername},
		{"short password", identity.LoginRequest{UserName: "player1", Password: "pw"}, identity.StatusMalformedPassword},
		{"wrong password", identity.LoginRequest{UserName: "player1", Password: "battery-staple"}, identity.StatusLoginFailed},
		{"unknown user", identity.LoginRequest{UserName: "nobody", Password: "correct-horse"}, identity.StatusLoginFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			status, err := f.w.Login(ctx, tt.req)
			if err != nil {
				t.Fatal(err)
			}
			if status != tt.want {
				t.Fatalf("status = %v, want %v", status, tt.want)
			}
		})
	}
}

func TestWrapper_CreatedAgainstSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.w.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if !f.session.Created() {
		t.Fatal("creating identity should create the session manager")
	}
	if f.backend.Live() != 2 {
		t.Fatalf("live instances = %d, want 2", f.backend.Live())
	}

	_ = f.w.Release(ctx)
	_ = f.session.Release(ctx)
	if f.backend.Live() != 0 {
		t.Fatalf("live instances = %d after release", f.backend.Live())
	}
	if f.rt.Registry().Len() != 0 {
		t.Fatalf("%d handles pinned after release", f.rt.Registry().Len())
	}
}

func TestWrapper_NullInstance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// a session the native side never created
	w := identity.NewWrapper(f.rt, feature.NoSession, nil)
	_, err := w.Logout(ctx)
	if errors.KindOf(err) != errors.KindNativeFailure {
		t.Fatalf("error = %v", err)
	}
	if w.Created() {
		t.Fatal("null instance cached")
	}
	if f.rt.Registry().Len() != 0 {
		t.Fatal("log handle leaked by failed create")
	}
}

func TestWrapper_GetUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, status, err := f.w.GetUser(ctx)
	if err != nil || status != identity.StatusNotLoggedIn {
		t.Fatalf("before login: %v, %v", status, err)
	}

	if _, err := f.w.Login(ctx, identity.LoginRequest{UserName: "player1", Password: "correct-horse"}); err != nil {
		t.Fatal(err)
	}
	user, status, err := f.w.GetUser(ctx)
	if err != nil || !status.OK() {
		t.Fatalf("GetUser: %v, %v", status, err)
	}
	if user.UserName != "player1" || user.Email != "player1@example.com" || user.UserID == "" {
		t.Fatalf("user = %+v", user)
	}
	if f.rt.Registry().Len() != 1 {
		t.Fatalf("receiver handle not released: %d pinned", f.rt.Registry().Len())
	}
}

func TestIdentity_Async(t *testing.T) {
	f := newFixture(t)
	d := threader.New()
	id := identity.New(d, f.w)

	var (
		login  feature.Result
		user   identity.GetUserResult
		order  []string
		logout feature.Result
	)
	id.Login(identity.LoginRequest{UserName: "player1", Password: "correct-horse"}, func(r feature.Result) {
		login = r
		order = append(order, "login")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.WaitForThreadedWork(ctx); err != nil {
		t.Fatal(err)
	}
	if len(order) != 0 {
		t.Fatal("callback ran before Update")
	}
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}
	if !login.OK() {
		t.Fatalf("login = %+v", login)
	}

	id.GetUser(func(r identity.GetUserResult) {
		user = r
		order = append(order, "user")
	})
	if err := d.WaitForThreadedWork(ctx); err != nil {
		t.Fatal(err)
	}
	id.Logout(func(r feature.Result) {
		logout = r
		order = append(order, "logout")
	})
	if err := d.WaitForThreadedWork(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}

	if len(order) != 3 || order[1] != "user" || order[2] != "logout" {
		t.Fatalf("callback order = %v", order)
	}
	if !user.OK() || user.User.UserName != "player1" {
		t.Fatalf("user result = %+v", user)
	}
	if !logout.OK() || f.backend.Player() != "" {
		t.Fatalf("logout = %+v, player %q", logout, f.backend.Player())
	}
}

func TestIdentity_LibraryMissing(t *testing.T) {
	ctx := context.Background()
	rt, err := native.NewRuntime(ctx, native.Config{LibraryDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)

	var levels []feature.Level
	w := identity.NewWrapper(rt, feature.NoSession, func(level feature.Level, _ string) {
		levels = append(levels, level)
	})
	d := threader.New()
	var got feature.Result
	identity.New(d, w).Login(identity.LoginRequest{UserName: "a", Password: "b"}, func(r feature.Result) { got = r })

	if err := d.WaitForThreadedWork(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}
	if !errors.IsNativeAbsence(got.Err) || got.OK() {
		t.Fatalf("result = %+v", got)
	}
	if len(levels) != 1 || levels[0] != feature.LevelError {
		t.Fatalf("reported %v", levels)
	}
}
