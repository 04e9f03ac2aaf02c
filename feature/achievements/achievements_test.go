package achievements_test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-gamekit-unity-sub001/feature"
	"github.com/aws/aws-gamekit-unity-sub001/feature/achievements"
	"github.com/aws/aws-gamekit-unity-sub001/feature/core"
	"github.com/aws/aws-gamekit-unity-sub001/native"
	"github.com/aws/aws-gamekit-unity-sub001/testbed"
	"github.com/aws/aws-gamekit-unity-sub001/threader"
)

func setup(t *testing.T) (*native.Runtime, *testbed.Backend, *achievements.Wrapper) {
	t.Helper()
	ctx := context.Background()
	rt, err := native.NewRuntime(ctx, native.Config{LibraryDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.Close(ctx) })

	b := testbed.New()
	if err := b.Attach(ctx, rt); err != nil {
		t.Fatal(err)
	}
	session := core.NewSessionManager(rt, "cfg.yml", nil)
	return rt, b, achievements.NewWrapper(rt, session, nil)
}

func TestWrapper_List(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		req       achievements.ListRequest
		wantPages []int
	}{
		{"pages of two", achievements.ListRequest{PageSize: 2}, []int{2, 2, 1}},
		{"wait for all", achievements.ListRequest{PageSize: 2, WaitForAllPages: true}, []int{5}},
		{"unpaged", achievements.ListRequest{}, []int{5}},
		{"page larger than catalog", achievements.ListRequest{PageSize: 10}, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, w := setup(t)

			var (
				pages []int
				ids   []string
			)
			status, err := w.List(ctx, tt.req, func(page []achievements.Achievement) {
				pages = append(pages, len(page))
				for _, a := range page {
					ids = append(ids, a.AchievementID)
				}
			})
			if err != nil || !status.OK() {
				t.Fatalf("List: %v, %v", status, err)
			}
			if len(pages) != len(tt.wantPages) {
				t.Fatalf("pages = %v, want %v", pages, tt.wantPages)
			}
			for i := range pages {
				if pages[i] != tt.wantPages[i] {
					t.Fatalf("pages = %v, want %v", pages, tt.wantPages)
				}
			}
			if ids[0] != "first_blood" || ids[len(ids)-1] != "speedrun" {
				t.Errorf("delivery order = %v", ids)
			}
		})
	}
}

func TestWrapper_Get(t *testing.T) {
	ctx := context.Background()
	rt, _, w := setup(t)

	list, status, err := w.Get(ctx, []string{"marathon", "first_blood"})
	if err != nil || !status.OK() {
		t.Fatalf("Get: %v, %v", status, err)
	}
	if len(list) != 2 || list[0].AchievementID != "marathon" || list[1].Title != "First Blood" {
		t.Fatalf("list = %+v", list)
	}

	_, status, err = w.Get(ctx, []string{"marathon", "no_such_thing"})
	if err != nil || status != achievements.StatusNotFound {
		t.Fatalf("missing id: %v, %v", status, err)
	}

	if n := rt.Heap().Live(); n != 0 {
		t.Fatalf("%d heap blocks leaked", n)
	}
}

func TestWrapper_Update(t *testing.T) {
	ctx := context.Background()
	rt, b, w := setup(t)

	updated, status, err := w.Update(ctx, []achievements.Update{
		{AchievementID: "marathon", IncrementBy: 40},
		{AchievementID: "first_blood", IncrementBy: 3},
	})
	if err != nil || !status.OK() {
		t.Fatalf("Update: %v, %v", status, err)
	}
	if len(updated) != 2 {
		t.Fatalf("updated = %+v", updated)
	}

	byID := map[string]achievements.Achievement{}
	for _, a := range b.Achievements() {
		byID[a.AchievementID] = a
	}
	if a := byID["marathon"]; a.CurrentValue != 40 || a.Earned {
		t.Errorf("marathon = %+v", a)
	}
	if a := byID["first_blood"]; a.CurrentValue != 1 || !a.Earned {
		t.Errorf("first_blood = %+v", a)
	}

	// nothing to send
	updated, status, err = w.Update(ctx, nil)
	if err != nil || !status.OK() || len(updated) != 0 {
		t.Fatalf("empty Update: %v, %v, %v", updated, status, err)
	}

	if n := rt.Heap().Live(); n != 0 {
		t.Fatalf("%d heap blocks leaked", n)
	}
}

func TestAchievements_ListStreams(t *testing.T) {
	_, _, w := setup(t)
	d := threader.New()
	a := achievements.New(d, w)

	var (
		events []string
		done   feature.Result
	)
	a.List(achievements.ListRequest{PageSize: 2}, func(page []achievements.Achievement) {
		events = append(events, "page")
	}, func(r feature.Result) {
		done = r
		events = append(events, "done")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.WaitForThreadedWork(ctx); err != nil {
		t.Fatal(err)
	}
	if got := d.WaitingQueueCount(); got != 4 {
		t.Fatalf("queued callbacks = %d, want 3 pages and completion", got)
	}
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}

	want := []string{"page", "page", "page", "done"}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v", events)
		}
	}
	if !done.OK() {
		t.Fatalf("completion = %+v", done)
	}
}

func TestAchievements_ListDroppedByAwake(t *testing.T) {
	_, _, w := setup(t)
	d := threader.New()
	a := achievements.New(d, w)

	var pages int
	a.List(achievements.ListRequest{PageSize: 1}, func([]achievements.Achievement) { pages++ }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.WaitForThreadedWork(ctx); err != nil {
		t.Fatal(err)
	}
	d.Awake()
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}
	if pages != 0 {
		t.Fatalf("%d pages delivered after Awake", pages)
	}
}

func TestAchievements_GetAndUpdate(t *testing.T) {
	_, _, w := setup(t)
	d := threader.New()
	a := achievements.New(d, w)

	var got achievements.Result
	a.Update([]achievements.Update{{AchievementID: "speedrun", IncrementBy: 1}}, func(r achievements.Result) {
		got = r
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.WaitForThreadedWork(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}
	if !got.OK() || len(got.Achievements) != 1 || !got.Achievements[0].Earned {
		t.Fatalf("update result = %+v", got)
	}

	a.Get([]string{"speedrun"}, func(r achievements.Result) { got = r })
	if err := d.WaitForThreadedWork(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}
	if !got.OK() || got.Achievements[0].CurrentValue != 1 {
		t.Fatalf("get result = %+v", got)
	}
}
