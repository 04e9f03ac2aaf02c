package achievements

import (
	"context"

	"github.com/aws/aws-gamekit-unity-sub001/feature"
	"github.com/aws/aws-gamekit-unity-sub001/threader"
)

// Result is delivered to Get and Update callbacks.
type Result struct {
	feature.Result
	Achievements []Achievement
}

// Achievements runs achievement calls off the update goroutine.
type Achievements struct {
	d *threader.Dispatcher
	w *Wrapper
}

// New returns an Achievements running w's calls on d.
func New(d *threader.Dispatcher, w *Wrapper) *Achievements {
	return &Achievements{d: d, w: w}
}

// Wrapper returns the synchronous wrapper.
func (a *Achievements) Wrapper() *Wrapper {
	return a.w
}

// List streams pages to onPage as native code delivers them, then calls
// onComplete. Both run on the Update goroutine.
func (a *Achievements) List(req ListRequest, onPage func([]Achievement), onComplete func(feature.Result)) {
	threader.CallStreaming(a.d, func(ctx context.Context, req ListRequest, emit func([]Achievement)) feature.Result {
		return feature.ResultOf(a.w.List(ctx, req, emit))
	}, req, onPage, onComplete)
}

func (a *Achievements) Get(ids []string, cb func(Result)) {
	threader.CallWithDescription(a.d, func(ctx context.Context, ids []string) Result {
		list, status, err := a.w.Get(ctx, ids)
		return Result{Result: feature.ResultOf(status, err), Achievements: list}
	}, ids, cb)
}

func (a *Achievements) Update(updates []Update, cb func(Result)) {
	threader.CallWithDescription(a.d, func(ctx context.Context, updates []Update) Result {
		list, status, err := a.w.Update(ctx, updates)
		return Result{Result: feature.ResultOf(status, err), Achievements: list}
	}, updates, cb)
}
