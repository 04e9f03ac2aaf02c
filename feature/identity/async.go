package identity

import (
	"context"

	"github.com/aws/aws-gamekit-unity-sub001/feature"
	"github.com/aws/aws-gamekit-unity-sub001/threader"
)

// GetUserResult is delivered to GetUser callbacks.
type GetUserResult struct {
	feature.Result
	User User
}

// Identity runs identity calls off the update goroutine. Callbacks are
// replayed by the dispatcher's Update.
type Identity struct {
	d *threader.Dispatcher
	w *Wrapper
}

// New returns an Identity running w's calls on d.
func New(d *threader.Dispatcher, w *Wrapper) *Identity {
	return &Identity{d: d, w: w}
}

// Wrapper returns the synchronous wrapper.
func (i *Identity) Wrapper() *Wrapper {
	return i.w
}

func (i *Identity) Login(req LoginRequest, cb func(feature.Result)) {
	threader.CallWithDescription(i.d, func(ctx context.Context, req LoginRequest) feature.Result {
		return feature.ResultOf(i.w.Login(ctx, req))
	}, req, cb)
}

func (i *Identity) Logout(cb func(feature.Result)) {
	threader.Call(i.d, func(ctx context.Context) feature.Result {
		return feature.ResultOf(i.w.Logout(ctx))
	}, cb)
}

func (i *Identity) GetUser(cb func(GetUserResult)) {
	threader.Call(i.d, func(ctx context.Context) GetUserResult {
		user, status, err := i.w.GetUser(ctx)
		return GetUserResult{Result: feature.ResultOf(status, err), User: user}
	}, cb)
}
