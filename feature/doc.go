// Package feature manages native feature instances and the calls made
// through them.
//
// A Wrapper owns one native instance. Instance creates it on first use
// through a Creator; Release frees it only if it exists, and only once:
//
//	w := feature.NewWrapper(creator, sessionWrapper, feature.ZapSink(logger))
//	instance, err := w.Instance(ctx)
//	defer w.Release(ctx)
//
// Every entry point call goes through Invoke, which turns panics and native
// failures into *errors.Error values and reports each failure once to the
// wrapper's LogFunc. Absence of the library or entry point
// (errors.IsNativeAbsence) is reported separately from failures inside
// native code, so callers can degrade when the native SDK is not installed:
//
//	status, err := feature.Invoke("GameKitIdentityLogin", w.Log(), func() (native.Status, error) {
//	    return login.Call(ctx, uint64(instance), uint64(user), uint64(pass))
//	})
//
// InvokeOr keeps the older policy of returning a sentinel instead of an error.
package feature
