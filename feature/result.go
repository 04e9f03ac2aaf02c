package feature

import "github.com/aws/aws-gamekit-unity-sub001/native"

// Result is the outcome of one asynchronous feature call as seen by its
// callback. Err is set when the call never produced a status, for example
// because the native library is missing.
type Result struct {
	Err    error
	Status native.Status
}

// OK reports whether the call reached native code and succeeded.
func (r Result) OK() bool {
	return r.Err == nil && r.Status.OK()
}

// ResultOf builds a Result from a status call.
func ResultOf(status native.Status, err error) Result {
	return Result{Status: status, Err: err}
}
