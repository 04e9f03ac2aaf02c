// Package identity wraps the native identity library: player login, logout
// and profile lookup against the session manager.
package identity

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
	"github.com/aws/aws-gamekit-unity-sub001/feature"
	"github.com/aws/aws-gamekit-unity-sub001/handle"
	"github.com/aws/aws-gamekit-unity-sub001/native"
)

// LibraryName is the native library implementing identity.
const LibraryName = "aws-gamekit-identity"

// Status codes returned by the identity library.
const (
	StatusMalformedUsername native.Status = 0x501
	StatusMalformedPassword native.Status = 0x502
	StatusLoginFailed       native.Status = 0x503
	StatusNotLoggedIn       native.Status = 0x504
)

var (
	sigCreate = native.Signature{
		Name:    "GameKitIdentityInstanceCreateWithSessionManager",
		Params:  []wit.Type{wit.U32{}, wit.U64{}},
		Results: []wit.Type{wit.U32{}},
	}
	sigRelease = native.Signature{
		Name:   "GameKitIdentityInstanceRelease",
		Params: []wit.Type{wit.U32{}},
	}
	sigLogin = native.Signature{
		Name:    "GameKitIdentityLogin",
		Params:  []wit.Type{wit.U32{}, wit.String{}, wit.String{}},
		Results: []wit.Type{wit.U32{}},
	}
	sigLogout = native.Signature{
		Name:    "GameKitIdentityLogout",
		Params:  []wit.Type{wit.U32{}},
		Results: []wit.Type{wit.U32{}},
	}
	sigGetUser = native.Signature{
		Name:    "GameKitIdentityGetUser",
		Params:  []wit.Type{wit.U32{}, wit.U64{}},
		Results: []wit.Type{wit.U32{}},
	}
)

// User is the profile of the logged in player.
type User struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// LoginRequest holds player credentials.
type LoginRequest struct {
	UserName string
	Password string
}

// Wrapper is the synchronous wrapper around a native identity instance.
type Wrapper struct {
	*feature.Wrapper
	lib *feature.Library
}

// NewWrapper returns an identity wrapper created against session on first use.
func NewWrapper(rt *native.Runtime, session feature.Session, log feature.LogFunc) *Wrapper {
	lib := feature.NewLibrary(rt, LibraryName)
	return &Wrapper{
		Wrapper: feature.NewWrapper(&creator{lib: lib}, session, log),
		lib:     lib,
	}
}

type creator struct {
	lib       *feature.Library
	logHandle handle.Handle
}

func (c *creator) Create(ctx context.Context, session native.Ptr, log feature.LogFunc) (native.Ptr, error) {
	return feature.Invoke(sigCreate.Name, log, func() (native.Ptr, error) {
		ep, err := c.lib.Entry(ctx, sigCreate)
		if err != nil {
			return 0, err
		}
		logHandle, err := c.lib.PinLog(log)
		if err != nil {
			return 0, err
		}
		res, err := ep.Invoke(ctx, uint64(session), uint64(logHandle))
		if err == nil {
			var instance native.Ptr
			instance, err = feature.NonNull(sigCreate.Name, native.Ptr(api.DecodeU32(res[0])))
			if err == nil {
				c.logHandle = logHandle
				return instance, nil
			}
		}
		c.lib.UnpinLog(logHandle)
		return 0, err
	})
}

func (c *creator) Release(ctx context.Context, instance native.Ptr) error {
	defer func() {
		c.lib.UnpinLog(c.logHandle)
		c.logHandle = 0
	}()
	_, err := feature.Invoke(sigRelease.Name, nil, func() (native.Status, error) {
		ep, err := c.lib.Entry(ctx, sigRelease)
		if err != nil {
			return 0, err
		}
		return ep.Call(ctx, uint64(instance))
	})
	return err
}

// Login logs the player in with req.
func (w *Wrapper) Login(ctx context.Context, req LoginRequest) (native.Status, error) {
	return feature.Invoke(sigLogin.Name, w.Log(), func() (native.Status, error) {
		instance, ep, err := w.lib.Bind(ctx, w, sigLogin)
		if err != nil {
			return 0, err
		}
		return feature.WithStrings(ep.Library(), []string{req.UserName, req.Password}, func(ptrs []uint32) (native.Status, error) {
			return ep.Call(ctx, uint64(instance), uint64(ptrs[0]), uint64(ptrs[1]))
		})
	})
}

// Logout ends the player's session.
func (w *Wrapper) Logout(ctx context.Context) (native.Status, error) {
	return feature.Invoke(sigLogout.Name, w.Log(), func() (native.Status, error) {
		instance, ep, err := w.lib.Bind(ctx, w, sigLogout)
		if err != nil {
			return 0, err
		}
		return ep.Call(ctx, uint64(instance))
	})
}

// GetUser fetches the logged in player's profile. The profile is delivered
// by native code as a JSON payload; it is zero unless the status is success.
func (w *Wrapper) GetUser(ctx context.Context) (User, native.Status, error) {
	var (
		user      User
		decoded   error
		delivered bool
		once      sync.Once
	)
	recv := native.ReceiverFunc(func(_ context.Context, p native.Payload) {
		once.Do(func() {
			delivered = true
			decoded = p.Decode(&user)
		})
	})

	status, err := feature.Invoke(sigGetUser.Name, w.Log(), func() (native.Status, error) {
		instance, ep, err := w.lib.Bind(ctx, w, sigGetUser)
		if err != nil {
			return 0, err
		}
		status, err := ep.CallWithReceiver(ctx, recv, uint64(instance))
		if err != nil || !status.OK() {
			return status, err
		}
		if !delivered {
			return status, errNoUser
		}
		return status, decoded
	})
	if err != nil || !status.OK() {
		return User{}, status, err
	}
	return user, status, nil
}

// errNoUser is returned when a successful GetUser delivered no profile.
var errNoUser = errors.InvalidData(errors.PhaseDecode, nil, "no user payload delivered")
