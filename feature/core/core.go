// Package core wraps the native session manager that every other feature is
// created against.
package core

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/aws/aws-gamekit-unity-sub001/feature"
	"github.com/aws/aws-gamekit-unity-sub001/handle"
	"github.com/aws/aws-gamekit-unity-sub001/native"
)

// LibraryName is the native library implementing the session manager.
const LibraryName = "aws-gamekit-authentication"

// TokenType selects which token SetToken stores.
type TokenType uint32

const (
	AccessToken TokenType = iota
	RefreshToken
	IDToken
	IDTokenExpiry
)

// FeatureType identifies a GameKit feature in settings queries.
type FeatureType uint32

const (
	FeatureMain FeatureType = iota
	FeatureIdentity
	FeatureAuthentication
	FeatureAchievements
	FeatureGameStateCloudSaving
	FeatureUserGameplayData
)

var (
	sigCreate = native.Signature{
		Name:    "GameKitSessionManagerInstanceCreate",
		Params:  []wit.Type{wit.String{}, wit.U64{}},
		Results: []wit.Type{wit.U32{}},
	}
	sigRelease = native.Signature{
		Name:   "GameKitSessionManagerInstanceRelease",
		Params: []wit.Type{wit.U32{}},
	}
	sigSetToken = native.Signature{
		Name:   "GameKitSessionManagerSetToken",
		Params: []wit.Type{wit.U32{}, wit.U32{}, wit.String{}},
	}
	sigAreSettingsLoaded = native.Signature{
		Name:    "GameKitSessionManagerAreSettingsLoaded",
		Params:  []wit.Type{wit.U32{}, wit.U32{}},
		Results: []wit.Type{wit.Bool{}},
	}
	sigReloadConfig = native.Signature{
		Name:   "GameKitSessionManagerReloadConfigFile",
		Params: []wit.Type{wit.U32{}, wit.String{}},
	}
)

// SessionManager is the wrapper around the native session manager. It is a
// feature.Session for the other feature wrappers.
type SessionManager struct {
	*feature.Wrapper
	lib *feature.Library
}

// NewSessionManager returns a session manager that reads its client
// configuration from clientConfigFile when first used.
func NewSessionManager(rt *native.Runtime, clientConfigFile string, log feature.LogFunc) *SessionManager {
	lib := feature.NewLibrary(rt, LibraryName)
	c := &creator{lib: lib, configFile: clientConfigFile}
	return &SessionManager{
		Wrapper: feature.NewWrapper(c, feature.NoSession, log),
		lib:     lib,
	}
}

type creator struct {
	lib        *feature.Library
	configFile string
	logHandle  handle.Handle
}

func (c *creator) Create(ctx context.Context, _ native.Ptr, log feature.LogFunc) (native.Ptr, error) {
	return feature.Invoke(sigCreate.Name, log, func() (native.Ptr, error) {
		ep, err := c.lib.Entry(ctx, sigCreate)
		if err != nil {
			return 0, err
		}
		logHandle, err := c.lib.PinLog(log)
		if err != nil {
			return 0, err
		}

		instance, err := feature.WithStrings(ep.Library(), []string{c.configFile}, func(ptrs []uint32) (native.Ptr, error) {
			res, err := ep.Invoke(ctx, uint64(ptrs[0]), uint64(logHandle))
			if err != nil {
				return 0, err
			}
			return feature.NonNull(sigCreate.Name, native.Ptr(api.DecodeU32(res[0])))
		})
		if err != nil {
			c.lib.UnpinLog(logHandle)
			return 0, err
		}
		c.logHandle = logHandle
		return instance, nil
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

// SetToken stores a token in the native session.
func (s *SessionManager) SetToken(ctx context.Context, tokenType TokenType, value string) error {
	_, err := feature.Invoke(sigSetToken.Name, s.Log(), func() (native.Status, error) {
		instance, ep, err := s.lib.Bind(ctx, s, sigSetToken)
		if err != nil {
			return 0, err
		}
		return feature.WithStrings(ep.Library(), []string{value}, func(ptrs []uint32) (native.Status, error) {
			return ep.Call(ctx, uint64(instance), uint64(tokenType), uint64(ptrs[0]))
		})
	})
	return err
}

// AreSettingsLoaded reports whether the client configuration for ft has
// been loaded. It reads false when the native library is unavailable.
func (s *SessionManager) AreSettingsLoaded(ctx context.Context, ft FeatureType) bool {
	return feature.InvokeOr(sigAreSettingsLoaded.Name, s.Log(), false, func() (bool, error) {
		instance, ep, err := s.lib.Bind(ctx, s, sigAreSettingsLoaded)
		if err != nil {
			return false, err
		}
		res, err := ep.Invoke(ctx, uint64(instance), uint64(ft))
		if err != nil {
			return false, err
		}
		return api.DecodeU32(res[0]) != 0, nil
	})
}

// ReloadConfigFile points the session at a different client configuration.
func (s *SessionManager) ReloadConfigFile(ctx context.Context, path string) error {
	_, err := feature.Invoke(sigReloadConfig.Name, s.Log(), func() (native.Status, error) {
		instance, ep, err := s.lib.Bind(ctx, s, sigReloadConfig)
		if err != nil {
			return 0, err
		}
		return feature.WithStrings(ep.Library(), []string{path}, func(ptrs []uint32) (native.Status, error) {
			return ep.Call(ctx, uint64(instance), uint64(ptrs[0]))
		})
	})
	return err
}
