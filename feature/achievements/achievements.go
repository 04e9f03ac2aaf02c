// Package achievements wraps the native achievements library.
package achievements

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/aws/aws-gamekit-unity-sub001/feature"
	"github.com/aws/aws-gamekit-unity-sub001/handle"
	"github.com/aws/aws-gamekit-unity-sub001/marshal"
	"github.com/aws/aws-gamekit-unity-sub001/native"
)

// LibraryName is the native library implementing achievements.
const LibraryName = "aws-gamekit-achievements"

// StatusNotFound is returned when a requested achievement does not exist.
const StatusNotFound native.Status = 0x601

var (
	sigCreate = native.Signature{
		Name:    "GameKitAchievementsInstanceCreateWithSessionManager",
		Params:  []wit.Type{wit.U32{}, wit.U64{}},
		Results: []wit.Type{wit.U32{}},
	}
	sigRelease = native.Signature{
		Name:   "GameKitAchievementsInstanceRelease",
		Params: []wit.Type{wit.U32{}},
	}
	sigList = native.Signature{
		Name:    "GameKitListAchievements",
		Params:  []wit.Type{wit.U32{}, wit.U32{}, wit.Bool{}, wit.U64{}},
		Results: []wit.Type{wit.U32{}},
	}
	sigGet = native.Signature{
		Name:    "GameKitGetAchievements",
		Params:  []wit.Type{wit.U32{}, wit.U32{}, wit.U32{}, wit.U64{}},
		Results: []wit.Type{wit.U32{}},
	}
	sigUpdate = native.Signature{
		Name:    "GameKitUpdateAchievements",
		Params:  []wit.Type{wit.U32{}, wit.U32{}, wit.U32{}, wit.U64{}},
		Results: []wit.Type{wit.U32{}},
	}
)

// Achievement is one achievement as reported for the current player.
type Achievement struct {
	AchievementID  string `json:"achievement_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	RequiredAmount uint32 `json:"required_amount"`
	CurrentValue   uint32 `json:"current_value"`
	Points         uint32 `json:"points"`
	Earned         bool   `json:"earned"`
	Secret         bool   `json:"secret"`
}

// Page is the JSON payload of one receiver callback.
type Page struct {
	Achievements []Achievement `json:"achievements"`
}

// Update increments one achievement's progress. It is passed to native
// code as a packed record array.
type Update struct {
	AchievementID string
	IncrementBy   uint32
}

// ListRequest selects how List pages its results.
type ListRequest struct {
	PageSize uint32
	// WaitForAllPages asks native code to deliver everything in one callback.
	WaitForAllPages bool
}

// Wrapper is the synchronous wrapper around a native achievements instance.
type Wrapper struct {
	*feature.Wrapper
	lib *feature.Library
}

// NewWrapper returns an achievements wrapper created against session on
// first use.
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
		if err != nil {
			c.lib.UnpinLog(logHandle)
			return 0, err
		}
		instance, err := feature.NonNull(sigCreate.Name, native.Ptr(api.DecodeU32(res[0])))
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

// List calls emit once per page native code delivers, in delivery order.
// A page that fails to decode is skipped and its error returned once the
// call completes.
func (w *Wrapper) List(ctx context.Context, req ListRequest, emit func([]Achievement)) (native.Status, error) {
	return feature.Invoke(sigList.Name, w.Log(), func() (native.Status, error) {
		instance, ep, err := w.lib.Bind(ctx, w, sigList)
		if err != nil {
			return 0, err
		}
		pages := &pageReceiver{emit: emit}
		status, err := ep.CallWithReceiver(ctx, pages, uint64(instance), uint64(req.PageSize), boolArg(req.WaitForAllPages))
		if err != nil {
			return status, err
		}
		return status, pages.err
	})
}

// Get fetches the achievements named by ids.
func (w *Wrapper) Get(ctx context.Context, ids []string) ([]Achievement, native.Status, error) {
	var out []Achievement
	status, err := feature.Invoke(sigGet.Name, w.Log(), func() (native.Status, error) {
		instance, ep, err := w.lib.Bind(ctx, w, sigGet)
		if err != nil {
			return 0, err
		}
		lib := ep.Library()
		arr, err := marshal.StringArrayToPtrs(lib.Memory(), lib.Allocator(), ids)
		if err != nil {
			return 0, err
		}
		defer arr.Free(lib.Allocator())

		pages := &pageReceiver{emit: func(page []Achievement) { out = append(out, page...) }}
		status, err := ep.CallWithReceiver(ctx, pages, uint64(instance), uint64(arr.Table()), uint64(len(ids)))
		if err != nil {
			return status, err
		}
		return status, pages.err
	})
	return out, status, err
}

// Update applies updates and returns the achievements as they read
// afterwards.
func (w *Wrapper) Update(ctx context.Context, updates []Update) ([]Achievement, native.Status, error) {
	var out []Achievement
	status, err := feature.Invoke(sigUpdate.Name, w.Log(), func() (native.Status, error) {
		instance, ep, err := w.lib.Bind(ctx, w, sigUpdate)
		if err != nil {
			return 0, err
		}
		lib := ep.Library()
		records, err := marshal.ArrayToPtr(lib.Memory(), lib.Allocator(), updates)
		if err != nil {
			return 0, err
		}
		defer records.Free(lib.Allocator())

		pages := &pageReceiver{emit: func(page []Achievement) { out = append(out, page...) }}
		status, err := ep.CallWithReceiver(ctx, pages, uint64(instance), uint64(records.Ptr()), uint64(records.Len()))
		if err != nil {
			return status, err
		}
		return status, pages.err
	})
	return out, status, err
}

// pageReceiver decodes each delivered payload as a Page.
type pageReceiver struct {
	emit func([]Achievement)
	err  error
}

func (r *pageReceiver) Receive(_ context.Context, p native.Payload) {
	var page Page
	if err := p.Decode(&page); err != nil {
		if r.err == nil {
			r.err = err
		}
		return
	}
	r.emit(page.Achievements)
}

func boolArg(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
