// Package testbed implements the session manager, identity and
// achievements native libraries in Go, as wazero host modules backed by
// in-memory state. Tests and the console attach them in place of the real
// SDK builds.
package testbed

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sugawarayuuta/sonnet"
	"github.com/tetratelabs/wazero"

	"github.com/aws/aws-gamekit-unity-sub001/feature"
	"github.com/aws/aws-gamekit-unity-sub001/feature/achievements"
	"github.com/aws/aws-gamekit-unity-sub001/feature/core"
	"github.com/aws/aws-gamekit-unity-sub001/feature/identity"
	"github.com/aws/aws-gamekit-unity-sub001/handle"
	"github.com/aws/aws-gamekit-unity-sub001/marshal"
	"github.com/aws/aws-gamekit-unity-sub001/native"
)

// StatusInvalidInstance is returned for calls on an instance the library
// did not create or already released.
const StatusInvalidInstance native.Status = 0x2

// Account is a player the fake identity library accepts.
type Account struct {
	User     identity.User
	Password string
}

type instance struct {
	library string
	log     handle.Handle
}

// Backend is the state shared by the fake libraries.
type Backend struct {
	mu           sync.Mutex
	rt           *native.Runtime
	mem          *native.Memory
	next         uint32
	live         map[uint32]instance
	calls        map[string]int
	configFile   string
	tokens       map[core.TokenType]string
	loaded       map[core.FeatureType]bool
	accounts     map[string]Account
	player       string
	achievements []achievements.Achievement
}

// New returns a backend with one account, "player1" / "correct-horse",
// and a small achievement catalog.
func New() *Backend {
	b := &Backend{
		next:     0x1000,
		live:     make(map[uint32]instance),
		calls:    make(map[string]int),
		tokens:   make(map[core.TokenType]string),
		accounts: make(map[string]Account),
		loaded: map[core.FeatureType]bool{
			core.FeatureMain:         true,
			core.FeatureIdentity:     true,
			core.FeatureAchievements: true,
		},
	}
	b.AddAccount(identity.User{
		UserID:    "4b0c1d9e",
		UserName:  "player1",
		Email:     "player1@example.com",
		CreatedAt: "2024-01-01T00:00:00Z",
		UpdatedAt: "2024-01-01T00:00:00Z",
	}, "correct-horse")
	b.SetAchievements([]achievements.Achievement{
		{AchievementID: "first_blood", Title: "First Blood", RequiredAmount: 1, Points: 10},
		{AchievementID: "marathon", Title: "Marathon", RequiredAmount: 42, Points: 50},
		{AchievementID: "collector", Title: "Collector", RequiredAmount: 100, Points: 25},
		{AchievementID: "secret_room", Title: "???", RequiredAmount: 1, Points: 5, Secret: true},
		{AchievementID: "speedrun", Title: "Speedrun", RequiredAmount: 1, Points: 100},
	})
	return b
}

// AddAccount registers a player.
func (b *Backend) AddAccount(user identity.User, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[user.UserName] = Account{User: user, Password: password}
}

// SetAchievements replaces the catalog.
func (b *Backend) SetAchievements(list []achievements.Achievement) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.achievements = append([]achievements.Achievement(nil), list...)
}

// Achievements returns a copy of the catalog.
func (b *Backend) Achievements() []achievements.Achievement {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]achievements.Achievement(nil), b.achievements...)
}

// Live returns the number of instances created and not yet released.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// Calls returns how many times the named entry point was called.
func (b *Backend) Calls(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

// Token returns the token stored for t.
func (b *Backend) Token(t core.TokenType) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens[t]
}

// ConfigFile returns the client configuration path the session manager
// last loaded.
func (b *Backend) ConfigFile() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.configFile
}

// Player returns the logged in user name, "" when logged out.
func (b *Backend) Player() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.player
}

// Attach registers all three libraries with rt.
func (b *Backend) Attach(ctx context.Context, rt *native.Runtime) error {
	if err := b.AttachSessionManager(ctx, rt); err != nil {
		return err
	}
	if err := b.AttachIdentity(ctx, rt); err != nil {
		return err
	}
	return b.AttachAchievements(ctx, rt)
}

func (b *Backend) attach(ctx context.Context, rt *native.Runtime, id string, build func(wazero.HostModuleBuilder) wazero.HostModuleBuilder) error {
	mod, err := build(rt.Wazero().NewHostModuleBuilder(id)).Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("testbed: instantiate %s: %w", id, err)
	}
	lib, err := rt.Attach(id, mod)
	if err != nil {
		_ = mod.Close(ctx)
		return err
	}

	b.mu.Lock()
	b.rt = rt
	b.mem = lib.Memory()
	b.mu.Unlock()
	return nil
}

// enter records a call and reports whether ptr is a live instance of library.
// The caller must hold b.mu.
func (b *Backend) enter(name, library string, ptr uint32) (instance, bool) {
	b.calls[name]++
	inst, ok := b.live[ptr]
	if !ok || inst.library != library {
		return instance{}, false
	}
	return inst, true
}

func (b *Backend) create(name, library string, log uint64) uint32 {
	b.calls[name]++
	ptr := b.next
	b.next += 0x10
	b.live[ptr] = instance{library: library, log: handle.Handle(log)}
	return ptr
}

func (b *Backend) release(name, library string, ptr uint32) {
	if _, ok := b.enter(name, library, ptr); ok {
		delete(b.live, ptr)
	}
}

// str reads a string argument. The caller must hold b.mu.
func (b *Backend) str(ptr uint32) string {
	s, err := marshal.PtrToString(b.mem, ptr)
	if err != nil {
		return ""
	}
	return s
}

func (b *Backend) logf(inst instance, level feature.Level, format string, args ...any) {
	if inst.log != 0 {
		b.rt.Log(inst.log, uint32(level), fmt.Sprintf(format, args...))
	}
}

func (b *Backend) deliver(ctx context.Context, recv uint64, v any) {
	data, err := sonnet.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testbed: encode payload: %v", err))
	}
	b.rt.Deliver(ctx, handle.Handle(recv), native.Payload{Data: data})
}

// AttachSessionManager registers the session manager library.
func (b *Backend) AttachSessionManager(ctx context.Context, rt *native.Runtime) error {
	const lib = core.LibraryName
	return b.attach(ctx, rt, lib, func(hb wazero.HostModuleBuilder) wazero.HostModuleBuilder {
		return hb.
			NewFunctionBuilder().
			WithFunc(func(_ context.Context, configFile uint32, log uint64) uint32 {
				b.mu.Lock()
				defer b.mu.Unlock()
				b.configFile = b.str(configFile)
				return b.create("GameKitSessionManagerInstanceCreate", lib, log)
			}).
			Export("GameKitSessionManagerInstanceCreate").
			NewFunctionBuilder().
			WithFunc(func(_ context.Context, ptr uint32) {
				b.mu.Lock()
				defer b.mu.Unlock()
				b.release("GameKitSessionManagerInstanceRelease", lib, ptr)
			}).
			Export("GameKitSessionManagerInstanceRelease").
			NewFunctionBuilder().
			WithFunc(func(_ context.Context, ptr, tokenType, value uint32) {
				b.mu.Lock()
				defer b.mu.Unlock()
				if _, ok := b.enter("GameKitSessionManagerSetToken", lib, ptr); ok {
					b.tokens[core.TokenType(tokenType)] = b.str(value)
				}
			}).
			Export("GameKitSessionManagerSetToken").
			NewFunctionBuilder().
			WithFunc(func(_ context.Context, ptr, featureType uint32) uint32 {
				b.mu.Lock()
				defer b.mu.Unlock()
				if _, ok := b.enter("GameKitSessionManagerAreSettingsLoaded", lib, ptr); ok && b.loaded[core.FeatureType(featureType)] {
					return 1
				}
				return 0
			}).
			Export("GameKitSessionManagerAreSettingsLoaded").
			NewFunctionBuilder().
			WithFunc(func(_ context.Context, ptr, path uint32) {
				b.mu.Lock()
				defer b.mu.Unlock()
				if inst, ok := b.enter("GameKitSessionManagerReloadConfigFile", lib, ptr); ok {
					b.configFile = b.str(path)
					b.logf(inst, feature.LevelInfo, "reloaded client config %s", b.configFile)
				}
			}).
			Export("GameKitSessionManagerReloadConfigFile")
	})
}

// AttachIdentity registers the identity library.
func (b *Backend) AttachIdentity(ctx context.Context, rt *native.Runtime) error {
	const lib = identity.LibraryName
	return b.attach(ctx, rt, lib, func(hb wazero.HostModuleBuilder) wazero.HostModuleBuilder {
		return hb.
			NewFunctionBuilder().
			WithFunc(func(_ context.Context, session uint32, log uint64) uint32 {
				b.mu.Lock()
				defer b.mu.Unlock()
				if s, ok := b.live[session]; !ok || s.library != core.LibraryName {
					b.calls["GameKitIdentityInstanceCreateWithSessionManager"]++
					return 0
				}
				return b.create("GameKitIdentityInstanceCreateWithSessionManager", lib, log)
			}).
			Export("GameKitIdentityInstanceCreateWithSessionManager").
			NewFunctionBuilder().
			WithFunc(func(_ context.Context, ptr uint32) {
				b.mu.Lock()
				defer b.mu.Unlock()
				b.release("GameKitIdentityInstanceRelease", lib, ptr)
			}).
			Export("GameKitIdentityInstanceRelease").
			NewFunctionBuilder().
			WithFunc(func(_ context.Context, ptr, userName, password uint32) uint32 {
				b.mu.Lock()
				defer b.mu.Unlock()
				inst, ok := b.enter("GameKitIdentityLogin", lib, ptr)
				if !ok {
					return uint32(StatusInvalidInstance)
				}
				name, pass := b.str(userName), b.str(password)
				switch acct, known := b.accounts[name]; {
				case name == "":
					return uint32(identity.StatusMalformedUsername)
				case len(pass) < 8:
					return uint32(identity.StatusMalformedPassword)
				case !known || acct.Password != pass:
					b.logf(inst, feature.LevelError, "login failed for %s", name)
					return uint32(identity.StatusLoginFailed)
				}
				b.player = name
				b.logf(inst, feature.LevelInfo, "%s logged in", name)
				return uint32(native.StatusSuccess)
			}).
			Export("GameKitIdentityLogin").
			NewFunctionBuilder().
			WithFunc(func(_ context.Context, ptr uint32) uint32 {
				b.mu.Lock()
				defer b.mu.Unlock()
				if _, ok := b.enter("GameKitIdentityLogout", lib, ptr); !ok {
					return uint32(StatusInvalidInstance)
				}
				if b.player == "" {
					return uint32(identity.StatusNotLoggedIn)
				}
				b.player = ""
				return uint32(native.StatusSuccess)
			}).
			Export("GameKitIdentityLogout").
			NewFunctionBuilder().
			WithFunc(func(ctx context.Context, ptr uint32, recv uint64) uint32 {
				b.mu.Lock()
				_, ok := b.enter("GameKitIdentityGetUser", lib, ptr)
				acct, loggedIn := b.accounts[b.player]
				b.mu.Unlock()

				switch {
				case !ok:
					return uint32(StatusInvalidInstance)
				case !loggedIn:
					return uint32(identity.StatusNotLoggedIn)
				}
				b.deliver(ctx, recv, acct.User)
				return uint32(native.StatusSuccess)
			}).
			Export("GameKitIdentityGetUser")
	})
}

// AttachAchievements registers the achievements library.
func (b *Backend) AttachAchievements(ctx context.Context, rt *native.Runtime) error {
	const lib = achievements.LibraryName
	return b.attach(ctx, rt, lib, func(hb wazero.HostModuleBuilder) wazero.HostModuleBuilder {
		return hb.
			NewFunctionBuilder().
			WithFunc(func(_ context.Context, session uint32, log uint64) uint32 {
				b.mu.Lock()
				defer b.mu.Unlock()
				if s, ok := b.live[session]; !ok || s.library != core.LibraryName {
					b.calls["GameKitAchievementsInstanceCreateWithSessionManager"]++
					return 0
				}
				return b.create("GameKitAchievementsInstanceCreateWithSessionManager", lib, log)
			}).
			Export("GameKitAchievementsInstanceCreateWithSessionManager").
			NewFunctionBuilder().
			WithFunc(func(_ context.Context, ptr uint32) {
				b.mu.Lock()
				defer b.mu.Unlock()
				b.release("GameKitAchievementsInstanceRelease", lib, ptr)
			}).
			Export("GameKitAchievementsInstanceRelease").
			NewFunctionBuilder().
			WithFunc(func(ctx context.Context, ptr, pageSize, waitForAll uint32, recv uint64) uint32 {
				b.mu.Lock()
				_, ok := b.enter("GameKitListAchievements", lib, ptr)
				list := append([]achievements.Achievement(nil), b.achievements...)
				b.mu.Unlock()
				if !ok {
					return uint32(StatusInvalidInstance)
				}

				if pageSize == 0 || waitForAll != 0 {
					pageSize = uint32(max(len(list), 1))
				}
				for start := 0; start < len(list); start += int(pageSize) {
					end := min(start+int(pageSize), len(list))
					b.deliver(ctx, recv, achievements.Page{Achievements: list[start:end]})
				}
				return uint32(native.StatusSuccess)
			}).
			Export("GameKitListAchievements").
			NewFunctionBuilder().
			WithFunc(func(ctx context.Context, ptr, table, count uint32, recv uint64) uint32 {
				b.mu.Lock()
				_, ok := b.enter("GameKitGetAchievements", lib, ptr)
				if !ok {
					b.mu.Unlock()
					return uint32(StatusInvalidInstance)
				}
				ptrs, err := marshal.PtrToArray[uint32](b.mem, table, int(count))
				if err != nil {
					b.mu.Unlock()
					return uint32(StatusInvalidInstance)
				}
				var found []achievements.Achievement
				for _, p := range ptrs {
					id := b.str(p)
					i := b.index(id)
					if i < 0 {
						b.mu.Unlock()
						return uint32(achievements.StatusNotFound)
					}
					found = append(found, b.achievements[i])
				}
				b.mu.Unlock()

				b.deliver(ctx, recv, achievements.Page{Achievements: found})
				return uint32(native.StatusSuccess)
			}).
			Export("GameKitGetAchievements").
			NewFunctionBuilder().
			WithFunc(func(ctx context.Context, ptr, records, count uint32, recv uint64) uint32 {
				b.mu.Lock()
				inst, ok := b.enter("GameKitUpdateAchievements", lib, ptr)
				if !ok {
					b.mu.Unlock()
					return uint32(StatusInvalidInstance)
				}
				updates, err := marshal.PtrToArray[achievements.Update](b.mem, records, int(count))
				if err != nil {
					b.mu.Unlock()
					return uint32(StatusInvalidInstance)
				}
				var changed []achievements.Achievement
				for _, u := range updates {
					i := b.index(u.AchievementID)
					if i < 0 {
						b.mu.Unlock()
						return uint32(achievements.StatusNotFound)
					}
					a := &b.achievements[i]
					a.CurrentValue = min(a.CurrentValue+u.IncrementBy, a.RequiredAmount)
					if !a.Earned && a.CurrentValue == a.RequiredAmount {
						a.Earned = true
						b.logf(inst, feature.LevelInfo, "achievement %s earned", a.AchievementID)
					}
					changed = append(changed, *a)
				}
				sort.Slice(changed, func(i, j int) bool {
					return changed[i].AchievementID < changed[j].AchievementID
				})
				b.mu.Unlock()

				b.deliver(ctx, recv, achievements.Page{Achievements: changed})
				return uint32(native.StatusSuccess)
			}).
			Export("GameKitUpdateAchievements")
	})
}

// index returns the catalog position of id, or -1. The caller must hold b.mu.
func (b *Backend) index(id string) int {
	for i, a := range b.achievements {
		if a.AchievementID == id {
			return i
		}
	}
	return -1
}
