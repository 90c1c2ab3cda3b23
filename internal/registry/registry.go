// Package registry binds menu controllers to live host screens.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/menu"
)

// Options configures registry hooks.
type Options struct {
	// OnFirstRegister runs once, on the first registration ever made.
	OnFirstRegister func()

	// OnRemove runs after a screen's entry was removed.
	OnRemove func(host.ScreenID)
}

// Stats are registry counters.
type Stats struct {
	Registered int64 `json:"registered"`
	Replaced   int64 `json:"replaced"`
	Removed    int64 `json:"removed"`
	Active     int64 `json:"active"`
}

// Registry maps each live screen to its menu controller.
// Unknown screens never error; callers treat a miss as a no-op.
type Registry struct {
	controllers sync.Map // map[host.ScreenID]*menu.Controller

	firstOnce sync.Once
	opts      Options

	registered atomic.Int64
	replaced   atomic.Int64
	removed    atomic.Int64
	active     atomic.Int64
}

// New creates an empty registry.
func New(opts Options) *Registry {
	return &Registry{opts: opts}
}

// Register binds controller to screen, replacing any prior binding for that
// screen. It reports whether a binding was replaced.
func (r *Registry) Register(screen host.ScreenID, controller *menu.Controller) bool {
	r.firstOnce.Do(func() {
		if r.opts.OnFirstRegister != nil {
			r.opts.OnFirstRegister()
		}
	})

	_, loaded := r.controllers.Swap(screen, controller)
	r.registered.Add(1)
	if loaded {
		r.replaced.Add(1)
	} else {
		r.active.Add(1)
	}
	return loaded
}

// Resolve returns the controller bound to screen.
func (r *Registry) Resolve(screen host.ScreenID) (*menu.Controller, bool) {
	val, ok := r.controllers.Load(screen)
	if !ok {
		return nil, false
	}
	return val.(*menu.Controller), true
}

// Remove drops the binding for screen. It reports whether one existed.
func (r *Registry) Remove(screen host.ScreenID) bool {
	if _, loaded := r.controllers.LoadAndDelete(screen); !loaded {
		return false
	}
	r.removed.Add(1)
	r.active.Add(-1)

	if r.opts.OnRemove != nil {
		r.opts.OnRemove(screen)
	}
	return true
}

// Watch removes entries whenever lc reports a destroyed screen.
// The returned function stops watching.
func (r *Registry) Watch(lc host.Lifecycle) func() {
	return lc.OnScreenDestroyed(func(screen host.ScreenID) {
		r.Remove(screen)
	})
}

// Len returns the number of bound screens.
func (r *Registry) Len() int {
	return int(r.active.Load())
}

// Screens returns the bound screens sorted by id.
func (r *Registry) Screens() []host.ScreenID {
	var screens []host.ScreenID
	r.controllers.Range(func(key, _ any) bool {
		screens = append(screens, key.(host.ScreenID))
		return true
	})
	sort.Slice(screens, func(i, j int) bool { return screens[i] < screens[j] })
	return screens
}

// Stats returns a snapshot of the registry counters.
func (r *Registry) Stats() Stats {
	return Stats{
		Registered: r.registered.Load(),
		Replaced:   r.replaced.Load(),
		Removed:    r.removed.Load(),
		Active:     r.active.Load(),
	}
}
