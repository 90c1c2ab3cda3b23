// Package devmenu wires the dev menu together: one Coordinator owns the UI
// loop, the screen registry, the overlay controller and the gesture triggers,
// and answers the overlay UI's bridge requests.
package devmenu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/standardbeagle/devmenu/internal/gesture"
	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/menu"
	"github.com/standardbeagle/devmenu/internal/overlay"
	"github.com/standardbeagle/devmenu/internal/registry"
	"github.com/standardbeagle/devmenu/internal/settings"
	"github.com/standardbeagle/devmenu/internal/uiloop"
)

// ErrNotStarted is returned by calls that need a running coordinator.
var ErrNotStarted = errors.New("dev menu not started")

// Options configures a Coordinator.
type Options struct {
	Runtime   host.Runtime
	Lifecycle host.Lifecycle
	Settings  settings.Store

	// Triggers start on the first screen registration.
	Triggers []gesture.Trigger

	Timings       overlay.Timings
	FrameInterval time.Duration
	Logger        *zap.Logger
}

// UI is the overlay UI endpoint, usually a bridge server.
type UI interface {
	overlay.Surface
	overlay.CloseHandshake
}

// Coordinator is the dev menu of one process.
type Coordinator struct {
	loop     *uiloop.Loop
	registry *registry.Registry
	overlay  *overlay.Controller
	runtime  host.Runtime
	store    settings.Store
	logger   *zap.Logger

	lifecycle host.Lifecycle
	unwatch   func()

	triggers []gesture.Trigger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool

	triggered atomic.Int64
}

// New creates a stopped coordinator.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := opts.Settings
	if store == nil {
		store = settings.NewMemoryStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		runtime:   opts.Runtime,
		store:     store,
		logger:    logger,
		lifecycle: opts.Lifecycle,
		triggers:  opts.Triggers,
		ctx:       ctx,
		cancel:    cancel,
	}

	c.loop = uiloop.New(uiloop.Config{
		FrameInterval: opts.FrameInterval,
		Logger:        logger.Named("uiloop"),
	})
	c.registry = registry.New(registry.Options{
		OnFirstRegister: c.startTriggers,
		OnRemove:        c.screenRemoved,
	})
	c.overlay = overlay.New(overlay.Options{
		Loop:    c.loop,
		Screens: c.registry,
		Runtime: opts.Runtime,
		Timings: opts.Timings,
		Logger:  logger.Named("overlay"),
	})
	return c
}

// Start runs the UI loop and subscribes to screen destruction.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.startOnce.Do(func() {
		c.loop.Start()
		if c.lifecycle != nil {
			c.unwatch = c.registry.Watch(c.lifecycle)
		}
		c.started.Store(true)
		c.logger.Info("dev menu started")
	})
	return nil
}

// Stop stops the triggers and the UI loop and waits for them.
func (c *Coordinator) Stop() error {
	c.stopOnce.Do(func() {
		c.started.Store(false)
		if c.unwatch != nil {
			c.unwatch()
		}
		c.cancel()
		c.overlay.Close()
		c.loop.Stop()
		c.wg.Wait()
		c.logger.Info("dev menu stopped")
	})
	return nil
}

// AttachUI routes overlay view updates and close handshakes to ui.
func (c *Coordinator) AttachUI(ui UI) {
	c.overlay.SetSurface(ui)
	c.overlay.SetCloseHandshake(ui)
}

// Overlay returns the overlay controller.
func (c *Coordinator) Overlay() *overlay.Controller { return c.overlay }

// Registry returns the screen registry.
func (c *Coordinator) Registry() *registry.Registry { return c.registry }

// RegisterScreen binds ctrl to its screen, replacing any previous binding.
func (c *Coordinator) RegisterScreen(ctrl *menu.Controller) {
	if c.registry.Register(ctrl.Screen(), ctrl) {
		c.logger.Debug("screen re-registered", zap.String("screen", string(ctrl.Screen())))
	}
}

// ScreenResumed is called when a screen's runtime comes back to the
// foreground. It registers the screen's controller and, when the overlay is
// already shown there, resumes the screen's content under it.
func (c *Coordinator) ScreenResumed(ctrl *menu.Controller) {
	c.RegisterScreen(ctrl)
	c.overlay.ResumeIfShown(ctrl.Screen())
}

// Shake toggles the overlay in the current screen, as a detected gesture does.
func (c *Coordinator) Shake() {
	c.triggered.Add(1)
	c.overlay.ToggleInCurrent()
}

// Status is a snapshot of the dev menu.
type Status struct {
	Overlay   overlay.Status       `json:"overlay"`
	View      overlay.ViewSnapshot `json:"view"`
	Screens   []host.ScreenID      `json:"screens"`
	Registry  registry.Stats       `json:"registry"`
	Current   host.ScreenID        `json:"current,omitempty"`
	Triggered int64                `json:"triggered"`
	LoopTasks int64                `json:"loop_tasks"`
	Running   bool                 `json:"running"`
}

// Status returns a snapshot of the dev menu.
func (c *Coordinator) Status() Status {
	current, _ := c.runtime.CurrentScreen()
	return Status{
		Overlay:   c.overlay.Status(),
		View:      c.overlay.View(),
		Screens:   c.registry.Screens(),
		Registry:  c.registry.Stats(),
		Current:   current,
		Triggered: c.triggered.Load(),
		LoopTasks: c.loop.Executed(),
		Running:   c.started.Load(),
	}
}

// Close implements bridge.Handler: the UI asks to close the overlay.
func (c *Coordinator) Close(context.Context) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	c.overlay.HideInCurrent()
	return nil
}

// ListItems implements bridge.Handler. With no registered current screen
// the listing is empty.
func (c *Coordinator) ListItems(ctx context.Context) (menu.Listing, error) {
	var items menu.Listing
	err := c.loop.Do(ctx, func() {
		if ctrl, ok := c.currentController(); ok {
			items = ctrl.ListItems()
		}
	})
	if err != nil {
		return menu.Listing{}, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// Select implements bridge.Handler.
func (c *Coordinator) Select(ctx context.Context, key string) error {
	ctrl, err := c.resolveCurrent(ctx)
	if err != nil || ctrl == nil {
		return err
	}
	ctrl.Select(ctx, key)
	return nil
}

// OnboardingFinished implements bridge.Handler.
func (c *Coordinator) OnboardingFinished(ctx context.Context) (bool, error) {
	return settings.OnboardingFinished(ctx, c.store)
}

// SetOnboardingFinished implements bridge.Handler.
func (c *Coordinator) SetOnboardingFinished(ctx context.Context, finished bool) (bool, error) {
	if err := settings.SetOnboardingFinished(ctx, c.store, finished); err != nil {
		return false, err
	}
	return finished, nil
}

// ReloadApp implements bridge.Handler: the overlay closes and the current
// screen's app reloads from its manifest.
func (c *Coordinator) ReloadApp(ctx context.Context) error {
	ctrl, err := c.resolveCurrent(ctx)
	if err != nil || ctrl == nil {
		return err
	}
	c.overlay.Hide(ctrl.Screen())
	ctrl.Reload(ctx)
	return nil
}

// GoHome implements bridge.Handler: the overlay closes and the host returns
// to its home screen.
func (c *Coordinator) GoHome(ctx context.Context) error {
	ctrl, err := c.resolveCurrent(ctx)
	if err != nil {
		return err
	}
	if ctrl != nil {
		c.overlay.Hide(ctrl.Screen())
	}
	c.runtime.GoHome()
	return nil
}

// resolveCurrent resolves the current screen's controller on the loop.
// A nil controller with a nil error means there is nothing to act on.
func (c *Coordinator) resolveCurrent(ctx context.Context) (*menu.Controller, error) {
	var ctrl *menu.Controller
	err := c.loop.Do(ctx, func() {
		ctrl, _ = c.currentController()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current screen: %w", err)
	}
	return ctrl, nil
}

func (c *Coordinator) currentController() (*menu.Controller, bool) {
	screen, ok := c.runtime.CurrentScreen()
	if !ok {
		return nil, false
	}
	return c.registry.Resolve(screen)
}

func (c *Coordinator) startTriggers() {
	for _, t := range c.triggers {
		c.wg.Add(1)
		go func(t gesture.Trigger) {
			defer c.wg.Done()
			if err := t.Run(c.ctx, c.Shake); err != nil {
				c.logger.Warn("gesture trigger stopped", zap.Error(err))
			}
		}(t)
	}
	if len(c.triggers) > 0 {
		c.logger.Debug("gesture triggers started", zap.Int("count", len(c.triggers)))
	}
}

func (c *Coordinator) screenRemoved(screen host.ScreenID) {
	c.logger.Debug("screen removed", zap.String("screen", string(screen)))
	c.overlay.Release(screen)
}
