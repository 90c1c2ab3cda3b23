package overlay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/menu"
	"github.com/standardbeagle/devmenu/internal/uiloop"
)

// Options configures a Controller.
type Options struct {
	Loop    *uiloop.Loop
	Screens Resolver
	Runtime host.Runtime

	// Close and Surface are optional and may be set later.
	Close   CloseHandshake
	Surface Surface

	Timings Timings
	Logger  *zap.Logger
}

// view is the one overlay view. It is only touched on the loop.
type view struct {
	props   menu.Props
	parent  host.ScreenID
	visible bool
	alpha   float64
	scale   float64
}

// Controller drives the overlay state machine. Every transition runs on the
// UI loop; the public methods only post work to it and return immediately.
type Controller struct {
	loop    *uiloop.Loop
	screens Resolver
	runtime host.Runtime
	logger  *zap.Logger

	// Loop-owned state.
	view      *view
	creations int
	state     State
	owner     host.ScreenID
	gen       uint64

	// Published copies for readers off the loop, plus late-bound collaborators.
	mu      sync.RWMutex
	status  Status
	snap    ViewSnapshot
	timings Timings
	close   CloseHandshake
	surface Surface

	ctx        context.Context
	cancel     context.CancelFunc
	handshakes sync.WaitGroup
}

// New creates a hidden overlay controller.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timings := opts.Timings
	if timings == (Timings{}) {
		timings = DefaultTimings()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		loop:    opts.Loop,
		screens: opts.Screens,
		runtime: opts.Runtime,
		logger:  logger,
		timings: timings,
		close:   opts.Close,
		surface: opts.Surface,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetCloseHandshake sets the handshake run before every hide animation.
func (c *Controller) SetCloseHandshake(h CloseHandshake) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.close = h
}

// SetSurface sets the observer of view changes.
func (c *Controller) SetSurface(s Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface = s
}

// SetTimings replaces the animation timings used by later transitions.
func (c *Controller) SetTimings(t Timings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timings = t
}

// Timings returns the current animation timings.
func (c *Controller) Timings() Timings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timings
}

// Close abandons pending close handshakes and waits for them to return.
// Transitions already posted to the loop are left to the loop's owner.
func (c *Controller) Close() {
	c.cancel()
	c.handshakes.Wait()
}

// Status returns the current state and owner.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// View returns a snapshot of the overlay view.
func (c *Controller) View() ViewSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// IsShownIn reports whether the view exists and is attached under screen.
func (c *Controller) IsShownIn(screen host.ScreenID) bool {
	v := c.View()
	return v.Attached() && v.Parent == screen
}

// Show attaches the overlay to screen and animates it in.
// Screens without a registered controller are ignored.
func (c *Controller) Show(screen host.ScreenID) {
	c.loop.Post(func() { c.show(screen) })
}

// Hide runs the close handshake and animates the overlay out of screen.
// It does nothing unless the view is attached under screen.
func (c *Controller) Hide(screen host.ScreenID) {
	c.loop.Post(func() { c.hide(screen) })
}

// Toggle hides the overlay when it is shown in screen and shows it otherwise.
func (c *Controller) Toggle(screen host.ScreenID) {
	c.loop.Post(func() { c.toggle(screen) })
}

// ShowInCurrent shows the overlay in the host's current screen.
func (c *Controller) ShowInCurrent() {
	c.loop.Post(func() {
		if screen, ok := c.current(); ok {
			c.show(screen)
		}
	})
}

// HideInCurrent hides the overlay in the host's current screen.
func (c *Controller) HideInCurrent() {
	c.loop.Post(func() {
		if screen, ok := c.current(); ok {
			c.hide(screen)
		}
	})
}

// ToggleInCurrent toggles the overlay in the host's current screen.
func (c *Controller) ToggleInCurrent() {
	c.loop.Post(func() {
		if screen, ok := c.current(); ok {
			c.toggle(screen)
		}
	})
}

// ResumeIfShown resumes screen's content when it already owns the overlay,
// without running the show animation again.
func (c *Controller) ResumeIfShown(screen host.ScreenID) {
	c.loop.Post(func() {
		if c.view != nil && c.view.parent == screen {
			c.runtime.ResumeContent(screen)
		}
	})
}

// Release detaches the overlay at once if screen owns it. It is used when
// the owner screen is destroyed, so no handshake or animation runs and the
// screen's content is not paused.
func (c *Controller) Release(screen host.ScreenID) {
	c.loop.Post(func() {
		if c.view == nil || c.view.parent != screen {
			return
		}
		c.gen++
		c.view.visible = false
		c.view.parent = ""
		c.setState(StateHidden, "")
		c.logger.Debug("overlay released", zap.String("screen", string(screen)))
	})
}

func (c *Controller) current() (host.ScreenID, bool) {
	screen, ok := c.runtime.CurrentScreen()
	if !ok {
		c.logger.Debug("no current screen")
	}
	return screen, ok
}

func (c *Controller) toggle(screen host.ScreenID) {
	shown := c.view != nil && c.view.parent == screen &&
		(c.state == StateVisible || c.state == StateShowing)
	if shown {
		c.hide(screen)
	} else {
		c.show(screen)
	}
}

func (c *Controller) show(screen host.ScreenID) {
	ctrl, ok := c.screens.Resolve(screen)
	if !ok {
		c.logger.Debug("show ignored, screen not registered", zap.String("screen", string(screen)))
		return
	}

	if c.view == nil {
		c.view = &view{}
		c.creations++
	}
	v := c.view
	v.props = ctrl.InitialProps()
	v.parent = screen
	v.visible = true
	v.alpha = InitialAlpha
	v.scale = InitialScale

	c.gen++
	gen := c.gen

	c.runtime.ResumeContent(screen)
	c.setState(StateShowing, screen)

	t := c.Timings()
	fromAlpha, fromScale := v.alpha, v.scale
	c.loop.Schedule(t.Delay, t.Duration,
		func(p float64) {
			if c.gen != gen {
				return
			}
			v.alpha = uiloop.Lerp(fromAlpha, TargetAlpha, p)
			v.scale = uiloop.Lerp(fromScale, TargetScale, p)
			c.publish()
		},
		func() {
			if c.gen != gen {
				return
			}
			c.setState(StateVisible, screen)
		})
}

func (c *Controller) hide(screen host.ScreenID) {
	if c.view == nil || c.view.parent != screen || c.state == StateHidden || c.state == StateHiding {
		return
	}

	c.gen++
	gen := c.gen
	c.setState(StateHiding, screen)

	c.mu.RLock()
	handshake := c.close
	c.mu.RUnlock()

	if handshake == nil {
		c.animateOut(screen, gen)
		return
	}

	c.handshakes.Add(1)
	go func() {
		defer c.handshakes.Done()
		if err := handshake.RequestClose(c.ctx); err != nil {
			c.logger.Debug("close handshake incomplete", zap.Error(err))
		}
		c.loop.Post(func() { c.animateOut(screen, gen) })
	}()
}

func (c *Controller) animateOut(screen host.ScreenID, gen uint64) {
	if c.gen != gen {
		return
	}
	v := c.view
	fromAlpha := v.alpha

	c.loop.Schedule(0, c.Timings().Duration,
		func(p float64) {
			if c.gen != gen {
				return
			}
			v.alpha = uiloop.Lerp(fromAlpha, InitialAlpha, p)
			c.publish()
		},
		func() {
			if c.gen != gen {
				return
			}
			v.visible = false
			v.parent = ""
			c.runtime.PauseContent(screen)
			c.setState(StateHidden, "")
		})
}

func (c *Controller) setState(state State, owner host.ScreenID) {
	c.state = state
	c.owner = owner
	c.publish()
}

// publish copies loop-owned state for readers and notifies the surface.
func (c *Controller) publish() {
	snap := ViewSnapshot{Creations: c.creations}
	if v := c.view; v != nil {
		snap.Exists = true
		snap.Parent = v.parent
		snap.Visible = v.visible
		snap.Alpha = v.alpha
		snap.Scale = v.scale
		snap.Props = v.props
	}

	c.mu.Lock()
	c.status = Status{State: c.state, Owner: c.owner}
	c.snap = snap
	surface := c.surface
	c.mu.Unlock()

	if surface != nil {
		surface.Render(snap)
	}
}
