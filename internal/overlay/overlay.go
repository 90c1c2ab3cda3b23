// Package overlay owns the single shared dev menu view and moves it between
// host screens with animated show and hide transitions.
package overlay

import (
	"context"
	"fmt"
	"time"

	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/menu"
)

// State represents the overlay lifecycle state.
type State int32

const (
	StateHidden  State = iota // Not attached anywhere
	StateShowing              // Attached, animating in
	StateVisible              // Attached, fully shown
	StateHiding               // Close handshake or animating out
)

var stateNames = [...]string{"hidden", "showing", "visible", "hiding"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown overlay state %q", text)
}

// Status is the overlay state together with its owner screen.
// Owner is empty when the state is StateHidden.
type Status struct {
	State State         `json:"state"`
	Owner host.ScreenID `json:"owner,omitempty"`
}

// Animated property values.
const (
	InitialAlpha = 0.0
	InitialScale = 1.1
	TargetAlpha  = 1.0
	TargetScale  = 1.0
)

// Default animation timings.
const (
	DefaultAnimationDelay    = 100 * time.Millisecond
	DefaultAnimationDuration = 200 * time.Millisecond
)

// Timings are the animation timings of show and hide transitions.
type Timings struct {
	// Delay before the show animation starts.
	Delay time.Duration
	// Duration of both the show and the hide animation.
	Duration time.Duration
}

// DefaultTimings returns the default animation timings.
func DefaultTimings() Timings {
	return Timings{
		Delay:    DefaultAnimationDelay,
		Duration: DefaultAnimationDuration,
	}
}

// ViewSnapshot is a copy of the overlay view's state.
type ViewSnapshot struct {
	Exists  bool          `json:"exists"`
	Parent  host.ScreenID `json:"parent,omitempty"`
	Visible bool          `json:"visible"`
	Alpha   float64       `json:"alpha"`
	Scale   float64       `json:"scale"`
	Props   menu.Props    `json:"props"`

	// Creations counts how many views were ever created. It never exceeds one.
	Creations int `json:"creations"`
}

// Attached reports whether the view is attached under a screen.
func (v ViewSnapshot) Attached() bool {
	return v.Exists && v.Parent != ""
}

// Resolver finds the menu controller bound to a screen.
type Resolver interface {
	Resolve(screen host.ScreenID) (*menu.Controller, bool)
}

// Surface receives every change of the overlay view.
// Render is called on the UI loop and must not block.
type Surface interface {
	Render(view ViewSnapshot)
}

// CloseHandshake asks the overlay UI to run its own collapse animation and
// returns once it has finished, or ctx is done.
type CloseHandshake interface {
	RequestClose(ctx context.Context) error
}
