// Package host defines the host-runtime collaborators consumed by the dev menu
// and an in-memory runtime used by the daemon and tests.
package host

// ScreenID is an opaque identity for one live top-level host screen.
type ScreenID string

// Runtime is the part of the host runtime the overlay needs: which screen is
// in the foreground and how to foreground/background a screen's content.
type Runtime interface {
	// CurrentScreen returns the foreground screen when it is a managed screen.
	CurrentScreen() (ScreenID, bool)

	// ResumeContent foregrounds the screen's underlying content so input and
	// rendering continue beneath and around the overlay.
	ResumeContent(screen ScreenID)

	// PauseContent backgrounds the screen's underlying content.
	PauseContent(screen ScreenID)

	// GoHome leaves the current screen for the top-level landing screen.
	GoHome()
}

// Lifecycle delivers screen destruction notifications.
type Lifecycle interface {
	// OnScreenDestroyed registers fn to run whenever a screen is destroyed.
	// The returned function removes the registration.
	OnScreenDestroyed(fn func(ScreenID)) (remove func())
}
