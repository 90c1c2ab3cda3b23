// Package devsupport defines the live diagnostic settings and actions of one
// host screen, as consumed by the dev menu.
package devsupport

import "context"

// Settings are the live developer settings of a screen.
type Settings interface {
	RemoteDebugEnabled() bool
	SetRemoteDebugEnabled(enabled bool)
	PerfMonitorEnabled() bool
}

// InternalSettings are settings that also carry the JS dev mode and fast
// refresh flags. Only screens running a development bundle expose them.
type InternalSettings interface {
	Settings
	JSDevModeEnabled() bool
	FastRefreshEnabled() bool
	SetFastRefreshEnabled(enabled bool)
}

// Manager is a screen's dev support manager.
type Manager interface {
	// Settings returns the attached settings, or nil when none are attached.
	Settings() Settings

	// DevSupportEnabled reports whether diagnostics are enabled for the screen.
	DevSupportEnabled() bool

	ToggleInspector()
	ReloadJS()

	// ReloadFromManifest reloads the whole task from its manifest.
	ReloadFromManifest(ctx context.Context) error

	// SetFastRefreshClient enables or disables the running fast refresh client.
	SetFastRefreshClient(enabled bool)

	SetPerfMonitorEnabled(enabled bool)

	// Notify shows a short user-visible notice.
	Notify(message string)
}

// Permissions gates platform features the dev menu may need.
type Permissions interface {
	// CanDrawOverlays reports whether the overlay permission is granted.
	CanDrawOverlays() bool

	// RequestOverlayPermission asks the platform for the overlay permission
	// and reports whether it is granted afterwards.
	RequestOverlayPermission(ctx context.Context) bool
}
