package devsupport

import (
	"context"
	"sync"
)

// Actions recorded by Memory.
const (
	ActionToggleInspector = "toggle-inspector"
	ActionReloadJS        = "reload-js"
	ActionReloadManifest  = "reload-manifest"
	ActionFastRefreshOn   = "fast-refresh-client-on"
	ActionFastRefreshOff  = "fast-refresh-client-off"
	ActionPerfMonitorOn   = "perf-monitor-on"
	ActionPerfMonitorOff  = "perf-monitor-off"
	ActionNotify          = "notify"
)

// Flags is the serializable state of a Memory dev support manager.
type Flags struct {
	Attached    bool `json:"attached"`
	Internal    bool `json:"internal"`
	DevSupport  bool `json:"dev_support"`
	JSDevMode   bool `json:"js_dev_mode"`
	RemoteDebug bool `json:"remote_debug"`
	FastRefresh bool `json:"fast_refresh"`
	PerfMonitor bool `json:"perf_monitor"`
}

// DevelopmentFlags are the flags of a screen running a development bundle.
func DevelopmentFlags() Flags {
	return Flags{
		Attached:   true,
		Internal:   true,
		DevSupport: true,
		JSDevMode:  true,
	}
}

// Memory is an in-memory Manager that records every action it performs.
type Memory struct {
	mu        sync.Mutex
	flags     Flags
	actions   []string
	notices   []string
	reloadErr error
}

// NewMemory creates a manager with the given flags.
func NewMemory(flags Flags) *Memory {
	return &Memory{flags: flags}
}

// SetFlags replaces the manager's flags.
func (m *Memory) SetFlags(flags Flags) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags = flags
}

// Flags returns a copy of the manager's flags.
func (m *Memory) Flags() Flags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags
}

// FailManifestReload makes ReloadFromManifest return err until reset with nil.
func (m *Memory) FailManifestReload(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadErr = err
}

// Actions returns the recorded actions in order.
func (m *Memory) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.actions...)
}

// Notices returns the recorded user notices in order.
func (m *Memory) Notices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notices...)
}

// Settings implements Manager.
func (m *Memory) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.flags.Attached {
		return nil
	}
	if m.flags.Internal {
		return internalSettings{m}
	}
	return basicSettings{m}
}

// DevSupportEnabled implements Manager.
func (m *Memory) DevSupportEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags.DevSupport
}

// ToggleInspector implements Manager.
func (m *Memory) ToggleInspector() { m.record(ActionToggleInspector) }

// ReloadJS implements Manager.
func (m *Memory) ReloadJS() { m.record(ActionReloadJS) }

// ReloadFromManifest implements Manager.
func (m *Memory) ReloadFromManifest(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reloadErr != nil {
		return m.reloadErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.actions = append(m.actions, ActionReloadManifest)
	return nil
}

// SetFastRefreshClient implements Manager.
func (m *Memory) SetFastRefreshClient(enabled bool) {
	if enabled {
		m.record(ActionFastRefreshOn)
	} else {
		m.record(ActionFastRefreshOff)
	}
}

// SetPerfMonitorEnabled implements Manager.
func (m *Memory) SetPerfMonitorEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags.PerfMonitor = enabled
	if enabled {
		m.actions = append(m.actions, ActionPerfMonitorOn)
	} else {
		m.actions = append(m.actions, ActionPerfMonitorOff)
	}
}

// Notify implements Manager.
func (m *Memory) Notify(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, message)
	m.actions = append(m.actions, ActionNotify)
}

func (m *Memory) record(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
}

type basicSettings struct{ m *Memory }

func (s basicSettings) RemoteDebugEnabled() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.flags.RemoteDebug
}

func (s basicSettings) SetRemoteDebugEnabled(enabled bool) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.flags.RemoteDebug = enabled
}

func (s basicSettings) PerfMonitorEnabled() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.flags.PerfMonitor
}

type internalSettings struct{ m *Memory }

func (s internalSettings) RemoteDebugEnabled() bool     { return basicSettings(s).RemoteDebugEnabled() }
func (s internalSettings) SetRemoteDebugEnabled(v bool) { basicSettings(s).SetRemoteDebugEnabled(v) }
func (s internalSettings) PerfMonitorEnabled() bool     { return basicSettings(s).PerfMonitorEnabled() }

func (s internalSettings) JSDevModeEnabled() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.flags.JSDevMode
}

func (s internalSettings) FastRefreshEnabled() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.flags.FastRefresh
}

func (s internalSettings) SetFastRefreshEnabled(enabled bool) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.flags.FastRefresh = enabled
}

// StaticPermissions is a Permissions whose overlay grant is fixed until a
// request flips it to GrantOnRequest.
type StaticPermissions struct {
	mu             sync.Mutex
	granted        bool
	grantOnRequest bool
	requests       int
}

// NewStaticPermissions creates permissions with the given initial grant.
// When grantOnRequest is true a request grants the permission.
func NewStaticPermissions(granted, grantOnRequest bool) *StaticPermissions {
	return &StaticPermissions{granted: granted, grantOnRequest: grantOnRequest}
}

// CanDrawOverlays implements Permissions.
func (p *StaticPermissions) CanDrawOverlays() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

// RequestOverlayPermission implements Permissions.
func (p *StaticPermissions) RequestOverlayPermission(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests++
	if p.grantOnRequest && ctx.Err() == nil {
		p.granted = true
	}
	return p.granted
}

// Requests returns how many times the permission was requested.
func (p *StaticPermissions) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}
