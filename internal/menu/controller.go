package menu

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/standardbeagle/devmenu/internal/devsupport"
	"github.com/standardbeagle/devmenu/internal/host"
)

// User-visible labels and details.
const (
	LabelInspector              = "Toggle Element Inspector"
	LabelRemoteDebugStop        = "Stop Remote Debugging"
	LabelRemoteDebugStart       = "Debug Remote JS"
	LabelRemoteDebugUnavailable = "Remote Debugger Unavailable"
	LabelHMRDisable             = "Disable Fast Refresh"
	LabelHMREnable              = "Enable Fast Refresh"
	LabelHMRUnavailable         = "Fast Refresh Unavailable"
	LabelPerfMonitorHide        = "Hide Performance Monitor"
	LabelPerfMonitorShow        = "Show Performance Monitor"

	DetailRemoteDebugUnavailable = "Remote debugging requires development mode. Reload in development mode to debug remote JS."
	DetailHMRUnavailable         = "Use the Reload button above to reload when in production mode. Switch back to development mode to use Fast Refresh."

	// NoticeFastRefreshDisabled is shown when a reload turns fast refresh off
	// because the bundle is not a development bundle.
	NoticeFastRefreshDisabled = "Fast Refresh has been disabled because it requires a development bundle."
)

// Props are the initial render properties of the overlay for one showing.
type Props struct {
	Task      host.Task `json:"task"`
	SessionID string    `json:"uuid"`
}

// Controller answers what a single screen's menu offers and handles
// selections against that screen's live dev settings.
type Controller struct {
	screen host.ScreenID
	task   host.Task
	dev    devsupport.Manager
	perms  devsupport.Permissions
	logger *zap.Logger
}

// NewController creates a controller for screen. perms may be nil, in which
// case the overlay permission is treated as granted.
func NewController(screen host.ScreenID, task host.Task, dev devsupport.Manager, perms devsupport.Permissions, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		screen: screen,
		task:   task,
		dev:    dev,
		perms:  perms,
		logger: logger.With(zap.String("screen", string(screen))),
	}
}

// Screen returns the screen this controller belongs to.
func (c *Controller) Screen() host.ScreenID { return c.screen }

// Task returns the screen's task context.
func (c *Controller) Task() host.Task { return c.task }

// InitialProps returns render properties with a fresh session id, so the UI
// can tell a re-shown overlay from a stale one.
func (c *Controller) InitialProps() Props {
	return Props{
		Task:      c.task,
		SessionID: uuid.NewString(),
	}
}

// ListItems reports the items available for the screen right now.
// Remote debugging and fast refresh are always listed; when they cannot be
// used they are disabled and carry an explanation.
func (c *Controller) ListItems() Listing {
	var items Listing

	var settings devsupport.Settings
	enabled := false
	if c.dev != nil {
		settings = c.dev.Settings()
		enabled = c.dev.DevSupportEnabled()
	}

	if settings != nil {
		items.Set(KeyInspector, Item{Label: LabelInspector, IsEnabled: enabled})
	}

	if settings != nil && enabled {
		label := LabelRemoteDebugStart
		if settings.RemoteDebugEnabled() {
			label = LabelRemoteDebugStop
		}
		items.Set(KeyRemoteDebug, Item{Label: label, IsEnabled: true})
	} else {
		items.Set(KeyRemoteDebug, Item{
			Label:  LabelRemoteDebugUnavailable,
			Detail: DetailRemoteDebugUnavailable,
		})
	}

	if internal, ok := settings.(devsupport.InternalSettings); ok && enabled {
		label := LabelHMREnable
		if internal.FastRefreshEnabled() {
			label = LabelHMRDisable
		}
		items.Set(KeyHMR, Item{Label: label, IsEnabled: true})
	} else {
		items.Set(KeyHMR, Item{
			Label:  LabelHMRUnavailable,
			Detail: DetailHMRUnavailable,
		})
	}

	if settings != nil && enabled {
		label := LabelPerfMonitorShow
		if settings.PerfMonitorEnabled() {
			label = LabelPerfMonitorHide
		}
		items.Set(KeyPerfMonitor, Item{Label: label, IsEnabled: true})
	}

	return items
}

// Select dispatches the action for key. Unknown keys, and screens without
// development settings, are ignored. Failures never propagate: a failed
// manifest reload falls back to a plain JS reload and a denied overlay
// permission leaves the performance monitor off.
func (c *Controller) Select(ctx context.Context, key string) {
	if c.dev == nil {
		return
	}
	settings, ok := c.dev.Settings().(devsupport.InternalSettings)
	if !ok {
		c.logger.Debug("select ignored, no development settings", zap.String("key", key))
		return
	}

	switch key {
	case KeyReload:
		if !settings.JSDevModeEnabled() && settings.FastRefreshEnabled() {
			c.dev.Notify(NoticeFastRefreshDisabled)
			settings.SetFastRefreshEnabled(false)
		}
		c.Reload(ctx)

	case KeyRemoteDebug:
		settings.SetRemoteDebugEnabled(!settings.RemoteDebugEnabled())
		c.dev.ReloadJS()

	case KeyHMR:
		next := !settings.FastRefreshEnabled()
		settings.SetFastRefreshEnabled(next)
		c.dev.SetFastRefreshClient(next)

	case KeyInspector:
		c.dev.ToggleInspector()

	case KeyPerfMonitor:
		next := !settings.PerfMonitorEnabled()
		if next && !c.overlayPermitted(ctx) {
			c.logger.Warn("overlay permission denied, performance monitor stays off")
			return
		}
		c.dev.SetPerfMonitorEnabled(next)

	default:
		c.logger.Debug("unknown menu item", zap.String("key", key))
	}
}

// Reload reloads the task from its manifest, falling back to a JS reload.
func (c *Controller) Reload(ctx context.Context) {
	if c.dev == nil {
		return
	}
	if err := c.dev.ReloadFromManifest(ctx); err != nil {
		c.logger.Warn("manifest reload failed, reloading JS", zap.Error(err))
		c.dev.ReloadJS()
	}
}

func (c *Controller) overlayPermitted(ctx context.Context) bool {
	if c.perms == nil || c.perms.CanDrawOverlays() {
		return true
	}
	return c.perms.RequestOverlayPermission(ctx)
}
