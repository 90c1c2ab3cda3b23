// Package tools exposes the dev menu to MCP clients through the daemon's
// control socket.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/devmenu/internal/daemon"
	"github.com/standardbeagle/devmenu/internal/devsupport"
	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/menu"
	"github.com/standardbeagle/devmenu/internal/protocol"
)

// DaemonTools wraps a daemon client for MCP tool handlers.
type DaemonTools struct {
	socketPath string
	timeout    time.Duration

	mu     sync.Mutex
	client *daemon.Client
}

// NewDaemonTools creates tools talking to the daemon at socketPath.
// An empty path uses the default socket.
func NewDaemonTools(socketPath string, timeout time.Duration) *DaemonTools {
	if socketPath == "" {
		socketPath = daemon.DefaultSocketPath()
	}
	return &DaemonTools{socketPath: socketPath, timeout: timeout}
}

// Close closes the daemon client connection.
func (dt *DaemonTools) Close() error {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if dt.client == nil {
		return nil
	}
	err := dt.client.Close()
	dt.client = nil
	return err
}

// with runs fn against a connected client. A transport failure drops the
// connection so the next call dials again.
func (dt *DaemonTools) with(fn func(*daemon.Client) error) error {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if dt.client == nil {
		client := daemon.NewClient(daemon.WithSocketPath(dt.socketPath), daemon.WithTimeout(dt.timeout))
		if err := client.Connect(); err != nil {
			return fmt.Errorf("devmenu daemon not reachable at %s (run `devmenu serve`): %w", dt.socketPath, err)
		}
		dt.client = client
	}

	err := fn(dt.client)
	if err != nil && !errors.Is(err, daemon.ErrServerError) {
		dt.client.Close()
		dt.client = nil
	}
	return err
}

// RegisterDaemonTools adds the dev menu tools to server.
func RegisterDaemonTools(server *mcp.Server, dt *DaemonTools) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "devmenu_status",
		Description: `Show the dev menu overlay state, the screen it belongs to, the current screen and registered screens.
Example: devmenu_status {} → {state: "visible", owner: "main", current: "main", screens: ["main"]}`,
	}, dt.makeStatusHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name: "devmenu_menu",
		Description: `Show, hide or toggle the dev menu overlay.
Without screen the current screen is used.

Examples:
  devmenu_menu {action: "toggle"}
  devmenu_menu {action: "show", screen: "main"}
  devmenu_menu {action: "hide"}`,
	}, dt.makeMenuHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name: "devmenu_items",
		Description: `List the current screen's dev menu items in presentation order.
Disabled items carry a detail explaining why.`,
	}, dt.makeItemsHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name: "devmenu_select",
		Description: `Run a dev menu action on the current screen by key.
Keys: dev-reload, dev-remote-debug, dev-hmr, dev-inspector, dev-perf-monitor.
dev-reload is always available even though devmenu_items does not list it.
Example: devmenu_select {key: "dev-hmr"}`,
	}, dt.makeSelectHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name: "devmenu_screen",
		Description: `Manage host screens.

Actions:
  create: Create a screen and bring it to the foreground
  focus: Bring a screen to the foreground
  destroy: Destroy a screen (the overlay leaves it at once)
  list: List screens with their development flags and recorded actions
  settings: Replace a screen's development flags

Examples:
  devmenu_screen {action: "create", id: "main", manifest_url: "exp://localhost:8081"}
  devmenu_screen {action: "settings", id: "main", flags: {attached: true, internal: true, dev_support: true, js_dev_mode: true}}
  devmenu_screen {action: "list"}`,
	}, dt.makeScreenHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name:        "devmenu_shake",
		Description: `Simulate a shake gesture: toggles the dev menu in the current screen.`,
	}, dt.makeShakeHandler())
}

// EmptyInput is the input of tools without arguments.
type EmptyInput struct{}

// StatusOutput defines output for devmenu_status.
type StatusOutput struct {
	State     string   `json:"state"`
	Owner     string   `json:"owner,omitempty"`
	Current   string   `json:"current,omitempty"`
	Screens   []string `json:"screens"`
	Attached  bool     `json:"attached"`
	Alpha     float64  `json:"alpha"`
	Scale     float64  `json:"scale"`
	Triggered int64    `json:"triggered"`
	LoopTasks int64    `json:"loop_tasks"`
}

// MenuInput defines input for devmenu_menu.
type MenuInput struct {
	Action string `json:"action" jsonschema:"Action: show, hide, toggle"`
	Screen string `json:"screen,omitempty" jsonschema:"Screen id (defaults to the current screen)"`
}

// MenuOutput defines output for devmenu_menu.
type MenuOutput struct {
	Action string `json:"action"`
	Screen string `json:"screen,omitempty"`
}

// ItemsOutput defines output for devmenu_items.
type ItemsOutput struct {
	Count int          `json:"count"`
	Items []menu.Entry `json:"items"`
}

// SelectInput defines input for devmenu_select.
type SelectInput struct {
	Key string `json:"key" jsonschema:"Item key from devmenu_items (e.g. dev-hmr)"`
}

// SelectOutput defines output for devmenu_select.
type SelectOutput struct {
	Key      string `json:"key"`
	Selected bool   `json:"selected"`
}

// ScreenInput defines input for devmenu_screen.
type ScreenInput struct {
	Action      string                `json:"action" jsonschema:"Action: create, focus, destroy, list, settings"`
	ID          string                `json:"id,omitempty" jsonschema:"Screen id (required except for list)"`
	ManifestURL string                `json:"manifest_url,omitempty" jsonschema:"For create: manifest URL of the screen's task"`
	Flags       *protocol.ScreenFlags `json:"flags,omitempty" jsonschema:"For create and settings: development flags"`
}

// ScreenOutput defines output for devmenu_screen.
type ScreenOutput struct {
	Action  string                `json:"action"`
	ID      string                `json:"id,omitempty"`
	Screens []ScreenEntry         `json:"screens,omitempty"`
	Flags   *protocol.ScreenFlags `json:"flags,omitempty"`
}

// ScreenEntry is a screen in the devmenu_screen list.
type ScreenEntry struct {
	ID          string               `json:"id"`
	ManifestURL string               `json:"manifest_url,omitempty"`
	Focused     bool                 `json:"focused"`
	Foreground  bool                 `json:"foreground"`
	Flags       protocol.ScreenFlags `json:"flags"`
	Actions     []string             `json:"actions,omitempty"`
	Notices     []string             `json:"notices,omitempty"`
}

// ShakeOutput defines output for devmenu_shake.
type ShakeOutput struct {
	Triggered int64 `json:"triggered"`
}

func (dt *DaemonTools) makeStatusHandler() func(context.Context, *mcp.CallToolRequest, EmptyInput) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, StatusOutput, error) {
		var out StatusOutput
		err := dt.with(func(c *daemon.Client) error {
			status, err := c.MenuStatus()
			if err != nil {
				return err
			}
			out = StatusOutput{
				State:     status.Overlay.State.String(),
				Owner:     string(status.Overlay.Owner),
				Current:   string(status.Current),
				Screens:   screenIDs(status.Screens),
				Attached:  status.View.Attached(),
				Alpha:     status.View.Alpha,
				Scale:     status.View.Scale,
				Triggered: status.Triggered,
				LoopTasks: status.LoopTasks,
			}
			return nil
		})
		if err != nil {
			return formatDaemonError(err, "devmenu_status"), StatusOutput{}, nil
		}
		return nil, out, nil
	}
}

func (dt *DaemonTools) makeMenuHandler() func(context.Context, *mcp.CallToolRequest, MenuInput) (*mcp.CallToolResult, MenuOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input MenuInput) (*mcp.CallToolResult, MenuOutput, error) {
		screen := host.ScreenID(input.Screen)

		var call func(*daemon.Client) error
		switch input.Action {
		case "show":
			call = func(c *daemon.Client) error { return c.MenuShow(screen) }
		case "hide":
			call = func(c *daemon.Client) error { return c.MenuHide(screen) }
		case "toggle":
			call = func(c *daemon.Client) error { return c.MenuToggle(screen) }
		default:
			return errorResult(fmt.Sprintf("unknown action %q (expected show, hide or toggle)", input.Action)), MenuOutput{}, nil
		}

		if err := dt.with(call); err != nil {
			return formatDaemonError(err, "devmenu_menu"), MenuOutput{}, nil
		}
		return nil, MenuOutput{Action: input.Action, Screen: input.Screen}, nil
	}
}

func (dt *DaemonTools) makeItemsHandler() func(context.Context, *mcp.CallToolRequest, EmptyInput) (*mcp.CallToolResult, ItemsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, ItemsOutput, error) {
		var listing menu.Listing
		err := dt.with(func(c *daemon.Client) error {
			var err error
			listing, err = c.MenuItems()
			return err
		})
		if err != nil {
			return formatDaemonError(err, "devmenu_items"), ItemsOutput{}, nil
		}

		entries := menu.Presentation(listing)
		if entries == nil {
			entries = []menu.Entry{}
		}
		return nil, ItemsOutput{Count: len(entries), Items: entries}, nil
	}
}

func (dt *DaemonTools) makeSelectHandler() func(context.Context, *mcp.CallToolRequest, SelectInput) (*mcp.CallToolResult, SelectOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SelectInput) (*mcp.CallToolResult, SelectOutput, error) {
		if input.Key == "" {
			return errorResult("key required"), SelectOutput{}, nil
		}
		if err := dt.with(func(c *daemon.Client) error { return c.MenuSelect(input.Key) }); err != nil {
			return formatDaemonError(err, "devmenu_select"), SelectOutput{}, nil
		}
		return nil, SelectOutput{Key: input.Key, Selected: true}, nil
	}
}

func (dt *DaemonTools) makeScreenHandler() func(context.Context, *mcp.CallToolRequest, ScreenInput) (*mcp.CallToolResult, ScreenOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ScreenInput) (*mcp.CallToolResult, ScreenOutput, error) {
		out := ScreenOutput{Action: input.Action, ID: input.ID}

		if input.Action == "list" {
			var screens []daemon.ScreenInfo
			err := dt.with(func(c *daemon.Client) error {
				var err error
				screens, err = c.ScreenList()
				return err
			})
			if err != nil {
				return formatDaemonError(err, "devmenu_screen"), ScreenOutput{}, nil
			}
			out.Screens = make([]ScreenEntry, 0, len(screens))
			for _, s := range screens {
				out.Screens = append(out.Screens, ScreenEntry{
					ID:          string(s.ID),
					ManifestURL: s.Task.ManifestURL,
					Focused:     s.Focused,
					Foreground:  s.Foreground,
					Flags:       protocol.ScreenFlags(s.Flags),
					Actions:     s.Actions,
					Notices:     s.Notices,
				})
			}
			return nil, out, nil
		}

		if input.ID == "" {
			return errorResult(fmt.Sprintf("id required for %s", input.Action)), ScreenOutput{}, nil
		}
		id := host.ScreenID(input.ID)

		var call func(*daemon.Client) error
		switch input.Action {
		case "create":
			cfg := protocol.ScreenCreateConfig{ManifestURL: input.ManifestURL, Flags: input.Flags}
			call = func(c *daemon.Client) error { return c.ScreenCreate(id, cfg) }
		case "focus":
			call = func(c *daemon.Client) error { return c.ScreenFocus(id) }
		case "destroy":
			call = func(c *daemon.Client) error { return c.ScreenDestroy(id) }
		case "settings":
			if input.Flags == nil {
				return errorResult("flags required for settings"), ScreenOutput{}, nil
			}
			flags := devsupport.Flags(*input.Flags)
			out.Flags = input.Flags
			call = func(c *daemon.Client) error { return c.ScreenSettings(id, flags) }
		default:
			return errorResult(fmt.Sprintf("unknown action %q", input.Action)), ScreenOutput{}, nil
		}

		if err := dt.with(call); err != nil {
			return formatDaemonError(err, "devmenu_screen"), ScreenOutput{}, nil
		}
		return nil, out, nil
	}
}

func (dt *DaemonTools) makeShakeHandler() func(context.Context, *mcp.CallToolRequest, EmptyInput) (*mcp.CallToolResult, ShakeOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, ShakeOutput, error) {
		var out ShakeOutput
		err := dt.with(func(c *daemon.Client) error {
			if err := c.Shake(); err != nil {
				return err
			}
			info, err := c.Info()
			if err != nil {
				return err
			}
			out.Triggered = info.Triggered
			return nil
		})
		if err != nil {
			return formatDaemonError(err, "devmenu_shake"), ShakeOutput{}, nil
		}
		return nil, out, nil
	}
}

func screenIDs(ids []host.ScreenID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func formatDaemonError(err error, toolName string) *mcp.CallToolResult {
	return errorResult(fmt.Sprintf("%s failed: %v", toolName, err))
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
