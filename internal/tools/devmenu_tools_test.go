//go:build unix

package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/devmenu/internal/daemon"
	"github.com/standardbeagle/devmenu/internal/devmenu"
	"github.com/standardbeagle/devmenu/internal/devsupport"
	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/menu"
	"github.com/standardbeagle/devmenu/internal/overlay"
)

func startDaemon(t *testing.T) string {
	t.Helper()

	mem := host.NewMemory(nil)
	coord := devmenu.New(devmenu.Options{
		Runtime:       mem,
		Lifecycle:     mem,
		Timings:       overlay.Timings{Delay: time.Millisecond, Duration: 5 * time.Millisecond},
		FrameInterval: 2 * time.Millisecond,
	})
	require.NoError(t, coord.Start(context.Background()))

	cfg := daemon.DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "d.sock")
	d := daemon.New(cfg, daemon.Backend{Coordinator: coord, Host: mem})
	require.NoError(t, d.Start())

	t.Cleanup(func() {
		d.Stop(context.Background())
		coord.Stop()
	})
	return cfg.SocketPath
}

func connect(t *testing.T, socketPath string) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	dt := NewDaemonTools(socketPath, 5*time.Second)
	t.Cleanup(func() { dt.Close() })

	server := mcp.NewServer(&mcp.Implementation{Name: "devmenu", Version: "test"}, nil)
	RegisterDaemonTools(server, dt)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return session
}

func call[Out any](t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (Out, *mcp.CallToolResult) {
	t.Helper()

	var out Out
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if res.IsError {
		return out, res
	}

	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out))
	return out, res
}

func errorText(res *mcp.CallToolResult) string {
	if res == nil || len(res.Content) == 0 {
		return ""
	}
	if text, ok := res.Content[0].(*mcp.TextContent); ok {
		return text.Text
	}
	return ""
}

func TestTools_ListRegistered(t *testing.T) {
	session := connect(t, startDaemon(t))

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"devmenu_status", "devmenu_menu", "devmenu_items",
		"devmenu_select", "devmenu_screen", "devmenu_shake",
	}, names)
}

func TestTools_ScreenAndMenu(t *testing.T) {
	session := connect(t, startDaemon(t))

	_, res := call[ScreenOutput](t, session, "devmenu_screen", map[string]any{
		"action": "create", "id": "main", "manifest_url": "exp://main",
	})
	require.False(t, res.IsError, errorText(res))

	list, res := call[ScreenOutput](t, session, "devmenu_screen", map[string]any{"action": "list"})
	require.False(t, res.IsError, errorText(res))
	require.Len(t, list.Screens, 1)
	assert.Equal(t, "main", list.Screens[0].ID)
	assert.Equal(t, "exp://main", list.Screens[0].ManifestURL)
	assert.True(t, list.Screens[0].Flags.DevSupport)

	_, res = call[MenuOutput](t, session, "devmenu_menu", map[string]any{"action": "show"})
	require.False(t, res.IsError, errorText(res))

	require.Eventually(t, func() bool {
		status, res := call[StatusOutput](t, session, "devmenu_status", map[string]any{})
		return !res.IsError && status.State == "visible" && status.Owner == "main"
	}, 2*time.Second, 5*time.Millisecond)

	status, res := call[StatusOutput](t, session, "devmenu_status", map[string]any{})
	require.False(t, res.IsError, errorText(res))
	assert.Positive(t, status.LoopTasks)

	shake, res := call[ShakeOutput](t, session, "devmenu_shake", map[string]any{})
	require.False(t, res.IsError, errorText(res))
	assert.Equal(t, int64(1), shake.Triggered)

	require.Eventually(t, func() bool {
		status, res := call[StatusOutput](t, session, "devmenu_status", map[string]any{})
		return !res.IsError && status.State == "hidden"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTools_ItemsInPresentationOrder(t *testing.T) {
	session := connect(t, startDaemon(t))

	_, res := call[ScreenOutput](t, session, "devmenu_screen", map[string]any{"action": "create", "id": "main"})
	require.False(t, res.IsError, errorText(res))

	items, res := call[ItemsOutput](t, session, "devmenu_items", map[string]any{})
	require.False(t, res.IsError, errorText(res))
	require.Equal(t, 4, items.Count)

	var keys []string
	for _, e := range items.Items {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{menu.KeyHMR, menu.KeyRemoteDebug, menu.KeyPerfMonitor, menu.KeyInspector}, keys)

	sel, res := call[SelectOutput](t, session, "devmenu_select", map[string]any{"key": menu.KeyHMR})
	require.False(t, res.IsError, errorText(res))
	assert.True(t, sel.Selected)

	_, res = call[SelectOutput](t, session, "devmenu_select", map[string]any{"key": "dev-nope"})
	assert.True(t, res.IsError)
	assert.Contains(t, errorText(res), "not_found")
}

func TestTools_SelectReload(t *testing.T) {
	session := connect(t, startDaemon(t))

	_, res := call[ScreenOutput](t, session, "devmenu_screen", map[string]any{
		"action": "create", "id": "main",
		"flags": map[string]any{
			"attached": true, "internal": true, "dev_support": true,
			"js_dev_mode": false, "fast_refresh": true,
		},
	})
	require.False(t, res.IsError, errorText(res))

	sel, res := call[SelectOutput](t, session, "devmenu_select", map[string]any{"key": menu.KeyReload})
	require.False(t, res.IsError, errorText(res))
	assert.True(t, sel.Selected)

	list, res := call[ScreenOutput](t, session, "devmenu_screen", map[string]any{"action": "list"})
	require.False(t, res.IsError, errorText(res))
	require.Len(t, list.Screens, 1)
	assert.False(t, list.Screens[0].Flags.FastRefresh)
	assert.Contains(t, list.Screens[0].Actions, devsupport.ActionReloadManifest)
	assert.Len(t, list.Screens[0].Notices, 1)
}

func TestTools_Errors(t *testing.T) {
	session := connect(t, startDaemon(t))

	_, res := call[MenuOutput](t, session, "devmenu_menu", map[string]any{"action": "spin"})
	assert.True(t, res.IsError)
	assert.Contains(t, errorText(res), "unknown action")

	_, res = call[ScreenOutput](t, session, "devmenu_screen", map[string]any{"action": "focus"})
	assert.True(t, res.IsError)
	assert.Contains(t, errorText(res), "id required")

	_, res = call[ScreenOutput](t, session, "devmenu_screen", map[string]any{"action": "settings", "id": "main"})
	assert.True(t, res.IsError)
	assert.Contains(t, errorText(res), "flags required")
}

func TestTools_DaemonUnreachable(t *testing.T) {
	session := connect(t, filepath.Join(t.TempDir(), "missing.sock"))

	_, res := call[StatusOutput](t, session, "devmenu_status", map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, errorText(res), "not reachable")
}
