//go:build unix

package daemon

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/devmenu/internal/bridge"
	"github.com/standardbeagle/devmenu/internal/devmenu"
	"github.com/standardbeagle/devmenu/internal/devsupport"
	"github.com/standardbeagle/devmenu/internal/gesture"
	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/menu"
	"github.com/standardbeagle/devmenu/internal/overlay"
	"github.com/standardbeagle/devmenu/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

type testDaemon struct {
	d      *Daemon
	coord  *devmenu.Coordinator
	host   *host.Memory
	shake  *gesture.ShakeDetector
	client *Client
}

func startDaemon(t *testing.T) *testDaemon {
	t.Helper()

	mem := host.NewMemory(nil)
	shake := gesture.NewShakeDetector(gesture.ShakeConfig{MinShakes: 1})
	coord := devmenu.New(devmenu.Options{
		Runtime:       mem,
		Lifecycle:     mem,
		Triggers:      []gesture.Trigger{shake},
		Timings:       overlay.Timings{Delay: time.Millisecond, Duration: 5 * time.Millisecond},
		FrameInterval: 2 * time.Millisecond,
	})
	require.NoError(t, coord.Start(context.Background()))

	cfg := DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "d.sock")
	d := New(cfg, Backend{Coordinator: coord, Host: mem, Shake: shake})
	require.NoError(t, d.Start())

	client := NewClient(WithSocketPath(cfg.SocketPath), WithTimeout(5*time.Second))
	require.NoError(t, client.Connect())

	t.Cleanup(func() {
		client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, d.Stop(ctx))
		coord.Stop()
	})

	return &testDaemon{d: d, coord: coord, host: mem, shake: shake, client: client}
}

func (td *testDaemon) waitState(t *testing.T, want overlay.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		status, err := td.client.MenuStatus()
		return err == nil && status.Overlay == want
	}, waitFor, 5*tick)
}

func requireCode(t *testing.T, err error, code protocol.ErrorCode) {
	t.Helper()
	require.ErrorIs(t, err, ErrServerError)
	assert.Contains(t, err.Error(), "["+string(code)+"]")
}

func TestDaemon_PingInfo(t *testing.T) {
	td := startDaemon(t)

	require.NoError(t, td.client.Ping())

	info, err := td.client.Info()
	require.NoError(t, err)
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, int64(1), info.ClientCount)
	assert.True(t, info.ShakeEnabled)
	assert.Zero(t, info.Screens)
}

func TestDaemon_InfoReportsBridge(t *testing.T) {
	mem := host.NewMemory(nil)
	coord := devmenu.New(devmenu.Options{Runtime: mem, Lifecycle: mem})
	require.NoError(t, coord.Start(context.Background()))
	defer coord.Stop()

	srv := bridge.NewServer(coord, bridge.Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer srv.Shutdown()

	cfg := DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "d.sock")
	d := New(cfg, Backend{Coordinator: coord, Host: mem, Bridge: srv})
	require.NoError(t, d.Start())
	defer d.Stop(context.Background())

	client := NewClient(WithSocketPath(cfg.SocketPath))
	require.NoError(t, client.Connect())
	defer client.Close()

	ui, err := bridge.Dial(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer ui.Close()
	require.Eventually(t, func() bool { return srv.ClientCount() == 1 }, waitFor, tick)

	_, _ = ui.ListItems(context.Background())

	info, err := client.Info()
	require.NoError(t, err)
	require.NotNil(t, info.Bridge)
	assert.Equal(t, 1, info.Bridge.Clients)
	assert.Equal(t, int64(1), info.Bridge.Requests)
	assert.Zero(t, info.Bridge.Acks)
}

func TestDaemon_InfoWithoutBridge(t *testing.T) {
	td := startDaemon(t)

	info, err := td.client.Info()
	require.NoError(t, err)
	assert.Nil(t, info.Bridge)
}

func TestDaemon_ScreenLifecycle(t *testing.T) {
	td := startDaemon(t)
	c := td.client

	require.NoError(t, c.ScreenCreate("main", protocol.ScreenCreateConfig{ManifestURL: "exp://main"}))
	requireCode(t, c.ScreenCreate("main", protocol.ScreenCreateConfig{}), protocol.ErrAlreadyExists)

	require.NoError(t, c.ScreenCreate("second", protocol.ScreenCreateConfig{
		Flags: &protocol.ScreenFlags{Attached: true},
	}))

	screens, err := c.ScreenList()
	require.NoError(t, err)
	require.Len(t, screens, 2)

	byID := make(map[host.ScreenID]ScreenInfo)
	for _, s := range screens {
		byID[s.ID] = s
	}
	assert.Equal(t, "exp://main", byID["main"].Task.ManifestURL)
	assert.Equal(t, devsupport.DevelopmentFlags(), byID["main"].Flags)
	assert.True(t, byID["second"].Focused)
	assert.False(t, byID["main"].Focused)
	assert.Equal(t, devsupport.Flags{Attached: true}, byID["second"].Flags)

	require.NoError(t, c.ScreenFocus("main"))
	current, ok := td.host.CurrentScreen()
	require.True(t, ok)
	assert.Equal(t, host.ScreenID("main"), current)

	require.NoError(t, c.ScreenDestroy("second"))
	requireCode(t, c.ScreenDestroy("second"), protocol.ErrNotFound)
	requireCode(t, c.ScreenFocus("ghost"), protocol.ErrNotFound)

	screens, err = c.ScreenList()
	require.NoError(t, err)
	assert.Len(t, screens, 1)
}

func TestDaemon_MenuShowHideToggle(t *testing.T) {
	td := startDaemon(t)
	c := td.client
	require.NoError(t, c.ScreenCreate("main", protocol.ScreenCreateConfig{}))

	require.NoError(t, c.MenuShow(""))
	td.waitState(t, overlay.Status{State: overlay.StateVisible, Owner: "main"})

	require.NoError(t, c.MenuHide("main"))
	td.waitState(t, overlay.Status{State: overlay.StateHidden})

	require.NoError(t, c.MenuToggle("main"))
	td.waitState(t, overlay.Status{State: overlay.StateVisible, Owner: "main"})

	require.NoError(t, c.Shake())
	td.waitState(t, overlay.Status{State: overlay.StateHidden})

	requireCode(t, c.MenuShow("ghost"), protocol.ErrNotFound)

	status, err := c.MenuStatus()
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, int64(1), status.Triggered)
	assert.Equal(t, []host.ScreenID{"main"}, status.Screens)
}

func TestDaemon_DestroyReleasesOverlay(t *testing.T) {
	td := startDaemon(t)
	c := td.client
	require.NoError(t, c.ScreenCreate("main", protocol.ScreenCreateConfig{}))

	require.NoError(t, c.MenuShow("main"))
	td.waitState(t, overlay.Status{State: overlay.StateVisible, Owner: "main"})

	require.NoError(t, c.ScreenDestroy("main"))
	td.waitState(t, overlay.Status{State: overlay.StateHidden})

	status, err := c.MenuStatus()
	require.NoError(t, err)
	assert.False(t, status.View.Attached())
	assert.Equal(t, int64(1), status.Registry.Removed)
}

func TestDaemon_ItemsAndSelect(t *testing.T) {
	td := startDaemon(t)
	c := td.client

	items, err := c.MenuItems()
	require.NoError(t, err)
	assert.Zero(t, items.Len())

	require.NoError(t, c.ScreenCreate("main", protocol.ScreenCreateConfig{}))

	items, err = c.MenuItems()
	require.NoError(t, err)
	assert.Equal(t, []string{menu.KeyInspector, menu.KeyRemoteDebug, menu.KeyHMR, menu.KeyPerfMonitor}, items.Keys())

	require.NoError(t, c.MenuSelect(menu.KeyHMR))
	items, err = c.MenuItems()
	require.NoError(t, err)
	hmr, ok := items.Get(menu.KeyHMR)
	require.True(t, ok)
	assert.Equal(t, menu.LabelHMRDisable, hmr.Label)

	requireCode(t, c.MenuSelect("dev-nope"), protocol.ErrNotFound)
}

func TestDaemon_SelectReloadDisablesFastRefresh(t *testing.T) {
	td := startDaemon(t)
	c := td.client
	require.NoError(t, c.ScreenCreate("main", protocol.ScreenCreateConfig{}))

	flags := devsupport.DevelopmentFlags()
	flags.JSDevMode = false
	flags.FastRefresh = true
	require.NoError(t, c.ScreenSettings("main", flags))

	items, err := c.MenuItems()
	require.NoError(t, err)
	_, listed := items.Get(menu.KeyReload)
	assert.False(t, listed, "reload is a button, not a listed item")

	require.NoError(t, c.MenuSelect(menu.KeyReload))

	screens, err := c.ScreenList()
	require.NoError(t, err)
	require.Len(t, screens, 1)
	assert.False(t, screens[0].Flags.FastRefresh)
	assert.Contains(t, screens[0].Actions, devsupport.ActionReloadManifest)
	assert.Equal(t, []string{menu.NoticeFastRefreshDisabled}, screens[0].Notices)
}

func TestDaemon_ScreenSettings(t *testing.T) {
	td := startDaemon(t)
	c := td.client
	require.NoError(t, c.ScreenCreate("main", protocol.ScreenCreateConfig{}))

	require.NoError(t, c.ScreenSettings("main", devsupport.Flags{Attached: true}))

	items, err := c.MenuItems()
	require.NoError(t, err)
	remote, ok := items.Get(menu.KeyRemoteDebug)
	require.True(t, ok)
	assert.False(t, remote.IsEnabled)
	assert.Equal(t, menu.DetailRemoteDebugUnavailable, remote.Detail)

	requireCode(t, c.ScreenSettings("ghost", devsupport.Flags{}), protocol.ErrNotFound)
}

func TestDaemon_SensorDetectsShake(t *testing.T) {
	td := startDaemon(t)
	c := td.client
	require.NoError(t, c.ScreenCreate("main", protocol.ScreenCreateConfig{}))

	strong := 3 * gesture.StandardGravity
	for i := range 8 {
		x := strong
		if i%2 == 1 {
			x = -strong
		}
		queued, err := c.Sensor(x, 0, gesture.StandardGravity)
		require.NoError(t, err)
		assert.True(t, queued)
		time.Sleep(25 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		info, err := c.Info()
		return err == nil && info.ShakesDetected > 0 && info.Triggered > 0
	}, waitFor, 5*tick)
}

func TestDaemon_SensorWithoutDetector(t *testing.T) {
	mem := host.NewMemory(nil)
	coord := devmenu.New(devmenu.Options{Runtime: mem, Lifecycle: mem})
	require.NoError(t, coord.Start(context.Background()))
	defer coord.Stop()

	cfg := DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "d.sock")
	d := New(cfg, Backend{Coordinator: coord, Host: mem})
	require.NoError(t, d.Start())
	defer d.Stop(context.Background())

	client := NewClient(WithSocketPath(cfg.SocketPath))
	require.NoError(t, client.Connect())
	defer client.Close()

	_, err := client.Sensor(1, 2, 3)
	requireCode(t, err, protocol.ErrInvalidState)
}

func TestDaemon_InvalidCommands(t *testing.T) {
	td := startDaemon(t)
	c := td.client

	_, err := c.sendOK(&protocol.Command{Verb: protocol.VerbSensor, Args: []string{"1", "x", "3"}})
	requireCode(t, err, protocol.ErrInvalidArgs)

	_, err = c.sendOK(&protocol.Command{Verb: protocol.VerbMenu})
	requireCode(t, err, protocol.ErrInvalidArgs)

	_, err = c.sendOK(&protocol.Command{Verb: protocol.VerbScreen, SubVerb: protocol.SubVerbCreate})
	requireCode(t, err, protocol.ErrInvalidArgs)

	_, err = c.sendOK(&protocol.Command{Verb: "PROC", SubVerb: "LIST"})
	requireCode(t, err, protocol.ErrInvalidCommand)

	// The connection survives bad commands.
	require.NoError(t, c.Ping())
}

func TestDaemon_Shutdown(t *testing.T) {
	td := startDaemon(t)

	require.NoError(t, td.client.Shutdown())

	select {
	case <-td.d.Done():
	case <-time.After(waitFor):
		t.Fatal("daemon did not shut down")
	}

	require.Eventually(t, func() bool { return !IsRunning(td.d.sockMgr.Path()) }, waitFor, 5*tick)

	err := td.client.Ping()
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotConnected))
}

func TestDaemon_SecondDaemonRefused(t *testing.T) {
	td := startDaemon(t)

	other := New(Config{SocketPath: td.d.sockMgr.Path()}, Backend{Coordinator: td.coord, Host: td.host})
	err := other.Start()
	require.ErrorIs(t, err, ErrDaemonRunning)
}
