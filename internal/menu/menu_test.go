package menu

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/devmenu/internal/devsupport"
	"github.com/standardbeagle/devmenu/internal/host"
)

func newTestController(flags devsupport.Flags, perms devsupport.Permissions) (*Controller, *devsupport.Memory) {
	dev := devsupport.NewMemory(flags)
	task := host.Task{ManifestURL: "exp://demo", Manifest: map[string]any{"name": "demo"}}
	return NewController("screen-a", task, dev, perms, nil), dev
}

func TestInitialProps_FreshSessionPerCall(t *testing.T) {
	c, _ := newTestController(devsupport.DevelopmentFlags(), nil)

	first := c.InitialProps()
	second := c.InitialProps()

	assert.Equal(t, "exp://demo", first.Task.ManifestURL)
	assert.NotEmpty(t, first.SessionID)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestListItems_DevelopmentScreen(t *testing.T) {
	c, _ := newTestController(devsupport.DevelopmentFlags(), nil)

	items := c.ListItems()
	assert.Equal(t, []string{KeyInspector, KeyRemoteDebug, KeyHMR, KeyPerfMonitor}, items.Keys())

	hmr, _ := items.Get(KeyHMR)
	assert.Equal(t, Item{Label: LabelHMREnable, IsEnabled: true}, hmr)

	remote, _ := items.Get(KeyRemoteDebug)
	assert.Equal(t, LabelRemoteDebugStart, remote.Label)

	perf, _ := items.Get(KeyPerfMonitor)
	assert.Equal(t, LabelPerfMonitorShow, perf.Label)
}

func TestListItems_NeverOmitsRemoteDebugAndFastRefresh(t *testing.T) {
	cases := map[string]devsupport.Flags{
		"detached":         {},
		"support disabled": {Attached: true, Internal: true},
		"not internal":     {Attached: true, DevSupport: true},
	}

	for name, flags := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestController(flags, nil)
			items := c.ListItems()

			hmr, ok := items.Get(KeyHMR)
			require.True(t, ok)
			assert.False(t, hmr.IsEnabled)
			assert.NotEmpty(t, hmr.Detail)

			if !flags.DevSupport || !flags.Attached {
				remote, ok := items.Get(KeyRemoteDebug)
				require.True(t, ok)
				assert.False(t, remote.IsEnabled)
				assert.NotEmpty(t, remote.Detail)
			}
		})
	}
}

func TestListItems_NilManager(t *testing.T) {
	c := NewController("x", host.Task{}, nil, nil, nil)
	items := c.ListItems()
	_, ok := items.Get(KeyRemoteDebug)
	assert.True(t, ok)
	_, ok = items.Get(KeyHMR)
	assert.True(t, ok)

	c.Select(context.Background(), KeyReload)
}

func TestSelect_HMREnablesWithoutReload(t *testing.T) {
	c, dev := newTestController(devsupport.DevelopmentFlags(), nil)

	c.Select(context.Background(), KeyHMR)

	assert.True(t, dev.Flags().FastRefresh)
	assert.Equal(t, []string{devsupport.ActionFastRefreshOn}, dev.Actions())
	assert.NotContains(t, dev.Actions(), devsupport.ActionReloadJS)
	assert.NotContains(t, dev.Actions(), devsupport.ActionReloadManifest)
}

func TestSelect_ReloadDisablesFastRefreshOutsideDevMode(t *testing.T) {
	flags := devsupport.DevelopmentFlags()
	flags.JSDevMode = false
	flags.FastRefresh = true
	c, dev := newTestController(flags, nil)

	c.Select(context.Background(), KeyReload)

	assert.False(t, dev.Flags().FastRefresh)
	assert.Equal(t, []string{devsupport.ActionNotify, devsupport.ActionReloadManifest}, dev.Actions())
	assert.Equal(t, []string{NoticeFastRefreshDisabled}, dev.Notices())
}

func TestSelect_ReloadKeepsFastRefreshInDevMode(t *testing.T) {
	flags := devsupport.DevelopmentFlags()
	flags.FastRefresh = true
	c, dev := newTestController(flags, nil)

	c.Select(context.Background(), KeyReload)

	assert.True(t, dev.Flags().FastRefresh)
	assert.Equal(t, []string{devsupport.ActionReloadManifest}, dev.Actions())
}

func TestSelect_ReloadFallsBackToJS(t *testing.T) {
	c, dev := newTestController(devsupport.DevelopmentFlags(), nil)
	dev.FailManifestReload(errors.New("offline"))

	c.Select(context.Background(), KeyReload)

	assert.Equal(t, []string{devsupport.ActionReloadJS}, dev.Actions())
}

func TestSelect_RemoteDebugFlipsAndReloads(t *testing.T) {
	c, dev := newTestController(devsupport.DevelopmentFlags(), nil)

	c.Select(context.Background(), KeyRemoteDebug)

	assert.True(t, dev.Flags().RemoteDebug)
	assert.Equal(t, []string{devsupport.ActionReloadJS}, dev.Actions())

	item, _ := c.ListItems().Get(KeyRemoteDebug)
	assert.Equal(t, LabelRemoteDebugStop, item.Label)
}

func TestSelect_Inspector(t *testing.T) {
	c, dev := newTestController(devsupport.DevelopmentFlags(), nil)
	c.Select(context.Background(), KeyInspector)
	assert.Equal(t, []string{devsupport.ActionToggleInspector}, dev.Actions())
}

func TestSelect_PerfMonitorPermission(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		perms := devsupport.NewStaticPermissions(false, false)
		c, dev := newTestController(devsupport.DevelopmentFlags(), perms)

		c.Select(context.Background(), KeyPerfMonitor)

		assert.Equal(t, 1, perms.Requests())
		assert.False(t, dev.Flags().PerfMonitor)
		assert.Empty(t, dev.Actions())
	})

	t.Run("granted on request", func(t *testing.T) {
		perms := devsupport.NewStaticPermissions(false, true)
		c, dev := newTestController(devsupport.DevelopmentFlags(), perms)

		c.Select(context.Background(), KeyPerfMonitor)

		assert.True(t, dev.Flags().PerfMonitor)
	})

	t.Run("disabling skips the request", func(t *testing.T) {
		perms := devsupport.NewStaticPermissions(false, false)
		flags := devsupport.DevelopmentFlags()
		flags.PerfMonitor = true
		c, dev := newTestController(flags, perms)

		c.Select(context.Background(), KeyPerfMonitor)

		assert.Zero(t, perms.Requests())
		assert.False(t, dev.Flags().PerfMonitor)
	})
}

func TestSelect_IgnoresUnknownAndNonInternal(t *testing.T) {
	c, dev := newTestController(devsupport.DevelopmentFlags(), nil)
	c.Select(context.Background(), "dev-nope")
	assert.Empty(t, dev.Actions())

	c, dev = newTestController(devsupport.Flags{Attached: true, DevSupport: true}, nil)
	c.Select(context.Background(), KeyInspector)
	assert.Empty(t, dev.Actions())
}

func TestListing_JSONKeepsOrder(t *testing.T) {
	var l Listing
	l.Set("b", Item{Label: "B", IsEnabled: true})
	l.Set("a", Item{Label: "A", Detail: "why"})
	l.Set("b", Item{Label: "B2"})

	data, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Equal(t, `{"b":{"label":"B2","isEnabled":false},"a":{"label":"A","isEnabled":false,"detail":"why"}}`, string(data))

	var back Listing
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"b", "a"}, back.Keys())
	item, ok := back.Get("a")
	require.True(t, ok)
	assert.Equal(t, "why", item.Detail)

	assert.Error(t, json.Unmarshal([]byte(`[]`), &back))
}

func TestListing_EmptyMarshalsAsObject(t *testing.T) {
	data, err := json.Marshal(Listing{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestPresentation(t *testing.T) {
	var l Listing
	l.Set("custom-z", Item{Label: "Z"})
	l.Set(KeyInspector, Item{})
	l.Set("custom-a", Item{Label: "A"})
	l.Set(KeyHMR, Item{})
	l.Set(KeyReload, Item{})

	var keys []string
	for _, e := range Presentation(l) {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{KeyHMR, KeyReload, KeyInspector, "custom-z", "custom-a"}, keys)
}

func TestIsAction(t *testing.T) {
	for _, key := range []string{KeyReload, KeyRemoteDebug, KeyHMR, KeyInspector, KeyPerfMonitor} {
		assert.True(t, IsAction(key), key)
	}
	assert.False(t, IsAction(KeyLiveReload))
	assert.False(t, IsAction("dev-nope"))
}
