package devsupport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SettingsAttachment(t *testing.T) {
	m := NewMemory(Flags{})
	assert.Nil(t, m.Settings(), "detached manager exposes no settings")

	m.SetFlags(Flags{Attached: true})
	s := m.Settings()
	require.NotNil(t, s)
	_, internal := s.(InternalSettings)
	assert.False(t, internal)

	m.SetFlags(DevelopmentFlags())
	is, ok := m.Settings().(InternalSettings)
	require.True(t, ok)
	assert.True(t, is.JSDevModeEnabled())
	assert.False(t, is.FastRefreshEnabled())

	is.SetFastRefreshEnabled(true)
	is.SetRemoteDebugEnabled(true)
	assert.True(t, m.Flags().FastRefresh)
	assert.True(t, m.Flags().RemoteDebug)
}

func TestMemory_RecordsActions(t *testing.T) {
	m := NewMemory(DevelopmentFlags())

	m.ToggleInspector()
	m.ReloadJS()
	require.NoError(t, m.ReloadFromManifest(context.Background()))
	m.SetFastRefreshClient(false)
	m.SetPerfMonitorEnabled(true)
	m.Notify("hello")

	assert.Equal(t, []string{
		ActionToggleInspector,
		ActionReloadJS,
		ActionReloadManifest,
		ActionFastRefreshOff,
		ActionPerfMonitorOn,
		ActionNotify,
	}, m.Actions())
	assert.Equal(t, []string{"hello"}, m.Notices())
	assert.True(t, m.Settings().PerfMonitorEnabled())
}

func TestMemory_ManifestReloadFailure(t *testing.T) {
	m := NewMemory(DevelopmentFlags())
	boom := errors.New("manifest unreachable")
	m.FailManifestReload(boom)

	err := m.ReloadFromManifest(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, m.Actions())

	m.FailManifestReload(nil)
	require.NoError(t, m.ReloadFromManifest(context.Background()))
}

func TestStaticPermissions(t *testing.T) {
	denied := NewStaticPermissions(false, false)
	assert.False(t, denied.RequestOverlayPermission(context.Background()))
	assert.False(t, denied.CanDrawOverlays())
	assert.Equal(t, 1, denied.Requests())

	granting := NewStaticPermissions(false, true)
	assert.True(t, granting.RequestOverlayPermission(context.Background()))
	assert.True(t, granting.CanDrawOverlays())
}
