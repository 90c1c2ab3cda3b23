// Package config contains configuration types for devmenu.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/standardbeagle/devmenu/internal/bridge"
	"github.com/standardbeagle/devmenu/internal/gesture"
	"github.com/standardbeagle/devmenu/internal/overlay"
	"github.com/standardbeagle/devmenu/internal/uiloop"
)

// Defaults not owned by another package.
const (
	DefaultBridgeListen = "127.0.0.1:19190"
	DefaultBridgePath   = "/bridge"
	DefaultHotkey       = "ctrl+o"
)

// Config represents the devmenu configuration.
type Config struct {
	// Overlay fade/scale animation
	Animation *AnimationConfig `kdl:"animation"`

	// Close handshake with the overlay UI
	Close *CloseConfig `kdl:"close"`

	// Accelerometer shake trigger
	Shake *ShakeConfig `kdl:"shake"`

	// Terminal hotkey trigger
	Hotkey *HotkeyConfig `kdl:"hotkey"`

	// Bridge WebSocket endpoint
	Bridge *BridgeConfig `kdl:"bridge"`

	// Control socket
	Control *ControlConfig `kdl:"control"`

	// Persistent settings store
	Settings *SettingsConfig `kdl:"settings"`

	// Screen created at startup
	Task *TaskConfig `kdl:"task"`
}

// AnimationConfig configures the overlay animation.
type AnimationConfig struct {
	DelayMs    int `kdl:"delay-ms"`
	DurationMs int `kdl:"duration-ms"`
	FrameMs    int `kdl:"frame-ms"`
}

// CloseConfig configures the close handshake.
type CloseConfig struct {
	// AckTimeoutMs bounds the wait for the UI's collapse acknowledgement
	AckTimeoutMs int `kdl:"ack-timeout-ms"`
}

// ShakeConfig configures shake detection.
type ShakeConfig struct {
	Enabled bool `kdl:"enabled"`
	// Threshold is a multiple of standard gravity
	Threshold     float64 `kdl:"threshold"`
	MinShakes     int     `kdl:"min-shakes"`
	WindowMs      int     `kdl:"window-ms"`
	MinIntervalMs int     `kdl:"min-interval-ms"`
}

// HotkeyConfig configures the terminal hotkey.
type HotkeyConfig struct {
	Enabled bool `kdl:"enabled"`
	// Key is "ctrl+<letter>" or a single character
	Key string `kdl:"key"`
}

// BridgeConfig configures the bridge server.
type BridgeConfig struct {
	Listen         string `kdl:"listen"`
	Path           string `kdl:"path"`
	WriteTimeoutMs int    `kdl:"write-timeout-ms"`
}

// ControlConfig configures the control socket.
type ControlConfig struct {
	// Socket is the Unix socket path (empty = per-user default)
	Socket string `kdl:"socket"`
}

// SettingsConfig configures the settings store.
type SettingsConfig struct {
	// Path selects the backend by extension: .db/.sqlite for SQLite,
	// anything else for JSON, empty for memory.
	Path string `kdl:"path"`
}

// TaskConfig describes a screen to create when the server starts.
type TaskConfig struct {
	Screen   string `kdl:"screen"`
	Manifest string `kdl:"manifest"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	shake := gesture.DefaultShakeConfig()
	return &Config{
		Animation: &AnimationConfig{
			DelayMs:    int(overlay.DefaultAnimationDelay / time.Millisecond),
			DurationMs: int(overlay.DefaultAnimationDuration / time.Millisecond),
			FrameMs:    int(uiloop.DefaultFrameInterval / time.Millisecond),
		},
		Close: &CloseConfig{
			AckTimeoutMs: int(bridge.DefaultCloseAckTimeout / time.Millisecond),
		},
		Shake: &ShakeConfig{
			Enabled:       true,
			Threshold:     shake.Threshold / gesture.StandardGravity,
			MinShakes:     shake.MinShakes,
			WindowMs:      int(shake.Window / time.Millisecond),
			MinIntervalMs: int(shake.MinSampleInterval / time.Millisecond),
		},
		Hotkey: &HotkeyConfig{
			Enabled: true,
			Key:     DefaultHotkey,
		},
		Bridge: &BridgeConfig{
			Listen:         DefaultBridgeListen,
			Path:           DefaultBridgePath,
			WriteTimeoutMs: int(bridge.DefaultWriteTimeout / time.Millisecond),
		},
		Control:  &ControlConfig{},
		Settings: &SettingsConfig{},
		Task:     &TaskConfig{},
	}
}

// Validate fills blocks a file cleared and rejects values that cannot work.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.Animation == nil {
		c.Animation = def.Animation
	}
	if c.Close == nil {
		c.Close = def.Close
	}
	if c.Shake == nil {
		c.Shake = def.Shake
	}
	if c.Hotkey == nil {
		c.Hotkey = def.Hotkey
	}
	if c.Bridge == nil {
		c.Bridge = def.Bridge
	}
	if c.Control == nil {
		c.Control = def.Control
	}
	if c.Settings == nil {
		c.Settings = def.Settings
	}
	if c.Task == nil {
		c.Task = def.Task
	}

	if c.Animation.DelayMs < 0 || c.Animation.DurationMs < 0 {
		return fmt.Errorf("animation: negative delay or duration")
	}
	if c.Animation.FrameMs <= 0 {
		c.Animation.FrameMs = def.Animation.FrameMs
	}
	if c.Close.AckTimeoutMs <= 0 {
		c.Close.AckTimeoutMs = def.Close.AckTimeoutMs
	}
	if c.Shake.Threshold <= 0 {
		c.Shake.Threshold = def.Shake.Threshold
	}
	if c.Bridge.Listen == "" {
		c.Bridge.Listen = def.Bridge.Listen
	}
	if c.Bridge.Path == "" {
		c.Bridge.Path = def.Bridge.Path
	} else if !strings.HasPrefix(c.Bridge.Path, "/") {
		c.Bridge.Path = "/" + c.Bridge.Path
	}
	if c.Hotkey.Enabled {
		if _, err := ParseHotkey(c.Hotkey.Key); err != nil {
			return fmt.Errorf("hotkey: %w", err)
		}
	}
	return nil
}

// Timings returns the overlay animation timings.
func (c *Config) Timings() overlay.Timings {
	return overlay.Timings{
		Delay:    time.Duration(c.Animation.DelayMs) * time.Millisecond,
		Duration: time.Duration(c.Animation.DurationMs) * time.Millisecond,
	}
}

// FrameInterval returns the UI loop's animation tick.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Animation.FrameMs) * time.Millisecond
}

// BridgeServerConfig returns the bridge server configuration.
func (c *Config) BridgeServerConfig() bridge.Config {
	return bridge.Config{
		CloseAckTimeout: time.Duration(c.Close.AckTimeoutMs) * time.Millisecond,
		WriteTimeout:    time.Duration(c.Bridge.WriteTimeoutMs) * time.Millisecond,
	}
}

// ShakeDetectorConfig returns the shake detector configuration.
func (c *Config) ShakeDetectorConfig() gesture.ShakeConfig {
	cfg := gesture.DefaultShakeConfig()
	cfg.Threshold = c.Shake.Threshold * gesture.StandardGravity
	if c.Shake.MinShakes > 0 {
		cfg.MinShakes = c.Shake.MinShakes
	}
	if c.Shake.WindowMs > 0 {
		cfg.Window = time.Duration(c.Shake.WindowMs) * time.Millisecond
	}
	if c.Shake.MinIntervalMs >= 0 {
		cfg.MinSampleInterval = time.Duration(c.Shake.MinIntervalMs) * time.Millisecond
	}
	return cfg
}

// ParseHotkey converts "ctrl+<letter>" or a single character to the byte a
// raw-mode terminal delivers for it. An empty key selects the default.
func ParseHotkey(key string) (byte, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return gesture.DefaultHotkey, nil
	}
	if letter, ok := strings.CutPrefix(k, "ctrl+"); ok {
		if len(letter) != 1 || letter[0] < 'a' || letter[0] > 'z' {
			return 0, fmt.Errorf("invalid control key %q", key)
		}
		return letter[0] & 0x1f, nil
	}
	if len(key) == 1 {
		return key[0], nil
	}
	return 0, fmt.Errorf("invalid key %q", key)
}
