package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
)

// ConfigFileName is the name of the devmenu configuration file.
const ConfigFileName = ".devmenu.kdl"

// Load loads configuration for dir. It looks for .devmenu.kdl in the
// directory and its parents and returns the file it used, or "" when no
// file was found and defaults apply.
func Load(dir string) (*Config, string, error) {
	path := FindConfigFile(dir)
	if path == "" {
		cfg := DefaultConfig()
		return cfg, "", cfg.Validate()
	}
	cfg, err := LoadFile(path)
	return cfg, path, err
}

// FindConfigFile searches for .devmenu.kdl starting from dir and walking up.
func FindConfigFile(dir string) string {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(absDir, ConfigFileName)
		if info, err := os.Stat(configPath); err == nil && !info.IsDir() {
			return configPath
		}

		parent := filepath.Dir(absDir)
		if parent == absDir {
			break
		}
		absDir = parent
	}

	return ""
}

// LoadFile loads configuration from a specific file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses KDL configuration data over the defaults. Blocks and fields
// missing from data keep their default values.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(string(data)) != "" {
		if err := kdl.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes a default configuration file with documentation.
func WriteDefault(path string) error {
	defaultKDL := `// devmenu configuration

// Overlay fade and scale animation
animation {
    delay-ms 100     // Pause before the animation starts
    duration-ms 200  // Fade/scale duration
    frame-ms 16      // Animation tick
}

// Close handshake with the overlay UI
close {
    ack-timeout-ms 500  // Detach anyway if the UI does not acknowledge
}

// Shake gesture, fed by SENSOR samples on the control socket
shake {
    enabled true
    threshold 1.33       // Multiple of standard gravity
    min-shakes 1
    window-ms 3000
    min-interval-ms 20
}

// Terminal hotkey for "devmenu serve"
hotkey {
    enabled true
    key "ctrl+o"
}

// WebSocket endpoint for the overlay UI
bridge {
    listen "127.0.0.1:19190"
    path "/bridge"
    write-timeout-ms 5000
}

// Control socket for "devmenu ctl" and "devmenu mcp"
control {
    // socket "/tmp/devmenu.sock"
}

// Persistent settings (.db/.sqlite = SQLite, other = JSON, empty = memory)
settings {
    // path ".devmenu/settings.db"
}

// Screen created at startup
task {
    // screen "main"
    // manifest "app.json"
}
`
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultKDL), 0644)
}
