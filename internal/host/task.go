package host

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestURLKey is the manifest field used as the task's URL when the task
// file does not set one explicitly.
const ManifestURLKey = "manifestUrl"

// Task is the manifest/task context rendered by the overlay for a screen.
type Task struct {
	ManifestURL string         `json:"manifestUrl"`
	Manifest    map[string]any `json:"manifest,omitempty"`
}

// LoadTask reads a task manifest from a JSON or YAML file.
// The manifest URL defaults to the manifest's own "manifestUrl" field and
// finally to a file:// URL of the manifest path.
func LoadTask(path string) (Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Task{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return Task{}, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &manifest); err != nil {
			return Task{}, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	}

	task := Task{Manifest: manifest}
	if url, ok := manifest[ManifestURLKey].(string); ok {
		task.ManifestURL = url
	}
	if task.ManifestURL == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		task.ManifestURL = "file://" + filepath.ToSlash(abs)
	}
	return task, nil
}

// ParseTask decodes a task from its JSON wire form.
func ParseTask(data []byte) (Task, error) {
	var task Task
	if len(data) == 0 {
		return task, nil
	}
	if err := json.Unmarshal(data, &task); err != nil {
		return Task{}, fmt.Errorf("invalid task: %w", err)
	}
	return task, nil
}
