package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var (
	// ErrSocketNotFound is returned when no daemon listens on the socket.
	ErrSocketNotFound = errors.New("socket not found")
	// ErrDaemonRunning is returned when another daemon is already running.
	ErrDaemonRunning = errors.New("daemon already running")
)

// SocketConfig holds configuration for socket management.
type SocketConfig struct {
	// Path is the socket path. If empty, uses default path.
	Path string
	// Mode is the socket file permissions.
	Mode os.FileMode
}

// DefaultSocketPath returns the per-user control socket path.
// Unix socket paths are limited to ~108 bytes, so it stays in the temp dir.
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("devmenu-%d.sock", os.Getuid()))
}

// SocketManager handles the control socket lifecycle: stale socket
// cleanup, the PID file next to the socket and permissions.
type SocketManager struct {
	config   SocketConfig
	listener net.Listener
	pidFile  string
}

// NewSocketManager creates a new socket manager.
func NewSocketManager(config SocketConfig) *SocketManager {
	if config.Path == "" {
		config.Path = DefaultSocketPath()
	}
	if config.Mode == 0 {
		config.Mode = 0600
	}

	return &SocketManager{
		config:  config,
		pidFile: config.Path + ".pid",
	}
}

// Listen creates and binds the Unix domain socket.
func (sm *SocketManager) Listen() (net.Listener, error) {
	if err := sm.checkExisting(); err != nil {
		return nil, err
	}

	// A socket file left by a dead daemon blocks bind.
	if _, err := os.Stat(sm.config.Path); err == nil {
		os.Remove(sm.config.Path)
	}

	listener, err := net.Listen("unix", sm.config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}

	if err := os.Chmod(sm.config.Path, sm.config.Mode); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	if err := os.WriteFile(sm.pidFile, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}

	sm.listener = listener
	return listener, nil
}

// Close closes the socket and removes the socket and PID files.
func (sm *SocketManager) Close() error {
	var errs []error

	if sm.listener != nil {
		if err := sm.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close listener: %w", err))
		}
		sm.listener = nil
	}

	if err := os.Remove(sm.config.Path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove socket file: %w", err))
	}
	if err := os.Remove(sm.pidFile); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove PID file: %w", err))
	}

	return errors.Join(errs...)
}

// Path returns the socket path.
func (sm *SocketManager) Path() string {
	return sm.config.Path
}

// checkExisting fails when a live daemon owns the socket and clears a
// stale PID file otherwise.
func (sm *SocketManager) checkExisting() error {
	data, err := os.ReadFile(sm.pidFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		os.Remove(sm.pidFile)
		return nil
	}

	if isProcessRunning(pid) && IsRunning(sm.config.Path) {
		return ErrDaemonRunning
	}

	os.Remove(sm.pidFile)
	return nil
}

// Connect connects to a running daemon.
func Connect(path string, timeout time.Duration) (net.Conn, error) {
	if path == "" {
		path = DefaultSocketPath()
	}

	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) || isConnRefused(err) {
			return nil, fmt.Errorf("%w: %s", ErrSocketNotFound, path)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return conn, nil
}

// IsRunning reports whether a daemon answers on the socket path.
func IsRunning(path string) bool {
	if path == "" {
		path = DefaultSocketPath()
	}

	conn, err := net.DialTimeout("unix", path, 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
