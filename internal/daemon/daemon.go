// Package daemon serves the devmenu control socket. It plays the host
// runtime for the dev menu: screens are created, focused and destroyed by
// control commands, each with its own in-memory development settings.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/standardbeagle/devmenu/internal/bridge"
	"github.com/standardbeagle/devmenu/internal/devmenu"
	"github.com/standardbeagle/devmenu/internal/devsupport"
	"github.com/standardbeagle/devmenu/internal/gesture"
	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/menu"
	"github.com/standardbeagle/devmenu/internal/protocol"
)

// Version is the daemon version.
const Version = "0.1.0"

var (
	// ErrScreenNotFound is returned for commands naming an unknown screen.
	ErrScreenNotFound = errors.New("screen not found")
	// ErrScreenExists is returned when creating a screen twice.
	ErrScreenExists = errors.New("screen already exists")
	// ErrShakeDisabled is returned for sensor samples when shake detection is off.
	ErrShakeDisabled = errors.New("shake detection disabled")
)

// Config holds configuration for the daemon.
type Config struct {
	// Socket configuration
	SocketPath string

	// Max concurrent clients (0 = unlimited)
	MaxClients int

	// Connection read timeout (0 = no timeout)
	ReadTimeout time.Duration

	// Connection write timeout (0 = no timeout)
	WriteTimeout time.Duration

	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SocketPath:   DefaultSocketPath(),
		MaxClients:   32,
		WriteTimeout: 10 * time.Second,
	}
}

// Backend is what the daemon drives.
type Backend struct {
	Coordinator *devmenu.Coordinator
	Host        *host.Memory

	// Shake receives SENSOR samples. Nil disables the verb.
	Shake *gesture.ShakeDetector

	// Bridge is reported by INFO when set.
	Bridge *bridge.Server
}

type screen struct {
	dev   *devsupport.Memory
	perms *devsupport.StaticPermissions
	ctrl  *menu.Controller
}

// Daemon is the control socket server.
type Daemon struct {
	config Config
	logger *zap.Logger

	coord *devmenu.Coordinator
	host  *host.Memory
	shake  *gesture.ShakeDetector
	bridge *bridge.Server

	screensMu sync.Mutex
	screens   map[host.ScreenID]*screen

	// Socket management
	sockMgr  *SocketManager
	listener net.Listener

	// Client tracking
	clients     sync.Map // clientID -> *Connection
	clientCount atomic.Int64
	nextID      atomic.Int64

	// Lifecycle
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	started    time.Time
	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a new daemon instance.
func New(config Config, backend Backend) *Daemon {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		config:  config,
		logger:  logger,
		coord:   backend.Coordinator,
		host:    backend.Host,
		shake:   backend.Shake,
		bridge:  backend.Bridge,
		screens: make(map[host.ScreenID]*screen),
		sockMgr: NewSocketManager(SocketConfig{Path: config.SocketPath}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start creates the socket and begins accepting connections.
func (d *Daemon) Start() error {
	d.shutdownMu.Lock()
	if d.shutdown {
		d.shutdownMu.Unlock()
		return errors.New("daemon already shutdown")
	}
	d.shutdownMu.Unlock()

	listener, err := d.sockMgr.Listen()
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	d.listener = listener
	d.started = time.Now()

	d.logger.Info("control socket listening", zap.String("path", d.sockMgr.Path()))

	d.wg.Add(1)
	go d.acceptLoop()

	return nil
}

// Stop gracefully shuts down the daemon. Screens stay alive; the
// coordinator is owned by the caller.
func (d *Daemon) Stop(ctx context.Context) error {
	d.shutdownMu.Lock()
	if d.shutdown {
		d.shutdownMu.Unlock()
		return nil
	}
	d.shutdown = true
	d.shutdownMu.Unlock()

	d.cancel()

	var errs []error

	if d.listener != nil {
		d.listener.Close()
	}

	d.clients.Range(func(key, value any) bool {
		value.(*Connection).Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := d.sockMgr.Close(); err != nil {
		errs = append(errs, fmt.Errorf("socket cleanup: %w", err))
	}

	d.logger.Info("control socket stopped")
	return errors.Join(errs...)
}

// Done is closed once the daemon begins shutting down, including through a
// SHUTDOWN command.
func (d *Daemon) Done() <-chan struct{} {
	return d.ctx.Done()
}

// Info returns daemon information.
func (d *Daemon) Info() Info {
	info := Info{
		Version:     Version,
		SocketPath:  d.sockMgr.Path(),
		Uptime:      time.Since(d.started),
		ClientCount: d.clientCount.Load(),
		Screens:     len(d.host.Screens()),
		Triggered:   d.coord.Status().Triggered,
	}
	if d.shake != nil {
		info.ShakeEnabled = true
		info.ShakesDetected = d.shake.Detected()
		info.SamplesDropped = d.shake.Dropped()
	}
	if d.bridge != nil {
		stats := d.bridge.Stats()
		info.Bridge = &stats
	}
	return info
}

// Info holds daemon status information.
type Info struct {
	Version        string        `json:"version"`
	SocketPath     string        `json:"socket_path"`
	Uptime         time.Duration `json:"uptime"`
	ClientCount    int64         `json:"client_count"`
	Screens        int           `json:"screens"`
	Triggered      int64         `json:"triggered"`
	ShakeEnabled   bool          `json:"shake_enabled"`
	ShakesDetected int64         `json:"shakes_detected"`
	SamplesDropped int64         `json:"samples_dropped"`

	Bridge *bridge.ServerStats `json:"bridge,omitempty"`
}

// ScreenInfo is a screen as reported by SCREEN LIST.
type ScreenInfo struct {
	host.ScreenInfo
	Flags devsupport.Flags `json:"flags"`
	// Actions and Notices are what menu selections did on the screen.
	Actions []string `json:"actions,omitempty"`
	Notices []string `json:"notices,omitempty"`
}

// CreateScreen creates a screen, brings it to the foreground and registers
// its menu controller.
func (d *Daemon) CreateScreen(id host.ScreenID, cfg protocol.ScreenCreateConfig) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrScreenNotFound)
	}

	flags := devsupport.DevelopmentFlags()
	if cfg.Flags != nil {
		flags = devsupport.Flags(*cfg.Flags)
	}
	granted, grantOnRequest := true, true
	if cfg.OverlayPermission != nil {
		granted = *cfg.OverlayPermission
	}
	if cfg.GrantOnRequest != nil {
		grantOnRequest = *cfg.GrantOnRequest
	}

	d.screensMu.Lock()
	if _, ok := d.screens[id]; ok {
		d.screensMu.Unlock()
		return fmt.Errorf("%w: %s", ErrScreenExists, id)
	}
	task := host.Task{ManifestURL: cfg.ManifestURL, Manifest: cfg.Manifest}
	s := &screen{
		dev:   devsupport.NewMemory(flags),
		perms: devsupport.NewStaticPermissions(granted, grantOnRequest),
	}
	s.ctrl = menu.NewController(id, task, s.dev, s.perms, d.logger.Named("menu"))
	d.screens[id] = s
	d.screensMu.Unlock()

	d.host.Create(id, task)
	d.coord.ScreenResumed(s.ctrl)
	d.logger.Info("screen created", zap.String("screen", string(id)))
	return nil
}

// FocusScreen brings a screen to the foreground.
func (d *Daemon) FocusScreen(id host.ScreenID) error {
	s, err := d.screen(id)
	if err != nil {
		return err
	}
	if !d.host.Focus(id) {
		return fmt.Errorf("%w: %s", ErrScreenNotFound, id)
	}
	d.coord.ScreenResumed(s.ctrl)
	return nil
}

// DestroyScreen destroys a screen. The overlay leaves it at once if it was
// shown there.
func (d *Daemon) DestroyScreen(id host.ScreenID) error {
	d.screensMu.Lock()
	_, ok := d.screens[id]
	delete(d.screens, id)
	d.screensMu.Unlock()

	if !ok || !d.host.Destroy(id) {
		return fmt.Errorf("%w: %s", ErrScreenNotFound, id)
	}
	d.logger.Info("screen destroyed", zap.String("screen", string(id)))
	return nil
}

// SetScreenFlags replaces a screen's development flags.
func (d *Daemon) SetScreenFlags(id host.ScreenID, flags devsupport.Flags) error {
	s, err := d.screen(id)
	if err != nil {
		return err
	}
	s.dev.SetFlags(flags)
	return nil
}

// Screens lists live screens with their development flags.
func (d *Daemon) Screens() []ScreenInfo {
	infos := d.host.Screens()
	out := make([]ScreenInfo, 0, len(infos))

	d.screensMu.Lock()
	defer d.screensMu.Unlock()
	for _, info := range infos {
		si := ScreenInfo{ScreenInfo: info}
		if s, ok := d.screens[info.ID]; ok {
			si.Flags = s.dev.Flags()
			si.Actions = s.dev.Actions()
			si.Notices = s.dev.Notices()
		}
		out = append(out, si)
	}
	return out
}

// Sensor feeds one accelerometer sample to the shake detector.
// It reports whether the sample was queued.
func (d *Daemon) Sensor(x, y, z float64) (bool, error) {
	if d.shake == nil {
		return false, ErrShakeDisabled
	}
	return d.shake.Submit(gesture.Sample{X: x, Y: y, Z: z, At: time.Now()}), nil
}

func (d *Daemon) screen(id host.ScreenID) (*screen, error) {
	d.screensMu.Lock()
	defer d.screensMu.Unlock()

	s, ok := d.screens[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScreenNotFound, id)
	}
	return s, nil
}

// acceptLoop accepts new client connections.
func (d *Daemon) acceptLoop() {
	defer d.wg.Done()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			d.logger.Warn("accept error", zap.Error(err))
			continue
		}

		if d.config.MaxClients > 0 && d.clientCount.Load() >= int64(d.config.MaxClients) {
			d.logger.Warn("max clients reached, rejecting connection")
			conn.Close()
			continue
		}

		clientID := d.nextID.Add(1)
		clientConn := newConnection(clientID, conn, d)

		d.clients.Store(clientID, clientConn)
		d.clientCount.Add(1)

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer func() {
				d.clients.Delete(clientID)
				d.clientCount.Add(-1)
			}()

			clientConn.Handle(d.ctx)
		}()
	}
}
