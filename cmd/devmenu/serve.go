package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/standardbeagle/devmenu/internal/bridge"
	"github.com/standardbeagle/devmenu/internal/config"
	"github.com/standardbeagle/devmenu/internal/daemon"
	"github.com/standardbeagle/devmenu/internal/devmenu"
	"github.com/standardbeagle/devmenu/internal/gesture"
	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/protocol"
	"github.com/standardbeagle/devmenu/internal/settings"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dev menu coordinator",
	Long: `Run the dev menu coordinator with an in-memory host.

Serves the overlay bridge over WebSocket and the control socket. Screens are
created with "devmenu ctl screen create" or the task block of the config.
When stdin is a terminal the hotkey (Ctrl+O by default) toggles the menu.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveNoHotkey bool
	serveListen   string
)

func init() {
	serveCmd.Flags().BoolVar(&serveNoHotkey, "no-hotkey", false, "Don't read the hotkey from stdin")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Bridge listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Bridge.Listen = serveListen
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	fd := int(os.Stdin.Fd())
	useHotkey := cfg.Hotkey.Enabled && !serveNoHotkey && term.IsTerminal(fd)

	if useHotkey {
		state, err := term.MakeRaw(fd)
		if err != nil {
			useHotkey = false
		} else {
			defer term.Restore(fd, state)
		}
	}

	logger, err := newLogger(cmd, useHotkey)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	if cfgPath != "" {
		logger.Info("config loaded", zap.String("path", cfgPath))
	}

	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}
	defer store.Close()

	mem := host.NewMemory(logger.Named("host"))

	var triggers []gesture.Trigger
	var shake *gesture.ShakeDetector
	if cfg.Shake.Enabled {
		shake = gesture.NewShakeDetector(cfg.ShakeDetectorConfig())
		triggers = append(triggers, shake)
	}
	if useHotkey {
		key, err := config.ParseHotkey(cfg.Hotkey.Key)
		if err != nil {
			return err
		}
		in := &interruptReader{r: os.Stdin, interrupt: cancel}
		triggers = append(triggers, gesture.NewHotkeyTrigger(in, key))
		logger.Info("hotkey enabled", zap.String("key", cfg.Hotkey.Key))
	}

	coord := devmenu.New(devmenu.Options{
		Runtime:       mem,
		Lifecycle:     mem,
		Settings:      store,
		Triggers:      triggers,
		Timings:       cfg.Timings(),
		FrameInterval: cfg.FrameInterval(),
		Logger:        logger,
	})

	bridgeCfg := cfg.BridgeServerConfig()
	bridgeCfg.Logger = logger.Named("bridge")
	bridgeSrv := bridge.NewServer(coord, bridgeCfg)
	coord.AttachUI(bridgeSrv)

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dev menu: %w", err)
	}
	defer coord.Stop()

	daemonCfg := daemon.DefaultConfig()
	daemonCfg.SocketPath = socketPath(cmd, cfg)
	daemonCfg.Logger = logger.Named("daemon")
	d := daemon.New(daemonCfg, daemon.Backend{Coordinator: coord, Host: mem, Shake: shake, Bridge: bridgeSrv})
	if err := d.Start(); err != nil {
		return err
	}

	if cfg.Task.Screen != "" {
		if err := createTaskScreen(d, cfg.Task); err != nil {
			logger.Warn("startup screen not created", zap.String("screen", cfg.Task.Screen), zap.Error(err))
		}
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Bridge.Path, bridgeSrv)
	httpSrv := &http.Server{
		Addr:              cfg.Bridge.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("bridge listening", zap.String("url", "ws://"+cfg.Bridge.Listen+cfg.Bridge.Path))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("bridge server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-d.Done():
			logger.Info("shutdown requested over control socket")
			cancel()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		bridgeSrv.Shutdown()
		return errors.Join(httpSrv.Shutdown(shutdownCtx), d.Stop(shutdownCtx))
	})

	if cfgPath != "" {
		w := config.NewWatcher(cfgPath, func(next *config.Config) {
			coord.Overlay().SetTimings(next.Timings())
			logger.Info("config reloaded",
				zap.Duration("delay", next.Timings().Delay),
				zap.Duration("duration", next.Timings().Duration))
		}, logger.Named("config"))
		g.Go(func() error { return w.Run(gctx) })
	}

	logger.Info("devmenu serving",
		zap.String("version", appVersion),
		zap.String("socket", daemonCfg.SocketPath),
		zap.Bool("shake", shake != nil))

	err = g.Wait()
	logger.Info("devmenu stopped")
	return err
}

// createTaskScreen creates the startup screen described by the task block.
func createTaskScreen(d *daemon.Daemon, task *config.TaskConfig) error {
	var cfg protocol.ScreenCreateConfig
	if task.Manifest != "" {
		t, err := host.LoadTask(task.Manifest)
		if err != nil {
			return err
		}
		cfg.ManifestURL = t.ManifestURL
		cfg.Manifest = t.Manifest
	}
	return d.CreateScreen(host.ScreenID(task.Screen), cfg)
}

// interruptReader passes input through and calls interrupt on Ctrl+C,
// which a raw-mode terminal delivers as a byte instead of SIGINT.
type interruptReader struct {
	r         io.Reader
	interrupt func()
}

func (ir *interruptReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	for _, b := range p[:n] {
		if b == 0x03 {
			ir.interrupt()
			break
		}
	}
	return n, err
}
