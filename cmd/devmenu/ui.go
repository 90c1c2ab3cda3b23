package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/standardbeagle/devmenu/internal/bridge"
)

var (
	uiURL      string
	uiCollapse time.Duration
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Run a headless overlay UI against the bridge",
	Long: `Connect to the overlay bridge as the menu UI and drive it from stdin.

Commands:
  items          list the current screen's items
  select KEY     run an item
  close          close the menu
  reload         reload the current app
  home           go to the host's home screen
  quit           disconnect`,
	Args: cobra.NoArgs,
	RunE: runUI,
}

func init() {
	uiCmd.Flags().StringVar(&uiURL, "url", "", "Bridge URL (default from config)")
	uiCmd.Flags().DurationVar(&uiCollapse, "collapse", 150*time.Millisecond, "Simulated collapse animation before acknowledging a close request")
}

func runUI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cmd, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	url := uiURL
	if url == "" {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		url = "ws://" + cfg.Bridge.Listen + cfg.Bridge.Path
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	client, err := bridge.Dial(dialCtx, url, logger.Named("bridge"))
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	var (
		mu       sync.Mutex
		lastSeen *bridge.RenderEvent
	)
	renderSub := client.SubscribeToRender(func(ev bridge.RenderEvent) {
		mu.Lock()
		defer mu.Unlock()
		if lastSeen != nil && lastSeen.Visible == ev.Visible && lastSeen.Screen == ev.Screen && lastSeen.Attached == ev.Attached {
			return
		}
		lastSeen = &ev
		switch {
		case !ev.Attached:
			fmt.Println("[overlay detached]")
		case ev.Visible:
			fmt.Printf("[menu open on %s: %s]\n", ev.Screen, ev.Props.Task.ManifestURL)
		default:
			fmt.Println("[menu hidden]")
		}
	})
	defer renderSub.Remove()

	closeSub := client.SubscribeToCloseRequests(func(ctx context.Context) {
		select {
		case <-time.After(uiCollapse):
		case <-ctx.Done():
		}
	})
	defer closeSub.Remove()

	if finished, err := client.IsOnboardingFinished(ctx); err == nil && !finished {
		fmt.Println("Welcome to the dev menu. Shake the device or press the hotkey to open it.")
		if _, err := client.SetOnboardingFinished(ctx, true); err != nil {
			logger.Warn("failed to store onboarding flag", zap.Error(err))
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.Done():
			return fmt.Errorf("bridge connection closed")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := uiCommand(ctx, client, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// uiCommand runs one REPL line. It reports whether the UI should exit.
func uiCommand(ctx context.Context, client *bridge.Client, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch fields[0] {
	case "items":
		items, err := client.ListItems(callCtx)
		if err != nil {
			return false, err
		}
		printItems(items)
	case "select":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: select KEY")
		}
		return false, client.Select(callCtx, fields[1])
	case "close":
		return false, client.CloseMenu(callCtx)
	case "reload":
		return false, client.ReloadApp(callCtx)
	case "home":
		return false, client.GoHome(callCtx)
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q (items, select, close, reload, home, quit)", fields[0])
	}
	return false, nil
}
