package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/devmenu/internal/daemon"
	"github.com/standardbeagle/devmenu/internal/devsupport"
	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/menu"
	"github.com/standardbeagle/devmenu/internal/protocol"
)

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Send commands to a running devmenu server",
	Long: `Send commands over the control socket of "devmenu serve".

Examples:
  devmenu ctl screen create main --manifest app.yaml
  devmenu ctl menu toggle
  devmenu ctl menu items
  devmenu ctl menu select dev-hmr
  devmenu ctl sensor 0.4 -14.2 9.8`,
}

var ctlTimeout time.Duration

// withClient connects to the daemon, runs fn and closes the connection.
func withClient(cmd *cobra.Command, fn func(*daemon.Client) error) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		cfg = nil
	}
	client := daemon.NewClient(
		daemon.WithSocketPath(socketPath(cmd, cfg)),
		daemon.WithTimeout(ctlTimeout),
	)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("devmenu server not running: %w", err)
	}
	defer client.Close()
	return fn(client)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	ctlCmd.PersistentFlags().DurationVar(&ctlTimeout, "timeout", 15*time.Second, "Round-trip timeout")

	ctlCmd.AddCommand(
		&cobra.Command{
			Use:   "ping",
			Short: "Check that the server answers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *daemon.Client) error {
					start := time.Now()
					if err := c.Ping(); err != nil {
						return err
					}
					fmt.Printf("pong (%s)\n", time.Since(start).Round(time.Microsecond))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "info",
			Short: "Show server information",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *daemon.Client) error {
					info, err := c.Info()
					if err != nil {
						return err
					}
					return printJSON(info)
				})
			},
		},
		&cobra.Command{
			Use:   "shutdown",
			Short: "Stop the server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *daemon.Client) error { return c.Shutdown() })
			},
		},
		&cobra.Command{
			Use:   "shake",
			Short: "Toggle the menu as a shake gesture does",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *daemon.Client) error { return c.Shake() })
			},
		},
		&cobra.Command{
			Use:   "sensor X Y Z",
			Short: "Feed one accelerometer sample (m/s²) to the shake detector",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				var v [3]float64
				for i, arg := range args {
					f, err := strconv.ParseFloat(arg, 64)
					if err != nil {
						return fmt.Errorf("invalid sample value %q: %w", arg, err)
					}
					v[i] = f
				}
				return withClient(cmd, func(c *daemon.Client) error {
					queued, err := c.Sensor(v[0], v[1], v[2])
					if err != nil {
						return err
					}
					if !queued {
						fmt.Println("dropped")
					}
					return nil
				})
			},
		},
		newScreenCmd(),
		newMenuCmd(),
	)
}

func newScreenCmd() *cobra.Command {
	screenCmd := &cobra.Command{
		Use:   "screen",
		Short: "Manage host screens",
	}

	var (
		manifestPath string
		manifestURL  string
		noDev        bool
		denyOverlay  bool
	)
	createCmd := &cobra.Command{
		Use:   "create ID",
		Short: "Create a screen and bring it to the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg protocol.ScreenCreateConfig
			if manifestPath != "" {
				task, err := host.LoadTask(manifestPath)
				if err != nil {
					return err
				}
				cfg.ManifestURL = task.ManifestURL
				cfg.Manifest = task.Manifest
			}
			if manifestURL != "" {
				cfg.ManifestURL = manifestURL
			}
			if noDev {
				flags := protocol.ScreenFlags{Attached: true}
				cfg.Flags = &flags
			}
			if denyOverlay {
				deny := false
				cfg.OverlayPermission = &deny
				cfg.GrantOnRequest = &deny
			}
			return withClient(cmd, func(c *daemon.Client) error {
				return c.ScreenCreate(host.ScreenID(args[0]), cfg)
			})
		},
	}
	createCmd.Flags().StringVar(&manifestPath, "manifest", "", "Task manifest file (JSON or YAML)")
	createCmd.Flags().StringVar(&manifestURL, "url", "", "Manifest URL (overrides the manifest's own)")
	createCmd.Flags().BoolVar(&noDev, "production", false, "Start without development support")
	createCmd.Flags().BoolVar(&denyOverlay, "deny-overlay", false, "Deny the draw-over-apps permission")

	var flags devsupport.Flags
	settingsCmd := &cobra.Command{
		Use:   "settings ID",
		Short: "Replace a screen's development flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *daemon.Client) error {
				return c.ScreenSettings(host.ScreenID(args[0]), flags)
			})
		},
	}
	settingsCmd.Flags().BoolVar(&flags.Attached, "attached", true, "Development settings are attached")
	settingsCmd.Flags().BoolVar(&flags.Internal, "internal", true, "Settings expose JS dev mode and fast refresh")
	settingsCmd.Flags().BoolVar(&flags.DevSupport, "dev-support", true, "Development support enabled")
	settingsCmd.Flags().BoolVar(&flags.JSDevMode, "js-dev-mode", true, "Bundle is a development bundle")
	settingsCmd.Flags().BoolVar(&flags.RemoteDebug, "remote-debug", false, "Remote JS debugging on")
	settingsCmd.Flags().BoolVar(&flags.FastRefresh, "fast-refresh", false, "Fast refresh on")
	settingsCmd.Flags().BoolVar(&flags.PerfMonitor, "perf-monitor", false, "Performance monitor on")

	screenCmd.AddCommand(
		createCmd,
		settingsCmd,
		&cobra.Command{
			Use:   "focus ID",
			Short: "Bring a screen to the foreground",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *daemon.Client) error { return c.ScreenFocus(host.ScreenID(args[0])) })
			},
		},
		&cobra.Command{
			Use:   "destroy ID",
			Short: "Destroy a screen",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *daemon.Client) error { return c.ScreenDestroy(host.ScreenID(args[0])) })
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List screens",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *daemon.Client) error {
					screens, err := c.ScreenList()
					if err != nil {
						return err
					}
					return printJSON(screens)
				})
			},
		},
	)
	return screenCmd
}

func newMenuCmd() *cobra.Command {
	menuCmd := &cobra.Command{
		Use:   "menu",
		Short: "Show, hide and inspect the dev menu",
	}

	visibility := func(use, short string, fn func(*daemon.Client, host.ScreenID) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " [ID]",
			Short: short,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var id host.ScreenID
				if len(args) == 1 {
					id = host.ScreenID(args[0])
				}
				return withClient(cmd, func(c *daemon.Client) error { return fn(c, id) })
			},
		}
	}

	menuCmd.AddCommand(
		visibility("show", "Show the menu (default: current screen)", (*daemon.Client).MenuShow),
		visibility("hide", "Hide the menu (default: current screen)", (*daemon.Client).MenuHide),
		visibility("toggle", "Toggle the menu (default: current screen)", (*daemon.Client).MenuToggle),
		&cobra.Command{
			Use:   "status",
			Short: "Show overlay and registry state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *daemon.Client) error {
					status, err := c.MenuStatus()
					if err != nil {
						return err
					}
					return printJSON(status)
				})
			},
		},
		&cobra.Command{
			Use:   "items",
			Short: "List the current screen's menu items",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *daemon.Client) error {
					items, err := c.MenuItems()
					if err != nil {
						return err
					}
					printItems(items)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "select KEY",
			Short: "Select a menu item of the current screen",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *daemon.Client) error { return c.MenuSelect(args[0]) })
			},
		},
	)
	return menuCmd
}

// printItems prints items in presentation order, one per line.
func printItems(items menu.Listing) {
	entries := menu.Presentation(items)
	if len(entries) == 0 {
		fmt.Println("(no items)")
		return
	}
	for _, e := range entries {
		mark := " "
		if !e.Item.IsEnabled {
			mark = "-"
		}
		fmt.Printf("%s %-18s %s\n", mark, e.Key, e.Item.Label)
		if e.Item.Detail != "" {
			fmt.Printf("  %-18s %s\n", "", e.Item.Detail)
		}
	}
}
