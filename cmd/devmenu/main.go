package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/standardbeagle/devmenu/internal/config"
	"github.com/standardbeagle/devmenu/internal/daemon"
)

const (
	appName    = "devmenu"
	appVersion = daemon.Version
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Developer menu overlay coordinator",
	Long: `Devmenu coordinates an in-app developer menu overlay:
  - serve: run the coordinator, the overlay bridge and the control socket
  - ctl: drive screens and the menu over the control socket
  - mcp: MCP server exposing the menu to AI coding assistants
  - ui: headless overlay UI speaking the bridge protocol`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("socket", "", "Control socket path (default from config, then per-user temp path)")
	rootCmd.PersistentFlags().String("config", "", "Config file, or directory to search for "+config.ConfigFileName)
	rootCmd.PersistentFlags().Bool("debug", false, "Development logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ctlCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(initCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// free for command output and the MCP transport. A terminal in raw mode
// needs explicit carriage returns.
func newLogger(cmd *cobra.Command, rawTerminal bool) (*zap.Logger, error) {
	debug, _ := cmd.Root().PersistentFlags().GetBool("debug")

	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.OutputPaths = []string{"stderr"}
	if rawTerminal {
		cfg.EncoderConfig.LineEnding = "\r\n"
	}
	return cfg.Build()
}

// loadConfig loads the --config file, or searches upward from the
// --config directory (default: working directory). The returned path is
// empty when defaults are used.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	target, _ := cmd.Root().PersistentFlags().GetString("config")
	if target == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get working directory: %w", err)
		}
		return config.Load(wd)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, "", fmt.Errorf("config %s: %w", target, err)
	}
	if info.IsDir() {
		return config.Load(target)
	}
	cfg, err := config.LoadFile(target)
	if err != nil {
		return nil, "", err
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}
	return cfg, abs, nil
}

// socketPath resolves the control socket: flag, then config, then default.
func socketPath(cmd *cobra.Command, cfg *config.Config) string {
	if path, _ := cmd.Root().PersistentFlags().GetString("socket"); path != "" {
		return path
	}
	if cfg != nil && cfg.Control.Socket != "" {
		return cfg.Control.Socket
	}
	return daemon.DefaultSocketPath()
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default " + config.ConfigFileName + " in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ConfigFileName
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}
