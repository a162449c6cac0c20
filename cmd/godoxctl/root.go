package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaz8081/godox-ble/internal/ble"
	"github.com/chaz8081/godox-ble/internal/config"
)

// newAdapter returns the BLE adapter used by commands. Replaced in tests.
var newAdapter = func() ble.Adapter { return ble.NewTinyGoAdapter() }

// app carries state shared by subcommands.
type app struct {
	configPath string
	verbose    bool
	fixtures   []string
	mac        string
	uuid       string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "godoxctl",
		Short: "Control Godox LED lights over Bluetooth LE",
		Long: `godoxctl sends power and brightness commands to Godox LED lights.

Lights are addressed by name from the config file (--fixture, repeatable;
default all configured fixtures) or ad hoc with --mac and --uuid.
Several lights are driven in parallel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to config file (default: ~/.config/godox-ble/config.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringArrayVarP(&a.fixtures, "fixture", "f", nil, "configured fixture name (repeatable)")
	flags.StringVar(&a.mac, "mac", "", "address of a fixture not in the config")
	flags.StringVar(&a.uuid, "uuid", ble.WriteCharUUID1, "write characteristic UUID used with --mac")

	root.AddCommand(
		newScanCmd(a),
		newOnCmd(a),
		newOffCmd(a),
		newBrightnessCmd(a),
		newInitConfigCmd(a),
	)
	return root
}

// setup loads configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	a.cfg = cfg

	level := config.ParseLogLevel(cfg.LogLevel)
	if a.verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}

func sessionOptions(cfg *config.Config) ble.SessionOptions {
	opts := ble.DefaultSessionOptions()
	opts.ConnectTimeout = cfg.BLE.ConnectTimeout
	opts.SettleDelay = cfg.BLE.SettleDelay
	opts.ConnectRetries = cfg.BLE.ConnectRetries
	opts.RetryBackoffMax = cfg.BLE.RetryBackoffMax
	return opts
}
