package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/godox-ble/internal/ble"
	"github.com/chaz8081/godox-ble/internal/config"
	"github.com/chaz8081/godox-ble/internal/light"
)

// target is one light a command is applied to.
type target struct {
	name string
	mac  string
	uuid string
}

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List nearby Godox lights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := ble.Discover(cmd.Context(), newAdapter(), a.cfg.BLE.NamePrefix, a.cfg.BLE.ScanTimeout)
			if err != nil {
				return err
			}
			printPeripherals(cmd.OutOrStdout(), found)
			return nil
		},
	}
}

func newOnCmd(a *app) *cobra.Command {
	var brightness int
	cmd := &cobra.Command{
		Use:   "on",
		Short: "Turn lights on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			setLevel := cmd.Flags().Changed("brightness")
			return a.run(cmd, func(ctx context.Context, l *light.Light) error {
				if err := l.TurnOn(ctx); err != nil {
					return err
				}
				if setLevel {
					return l.SetBrightness(ctx, brightness)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&brightness, "brightness", "b", 0, "also set brightness (0-255)")
	return cmd
}

func newOffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "off",
		Short: "Turn lights off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, l *light.Light) error {
				return l.TurnOff(ctx)
			})
		},
	}
}

func newBrightnessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "brightness <0-255>",
		Short: "Set light brightness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("brightness must be an integer, got %q", args[0])
			}
			return a.run(cmd, func(ctx context.Context, l *light.Light) error {
				return l.SetBrightness(ctx, level)
			})
		},
	}
}

func newInitConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write a default config file if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path == "" {
				fmt.Fprintf(out, "Config already exists at %s\n", config.DefaultConfigPath())
				return nil
			}
			fmt.Fprintf(out, "Wrote default config to %s\n", path)
			return nil
		},
	}
}

// run applies fn to every selected light in parallel and prints the
// resulting state of each.
func (a *app) run(cmd *cobra.Command, fn func(context.Context, *light.Light) error) error {
	targets, err := selectTargets(a.cfg, a.fixtures, a.mac, a.uuid)
	if err != nil {
		return err
	}

	reg := ble.NewRegistry(newAdapter(), sessionOptions(a.cfg))
	defer reg.Close()

	devOpts := ble.DeviceOptions{MinCommandInterval: a.cfg.BLE.MinCommandInterval}
	states := make([]light.State, len(targets))

	var g errgroup.Group
	for i, tg := range targets {
		g.Go(func() error {
			dev, err := ble.NewDevice(reg, tg.mac, tg.uuid, devOpts)
			if err != nil {
				return fmt.Errorf("%s: %w", tg.name, err)
			}
			defer dev.Close()

			l := light.New(dev)
			err = fn(cmd.Context(), l)
			states[i] = l.State()
			if err != nil {
				return fmt.Errorf("%s: %w", tg.name, err)
			}
			return nil
		})
	}
	err = g.Wait()

	printStates(cmd.OutOrStdout(), targets, states)
	return err
}

// selectTargets resolves the lights a command applies to: an ad hoc
// --mac target, the named fixtures, or every configured fixture.
func selectTargets(cfg *config.Config, names []string, mac, uuid string) ([]target, error) {
	if mac != "" {
		if len(names) > 0 {
			return nil, fmt.Errorf("--mac and --fixture are mutually exclusive")
		}
		if uuid == "" {
			uuid = ble.WriteCharUUID1
		}
		return []target{{name: mac, mac: mac, uuid: uuid}}, nil
	}

	if len(names) == 0 {
		if len(cfg.Fixtures) == 0 {
			return nil, fmt.Errorf("no fixtures configured; add fixtures to the config or use --mac")
		}
		targets := make([]target, 0, len(cfg.Fixtures))
		for _, f := range cfg.Fixtures {
			targets = append(targets, target{name: f.Name, mac: f.MAC, uuid: f.WriteUUID})
		}
		return targets, nil
	}

	targets := make([]target, 0, len(names))
	for _, name := range names {
		f, ok := cfg.Fixture(name)
		if !ok {
			return nil, fmt.Errorf("unknown fixture %q", name)
		}
		targets = append(targets, target{name: f.Name, mac: f.MAC, uuid: f.WriteUUID})
	}
	return targets, nil
}

func printPeripherals(w io.Writer, found []ble.Peripheral) {
	if len(found) == 0 {
		fmt.Fprintln(w, "No lights found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI")
	for _, p := range found {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", p.Name, p.MAC, p.RSSI)
	}
	tw.Flush()
}

func printStates(w io.Writer, targets []target, states []light.State) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIXTURE\tPOWER\tBRIGHTNESS")
	for i, tg := range targets {
		st := states[i]
		power := "unknown"
		if st.Known {
			power = "off"
			if st.On {
				power = "on"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", tg.name, power, st.Brightness)
	}
	tw.Flush()
}
