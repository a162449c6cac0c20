// Package light adapts a Godox fixture to the on/off/brightness entity
// model used by home automation hosts.
package light

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chaz8081/godox-ble/internal/ble"
)

// DefaultBrightness is reported before any brightness has been set.
const DefaultBrightness = 255

// Controller is the fixture surface a Light forwards to. *ble.Device
// satisfies it.
type Controller interface {
	MAC() string
	Power() ble.Power
	Brightness() (int, bool)
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	SetBrightness(ctx context.Context, level int) error
}

// Compile-time interface satisfaction check.
var _ Controller = (*ble.Device)(nil)

// State is a point-in-time view of a Light for presentation.
type State struct {
	Name       string `json:"name"`
	On         bool   `json:"on"`
	Brightness int    `json:"brightness"`
	Known      bool   `json:"known"` // false until a power command succeeded
}

// Light mirrors one fixture as an entity.
type Light struct {
	ctrl Controller
	name string
}

// New creates a Light backed by ctrl.
// Panics if ctrl is nil (programmer error).
func New(ctrl Controller) *Light {
	if ctrl == nil {
		panic("light: New called with nil controller")
	}
	return &Light{
		ctrl: ctrl,
		name: fmt.Sprintf("Godox %s", ctrl.MAC()),
	}
}

// Name returns the display name of the light.
func (l *Light) Name() string { return l.name }

// IsOn reports whether the last power command turned the light on.
func (l *Light) IsOn() bool { return l.ctrl.Power() == ble.PowerOn }

// Brightness returns the last brightness set, or DefaultBrightness.
func (l *Light) Brightness() int {
	if level, ok := l.ctrl.Brightness(); ok {
		return level
	}
	return DefaultBrightness
}

// State returns the current view of the light.
func (l *Light) State() State {
	return State{
		Name:       l.name,
		On:         l.IsOn(),
		Brightness: l.Brightness(),
		Known:      l.ctrl.Power() != ble.PowerUnknown,
	}
}

// TurnOn turns the light on.
func (l *Light) TurnOn(ctx context.Context) error {
	if err := l.ctrl.TurnOn(ctx); err != nil {
		return fmt.Errorf("light: turn on %s: %w", l.name, err)
	}
	slog.Info("turned on light", "name", l.name)
	return nil
}

// TurnOff turns the light off.
func (l *Light) TurnOff(ctx context.Context) error {
	if err := l.ctrl.TurnOff(ctx); err != nil {
		return fmt.Errorf("light: turn off %s: %w", l.name, err)
	}
	slog.Info("turned off light", "name", l.name)
	return nil
}

// SetBrightness sets the light brightness (0-255).
func (l *Light) SetBrightness(ctx context.Context, level int) error {
	if err := l.ctrl.SetBrightness(ctx, level); err != nil {
		return fmt.Errorf("light: set brightness of %s: %w", l.name, err)
	}
	slog.Info("set brightness of light", "name", l.name, "brightness", level)
	return nil
}
