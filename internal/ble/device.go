package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/godox-ble/internal/ble/protocol"
)

// Power is the last power state the Device successfully set.
type Power int32

const (
	PowerUnknown Power = iota
	PowerOn
	PowerOff
)

func (p Power) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerOff:
		return "off"
	default:
		return "unknown"
	}
}

// DeviceOptions configures a Device.
type DeviceOptions struct {
	// MinCommandInterval spaces consecutive commands; 0 sends immediately.
	MinCommandInterval time.Duration
}

// unknownBrightness marks brightness as never set.
const unknownBrightness = -1

// Device controls one Godox LED fixture. Commands are serialized per
// Device; cached state reflects only commands this Device sent
// successfully and is never read back from the fixture.
type Device struct {
	mac      string
	charUUID string
	registry *Registry
	session  *Session
	limiter  *rate.Limiter

	mu     sync.Mutex // serializes commands
	closed bool

	power      atomic.Int32
	brightness atomic.Int32
}

// NewDevice creates a Device for the fixture at mac that accepts commands
// on the write characteristic charUUID. The Device shares its link with
// any other Device in registry that targets the same address.
func NewDevice(registry *Registry, mac, charUUID string, opts DeviceOptions) (*Device, error) {
	if registry == nil {
		panic("ble: NewDevice called with nil registry")
	}
	if strings.TrimSpace(mac) == "" {
		return nil, fmt.Errorf("ble: device address must not be empty")
	}
	if _, err := bluetooth.ParseUUID(charUUID); err != nil {
		return nil, fmt.Errorf("ble: invalid characteristic UUID %q: %w", charUUID, err)
	}

	session, err := registry.Acquire(mac)
	if err != nil {
		return nil, err
	}
	d := &Device{
		mac:      mac,
		charUUID: strings.ToLower(charUUID),
		registry: registry,
		session:  session,
	}
	if opts.MinCommandInterval > 0 {
		d.limiter = rate.NewLimiter(rate.Every(opts.MinCommandInterval), 1)
	}
	d.power.Store(int32(PowerUnknown))
	d.brightness.Store(unknownBrightness)
	return d, nil
}

// MAC returns the fixture address the Device was created with.
func (d *Device) MAC() string { return d.mac }

// CharacteristicUUID returns the write characteristic UUID.
func (d *Device) CharacteristicUUID() string { return d.charUUID }

// Power returns the cached power state.
func (d *Device) Power() Power { return Power(d.power.Load()) }

// Brightness returns the cached brightness and whether it has been set.
func (d *Device) Brightness() (int, bool) {
	b := d.brightness.Load()
	if b == unknownBrightness {
		return 0, false
	}
	return int(b), true
}

// Connected reports the cached link state.
func (d *Device) Connected() bool { return d.session.Connected() }

// TurnOn switches the fixture on.
func (d *Device) TurnOn(ctx context.Context) error {
	return d.setPower(ctx, true)
}

// TurnOff switches the fixture off.
func (d *Device) TurnOff(ctx context.Context) error {
	return d.setPower(ctx, false)
}

func (d *Device) setPower(ctx context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.send(ctx, protocol.EncodePower(on)); err != nil {
		return err
	}
	if on {
		d.power.Store(int32(PowerOn))
	} else {
		d.power.Store(int32(PowerOff))
	}
	slog.Debug("[BLE] power set", "mac", d.mac, "power", d.Power())
	return nil
}

// SetBrightness sets the fixture brightness to level (0-255). It does not
// change the power state.
func (d *Device) SetBrightness(ctx context.Context, level int) error {
	frame, err := protocol.EncodeBrightness(level)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.send(ctx, frame); err != nil {
		return err
	}
	d.brightness.Store(int32(level))
	slog.Debug("[BLE] brightness set", "mac", d.mac, "level", level)
	return nil
}

// Connect opens the link to the fixture.
func (d *Device) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	return d.session.Connect(ctx)
}

// Disconnect closes the link. It is a no-op when already disconnected.
// The link is shared with other Devices on the same address; their next
// command reconnects.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	return d.session.Disconnect()
}

// Close releases the Device's hold on its link. The link is disconnected
// once no other Device uses it. Further commands return ErrDeviceClosed.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.registry.Release(d.mac)
}

// send checksums raw and writes it (caller must hold mu).
func (d *Device) send(ctx context.Context, raw []byte) error {
	if d.closed {
		return ErrDeviceClosed
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("ble: wait to send to %s: %w", d.mac, err)
		}
	}
	return d.session.Write(ctx, d.charUUID, protocol.AppendChecksum(raw))
}
