package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter wraps tinygo-org/bluetooth. On Linux addresses are MAC
// addresses (BlueZ); on macOS they are CoreBluetooth peripheral UUIDs.
// Writes are acknowledged on every platform; see gatt_write*.go.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*tinyGoConnection // keyed by normalized address
}

// NewTinyGoAdapter creates an Adapter backed by the system default adapter.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*tinyGoConnection),
	}
}

func (a *TinyGoAdapter) Enable() error {
	a.enableOnce.Do(func() {
		if err := a.adapter.Enable(); err != nil {
			a.enableErr = fmt.Errorf("ble: enable adapter: %w", err)
			return
		}

		// tinygo/bluetooth reports peripheral-initiated disconnects through
		// the adapter-level handler with connected=false.
		a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected {
				return
			}
			id := NormalizeAddress(device.Address.String())
			a.mu.Lock()
			conn, ok := a.connections[id]
			if ok {
				delete(a.connections, id)
			}
			a.mu.Unlock()
			if ok {
				conn.fireDisconnect()
			}
		})
	})
	return a.enableErr
}

// scanStopRetry is how often a cancelled scan retries StopScan until the
// scan it races with has actually started.
const scanStopRetry = 50 * time.Millisecond

func (a *TinyGoAdapter) Scan(ctx context.Context) ([]Peripheral, error) {
	if ctx.Err() != nil {
		return nil, nil
	}

	var mu sync.Mutex
	var order []string
	found := make(map[string]*Peripheral)

	err := runScan(ctx, a.adapter.StopScan, func() error {
		return a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			mac := result.Address.String()
			name := result.LocalName()
			mu.Lock()
			defer mu.Unlock()
			if p, ok := found[mac]; ok {
				// The name often arrives in a later scan response.
				if p.Name == "" && name != "" {
					p.Name = name
				}
				p.RSSI = int(result.RSSI)
				return
			}
			order = append(order, mac)
			found[mac] = &Peripheral{Name: name, MAC: mac, RSSI: int(result.RSSI)}
		})
	})

	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	peripherals := make([]Peripheral, 0, len(order))
	for _, mac := range order {
		peripherals = append(peripherals, *found[mac])
	}
	return peripherals, nil
}

// runScan runs the blocking scan and stops it once ctx is done. StopScan
// fails until the scan is running, so a cancel that races with the start
// keeps retrying until the stop is confirmed or scan returns on its own.
func runScan(ctx context.Context, stop func() error, scan func() error) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		for stop() != nil {
			select {
			case <-done:
				return
			case <-time.After(scanStopRetry):
			}
		}
	}()
	err := scan()
	close(done)
	return err
}

func (a *TinyGoAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// tinygo/bluetooth's Connect blocks with its own timeout; the select
	// lets ctx bound how long the caller waits.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// A late success still has to be torn down.
		go func() {
			if result := <-ch; result.err == nil {
				_ = result.device.Disconnect()
			}
		}()
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, result.err)
		}
		conn := &tinyGoConnection{device: result.device, address: address}

		a.mu.Lock()
		a.connections[NormalizeAddress(address)] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	device  bluetooth.Device
	address string

	mu           sync.Mutex
	disconnectCb func()
}

func (c *tinyGoConnection) DiscoverCharacteristic(charUUID string) (Characteristic, error) {
	want, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse characteristic UUID: %w", err)
	}

	// The fixture's service UUID is not fixed, so search every service.
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	for _, svc := range svcs {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", svc.UUID().String(), err)
		}
		for i := range chars {
			if strings.EqualFold(chars[i].UUID().String(), want.String()) {
				return c.newCharacteristic(chars[i], want)
			}
		}
	}
	return nil, fmt.Errorf("ble: characteristic %s not found", charUUID)
}

func (c *tinyGoConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *tinyGoConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}
