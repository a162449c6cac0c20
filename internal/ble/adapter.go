// Package ble drives Godox LED fixtures over Bluetooth Low Energy. It
// handles connection management, command transmission and last-known
// fixture state.
package ble

import (
	"context"
	"errors"
)

// Write characteristics seen on Godox LED fixtures. Different units expose
// different UUIDs, so the characteristic is configured per fixture.
const (
	WriteCharUUID1 = "dad0215c-9754-4264-9174-4736e23ef493"
	WriteCharUUID2 = "1c466d7c-6b01-4943-9e9f-cd65b6d2b675"
)

var (
	// ErrConnectionTimeout is returned when a link could not be established
	// within the connect timeout.
	ErrConnectionTimeout = errors.New("ble: connection timed out")
	// ErrConnection is returned for transport failures during connect,
	// disconnect or write.
	ErrConnection = errors.New("ble: connection error")
	// ErrDeviceClosed is returned by commands on a closed Device.
	ErrDeviceClosed = errors.New("ble: device closed")
)

// Characteristic represents a writable BLE GATT characteristic.
type Characteristic interface {
	// Write sends data and waits for the peripheral's write response.
	Write(data []byte) error
}

// Peripheral is a BLE device seen while scanning.
type Peripheral struct {
	Name string
	MAC  string
	RSSI int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID in any service.
	DiscoverCharacteristic(charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the link drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter. Safe to call more than once.
	Enable() error
	// Scan reports advertising peripherals until ctx is done.
	Scan(ctx context.Context) ([]Peripheral, error)
	// Connect establishes a connection to the peripheral at address.
	Connect(ctx context.Context, address string) (Connection, error)
}
