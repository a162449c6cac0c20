package ble

import (
	"context"
	"errors"
	"testing"
)

func mustAcquire(t *testing.T, reg *Registry, address string) *Session {
	t.Helper()
	s, err := reg.Acquire(address)
	if err != nil {
		t.Fatalf("Acquire(%q) error = %v", address, err)
	}
	return s
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a4:c1:38:00:b6:0d", "A4:C1:38:00:B6:0D"},
		{" A4:C1:38:2C:CB:00 ", "A4:C1:38:2C:CB:00"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeAddress(tt.in); got != tt.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistryAcquireSharesSession(t *testing.T) {
	reg := NewRegistry(newMockAdapter(nil), zeroDelayOpts())

	a := mustAcquire(t, reg, "a4:c1:38:00:b6:0d")
	b := mustAcquire(t, reg, "A4:C1:38:00:B6:0D")
	c := mustAcquire(t, reg, "A4:C1:38:2C:CB:00")

	if a != b {
		t.Error("same address (different case) returned different sessions")
	}
	if a == c {
		t.Error("different addresses returned the same session")
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
	if a.Address() != "A4:C1:38:00:B6:0D" {
		t.Errorf("Address() = %q, want normalized address", a.Address())
	}
}

func TestRegistryReleaseRefCounts(t *testing.T) {
	adapter := newMockAdapter(nil)
	reg := NewRegistry(adapter, zeroDelayOpts())

	s := mustAcquire(t, reg, testMAC)
	_ = mustAcquire(t, reg, testMAC)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := reg.Release(testMAC); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if !s.Connected() {
		t.Error("session disconnected while still referenced")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}

	if err := reg.Release(testMAC); err != nil {
		t.Fatalf("final Release() error = %v", err)
	}
	if s.Connected() {
		t.Error("session still connected after final release")
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}

	// A new acquire after full release starts a fresh session.
	if fresh := mustAcquire(t, reg, testMAC); fresh == s {
		t.Error("Acquire after final release reused the old session")
	}
}

func TestRegistryReleaseUnknown(t *testing.T) {
	reg := NewRegistry(newMockAdapter(nil), zeroDelayOpts())
	if err := reg.Release("00:00:00:00:00:00"); err != nil {
		t.Errorf("Release(unknown) error = %v", err)
	}
}

func TestRegistryClose(t *testing.T) {
	adapter := newMockAdapter(nil)
	reg := NewRegistry(adapter, zeroDelayOpts())
	ctx := context.Background()

	a := mustAcquire(t, reg, testMAC)
	b := mustAcquire(t, reg, "A4:C1:38:2C:CB:00")
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("a.Connect() error = %v", err)
	}
	if err := b.Connect(ctx); err != nil {
		t.Fatalf("b.Connect() error = %v", err)
	}

	if err := reg.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if a.Connected() || b.Connected() {
		t.Error("sessions still connected after registry Close")
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
}

func TestRegistryCloseRefusesNewLinks(t *testing.T) {
	adapter := newMockAdapter(nil)
	reg := NewRegistry(adapter, zeroDelayOpts())
	ctx := context.Background()

	d, err := NewDevice(reg, testMAC, WriteCharUUID1, DeviceOptions{})
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	if err := d.TurnOn(ctx); err != nil {
		t.Fatalf("TurnOn() error = %v", err)
	}

	if err := reg.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A Device created before Close must not reopen its link.
	if err := d.TurnOff(ctx); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("TurnOff() after registry Close error = %v, want ErrDeviceClosed", err)
	}
	if err := d.Connect(ctx); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("Connect() after registry Close error = %v, want ErrDeviceClosed", err)
	}

	// Nor may a new Device open a second link to the same address.
	if _, err := NewDevice(reg, testMAC, WriteCharUUID1, DeviceOptions{}); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("NewDevice() after Close error = %v, want ErrDeviceClosed", err)
	}
	if _, err := reg.Acquire(testMAC); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("Acquire() after Close error = %v, want ErrDeviceClosed", err)
	}

	if got := adapter.connectCount(); got != 1 {
		t.Errorf("connect count = %d, want 1", got)
	}
	if d.Power() != PowerOn {
		t.Errorf("Power() = %v, want On (failed command must not change cache)", d.Power())
	}
	if err := d.Close(); err != nil {
		t.Errorf("Device.Close() after registry Close error = %v", err)
	}
}
