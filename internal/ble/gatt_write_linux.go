package ble

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

// BlueZ D-Bus names.
const (
	bluezBus          = "org.bluez"
	bluezGattChar     = "org.bluez.GattCharacteristic1"
	dbusObjectManager = "org.freedesktop.DBus.ObjectManager"
)

// managedObjects is the reply shape of ObjectManager.GetManagedObjects.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// bluezCharacteristic writes with response through BlueZ. tinygo bluetooth
// only offers WriteWithoutResponse on Linux, so the request-type write goes
// straight to org.bluez.GattCharacteristic1.WriteValue.
type bluezCharacteristic struct {
	conn *dbus.Conn
	path dbus.ObjectPath
}

func (b *bluezCharacteristic) Write(data []byte) error {
	call := b.conn.Object(bluezBus, b.path).Call(bluezGattChar+".WriteValue", 0, data, map[string]dbus.Variant{
		"type": dbus.MakeVariant("request"),
	})
	if call.Err != nil {
		return fmt.Errorf("ble: write %s: %w", b.path, call.Err)
	}
	return nil
}

// commandCharacteristic is used when the BlueZ object path cannot be found.
type commandCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *commandCharacteristic) Write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

func (c *tinyGoConnection) newCharacteristic(char bluetooth.DeviceCharacteristic, uuid bluetooth.UUID) (Characteristic, error) {
	conn, err := dbus.SystemBus()
	if err == nil {
		var objects managedObjects
		call := conn.Object(bluezBus, "/").Call(dbusObjectManager+".GetManagedObjects", 0)
		if err = call.Err; err == nil {
			err = call.Store(&objects)
		}
		if err == nil {
			if path, ok := findCharacteristicPath(objects, c.address, uuid.String()); ok {
				return &bluezCharacteristic{conn: conn, path: path}, nil
			}
			err = fmt.Errorf("no object for %s", uuid.String())
		}
	}
	slog.Warn("[BLE] BlueZ path lookup failed, writing without response", "mac", c.address, "error", err)
	return &commandCharacteristic{char: char}, nil
}

// bluezDeviceSegment converts "AA:BB:CC:DD:EE:FF" to "dev_AA_BB_CC_DD_EE_FF",
// the path element BlueZ uses for a device under any adapter.
func bluezDeviceSegment(address string) string {
	return "dev_" + strings.ReplaceAll(NormalizeAddress(address), ":", "_")
}

// findCharacteristicPath returns the GattCharacteristic1 object with uuid
// that belongs to the device at address.
func findCharacteristicPath(objects managedObjects, address, uuid string) (dbus.ObjectPath, bool) {
	segment := "/" + bluezDeviceSegment(address) + "/"
	for path, ifaces := range objects {
		props, ok := ifaces[bluezGattChar]
		if !ok || !strings.Contains(string(path), segment) {
			continue
		}
		v, ok := props["UUID"]
		if !ok {
			continue
		}
		if got, ok := v.Value().(string); ok && strings.EqualFold(got, uuid) {
			return path, true
		}
	}
	return "", false
}
