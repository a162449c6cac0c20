package ble

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestBluezDeviceSegment(t *testing.T) {
	if got := bluezDeviceSegment("a4:c1:38:00:b6:0d"); got != "dev_A4_C1_38_00_B6_0D" {
		t.Errorf("bluezDeviceSegment() = %q", got)
	}
}

func TestFindCharacteristicPath(t *testing.T) {
	charProps := func(uuid string) map[string]map[string]dbus.Variant {
		return map[string]map[string]dbus.Variant{
			bluezGattChar: {"UUID": dbus.MakeVariant(uuid)},
		}
	}
	const dev = "/org/bluez/hci0/dev_A4_C1_38_00_B6_0D"
	objects := managedObjects{}
	objects["/org/bluez/hci0"] = map[string]map[string]dbus.Variant{"org.bluez.Adapter1": {}}
	objects[dev] = map[string]map[string]dbus.Variant{"org.bluez.Device1": {}}
	objects[dev+"/service0010/char0011"] = charProps("00002a00-0000-1000-8000-00805f9b34fb")
	objects[dev+"/service0010/char0014"] = charProps("DAD0215C-9754-4264-9174-4736E23EF493")
	objects["/org/bluez/hci0/dev_A4_C1_38_2C_CB_00/service0010/char0014"] = charProps(WriteCharUUID2)

	tests := []struct {
		name    string
		address string
		uuid    string
		want    dbus.ObjectPath
		wantOK  bool
	}{
		{"match ignores case", "a4:c1:38:00:b6:0d", WriteCharUUID1, dev + "/service0010/char0014", true},
		{"other device", "A4:C1:38:2C:CB:00", WriteCharUUID2, "/org/bluez/hci0/dev_A4_C1_38_2C_CB_00/service0010/char0014", true},
		{"uuid on another device", "A4:C1:38:2C:CB:00", WriteCharUUID1, "", false},
		{"unknown device", "11:22:33:44:55:66", WriteCharUUID1, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := findCharacteristicPath(objects, tt.address, tt.uuid)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("findCharacteristicPath() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
