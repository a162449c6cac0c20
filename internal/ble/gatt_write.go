//go:build darwin || windows

package ble

import "tinygo.org/x/bluetooth"

// tinyGoCharacteristic writes with response, which CoreBluetooth and WinRT
// expose directly.
type tinyGoCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *tinyGoConnection) newCharacteristic(char bluetooth.DeviceCharacteristic, _ bluetooth.UUID) (Characteristic, error) {
	return &tinyGoCharacteristic{char: char}, nil
}

func (c *tinyGoCharacteristic) Write(data []byte) error {
	_, err := c.char.Write(data)
	return err
}
