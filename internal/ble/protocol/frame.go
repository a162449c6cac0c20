// Package protocol implements the Godox LED command frames written to the
// fixture's GATT characteristic.
package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter is returned when a command parameter is outside the
// range the fixture accepts.
var ErrInvalidParameter = errors.New("protocol: invalid parameter")

// Frame lengths before the trailing checksum byte.
const (
	PowerFrameLen      = 9
	BrightnessFrameLen = 8
)

// Brightness bounds accepted by EncodeBrightness.
const (
	MinBrightness = 0
	MaxBrightness = 255
)

var (
	powerHeader       = [...]byte{0xf0, 0xd0, 0x06, 0x0c}
	powerParams       = [...]byte{0x00, 0x00, 0x00, 0x00}
	brightnessHeader  = [...]byte{0xf0, 0xd1, 0x05, 0x01}
	brightnessTrailer = [...]byte{0x38, 0x0c, 0x01}
)

// EncodePower builds the power-control frame.
//
//	F0 D0 06 0C <01|00> 00 00 00 00
func EncodePower(on bool) []byte {
	buf := make([]byte, 0, PowerFrameLen+1)
	buf = append(buf, powerHeader[:]...)
	if on {
		buf = append(buf, 0x01)
	} else {
		buf = append(buf, 0x00)
	}
	buf = append(buf, powerParams[:]...)
	return buf
}

// EncodeBrightness builds the brightness frame for level 0-255.
//
//	F0 D1 05 01 <level> 38 0C 01
func EncodeBrightness(level int) ([]byte, error) {
	if level < MinBrightness || level > MaxBrightness {
		return nil, fmt.Errorf("%w: brightness must be %d-%d, got %d",
			ErrInvalidParameter, MinBrightness, MaxBrightness, level)
	}
	buf := make([]byte, 0, BrightnessFrameLen+1)
	buf = append(buf, brightnessHeader[:]...)
	buf = append(buf, byte(level))
	buf = append(buf, brightnessTrailer[:]...)
	return buf, nil
}
