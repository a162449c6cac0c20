package protocol

// crcPolyReflected is the CRC-8/MAXIM polynomial 0x31 in reflected form.
const crcPolyReflected = 0x8c

// Checksum computes CRC-8/MAXIM (Dallas 1-Wire) over data: reflected
// input and output, initial value 0x00, no final XOR.
func Checksum(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x01 != 0 {
				crc = (crc >> 1) ^ crcPolyReflected
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// AppendChecksum returns a copy of frame with its checksum appended.
// The input slice is never modified.
func AppendChecksum(frame []byte) []byte {
	out := make([]byte, len(frame), len(frame)+1)
	copy(out, frame)
	return append(out, Checksum(frame))
}

// Verify reports whether the last byte of frame is the checksum of the
// bytes before it.
func Verify(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	n := len(frame) - 1
	return Checksum(frame[:n]) == frame[n]
}
