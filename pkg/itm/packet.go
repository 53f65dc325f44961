package itm

// Header is the leading byte of an ITM packet.
type Header byte

// NumPorts is the number of stimulus ports multiplexed onto the stream.
const NumPorts = 32

// Port extracts the source stimulus port.
func (h Header) Port() uint8 {
	return uint8(h) >> 3
}

// Kind extracts the 3-bit packet type code.
func (h Header) Kind() uint8 {
	return uint8(h) & 0x07
}

// PayloadSize returns the payload length implied by the type code,
// or 0 if the type code is not a recognized stimulus write.
// The size depends on the type code only, never on the port.
func (h Header) PayloadSize() int {
	switch h.Kind() {
	case 0x01:
		return 1
	case 0x02:
		return 2
	case 0x03:
		return 4
	}
	return 0
}
