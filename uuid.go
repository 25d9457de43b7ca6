package ble

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// UUID is a BLE attribute UUID, kept in the little-endian byte order it
// has on the wire: UUID[0] is the least significant byte, and String()
// reverses it into the printed big-endian form. Short UUIDs (2 or 4 bytes) are
// the Bluetooth Base UUID with the 16 or 32 significant bits spliced in.
type UUID []byte

// bluetoothBaseUUID is 0000xxxx-0000-1000-8000-00805F9B34FB with the
// variable nibble zeroed, stored little-endian (index 0 = LSB).
var bluetoothBaseUUID = UUID{
	0xFB, 0x34, 0x9B, 0x5F, 0x80, 0x00, 0x00, 0x80,
	0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// UUID16 constructs the 128-bit UUID for a 16-bit assigned number. The
// variable field occupies storage bytes 12-13 (the base UUID's
// little-endian encoding puts the canonical "0000xxxx" group there).
func UUID16(v uint16) UUID {
	u := make(UUID, 16)
	copy(u, bluetoothBaseUUID)
	u[12] = byte(v)
	u[13] = byte(v >> 8)
	return u
}

// UUID32 constructs the 128-bit UUID for a 32-bit assigned number,
// occupying storage bytes 12-15.
func UUID32(v uint32) UUID {
	u := make(UUID, 16)
	copy(u, bluetoothBaseUUID)
	u[12] = byte(v)
	u[13] = byte(v >> 8)
	u[14] = byte(v >> 16)
	u[15] = byte(v >> 24)
	return u
}

// Len returns the wire length of the UUID: 2, 4, or 16.
func (u UUID) Len() int { return len(u) }

// Equal reports whether two UUIDs, possibly in different short forms,
// denote the same attribute type.
func (u UUID) Equal(v UUID) bool {
	return u.full().equalBytes(v.full())
}

func (u UUID) equalBytes(v UUID) bool {
	if len(u) != len(v) {
		return false
	}
	for i := range u {
		if u[i] != v[i] {
			return false
		}
	}
	return true
}

// full expands a short UUID to its 128-bit form for comparison.
func (u UUID) full() UUID {
	switch len(u) {
	case 16:
		return u
	case 4:
		return UUID32(uint32(u[0]) | uint32(u[1])<<8 | uint32(u[2])<<16 | uint32(u[3])<<24)
	case 2:
		return UUID16(uint16(u[0]) | uint16(u[1])<<8)
	default:
		return u
	}
}

// Uint16 returns the 16-bit assigned number if this UUID is in (or reduces
// to) the Bluetooth Base UUID short form, and true if so.
func (u UUID) Uint16() (uint16, bool) {
	f := u.full()
	if len(f) != 16 || !f[:12].equalBytes(bluetoothBaseUUID[:12]) || f[14] != 0 || f[15] != 0 {
		return 0, false
	}
	return uint16(f[12]) | uint16(f[13])<<8, true
}

// String renders the canonical 8-4-4-4-12 hex form, big-endian as printed
// by the Bluetooth spec (byte order reversed from the wire/storage order).
func (u UUID) String() string {
	f := u.full()
	if len(f) != 16 {
		return hex.EncodeToString(reverseBytes(f))
	}
	b := reverseBytes(f)
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

func reverseBytes(b []byte) []byte {
	r := make([]byte, len(b))
	for i, v := range b {
		r[len(b)-1-i] = v
	}
	return r
}

// ParseUUID parses a canonical 8-4-4-4-12 (or bare 32-hex-digit, or 4/8 hex
// digit short form) textual UUID into its little-endian storage form.
func ParseUUID(s string) (UUID, error) {
	s = strings.ReplaceAll(s, "-", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("ble: invalid UUID %q: %w", s, err)
	}
	switch len(b) {
	case 2, 4, 16:
		return reverseBytes(b), nil
	default:
		return nil, fmt.Errorf("ble: invalid UUID length %q", s)
	}
}

// MustParseUUID is ParseUUID, panicking on error; for UUID constants.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Contains reports whether any UUID in the filter list equals u.
func Contains(filter []UUID, u UUID) bool {
	for _, f := range filter {
		if f.Equal(u) {
			return true
		}
	}
	return false
}
