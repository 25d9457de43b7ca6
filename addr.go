package ble

import (
	"fmt"
	"strconv"
	"strings"
)

// AddrType distinguishes a BD_ADDR's address type, per the data
// model: public or random.
type AddrType uint8

const (
	AddrTypePublic AddrType = 0x00
	AddrTypeRandom AddrType = 0x01
)

func (t AddrType) String() string {
	if t == AddrTypeRandom {
		return "random"
	}
	return "public"
}

// Addr is a 6-byte Bluetooth device address with an associated type.
type Addr struct {
	bytes [6]byte
	typ   AddrType
}

// ParseAddr parses the canonical "XX:XX:XX:XX:XX:XX" textual form.
func ParseAddr(s string, typ AddrType) (Addr, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return Addr{}, fmt.Errorf("ble: invalid BD_ADDR %q", s)
	}
	var a Addr
	a.typ = typ
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return Addr{}, fmt.Errorf("ble: invalid BD_ADDR %q: %w", s, err)
		}
		// Textual form is most-significant byte first; storage matches the
		// wire's natural reading order for logging/equality purposes.
		a.bytes[5-i] = byte(v)
	}
	return a, nil
}

// Bytes returns the 6 address bytes, least-significant first (HCI wire
// order).
func (a Addr) Bytes() [6]byte { return a.bytes }

// Type reports whether the address is public or random.
func (a Addr) Type() AddrType { return a.typ }

// String renders the canonical "XX:XX:XX:XX:XX:XX" form.
func (a Addr) String() string {
	b := a.bytes
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[5], b[4], b[3], b[2], b[1], b[0])
}

// Equal reports whether two addresses denote the same device (type included).
func (a Addr) Equal(b Addr) bool {
	return a.bytes == b.bytes && a.typ == b.typ
}
