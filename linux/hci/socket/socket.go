// Package socket implements the minimal set of Bluetooth HCI raw-socket
// operations the standard library has no portable wrapper for: opening an
// HCI_CHANNEL_USER socket bound to a controller index and reading/writing
// framed HCI packets on it. Built on golang.org/x/sys/unix rather than the
// standard syscall package so the sockaddr packing lives in one place the
// whole module shares.
package socket

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Bluetooth address family / protocol / channel constants [bluez hci.h].
const (
	afBluetooth = 31 // AF_BLUETOOTH
	btProtoHCI  = 1  // BTPROTO_HCI

	ChannelRaw  = 0 // HCI_CHANNEL_RAW
	ChannelUser = 1 // HCI_CHANNEL_USER
)

type rawSockaddrHCI struct {
	Family  uint16
	Dev     uint16
	Channel uint16
}

// Socket is an open HCI raw socket bound to one controller.
type Socket struct {
	fd int
}

// Open binds an HCI raw socket to devID on channel (ChannelUser claims the
// controller exclusively, matching how this module owns ACL/L2CAP framing
// itself instead of delegating to the kernel's bluetoothd stack).
func Open(devID int, channel uint16) (*Socket, error) {
	fd, err := unix.Socket(afBluetooth, unix.SOCK_RAW, btProtoHCI)
	if err != nil {
		return nil, err
	}

	sa := rawSockaddrHCI{Family: uint16(afBluetooth), Dev: uint16(devID), Channel: channel}
	_, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd),
		uintptr(unsafe.Pointer(&sa)), uintptr(unsafe.Sizeof(sa)))
	if errno != 0 {
		unix.Close(fd)
		return nil, errno
	}
	return &Socket{fd: fd}, nil
}

func (s *Socket) Read(b []byte) (int, error)  { return unix.Read(s.fd, b) }
func (s *Socket) Write(b []byte) (int, error) { return unix.Write(s.fd, b) }
func (s *Socket) Close() error                { return unix.Close(s.fd) }

// SetFilter installs an HCI_FILTER accepting every event and ACL data
// packet, mirroring the filter every user-space HCI client installs
// before issuing its first command.
func (s *Socket) SetFilter() error {
	// type_mask: bit 2 (ACL data) | bit 4 (event); event_mask: accept all.
	filter := struct {
		TypeMask  uint32
		EventMask [2]uint32
		Opcode    uint16
	}{
		TypeMask:  (1 << 2) | (1 << 4),
		EventMask: [2]uint32{0xFFFFFFFF, 0xFFFFFFFF},
	}
	const solHCI = 0
	const hciFilter = 2
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(s.fd),
		uintptr(solHCI), uintptr(hciFilter),
		uintptr(unsafe.Pointer(&filter)), unsafe.Sizeof(filter), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
