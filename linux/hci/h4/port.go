// Package h4 opens a UART-attached Bluetooth controller using the H4
// transport framing: the same leading packet-type byte (command/ACL/event)
// that frames on an HCI_CHANNEL_USER socket carry, here carried over a
// plain serial link instead of a kernel socket.
package h4

import (
	"github.com/jacobsa/go-serial/serial"
)

// Port is an open H4 UART connection to a controller. It satisfies the
// same Read/Write/Close surface hci.Adapter expects of its underlying
// transport, so an Adapter can be built on it exactly as it is built on
// a raw HCI socket.
type Port struct {
	rwc ReadWriteCloser
}

// ReadWriteCloser is the subset of io.ReadWriteCloser go-serial's
// OpenOptions.Open returns, named locally to avoid importing io just for
// the alias.
type ReadWriteCloser interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open configures and opens serialPath at baudRate with the 8-N-1 framing
// every BLE H4 controller expects, no hardware flow control.
func Open(serialPath string, baudRate uint) (*Port, error) {
	options := serial.OpenOptions{
		PortName:        serialPath,
		BaudRate:        baudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}
	rwc, err := serial.Open(options)
	if err != nil {
		return nil, err
	}
	return &Port{rwc: rwc}, nil
}

func (p *Port) Read(b []byte) (int, error)  { return p.rwc.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.rwc.Write(b) }
func (p *Port) Close() error                { return p.rwc.Close() }
