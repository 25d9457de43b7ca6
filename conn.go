package ble

import (
	"context"
	"io"
)

// SecurityLevel names the link security level a connect request asks for.
// This module never performs SMP pairing itself, and its Linux adapter
// brings connections up over a raw HCI_CHANNEL_USER socket rather than a
// kernel L2CAP socket, so there is no kernel security mechanism it can ask
// to raise the link: only SecurityLow is accepted, and Connect rejects
// anything else outright rather than silently ignoring it.
type SecurityLevel int

const (
	SecurityLow SecurityLevel = iota
	SecurityMedium
	SecurityHigh
)

func (s SecurityLevel) String() string {
	switch s {
	case SecurityMedium:
		return "medium"
	case SecurityHigh:
		return "high"
	default:
		return "low"
	}
}

// Conn is an open L2CAP channel to a peer. It is the bearer the ATT
// Transport Engine reads and writes PDUs on. The linux/hci implementation
// always uses the fixed ATT CID; ConnParams.PSM is not used to open a
// connection-oriented channel.
type Conn interface {
	io.ReadWriteCloser

	Context() context.Context
	SetContext(ctx context.Context)

	LocalAddr() Addr
	RemoteAddr() Addr

	// ReadRSSI returns the remote device's current RSSI.
	ReadRSSI() (int8, error)

	// RxMTU is the ATT_MTU this end is capable of accepting.
	RxMTU() int
	SetRxMTU(mtu int)

	// TxMTU is the ATT_MTU the remote end is capable of accepting.
	TxMTU() int
	SetTxMTU(mtu int)

	// Disconnected is closed when the connection tears down, for any reason.
	Disconnected() <-chan struct{}
}
