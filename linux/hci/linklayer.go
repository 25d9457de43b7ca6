package hci

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/kestrel-systems/attble"
	"github.com/kestrel-systems/attble/linux/hci/h4"
	"github.com/kestrel-systems/attble/linux/hci/socket"
)

// aclBufferSize is the controller ACL data buffer size this module assumes
// when fragmenting an L2CAP PDU into HCI ACL packets. Real hardware
// reports its own value via LE_Read_Buffer_Size; a conservative fixed
// size keeps the link layer usable without that extra round trip.
const aclBufferSize = 251

// Adapter is the Link Layer Adapter: it owns one
// HCI_CHANNEL_USER socket exclusively, issuing HCI commands and
// performing ACL/L2CAP framing itself rather than delegating connection
// management to the kernel's Bluetooth stack.
// transport is the byte-stream abstraction Adapter drives: a raw HCI
// socket (socket.Socket) normally, or an H4-over-UART port (h4.Port) on
// hardware where the controller is only reachable as a serial device.
type transport interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

type Adapter struct {
	sock   transport
	loop   *Loop
	log    ble.Logger
	devID  int

	mu        sync.Mutex
	closed    bool
	conns     map[uint16]*conn
	pendingConnect map[ble.Addr]chan leConnectionCompleteEvent
	cmdComplete    chan commandCompleteEvent
	cmdStatus      chan commandStatusEvent
}

// Open claims deviceName ("hci0", "hci1", ...) exclusively and brings the
// controller to a known state (HCI Reset, LE event mask).
func Open(deviceName string, loop *Loop, log ble.Logger) (*Adapter, error) {
	devID, err := parseDeviceName(deviceName)
	if err != nil {
		return nil, err
	}
	if loop == nil {
		loop = DefaultLoop()
	}
	if log == nil {
		log = ble.NewLogger()
	}

	sock, err := socket.Open(devID, socket.ChannelUser)
	if err != nil {
		return nil, ble.NewIOError(ble.ConnectionRefused, 0)
	}
	if err := sock.SetFilter(); err != nil {
		sock.Close()
		return nil, errors.Wrap(err, "hci: set filter")
	}
	return newAdapter(sock, devID, loop, log)
}

// OpenH4 attaches to a controller reachable only as a UART device (the
// common case for embedded boards wired directly to a host's serial
// port), framing commands/events/ACL data with the same H4 packet-type
// byte that frames on an HCI_CHANNEL_USER socket also carry. devID is cosmetic
// here; UART controllers have no kernel-assigned index.
func OpenH4(serialPath string, baudRate uint, loop *Loop, log ble.Logger) (*Adapter, error) {
	if loop == nil {
		loop = DefaultLoop()
	}
	if log == nil {
		log = ble.NewLogger()
	}
	port, err := h4.Open(serialPath, baudRate)
	if err != nil {
		return nil, errors.Wrap(err, "hci: open H4 UART port")
	}
	return newAdapter(port, -1, loop, log)
}

func newAdapter(tr transport, devID int, loop *Loop, log ble.Logger) (*Adapter, error) {
	a := &Adapter{
		sock:           tr,
		loop:           loop,
		log:            log,
		devID:          devID,
		conns:          make(map[uint16]*conn),
		pendingConnect: make(map[ble.Addr]chan leConnectionCompleteEvent),
		cmdComplete:    make(chan commandCompleteEvent, 1),
		cmdStatus:      make(chan commandStatusEvent, 1),
	}

	go a.readLoop()

	if err := a.sendCommand(marshalCommand(opReset, nil)); err != nil {
		a.Close()
		return nil, errors.Wrap(err, "hci: reset")
	}
	mask := make([]byte, 8)
	binary.LittleEndian.PutUint64(mask, 0x000000000000001F) // conn complete, adv report, conn update, ...
	if err := a.sendCommand(marshalCommand(opLESetEventMask, mask)); err != nil {
		a.Close()
		return nil, errors.Wrap(err, "hci: LE set event mask")
	}
	return a, nil
}

func parseDeviceName(name string) (int, error) {
	name = strings.TrimPrefix(name, "hci")
	id, err := strconv.Atoi(name)
	if err != nil {
		return 0, errors.Wrapf(err, "hci: invalid device name %q", name)
	}
	return id, nil
}

// Connect issues LE_Create_Connection for peer and blocks until the
// resulting LE Connection Complete event arrives or ctx is done.
//
func (a *Adapter) Connect(ctx context.Context, local, peer ble.Addr, params ble.ConnParams) (ble.Conn, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Security != ble.SecurityLow {
		// This adapter brings the link up over a raw HCI_CHANNEL_USER
		// socket, not a kernel L2CAP socket, so there is no BT_SECURITY
		// sockopt to raise: link encryption would require this module to
		// run SMP pairing itself, which it does not. Reject rather than
		// silently connecting at the default level.
		return nil, errors.Errorf("hci: security level %s requires SMP pairing, which this adapter does not implement", params.Security)
	}

	wait := make(chan leConnectionCompleteEvent, 1)
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ble.NewIOError(ble.NotConnected, 0)
	}
	a.pendingConnect[peer] = wait
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pendingConnect, peer)
		a.mu.Unlock()
	}()

	peerType := uint8(0)
	if peer.Type() == ble.AddrTypeRandom {
		peerType = 1
	}
	cp := leCreateConnParams{
		scanInterval:       0x0060,
		scanWindow:         0x0030,
		filterPolicy:       0,
		peerAddressType:    peerType,
		peerAddress:        peer.Bytes(),
		ownAddressType:     0,
		intervalMin:        params.IntervalMin,
		intervalMax:        params.IntervalMax,
		latency:            params.SlaveLatency,
		supervisionTimeout: params.SupervisionTimeout,
		minCELength:        0x0000,
		maxCELength:        0x0000,
	}
	if err := a.sendCommand(marshalCommand(opLECreateConn, cp.marshal())); err != nil {
		return nil, errors.Wrap(err, "hci: LE create connection")
	}

	select {
	case ev := <-wait:
		if ev.status != 0 {
			return nil, ble.NewIOError(ble.ConnectionRefused, int(ev.status))
		}
		c := newConn(a, ev.handle, local, peer, params)
		a.mu.Lock()
		a.conns[ev.handle] = c
		a.mu.Unlock()
		return c, nil
	case <-ctx.Done():
		a.sendCommand(marshalCommand(opLECreateConnCancel, nil))
		return nil, ctx.Err()
	}
}

// UpdateConnectionParameters issues LE_Connection_Update on an
// established connection.
func (a *Adapter) UpdateConnectionParameters(c ble.Conn, params ble.ConnParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	lc, ok := c.(*conn)
	if !ok {
		return errors.New("hci: not a connection owned by this adapter")
	}
	p := leConnUpdateParams{
		handle:             lc.handle,
		intervalMin:        params.IntervalMin,
		intervalMax:        params.IntervalMax,
		latency:            params.SlaveLatency,
		supervisionTimeout: params.SupervisionTimeout,
	}
	return a.sendCommand(marshalCommand(opLEConnUpdate, p.marshal()))
}

// Close disconnects every open connection and releases the HCI socket.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	conns := make([]*conn, 0, len(a.conns))
	for _, c := range a.conns {
		conns = append(conns, c)
	}
	a.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return a.sock.Close()
}

// sendCommand writes an HCI command and blocks for its Command Complete
// or Command Status event, translating a nonzero status into an IOError.
func (a *Adapter) sendCommand(pkt []byte) error {
	if _, err := a.sock.Write(pkt); err != nil {
		return ble.NewIOError(ble.ResetByPeer, 0)
	}
	select {
	case ev := <-a.cmdComplete:
		if len(ev.returnParams) > 0 && ev.returnParams[0] != 0 {
			return ble.NewIOError(ble.InvalidArgument, int(ev.returnParams[0]))
		}
		return nil
	case ev := <-a.cmdStatus:
		if ev.status != 0 {
			return ble.NewIOError(ble.InvalidArgument, int(ev.status))
		}
		return nil
	case <-time.After(5 * time.Second):
		return ble.NewIOError(ble.IOTimeout, 0)
	}
}

// readLoop owns the one blocking read on the HCI socket. It demultiplexes
// HCI Event packets (dispatched to the adapter) from ACL Data packets
// (dispatched to the owning conn's channel), entirely off the loop
// goroutine — each handler only ever posts work back to a.loop.
func (a *Adapter) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := a.sock.Read(buf)
		if err != nil {
			if err != io.EOF {
				a.log.Warnf("hci: socket read failed: %v", err)
			}
			return
		}
		pkt := append([]byte(nil), buf[:n]...)
		switch pkt[0] {
		case pktEvent:
			a.loop.Post(func() { a.handleEvent(pkt[1:]) })
		case pktACLData:
			a.loop.Post(func() { a.handleACL(pkt[1:]) })
		}
	}
}

func (a *Adapter) handleEvent(b []byte) {
	h, p, ok := parseEventHeader(b)
	if !ok {
		return
	}
	switch h.code {
	case evtCommandComplete:
		if ev, ok := parseCommandComplete(p); ok {
			select {
			case a.cmdComplete <- ev:
			default:
			}
		}
	case evtCommandStatus:
		if ev, ok := parseCommandStatus(p); ok {
			select {
			case a.cmdStatus <- ev:
			default:
			}
		}
	case evtDisconnectionComplete:
		if ev, ok := parseDisconnectionComplete(p); ok {
			a.mu.Lock()
			c, found := a.conns[ev.handle]
			delete(a.conns, ev.handle)
			a.mu.Unlock()
			if found {
				c.markDisconnected()
			}
		}
	case evtLEMeta:
		if len(p) == 0 {
			return
		}
		switch p[0] {
		case subevtLEConnectionComplete:
			if ev, ok := parseLEConnectionComplete(p); ok {
				peerType := ble.AddrTypePublic
				if ev.peerAddressType == 1 {
					peerType = ble.AddrTypeRandom
				}
				peer := ble.Addr{}
				peer = addrFrom(ev.peerAddress, peerType)
				a.mu.Lock()
				wait, found := a.pendingConnect[peer]
				a.mu.Unlock()
				if found {
					wait <- ev
				}
			}
		}
	}
}

func (a *Adapter) handleACL(b []byte) {
	h, payload, ok := parseACLHeader(b)
	if !ok {
		return
	}
	a.mu.Lock()
	c, found := a.conns[h.handle]
	a.mu.Unlock()
	if !found {
		return
	}
	c.deliver(h.flags, payload)
}

// writeFragments splits an L2CAP frame (4-byte length+CID header already
// prefixed) into aclBufferSize-sized HCI ACL Data packets, exactly as
// paypal-gatt's l2cap write path disassembles an oversized payload.
func (a *Adapter) writeFragments(handle uint16, l2cap []byte) error {
	flag := uint8(aclFlagStart)
	for len(l2cap) > 0 {
		chunkLen := len(l2cap)
		if chunkLen > aclBufferSize {
			chunkLen = aclBufferSize
		}
		chunk := l2cap[:chunkLen]
		l2cap = l2cap[chunkLen:]

		pkt := make([]byte, 5+chunkLen)
		pkt[0] = pktACLData
		pkt[1] = byte(handle)
		pkt[2] = byte(handle>>8) | flag<<4
		binary.LittleEndian.PutUint16(pkt[3:5], uint16(chunkLen))
		copy(pkt[5:], chunk)

		if _, err := a.sock.Write(pkt); err != nil {
			return ble.NewIOError(ble.ResetByPeer, 0)
		}
		flag = aclFlagContinuation
	}
	return nil
}

func addrFrom(b [6]byte, t ble.AddrType) ble.Addr {
	s := fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[5], b[4], b[3], b[2], b[1], b[0])
	a, _ := ble.ParseAddr(s, t)
	return a
}
