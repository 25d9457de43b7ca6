package hci

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/kestrel-systems/attble"
)

// conn is a single ACL-backed L2CAP connection-oriented channel, fixed to
// the ATT CID. It implements ble.Conn, fragmenting outbound L2CAP frames
// into HCI ACL packets on Write and reassembling inbound fragments on
// Read, the way paypal-gatt's l2cap.conn does over its own raw socket.
type conn struct {
	adapter *Adapter
	handle  uint16
	local   ble.Addr
	remote  ble.Addr
	params  ble.ConnParams

	mu      sync.Mutex
	ctx     context.Context
	rxMTU   int
	txMTU   int

	incoming chan []byte // complete L2CAP payloads, ATT CID only
	partial  []byte      // in-progress reassembly buffer
	wantLen  int

	disconnected chan struct{}
	closeOnce    sync.Once
}

func newConn(a *Adapter, handle uint16, local, remote ble.Addr, params ble.ConnParams) *conn {
	return &conn{
		adapter:      a,
		handle:       handle,
		local:        local,
		remote:       remote,
		params:       params,
		ctx:          context.Background(),
		rxMTU:        ble.DefaultMTU,
		txMTU:        ble.DefaultMTU,
		incoming:     make(chan []byte, 16),
		disconnected: make(chan struct{}),
	}
}

// Read blocks for the next complete ATT PDU reassembled from one or more
// ACL fragments. [Vol 3, Part A, 7.3]
func (c *conn) Read(p []byte) (int, error) {
	select {
	case payload, ok := <-c.incoming:
		if !ok {
			return 0, ble.NewIOError(ble.ResetByPeer, 0)
		}
		n := copy(p, payload)
		return n, nil
	case <-c.disconnected:
		return 0, ble.NewIOError(ble.ResetByPeer, 0)
	}
}

// Write frames p as one L2CAP B-frame addressed to the ATT CID and hands
// it to the adapter for ACL fragmentation.
func (c *conn) Write(p []byte) (int, error) {
	select {
	case <-c.disconnected:
		return 0, ble.NewIOError(ble.NotConnected, 0)
	default:
	}
	frame := make([]byte, 4+len(p))
	binary.LittleEndian.PutUint16(frame[0:2], uint16(len(p)))
	binary.LittleEndian.PutUint16(frame[2:4], ble.ATTCID)
	copy(frame[4:], p)
	if err := c.adapter.writeFragments(c.handle, frame); err != nil {
		return 0, err
	}
	return len(p), nil
}

// deliver feeds one ACL fragment into the reassembly buffer, completing
// and dispatching an L2CAP payload once the declared length is reached.
// Called only from the adapter's loop goroutine.
func (c *conn) deliver(flags uint8, fragment []byte) {
	// Packet-boundary 0b00 and 0b10 both open a new L2CAP PDU; controllers
	// send inbound LE data with 0b10.
	if pb := flags & 0x03; pb == aclFlagStart || pb == 0x02 {
		if len(fragment) < 4 {
			return
		}
		l2capLen := int(binary.LittleEndian.Uint16(fragment[0:2]))
		cid := binary.LittleEndian.Uint16(fragment[2:4])
		if cid != ble.ATTCID {
			return
		}
		c.partial = append([]byte(nil), fragment[4:]...)
		c.wantLen = l2capLen
	} else {
		c.partial = append(c.partial, fragment...)
	}
	if c.wantLen > 0 && len(c.partial) >= c.wantLen {
		payload := c.partial[:c.wantLen]
		c.partial = nil
		c.wantLen = 0
		select {
		case c.incoming <- payload:
		case <-c.disconnected:
		}
	}
}

func (c *conn) markDisconnected() {
	c.closeOnce.Do(func() { close(c.disconnected) })
}

// Close issues HCI Disconnect and tears the local state down. Idempotent.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.disconnected)
		_, werr := c.adapter.sock.Write(marshalDisconnect(c.handle, 0x13)) // remote user terminated
		err = werr
	})
	return err
}

func (c *conn) Context() context.Context { c.mu.Lock(); defer c.mu.Unlock(); return c.ctx }
func (c *conn) SetContext(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
}

func (c *conn) LocalAddr() ble.Addr  { return c.local }
func (c *conn) RemoteAddr() ble.Addr { return c.remote }

// ReadRSSI is not backed by a Read_RSSI command in this build; callers
// that need live RSSI should poll via the controller's vendor tooling.
func (c *conn) ReadRSSI() (int8, error) {
	return 0, ble.NewIOError(ble.InvalidArgument, 0)
}

func (c *conn) RxMTU() int { c.mu.Lock(); defer c.mu.Unlock(); return c.rxMTU }
func (c *conn) SetRxMTU(mtu int) {
	c.mu.Lock()
	c.rxMTU = mtu
	c.mu.Unlock()
}

func (c *conn) TxMTU() int { c.mu.Lock(); defer c.mu.Unlock(); return c.txMTU }
func (c *conn) SetTxMTU(mtu int) {
	c.mu.Lock()
	c.txMTU = mtu
	c.mu.Unlock()
}

func (c *conn) Disconnected() <-chan struct{} { return c.disconnected }
