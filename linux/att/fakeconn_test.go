package att

import (
	"context"
	"net"
	"sync"

	"github.com/kestrel-systems/attble"
)

// fakeConn wraps one end of a net.Pipe as a ble.Conn, giving tests a
// peer-controllable bearer for Transport without any real L2CAP socket.
type fakeConn struct {
	net.Conn
	mu           sync.Mutex
	ctx          context.Context
	disconnected chan struct{}
	closeOnce    sync.Once
}

func newFakeConnPair() (*fakeConn, net.Conn) {
	client, server := net.Pipe()
	fc := &fakeConn{
		Conn:         client,
		ctx:          context.Background(),
		disconnected: make(chan struct{}),
	}
	return fc, server
}

func (f *fakeConn) Close() error {
	err := f.Conn.Close()
	f.closeOnce.Do(func() { close(f.disconnected) })
	return err
}

func (f *fakeConn) Context() context.Context { return f.ctx }
func (f *fakeConn) SetContext(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctx = ctx
}

func (f *fakeConn) LocalAddr() ble.Addr  { return ble.Addr{} }
func (f *fakeConn) RemoteAddr() ble.Addr { return ble.Addr{} }

func (f *fakeConn) ReadRSSI() (int8, error) { return -50, nil }

func (f *fakeConn) RxMTU() int     { return ble.DefaultMTU }
func (f *fakeConn) SetRxMTU(int)   {}
func (f *fakeConn) TxMTU() int     { return ble.DefaultMTU }
func (f *fakeConn) SetTxMTU(int)   {}

func (f *fakeConn) Disconnected() <-chan struct{} { return f.disconnected }
