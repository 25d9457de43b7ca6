// Package linux wires the Link Layer Adapter, ATT Transport and GATT
// Client into the single public Requester facade. It is
// a separate package from the root ble package (which only defines
// shared types) so it can import linux/hci, linux/att and linux/gatt
// without creating an import cycle back into ble.
package linux

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/kestrel-systems/attble"
	"github.com/kestrel-systems/attble/linux/att"
	"github.com/kestrel-systems/attble/linux/gatt"
	"github.com/kestrel-systems/attble/linux/hci"
)

// State is the Requester's connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateErrorConnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateErrorConnecting:
		return "error_connecting"
	default:
		return "disconnected"
	}
}

// Requester is the public client-side entry point: one Requester binds to
// one Link Layer Adapter (one HCI device) and drives zero-or-more
// sequential connections to remote peripherals over it.
type Requester struct {
	adapter *hci.Adapter
	loop    *hci.Loop
	log     ble.Logger
	cache   ble.GattCache

	connectTimeout time.Duration

	mu     sync.Mutex
	state  State
	conn   ble.Conn
	tr     *att.Transport
	client *gatt.Client
	local  ble.Addr

	onConnect       func(*gatt.Client)
	onConnectFailed func(error)
	onDisconnect    func(error)
}

// Open claims hciDeviceName exclusively and returns a Requester bound to
// it, applying opts over the package defaults.
func Open(hciDeviceName string, opts ...ble.Option) (*Requester, error) {
	cfg := ble.DefaultDeviceConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if hciDeviceName != "" {
		cfg.HCIDeviceName = hciDeviceName
	}

	loop := hci.NewLoop()
	loop.Start()

	adapter, err := hci.Open(cfg.HCIDeviceName, loop, cfg.Logger)
	if err != nil {
		loop.Stop()
		return nil, errors.Wrap(err, "linux: open adapter")
	}

	return &Requester{
		adapter:        adapter,
		loop:           loop,
		log:            cfg.Logger,
		cache:          cfg.Cache,
		connectTimeout: cfg.ConnectTimeout,
		state:          StateDisconnected,
	}, nil
}

// OnConnect registers a callback invoked once a connection and its GATT
// Client are ready.
func (r *Requester) OnConnect(fn func(client *gatt.Client)) { r.onConnect = fn }

// OnConnectFailed registers a callback invoked if Connect fails.
func (r *Requester) OnConnectFailed(fn func(err error)) { r.onConnectFailed = fn }

// OnDisconnect registers a callback invoked when an established
// connection tears down, for any reason. err is always nil; the callback
// does not distinguish a local Disconnect() from a peer-initiated teardown.
func (r *Requester) OnDisconnect(fn func(err error)) { r.onDisconnect = fn }

// IsConnected reports whether a connection is currently established.
func (r *Requester) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateConnected
}

// State reports the current connection lifecycle state.
func (r *Requester) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Connect establishes a link to peer and, unless wait is false, blocks
// until the link is up. It does not exchange MTU; the connection starts at
// the default ATT MTU. Disconnect() or a peer-initiated teardown return the
// Requester to StateDisconnected.
func (r *Requester) Connect(peer ble.Addr, params ble.ConnParams, wait bool) error {
	r.mu.Lock()
	if r.state == StateConnecting || r.state == StateConnected {
		r.mu.Unlock()
		return ble.NewIOError(ble.AlreadyConnected, 0)
	}
	r.state = StateConnecting
	r.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- r.connect(peer, params)
	}()

	if !wait {
		return nil
	}

	select {
	case err := <-done:
		return err
	case <-time.After(r.connectTimeout):
		r.mu.Lock()
		r.state = StateErrorConnecting
		r.mu.Unlock()
		return ble.NewIOError(ble.IOTimeout, 0)
	}
}

func (r *Requester) connect(peer ble.Addr, params ble.ConnParams) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.connectTimeout)
	defer cancel()

	conn, err := r.adapter.Connect(ctx, r.local, peer, params)
	if err != nil {
		r.mu.Lock()
		r.state = StateErrorConnecting
		r.mu.Unlock()
		if r.onConnectFailed != nil {
			r.onConnectFailed(err)
		}
		return err
	}

	tr := att.NewTransport(conn, r.loop, r.log)
	client := gatt.NewClient(conn, tr, r.cache, r.log)

	r.mu.Lock()
	r.conn = conn
	r.tr = tr
	r.client = client
	r.state = StateConnected
	r.mu.Unlock()

	go r.watchDisconnect(conn)

	if r.onConnect != nil {
		r.onConnect(client)
	}
	return nil
}

func (r *Requester) watchDisconnect(conn ble.Conn) {
	<-conn.Disconnected()
	r.mu.Lock()
	if r.conn != conn {
		r.mu.Unlock()
		return
	}
	r.tr.Release()
	r.conn = nil
	r.tr = nil
	r.client = nil
	r.state = StateDisconnected
	r.mu.Unlock()

	if r.onDisconnect != nil {
		r.onDisconnect(nil)
	}
}

// Disconnect tears the current connection down, if any.
func (r *Requester) Disconnect() error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return ble.NewIOError(ble.NotConnected, 0)
	}
	return conn.Close()
}

// ReadRSSI asks the current connection for its received signal strength.
// The linux/hci connection does not issue HCI Read_RSSI, so on that
// connection it always returns an InvalidArgument IOError.
func (r *Requester) ReadRSSI() (int8, error) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return 0, ble.NewIOError(ble.NotConnected, 0)
	}
	return conn.ReadRSSI()
}

// UpdateConnectionParameters renegotiates the link parameters of the
// current connection.
func (r *Requester) UpdateConnectionParameters(params ble.ConnParams) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return ble.NewIOError(ble.NotConnected, 0)
	}
	return r.adapter.UpdateConnectionParameters(conn, params)
}

// requireClient returns the active GATT Client or a NotConnected IOError.
func (r *Requester) requireClient() (*gatt.Client, error) {
	r.mu.Lock()
	c := r.client
	r.mu.Unlock()
	if c == nil {
		return nil, ble.NewIOError(ble.NotConnected, 0)
	}
	return c, nil
}

// ExchangeMTU runs ATT MTU negotiation against the current connection.
func (r *Requester) ExchangeMTU(clientRxMTU int) (int, error) {
	c, err := r.requireClient()
	if err != nil {
		return 0, err
	}
	return c.ExchangeMTU(clientRxMTU)
}

// ExchangeMTUAsync runs ExchangeMTU on its own goroutine, invoking cb with
// the result once it completes.
func (r *Requester) ExchangeMTUAsync(clientRxMTU int, cb func(mtu int, err error)) {
	go func() {
		mtu, err := r.ExchangeMTU(clientRxMTU)
		cb(mtu, err)
	}()
}

// ReadByHandle reads an attribute's value by handle.
func (r *Requester) ReadByHandle(handle uint16) ([]byte, error) {
	c, err := r.requireClient()
	if err != nil {
		return nil, err
	}
	return c.ReadByHandle(handle)
}

// ReadByHandleAsync runs ReadByHandle on its own goroutine.
func (r *Requester) ReadByHandleAsync(handle uint16, cb func(data []byte, err error)) {
	go func() {
		data, err := r.ReadByHandle(handle)
		cb(data, err)
	}()
}

// ReadByUUID reads the value of every attribute of type u across the
// entire attribute handle range.
func (r *Requester) ReadByUUID(u ble.UUID) ([][]byte, error) {
	c, err := r.requireClient()
	if err != nil {
		return nil, err
	}
	return c.ReadByUUID(u)
}

// ReadByUUIDAsync runs ReadByUUID on its own goroutine.
func (r *Requester) ReadByUUIDAsync(u ble.UUID, cb func(data [][]byte, err error)) {
	go func() {
		data, err := r.ReadByUUID(u)
		cb(data, err)
	}()
}

// WriteByHandle writes v to handle, with or without a response.
func (r *Requester) WriteByHandle(handle uint16, v []byte, noRsp bool) error {
	c, err := r.requireClient()
	if err != nil {
		return err
	}
	return c.WriteByHandle(handle, v, noRsp)
}

// WriteByHandleAsync runs WriteByHandle on its own goroutine.
func (r *Requester) WriteByHandleAsync(handle uint16, v []byte, noRsp bool, cb func(err error)) {
	go func() {
		cb(r.WriteByHandle(handle, v, noRsp))
	}()
}

// WriteCmd is WriteByHandle with noRsp forced true, named to match the
// public API's documented surface.
func (r *Requester) WriteCmd(handle uint16, v []byte) error {
	return r.WriteByHandle(handle, v, true)
}

// EnableNotifications subscribes h to ch's notifications (ind==false) or
// indications (ind==true).
func (r *Requester) EnableNotifications(ch *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	c, err := r.requireClient()
	if err != nil {
		return err
	}
	return c.EnableNotifications(ch, ind, h)
}

// DiscoverPrimary finds every primary service, or those matching filter.
func (r *Requester) DiscoverPrimary(filter []ble.UUID) ([]*ble.Service, error) {
	c, err := r.requireClient()
	if err != nil {
		return nil, err
	}
	return c.DiscoverPrimary(filter)
}

// FindIncluded finds the included services declared within s.
func (r *Requester) FindIncluded(s *ble.Service) ([]*ble.Service, error) {
	c, err := r.requireClient()
	if err != nil {
		return nil, err
	}
	return c.FindIncluded(s)
}

// DiscoverCharacteristics finds every characteristic within s, or those
// matching filter.
func (r *Requester) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	c, err := r.requireClient()
	if err != nil {
		return nil, err
	}
	return c.DiscoverCharacteristics(filter, s)
}

// DiscoverDescriptors finds every descriptor within ch, or those matching
// filter.
func (r *Requester) DiscoverDescriptors(filter []ble.UUID, ch *ble.Characteristic) ([]*ble.Descriptor, error) {
	c, err := r.requireClient()
	if err != nil {
		return nil, err
	}
	return c.DiscoverDescriptors(filter, ch)
}

// DiscoverProfile walks the full service/characteristic/descriptor
// hierarchy, consulting the attached GattCache unless force is true.
func (r *Requester) DiscoverProfile(force bool) (*ble.Profile, error) {
	c, err := r.requireClient()
	if err != nil {
		return nil, err
	}
	return c.DiscoverProfile(force)
}

// Close disconnects if needed and releases the underlying HCI device.
func (r *Requester) Close() error {
	r.Disconnect()
	err := r.adapter.Close()
	r.loop.Stop()
	return err
}
