package gatt

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/kestrel-systems/attble"
	"github.com/kestrel-systems/attble/linux/att"
)

// sub tracks one characteristic's notify/indicate registration: the CCCD
// handle its configuration value is written to, the configuration value
// itself, and the handlers for each half of it. id increments on every
// delivered notification/indication so a handler can detect gaps.
type sub struct {
	cccdHandle uint16
	value      ble.CCC
	notify     ble.NotificationHandler
	indicate   ble.NotificationHandler
	id         uint
	subID      uint64
}

// Client is the GATT client: discovery,
// read/write and notification procedures run over one att.Transport,
// their results assembled into a ble.Profile.
type Client struct {
	mu      sync.Mutex
	tr      *att.Transport
	conn    ble.Conn
	cache   ble.GattCache
	log     ble.Logger
	profile *ble.Profile
	subs    map[uint16]*sub // keyed by characteristic value handle
}

// NewClient wraps conn's transport with a GATT Client. cache may be nil.
func NewClient(conn ble.Conn, tr *att.Transport, cache ble.GattCache, log ble.Logger) *Client {
	if log == nil {
		log = ble.NewLogger()
	}
	return &Client{
		tr:    tr,
		conn:  conn,
		cache: cache,
		log:   log.ChildLogger(map[string]interface{}{"gatt": conn.RemoteAddr().String()}),
		subs:  make(map[uint16]*sub),
	}
}

// Profile returns the most recently discovered profile, or nil.
func (c *Client) Profile() *ble.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// ExchangeMTU runs ATT_EXCHANGE_MTU and applies the negotiated value — the
// lesser of the two advertised MTUs — to the underlying connection and
// transport. [Vol 3, Part F, 3.4.2.1]
func (c *Client) ExchangeMTU(clientRxMTU int) (int, error) {
	serverMTU, err := exchangeMTU(c.tr, uint16(clientRxMTU))
	if err != nil {
		return 0, err
	}
	negotiated := clientRxMTU
	if int(serverMTU) < negotiated {
		negotiated = int(serverMTU)
	}
	if err := c.tr.SetMTU(negotiated); err != nil {
		return 0, err
	}
	c.conn.SetTxMTU(negotiated)
	return negotiated, nil
}

// DiscoverPrimary finds every primary service, or those matching filter
// when non-nil. [Vol 3, Part G, 4.4.1]
func (c *Client) DiscoverPrimary(filter []ble.UUID) ([]*ble.Service, error) {
	var services []*ble.Service
	start := uint16(0x0001)
	for start != 0 {
		length, list, err := readByGroupTypeOnce(c.tr, start, 0xFFFF, ble.PrimaryServiceUUID)
		if err == ble.ErrAttrNotFound {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "gatt: discover primary services")
		}
		entries := decodeGroupEntries(length, list)
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			u := ble.UUID(e.value)
			if filter == nil || ble.Contains(filter, u) {
				services = append(services, &ble.Service{UUID: u, Handle: e.handle, EndHandle: e.endHandle})
			}
			if e.endHandle == 0xFFFF {
				start = 0
			} else {
				start = e.endHandle + 1
			}
		}
	}

	c.mu.Lock()
	if c.profile == nil {
		c.profile = &ble.Profile{}
	}
	c.profile.Services = services
	c.mu.Unlock()
	return services, nil
}

// FindIncluded finds the included services declared within s.
// [Vol 3, Part G, 4.5.1] An include declaration with a 16-bit service
// UUID carries it inline; a 128-bit UUID is absent from the declaration
// and is fetched with an extra ATT_READ_REQ against the included
// service's own declaration handle.
func (c *Client) FindIncluded(s *ble.Service) ([]*ble.Service, error) {
	var included []*ble.Service
	start := s.Handle
	for start <= s.EndHandle {
		length, list, err := readByTypeOnce(c.tr, start, s.EndHandle, ble.IncludeUUID)
		if err == ble.ErrAttrNotFound {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "gatt: find included services")
		}
		entries := decodeTypeEntries(length, list)
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			if len(e.value) < 4 {
				continue
			}
			inclHandle := leUint16(e.value[0:2])
			inclEnd := leUint16(e.value[2:4])
			var u ble.UUID
			if len(e.value) >= 6 {
				u = ble.UUID(e.value[4:6])
			} else {
				val, err := readOnce(c.tr, inclHandle)
				if err != nil {
					return nil, errors.Wrap(err, "gatt: read 128-bit included service UUID")
				}
				u = ble.UUID(val)
			}
			included = append(included, &ble.Service{
				UUID: u, Handle: inclHandle, EndHandle: inclEnd,
				Included: true, OwnerHandle: s.Handle,
			})
			start = e.handle + 1
		}
	}
	return included, nil
}

// DiscoverCharacteristics finds every characteristic within s, or those
// matching filter when non-nil. [Vol 3, Part G, 4.6.1]
func (c *Client) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	var chars []*ble.Characteristic
	var last *ble.Characteristic
	start := s.Handle
	for start <= s.EndHandle {
		length, list, err := readByTypeOnce(c.tr, start, s.EndHandle, ble.CharacteristicUUID)
		if err == ble.ErrAttrNotFound {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "gatt: discover characteristics")
		}
		entries := decodeTypeEntries(length, list)
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			if len(e.value) < 3 {
				continue
			}
			ch := &ble.Characteristic{
				UUID:        ble.UUID(e.value[3:]),
				Property:    ble.Property(e.value[0]),
				Handle:      e.handle,
				ValueHandle: leUint16(e.value[1:3]),
				EndHandle:   s.EndHandle,
			}
			if last != nil {
				last.EndHandle = ch.Handle - 1
			}
			last = ch
			if filter == nil || ble.Contains(filter, ch.UUID) {
				chars = append(chars, ch)
			}
			start = ch.ValueHandle + 1
		}
	}
	s.Characteristics = chars
	return chars, nil
}

// DiscoverDescriptors finds every descriptor within c, or those matching
// filter when non-nil, using ATT_FIND_INFORMATION_REQ exclusively — its
// own decode path, never characteristic discovery's fixed-width one.
// [Vol 3, Part G, 4.7.1]
func (c *Client) DiscoverDescriptors(filter []ble.UUID, ch *ble.Characteristic) ([]*ble.Descriptor, error) {
	var descs []*ble.Descriptor
	start := ch.ValueHandle + 1
	for start <= ch.EndHandle {
		format, data, err := findInformationOnce(c.tr, start, ch.EndHandle)
		if err == ble.ErrAttrNotFound {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "gatt: discover descriptors")
		}
		entries := decodeInfoEntries(format, data)
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			d := &ble.Descriptor{UUID: e.uuid, Handle: e.handle}
			if e.uuid.Equal(ble.ClientCharacteristicConfigUUID) {
				ch.CCCD = d
			}
			if filter == nil || ble.Contains(filter, e.uuid) {
				descs = append(descs, d)
			}
			start = e.handle + 1
		}
	}
	ch.Descriptors = descs
	return descs, nil
}

// DiscoverProfile walks the full service/characteristic/descriptor
// hierarchy of a server. When force is false and an attached cache holds
// a profile for the peer, that profile is returned without discovery;
// otherwise discovery runs and its result is stored in the cache, if any.
func (c *Client) DiscoverProfile(force bool) (*ble.Profile, error) {
	if !force && c.cache != nil {
		if p, err := c.cache.Load(c.conn.RemoteAddr()); err == nil {
			c.mu.Lock()
			c.profile = &p
			c.mu.Unlock()
			return &p, nil
		}
	}

	services, err := c.DiscoverPrimary(nil)
	if err != nil {
		return nil, errors.Wrap(err, "gatt: discover profile")
	}
	for _, s := range services {
		chars, err := c.DiscoverCharacteristics(nil, s)
		if err != nil {
			return nil, errors.Wrap(err, "gatt: discover profile")
		}
		for _, ch := range chars {
			if _, err := c.DiscoverDescriptors(nil, ch); err != nil {
				return nil, errors.Wrap(err, "gatt: discover profile")
			}
		}
	}

	profile := &ble.Profile{Services: services}
	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.Store(c.conn.RemoteAddr(), *profile, true); err != nil {
			c.log.Warnf("gatt: cache store failed: %v", err)
		}
	}
	return profile, nil
}

// ReadByHandle reads an attribute's value by handle. [Vol 3, Part G, 4.8.1]
func (c *Client) ReadByHandle(handle uint16) ([]byte, error) {
	return readOnce(c.tr, handle)
}

// ReadLong reads a value that may exceed ATT_MTU-1 bytes, issuing
// ATT_READ_BLOB_REQ continuations until a short read signals the end.
// [Vol 3, Part G, 4.8.3]
func (c *Client) ReadLong(handle uint16) ([]byte, error) {
	chunk, err := readOnce(c.tr, handle)
	if err != nil {
		return nil, err
	}
	buf := append([]byte{}, chunk...)
	mtu := c.conn.TxMTU()
	for len(chunk) >= mtu-1 {
		chunk, err = readBlobOnce(c.tr, handle, uint16(len(buf)))
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
		if len(chunk) == 0 {
			break
		}
	}
	return buf, nil
}

// ReadByUUID reads the value of every attribute of type u across the
// entire attribute handle range, paginating ATT_READ_BY_TYPE_REQ the same
// way DiscoverCharacteristics walks a service's declarations.
// [Vol 3, Part G, 4.8.2]
func (c *Client) ReadByUUID(u ble.UUID) ([][]byte, error) {
	var values [][]byte
	start := uint16(0x0001)
	for start != 0 {
		length, list, err := readByTypeOnce(c.tr, start, 0xFFFF, u)
		if err == ble.ErrAttrNotFound {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "gatt: read by uuid")
		}
		entries := decodeTypeEntries(length, list)
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			values = append(values, e.value)
			if e.handle == 0xFFFF {
				start = 0
			} else {
				start = e.handle + 1
			}
		}
	}
	if values == nil {
		return nil, ble.ErrAttrNotFound
	}
	return values, nil
}

// WriteByHandle writes v to handle with (noRsp==false) or without
// (noRsp==true) a server acknowledgement. [Vol 3, Part G, 4.9]
func (c *Client) WriteByHandle(handle uint16, v []byte, noRsp bool) error {
	if noRsp {
		return writeCommand(c.tr, handle, v)
	}
	return writeOnce(c.tr, handle, v)
}

// WriteSigned fires ATT_SIGNED_WRITE_CMD for handle, used on an
// unencrypted link carrying a CSRK-authenticated write. [Vol 3, Part C, 10.4.1]
func (c *Client) WriteSigned(handle uint16, v []byte, csrk [16]byte, signCounter uint32) error {
	return signedWriteCommand(c.tr, handle, v, csrk, signCounter)
}

// EnableNotifications writes the characteristic's CCCD to request
// notifications (ind==false) or indications (ind==true) and registers h
// to receive them. [Vol 3, Part G, 4.10 & 4.11]
func (c *Client) EnableNotifications(ch *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	if ch.CCCD == nil {
		return fmt.Errorf("gatt: characteristic %s has no CCCD", ch.UUID)
	}
	flag := ble.CCCNotify
	if ind {
		flag = ble.CCCIndicate
	}
	return c.setSubscription(ch, flag, h)
}

// DisableNotifications reverses EnableNotifications for the given
// direction: it drops that direction's handler and writes the CCCD back
// with that bit cleared.
func (c *Client) DisableNotifications(ch *ble.Characteristic, ind bool) error {
	if ch.CCCD == nil {
		return fmt.Errorf("gatt: characteristic %s has no CCCD", ch.UUID)
	}
	flag := ble.CCCNotify
	if ind {
		flag = ble.CCCIndicate
	}
	return c.setSubscription(ch, flag, nil)
}

func (c *Client) setSubscription(ch *ble.Characteristic, flag ble.CCC, h ble.NotificationHandler) error {
	c.mu.Lock()
	s, ok := c.subs[ch.ValueHandle]
	if !ok {
		s = &sub{cccdHandle: ch.CCCD.Handle}
		c.subs[ch.ValueHandle] = s
	}
	already := s.value&flag != 0
	c.mu.Unlock()

	switch {
	case h == nil && !already:
		return nil
	case h != nil && already:
		return nil
	case h == nil && already:
		s.value &^= flag
	case h != nil && !already:
		s.value |= flag
	}

	if flag == ble.CCCNotify {
		s.notify = h
	} else {
		s.indicate = h
	}

	v := make([]byte, 2)
	v[0] = byte(s.value)
	v[1] = byte(s.value >> 8)
	if err := writeOnce(c.tr, s.cccdHandle, v); err != nil {
		c.mu.Lock()
		delete(c.subs, ch.ValueHandle)
		c.mu.Unlock()
		return err
	}

	if s.subID == 0 {
		vh := ch.ValueHandle
		s.subID = c.tr.Subscribe(att.AllRequests, vh, func(pdu []byte) { c.onNotify(vh, pdu) })
	}
	return nil
}

// onNotify runs on the transport's loop goroutine: it is the single
// callback every notification and indication for vh is fanned out
// through, chosen by the PDU's own opcode.
func (c *Client) onNotify(vh uint16, pdu []byte) {
	c.mu.Lock()
	s, ok := c.subs[vh]
	c.mu.Unlock()
	if !ok {
		c.log.Warnf("gatt: notification for unregistered handle 0x%04X", vh)
		return
	}

	isIndication := att.Opcode(pdu[0]) == att.HandleIndCode
	data := pdu[3:]

	c.mu.Lock()
	id := s.id
	s.id++
	c.mu.Unlock()

	switch {
	case isIndication && s.indicate != nil:
		s.indicate(id, data)
	case !isIndication && s.notify != nil:
		s.notify(id, data)
	default:
		c.log.Warnf("gatt: no handler for notification on handle 0x%04X", vh)
	}
}

// ClearSubscriptions writes every standing CCCD back to zero and drops
// all notification/indication registrations.
func (c *Client) ClearSubscriptions() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[uint16]*sub)
	c.mu.Unlock()

	zero := []byte{0, 0}
	for vh, s := range subs {
		c.tr.Unsubscribe(s.subID)
		if err := writeOnce(c.tr, s.cccdHandle, zero); err != nil {
			return errors.Wrapf(err, "gatt: clear subscription on handle 0x%04X", vh)
		}
	}
	return nil
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
