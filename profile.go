package ble

// NotificationHandler is invoked for each notification or indication
// delivered to a subscribed characteristic. id increments once per
// delivery on that subscription, data is the attribute value as received
// (never retained by the caller beyond the call).
type NotificationHandler func(id uint, data []byte)

// Property is the characteristic properties bitmask.
type Property uint8

const (
	CharBroadcast         Property = 0x01
	CharRead              Property = 0x02
	CharWriteWithoutResp  Property = 0x04
	CharWrite             Property = 0x08
	CharNotify            Property = 0x10
	CharIndicate          Property = 0x20
	CharAuth              Property = 0x40
	CharExt               Property = 0x80
)

func (p Property) String() string {
	names := []struct {
		bit  Property
		name string
	}{
		{CharBroadcast, "broadcast"},
		{CharRead, "read"},
		{CharWriteWithoutResp, "write-without-response"},
		{CharWrite, "write"},
		{CharNotify, "notify"},
		{CharIndicate, "indicate"},
		{CharAuth, "auth-signed-write"},
		{CharExt, "extended"},
	}
	s := ""
	for _, n := range names {
		if p&n.bit != 0 {
			if s != "" {
				s += ","
			}
			s += n.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// CCC is the Client Characteristic Configuration descriptor value bitmask.
type CCC uint16

const (
	CCCNotify   CCC = 0x0001
	CCCIndicate CCC = 0x0002
)

// Descriptor is a discovered characteristic descriptor.
type Descriptor struct {
	UUID   UUID
	Handle uint16
	Value  []byte
}

// Characteristic is a discovered GATT characteristic.
type Characteristic struct {
	UUID        UUID
	Handle      uint16 // declaration handle
	Property    Property
	ValueHandle uint16
	EndHandle   uint16 // last handle belonging to this characteristic (inclusive)
	Value       []byte
	Descriptors []*Descriptor
	CCCD        *Descriptor
}

// Service is a discovered primary or included GATT service.
type Service struct {
	UUID            UUID
	Handle          uint16 // start handle
	EndHandle       uint16
	Characteristics []*Characteristic
	// Included, when this Service was reached through include discovery,
	// names the owning service's declaration handle.
	Included bool
	OwnerHandle uint16
}

// Profile is the client's materialized view of everything discovered on a
// peripheral: the ordered set of primary services and, recursively, their
// characteristics and descriptors.
type Profile struct {
	Services []*Service
}

// FindCharacteristic looks up a characteristic by UUID across every
// discovered service, returning the first match in service/handle order.
func (p *Profile) FindCharacteristic(u UUID) *Characteristic {
	for _, s := range p.Services {
		for _, c := range s.Characteristics {
			if c.UUID.Equal(u) {
				return c
			}
		}
	}
	return nil
}

// FindService looks up a discovered service by UUID.
func (p *Profile) FindService(u UUID) *Service {
	for _, s := range p.Services {
		if s.UUID.Equal(u) {
			return s
		}
	}
	return nil
}
