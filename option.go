package ble

import "time"

// ConnParams carries the HCI-level link parameters for a connection.
type ConnParams struct {
	ChannelType       AddrType
	Security          SecurityLevel
	PSM               uint16
	MTU               int
	IntervalMin       uint16 // 1.25ms units, [0x0006, 0x0C80] or 0xFFFF
	IntervalMax       uint16
	SlaveLatency      uint16 // events, [0, 0x01F3]
	SupervisionTimeout uint16 // 10ms units, [0x000A, 0x0C80] or 0xFFFF
}

// DefaultConnParams matches the public API surface's documented defaults
// for this API: conn_interval_min=24, conn_interval_max=40,
// slave_latency=0, supervision_timeout=700.
func DefaultConnParams() ConnParams {
	return ConnParams{
		ChannelType:        AddrTypePublic,
		Security:           SecurityLow,
		PSM:                0,
		MTU:                0,
		IntervalMin:        24,
		IntervalMax:        40,
		SlaveLatency:       0,
		SupervisionTimeout: 700,
	}
}

// Validate enforces the Core Spec's range contracts, returning an
// InvalidArgument IOError on violation.
func (p ConnParams) Validate() error {
	inRange16 := func(v uint16) bool { return v == 0xFFFF || (v >= 0x0006 && v <= 0x0C80) }
	if !inRange16(p.IntervalMin) || !inRange16(p.IntervalMax) {
		return NewIOError(InvalidArgument, 0)
	}
	if p.SlaveLatency > 0x01F3 {
		return NewIOError(InvalidArgument, 0)
	}
	if p.SupervisionTimeout != 0xFFFF && (p.SupervisionTimeout < 0x000A || p.SupervisionTimeout > 0x0C80) {
		return NewIOError(InvalidArgument, 0)
	}
	if p.IntervalMin != 0xFFFF && p.IntervalMax != 0xFFFF && p.IntervalMin > p.IntervalMax {
		return NewIOError(InvalidArgument, 0)
	}
	return nil
}

// DeviceConfig is the aggregate configuration an Option mutates. It is
// exported so the linux package's Requester, which cannot itself live in
// package ble without creating an import cycle, can resolve Option values
// passed to its own constructor.
type DeviceConfig struct {
	Name           string
	HCIDeviceName  string
	Logger         Logger
	Cache          GattCache
	ConnectTimeout time.Duration
}

// Option configures a Requester at construction time, the usual
// functional-option constructor shape
// (linux.Open(hciDeviceName string, opts ...ble.Option)).
type Option func(*DeviceConfig)

// WithDeviceName sets the local GAP device name (currently cosmetic: this
// module never advertises, per design choice).
func WithDeviceName(name string) Option {
	return func(c *DeviceConfig) { c.Name = name }
}

// WithHCIDevice selects the kernel HCI device ("hci0" by default).
func WithHCIDevice(name string) Option {
	return func(c *DeviceConfig) { c.HCIDeviceName = name }
}

// WithLogger overrides the default logrus-backed Logger.
func WithLogger(l Logger) Option {
	return func(c *DeviceConfig) { c.Logger = l }
}

// WithGattCache attaches a GattCache so repeat connections can skip
// re-running full discovery.
func WithGattCache(cache GattCache) Option {
	return func(c *DeviceConfig) { c.Cache = cache }
}

// WithConnectTimeout bounds how long Requester.Connect(wait=true) waits
// for the link to come up (15s default).
func WithConnectTimeout(d time.Duration) Option {
	return func(c *DeviceConfig) { c.ConnectTimeout = d }
}

// DefaultDeviceConfig returns the baseline configuration every
// constructor starts from before applying its Option arguments.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Name:           "Gopher",
		HCIDeviceName:  "hci0",
		Logger:         NewLogger(),
		ConnectTimeout: 15 * time.Second,
	}
}
