package ble

// knownServiceNames and knownCharacteristicNames attach a small,
// human-readable name to the well-known 16-bit assigned numbers declared
// as UUID constants in const.go, used by
// cmd/gattctl's discovery output. This is cosmetic only; discovery
// semantics never depend on the name being known.
var knownServiceNames = map[uint16]string{
	0x1800: "Generic Access",
	0x1801: "Generic Attribute",
	0x1805: "Current Time",
	0x180A: "Device Information",
	0x180D: "Heart Rate",
	0x180F: "Battery Service",
	0x1812: "Human Interface Device",
}

var knownCharacteristicNames = map[uint16]string{
	0x2A00: "Device Name",
	0x2A01: "Appearance",
	0x2A19: "Battery Level",
	0x2A24: "Model Number String",
	0x2A25: "Serial Number String",
	0x2A26: "Firmware Revision String",
	0x2A27: "Hardware Revision String",
	0x2A28: "Software Revision String",
	0x2A29: "Manufacturer Name String",
	0x2A37: "Heart Rate Measurement",
}

// KnownServiceName returns the human-readable name for a well-known
// service UUID, or "" if the UUID is not in the table.
func KnownServiceName(u UUID) string {
	if v, ok := u.Uint16(); ok {
		return knownServiceNames[v]
	}
	return ""
}

// KnownCharacteristicName returns the human-readable name for a
// well-known characteristic UUID, or "" if the UUID is not in the table.
func KnownCharacteristicName(u UUID) string {
	if v, ok := u.Uint16(); ok {
		return knownCharacteristicNames[v]
	}
	return ""
}
