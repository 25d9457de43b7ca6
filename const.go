package ble

// DefaultMTU is the default LE ATT_MTU, including the 3-byte ATT header
// budget a READ_RESP/WRITE_REQ leaves for a value. [Vol 3, Part F, 3.2.8]
const DefaultMTU = 23

// MaxMTU is the largest ATT_MTU this module will negotiate: 512 bytes of
// attribute value plus a 3-byte header. [Vol 3, Part F, 3.2.9]
const MaxMTU = 512 + 3

// ATTCID is the fixed L2CAP channel identifier reserved for ATT.
const ATTCID = 0x0004

// Well-known GATT declaration and descriptor UUIDs.
var (
	PrimaryServiceUUID   = UUID16(0x2800)
	SecondaryServiceUUID = UUID16(0x2801)
	IncludeUUID          = UUID16(0x2802)
	CharacteristicUUID   = UUID16(0x2803)

	ClientCharacteristicConfigUUID = UUID16(0x2902)
	ServerCharacteristicConfigUUID = UUID16(0x2903)
)

// Well-known GATT service and characteristic UUIDs (subset used by
// KnownServiceName/KnownCharacteristicName and by cmd/gattctl).
var (
	GAPUUID         = UUID16(0x1800)
	GATTServiceUUID = UUID16(0x1801)
	CurrentTimeUUID = UUID16(0x1805)
	DeviceInfoUUID  = UUID16(0x180A)
	BatteryUUID     = UUID16(0x180F)
	HeartRateUUID   = UUID16(0x180D)
	HIDUUID         = UUID16(0x1812)

	DeviceNameUUID             = UUID16(0x2A00)
	AppearanceUUID             = UUID16(0x2A01)
	BatteryLevelUUID           = UUID16(0x2A19)
	ModelNumberUUID            = UUID16(0x2A24)
	SerialNumberUUID           = UUID16(0x2A25)
	FirmwareRevisionStringUUID = UUID16(0x2A26)
	HardwareRevisionUUID       = UUID16(0x2A27)
	SoftwareRevisionStringUUID = UUID16(0x2A28)
	ManufacturerNameUUID       = UUID16(0x2A29)
	HeartRateMeasurementUUID   = UUID16(0x2A37)
)
