package hci

import "encoding/binary"

// Packet indicators, the first byte of every frame written to or read from
// an HCI_CHANNEL_USER socket. [Vol 4, Part A, 2]
const (
	pktCommand   = 0x01
	pktACLData   = 0x02
	pktEvent     = 0x04
)

// opcode packs an OGF/OCF pair the way the Bluetooth Core Spec lays an HCI
// command opcode out: OCF in the low 10 bits, OGF in the high 6.
type opcode uint16

func mkOpcode(ogf, ocf uint16) opcode { return opcode(ogf<<10 | ocf) }

const (
	ogfLinkControl = 0x01
	ogfHostCtl     = 0x03
	ogfLECtl       = 0x08
)

var (
	opReset          = mkOpcode(ogfHostCtl, 0x0003)
	opSetEventMask   = mkOpcode(ogfHostCtl, 0x0001)
	opDisconnect     = mkOpcode(ogfLinkControl, 0x0006)
	opLESetEventMask = mkOpcode(ogfLECtl, 0x0001)
	opLECreateConn   = mkOpcode(ogfLECtl, 0x000D)
	opLECreateConnCancel = mkOpcode(ogfLECtl, 0x000E)
	opLEConnUpdate   = mkOpcode(ogfLECtl, 0x0013)
)

// marshalCommand frames an HCI command packet: type | opcode:u16le | plen | params.
func marshalCommand(op opcode, params []byte) []byte {
	b := make([]byte, 4+len(params))
	b[0] = pktCommand
	binary.LittleEndian.PutUint16(b[1:3], uint16(op))
	b[3] = byte(len(params))
	copy(b[4:], params)
	return b
}

// leCreateConnParams is the parameter block for LE_Create_Connection.
// [Vol 4, Part E, 7.8.12]
type leCreateConnParams struct {
	scanInterval       uint16
	scanWindow         uint16
	filterPolicy       uint8
	peerAddressType    uint8
	peerAddress        [6]byte
	ownAddressType     uint8
	intervalMin        uint16
	intervalMax        uint16
	latency            uint16
	supervisionTimeout uint16
	minCELength        uint16
	maxCELength        uint16
}

func (p leCreateConnParams) marshal() []byte {
	b := make([]byte, 25)
	binary.LittleEndian.PutUint16(b[0:2], p.scanInterval)
	binary.LittleEndian.PutUint16(b[2:4], p.scanWindow)
	b[4] = p.filterPolicy
	b[5] = p.peerAddressType
	copy(b[6:12], p.peerAddress[:])
	b[12] = p.ownAddressType
	binary.LittleEndian.PutUint16(b[13:15], p.intervalMin)
	binary.LittleEndian.PutUint16(b[15:17], p.intervalMax)
	binary.LittleEndian.PutUint16(b[17:19], p.latency)
	binary.LittleEndian.PutUint16(b[19:21], p.supervisionTimeout)
	binary.LittleEndian.PutUint16(b[21:23], p.minCELength)
	binary.LittleEndian.PutUint16(b[23:25], p.maxCELength)
	return b
}

// leConnUpdateParams is the parameter block for LE_Connection_Update.
// [Vol 4, Part E, 7.8.18]
type leConnUpdateParams struct {
	handle             uint16
	intervalMin        uint16
	intervalMax        uint16
	latency            uint16
	supervisionTimeout uint16
	minCELength        uint16
	maxCELength        uint16
}

func (p leConnUpdateParams) marshal() []byte {
	b := make([]byte, 14)
	binary.LittleEndian.PutUint16(b[0:2], p.handle)
	binary.LittleEndian.PutUint16(b[2:4], p.intervalMin)
	binary.LittleEndian.PutUint16(b[4:6], p.intervalMax)
	binary.LittleEndian.PutUint16(b[6:8], p.latency)
	binary.LittleEndian.PutUint16(b[8:10], p.supervisionTimeout)
	binary.LittleEndian.PutUint16(b[10:12], p.minCELength)
	binary.LittleEndian.PutUint16(b[12:14], p.maxCELength)
	return b
}

func marshalDisconnect(handle uint16, reason uint8) []byte {
	b := make([]byte, 3)
	binary.LittleEndian.PutUint16(b[0:2], handle)
	b[2] = reason
	return marshalCommand(opDisconnect, b)
}
