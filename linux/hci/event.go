package hci

import "encoding/binary"

// HCI event codes this module reacts to. [Vol 4, Part E, 7.7]
const (
	evtDisconnectionComplete = 0x05
	evtCommandComplete       = 0x0E
	evtCommandStatus         = 0x0F
	evtLEMeta                = 0x3E
)

// LE Meta subevent codes. [Vol 4, Part E, 7.7.65]
const (
	subevtLEConnectionComplete       = 0x01
	subevtLEConnectionUpdateComplete = 0x03
)

type eventHeader struct {
	code uint8
	plen uint8
}

func parseEventHeader(b []byte) (eventHeader, []byte, bool) {
	if len(b) < 2 {
		return eventHeader{}, nil, false
	}
	h := eventHeader{code: b[0], plen: b[1]}
	if len(b) < 2+int(h.plen) {
		return eventHeader{}, nil, false
	}
	return h, b[2 : 2+int(h.plen)], true
}

type leConnectionCompleteEvent struct {
	status             uint8
	handle             uint16
	role               uint8
	peerAddressType    uint8
	peerAddress        [6]byte
	intervalMin        uint16
	latency            uint16
	supervisionTimeout uint16
}

func parseLEConnectionComplete(p []byte) (leConnectionCompleteEvent, bool) {
	if len(p) < 19 {
		return leConnectionCompleteEvent{}, false
	}
	var ev leConnectionCompleteEvent
	ev.status = p[1]
	ev.handle = binary.LittleEndian.Uint16(p[2:4])
	ev.role = p[4]
	ev.peerAddressType = p[5]
	copy(ev.peerAddress[:], p[6:12])
	ev.intervalMin = binary.LittleEndian.Uint16(p[12:14])
	ev.latency = binary.LittleEndian.Uint16(p[14:16])
	ev.supervisionTimeout = binary.LittleEndian.Uint16(p[16:18])
	return ev, true
}

type disconnectionCompleteEvent struct {
	status uint8
	handle uint16
	reason uint8
}

func parseDisconnectionComplete(p []byte) (disconnectionCompleteEvent, bool) {
	if len(p) < 4 {
		return disconnectionCompleteEvent{}, false
	}
	return disconnectionCompleteEvent{
		status: p[0],
		handle: binary.LittleEndian.Uint16(p[1:3]),
		reason: p[3],
	}, true
}

type commandCompleteEvent struct {
	numPackets uint8
	opcode     opcode
	returnParams []byte
}

func parseCommandComplete(p []byte) (commandCompleteEvent, bool) {
	if len(p) < 3 {
		return commandCompleteEvent{}, false
	}
	return commandCompleteEvent{
		numPackets:   p[0],
		opcode:       opcode(binary.LittleEndian.Uint16(p[1:3])),
		returnParams: p[3:],
	}, true
}

type commandStatusEvent struct {
	status     uint8
	numPackets uint8
	opcode     opcode
}

func parseCommandStatus(p []byte) (commandStatusEvent, bool) {
	if len(p) < 4 {
		return commandStatusEvent{}, false
	}
	return commandStatusEvent{
		status:     p[0],
		numPackets: p[1],
		opcode:     opcode(binary.LittleEndian.Uint16(p[2:4])),
	}, true
}

// aclHeader is the 4-byte HCI ACL Data packet header that precedes an
// L2CAP fragment: 12-bit connection handle + 2-bit packet-boundary flag +
// 2-bit broadcast flag, then a little-endian data length.
// [Vol 4, Part E, 5.4.2]
type aclHeader struct {
	handle uint16
	flags  uint8
	dlen   uint16
}

func parseACLHeader(b []byte) (aclHeader, []byte, bool) {
	if len(b) < 4 {
		return aclHeader{}, nil, false
	}
	h := aclHeader{
		handle: uint16(b[0]) | uint16(b[1]&0x0F)<<8,
		flags:  b[1] >> 4,
		dlen:   binary.LittleEndian.Uint16(b[2:4]),
	}
	if len(b) < 4+int(h.dlen) {
		return aclHeader{}, nil, false
	}
	return h, b[4 : 4+int(h.dlen)], true
}

const aclFlagStart = 0x00
const aclFlagContinuation = 0x01
