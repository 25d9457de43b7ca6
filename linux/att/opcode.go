// Package att implements the client side of the Bluetooth Attribute
// Protocol: the pure PDU codec (this file and pdu.go) and the
// reference-counted Transport Engine (transport.go) that serializes
// requests onto a single L2CAP channel. [Vol 3, Part F]
package att

// Opcode is an ATT PDU's first byte.
type Opcode uint8

const (
	ErrorRespCode Opcode = 0x01

	ExchangeMTUReqCode  Opcode = 0x02
	ExchangeMTURespCode Opcode = 0x03

	FindInfoReqCode  Opcode = 0x04
	FindInfoRespCode Opcode = 0x05

	FindByTypeReqCode  Opcode = 0x06
	FindByTypeRespCode Opcode = 0x07

	ReadByTypeReqCode  Opcode = 0x08
	ReadByTypeRespCode Opcode = 0x09

	ReadReqCode  Opcode = 0x0A
	ReadRespCode Opcode = 0x0B

	ReadBlobReqCode  Opcode = 0x0C
	ReadBlobRespCode Opcode = 0x0D

	ReadMultiReqCode  Opcode = 0x0E
	ReadMultiRespCode Opcode = 0x0F

	ReadByGroupReqCode  Opcode = 0x10
	ReadByGroupRespCode Opcode = 0x11

	WriteReqCode  Opcode = 0x12
	WriteRespCode Opcode = 0x13

	PrepWriteReqCode  Opcode = 0x16
	PrepWriteRespCode Opcode = 0x17

	ExecWriteReqCode  Opcode = 0x18
	ExecWriteRespCode Opcode = 0x19

	HandleNotifyCode Opcode = 0x1B
	HandleIndCode    Opcode = 0x1D
	HandleCnfCode    Opcode = 0x1E

	WriteCmdCode       Opcode = 0x52
	SignedWriteCmdCode Opcode = 0xD2
)

// AllRequests and AllHandles are the event-subscription wildcards:
// AllRequests matches any opcode the Transport fans out (HANDLE_NOTIFY and
// HANDLE_IND), AllHandles matches any attribute handle.
const (
	AllRequests Opcode = 0x00
	AllHandles  uint16 = 0x0000
)

// expectedResponse is the opcode -> expected-response table derived from
// the Attribute Protocol's PDU definitions. Opcodes absent from this map (and WRITE_CMD,
// SIGNED_WRITE) expect nothing: expected == 0.
var expectedResponse = map[Opcode]Opcode{
	ExchangeMTUReqCode: ExchangeMTURespCode,
	FindInfoReqCode:    FindInfoRespCode,
	FindByTypeReqCode:  FindByTypeRespCode,
	ReadByTypeReqCode:  ReadByTypeRespCode,
	ReadReqCode:        ReadRespCode,
	ReadBlobReqCode:    ReadBlobRespCode,
	ReadMultiReqCode:   ReadMultiRespCode,
	ReadByGroupReqCode: ReadByGroupRespCode,
	WriteReqCode:       WriteRespCode,
	PrepWriteReqCode:   PrepWriteRespCode,
	ExecWriteReqCode:   ExecWriteRespCode,
	HandleIndCode:      HandleCnfCode,
}

// ExpectedResponse returns the opcode a submitted PDU expects in reply, or
// 0 if none (WRITE_CMD, SIGNED_WRITE, HANDLE_NOTIFY, … have none).
func ExpectedResponse(req Opcode) Opcode {
	return expectedResponse[req]
}

// IsResponse reports whether opcode belongs to a server-originated reply:
// every *_RESP opcode, plus ERROR and HANDLE_CNF.
func IsResponse(op Opcode) bool {
	switch op {
	case ErrorRespCode, ExchangeMTURespCode, FindInfoRespCode, FindByTypeRespCode,
		ReadByTypeRespCode, ReadRespCode, ReadBlobRespCode, ReadMultiRespCode,
		ReadByGroupRespCode, WriteRespCode, PrepWriteRespCode, ExecWriteRespCode,
		HandleCnfCode:
		return true
	default:
		return false
	}
}

// IsRequest reports whether opcode belongs to a client-originated request:
// every *_REQ opcode, plus WRITE_CMD.
func IsRequest(op Opcode) bool {
	switch op {
	case ExchangeMTUReqCode, FindInfoReqCode, FindByTypeReqCode, ReadByTypeReqCode,
		ReadReqCode, ReadBlobReqCode, ReadMultiReqCode, ReadByGroupReqCode,
		WriteReqCode, PrepWriteReqCode, ExecWriteReqCode, WriteCmdCode:
		return true
	default:
		return false
	}
}
