package att

import (
	"encoding/binary"

	"github.com/kestrel-systems/attble"
)

// Each PDU type below is a thin view over a byte slice: setter methods
// encode a request directly into a caller-supplied buffer (e.g.
// ReadByTypeRequest(buf)), and accessor methods on the matching *Response
// type decode. All multi-byte fields are little-endian on the wire.

// ErrorResponse = 0x01 | req_opcode | handle:u16le | ecode.
type ErrorResponse []byte

func NewErrorResponse(reqOpcode Opcode, handle uint16, ecode ble.ATTError) ErrorResponse {
	b := make(ErrorResponse, 5)
	b[0] = byte(ErrorRespCode)
	b[1] = byte(reqOpcode)
	binary.LittleEndian.PutUint16(b[2:4], handle)
	b[4] = byte(ecode)
	return b
}

func (r ErrorResponse) Opcode() Opcode         { return Opcode(r[0]) }
func (r ErrorResponse) RequestOpcode() Opcode  { return Opcode(r[1]) }
func (r ErrorResponse) Handle() uint16         { return binary.LittleEndian.Uint16(r[2:4]) }
func (r ErrorResponse) ErrorCode() ble.ATTError { return ble.ATTError(r[4]) }

// ExchangeMTURequest = 0x02 | mtu:u16le.
type ExchangeMTURequest []byte

func (r ExchangeMTURequest) SetOpcode()          { r[0] = byte(ExchangeMTUReqCode) }
func (r ExchangeMTURequest) SetClientRxMTU(v uint16) { binary.LittleEndian.PutUint16(r[1:3], v) }
func (r ExchangeMTURequest) ClientRxMTU() uint16 { return binary.LittleEndian.Uint16(r[1:3]) }

// ExchangeMTUResponse = 0x03 | mtu:u16le.
type ExchangeMTUResponse []byte

func (r ExchangeMTUResponse) Opcode() Opcode      { return Opcode(r[0]) }
func (r ExchangeMTUResponse) ServerRxMTU() uint16 { return binary.LittleEndian.Uint16(r[1:3]) }

// FindInformationRequest = 0x04 | start:u16le | end:u16le.
type FindInformationRequest []byte

func (r FindInformationRequest) SetOpcode()           { r[0] = byte(FindInfoReqCode) }
func (r FindInformationRequest) SetStartingHandle(h uint16) { binary.LittleEndian.PutUint16(r[1:3], h) }
func (r FindInformationRequest) SetEndingHandle(h uint16)   { binary.LittleEndian.PutUint16(r[3:5], h) }

// FindInformationResponse = 0x05 | format | (handle,uuid)*.
// format=0x01 -> 16-bit UUIDs (4 bytes/entry); format=0x02 -> 128-bit (18 bytes/entry).
type FindInformationResponse []byte

func (r FindInformationResponse) Opcode() Opcode { return Opcode(r[0]) }
func (r FindInformationResponse) Format() uint8  { return r[1] }
func (r FindInformationResponse) InformationData() []byte { return r[2:] }

// ReadByTypeRequest = 0x08 | start:u16le | end:u16le | uuid(2|16).
type ReadByTypeRequest []byte

func (r ReadByTypeRequest) SetOpcode()              { r[0] = byte(ReadByTypeReqCode) }
func (r ReadByTypeRequest) SetStartingHandle(h uint16) { binary.LittleEndian.PutUint16(r[1:3], h) }
func (r ReadByTypeRequest) SetEndingHandle(h uint16)   { binary.LittleEndian.PutUint16(r[3:5], h) }
func (r ReadByTypeRequest) SetAttributeType(u ble.UUID) { copy(r[5:], []byte(u)) }

// ReadByTypeResponse = 0x09 | length | (handle:u16le|value[length-2])*.
type ReadByTypeResponse []byte

func (r ReadByTypeResponse) Opcode() Opcode            { return Opcode(r[0]) }
func (r ReadByTypeResponse) Length() uint8             { return r[1] }
func (r ReadByTypeResponse) AttributeDataList() []byte { return r[2:] }

// ReadRequest = 0x0A | handle:u16le.
type ReadRequest []byte

func (r ReadRequest) SetOpcode()              { r[0] = byte(ReadReqCode) }
func (r ReadRequest) SetAttributeHandle(h uint16) { binary.LittleEndian.PutUint16(r[1:3], h) }

// ReadResponse = 0x0B | value.
type ReadResponse []byte

func (r ReadResponse) Opcode() Opcode         { return Opcode(r[0]) }
func (r ReadResponse) AttributeValue() []byte { return r[1:] }

// ReadBlobRequest = 0x0C | handle:u16le | offset:u16le.
type ReadBlobRequest []byte

func (r ReadBlobRequest) SetOpcode()              { r[0] = byte(ReadBlobReqCode) }
func (r ReadBlobRequest) SetAttributeHandle(h uint16) { binary.LittleEndian.PutUint16(r[1:3], h) }
func (r ReadBlobRequest) SetValueOffset(o uint16)     { binary.LittleEndian.PutUint16(r[3:5], o) }

// ReadBlobResponse = 0x0D | part-value.
type ReadBlobResponse []byte

func (r ReadBlobResponse) Opcode() Opcode             { return Opcode(r[0]) }
func (r ReadBlobResponse) PartAttributeValue() []byte { return r[1:] }

// ReadMultipleRequest = 0x0E | (handle:u16le)+.
type ReadMultipleRequest []byte

func (r ReadMultipleRequest) SetOpcode()      { r[0] = byte(ReadMultiReqCode) }
func (r ReadMultipleRequest) SetOfHandles() []byte { return r[1:] }

// ReadMultipleResponse = 0x0F | values.
type ReadMultipleResponse []byte

func (r ReadMultipleResponse) Opcode() Opcode       { return Opcode(r[0]) }
func (r ReadMultipleResponse) SetOfValues() []byte { return r[1:] }

// ReadByGroupTypeRequest = 0x10 | start:u16le | end:u16le | uuid(2|16).
type ReadByGroupTypeRequest []byte

func (r ReadByGroupTypeRequest) SetOpcode()                 { r[0] = byte(ReadByGroupReqCode) }
func (r ReadByGroupTypeRequest) SetStartingHandle(h uint16) { binary.LittleEndian.PutUint16(r[1:3], h) }
func (r ReadByGroupTypeRequest) SetEndingHandle(h uint16)   { binary.LittleEndian.PutUint16(r[3:5], h) }
func (r ReadByGroupTypeRequest) SetAttributeGroupType(u ble.UUID) { copy(r[5:], []byte(u)) }

// ReadByGroupTypeResponse = 0x11 | length | (start:u16le|end:u16le|value[length-4])*.
type ReadByGroupTypeResponse []byte

func (r ReadByGroupTypeResponse) Opcode() Opcode            { return Opcode(r[0]) }
func (r ReadByGroupTypeResponse) Length() uint8             { return r[1] }
func (r ReadByGroupTypeResponse) AttributeDataList() []byte { return r[2:] }

// WriteRequest = 0x12 | handle:u16le | value.
type WriteRequest []byte

func (r WriteRequest) SetOpcode()              { r[0] = byte(WriteReqCode) }
func (r WriteRequest) SetAttributeHandle(h uint16) { binary.LittleEndian.PutUint16(r[1:3], h) }
func (r WriteRequest) SetAttributeValue(v []byte)  { copy(r[3:], v) }

// WriteResponse = 0x13 (no payload).
type WriteResponse []byte

func (r WriteResponse) Opcode() Opcode { return Opcode(r[0]) }

// WriteCommand = 0x52 | handle:u16le | value.
type WriteCommand []byte

func (r WriteCommand) SetOpcode()              { r[0] = byte(WriteCmdCode) }
func (r WriteCommand) SetAttributeHandle(h uint16) { binary.LittleEndian.PutUint16(r[1:3], h) }
func (r WriteCommand) SetAttributeValue(v []byte)  { copy(r[3:], v) }

// SignedWriteCommand = 0xD2 | handle:u16le | value | signCounter:u32le | mac:8.
type SignedWriteCommand []byte

func (r SignedWriteCommand) SetOpcode()               { r[0] = byte(SignedWriteCmdCode) }
func (r SignedWriteCommand) SetAttributeHandle(h uint16) { binary.LittleEndian.PutUint16(r[1:3], h) }
func (r SignedWriteCommand) SetAttributeValue(v []byte)  { copy(r[3:3+len(v)], v) }
func (r SignedWriteCommand) SetAuthenticationSignature(sig [12]byte) {
	copy(r[len(r)-12:], sig[:])
}

// PrepareWriteRequest = 0x16 | handle:u16le | offset:u16le | part-value.
type PrepareWriteRequest []byte

func (r PrepareWriteRequest) SetOpcode()              { r[0] = byte(PrepWriteReqCode) }
func (r PrepareWriteRequest) SetAttributeHandle(h uint16) { binary.LittleEndian.PutUint16(r[1:3], h) }
func (r PrepareWriteRequest) SetValueOffset(o uint16)     { binary.LittleEndian.PutUint16(r[3:5], o) }
func (r PrepareWriteRequest) SetPartAttributeValue(v []byte) { copy(r[5:], v) }

// PrepareWriteResponse = 0x17 | handle:u16le | offset:u16le | part-value.
type PrepareWriteResponse []byte

func (r PrepareWriteResponse) Opcode() Opcode             { return Opcode(r[0]) }
func (r PrepareWriteResponse) AttributeHandle() uint16    { return binary.LittleEndian.Uint16(r[1:3]) }
func (r PrepareWriteResponse) ValueOffset() uint16        { return binary.LittleEndian.Uint16(r[3:5]) }
func (r PrepareWriteResponse) PartAttributeValue() []byte { return r[5:] }

// ExecuteWriteRequest = 0x18 | flags.
type ExecuteWriteRequest []byte

func (r ExecuteWriteRequest) SetOpcode()    { r[0] = byte(ExecWriteReqCode) }
func (r ExecuteWriteRequest) SetFlags(f uint8) { r[1] = f }

// ExecuteWriteResponse = 0x19 (no payload).
type ExecuteWriteResponse []byte

func (r ExecuteWriteResponse) Opcode() Opcode { return Opcode(r[0]) }

// HandleValueNotification = 0x1B | handle:u16le | value.
type HandleValueNotification []byte

func (r HandleValueNotification) Opcode() Opcode         { return Opcode(r[0]) }
func (r HandleValueNotification) AttributeHandle() uint16 { return binary.LittleEndian.Uint16(r[1:3]) }
func (r HandleValueNotification) AttributeValue() []byte { return r[3:] }

// HandleValueIndication = 0x1D | handle:u16le | value.
type HandleValueIndication []byte

func (r HandleValueIndication) Opcode() Opcode         { return Opcode(r[0]) }
func (r HandleValueIndication) AttributeHandle() uint16 { return binary.LittleEndian.Uint16(r[1:3]) }
func (r HandleValueIndication) AttributeValue() []byte { return r[3:] }

// HandleValueConfirmation = 0x1E (no payload).
var HandleValueConfirmation = []byte{byte(HandleCnfCode)}

// PDUHandle extracts the little-endian handle at byte offset 1, for PDUs
// of length >= 3 — used by event fanout matching.
func PDUHandle(pdu []byte) (uint16, bool) {
	if len(pdu) < 3 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(pdu[1:3]), true
}
