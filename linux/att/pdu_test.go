package att

import (
	"bytes"
	"testing"

	"github.com/kestrel-systems/attble"
)

func TestReadRequestEncode(t *testing.T) {
	buf := make([]byte, 3)
	r := ReadRequest(buf)
	r.SetOpcode()
	r.SetAttributeHandle(0x002A)

	want := []byte{byte(ReadReqCode), 0x2A, 0x00}
	if !bytes.Equal(buf, want) {
		t.Fatalf("ReadRequest = % X, want % X", buf, want)
	}
}

func TestReadResponseDecode(t *testing.T) {
	pdu := ReadResponse([]byte{byte(ReadRespCode), 0x11, 0x22, 0x33})
	if pdu.Opcode() != ReadRespCode {
		t.Fatalf("Opcode() = 0x%02X", pdu.Opcode())
	}
	if !bytes.Equal(pdu.AttributeValue(), []byte{0x11, 0x22, 0x33}) {
		t.Fatalf("AttributeValue() = % X", pdu.AttributeValue())
	}
}

func TestWriteRequestEncode(t *testing.T) {
	value := []byte{0xDE, 0xAD}
	buf := make([]byte, 3+len(value))
	r := WriteRequest(buf)
	r.SetOpcode()
	r.SetAttributeHandle(0x0010)
	r.SetAttributeValue(value)

	want := []byte{byte(WriteReqCode), 0x10, 0x00, 0xDE, 0xAD}
	if !bytes.Equal(buf, want) {
		t.Fatalf("WriteRequest = % X, want % X", buf, want)
	}
}

func TestReadByTypeRequestEncode16BitUUID(t *testing.T) {
	buf := make([]byte, 7)
	r := ReadByTypeRequest(buf)
	r.SetOpcode()
	r.SetStartingHandle(0x0001)
	r.SetEndingHandle(0xFFFF)
	// A 2-byte short-form UUID, as opposed to its 128-bit expansion: the
	// buffer is sized for whichever form SetAttributeType is actually given.
	r.SetAttributeType(ble.UUID{0x03, 0x28})

	want := []byte{byte(ReadByTypeReqCode), 0x01, 0x00, 0xFF, 0xFF, 0x03, 0x28}
	if !bytes.Equal(buf, want) {
		t.Fatalf("ReadByTypeRequest = % X, want % X", buf, want)
	}
}

func TestReadByGroupTypeResponseDecode(t *testing.T) {
	// length=6 (2 handle + 2 handle + 2 value), two entries.
	pdu := ReadByGroupTypeResponse([]byte{
		byte(ReadByGroupRespCode), 6,
		0x01, 0x00, 0x05, 0x00, 0x00, 0x18,
		0x06, 0x00, 0x0A, 0x00, 0x0F, 0x18,
	})
	if pdu.Length() != 6 {
		t.Fatalf("Length() = %d, want 6", pdu.Length())
	}
	data := pdu.AttributeDataList()
	if len(data) != 12 {
		t.Fatalf("AttributeDataList() has %d bytes, want 12", len(data))
	}
}

func TestFindInformationRequestEncode(t *testing.T) {
	buf := make([]byte, 5)
	r := FindInformationRequest(buf)
	r.SetOpcode()
	r.SetStartingHandle(0x0001)
	r.SetEndingHandle(0xFFFF)

	want := []byte{byte(FindInfoReqCode), 0x01, 0x00, 0xFF, 0xFF}
	if !bytes.Equal(buf, want) {
		t.Fatalf("FindInformationRequest = % X, want % X", buf, want)
	}
}

func TestFindInformationResponseFields(t *testing.T) {
	pdu := FindInformationResponse([]byte{byte(FindInfoRespCode), 0x01, 0x01, 0x00, 0x00, 0x28})
	if pdu.Format() != 0x01 {
		t.Fatalf("Format() = %d, want 1 (16-bit UUIDs)", pdu.Format())
	}
	if !bytes.Equal(pdu.InformationData(), []byte{0x01, 0x00, 0x00, 0x28}) {
		t.Fatalf("InformationData() = % X", pdu.InformationData())
	}
}

func TestErrorResponseRoundTrip(t *testing.T) {
	r := NewErrorResponse(ReadReqCode, 0x0042, ble.ErrInvalidHandle)
	if r.Opcode() != ErrorRespCode {
		t.Fatalf("Opcode() = 0x%02X", r.Opcode())
	}
	if r.RequestOpcode() != ReadReqCode {
		t.Fatalf("RequestOpcode() = 0x%02X, want ReadReqCode", r.RequestOpcode())
	}
	if r.Handle() != 0x0042 {
		t.Fatalf("Handle() = 0x%04X, want 0x0042", r.Handle())
	}
	if r.ErrorCode() != ble.ErrInvalidHandle {
		t.Fatalf("ErrorCode() = %v, want ErrInvalidHandle", r.ErrorCode())
	}
}

func TestHandleValueNotificationDecode(t *testing.T) {
	pdu := HandleValueNotification([]byte{byte(HandleNotifyCode), 0x03, 0x00, 0x64})
	if pdu.AttributeHandle() != 0x0003 {
		t.Fatalf("AttributeHandle() = 0x%04X, want 0x0003", pdu.AttributeHandle())
	}
	if !bytes.Equal(pdu.AttributeValue(), []byte{0x64}) {
		t.Fatalf("AttributeValue() = % X", pdu.AttributeValue())
	}
}

func TestPDUHandle(t *testing.T) {
	h, ok := PDUHandle([]byte{byte(HandleNotifyCode), 0x07, 0x00, 0x01})
	if !ok || h != 0x0007 {
		t.Fatalf("PDUHandle = %d, %v; want 7, true", h, ok)
	}
	if _, ok := PDUHandle([]byte{byte(WriteRespCode)}); ok {
		t.Fatalf("PDUHandle should reject a PDU shorter than 3 bytes")
	}
}

func TestSignedWriteCommandLayout(t *testing.T) {
	value := []byte{0x01, 0x02}
	buf := make([]byte, 3+len(value)+12)
	r := SignedWriteCommand(buf)
	r.SetOpcode()
	r.SetAttributeHandle(0x0009)
	r.SetAttributeValue(value)
	sig := [12]byte{0, 0, 0, 1, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22}
	r.SetAuthenticationSignature(sig)

	if r[0] != byte(SignedWriteCmdCode) {
		t.Fatalf("opcode byte = 0x%02X", r[0])
	}
	if !bytes.Equal(buf[len(buf)-12:], sig[:]) {
		t.Fatalf("signature trailer = % X, want % X", buf[len(buf)-12:], sig)
	}
}
