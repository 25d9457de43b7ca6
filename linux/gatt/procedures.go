// Package gatt implements the client side of the Generic Attribute
// Profile: the discovery, read, write and notification procedures of
// [Vol 3, Part G] built on top of an att.Transport, and the Client facade
// that assembles their results into a ble.Profile.
package gatt

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/kestrel-systems/attble"
	"github.com/kestrel-systems/attble/linux/att"
)

// singlePDUTimeout bounds any procedure that completes in one or two
// request/response round trips (read, write, MTU exchange).
const singlePDUTimeout = 15 * time.Second

// discoveryTimeout bounds each round trip of a paginated discovery sweep
// (services, characteristics, descriptors); the sweep as a whole, which
// may take many round trips, has no overall deadline.
const discoveryTimeout = 75 * time.Second

// roundTrip submits pdu and blocks for the matching response or failure,
// translating the Completion Object into a plain (payload, error) pair the
// procedures above compose freely. A nil payload with a non-nil error
// means the request failed outright, not "found nothing" — callers must
// special-case ble.ErrAttrNotFound (the empty-result terminator for every
// paginated procedure) before treating it as failure.
func roundTrip(tr *att.Transport, pdu []byte, timeout time.Duration) ([]byte, error) {
	resp := ble.NewResponse()
	id := tr.Submit(pdu, func(status ble.ATTError, data []byte) {
		if status != 0 {
			resp.Notify(status)
			return
		}
		resp.OnResponse(data)
		resp.Notify(0)
	}, nil)
	if id == 0 {
		return nil, ble.ErrLocalIO
	}
	if !resp.Wait(timeout) {
		tr.Cancel(id)
		return nil, ble.ErrSynthTimeout
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.One(), nil
}

// exchangeMTU runs ATT_EXCHANGE_MTU_REQ/RSP and returns the server's
// preferred MTU. [Vol 3, Part F, 3.4.2.1]
func exchangeMTU(tr *att.Transport, clientRxMTU uint16) (uint16, error) {
	buf := tr.GetBuffer()
	if len(buf) < 3 {
		return 0, errors.New("gatt: MTU buffer too small")
	}
	req := att.ExchangeMTURequest(buf[:3])
	req.SetOpcode()
	req.SetClientRxMTU(clientRxMTU)

	data, err := roundTrip(tr, []byte(req), singlePDUTimeout)
	if err != nil {
		return 0, err
	}
	return att.ExchangeMTUResponse(data).ServerRxMTU(), nil
}

// readByGroupTypeOnce runs one ATT_READ_BY_GROUP_TYPE_REQ/RSP page,
// returning the attribute data list and each entry's length, or
// ble.ErrAttrNotFound once the attribute range is exhausted.
func readByGroupTypeOnce(tr *att.Transport, start, end uint16, groupType ble.UUID) (int, []byte, error) {
	buf := tr.GetBuffer()
	req := att.ReadByGroupTypeRequest(buf[:5+groupType.Len()])
	req.SetOpcode()
	req.SetStartingHandle(start)
	req.SetEndingHandle(end)
	req.SetAttributeGroupType(groupType)

	data, err := roundTrip(tr, []byte(req), discoveryTimeout)
	if err != nil {
		return 0, nil, err
	}
	rsp := att.ReadByGroupTypeResponse(data)
	return int(rsp.Length()), rsp.AttributeDataList(), nil
}

// readByTypeOnce runs one ATT_READ_BY_TYPE_REQ/RSP page.
func readByTypeOnce(tr *att.Transport, start, end uint16, attrType ble.UUID) (int, []byte, error) {
	buf := tr.GetBuffer()
	req := att.ReadByTypeRequest(buf[:5+attrType.Len()])
	req.SetOpcode()
	req.SetStartingHandle(start)
	req.SetEndingHandle(end)
	req.SetAttributeType(attrType)

	data, err := roundTrip(tr, []byte(req), discoveryTimeout)
	if err != nil {
		return 0, nil, err
	}
	rsp := att.ReadByTypeResponse(data)
	return int(rsp.Length()), rsp.AttributeDataList(), nil
}

// findInformationOnce runs one ATT_FIND_INFORMATION_REQ/RSP page, used
// exclusively for descriptor discovery. It has its own decode path
// (format byte + 4- or 18-byte entries) distinct from characteristic
// discovery's fixed-width ReadByType entries — the two were never the
// same wire shape and are not decoded as if they were.
func findInformationOnce(tr *att.Transport, start, end uint16) (uint8, []byte, error) {
	buf := tr.GetBuffer()
	req := att.FindInformationRequest(buf[:5])
	req.SetOpcode()
	req.SetStartingHandle(start)
	req.SetEndingHandle(end)

	data, err := roundTrip(tr, []byte(req), discoveryTimeout)
	if err != nil {
		return 0, nil, err
	}
	rsp := att.FindInformationResponse(data)
	return rsp.Format(), rsp.InformationData(), nil
}

// readOnce runs ATT_READ_REQ/RSP for handle.
func readOnce(tr *att.Transport, handle uint16) ([]byte, error) {
	buf := tr.GetBuffer()
	req := att.ReadRequest(buf[:3])
	req.SetOpcode()
	req.SetAttributeHandle(handle)

	data, err := roundTrip(tr, []byte(req), singlePDUTimeout)
	if err != nil {
		return nil, err
	}
	return att.ReadResponse(data).AttributeValue(), nil
}

// readBlobOnce runs ATT_READ_BLOB_REQ/RSP for handle at offset, used to
// continue a long read past the first ATT_MTU-1 bytes. [Vol 3, Part G, 4.8.3]
func readBlobOnce(tr *att.Transport, handle, offset uint16) ([]byte, error) {
	buf := tr.GetBuffer()
	req := att.ReadBlobRequest(buf[:5])
	req.SetOpcode()
	req.SetAttributeHandle(handle)
	req.SetValueOffset(offset)

	data, err := roundTrip(tr, []byte(req), singlePDUTimeout)
	if err != nil {
		return nil, err
	}
	return att.ReadBlobResponse(data).PartAttributeValue(), nil
}

// writeOnce runs ATT_WRITE_REQ/RSP for handle with value v.
func writeOnce(tr *att.Transport, handle uint16, v []byte) error {
	buf := tr.GetBuffer()
	need := 3 + len(v)
	if len(buf) < need {
		return errors.New("gatt: write value exceeds negotiated MTU")
	}
	req := att.WriteRequest(buf[:need])
	req.SetOpcode()
	req.SetAttributeHandle(handle)
	req.SetAttributeValue(v)

	_, err := roundTrip(tr, []byte(req), singlePDUTimeout)
	return err
}

// writeCommand fires ATT_WRITE_CMD for handle with value v. It has no
// response to wait for: Submit's callback runs the instant the command is
// written (invariant I4), so this only surfaces a submission failure.
func writeCommand(tr *att.Transport, handle uint16, v []byte) error {
	buf := tr.GetBuffer()
	need := 3 + len(v)
	if len(buf) < need {
		return errors.New("gatt: write value exceeds negotiated MTU")
	}
	cmd := att.WriteCommand(buf[:need])
	cmd.SetOpcode()
	cmd.SetAttributeHandle(handle)
	cmd.SetAttributeValue(v)

	done := make(chan error, 1)
	id := tr.Submit([]byte(cmd), func(status ble.ATTError, _ []byte) {
		if status != 0 {
			done <- status
			return
		}
		done <- nil
	}, nil)
	if id == 0 {
		return ble.ErrLocalIO
	}
	select {
	case err := <-done:
		return err
	case <-time.After(singlePDUTimeout):
		tr.Cancel(id)
		return ble.ErrSynthTimeout
	}
}

// signedWriteCommand fires ATT_SIGNED_WRITE_CMD for handle with value v,
// signed with csrk/signCounter. [Vol 3, Part C, 10.4.1]
func signedWriteCommand(tr *att.Transport, handle uint16, v []byte, csrk [16]byte, signCounter uint32) error {
	buf := tr.GetBuffer()
	pdu, err := att.BuildSignedWrite(buf, handle, v, csrk, signCounter)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	id := tr.Submit([]byte(pdu), func(status ble.ATTError, _ []byte) {
		if status != 0 {
			done <- status
			return
		}
		done <- nil
	}, nil)
	if id == 0 {
		return ble.ErrLocalIO
	}
	select {
	case err := <-done:
		return err
	case <-time.After(singlePDUTimeout):
		tr.Cancel(id)
		return ble.ErrSynthTimeout
	}
}

// groupEntry and typeEntry decode one fixed-width record out of a
// READ_BY_GROUP_TYPE or READ_BY_TYPE attribute data list.
type groupEntry struct {
	handle, endHandle uint16
	value             []byte
}

func decodeGroupEntries(length int, list []byte) []groupEntry {
	var out []groupEntry
	for len(list) >= length {
		out = append(out, groupEntry{
			handle:    binary.LittleEndian.Uint16(list[0:2]),
			endHandle: binary.LittleEndian.Uint16(list[2:4]),
			value:     list[4:length],
		})
		list = list[length:]
	}
	return out
}

type typeEntry struct {
	handle uint16
	value  []byte
}

func decodeTypeEntries(length int, list []byte) []typeEntry {
	var out []typeEntry
	for len(list) >= length {
		out = append(out, typeEntry{
			handle: binary.LittleEndian.Uint16(list[0:2]),
			value:  list[2:length],
		})
		list = list[length:]
	}
	return out
}

// infoEntry decodes one FIND_INFORMATION record: format 0x01 is a 2-byte
// handle plus a 16-bit UUID (4 bytes total); format 0x02 is a 2-byte
// handle plus a 128-bit UUID (18 bytes total).
type infoEntry struct {
	handle uint16
	uuid   ble.UUID
}

func decodeInfoEntries(format uint8, data []byte) []infoEntry {
	width := 4
	uuidLen := 2
	if format == 0x02 {
		width = 18
		uuidLen = 16
	}
	var out []infoEntry
	for len(data) >= width {
		out = append(out, infoEntry{
			handle: binary.LittleEndian.Uint16(data[0:2]),
			uuid:   ble.UUID(data[2 : 2+uuidLen]),
		})
		data = data[width:]
	}
	return out
}
