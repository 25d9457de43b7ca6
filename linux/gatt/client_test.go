package gatt

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/kestrel-systems/attble"
	"github.com/kestrel-systems/attble/linux/att"
)

// newTestClient builds a Client over a real Transport/fake-pipe pair; the
// returned net.Conn is the peer side the test drives directly.
func newTestClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	tr, server := newTestTransport(t)
	logConn, _ := newFakeConnPair()
	c := NewClient(logConn, tr, nil, nil)
	return c, server
}

func TestReadByUUIDAccumulatesAcrossPages(t *testing.T) {
	c, server := newTestClient(t)

	resultCh := make(chan [][]byte, 1)
	errCh := make(chan error, 1)
	go func() {
		values, err := c.ReadByUUID(ble.BatteryLevelUUID)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- values
	}()

	// First page: two entries, handles 0x0003 and 0x0005; not yet exhausted.
	readWithDeadline(t, server, 21)
	page1 := []byte{
		byte(att.ReadByTypeRespCode), 3,
		0x03, 0x00, 0x64,
		0x05, 0x00, 0x50,
	}
	if _, err := server.Write(page1); err != nil {
		t.Fatalf("server write: %v", err)
	}

	// Second page, starting past handle 0x0005: one more entry, then ATTR_NOT_FOUND.
	readWithDeadline(t, server, 21)
	page2 := []byte{byte(att.ReadByTypeRespCode), 3, 0x08, 0x00, 0x46}
	if _, err := server.Write(page2); err != nil {
		t.Fatalf("server write: %v", err)
	}

	readWithDeadline(t, server, 21)
	errResp := att.NewErrorResponse(att.ReadByTypeReqCode, 0x0009, ble.ErrAttrNotFound)
	if _, err := server.Write([]byte(errResp)); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case values := <-resultCh:
		if len(values) != 3 {
			t.Fatalf("got %d values, want 3", len(values))
		}
		if !bytes.Equal(values[0], []byte{0x64}) || !bytes.Equal(values[1], []byte{0x50}) || !bytes.Equal(values[2], []byte{0x46}) {
			t.Fatalf("values = %v", values)
		}
	case err := <-errCh:
		t.Fatalf("ReadByUUID failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadByUUID never returned")
	}
}

func TestReadByUUIDNoMatchReturnsAttrNotFound(t *testing.T) {
	c, server := newTestClient(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.ReadByUUID(ble.BatteryLevelUUID)
		errCh <- err
	}()

	readWithDeadline(t, server, 21)
	errResp := att.NewErrorResponse(att.ReadByTypeReqCode, 0x0001, ble.ErrAttrNotFound)
	if _, err := server.Write([]byte(errResp)); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case err := <-errCh:
		if err != ble.ErrAttrNotFound {
			t.Fatalf("err = %v, want ErrAttrNotFound", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadByUUID never returned")
	}
}
