package att

import (
	"net"
	"testing"
	"time"

	"github.com/kestrel-systems/attble"
	"github.com/kestrel-systems/attble/linux/hci"
)

func newTestTransport(t *testing.T) (*Transport, net.Conn) {
	t.Helper()
	fc, server := newFakeConnPair()
	loop := hci.NewLoop()
	loop.Start()
	tr := NewTransport(fc, loop, nil)
	t.Cleanup(func() {
		loop.Stop()
		server.Close()
	})
	return tr, server
}

func readWithDeadline(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := conn.Read(buf[got:])
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got += m
	}
	return buf
}

func TestSubmitWritesPDUAndMatchesResponse(t *testing.T) {
	tr, server := newTestTransport(t)

	result := make(chan struct {
		status ble.ATTError
		pdu    []byte
	}, 1)
	req := []byte{byte(ReadReqCode), 0x01, 0x00}
	tr.Submit(req, func(status ble.ATTError, pdu []byte) {
		result <- struct {
			status ble.ATTError
			pdu    []byte
		}{status, pdu}
	}, nil)

	got := readWithDeadline(t, server, 3)
	if got[0] != byte(ReadReqCode) {
		t.Fatalf("wire opcode = 0x%02X, want ReadReqCode", got[0])
	}

	if _, err := server.Write([]byte{byte(ReadRespCode), 0xAA}); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case r := <-result:
		if r.status != 0 {
			t.Fatalf("status = %v, want 0", r.status)
		}
		if len(r.pdu) != 2 || r.pdu[1] != 0xAA {
			t.Fatalf("pdu = % X", r.pdu)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestSingleOutstandingRequestInvariant(t *testing.T) {
	tr, server := newTestTransport(t)

	done1 := make(chan ble.ATTError, 1)
	done2 := make(chan ble.ATTError, 1)
	tr.Submit([]byte{byte(ReadReqCode), 0x01, 0x00}, func(s ble.ATTError, _ []byte) { done1 <- s }, nil)
	tr.Submit([]byte{byte(ReadReqCode), 0x02, 0x00}, func(s ble.ATTError, _ []byte) { done2 <- s }, nil)

	first := readWithDeadline(t, server, 3)
	if first[1] != 0x01 {
		t.Fatalf("first request sent out of order: % X", first)
	}

	server.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 3)
	if _, err := server.Read(buf); err == nil {
		t.Fatalf("second request must not be written before the first is answered")
	}

	if _, err := server.Write([]byte{byte(ReadRespCode), 0x11}); err != nil {
		t.Fatalf("server write: %v", err)
	}
	if s := <-done1; s != 0 {
		t.Fatalf("first status = %v", s)
	}

	second := readWithDeadline(t, server, 3)
	if second[1] != 0x02 {
		t.Fatalf("second request bytes = % X", second)
	}
	if _, err := server.Write([]byte{byte(ReadRespCode), 0x22}); err != nil {
		t.Fatalf("server write: %v", err)
	}
	if s := <-done2; s != 0 {
		t.Fatalf("second status = %v", s)
	}
}

func TestResponseQueueHasPriorityOverRequestQueue(t *testing.T) {
	tr, server := newTestTransport(t)

	// Queue a READ_REQ and a HANDLE_CNF (response-opcode command) before
	// either has been offered to the wire, then let pump choose once: the
	// response queue's head must win. pump's own conn.Write blocks until
	// this goroutine reads, so it is not waited on directly.
	tr.loop.Post(func() {
		tr.mu.Lock()
		tr.reqQueue = append(tr.reqQueue, &command{opcode: ReadReqCode, expected: ReadRespCode, pdu: []byte{byte(ReadReqCode), 0x01, 0x00}})
		tr.rspQueue = append(tr.rspQueue, &command{opcode: HandleCnfCode, pdu: HandleValueConfirmation})
		tr.mu.Unlock()
		tr.pump()
	})

	got := readWithDeadline(t, server, 1)
	if got[0] != byte(HandleCnfCode) {
		t.Fatalf("wire opcode = 0x%02X, want HandleCnfCode sent first", got[0])
	}
	readWithDeadline(t, server, 3) // the READ_REQ follows once the CNF command frees the wire
}

func TestCommandCompletesWithoutAwaitingResponse(t *testing.T) {
	tr, server := newTestTransport(t)

	done := make(chan ble.ATTError, 1)
	tr.Submit([]byte{byte(WriteCmdCode), 0x01, 0x00, 0x42}, func(s ble.ATTError, _ []byte) { done <- s }, nil)

	readWithDeadline(t, server, 4)
	select {
	case s := <-done:
		if s != 0 {
			t.Fatalf("status = %v, want 0", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("a command must complete the instant it is written, with no response to wait for")
	}
}

func TestCancelPendingRequestSuppressesCallback(t *testing.T) {
	tr, server := newTestTransport(t)

	called := make(chan struct{}, 1)
	tr.Submit([]byte{byte(ReadReqCode), 0x01, 0x00}, nil, nil)
	id2 := tr.Submit([]byte{byte(ReadReqCode), 0x02, 0x00}, func(ble.ATTError, []byte) { called <- struct{}{} }, nil)

	readWithDeadline(t, server, 3) // first request goes out

	if !tr.Cancel(id2) {
		t.Fatalf("Cancel reported the second request was no longer pending")
	}

	if _, err := server.Write([]byte{byte(ReadRespCode), 0x00}); err != nil {
		t.Fatalf("server write: %v", err)
	}

	server.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 3)
	if _, err := server.Read(buf); err == nil {
		t.Fatalf("a cancelled request must never reach the wire")
	}
	select {
	case <-called:
		t.Fatalf("cancelled request's callback must not fire")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTimeoutAbortsQueuedRequests(t *testing.T) {
	tr, server := newTestTransport(t)

	firstStatus := make(chan ble.ATTError, 1)
	secondStatus := make(chan ble.ATTError, 1)
	tr.Submit([]byte{byte(ReadReqCode), 0x01, 0x00}, func(s ble.ATTError, _ []byte) { firstStatus <- s }, nil)
	tr.Submit([]byte{byte(ReadReqCode), 0x02, 0x00}, func(s ble.ATTError, _ []byte) { secondStatus <- s }, nil)

	readWithDeadline(t, server, 3) // let the first request reach the wire and arm its timer

	done := make(chan struct{})
	tr.loop.Post(func() {
		tr.mu.Lock()
		head := tr.reqQueue[0]
		tr.mu.Unlock()
		tr.onTimeout(head)
		close(done)
	})
	<-done

	if s := <-firstStatus; s != ble.ErrSynthTimeout {
		t.Fatalf("first request status = %v, want ErrSynthTimeout", s)
	}
	if s := <-secondStatus; s != ble.ErrSynthAborted {
		t.Fatalf("second request status = %v, want ErrSynthAborted", s)
	}

	if id := tr.Submit([]byte{byte(ReadReqCode), 0x03, 0x00}, nil, nil); id != 0 {
		t.Fatalf("Submit on a stale transport must return 0, got %d", id)
	}
}

func TestSubscribeReceivesNotification(t *testing.T) {
	tr, server := newTestTransport(t)

	received := make(chan []byte, 1)
	tr.Subscribe(AllRequests, AllHandles, func(pdu []byte) { received <- pdu })

	time.Sleep(20 * time.Millisecond) // let Subscribe's posted registration land
	if _, err := server.Write([]byte{byte(HandleNotifyCode), 0x05, 0x00, 0x99}); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case pdu := <-received:
		if len(pdu) != 4 || pdu[3] != 0x99 {
			t.Fatalf("notification pdu = % X", pdu)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the notification")
	}
}

func TestIndicationTriggersConfirmation(t *testing.T) {
	tr, server := newTestTransport(t)

	received := make(chan []byte, 1)
	tr.Subscribe(AllRequests, AllHandles, func(pdu []byte) { received <- pdu })
	time.Sleep(20 * time.Millisecond)

	if _, err := server.Write([]byte{byte(HandleIndCode), 0x05, 0x00, 0x99}); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the indication")
	}

	cnf := readWithDeadline(t, server, 1)
	if cnf[0] != byte(HandleCnfCode) {
		t.Fatalf("expected an automatic HANDLE_CNF, got 0x%02X", cnf[0])
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	tr, server := newTestTransport(t)

	received := make(chan []byte, 1)
	id := tr.Subscribe(AllRequests, AllHandles, func(pdu []byte) { received <- pdu })
	time.Sleep(20 * time.Millisecond)
	tr.Unsubscribe(id)
	time.Sleep(20 * time.Millisecond)

	if _, err := server.Write([]byte{byte(HandleNotifyCode), 0x05, 0x00, 0x99}); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case <-received:
		t.Fatalf("unsubscribed callback must not fire")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestReleaseTearsDownAndFailsPending(t *testing.T) {
	tr, server := newTestTransport(t)

	failed := make(chan ble.ATTError, 1)
	tr.Submit([]byte{byte(ReadReqCode), 0x01, 0x00}, func(s ble.ATTError, _ []byte) { failed <- s }, nil)
	readWithDeadline(t, server, 3)

	tr.Release()

	select {
	case s := <-failed:
		if s != ble.ErrLocalIO {
			t.Fatalf("status = %v, want ErrLocalIO", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("teardown never failed the pending request")
	}
}
