package att

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/kestrel-systems/attble"
	"github.com/kestrel-systems/attble/linux/hci"
)

// requestTimeout is the per-request deadline of the invariant
// I2: a submitted request with expected != 0 arms this timer the moment it
// is written to the channel.
const requestTimeout = 30 * time.Second

// ResultFunc is the callback a Submit call is notified through. pdu is the
// matched response view (nil on failure); status is 0 on success, else an
// ble.ATTError — including the synthetic ErrLocalIO/ErrSynthTimeout/
// ErrSynthAborted codes.
type ResultFunc func(status ble.ATTError, pdu []byte)

// command is one submitted request or command, queued until it is its
// queue's head and then written to the channel.
type command struct {
	id       uint64
	opcode   Opcode
	expected Opcode // 0 for commands: no response is ever matched to them
	pdu      []byte
	callback ResultFunc
	user     interface{}

	sent      bool
	timer     *time.Timer
	cancelled bool
}

// subscription is a standing event-fanout registration (the
// Subscribe), matched against every inbound PDU the response queue does not
// claim first.
type subscription struct {
	id       uint64
	opcode   Opcode // AllRequests matches any notify/indicate opcode
	handle   uint16 // AllHandles matches any handle
	callback func(pdu []byte)
}

// Transport is the reference-counted ATT Transport Engine:
// dual FIFO queues over one L2CAP channel, response-priority scheduling,
// a single outstanding request at a time, and event fanout to standing
// subscriptions. All queue mutation and every callback invocation happens
// on loop's goroutine, matching the single-threaded execution domain a
// GATT Client built on top of this Transport assumes.
type Transport struct {
	conn ble.Conn
	loop *hci.Loop
	log  ble.Logger

	mu       sync.Mutex // guards everything below; taken on loop's goroutine and, briefly, by Submit/GetBuffer/SetMTU/Subscribe on the caller's goroutine
	reqQueue []*command
	rspQueue []*command
	subs     []*subscription
	nextID   uint64
	nextSub  uint64
	mtu      int
	buf      []byte

	refs  int32
	stale bool

	readBuf [ble.MaxMTU]byte // owned solely by readLoop's goroutine
}

// NewTransport wraps conn with an ATT Transport Engine. loop is where every
// callback and every byte read from conn is processed; a nil loop defaults
// to hci.DefaultLoop().
func NewTransport(conn ble.Conn, loop *hci.Loop, log ble.Logger) *Transport {
	if loop == nil {
		loop = hci.DefaultLoop()
	}
	if log == nil {
		log = ble.NewLogger()
	}
	t := &Transport{
		conn: conn,
		loop: loop,
		log:  log,
		mtu:  ble.DefaultMTU,
		buf:  make([]byte, ble.MaxMTU),
		refs: 1,
	}
	go t.readLoop()
	return t
}

// GetBuffer returns a scratch buffer at least MTU bytes long, reused across
// PDU construction to avoid a per-request allocation.
func (t *Transport) GetBuffer() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf[:t.mtu]
}

// SetMTU updates the negotiated MTU, post ATT_EXCHANGE_MTU.
func (t *Transport) SetMTU(newMTU int) error {
	if newMTU < ble.DefaultMTU || newMTU > ble.MaxMTU {
		return errors.Errorf("att: invalid MTU %d", newMTU)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mtu = newMTU
	if cap(t.buf) < newMTU {
		t.buf = make([]byte, newMTU)
	}
	return nil
}

// Submit enqueues pdu, whose first byte is its opcode; the expected reply
// opcode is looked up from ExpectedResponse (0 for a command, invariant
// I4). callback fires exactly once, on loop's goroutine, with either the
// matched response PDU and status 0, or a nil PDU and a nonzero status.
// Submit returns a nonzero id Cancel can use, or 0 if the transport is
// already stale.
func (t *Transport) Submit(pdu []byte, callback ResultFunc, user interface{}) uint64 {
	if len(pdu) == 0 {
		return 0
	}
	opcode := Opcode(pdu[0])

	t.mu.Lock()
	if t.stale {
		t.mu.Unlock()
		return 0
	}
	t.nextID++
	id := t.nextID
	t.mu.Unlock()

	cmd := &command{id: id, opcode: opcode, expected: ExpectedResponse(opcode), pdu: pdu, callback: callback, user: user}
	t.loop.Post(func() { t.enqueue(cmd) })
	return id
}

// enqueue runs on loop's goroutine: per the submit, anything
// whose own opcode IsResponse (HANDLE_CNF, chiefly) goes to the response
// queue; everything else — every request and every command — goes to the
// request queue. If the chosen queue was empty, pump wakes the sender.
func (t *Transport) enqueue(cmd *command) {
	t.mu.Lock()
	if t.stale {
		t.mu.Unlock()
		if cmd.callback != nil {
			cmd.callback(ble.ErrLocalIO, nil)
		}
		return
	}
	if IsResponse(cmd.opcode) {
		t.rspQueue = append(t.rspQueue, cmd)
	} else {
		t.reqQueue = append(t.reqQueue, cmd)
	}
	t.mu.Unlock()
	t.pump()
}

// pump writes the next eligible head PDU, if the channel is free to accept
// one. Response-priority (I1): the response queue's head is always tried
// before the request queue's. Only one request with expected != 0 may be
// outstanding at a time (I2) — pump stops offering new requests while one
// is already sent and unacknowledged.
func (t *Transport) pump() {
	t.mu.Lock()
	if t.stale {
		t.mu.Unlock()
		return
	}

	// Drain leading already-sent requests awaiting their response; nothing
	// more to write until the head is answered.
	if len(t.reqQueue) > 0 && t.reqQueue[0].sent {
		t.mu.Unlock()
		return
	}

	var toSend *command
	if len(t.rspQueue) > 0 && !t.rspQueue[0].sent {
		toSend = t.rspQueue[0]
	} else if len(t.reqQueue) > 0 && !t.reqQueue[0].sent {
		toSend = t.reqQueue[0]
	}
	if toSend == nil {
		t.mu.Unlock()
		return
	}
	toSend.sent = true
	conn := t.conn
	t.mu.Unlock()

	_, err := conn.Write(toSend.pdu)
	if err != nil {
		t.log.Errorf("att: write failed: %v", err)
		t.fail(toSend, ble.ErrLocalIO)
		t.teardown()
		return
	}

	if toSend.expected != 0 {
		t.mu.Lock()
		toSend.timer = t.loop.AfterFunc(requestTimeout, func() { t.onTimeout(toSend) })
		t.mu.Unlock()
	} else {
		// A command (WRITE_CMD, SIGNED_WRITE) expects nothing (I4): it is
		// complete the instant it's written, freeing the queue for the
		// next entry without waiting on a timer.
		t.popAndComplete(toSend, 0, nil)
		t.pump()
	}
}

// onTimeout fires 30s after a request with expected != 0 was written and
// still hasn't been answered. Per the timeout path: the head
// becomes ErrSynthTimeout, and every request still waiting behind it
// becomes ErrSynthAborted — none of them will ever get a matched response
// on a channel whose ordering invariant just broke.
func (t *Transport) onTimeout(cmd *command) {
	t.mu.Lock()
	if cmd.cancelled {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.log.Warnf("att: request 0x%02X timed out waiting for 0x%02X", cmd.opcode, cmd.expected)
	t.abortQueueFrom(cmd, ble.ErrSynthTimeout)
	t.teardown()
}

// abortQueueFrom marks cmd with headStatus and fails every other queued
// command, in the request queue and the response queue, with
// ErrSynthAborted, then marks the
// transport stale: the rule that a broken response-ordering
// invariant poisons every other in-flight request, not just the one that
// timed out.
func (t *Transport) abortQueueFrom(cmd *command, headStatus ble.ATTError) {
	t.mu.Lock()
	var rest []*command
	if len(t.reqQueue) > 0 && t.reqQueue[0] == cmd {
		rest = append(rest, t.reqQueue[1:]...)
		t.reqQueue = nil
	}
	rest = append(rest, t.rspQueue...)
	t.rspQueue = nil
	t.stale = true
	t.mu.Unlock()

	t.fail(cmd, headStatus)
	for _, c := range rest {
		t.fail(c, ble.ErrSynthAborted)
	}
}

// fail invokes cmd's callback with a failure status, unless it was already
// cancelled (Cancel already notified the caller).
func (t *Transport) fail(cmd *command, status ble.ATTError) {
	if cmd.timer != nil {
		cmd.timer.Stop()
	}
	t.mu.Lock()
	cancelled := cmd.cancelled
	t.mu.Unlock()
	if cancelled {
		return
	}
	if cmd.callback != nil {
		cmd.callback(status, nil)
	}
}

// popAndComplete removes cmd from whichever queue currently heads it and
// invokes its callback, then lets pump offer the new head.
func (t *Transport) popAndComplete(cmd *command, status ble.ATTError, pdu []byte) {
	if cmd.timer != nil {
		cmd.timer.Stop()
	}
	t.mu.Lock()
	if len(t.reqQueue) > 0 && t.reqQueue[0] == cmd {
		t.reqQueue = t.reqQueue[1:]
	} else if len(t.rspQueue) > 0 && t.rspQueue[0] == cmd {
		t.rspQueue = t.rspQueue[1:]
	}
	cancelled := cmd.cancelled
	t.mu.Unlock()

	if cancelled {
		return
	}
	if cmd.callback != nil {
		cmd.callback(status, pdu)
	}
}

// Cancel locates command id. If it is the currently-sent head of the
// request queue, its callback is cleared but its slot is kept occupied so
// ordering (I3) is preserved until its reply, error, or timeout arrives;
// otherwise it is spliced out of its queue and destroyed immediately.
// Reports whether id was still pending.
func (t *Transport) Cancel(id uint64) bool {
	done := make(chan bool, 1)
	t.loop.Post(func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if len(t.reqQueue) > 0 && t.reqQueue[0].id == id && t.reqQueue[0].sent {
			t.reqQueue[0].cancelled = true
			done <- true
			return
		}

		for _, q := range []*[]*command{&t.reqQueue, &t.rspQueue} {
			for i, c := range *q {
				if c.id == id {
					c.cancelled = true
					if c.timer != nil {
						c.timer.Stop()
					}
					*q = append((*q)[:i:i], (*q)[i+1:]...)
					done <- true
					return
				}
			}
		}
		done <- false
	})
	return <-done
}

// CancelAll cancels every pending command without tearing down the
// transport itself.
func (t *Transport) CancelAll() {
	t.loop.Post(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, q := range [][]*command{t.reqQueue, t.rspQueue} {
			for _, c := range q {
				c.cancelled = true
				if c.timer != nil {
					c.timer.Stop()
				}
			}
		}
	})
}

// Subscribe registers a standing callback for inbound notifications and
// indications matching opcode/handle (AllRequests/AllHandles as
// wildcards). Returns an id for Unsubscribe.
func (t *Transport) Subscribe(opcode Opcode, handle uint16, callback func(pdu []byte)) uint64 {
	t.mu.Lock()
	t.nextSub++
	id := t.nextSub
	t.mu.Unlock()

	t.loop.Post(func() {
		t.mu.Lock()
		t.subs = append(t.subs, &subscription{id: id, opcode: opcode, handle: handle, callback: callback})
		t.mu.Unlock()
	})
	return id
}

// Unsubscribe removes a single subscription by id.
func (t *Transport) Unsubscribe(id uint64) {
	t.loop.Post(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				return
			}
		}
	})
}

// UnsubscribeAll removes every standing subscription.
func (t *Transport) UnsubscribeAll() {
	t.loop.Post(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.subs = nil
	})
}

// Retain increments the reference count (the invariant I5): the
// transport is torn down exactly once, when the count reaches zero.
func (t *Transport) Retain() {
	atomic.AddInt32(&t.refs, 1)
}

// Release decrements the reference count, tearing the transport down on
// the loop goroutine once it reaches zero.
func (t *Transport) Release() {
	if atomic.AddInt32(&t.refs, -1) == 0 {
		t.loop.Post(t.teardown)
	}
}

// teardown marks the transport stale (idempotent) and fails every
// currently queued command with ErrLocalIO, as the
// hangup/error path requires.
func (t *Transport) teardown() {
	t.mu.Lock()
	if t.stale {
		t.mu.Unlock()
		return
	}
	t.stale = true
	reqs := t.reqQueue
	rsps := t.rspQueue
	t.reqQueue = nil
	t.rspQueue = nil
	t.subs = nil
	t.mu.Unlock()

	for _, c := range reqs {
		t.fail(c, ble.ErrLocalIO)
	}
	for _, c := range rsps {
		t.fail(c, ble.ErrLocalIO)
	}
	_ = t.conn.Close()
}

// readLoop owns the one blocking read per connection: it never touches
// transport state directly, it only decodes a length-prefix-free L2CAP
// datagram and posts it to loop.
func (t *Transport) readLoop() {
	for {
		n, err := t.conn.Read(t.readBuf[:])
		if err != nil {
			if err != io.EOF {
				t.log.Warnf("att: read failed: %v", err)
			}
			t.loop.Post(t.teardown)
			return
		}
		pdu := make([]byte, n)
		copy(pdu, t.readBuf[:n])
		t.loop.Post(func() { t.onReceive(pdu) })
	}
}

// onReceive runs on loop's goroutine: event fanout first, then response
// matching, exactly as the readable path orders them — a
// notification/indication is dispatched to subscribers even while a
// request is outstanding, since it is never a candidate match for one.
func (t *Transport) onReceive(pdu []byte) {
	if len(pdu) == 0 {
		return
	}
	op := Opcode(pdu[0])

	if op == HandleNotifyCode || op == HandleIndCode {
		t.fanout(op, pdu)
		return
	}

	t.mu.Lock()
	if t.stale {
		t.mu.Unlock()
		return
	}
	var head *command
	if len(t.reqQueue) > 0 && t.reqQueue[0].sent {
		head = t.reqQueue[0]
	}
	t.mu.Unlock()

	if head == nil {
		t.log.Warnf("att: unexpected PDU 0x%02X with nothing outstanding", op)
		return
	}

	status, matched := t.match(head, op, pdu)
	if !matched {
		t.log.Warnf("att: response 0x%02X does not match expected 0x%02X", op, head.expected)
		if !IsResponse(op) {
			return
		}
		status = ble.ErrLocalIO
	}

	if status != 0 {
		t.popAndComplete(head, status, nil)
	} else {
		t.popAndComplete(head, 0, pdu)
	}
	t.pump()
}

// match reports whether pdu answers head: either an ERROR_RESP naming
// head's own opcode (translated to its ATTError status byte), or the
// exact opcode head.expected named.
func (t *Transport) match(head *command, op Opcode, pdu []byte) (ble.ATTError, bool) {
	if op == ErrorRespCode {
		if len(pdu) < 5 {
			return ble.ErrLocalIO, true
		}
		er := ErrorResponse(pdu)
		if er.RequestOpcode() != head.opcode {
			return 0, false
		}
		return er.ErrorCode(), true
	}
	if op != head.expected {
		return 0, false
	}
	return 0, true
}

// fanout dispatches a notification/indication to every subscription whose
// opcode and handle wildcards accept it. A HANDLE_IND additionally gets an
// automatic HANDLE_CNF written back once every subscriber has run, since
// the GATT layer above never sees — or needs to send — the confirmation
// itself.
func (t *Transport) fanout(op Opcode, pdu []byte) {
	handle, ok := PDUHandle(pdu)
	if !ok {
		return
	}
	t.mu.Lock()
	matches := make([]*subscription, 0, len(t.subs))
	for _, s := range t.subs {
		if (s.opcode == AllRequests || s.opcode == op) && (s.handle == AllHandles || s.handle == handle) {
			matches = append(matches, s)
		}
	}
	t.mu.Unlock()

	for _, s := range matches {
		s.callback(pdu)
	}

	if op == HandleIndCode {
		// HANDLE_CNF is a response-opcode command, so it goes through the
		// normal enqueue path onto the response queue (I1 priority) rather
		// than a direct write.
		t.enqueue(&command{opcode: HandleCnfCode, pdu: HandleValueConfirmation})
	}
}

func (t *Transport) String() string {
	return fmt.Sprintf("att.Transport{mtu=%d}", t.mtu)
}
