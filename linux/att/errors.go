package att

import "errors"

// ErrInvalidResponse names a PDU that failed structural sanity checks.
// The Transport never hands it to a completion callback: a too-short
// ERROR_RESP, or a response whose opcode does not answer the outstanding
// request, completes that request with ble.ErrLocalIO (0x80) instead, so
// codec errors never escape the event-loop thread as a Go error.
var ErrInvalidResponse = errors.New("att: invalid response PDU")

// ErrTransportStale names the state of a transport that has given up
// after a timeout or a channel hangup. Submit reports that state by
// returning id 0, not by returning this error.
var ErrTransportStale = errors.New("att: transport is stale")
