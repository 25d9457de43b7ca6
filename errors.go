package ble

import "fmt"

// IOKind enumerates the BT I/O error taxonomy: anything
// arising from the kernel/socket/HCI layer or from parameter validation.
type IOKind int

const (
	InvalidArgument IOKind = iota
	NotConnected
	AlreadyConnected
	ConnectionRefused
	NoMemory
	IOTimeout
	ResetByPeer
)

func (k IOKind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotConnected:
		return "NotConnected"
	case AlreadyConnected:
		return "AlreadyConnected"
	case ConnectionRefused:
		return "ConnectionRefused"
	case NoMemory:
		return "NoMemory"
	case IOTimeout:
		return "Timeout"
	case ResetByPeer:
		return "ResetByPeer"
	default:
		return "Unknown"
	}
}

// IOError is the BT I/O error taxonomy: kernel/socket/HCI failures and
// precondition violations. Code carries the underlying errno where one
// applies, else 0.
type IOError struct {
	Kind IOKind
	Code int
}

func (e *IOError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("ble: %s (errno %d)", e.Kind, e.Code)
	}
	return fmt.Sprintf("ble: %s", e.Kind)
}

// NewIOError builds an IOError of the given kind, optionally wrapping an
// errno-bearing code (0 when none applies).
func NewIOError(kind IOKind, code int) error {
	return &IOError{Kind: kind, Code: code}
}

// ATTError is an ATT error code, either one of the Bluetooth Core Spec's
// attribute error codes or one of the three transport synthetic codes
// (IO, Timeout, Aborted) from the table.
type ATTError uint8

const (
	ErrInvalidHandle      ATTError = 0x01
	ErrReadNotPermitted   ATTError = 0x02
	ErrWriteNotPermitted  ATTError = 0x03
	ErrInvalidPDU         ATTError = 0x04
	ErrInsuffAuthn        ATTError = 0x05
	ErrReqNotSupp         ATTError = 0x06
	ErrInvalidOffset      ATTError = 0x07
	ErrInsuffAuthz        ATTError = 0x08
	ErrPrepQueueFull      ATTError = 0x09
	ErrAttrNotFound       ATTError = 0x0A
	ErrAttrNotLong        ATTError = 0x0B
	ErrInsuffEncKeySize   ATTError = 0x0C
	ErrInvalidValueSize   ATTError = 0x0D
	ErrUnlikely           ATTError = 0x0E
	ErrInsuffEnc          ATTError = 0x0F
	ErrUnsuppGroupType    ATTError = 0x10
	ErrInsuffResources    ATTError = 0x11
	ErrLocalIO            ATTError = 0x80 // synthetic: local IO
	ErrSynthTimeout       ATTError = 0x81 // synthetic: timeout
	ErrSynthAborted       ATTError = 0x82 // synthetic: aborted
)

var attErrorText = map[ATTError]string{
	ErrInvalidHandle:    "invalid handle",
	ErrReadNotPermitted: "read not permitted",
	ErrWriteNotPermitted: "write not permitted",
	ErrInvalidPDU:       "invalid PDU",
	ErrInsuffAuthn:      "insufficient authentication",
	ErrReqNotSupp:       "request not supported",
	ErrInvalidOffset:    "invalid offset",
	ErrInsuffAuthz:      "insufficient authorization",
	ErrPrepQueueFull:    "prepare queue full",
	ErrAttrNotFound:     "attribute not found",
	ErrAttrNotLong:      "attribute not long",
	ErrInsuffEncKeySize: "insufficient encryption key size",
	ErrInvalidValueSize: "invalid attribute value length",
	ErrUnlikely:         "unlikely error",
	ErrInsuffEnc:        "insufficient encryption",
	ErrUnsuppGroupType:  "unsupported group type",
	ErrInsuffResources:  "insufficient resources",
	ErrLocalIO:          "local I/O error",
	ErrSynthTimeout:     "request timeout",
	ErrSynthAborted:     "request aborted",
}

func (e ATTError) Error() string {
	if s, ok := attErrorText[e]; ok {
		return fmt.Sprintf("ble: gatt: %s (0x%02X)", s, uint8(e))
	}
	return fmt.Sprintf("ble: gatt: error 0x%02X", uint8(e))
}

// GATTError is the public name for a failure reported over ATT, carrying
// the status byte. It is an alias of ATTError: the status byte IS the
// error.
type GATTError = ATTError
