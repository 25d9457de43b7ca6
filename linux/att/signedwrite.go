package att

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/aead/cmac"
	"github.com/pkg/errors"
)

// csrkSize is the Connection Signature Resolving Key length the signing
// algorithm takes as its AES-CMAC key [Vol 3, Part H, 2.4.1].
const csrkSize = 16

// macSize is the Authentication Signature field width a SIGNED_WRITE_CMD
// PDU carries: the 64 least-significant bits of the 128-bit AES-CMAC tag.
const macSize = 8

// Sign computes the Attribute Protocol signing algorithm over message
// (opcode, handle and value, exactly as it will appear on the wire) using
// csrk and signCounter, and returns the 12-byte field a SignedWriteCommand
// appends after its value: signCounter (4 bytes LE) followed by the 8-byte
// MAC.
func Sign(csrk [csrkSize]byte, signCounter uint32, message []byte) ([12]byte, error) {
	var out [12]byte

	block, err := aes.NewCipher(csrk[:])
	if err != nil {
		return out, errors.Wrap(err, "att: signing cipher")
	}

	var counterBytes [4]byte
	binary.LittleEndian.PutUint32(counterBytes[:], signCounter)

	signed := make([]byte, 0, len(message)+4)
	signed = append(signed, message...)
	signed = append(signed, counterBytes[:]...)

	tag, err := cmacSum(signed, block)
	if err != nil {
		return out, errors.Wrap(err, "att: AES-CMAC")
	}

	copy(out[:4], counterBytes[:])
	copy(out[4:], tag[len(tag)-macSize:])
	return out, nil
}

// cmacSum is split out from Sign so tests can exercise the AES-CMAC step
// against a fixed key and message in isolation.
func cmacSum(message []byte, block cipher.Block) ([]byte, error) {
	return cmac.Sum(message, block, block.BlockSize())
}

// BuildSignedWrite encodes a complete SIGNED_WRITE_CMD PDU for handle and
// value, signed with csrk/signCounter.
func BuildSignedWrite(buf []byte, handle uint16, value []byte, csrk [csrkSize]byte, signCounter uint32) (SignedWriteCommand, error) {
	need := 3 + len(value) + 12
	if len(buf) < need {
		return nil, errors.Errorf("att: buffer too small for signed write (need %d, have %d)", need, len(buf))
	}
	pdu := SignedWriteCommand(buf[:need])
	pdu.SetOpcode()
	pdu.SetAttributeHandle(handle)
	pdu.SetAttributeValue(value)

	message := buf[:3+len(value)]
	sig, err := Sign(csrk, signCounter, message)
	if err != nil {
		return nil, err
	}
	pdu.SetAuthenticationSignature(sig)
	return pdu, nil
}
