package hci

import (
	"bytes"
	"testing"
)

func TestMkOpcodePacksOGFAndOCF(t *testing.T) {
	op := mkOpcode(ogfLECtl, 0x000D)
	if op != opLECreateConn {
		t.Fatalf("mkOpcode(ogfLECtl, 0x000D) = 0x%04X, want opLECreateConn (0x%04X)", op, opLECreateConn)
	}
	if ogf := uint16(op) >> 10; ogf != ogfLECtl {
		t.Fatalf("recovered OGF = 0x%02X, want 0x%02X", ogf, ogfLECtl)
	}
	if ocf := uint16(op) & 0x03FF; ocf != 0x000D {
		t.Fatalf("recovered OCF = 0x%04X, want 0x000D", ocf)
	}
}

func TestMarshalCommandFraming(t *testing.T) {
	params := []byte{0xAA, 0xBB, 0xCC}
	b := marshalCommand(opReset, params)

	want := []byte{pktCommand, byte(opReset), byte(opReset >> 8), byte(len(params)), 0xAA, 0xBB, 0xCC}
	if !bytes.Equal(b, want) {
		t.Fatalf("marshalCommand = % X, want % X", b, want)
	}
}

func TestMarshalCommandEmptyParams(t *testing.T) {
	b := marshalCommand(opLECreateConnCancel, nil)
	if len(b) != 4 {
		t.Fatalf("len = %d, want 4 (header only)", len(b))
	}
	if b[3] != 0 {
		t.Fatalf("plen = %d, want 0", b[3])
	}
}

func TestLECreateConnParamsMarshalLayout(t *testing.T) {
	p := leCreateConnParams{
		scanInterval:       0x0010,
		scanWindow:         0x0010,
		filterPolicy:       0x00,
		peerAddressType:    0x01,
		peerAddress:        [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
		ownAddressType:     0x00,
		intervalMin:        0x0006,
		intervalMax:        0x000C,
		latency:            0x0000,
		supervisionTimeout: 0x01F4,
		minCELength:        0x0000,
		maxCELength:        0x0000,
	}
	b := p.marshal()
	if len(b) != 25 {
		t.Fatalf("len = %d, want 25", len(b))
	}
	if b[0] != 0x10 || b[1] != 0x00 {
		t.Fatalf("scanInterval bytes = %02X %02X", b[0], b[1])
	}
	if !bytes.Equal(b[6:12], p.peerAddress[:]) {
		t.Fatalf("peerAddress bytes = % X", b[6:12])
	}
	if b[12] != 0x00 {
		t.Fatalf("ownAddressType byte = %02X", b[12])
	}
	if b[13] != 0x06 || b[14] != 0x00 {
		t.Fatalf("intervalMin bytes = %02X %02X", b[13], b[14])
	}
	if b[19] != 0xF4 || b[20] != 0x01 {
		t.Fatalf("supervisionTimeout bytes = %02X %02X", b[19], b[20])
	}
}

func TestLEConnUpdateParamsMarshalLayout(t *testing.T) {
	p := leConnUpdateParams{
		handle:             0x0040,
		intervalMin:        0x0006,
		intervalMax:        0x000C,
		latency:            0x0000,
		supervisionTimeout: 0x01F4,
		minCELength:        0x0000,
		maxCELength:        0x0000,
	}
	b := p.marshal()
	if len(b) != 14 {
		t.Fatalf("len = %d, want 14", len(b))
	}
	if b[0] != 0x40 || b[1] != 0x00 {
		t.Fatalf("handle bytes = %02X %02X", b[0], b[1])
	}
	if b[8] != 0xF4 || b[9] != 0x01 {
		t.Fatalf("supervisionTimeout bytes = %02X %02X", b[8], b[9])
	}
}

func TestMarshalDisconnect(t *testing.T) {
	b := marshalDisconnect(0x0040, 0x13)
	if b[0] != pktCommand {
		t.Fatalf("packet indicator = 0x%02X", b[0])
	}
	if opcode(b[1])|opcode(b[2])<<8 != opDisconnect {
		t.Fatalf("opcode bytes don't encode opDisconnect")
	}
	if b[3] != 3 {
		t.Fatalf("plen = %d, want 3", b[3])
	}
	if b[4] != 0x40 || b[5] != 0x00 || b[6] != 0x13 {
		t.Fatalf("params = % X", b[4:7])
	}
}
