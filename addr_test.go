package ble

import "testing"

func TestParseAddrRoundTrip(t *testing.T) {
	a, err := ParseAddr("AA:BB:CC:DD:EE:FF", AddrTypePublic)
	if err != nil {
		t.Fatalf("ParseAddr: %v", err)
	}
	if got := a.String(); got != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("String() = %q, want AA:BB:CC:DD:EE:FF", got)
	}
	if a.Type() != AddrTypePublic {
		t.Fatalf("Type() = %v, want public", a.Type())
	}
	want := [6]byte{0xFF, 0xEE, 0xDD, 0xCC, 0xBB, 0xAA}
	if a.Bytes() != want {
		t.Fatalf("Bytes() = %v, want %v", a.Bytes(), want)
	}
}

func TestParseAddrRandomType(t *testing.T) {
	a, err := ParseAddr("11:22:33:44:55:66", AddrTypeRandom)
	if err != nil {
		t.Fatalf("ParseAddr: %v", err)
	}
	if a.Type().String() != "random" {
		t.Fatalf("Type().String() = %q, want random", a.Type().String())
	}
}

func TestParseAddrInvalid(t *testing.T) {
	cases := []string{
		"",
		"AA:BB:CC:DD:EE",       // too few groups
		"AA:BB:CC:DD:EE:FF:00", // too many
		"ZZ:BB:CC:DD:EE:FF",    // not hex
	}
	for _, s := range cases {
		if _, err := ParseAddr(s, AddrTypePublic); err == nil {
			t.Errorf("ParseAddr(%q): expected error, got none", s)
		}
	}
}

func TestAddrEqual(t *testing.T) {
	a, _ := ParseAddr("AA:BB:CC:DD:EE:FF", AddrTypePublic)
	b, _ := ParseAddr("AA:BB:CC:DD:EE:FF", AddrTypePublic)
	c, _ := ParseAddr("AA:BB:CC:DD:EE:FF", AddrTypeRandom)
	d, _ := ParseAddr("11:22:33:44:55:66", AddrTypePublic)

	if !a.Equal(b) {
		t.Fatalf("identical address/type should be Equal")
	}
	if a.Equal(c) {
		t.Fatalf("same bytes but different type must not be Equal")
	}
	if a.Equal(d) {
		t.Fatalf("different bytes must not be Equal")
	}
}

func TestAddrAsMapKey(t *testing.T) {
	a, _ := ParseAddr("AA:BB:CC:DD:EE:FF", AddrTypePublic)
	b, _ := ParseAddr("AA:BB:CC:DD:EE:FF", AddrTypePublic)
	m := map[Addr]int{a: 1}
	if m[b] != 1 {
		t.Fatalf("Addr with identical fields must hash/compare equal as a map key")
	}
}
