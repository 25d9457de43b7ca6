package ble

import (
	"os"
	"testing"
)

func buildTestProfile() Profile {
	cccd := &Descriptor{UUID: ClientCharacteristicConfigUUID, Handle: 0x0004}
	ch := &Characteristic{
		UUID:        BatteryLevelUUID,
		Handle:      0x0002,
		Property:    CharRead | CharNotify,
		ValueHandle: 0x0003,
		EndHandle:   0x0004,
		Descriptors: []*Descriptor{cccd},
		CCCD:        cccd,
	}
	svc := &Service{UUID: BatteryUUID, Handle: 0x0001, EndHandle: 0x0004, Characteristics: []*Characteristic{ch}}
	return Profile{Services: []*Service{svc}}
}

func TestFileGattCacheRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "gattcache")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	cache := NewFileGattCache(dir)
	addr, _ := ParseAddr("AA:BB:CC:DD:EE:FF", AddrTypePublic)
	want := buildTestProfile()

	if err := cache.Store(addr, want, true); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := cache.Load(addr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Services) != 1 {
		t.Fatalf("Load() returned %d services, want 1", len(got.Services))
	}
	s := got.Services[0]
	if !s.UUID.Equal(BatteryUUID) || s.Handle != 0x0001 || s.EndHandle != 0x0004 {
		t.Fatalf("service mismatch: %+v", s)
	}
	if len(s.Characteristics) != 1 {
		t.Fatalf("got %d characteristics, want 1", len(s.Characteristics))
	}
	c := s.Characteristics[0]
	if !c.UUID.Equal(BatteryLevelUUID) || c.Property != (CharRead|CharNotify) || c.ValueHandle != 0x0003 {
		t.Fatalf("characteristic mismatch: %+v", c)
	}
	if c.CCCD == nil || c.CCCD.Handle != 0x0004 || !c.CCCD.UUID.Equal(ClientCharacteristicConfigUUID) {
		t.Fatalf("CCCD not reattached on load: %+v", c.CCCD)
	}
}

func TestFileGattCacheNoOverwrite(t *testing.T) {
	dir, err := os.MkdirTemp("", "gattcache")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	cache := NewFileGattCache(dir)
	addr, _ := ParseAddr("11:22:33:44:55:66", AddrTypePublic)

	first := buildTestProfile()
	if err := cache.Store(addr, first, false); err != nil {
		t.Fatalf("Store (first): %v", err)
	}

	empty := Profile{}
	if err := cache.Store(addr, empty, false); err != nil {
		t.Fatalf("Store (overwrite=false): %v", err)
	}

	got, err := cache.Load(addr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Services) != 1 {
		t.Fatalf("Store(overwrite=false) clobbered the existing entry: %+v", got)
	}
}

func TestFileGattCacheLoadMissing(t *testing.T) {
	dir, err := os.MkdirTemp("", "gattcache")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	cache := NewFileGattCache(dir)
	addr, _ := ParseAddr("00:00:00:00:00:01", AddrTypePublic)
	if _, err := cache.Load(addr); err == nil {
		t.Fatalf("Load of an unknown address should error")
	}
}
