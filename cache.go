package ble

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// GattCache persists a discovered Profile keyed by peer address, so a
// reconnect can skip full discovery. gatt.Client calls Load/Store around
// its discovery path whenever one is attached via WithGattCache.
type GattCache interface {
	Load(addr Addr) (Profile, error)
	Store(addr Addr, p Profile, overwrite bool) error
}

// wireUUID/wireDescriptor/... are the on-disk shapes: Profile's UUID
// fields are raw byte slices, which json-iterator would otherwise emit as
// base64 blobs; round-tripping through the canonical string form keeps
// the cache file human-inspectable.
type wireDescriptor struct {
	UUID   string `json:"uuid"`
	Handle uint16 `json:"handle"`
}

type wireCharacteristic struct {
	UUID        string           `json:"uuid"`
	Handle      uint16           `json:"handle"`
	Property    Property         `json:"property"`
	ValueHandle uint16           `json:"value_handle"`
	EndHandle   uint16           `json:"end_handle"`
	Descriptors []wireDescriptor `json:"descriptors,omitempty"`
}

type wireService struct {
	UUID            string               `json:"uuid"`
	Handle          uint16               `json:"handle"`
	EndHandle       uint16               `json:"end_handle"`
	Characteristics []wireCharacteristic `json:"characteristics,omitempty"`
}

type wireProfile struct {
	Services []wireService `json:"services"`
}

func toWire(p Profile) wireProfile {
	w := wireProfile{Services: make([]wireService, 0, len(p.Services))}
	for _, s := range p.Services {
		ws := wireService{UUID: s.UUID.String(), Handle: s.Handle, EndHandle: s.EndHandle}
		for _, c := range s.Characteristics {
			wc := wireCharacteristic{
				UUID: c.UUID.String(), Handle: c.Handle, Property: c.Property,
				ValueHandle: c.ValueHandle, EndHandle: c.EndHandle,
			}
			for _, d := range c.Descriptors {
				wc.Descriptors = append(wc.Descriptors, wireDescriptor{UUID: d.UUID.String(), Handle: d.Handle})
			}
			ws.Characteristics = append(ws.Characteristics, wc)
		}
		w.Services = append(w.Services, ws)
	}
	return w
}

func fromWire(w wireProfile) (Profile, error) {
	p := Profile{}
	for _, ws := range w.Services {
		uuid, err := ParseUUID(ws.UUID)
		if err != nil {
			return Profile{}, err
		}
		s := &Service{UUID: uuid, Handle: ws.Handle, EndHandle: ws.EndHandle}
		for _, wc := range ws.Characteristics {
			cuuid, err := ParseUUID(wc.UUID)
			if err != nil {
				return Profile{}, err
			}
			c := &Characteristic{
				UUID: cuuid, Handle: wc.Handle, Property: wc.Property,
				ValueHandle: wc.ValueHandle, EndHandle: wc.EndHandle,
			}
			for _, wd := range wc.Descriptors {
				duuid, err := ParseUUID(wd.UUID)
				if err != nil {
					return Profile{}, err
				}
				d := &Descriptor{UUID: duuid, Handle: wd.Handle}
				c.Descriptors = append(c.Descriptors, d)
				if duuid.Equal(ClientCharacteristicConfigUUID) {
					c.CCCD = d
				}
			}
			s.Characteristics = append(s.Characteristics, c)
		}
		p.Services = append(p.Services, s)
	}
	return p, nil
}

// fileGattCache stores one JSON document per peer address under dir.
type fileGattCache struct {
	mu  sync.Mutex
	dir string
	api jsoniter.API
}

// NewFileGattCache returns a GattCache that stores one file per peer
// address under dir, encoded with json-iterator in its
// config-compatible-with-encoding/json mode.
func NewFileGattCache(dir string) GattCache {
	return &fileGattCache{dir: dir, api: jsoniter.ConfigCompatibleWithStandardLibrary}
}

func (c *fileGattCache) path(addr Addr) string {
	name := strings.ReplaceAll(addr.String(), ":", "")
	return filepath.Join(c.dir, fmt.Sprintf("%s.json", name))
}

func (c *fileGattCache) Load(addr Addr) (Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := os.ReadFile(c.path(addr))
	if err != nil {
		return Profile{}, err
	}
	var w wireProfile
	if err := c.api.Unmarshal(b, &w); err != nil {
		return Profile{}, fmt.Errorf("ble: gatt cache: decode %s: %w", addr, err)
	}
	return fromWire(w)
}

func (c *fileGattCache) Store(addr Addr, p Profile, overwrite bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.path(addr)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("ble: gatt cache: mkdir: %w", err)
	}
	b, err := c.api.MarshalIndent(toWire(p), "", "  ")
	if err != nil {
		return fmt.Errorf("ble: gatt cache: encode %s: %w", addr, err)
	}
	return os.WriteFile(path, b, 0o644)
}
