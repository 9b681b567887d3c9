// Package sectortest provides an in-memory sector.Device for tests: a stub
// that lets filesystem tests run without touching a real file or device.
package sectortest

import (
	"fmt"

	"github.com/williancsmelo/willianfs/sector"
)

// MemDevice is a sector.Device backed entirely by an in-memory byte slice.
type MemDevice struct {
	sectors [][sector.Size]byte
}

var _ sector.Device = (*MemDevice)(nil)

// New creates a MemDevice with numSectors zeroed sectors.
func New(numSectors uint32) *MemDevice {
	return &MemDevice{sectors: make([][sector.Size]byte, numSectors)}
}

func (m *MemDevice) SizeInSectors() (uint32, error) {
	return uint32(len(m.sectors)), nil
}

func (m *MemDevice) ReadSector(sec uint32, buf []byte) error {
	if sec >= uint32(len(m.sectors)) {
		return fmt.Errorf("sector %d out of range (have %d)", sec, len(m.sectors))
	}
	if len(buf) < sector.Size {
		return sector.ErrShortBuffer
	}
	copy(buf, m.sectors[sec][:])
	return nil
}

func (m *MemDevice) WriteSector(sec uint32, buf []byte) error {
	if sec >= uint32(len(m.sectors)) {
		return fmt.Errorf("sector %d out of range (have %d)", sec, len(m.sectors))
	}
	if len(buf) < sector.Size {
		return sector.ErrShortBuffer
	}
	copy(m.sectors[sec][:], buf[:sector.Size])
	return nil
}
