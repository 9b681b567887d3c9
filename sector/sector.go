// Package sector provides the sector-addressable block device contract that
// the WillianFS core is built against, plus a file-backed implementation of
// it. The core itself never assumes anything about what backs a Device other
// than "it holds Size-byte sectors, addressed 0..N-1".
package sector

import "fmt"

// Size is the fixed logical sector size WillianFS speaks in. The core never
// negotiates this with a device; it is the unit size Device values are made of.
const Size = 512

// Device is the external block device collaborator. The core calls exactly
// these three operations and nothing else.
type Device interface {
	// SizeInSectors reports how many Size-byte sectors the device holds.
	SizeInSectors() (uint32, error)
	// ReadSector reads sector number sec into buf, which must be Size bytes.
	ReadSector(sec uint32, buf []byte) error
	// WriteSector writes the first Size bytes of buf to sector number sec.
	WriteSector(sec uint32, buf []byte) error
}

// ErrShortBuffer is returned when a caller supplies a buffer smaller than Size.
var ErrShortBuffer = fmt.Errorf("sector buffer must be at least %d bytes", Size)
