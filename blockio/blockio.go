// Package blockio implements multi-sector block read/write over a
// sector.Device. A block is block_size bytes, spanning block_size/sector.Size
// consecutive sectors.
package blockio

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/williancsmelo/willianfs/sector"
)

// IO reads and writes whole blocks of a fixed size against a sector.Device.
type IO struct {
	Device    sector.Device
	BlockSize uint32
	// ProtectedSectors is the first sector past the reserved region
	// (superblock plus inode table). Writes touching a block whose first
	// sector falls before this boundary are rejected.
	ProtectedSectors uint32
}

// SectorsPerBlock returns how many sectors make up one block.
func (b *IO) SectorsPerBlock() uint32 {
	return b.BlockSize / sector.Size
}

// ReadBlock reads the whole block at the given block index into buf, which
// must be at least BlockSize bytes.
func (b *IO) ReadBlock(block uint32, buf []byte) error {
	if uint32(len(buf)) < b.BlockSize {
		return fmt.Errorf("buffer of %d bytes too small for block size %d", len(buf), b.BlockSize)
	}
	spb := b.SectorsPerBlock()
	first := block * spb
	sectorBuf := make([]byte, sector.Size)
	for i := uint32(0); i < spb; i++ {
		if err := b.Device.ReadSector(first+i, sectorBuf); err != nil {
			return fmt.Errorf("reading block %d sector %d: %w", block, i, err)
		}
		copy(buf[i*sector.Size:(i+1)*sector.Size], sectorBuf)
	}
	return nil
}

// WriteBlock writes size bytes of buf (size <= BlockSize) to the given block
// index. The tail of the final sector beyond size is zero-filled in the
// in-memory sector buffer before being written; writes never touch sectors
// before ProtectedSectors.
func (b *IO) WriteBlock(block uint32, buf []byte, size uint32) error {
	if size > b.BlockSize {
		return fmt.Errorf("write size %d exceeds block size %d", size, b.BlockSize)
	}
	spb := b.SectorsPerBlock()
	first := block * spb
	if first < b.ProtectedSectors {
		logrus.WithFields(logrus.Fields{"block": block, "sector": first, "protectedSectors": b.ProtectedSectors}).Warn("refusing to write protected region")
		return fmt.Errorf("refusing to write block %d: overlaps protected region (sector %d < %d)", block, first, b.ProtectedSectors)
	}
	sectorBuf := make([]byte, sector.Size)
	for i := uint32(0); i < spb; i++ {
		start := i * sector.Size
		if start >= size {
			break
		}
		end := start + sector.Size
		if end > size {
			end = size
		}
		for j := range sectorBuf {
			sectorBuf[j] = 0
		}
		n := end - start
		if n > uint32(len(buf))-start {
			n = uint32(len(buf)) - start
		}
		copy(sectorBuf, buf[start:start+n])
		if err := b.Device.WriteSector(first+i, sectorBuf); err != nil {
			return fmt.Errorf("writing block %d sector %d: %w", block, i, err)
		}
	}
	return nil
}
