// Package superblock implements the WillianFS volume header: four
// little-endian 32-bit words persisted at sector 0.
package superblock

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/williancsmelo/willianfs/sector"
)

// Sector is where the superblock lives.
const Sector = 0

// numWords is the number of little-endian uint32 words in the on-disk record.
const numWords = 4

// uuidOffset is where an informational volume UUID is stamped into the
// otherwise-unused remainder of sector 0. The core never reads this to
// decode geometry; that remainder is ignored.
const uuidOffset = numWords * 4

// Superblock describes volume geometry.
type Superblock struct {
	BlockSize        uint32
	NumBlocks        uint32
	NumInodes        uint32
	BitmapBlockIndex uint32

	volumeID uuid.UUID
}

// VolumeID returns the informational volume UUID stamped at format time.
func (s *Superblock) VolumeID() uuid.UUID {
	return s.volumeID
}

// New builds a fresh superblock for a volume of the given geometry,
// generating a new volume UUID. Callers still must call Save to persist it.
func New(blockSize, numBlocks, numInodes, bitmapBlockIndex uint32) *Superblock {
	return &Superblock{
		BlockSize:        blockSize,
		NumBlocks:        numBlocks,
		NumInodes:        numInodes,
		BitmapBlockIndex: bitmapBlockIndex,
		volumeID:         uuid.New(),
	}
}

// Load reads and decodes the superblock from sector 0 of dev.
func Load(dev sector.Device) (*Superblock, error) {
	buf := make([]byte, sector.Size)
	if err := dev.ReadSector(Sector, buf); err != nil {
		return nil, fmt.Errorf("reading superblock sector: %w", err)
	}
	sb := &Superblock{
		BlockSize:        binary.LittleEndian.Uint32(buf[0:4]),
		NumBlocks:        binary.LittleEndian.Uint32(buf[4:8]),
		NumInodes:        binary.LittleEndian.Uint32(buf[8:12]),
		BitmapBlockIndex: binary.LittleEndian.Uint32(buf[12:16]),
	}
	if id, err := uuid.FromBytes(buf[uuidOffset : uuidOffset+16]); err == nil {
		sb.volumeID = id
	}
	return sb, nil
}

// Save encodes the superblock and writes it to sector 0 of dev.
func (s *Superblock) Save(dev sector.Device) error {
	buf := make([]byte, sector.Size)
	binary.LittleEndian.PutUint32(buf[0:4], s.BlockSize)
	binary.LittleEndian.PutUint32(buf[4:8], s.NumBlocks)
	binary.LittleEndian.PutUint32(buf[8:12], s.NumInodes)
	binary.LittleEndian.PutUint32(buf[12:16], s.BitmapBlockIndex)
	if s.volumeID == uuid.Nil {
		s.volumeID = uuid.New()
	}
	idBytes, err := s.volumeID.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshaling volume id: %w", err)
	}
	copy(buf[uuidOffset:uuidOffset+16], idBytes)
	if err := dev.WriteSector(Sector, buf); err != nil {
		return fmt.Errorf("writing superblock sector: %w", err)
	}
	return nil
}
