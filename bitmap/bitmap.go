// Package bitmap implements the free-block occupancy vector: one byte per
// block, chosen over bit-packing for simplicity at the cost of eight times
// the space a bit-packed vector would take. This representation lets FindFreeBlocks and
// SetBlocksStatus index directly by block number with no shift/mask
// arithmetic.
package bitmap

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/williancsmelo/willianfs/blockio"
)

const (
	// Free marks a block as unoccupied.
	Free byte = 0
	// Occupied marks a block as in use.
	Occupied byte = 1
)

// Bitmap is the in-memory occupancy vector, one byte per block.
type Bitmap struct {
	bits       []byte
	blockIndex uint32 // first block of the persisted bitmap region
	io         *blockio.IO
}

// New creates a bitmap for numBlocks blocks, all initially free, persisted
// starting at blockIndex.
func New(numBlocks, blockIndex uint32, io *blockio.IO) *Bitmap {
	return &Bitmap{
		bits:       make([]byte, numBlocks),
		blockIndex: blockIndex,
		io:         io,
	}
}

// Load reads the bitmap for numBlocks blocks back from disk, starting at
// blockIndex.
func Load(numBlocks, blockIndex uint32, io *blockio.IO) (*Bitmap, error) {
	bm := New(numBlocks, blockIndex, io)
	blocksNeeded := (numBlocks + io.BlockSize - 1) / io.BlockSize
	buf := make([]byte, blocksNeeded*io.BlockSize)
	for i := uint32(0); i < blocksNeeded; i++ {
		if err := io.ReadBlock(blockIndex+i, buf[i*io.BlockSize:(i+1)*io.BlockSize]); err != nil {
			return nil, fmt.Errorf("loading bitmap block %d: %w", i, err)
		}
	}
	copy(bm.bits, buf[:numBlocks])
	return bm, nil
}

// Save persists the bitmap to the block range it was constructed with.
func (b *Bitmap) Save() error {
	blocksNeeded := (uint32(len(b.bits)) + b.io.BlockSize - 1) / b.io.BlockSize
	for i := uint32(0); i < blocksNeeded; i++ {
		start := i * b.io.BlockSize
		end := start + b.io.BlockSize
		if end > uint32(len(b.bits)) {
			end = uint32(len(b.bits))
		}
		chunk := make([]byte, b.io.BlockSize)
		copy(chunk, b.bits[start:end])
		if err := b.io.WriteBlock(b.blockIndex+i, chunk, b.io.BlockSize); err != nil {
			return fmt.Errorf("saving bitmap block %d: %w", i, err)
		}
	}
	logrus.WithField("blocks", len(b.bits)).Debug("bitmap saved")
	return nil
}

// IsOccupied reports whether block is marked occupied.
func (b *Bitmap) IsOccupied(block uint32) bool {
	if block >= uint32(len(b.bits)) {
		return false
	}
	return b.bits[block] == Occupied
}

// FindFreeBlocks scans for the first n free block indices in ascending
// order and returns them without marking them occupied. Atomic: either all n
// are found, or an error is returned with no blocks.
func (b *Bitmap) FindFreeBlocks(n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]uint32, 0, n)
	for i := uint32(0); i < uint32(len(b.bits)); i++ {
		if b.bits[i] == Free {
			out = append(out, i)
			if len(out) == n {
				return out, nil
			}
		}
	}
	logrus.WithFields(logrus.Fields{"need": n, "found": len(out)}).Warn("not enough free blocks")
	return nil, fmt.Errorf("not enough free blocks: need %d, found %d", n, len(out))
}

// SetBlocksStatus marks each block in blocks as occupied or free.
func (b *Bitmap) SetBlocksStatus(blocks []uint32, occupied bool) error {
	status := Free
	if occupied {
		status = Occupied
	}
	for _, blk := range blocks {
		if blk >= uint32(len(b.bits)) {
			return fmt.Errorf("block %d out of range (have %d)", blk, len(b.bits))
		}
		b.bits[blk] = status
	}
	return nil
}
