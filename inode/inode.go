// Package inode implements the on-disk inode record and the indirect block
// addressing scheme behind it. The filesystem core only reaches into it
// through BlockAddr/AddBlock and field getters/setters.
//
// Layout mirrors classic Unix-style inodes (direct pointers plus one level of
// single and double indirection). Each record is fixed at RecordSize bytes
// so InodesPerSector inodes pack into one 512-byte sector.
package inode

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/williancsmelo/willianfs/bitmap"
	"github.com/williancsmelo/willianfs/blockio"
	"github.com/williancsmelo/willianfs/sector"
)

// FileType identifies what an inode represents.
type FileType uint8

const (
	// FileTypeNone marks a free, unused inode slot.
	FileTypeNone FileType = 0
	// FileTypeRegular is a regular file.
	FileTypeRegular FileType = 1
	// FileTypeDir is a directory.
	FileTypeDir FileType = 2
)

const (
	// RecordSize is the fixed serialized size of one inode, in bytes.
	RecordSize = 64
	// InodesPerSector is how many inode records fit in one sector.
	InodesPerSector = sector.Size / RecordSize
	// AreaBeginSector is the first sector of the inode region. Sector 0 holds
	// the superblock, so the inode region begins immediately after it.
	AreaBeginSector uint32 = 1
	// RootNumber is the 1-based inode number of the volume root; always a
	// directory.
	RootNumber uint32 = 1

	// MaxFilenameLength is the fixed width of a directory entry's name field.
	MaxFilenameLength = 28

	directBlockCount = 7

	headerSize = 28 // used,fileType,reserved,fileSize,refCount,owner,groupOwner,permission,blockCount
)

// Table owns the on-disk inode region of one mounted volume: AreaBeginSector
// through AreaBeginSector + ceil(numInodes/InodesPerSector).
type Table struct {
	dev       sector.Device
	io        *blockio.IO
	bitmap    *bitmap.Bitmap
	numInodes uint32
}

// NewTable builds a Table bound to dev for numInodes inode slots. io is used
// only to read/write indirect address blocks (ordinary data blocks beyond the
// inode region); bm is used to allocate those indirect blocks on growth.
func NewTable(dev sector.Device, io *blockio.IO, bm *bitmap.Bitmap, numInodes uint32) *Table {
	return &Table{dev: dev, io: io, bitmap: bm, numInodes: numInodes}
}

// SectorsUsed returns how many sectors the inode region occupies.
func (t *Table) SectorsUsed() uint32 {
	return (t.numInodes + InodesPerSector - 1) / InodesPerSector
}

func (t *Table) sectorFor(number uint32) (sec uint32, offset uint32) {
	idx := number - 1
	sec = AreaBeginSector + idx/InodesPerSector
	offset = (idx % InodesPerSector) * RecordSize
	return
}

// Inode is an in-memory copy of one inode record plus the plumbing needed to
// grow its block list.
type Inode struct {
	table *Table

	number         uint32
	used           bool
	fileType       FileType
	fileSize       uint32
	refCount       uint32
	owner          uint32
	groupOwner     uint32
	permission     uint32
	blockCount     uint32
	direct         [directBlockCount]uint32
	indirect       uint32
	doubleIndirect uint32
}

// InitAll zero-initializes every inode slot in the table (used=false, type
// None) — the bulk pass Format runs once over the whole inode region before
// allocating the root.
func (t *Table) InitAll() error {
	for n := uint32(1); n <= t.numInodes; n++ {
		ino := &Inode{table: t, number: n}
		if err := ino.Save(); err != nil {
			return fmt.Errorf("initializing inode %d: %w", n, err)
		}
	}
	return nil
}

// Create writes a fresh, empty inode at number (type None, size 0, no
// blocks) and returns it.
func (t *Table) Create(number uint32) (*Inode, error) {
	if number == 0 || number > t.numInodes {
		return nil, fmt.Errorf("inode number %d out of range (1..%d)", number, t.numInodes)
	}
	ino := &Inode{table: t, number: number, used: true}
	if err := ino.Save(); err != nil {
		return nil, fmt.Errorf("creating inode %d: %w", number, err)
	}
	return ino, nil
}

// Load deserializes inode number from the inode region.
func (t *Table) Load(number uint32) (*Inode, error) {
	if number == 0 || number > t.numInodes {
		return nil, fmt.Errorf("inode number %d out of range (1..%d)", number, t.numInodes)
	}
	sec, offset := t.sectorFor(number)
	buf := make([]byte, sector.Size)
	if err := t.dev.ReadSector(sec, buf); err != nil {
		return nil, fmt.Errorf("reading inode %d: %w", number, err)
	}
	rec := buf[offset : offset+RecordSize]
	ino := &Inode{table: t, number: number}
	ino.used = rec[0] != 0
	ino.fileType = FileType(rec[1])
	ino.fileSize = binary.LittleEndian.Uint32(rec[4:8])
	ino.refCount = binary.LittleEndian.Uint32(rec[8:12])
	ino.owner = binary.LittleEndian.Uint32(rec[12:16])
	ino.groupOwner = binary.LittleEndian.Uint32(rec[16:20])
	ino.permission = binary.LittleEndian.Uint32(rec[20:24])
	ino.blockCount = binary.LittleEndian.Uint32(rec[24:28])
	pos := headerSize
	for i := 0; i < directBlockCount; i++ {
		ino.direct[i] = binary.LittleEndian.Uint32(rec[pos : pos+4])
		pos += 4
	}
	ino.indirect = binary.LittleEndian.Uint32(rec[pos : pos+4])
	pos += 4
	ino.doubleIndirect = binary.LittleEndian.Uint32(rec[pos : pos+4])
	return ino, nil
}

// Save serializes and writes the inode back to its slot in the inode region.
// This is a direct sector write (not through blockio.IO), since the inode
// region is exactly what blockio.IO protects callers from touching.
func (ino *Inode) Save() error {
	t := ino.table
	sec, offset := t.sectorFor(ino.number)
	buf := make([]byte, sector.Size)
	if err := t.dev.ReadSector(sec, buf); err != nil {
		return fmt.Errorf("reading inode sector %d: %w", sec, err)
	}
	rec := buf[offset : offset+RecordSize]
	for i := range rec {
		rec[i] = 0
	}
	if ino.used {
		rec[0] = 1
	}
	rec[1] = byte(ino.fileType)
	binary.LittleEndian.PutUint32(rec[4:8], ino.fileSize)
	binary.LittleEndian.PutUint32(rec[8:12], ino.refCount)
	binary.LittleEndian.PutUint32(rec[12:16], ino.owner)
	binary.LittleEndian.PutUint32(rec[16:20], ino.groupOwner)
	binary.LittleEndian.PutUint32(rec[20:24], ino.permission)
	binary.LittleEndian.PutUint32(rec[24:28], ino.blockCount)
	pos := headerSize
	for i := 0; i < directBlockCount; i++ {
		binary.LittleEndian.PutUint32(rec[pos:pos+4], ino.direct[i])
		pos += 4
	}
	binary.LittleEndian.PutUint32(rec[pos:pos+4], ino.indirect)
	pos += 4
	binary.LittleEndian.PutUint32(rec[pos:pos+4], ino.doubleIndirect)

	if err := t.dev.WriteSector(sec, buf); err != nil {
		return fmt.Errorf("writing inode sector %d: %w", sec, err)
	}
	return nil
}

// FindFree scans for the first unused inode number >= start. Returns an
// error if none is free; 0 is never a valid inode number.
func (t *Table) FindFree(start uint32) (uint32, error) {
	if start == 0 {
		start = 1
	}
	for n := start; n <= t.numInodes; n++ {
		ino, err := t.Load(n)
		if err != nil {
			return 0, err
		}
		if !ino.used {
			return n, nil
		}
	}
	logrus.WithFields(logrus.Fields{"start": start, "numInodes": t.numInodes}).Warn("no free inode")
	return 0, fmt.Errorf("no free inode at or after %d", start)
}

// Number returns the inode's 1-based number.
func (ino *Inode) Number() uint32 { return ino.number }

// FileType returns the inode's type.
func (ino *Inode) FileType() FileType { return ino.fileType }

// SetFileType sets the inode's type.
func (ino *Inode) SetFileType(t FileType) { ino.fileType = t }

// FileSize returns the logical file size in bytes.
func (ino *Inode) FileSize() uint32 { return ino.fileSize }

// SetFileSize sets the logical file size in bytes.
func (ino *Inode) SetFileSize(size uint32) { ino.fileSize = size }

// RefCount returns the number of directory entries pointing at this inode.
func (ino *Inode) RefCount() uint32 { return ino.refCount }

// SetRefCount sets the reference count.
func (ino *Inode) SetRefCount(n uint32) { ino.refCount = n }

// Owner returns the owning user id.
func (ino *Inode) Owner() uint32 { return ino.owner }

// SetOwner sets the owning user id.
func (ino *Inode) SetOwner(uid uint32) { ino.owner = uid }

// GroupOwner returns the owning group id.
func (ino *Inode) GroupOwner() uint32 { return ino.groupOwner }

// SetGroupOwner sets the owning group id.
func (ino *Inode) SetGroupOwner(gid uint32) { ino.groupOwner = gid }

// Permission returns the permission bits.
func (ino *Inode) Permission() uint32 { return ino.permission }

// SetPermission sets the permission bits.
func (ino *Inode) SetPermission(p uint32) { ino.permission = p }

// BlockCount returns how many logical blocks have been added via AddBlock.
func (ino *Inode) BlockCount() uint32 { return ino.blockCount }

// MarkFree resets the inode to an unused, empty slot. Used by unlink once
// RefCount reaches zero.
func (ino *Inode) MarkFree() {
	ino.used = false
	ino.fileType = FileTypeNone
	ino.fileSize = 0
	ino.refCount = 0
	ino.blockCount = 0
	ino.direct = [directBlockCount]uint32{}
	ino.indirect = 0
	ino.doubleIndirect = 0
}

func (ino *Inode) addrsPerIndirectBlock() uint32 {
	return ino.table.io.BlockSize / 4
}

// AllBlocks returns every data block address currently attached to the
// inode, direct and indirect, in logical order. Used by unlink to free them.
func (ino *Inode) AllBlocks() ([]uint32, error) {
	out := make([]uint32, 0, ino.blockCount)
	for i := uint32(0); i < ino.blockCount; i++ {
		addr, err := ino.BlockAddr(int(i))
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// IndirectionBlocks returns the indirect/double-indirect infrastructure
// blocks themselves (not file data), so unlink can free them too.
func (ino *Inode) IndirectionBlocks() []uint32 {
	var out []uint32
	if ino.indirect != 0 {
		out = append(out, ino.indirect)
	}
	if ino.doubleIndirect != 0 {
		out = append(out, ino.doubleIndirect)
		perIndirect := ino.addrsPerIndirectBlock()
		for outer := uint32(0); outer < perIndirect; outer++ {
			blk, err := ino.readIndirectSlot(ino.doubleIndirect, outer)
			if err == nil && blk != 0 {
				out = append(out, blk)
			}
		}
	}
	return out
}

// BlockAddr returns the address of the i-th logical block (0-based). Returns
// 0 with no error if i is within the allocated range but was never filled
// (should not occur in normal operation); returns an error if i exceeds the
// inode's addressing capacity.
func (ino *Inode) BlockAddr(i int) (uint32, error) {
	if i < 0 {
		return 0, fmt.Errorf("negative block index %d", i)
	}
	idx := uint32(i)
	if idx < directBlockCount {
		return ino.direct[idx], nil
	}
	idx -= directBlockCount
	perIndirect := ino.addrsPerIndirectBlock()
	if idx < perIndirect {
		if ino.indirect == 0 {
			return 0, nil
		}
		return ino.readIndirectSlot(ino.indirect, idx)
	}
	idx -= perIndirect
	if idx < perIndirect*perIndirect {
		if ino.doubleIndirect == 0 {
			return 0, nil
		}
		outer := idx / perIndirect
		inner := idx % perIndirect
		indBlock, err := ino.readIndirectSlot(ino.doubleIndirect, outer)
		if err != nil {
			return 0, err
		}
		if indBlock == 0 {
			return 0, nil
		}
		return ino.readIndirectSlot(indBlock, inner)
	}
	return 0, fmt.Errorf("block index %d exceeds maximum file size", i)
}

// AddBlock appends addr as the next logical block, transparently allocating
// indirect infrastructure blocks as needed. Infrastructure blocks are staged
// into the bitmap but the bitmap itself is not saved here; the caller
// commits it once per operation.
func (ino *Inode) AddBlock(addr uint32) error {
	idx := ino.blockCount
	if idx < directBlockCount {
		ino.direct[idx] = addr
		ino.blockCount++
		return nil
	}
	idx -= directBlockCount
	perIndirect := ino.addrsPerIndirectBlock()
	if idx < perIndirect {
		if ino.indirect == 0 {
			blk, err := ino.allocInfraBlock()
			if err != nil {
				return fmt.Errorf("allocating indirect block: %w", err)
			}
			ino.indirect = blk
		}
		if err := ino.writeIndirectSlot(ino.indirect, idx, addr); err != nil {
			return err
		}
		ino.blockCount++
		return nil
	}
	idx -= perIndirect
	if idx < perIndirect*perIndirect {
		if ino.doubleIndirect == 0 {
			blk, err := ino.allocInfraBlock()
			if err != nil {
				return fmt.Errorf("allocating double-indirect block: %w", err)
			}
			ino.doubleIndirect = blk
		}
		outer := idx / perIndirect
		inner := idx % perIndirect
		indBlock, err := ino.readIndirectSlot(ino.doubleIndirect, outer)
		if err != nil {
			return err
		}
		if indBlock == 0 {
			indBlock, err = ino.allocInfraBlock()
			if err != nil {
				return fmt.Errorf("allocating indirect block under double indirection: %w", err)
			}
			if err := ino.writeIndirectSlot(ino.doubleIndirect, outer, indBlock); err != nil {
				return err
			}
		}
		if err := ino.writeIndirectSlot(indBlock, inner, addr); err != nil {
			return err
		}
		ino.blockCount++
		return nil
	}
	return fmt.Errorf("inode %d has reached maximum addressable size", ino.number)
}

func (ino *Inode) allocInfraBlock() (uint32, error) {
	blocks, err := ino.table.bitmap.FindFreeBlocks(1)
	if err != nil {
		return 0, err
	}
	if err := ino.table.bitmap.SetBlocksStatus(blocks, true); err != nil {
		return 0, err
	}
	zero := make([]byte, ino.table.io.BlockSize)
	if err := ino.table.io.WriteBlock(blocks[0], zero, ino.table.io.BlockSize); err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{"inode": ino.number, "block": blocks[0]}).Debug("allocated indirection block")
	return blocks[0], nil
}

func (ino *Inode) readIndirectSlot(block, idx uint32) (uint32, error) {
	buf := make([]byte, ino.table.io.BlockSize)
	if err := ino.table.io.ReadBlock(block, buf); err != nil {
		return 0, fmt.Errorf("reading indirect block %d: %w", block, err)
	}
	return binary.LittleEndian.Uint32(buf[idx*4 : idx*4+4]), nil
}

func (ino *Inode) writeIndirectSlot(block, idx uint32, addr uint32) error {
	buf := make([]byte, ino.table.io.BlockSize)
	if err := ino.table.io.ReadBlock(block, buf); err != nil {
		return fmt.Errorf("reading indirect block %d: %w", block, err)
	}
	binary.LittleEndian.PutUint32(buf[idx*4:idx*4+4], addr)
	if err := ino.table.io.WriteBlock(block, buf, ino.table.io.BlockSize); err != nil {
		return fmt.Errorf("writing indirect block %d: %w", block, err)
	}
	return nil
}
