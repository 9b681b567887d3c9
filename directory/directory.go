// Package directory implements the packed directory entry codec: a
// directory's file content is a uint32 entry count followed by densely
// packed, fixed-width (inode number, name) records, with no per-entry length
// prefix and no guarantee an entry won't straddle a block boundary.
//
// A directory is treated as just a regular file whose bytes happen to decode
// into entries, read and written with the same block-reading primitives used
// for file data.
package directory

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/williancsmelo/willianfs/bitmap"
	"github.com/williancsmelo/willianfs/blockio"
	"github.com/williancsmelo/willianfs/inode"
)

// EntrySize is the fixed width of one packed directory record: a uint32
// inode number followed by a MaxFilenameLength-byte, NUL-padded name field.
const EntrySize = 4 + inode.MaxFilenameLength

// countSize is the width of the leading num_entries field.
const countSize = 4

// Entry is one decoded directory record.
type Entry struct {
	InodeNumber uint32
	Name        string
}

// Directory is the decoded contents of a directory's data blocks.
type Directory struct {
	Entries []Entry
}

// Load reads and decodes every data block of ino and parses its entries.
// Rejects inodes that are not directories, or whose buffer is too short to
// contain the entries its own count claims.
func Load(io *blockio.IO, ino *inode.Inode) (*Directory, error) {
	if ino.FileType() != inode.FileTypeDir {
		logrus.WithField("inode", ino.Number()).Warn("load: inode is not a directory")
		return nil, fmt.Errorf("inode %d is not a directory", ino.Number())
	}
	numBlocks := (ino.FileSize() + io.BlockSize - 1) / io.BlockSize
	buf := make([]byte, numBlocks*io.BlockSize)
	for i := uint32(0); i < numBlocks; i++ {
		addr, err := ino.BlockAddr(int(i))
		if err != nil {
			return nil, fmt.Errorf("locating directory block %d: %w", i, err)
		}
		if err := io.ReadBlock(addr, buf[i*io.BlockSize:(i+1)*io.BlockSize]); err != nil {
			return nil, fmt.Errorf("reading directory block %d: %w", i, err)
		}
	}
	if len(buf) < countSize {
		logrus.WithField("inode", ino.Number()).Warn("load: directory buffer too short to hold entry count")
		return nil, fmt.Errorf("directory buffer too short to hold entry count")
	}
	numEntries := binary.LittleEndian.Uint32(buf[0:countSize])
	need := countSize + int(numEntries)*EntrySize
	if len(buf) < need {
		logrus.WithFields(logrus.Fields{"inode": ino.Number(), "have": len(buf), "need": need}).Warn("load: directory buffer too short for its own entry count")
		return nil, fmt.Errorf("directory buffer too short: have %d bytes, need %d for %d entries", len(buf), need, numEntries)
	}
	dir := &Directory{Entries: make([]Entry, 0, numEntries)}
	offset := countSize
	for i := uint32(0); i < numEntries; i++ {
		num := binary.LittleEndian.Uint32(buf[offset : offset+4])
		nameBytes := buf[offset+4 : offset+EntrySize]
		dir.Entries = append(dir.Entries, Entry{InodeNumber: num, Name: decodeName(nameBytes)})
		offset += EntrySize
	}
	return dir, nil
}

func decodeName(b []byte) string {
	n := len(b)
	for i, c := range b {
		if c == 0 {
			n = i
			break
		}
	}
	return string(b[:n])
}

func encodeName(name string) ([inode.MaxFilenameLength]byte, error) {
	var out [inode.MaxFilenameLength]byte
	if len(name) == 0 || len(name) > inode.MaxFilenameLength {
		return out, fmt.Errorf("name %q must be 1..%d bytes", name, inode.MaxFilenameLength)
	}
	copy(out[:], name)
	return out, nil
}

// Find looks up name and returns its inode number (0 if absent), matching
// case-sensitively and exactly.
func (d *Directory) Find(name string) (uint32, bool) {
	for _, e := range d.Entries {
		if e.Name == name {
			return e.InodeNumber, true
		}
	}
	return 0, false
}

// lastBlockIndex is the logical index of the final, currently-in-use data
// block of a non-empty directory.
func lastBlockIndex(fileSize, blockSize uint32) uint32 {
	last := fileSize / blockSize
	if fileSize%blockSize == 0 {
		last--
	}
	return last
}

func encodeEntry(number uint32, name string) ([]byte, error) {
	nameBytes, err := encodeName(name)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, EntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], number)
	copy(buf[4:], nameBytes[:])
	return buf, nil
}

// AddEntry appends a (entryInode.Number(), name) record to dirInode's
// packed entry list, growing the directory by one block if the final block
// has no room. Rejects a name collision. On success, dirInode.FileSize is
// grown by EntrySize, entryInode.RefCount is incremented, and both inodes
// plus (if a block was allocated) the bitmap are saved before returning.
func AddEntry(io *blockio.IO, bm *bitmap.Bitmap, dirInode, entryInode *inode.Inode, name string) error {
	existing, err := Load(io, dirInode)
	if err != nil {
		return err
	}
	if _, ok := existing.Find(name); ok {
		return fmt.Errorf("entry %q already exists in directory inode %d", name, dirInode.Number())
	}
	entryBytes, err := encodeEntry(entryInode.Number(), name)
	if err != nil {
		return err
	}

	blockSize := io.BlockSize
	lastIdx := lastBlockIndex(dirInode.FileSize(), blockSize)
	finalBlock, err := dirInode.BlockAddr(int(lastIdx))
	if err != nil {
		return fmt.Errorf("locating final directory block: %w", err)
	}
	offsetInBlock := dirInode.FileSize() % blockSize
	free := blockSize - offsetInBlock

	finalBuf := make([]byte, blockSize)
	if err := io.ReadBlock(finalBlock, finalBuf); err != nil {
		return fmt.Errorf("reading final directory block: %w", err)
	}

	// must be >= here: an entry exactly filling the remaining space still
	// fits without growing the directory; using > would overflow past the
	// block in that case.
	if free >= EntrySize {
		copy(finalBuf[offsetInBlock:], entryBytes)
		if err := io.WriteBlock(finalBlock, finalBuf, blockSize); err != nil {
			return fmt.Errorf("writing final directory block: %w", err)
		}
	} else {
		blocks, err := bm.FindFreeBlocks(1)
		if err != nil {
			return fmt.Errorf("allocating directory growth block: %w", err)
		}
		newBuf := make([]byte, blockSize)
		tailLen := free
		copy(finalBuf[offsetInBlock:], entryBytes[:tailLen])
		copy(newBuf, entryBytes[tailLen:])

		if err := io.WriteBlock(finalBlock, finalBuf, blockSize); err != nil {
			return fmt.Errorf("writing split entry tail: %w", err)
		}
		if err := io.WriteBlock(blocks[0], newBuf, blockSize); err != nil {
			return fmt.Errorf("writing split entry head: %w", err)
		}
		if err := bm.SetBlocksStatus(blocks, true); err != nil {
			return err
		}
		if err := dirInode.AddBlock(blocks[0]); err != nil {
			return fmt.Errorf("linking new directory block: %w", err)
		}
		if err := bm.Save(); err != nil {
			return fmt.Errorf("committing bitmap: %w", err)
		}
	}

	dirInode.SetFileSize(dirInode.FileSize() + EntrySize)
	entryInode.SetRefCount(entryInode.RefCount() + 1)

	if err := entryInode.Save(); err != nil {
		return fmt.Errorf("saving entry inode: %w", err)
	}
	if err := dirInode.Save(); err != nil {
		return fmt.Errorf("saving directory inode: %w", err)
	}
	// num_entries is bumped last: an interrupted append leaves a trailing
	// record invisible to readers because they still trust the old count.
	if err := setNumEntries(io, dirInode, uint32(len(existing.Entries)+1)); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"directory": dirInode.Number(), "entry": name, "inode": entryInode.Number()}).Debug("directory entry added")
	return nil
}

// setNumEntries rewrites the directory's leading uint32 entry count. This is
// the final step of AddEntry: an interrupted append leaves a trailing record
// invisible to readers because num_entries hasn't grown yet.
func setNumEntries(io *blockio.IO, dirInode *inode.Inode, n uint32) error {
	firstBlock, err := dirInode.BlockAddr(0)
	if err != nil {
		return fmt.Errorf("locating first directory block: %w", err)
	}
	buf := make([]byte, io.BlockSize)
	if err := io.ReadBlock(firstBlock, buf); err != nil {
		return fmt.Errorf("reading first directory block: %w", err)
	}
	binary.LittleEndian.PutUint32(buf[0:4], n)
	if err := io.WriteBlock(firstBlock, buf, io.BlockSize); err != nil {
		return fmt.Errorf("writing entry count: %w", err)
	}
	return nil
}

// CreateDirectory turns ino into an empty directory: allocates its first
// block, writes num_entries=0, and appends the "." self-entry. The caller is
// responsible for linking ".." afterward, since the parent isn't known to
// this function.
func CreateDirectory(io *blockio.IO, bm *bitmap.Bitmap, ino *inode.Inode) error {
	blocks, err := bm.FindFreeBlocks(1)
	if err != nil {
		return fmt.Errorf("allocating directory block: %w", err)
	}
	buf := make([]byte, io.BlockSize)
	binary.LittleEndian.PutUint32(buf[0:4], 0)
	if err := io.WriteBlock(blocks[0], buf, io.BlockSize); err != nil {
		return fmt.Errorf("writing empty directory block: %w", err)
	}

	ino.SetFileType(inode.FileTypeDir)
	ino.SetFileSize(countSize)
	ino.SetRefCount(0)
	ino.SetPermission(0)
	ino.SetOwner(0)
	ino.SetGroupOwner(0)
	if err := ino.AddBlock(blocks[0]); err != nil {
		return fmt.Errorf("linking directory's first block: %w", err)
	}
	if err := bm.SetBlocksStatus(blocks, true); err != nil {
		return err
	}
	if err := bm.Save(); err != nil {
		return fmt.Errorf("committing bitmap: %w", err)
	}
	if err := ino.Save(); err != nil {
		return fmt.Errorf("saving new directory inode: %w", err)
	}
	return AddEntry(io, bm, ino, ino, ".")
}

// RemoveEntry deletes the named record from dirInode's packed entry list
// (the reverse of AddEntry) and decrements targetInode's ref count. The
// remaining entries are rewritten packed from the start of the directory,
// and the rest of each rewritten block is zero-filled; blocks wholly past the
// new, shorter file_size are left on disk untouched.
func RemoveEntry(io *blockio.IO, dirInode, targetInode *inode.Inode, name string) error {
	dir, err := Load(io, dirInode)
	if err != nil {
		return err
	}
	idx := -1
	for i, e := range dir.Entries {
		if e.Name == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("entry %q not found in directory inode %d", name, dirInode.Number())
	}

	remaining := append(dir.Entries[:idx:idx], dir.Entries[idx+1:]...)
	if err := rewriteEntries(io, dirInode, remaining); err != nil {
		return err
	}

	if targetInode.RefCount() > 0 {
		targetInode.SetRefCount(targetInode.RefCount() - 1)
	}
	if err := targetInode.Save(); err != nil {
		return fmt.Errorf("saving unlinked inode: %w", err)
	}
	logrus.WithFields(logrus.Fields{"directory": dirInode.Number(), "entry": name}).Debug("directory entry removed")
	return nil
}

// rewriteEntries re-serializes a full entry list in place, starting at the
// directory's existing first block, and shrinks file_size to match. It does
// not shrink the directory's block list; freeing now-unused trailing blocks
// is not required for correctness (they sit past file_size and are ignored
// by Load), only for reclaiming space.
func rewriteEntries(io *blockio.IO, dirInode *inode.Inode, entries []Entry) error {
	need := countSize + len(entries)*EntrySize
	numBlocks := (uint32(need) + io.BlockSize - 1) / io.BlockSize
	if numBlocks == 0 {
		numBlocks = 1
	}
	buf := make([]byte, numBlocks*io.BlockSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(entries)))
	offset := countSize
	for _, e := range entries {
		rec, err := encodeEntry(e.InodeNumber, e.Name)
		if err != nil {
			return err
		}
		copy(buf[offset:], rec)
		offset += EntrySize
	}
	for i := uint32(0); i < numBlocks; i++ {
		addr, err := dirInode.BlockAddr(int(i))
		if err != nil {
			return fmt.Errorf("locating directory block %d: %w", i, err)
		}
		if err := io.WriteBlock(addr, buf[i*io.BlockSize:(i+1)*io.BlockSize], io.BlockSize); err != nil {
			return fmt.Errorf("rewriting directory block %d: %w", i, err)
		}
	}
	dirInode.SetFileSize(uint32(need))
	if err := dirInode.Save(); err != nil {
		return fmt.Errorf("saving directory inode: %w", err)
	}
	return nil
}
