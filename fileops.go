package willianfs

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/williancsmelo/willianfs/directory"
	"github.com/williancsmelo/willianfs/inode"
	"github.com/williancsmelo/willianfs/pathwalk"
)

// Open resolves path from the root and returns a descriptor id usable with
// Read/Write/Close. A path that doesn't yet exist gets a fresh regular file
// created in place, with one data block already attached, fully created
// before Open returns rather than left half-finished for a later call.
func (fs *FileSystem) Open(path string) (uint32, error) {
	res, err := pathwalk.Resolve(fs.io, fs.inodes, fs.root, path)
	if err != nil {
		return 0, fmt.Errorf("open %q: %w", path, err)
	}

	target := res.Inode
	if !res.Found {
		if res.Parent == nil {
			return 0, fmt.Errorf("open %q: invalid path", path)
		}
		target, err = fs.createFile(res.Parent, res.Name)
		if err != nil {
			return 0, fmt.Errorf("open %q: %w", path, err)
		}
	} else if target.FileType() != inode.FileTypeRegular {
		return 0, fmt.Errorf("open %q: %w", path, errNotRegular)
	}

	if d, ok := fs.open.FindByInode(target.Number()); ok {
		return d.ID, nil
	}
	d, err := fs.open.Create(target)
	if err != nil {
		return 0, fmt.Errorf("open %q: %w", path, err)
	}
	fs.log.WithFields(logrus.Fields{"path": path, "fd": d.ID, "inode": target.Number()}).Debug("file opened")
	return d.ID, nil
}

// createFile allocates a fresh regular-file inode with one empty data block
// already attached, and links it into parent under name.
func (fs *FileSystem) createFile(parent *inode.Inode, name string) (*inode.Inode, error) {
	number, err := fs.inodes.FindFree(inode.RootNumber + 1)
	if err != nil {
		return nil, fmt.Errorf("no free inode: %w", err)
	}
	file, err := fs.inodes.Create(number)
	if err != nil {
		return nil, err
	}
	file.SetFileType(inode.FileTypeRegular)

	blocks, err := fs.bitmap.FindFreeBlocks(1)
	if err != nil {
		return nil, fmt.Errorf("allocating initial block: %w", err)
	}
	zero := make([]byte, fs.blockSize)
	if err := fs.io.WriteBlock(blocks[0], zero, fs.blockSize); err != nil {
		return nil, err
	}
	if err := file.AddBlock(blocks[0]); err != nil {
		return nil, err
	}
	if err := fs.bitmap.SetBlocksStatus(blocks, true); err != nil {
		return nil, err
	}
	if err := fs.bitmap.Save(); err != nil {
		return nil, fmt.Errorf("committing bitmap: %w", err)
	}
	if err := file.Save(); err != nil {
		return nil, fmt.Errorf("saving new file inode: %w", err)
	}
	if err := directory.AddEntry(fs.io, fs.bitmap, parent, file, name); err != nil {
		return nil, fmt.Errorf("linking new file: %w", err)
	}
	return file, nil
}

// Read copies up to len(buf) bytes starting at the descriptor's cursor,
// advances the cursor by what was actually copied, and returns that count.
// It returns (0, nil) at end of file and (-1, err) if no bytes could be read
// at all.
func (fs *FileSystem) Read(fd uint32, buf []byte) (int, error) {
	d, err := fs.open.Get(fd)
	if err != nil {
		return -1, err
	}
	ino := d.Inode
	if ino.FileType() != inode.FileTypeRegular {
		return -1, fmt.Errorf("read: %w", errNotRegular)
	}
	if d.Cursor >= ino.FileSize() || len(buf) == 0 {
		return 0, nil
	}

	toRead := uint32(len(buf))
	if remain := ino.FileSize() - d.Cursor; toRead > remain {
		toRead = remain
	}

	blockSize := fs.blockSize
	scratch := make([]byte, blockSize)
	var copied uint32
	for copied < toRead {
		pos := d.Cursor + copied
		blockIdx := pos / blockSize
		offsetInBlock := pos % blockSize

		addr, err := ino.BlockAddr(int(blockIdx))
		if err != nil || addr == 0 {
			if copied == 0 {
				return -1, fmt.Errorf("reading block %d: %w", blockIdx, err)
			}
			break
		}
		if err := fs.io.ReadBlock(addr, scratch); err != nil {
			if copied == 0 {
				return -1, err
			}
			break
		}
		n := blockSize - offsetInBlock
		if remaining := toRead - copied; n > remaining {
			n = remaining
		}
		copy(buf[copied:copied+n], scratch[offsetInBlock:offsetInBlock+n])
		copied += n
	}
	d.Cursor += copied
	return int(copied), nil
}

// Write copies len(buf) bytes into the file starting at the descriptor's
// cursor, read-modify-writing partial blocks and allocating fresh blocks on
// growth as a single staged batch, then advances the cursor and grows
// file_size. Returns -1 on failure, including when a block touched by the
// write is neither already allocated nor the next appendable block — this
// check applies to every block touched, not only the first one written.
func (fs *FileSystem) Write(fd uint32, buf []byte) (int, error) {
	d, err := fs.open.Get(fd)
	if err != nil {
		return -1, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	ino := d.Inode
	if ino.FileType() != inode.FileTypeRegular {
		return -1, fmt.Errorf("write: %w", errNotRegular)
	}
	blockSize := fs.blockSize
	nbytes := uint32(len(buf))

	lastBlockIdx := (d.Cursor + nbytes - 1) / blockSize
	var fresh []uint32
	if next := ino.BlockCount(); lastBlockIdx+1 > next {
		need := int(lastBlockIdx + 1 - next)
		fresh, err = fs.bitmap.FindFreeBlocks(need)
		if err != nil {
			return -1, fmt.Errorf("write: %w", err)
		}
		if err := fs.bitmap.SetBlocksStatus(fresh, true); err != nil {
			return -1, fmt.Errorf("write: %w", err)
		}
	}

	pos := d.Cursor
	remaining := nbytes
	scratch := make([]byte, blockSize)
	for remaining > 0 {
		blockIdx := pos / blockSize
		offsetInBlock := pos % blockSize

		addr, err := ino.BlockAddr(int(blockIdx))
		if err != nil {
			return -1, fmt.Errorf("write: %w", err)
		}
		if addr == 0 {
			if blockIdx != ino.BlockCount() || len(fresh) == 0 {
				return -1, fmt.Errorf("write: block %d is not allocated and not the next appendable block", blockIdx)
			}
			addr, fresh = fresh[0], fresh[1:]
			if err := ino.AddBlock(addr); err != nil {
				return -1, fmt.Errorf("write: %w", err)
			}
		}

		chunk := blockSize - offsetInBlock
		if chunk > remaining {
			chunk = remaining
		}
		if err := fs.io.ReadBlock(addr, scratch); err != nil {
			return -1, fmt.Errorf("write: %w", err)
		}
		copy(scratch[offsetInBlock:offsetInBlock+chunk], buf[pos-d.Cursor:pos-d.Cursor+chunk])
		if err := fs.io.WriteBlock(addr, scratch, blockSize); err != nil {
			return -1, fmt.Errorf("write: %w", err)
		}
		pos += chunk
		remaining -= chunk
	}

	written := pos - d.Cursor
	// file_size is the high-water mark, not a running total: adding
	// bytes_written unconditionally would double-count bytes on overwrite.
	if newSize := d.Cursor + written; newSize > ino.FileSize() {
		ino.SetFileSize(newSize)
	}
	if err := ino.Save(); err != nil {
		return int(written), fmt.Errorf("write: saving inode: %w", err)
	}
	if err := fs.bitmap.Save(); err != nil {
		return int(written), fmt.Errorf("write: committing bitmap: %w", err)
	}
	d.Cursor += written
	return int(written), nil
}

// Close releases fd. The descriptor table itself performs a bounded shift
// over only its live entries; see openfile.Table.Close.
func (fs *FileSystem) Close(fd uint32) error {
	if err := fs.open.Close(fd); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	fs.log.WithField("fd", fd).Debug("file closed")
	return nil
}
