// Package willianfs implements a complete Unix-style filesystem core over a
// fixed-size, sector-addressable block device: the superblock, free-block
// bitmap, inode table, packed directory format, path resolution and
// open-file table that back format/open/read/write/close and directory
// management.
package willianfs

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/williancsmelo/willianfs/bitmap"
	"github.com/williancsmelo/willianfs/blockio"
	"github.com/williancsmelo/willianfs/directory"
	"github.com/williancsmelo/willianfs/inode"
	"github.com/williancsmelo/willianfs/openfile"
	"github.com/williancsmelo/willianfs/sector"
	"github.com/williancsmelo/willianfs/superblock"
)

// FSName identifies this filesystem to the VFS.
const FSName = "WillianFS"

// FileSystem is a single mounted WillianFS volume. Every piece of mount
// state lives on this struct and is threaded explicitly through every
// operation, so more than one volume can be mounted in the same process.
type FileSystem struct {
	dev       sector.Device
	log       *logrus.Entry
	blockSize uint32

	sb     *superblock.Superblock
	io     *blockio.IO
	bitmap *bitmap.Bitmap
	inodes *inode.Table
	root   *inode.Inode
	open   *openfile.Table
}

// FormatOptions configures a fresh volume.
type FormatOptions struct {
	// BlockSize is the filesystem block size in bytes; must be a multiple of
	// sector.Size.
	BlockSize uint32
	// Logger receives structured diagnostics; defaults to
	// logrus.StandardLogger() when nil.
	Logger *logrus.Logger
}

func (o FormatOptions) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

// Format initializes a fresh WillianFS volume on dev: it lays out the
// superblock, marks the reserved region (inode table plus bitmap blocks)
// occupied, and creates the root directory.
func Format(dev sector.Device, opts FormatOptions) (*FileSystem, error) {
	if dev == nil {
		return nil, errors.New("format: device is nil")
	}
	if opts.BlockSize == 0 {
		return nil, errors.New("format: block size must be greater than zero")
	}
	if opts.BlockSize%sector.Size != 0 {
		return nil, fmt.Errorf("format: block size %d must be a multiple of sector size %d", opts.BlockSize, sector.Size)
	}
	log := opts.logger().WithField("op", "format")

	sectors, err := dev.SizeInSectors()
	if err != nil {
		return nil, fmt.Errorf("format: reading device size: %w", err)
	}
	numBlocks := sectors * sector.Size / opts.BlockSize
	numInodes := numBlocks / 8
	if numInodes == 0 {
		return nil, errors.New("format: device too small to hold any inodes")
	}

	io := &blockio.IO{Device: dev, BlockSize: opts.BlockSize}

	inodeSectors := (numInodes + inode.InodesPerSector - 1) / inode.InodesPerSector
	reservedSectors := inode.AreaBeginSector + inodeSectors
	inodesBlocks := (reservedSectors*sector.Size + opts.BlockSize - 1) / opts.BlockSize
	bitmapBlockIndex := inodesBlocks
	io.ProtectedSectors = reservedSectors

	bm := bitmap.New(numBlocks, bitmapBlockIndex, io)
	bitmapBlocks := (numBlocks + opts.BlockSize - 1) / opts.BlockSize
	reserved := make([]uint32, inodesBlocks+bitmapBlocks)
	for i := range reserved {
		reserved[i] = uint32(i)
	}
	if err := bm.SetBlocksStatus(reserved, true); err != nil {
		return nil, fmt.Errorf("format: reserving inode/bitmap blocks: %w", err)
	}

	inodes := inode.NewTable(dev, io, bm, numInodes)
	if err := inodes.InitAll(); err != nil {
		return nil, fmt.Errorf("format: initializing inode table: %w", err)
	}
	root, err := inodes.Create(inode.RootNumber)
	if err != nil {
		return nil, fmt.Errorf("format: creating root inode: %w", err)
	}

	sb := superblock.New(opts.BlockSize, numBlocks, numInodes, bitmapBlockIndex)
	if err := sb.Save(dev); err != nil {
		return nil, fmt.Errorf("format: saving superblock: %w", err)
	}
	if err := bm.Save(); err != nil {
		return nil, fmt.Errorf("format: saving bitmap: %w", err)
	}

	if err := directory.CreateDirectory(io, bm, root); err != nil {
		return nil, fmt.Errorf("format: creating root directory: %w", err)
	}
	if err := directory.AddEntry(io, bm, root, root, ".."); err != nil {
		return nil, fmt.Errorf("format: linking root's parent entry: %w", err)
	}

	log.WithFields(logrus.Fields{
		"blockSize": opts.BlockSize,
		"numBlocks": numBlocks,
		"numInodes": numInodes,
	}).Debug("volume formatted")

	return &FileSystem{
		dev:       dev,
		log:       log,
		blockSize: opts.BlockSize,
		sb:        sb,
		io:        io,
		bitmap:    bm,
		inodes:    inodes,
		root:      root,
		open:      openfile.NewTable(),
	}, nil
}

// Mount loads an existing WillianFS volume's superblock, bitmap, and root
// inode from dev, all up front, rather than lazily on first use.
func Mount(dev sector.Device, logger *logrus.Logger) (*FileSystem, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("op", "mount")

	sb, err := superblock.Load(dev)
	if err != nil {
		return nil, fmt.Errorf("mount: loading superblock: %w", err)
	}
	if sb.BlockSize == 0 || sb.BlockSize%sector.Size != 0 {
		return nil, fmt.Errorf("mount: corrupt superblock: block size %d", sb.BlockSize)
	}

	io := &blockio.IO{Device: dev, BlockSize: sb.BlockSize}
	inodeSectors := (sb.NumInodes + inode.InodesPerSector - 1) / inode.InodesPerSector
	io.ProtectedSectors = inode.AreaBeginSector + inodeSectors

	bm, err := bitmap.Load(sb.NumBlocks, sb.BitmapBlockIndex, io)
	if err != nil {
		return nil, fmt.Errorf("mount: loading bitmap: %w", err)
	}

	inodes := inode.NewTable(dev, io, bm, sb.NumInodes)
	root, err := inodes.Load(inode.RootNumber)
	if err != nil {
		return nil, fmt.Errorf("mount: loading root inode: %w", err)
	}
	if root.FileType() != inode.FileTypeDir {
		return nil, errors.New("mount: root inode is not a directory")
	}

	log.WithField("volume", sb.VolumeID()).Debug("volume mounted")

	return &FileSystem{
		dev:       dev,
		log:       log,
		blockSize: sb.BlockSize,
		sb:        sb,
		io:        io,
		bitmap:    bm,
		inodes:    inodes,
		root:      root,
		open:      openfile.NewTable(),
	}, nil
}

// IsIdle reports whether any descriptor is currently open.
func (fs *FileSystem) IsIdle() bool {
	return fs.open.Count() == 0
}

// NumBlocks returns the volume's total block count.
func (fs *FileSystem) NumBlocks() uint32 {
	return fs.sb.NumBlocks
}
