package sector

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// FileDevice is a Device backed by an *os.File: either a plain image file or,
// on Linux, a real block device opened by path.
type FileDevice struct {
	f    *os.File
	log  *logrus.Entry
	size uint32 // cached sector count
}

var _ Device = (*FileDevice)(nil)

// OpenFile opens an existing image file or block device at path as a Device.
func OpenFile(path string) (*FileDevice, error) {
	if path == "" {
		return nil, errors.New("must pass a device or image path")
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &FileDevice{f: f, log: logrus.WithField("device", path)}, nil
}

// CreateFile creates a new, zero-filled image file of the given byte size and
// wraps it as a Device. size must be a multiple of Size.
func CreateFile(path string, size int64) (*FileDevice, error) {
	if path == "" {
		return nil, errors.New("must pass an image path")
	}
	if size <= 0 || size%Size != 0 {
		return nil, fmt.Errorf("size %d must be a positive multiple of %d", size, Size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing %s to %d bytes: %w", path, size, err)
	}
	return &FileDevice{f: f, log: logrus.WithField("device", path)}, nil
}

// Close releases the underlying file handle.
func (d *FileDevice) Close() error {
	return d.f.Close()
}

// SizeInSectors reports how many Size-byte sectors the backing file holds.
// For a real block device it asks the kernel via BLKGETSIZE64; for a regular
// file it stats the file length.
func (d *FileDevice) SizeInSectors() (uint32, error) {
	if d.size != 0 {
		return d.size, nil
	}
	info, err := d.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}

	var byteSize int64
	if info.Mode()&os.ModeDevice != 0 {
		n, err := unix.IoctlGetUint64(int(d.f.Fd()), unix.BLKGETSIZE64)
		if err != nil {
			return 0, fmt.Errorf("BLKGETSIZE64: %w", err)
		}
		byteSize = int64(n)
	} else {
		byteSize = info.Size()
	}

	if byteSize%Size != 0 {
		return 0, fmt.Errorf("device size %d is not a multiple of sector size %d", byteSize, Size)
	}
	d.size = uint32(byteSize / Size)
	return d.size, nil
}

// ReadSector reads sector sec into buf.
func (d *FileDevice) ReadSector(sec uint32, buf []byte) error {
	if len(buf) < Size {
		return ErrShortBuffer
	}
	n, err := d.f.ReadAt(buf[:Size], int64(sec)*Size)
	if err != nil {
		return fmt.Errorf("reading sector %d: %w", sec, err)
	}
	if n != Size {
		return fmt.Errorf("short read of sector %d: got %d of %d bytes", sec, n, Size)
	}
	return nil
}

// WriteSector writes the first Size bytes of buf to sector sec.
func (d *FileDevice) WriteSector(sec uint32, buf []byte) error {
	if len(buf) < Size {
		return ErrShortBuffer
	}
	n, err := d.f.WriteAt(buf[:Size], int64(sec)*Size)
	if err != nil {
		return fmt.Errorf("writing sector %d: %w", sec, err)
	}
	if n != Size {
		return fmt.Errorf("short write of sector %d: wrote %d of %d bytes", sec, n, Size)
	}
	d.log.WithField("sector", sec).Debug("wrote sector")
	return nil
}
