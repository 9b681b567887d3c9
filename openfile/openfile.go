// Package openfile implements the bounded open-file descriptor table: a
// fixed-capacity array of (fd, inode, cursor) descriptors plus a
// monotonically increasing id counter. Descriptor ids are never reused
// within a process lifetime.
package openfile

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/williancsmelo/willianfs/inode"
)

// MaxOpenFiles bounds the table, and also serves as the VFS layer's MAX_FDS:
// one constant covers both, since the table is the fd namespace here.
const MaxOpenFiles = 128

// Descriptor is one open file handle.
type Descriptor struct {
	ID    uint32
	Inode *inode.Inode
	// Cursor is the current read/write offset within the file.
	Cursor uint32
}

// Table is the process-wide open-file table for one mounted volume.
type Table struct {
	descriptors []*Descriptor
	lastFD      uint32
}

// NewTable creates an empty open-file table.
func NewTable() *Table {
	return &Table{}
}

// Count returns the number of currently open descriptors.
func (t *Table) Count() int {
	return len(t.descriptors)
}

// FindByInode returns the existing descriptor for ino's inode number, if any
// is currently open — the core reuses it rather than opening a second
// descriptor on the same inode, preserving cursor semantics.
func (t *Table) FindByInode(number uint32) (*Descriptor, bool) {
	for _, d := range t.descriptors {
		if d.Inode.Number() == number {
			return d, true
		}
	}
	return nil, false
}

// Create installs a new descriptor for ino with cursor 0 and returns it.
// Fails when the table is at capacity.
func (t *Table) Create(ino *inode.Inode) (*Descriptor, error) {
	if len(t.descriptors) >= MaxOpenFiles {
		logrus.WithField("max", MaxOpenFiles).Warn("open file table full")
		return nil, fmt.Errorf("open file table full (max %d)", MaxOpenFiles)
	}
	t.lastFD++
	d := &Descriptor{ID: t.lastFD, Inode: ino}
	t.descriptors = append(t.descriptors, d)
	return d, nil
}

// Get finds the descriptor with the given id.
func (t *Table) Get(fd uint32) (*Descriptor, error) {
	for _, d := range t.descriptors {
		if d.ID == fd {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no open descriptor with id %d", fd)
}

// Close removes the descriptor with the given id, shifting the remainder of
// the table left. The shift is bounded by the table's true length, so it
// never reads past the end of the backing slice.
func (t *Table) Close(fd uint32) error {
	for i, d := range t.descriptors {
		if d.ID == fd {
			t.descriptors = append(t.descriptors[:i], t.descriptors[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no open descriptor with id %d", fd)
}
