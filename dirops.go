package willianfs

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/williancsmelo/willianfs/directory"
	"github.com/williancsmelo/willianfs/inode"
	"github.com/williancsmelo/willianfs/pathwalk"
)

var errNotRegular = errors.New("not a regular file")
var errNotDirectory = errors.New("not a directory")

// Stat describes the metadata Lookup exposes — the read-only subset of an
// inode a caller is allowed to see.
type Stat struct {
	Inumber    uint32
	FileType   inode.FileType
	FileSize   uint32
	RefCount   uint32
	BlockCount uint32
}

// Lookup resolves path and reports its metadata without opening it.
func (fs *FileSystem) Lookup(path string) (Stat, error) {
	res, err := pathwalk.Resolve(fs.io, fs.inodes, fs.root, path)
	if err != nil {
		return Stat{}, fmt.Errorf("lookup %q: %w", path, err)
	}
	if !res.Found {
		return Stat{}, fmt.Errorf("lookup %q: no such file or directory", path)
	}
	ino := res.Inode
	return Stat{
		Inumber:    ino.Number(),
		FileType:   ino.FileType(),
		FileSize:   ino.FileSize(),
		RefCount:   ino.RefCount(),
		BlockCount: ino.BlockCount(),
	}, nil
}

// Mkdir creates an empty directory at path, linked into its parent with "."
// and ".." entries.
func (fs *FileSystem) Mkdir(path string) error {
	res, err := pathwalk.Resolve(fs.io, fs.inodes, fs.root, path)
	if err != nil {
		return fmt.Errorf("mkdir %q: %w", path, err)
	}
	if res.Found {
		return fmt.Errorf("mkdir %q: already exists", path)
	}
	if res.Parent == nil {
		return fmt.Errorf("mkdir %q: invalid path", path)
	}

	number, err := fs.inodes.FindFree(inode.RootNumber + 1)
	if err != nil {
		return fmt.Errorf("mkdir %q: no free inode: %w", path, err)
	}
	dir, err := fs.inodes.Create(number)
	if err != nil {
		return fmt.Errorf("mkdir %q: %w", path, err)
	}
	if err := directory.CreateDirectory(fs.io, fs.bitmap, dir); err != nil {
		return fmt.Errorf("mkdir %q: %w", path, err)
	}
	if err := directory.AddEntry(fs.io, fs.bitmap, dir, res.Parent, ".."); err != nil {
		return fmt.Errorf("mkdir %q: linking parent entry: %w", path, err)
	}
	if err := directory.AddEntry(fs.io, fs.bitmap, res.Parent, dir, res.Name); err != nil {
		return fmt.Errorf("mkdir %q: linking into parent: %w", path, err)
	}
	fs.log.WithField("path", path).Debug("directory created")
	return nil
}

// Link creates a new directory entry at newPath pointing at the already-open
// file identified by fd — a hard link, incrementing the target's ref count.
func (fs *FileSystem) Link(fd uint32, newPath string) error {
	d, err := fs.open.Get(fd)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	res, err := pathwalk.Resolve(fs.io, fs.inodes, fs.root, newPath)
	if err != nil {
		return fmt.Errorf("link %q: %w", newPath, err)
	}
	if res.Found {
		return fmt.Errorf("link %q: already exists", newPath)
	}
	if res.Parent == nil {
		return fmt.Errorf("link %q: invalid path", newPath)
	}
	if err := directory.AddEntry(fs.io, fs.bitmap, res.Parent, d.Inode, res.Name); err != nil {
		return fmt.Errorf("link %q: %w", newPath, err)
	}
	fs.log.WithFields(logrus.Fields{"path": newPath, "inode": d.Inode.Number()}).Debug("hard link created")
	return nil
}

// Unlink removes name from parent's entry list and drops the target's ref
// count; once it reaches zero every block it owns (including indirect
// infrastructure) is returned to the bitmap and the inode is marked free.
func (fs *FileSystem) Unlink(path string) error {
	res, err := pathwalk.Resolve(fs.io, fs.inodes, fs.root, path)
	if err != nil {
		return fmt.Errorf("unlink %q: %w", path, err)
	}
	if !res.Found {
		return fmt.Errorf("unlink %q: no such file or directory", path)
	}
	if res.Parent == nil {
		return fmt.Errorf("unlink %q: cannot unlink root", path)
	}
	target := res.Inode
	if target.FileType() == inode.FileTypeDir {
		return fmt.Errorf("unlink %q: is a directory, use rmdir semantics instead", path)
	}
	if _, open := fs.open.FindByInode(target.Number()); open {
		return fmt.Errorf("unlink %q: file is open", path)
	}

	if err := directory.RemoveEntry(fs.io, res.Parent, target, res.Name); err != nil {
		return fmt.Errorf("unlink %q: %w", path, err)
	}
	if err := fs.freeIfUnreferenced(target); err != nil {
		return fmt.Errorf("unlink %q: %w", path, err)
	}
	fs.log.WithField("path", path).Debug("entry unlinked")
	return nil
}

// LinkAt creates a new entry named filename inside the directory already
// open as dirFd, pointing at the inode identified by inumber — a hard link
// scoped to that directory, incrementing the target's ref count. This is the
// directory-scoped counterpart Bind wires into vfs.FSInfo.Link, where fd
// names a directory descriptor rather than the file being linked.
func (fs *FileSystem) LinkAt(dirFd uint32, filename string, inumber uint32) error {
	d, err := fs.open.Get(dirFd)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if d.Inode.FileType() != inode.FileTypeDir {
		return fmt.Errorf("link: %w", errNotDirectory)
	}
	target, err := fs.inodes.Load(inumber)
	if err != nil {
		return fmt.Errorf("link: loading inode %d: %w", inumber, err)
	}
	if err := directory.AddEntry(fs.io, fs.bitmap, d.Inode, target, filename); err != nil {
		return fmt.Errorf("link %q: %w", filename, err)
	}
	fs.log.WithFields(logrus.Fields{"dir": d.Inode.Number(), "name": filename, "inode": inumber}).Debug("hard link created")
	return nil
}

// UnlinkAt removes filename from the directory already open as dirFd and
// drops the target's ref count, freeing its inode and blocks once the count
// reaches zero. This is the directory-scoped counterpart Bind wires into
// vfs.FSInfo.Unlink, where fd names a directory descriptor that scopes the
// lookup instead of being discarded in favor of resolving filename from the
// volume root.
func (fs *FileSystem) UnlinkAt(dirFd uint32, filename string) error {
	d, err := fs.open.Get(dirFd)
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	if d.Inode.FileType() != inode.FileTypeDir {
		return fmt.Errorf("unlink: %w", errNotDirectory)
	}
	dir, err := directory.Load(fs.io, d.Inode)
	if err != nil {
		return fmt.Errorf("unlink %q: %w", filename, err)
	}
	number, ok := dir.Find(filename)
	if !ok {
		return fmt.Errorf("unlink %q: no such file or directory", filename)
	}
	target, err := fs.inodes.Load(number)
	if err != nil {
		return fmt.Errorf("unlink %q: loading inode %d: %w", filename, number, err)
	}
	if target.FileType() == inode.FileTypeDir {
		return fmt.Errorf("unlink %q: is a directory, use rmdir semantics instead", filename)
	}
	if _, open := fs.open.FindByInode(target.Number()); open {
		return fmt.Errorf("unlink %q: file is open", filename)
	}
	if err := directory.RemoveEntry(fs.io, d.Inode, target, filename); err != nil {
		return fmt.Errorf("unlink %q: %w", filename, err)
	}
	if err := fs.freeIfUnreferenced(target); err != nil {
		return fmt.Errorf("unlink %q: %w", filename, err)
	}
	fs.log.WithFields(logrus.Fields{"dir": d.Inode.Number(), "name": filename}).Debug("entry unlinked")
	return nil
}

// freeIfUnreferenced returns every block target owns (including indirect
// infrastructure) to the bitmap and marks its inode free once its ref count
// has dropped to zero.
func (fs *FileSystem) freeIfUnreferenced(target *inode.Inode) error {
	if target.RefCount() > 0 {
		return nil
	}
	blocks, err := target.AllBlocks()
	if err != nil {
		return fmt.Errorf("collecting blocks: %w", err)
	}
	blocks = append(blocks, target.IndirectionBlocks()...)
	if len(blocks) > 0 {
		if err := fs.bitmap.SetBlocksStatus(blocks, false); err != nil {
			return fmt.Errorf("freeing blocks: %w", err)
		}
	}
	target.MarkFree()
	if err := target.Save(); err != nil {
		return err
	}
	if err := fs.bitmap.Save(); err != nil {
		return fmt.Errorf("committing bitmap: %w", err)
	}
	return nil
}

// OpenDir resolves path (which must be a directory) and returns a descriptor
// id for sequential ReadDir calls. It reuses the same open-file table as
// Open/Close: a directory's "cursor" here is an entry index rather than a
// byte offset.
func (fs *FileSystem) OpenDir(path string) (uint32, error) {
	res, err := pathwalk.Resolve(fs.io, fs.inodes, fs.root, path)
	if err != nil {
		return 0, fmt.Errorf("opendir %q: %w", path, err)
	}
	if !res.Found {
		return 0, fmt.Errorf("opendir %q: no such file or directory", path)
	}
	if res.Inode.FileType() != inode.FileTypeDir {
		return 0, fmt.Errorf("opendir %q: %w", path, errNotDirectory)
	}
	d, err := fs.open.Create(res.Inode)
	if err != nil {
		return 0, fmt.Errorf("opendir %q: %w", path, err)
	}
	return d.ID, nil
}

// ReadDirEntry is one entry read by ReadDir.
type ReadDirEntry struct {
	Name    string
	Inumber uint32
}

// ReadDir returns the next entry of the directory opened as fd, advancing
// its cursor, and (nil, false, nil) once every entry has been produced.
func (fs *FileSystem) ReadDir(fd uint32) (*ReadDirEntry, bool, error) {
	d, err := fs.open.Get(fd)
	if err != nil {
		return nil, false, fmt.Errorf("readdir: %w", err)
	}
	if d.Inode.FileType() != inode.FileTypeDir {
		return nil, false, fmt.Errorf("readdir: %w", errNotDirectory)
	}
	dir, err := directory.Load(fs.io, d.Inode)
	if err != nil {
		return nil, false, fmt.Errorf("readdir: %w", err)
	}
	if int(d.Cursor) >= len(dir.Entries) {
		return nil, false, nil
	}
	e := dir.Entries[d.Cursor]
	d.Cursor++
	return &ReadDirEntry{Name: e.Name, Inumber: e.InodeNumber}, true, nil
}

// CloseDir releases a descriptor opened by OpenDir.
func (fs *FileSystem) CloseDir(fd uint32) error {
	if err := fs.open.Close(fd); err != nil {
		return fmt.Errorf("closedir: %w", err)
	}
	return nil
}
