package willianfs

import (
	"github.com/williancsmelo/willianfs/vfs"
)

// Bind registers fs's operations into registry as an FSInfo, translating
// between WillianFS's idiomatic (value, error) methods and the VFS's
// sentinel-int calling convention: negative on failure, and on success
// either 0 or a positive id/count depending on the call. This translation
// lives only at this boundary — every package beneath it returns ordinary Go
// errors.
func (fs *FileSystem) Bind(registry *vfs.Registry, fsid uint32) (int, error) {
	// Format is left unset: by the time a FileSystem exists to bind, its
	// device is already formatted and mounted, and Format here would need a
	// different, unformatted device than the one fs already owns.
	info := &vfs.FSInfo{
		FSID:   fsid,
		FSName: FSName,

		IsIdle: func() int {
			if fs.IsIdle() {
				return 1
			}
			return 0
		},

		Open: func(path string) int {
			fd, err := fs.Open(path)
			if err != nil {
				return -1
			}
			return int(fd)
		},

		Read: func(fd uint32, buf []byte, nbytes uint32) int {
			n, err := fs.Read(fd, buf[:nbytes])
			if err != nil {
				return -1
			}
			return n
		},

		Write: func(fd uint32, buf []byte, nbytes uint32) int {
			n, err := fs.Write(fd, buf[:nbytes])
			if err != nil {
				return -1
			}
			return n
		},

		Close: func(fd uint32) int {
			if err := fs.Close(fd); err != nil {
				return -1
			}
			return 0
		},

		OpenDir: func(path string) int {
			fd, err := fs.OpenDir(path)
			if err != nil {
				return -1
			}
			return int(fd)
		},

		ReadDir: func(fd uint32) vfs.ReadDirResult {
			entry, ok, err := fs.ReadDir(fd)
			if err != nil {
				return vfs.ReadDirResult{Status: -1}
			}
			if !ok {
				return vfs.ReadDirResult{Status: 0}
			}
			return vfs.ReadDirResult{Name: entry.Name, Inumber: entry.Inumber, Status: 1}
		},

		CloseDir: func(fd uint32) int {
			if err := fs.CloseDir(fd); err != nil {
				return -1
			}
			return 0
		},

		Link: func(fd uint32, filename string, inumber uint32) int {
			if err := fs.LinkAt(fd, filename, inumber); err != nil {
				return -1
			}
			return 0
		},

		Unlink: func(fd uint32, filename string) int {
			if err := fs.UnlinkAt(fd, filename); err != nil {
				return -1
			}
			return 0
		},
	}
	return registry.Register(info)
}
