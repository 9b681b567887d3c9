// Package pathwalk implements path splitting and directory-tree resolution.
// It only ever walks downward from the root it is handed; "." and ".." are
// discarded rather than interpreted, a deliberate simplification.
package pathwalk

import (
	"fmt"
	"strings"

	"github.com/williancsmelo/willianfs/blockio"
	"github.com/williancsmelo/willianfs/directory"
	"github.com/williancsmelo/willianfs/inode"
)

// Split breaks path into an ordered list of components, discarding empty
// segments and the literal "." and ".." tokens.
func Split(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		if c == "" || c == "." || c == ".." {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Table loads inodes by number; it is implemented by inode.Table.
type Table interface {
	Load(number uint32) (*inode.Inode, error)
}

// Result is what Resolve found.
type Result struct {
	// Parent is the inode of the directory that should contain the
	// terminal component (nil if path has no components at all).
	Parent *inode.Inode
	// Name is the terminal (base) component being looked for.
	Name string
	// Inode is the terminal component's inode, or nil if it does not exist.
	Inode *inode.Inode
	// Found reports whether Inode was located.
	Found bool
}

// Resolve walks path from root. For every intermediate component it loads
// the current directory, looks up the component by exact, case-sensitive
// name, loads the child inode and requires it to be a directory; it aborts
// on any missing component or type mismatch. The terminal component is
// looked up in the final directory: if present, its inode is returned; if
// absent, Result.Parent still carries the containing directory's inode so
// callers (e.g. open) can create the file in place.
func Resolve(io *blockio.IO, table Table, root *inode.Inode, path string) (*Result, error) {
	parts := Split(path)
	if len(parts) == 0 {
		return &Result{Parent: nil, Inode: root, Found: true}, nil
	}

	current := root
	for _, part := range parts[:len(parts)-1] {
		dir, err := directory.Load(io, current)
		if err != nil {
			return nil, fmt.Errorf("reading directory %q: %w", part, err)
		}
		number, ok := dir.Find(part)
		if !ok {
			return nil, fmt.Errorf("component %q not found", part)
		}
		child, err := table.Load(number)
		if err != nil {
			return nil, fmt.Errorf("loading inode for %q: %w", part, err)
		}
		if child.FileType() != inode.FileTypeDir {
			return nil, fmt.Errorf("component %q is not a directory", part)
		}
		current = child
	}

	name := parts[len(parts)-1]
	dir, err := directory.Load(io, current)
	if err != nil {
		return nil, fmt.Errorf("reading parent directory: %w", err)
	}
	number, ok := dir.Find(name)
	if !ok {
		return &Result{Parent: current, Name: name, Found: false}, nil
	}
	child, err := table.Load(number)
	if err != nil {
		return nil, fmt.Errorf("loading inode for %q: %w", name, err)
	}
	return &Result{Parent: current, Name: name, Inode: child, Found: true}, nil
}
