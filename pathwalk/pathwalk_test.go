package pathwalk

import (
	"reflect"
	"testing"

	"github.com/williancsmelo/willianfs/bitmap"
	"github.com/williancsmelo/willianfs/blockio"
	"github.com/williancsmelo/willianfs/directory"
	"github.com/williancsmelo/willianfs/inode"
	"github.com/williancsmelo/willianfs/sector/sectortest"
)

const testBlockSize = 512

func TestSplitDiscardsDotAndEmpty(t *testing.T) {
	got := Split("/a/./b//c/../d/")
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split() = %v, want %v", got, want)
	}
}

func TestSplitEmptyPath(t *testing.T) {
	if got := Split(""); len(got) != 0 {
		t.Fatalf("Split(\"\") = %v, want empty", got)
	}
	if got := Split("/"); len(got) != 0 {
		t.Fatalf("Split(\"/\") = %v, want empty", got)
	}
}

func newFixture(t *testing.T) (*blockio.IO, *inode.Table, *inode.Inode) {
	t.Helper()
	dev := sectortest.New(1024)
	// testBlockSize is one sector, so block and sector numbers coincide: the
	// superblock and inode region are protected, and the bitmap's two blocks
	// sit right after them.
	const numInodes = 16
	protected := inode.AreaBeginSector + (numInodes+inode.InodesPerSector-1)/inode.InodesPerSector
	io := &blockio.IO{Device: dev, BlockSize: testBlockSize, ProtectedSectors: protected}
	bm := bitmap.New(1024, protected, io)
	reserved := make([]uint32, protected+2)
	for i := range reserved {
		reserved[i] = uint32(i)
	}
	if err := bm.SetBlocksStatus(reserved, true); err != nil {
		t.Fatalf("reserving region: %v", err)
	}
	table := inode.NewTable(dev, io, bm, numInodes)
	if err := table.InitAll(); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	root, err := table.Create(inode.RootNumber)
	if err != nil {
		t.Fatalf("Create root: %v", err)
	}
	if err := directory.CreateDirectory(io, bm, root); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}

	sub, err := table.Create(2)
	if err != nil {
		t.Fatalf("Create sub: %v", err)
	}
	if err := directory.CreateDirectory(io, bm, sub); err != nil {
		t.Fatalf("CreateDirectory(sub): %v", err)
	}
	if err := directory.AddEntry(io, bm, sub, root, ".."); err != nil {
		t.Fatalf("AddEntry(..): %v", err)
	}
	if err := directory.AddEntry(io, bm, root, sub, "sub"); err != nil {
		t.Fatalf("AddEntry(sub): %v", err)
	}

	file, err := table.Create(3)
	if err != nil {
		t.Fatalf("Create file: %v", err)
	}
	file.SetFileType(inode.FileTypeRegular)
	if err := directory.AddEntry(io, bm, sub, file, "leaf.txt"); err != nil {
		t.Fatalf("AddEntry(leaf.txt): %v", err)
	}

	return io, table, root
}

func TestResolveRootPath(t *testing.T) {
	io, table, root := newFixture(t)
	res, err := Resolve(io, table, root, "/")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Found || res.Inode.Number() != root.Number() {
		t.Fatalf("expected root resolution, got %+v", res)
	}
}

func TestResolveNestedFile(t *testing.T) {
	io, table, root := newFixture(t)
	res, err := Resolve(io, table, root, "/sub/leaf.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Found || res.Inode.Number() != 3 {
		t.Fatalf("expected to find inode 3, got %+v", res)
	}
	if res.Name != "leaf.txt" {
		t.Fatalf("Name = %q, want leaf.txt", res.Name)
	}
}

func TestResolveMissingTerminalReturnsParent(t *testing.T) {
	io, table, root := newFixture(t)
	res, err := Resolve(io, table, root, "/sub/new.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Found {
		t.Fatalf("expected Found=false for a missing file")
	}
	if res.Parent == nil || res.Parent.Number() != 2 {
		t.Fatalf("expected Parent to be inode 2, got %+v", res.Parent)
	}
	if res.Name != "new.txt" {
		t.Fatalf("Name = %q, want new.txt", res.Name)
	}
}

func TestResolveMissingIntermediateErrors(t *testing.T) {
	io, table, root := newFixture(t)
	if _, err := Resolve(io, table, root, "/nope/leaf.txt"); err == nil {
		t.Fatalf("expected error resolving through a missing intermediate directory")
	}
}

func TestResolveThroughNonDirectoryErrors(t *testing.T) {
	io, table, root := newFixture(t)
	if _, err := Resolve(io, table, root, "/sub/leaf.txt/oops"); err == nil {
		t.Fatalf("expected error walking through a file as if it were a directory")
	}
}
