package sector

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestCreateFileRejectsBadSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.bin")
	if _, err := CreateFile(path, 0); err == nil {
		t.Fatalf("expected error for zero size")
	}
	if _, err := CreateFile(path, Size+1); err == nil {
		t.Fatalf("expected error for a size not a multiple of Size")
	}
}

func TestCreateOpenReadWriteSector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.bin")
	dev, err := CreateFile(path, 4*Size)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	want := bytes.Repeat([]byte{0x5A}, Size)
	if err := dev.WriteSector(1, want); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer reopened.Close()

	got := make([]byte, Size)
	if err := reopened.ReadSector(1, got); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("sector contents did not survive a reopen")
	}

	n, err := reopened.SizeInSectors()
	if err != nil {
		t.Fatalf("SizeInSectors: %v", err)
	}
	if n != 4 {
		t.Fatalf("SizeInSectors() = %d, want 4", n)
	}
}

func TestReadWriteSectorRejectsShortBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.bin")
	dev, err := CreateFile(path, 2*Size)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	defer dev.Close()

	short := make([]byte, Size-1)
	if err := dev.ReadSector(0, short); err != ErrShortBuffer {
		t.Fatalf("ReadSector with short buffer = %v, want ErrShortBuffer", err)
	}
	if err := dev.WriteSector(0, short); err != ErrShortBuffer {
		t.Fatalf("WriteSector with short buffer = %v, want ErrShortBuffer", err)
	}
}

func TestCreateFileRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.bin")
	if _, err := CreateFile(path, Size); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if _, err := CreateFile(path, Size); err == nil {
		t.Fatalf("expected error creating over an existing file")
	}
}

func TestOpenFileMissingPath(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatalf("expected error opening a nonexistent file")
	}
	if _, err := OpenFile(""); err == nil {
		t.Fatalf("expected error opening an empty path")
	}
}
