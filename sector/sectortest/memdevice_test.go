package sectortest

import (
	"bytes"
	"testing"

	"github.com/williancsmelo/willianfs/sector"
)

func TestMemDeviceReadWriteRoundTrip(t *testing.T) {
	dev := New(4)
	want := bytes.Repeat([]byte{0x11}, sector.Size)
	if err := dev.WriteSector(2, want); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	got := make([]byte, sector.Size)
	if err := dev.ReadSector(2, got); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch")
	}
}

func TestMemDeviceOutOfRange(t *testing.T) {
	dev := New(2)
	buf := make([]byte, sector.Size)
	if err := dev.ReadSector(5, buf); err == nil {
		t.Fatalf("expected error reading out-of-range sector")
	}
	if err := dev.WriteSector(5, buf); err == nil {
		t.Fatalf("expected error writing out-of-range sector")
	}
}

func TestMemDeviceSizeInSectors(t *testing.T) {
	dev := New(7)
	n, err := dev.SizeInSectors()
	if err != nil {
		t.Fatalf("SizeInSectors: %v", err)
	}
	if n != 7 {
		t.Fatalf("SizeInSectors() = %d, want 7", n)
	}
}
