package bitmap

import (
	"testing"

	"github.com/williancsmelo/willianfs/blockio"
	"github.com/williancsmelo/willianfs/sector/sectortest"
)

func newIO(numSectors uint32, blockSize uint32) *blockio.IO {
	dev := sectortest.New(numSectors)
	return &blockio.IO{Device: dev, BlockSize: blockSize}
}

func TestFindFreeBlocksIsAllOrNothing(t *testing.T) {
	io := newIO(8, 512)
	bm := New(10, 0, io)

	if err := bm.SetBlocksStatus([]uint32{0, 1, 2, 3, 4, 5, 6, 7, 8}, true); err != nil {
		t.Fatalf("SetBlocksStatus: %v", err)
	}
	// only block 9 remains free; asking for 2 must fail and leave state alone.
	if _, err := bm.FindFreeBlocks(2); err == nil {
		t.Fatalf("expected error when not enough free blocks")
	}
	free, err := bm.FindFreeBlocks(1)
	if err != nil {
		t.Fatalf("FindFreeBlocks(1): %v", err)
	}
	if len(free) != 1 || free[0] != 9 {
		t.Fatalf("expected [9], got %v", free)
	}
}

func TestFindFreeBlocksDoesNotMarkOccupied(t *testing.T) {
	io := newIO(8, 512)
	bm := New(4, 0, io)
	free, err := bm.FindFreeBlocks(2)
	if err != nil {
		t.Fatalf("FindFreeBlocks: %v", err)
	}
	if bm.IsOccupied(free[0]) || bm.IsOccupied(free[1]) {
		t.Fatalf("FindFreeBlocks must not mark blocks occupied")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	io := newIO(8, 512)
	bm := New(20, 0, io)
	if err := bm.SetBlocksStatus([]uint32{0, 5, 19}, true); err != nil {
		t.Fatalf("SetBlocksStatus: %v", err)
	}
	if err := bm.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(20, 0, io)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, b := range []uint32{0, 5, 19} {
		if !loaded.IsOccupied(b) {
			t.Fatalf("expected block %d occupied after reload", b)
		}
	}
	for _, b := range []uint32{1, 2, 3, 4, 6, 18} {
		if loaded.IsOccupied(b) {
			t.Fatalf("expected block %d free after reload", b)
		}
	}
}

func TestIsOccupiedOutOfRange(t *testing.T) {
	io := newIO(8, 512)
	bm := New(4, 0, io)
	if bm.IsOccupied(100) {
		t.Fatalf("out-of-range block should report unoccupied")
	}
}

func TestSetBlocksStatusRejectsOutOfRange(t *testing.T) {
	io := newIO(8, 512)
	bm := New(4, 0, io)
	if err := bm.SetBlocksStatus([]uint32{4}, true); err == nil {
		t.Fatalf("expected error for out-of-range block")
	}
}
