package willianfs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/williancsmelo/willianfs/sector/sectortest"
	"github.com/williancsmelo/willianfs/vfs"
)

func formatTestVolume(t *testing.T) *FileSystem {
	t.Helper()
	dev := sectortest.New(2048)
	fs, err := Format(dev, FormatOptions{BlockSize: 512})
	require.NoError(t, err)
	return fs
}

func TestFormatThenMountPreservesGeometry(t *testing.T) {
	dev := sectortest.New(2048)
	fs, err := Format(dev, FormatOptions{BlockSize: 512})
	require.NoError(t, err)
	want := fs.NumBlocks()

	mounted, err := Mount(dev, nil)
	require.NoError(t, err)
	require.Equal(t, want, mounted.NumBlocks())
	require.True(t, mounted.IsIdle())
}

func TestFormatRejectsBadBlockSize(t *testing.T) {
	dev := sectortest.New(2048)
	_, err := Format(dev, FormatOptions{BlockSize: 0})
	require.Error(t, err)
	_, err = Format(dev, FormatOptions{BlockSize: 300})
	require.Error(t, err)
}

func TestOpenCreatesFileOnMiss(t *testing.T) {
	fs := formatTestVolume(t)
	fd, err := fs.Open("/hello.txt")
	require.NoError(t, err)
	require.False(t, fs.IsIdle())

	stat, err := fs.Lookup("/hello.txt")
	require.NoError(t, err)
	require.NotZero(t, stat.Inumber)

	require.NoError(t, fs.Close(fd))
	require.True(t, fs.IsIdle())
}

func TestOpenTwiceReusesDescriptor(t *testing.T) {
	fs := formatTestVolume(t)
	a, err := fs.Open("/hello.txt")
	require.NoError(t, err)
	b, err := fs.Open("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	fs := formatTestVolume(t)
	fd, err := fs.Open("/data.bin")
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("abcd"), 400) // spans multiple blocks at 512B
	n, err := fs.Write(fd, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	require.NoError(t, fs.Close(fd))

	fd2, err := fs.Open("/data.bin")
	require.NoError(t, err)
	got := make([]byte, len(payload))
	n, err = fs.Read(fd2, got)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, got)
}

func TestWriteOverwriteDoesNotDoubleCountFileSize(t *testing.T) {
	fs := formatTestVolume(t)
	fd, err := fs.Open("/count.bin")
	require.NoError(t, err)

	_, err = fs.Write(fd, []byte("0123456789"))
	require.NoError(t, err)

	// rewind by reopening a fresh descriptor is not supported; instead close
	// and reopen, then overwrite the first few bytes in place.
	require.NoError(t, fs.Close(fd))
	fd2, err := fs.Open("/count.bin")
	require.NoError(t, err)
	n, err := fs.Write(fd2, []byte("AB"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, fs.Close(fd2))

	stat, err := fs.Lookup("/count.bin")
	require.NoError(t, err)
	// file_size must be max(previous size, cursor+written), never
	// previous size + written (10 + 2 = 12 would be the original bug).
	require.Equal(t, uint32(10), stat.FileSize)

	fd3, err := fs.Open("/count.bin")
	require.NoError(t, err)
	got := make([]byte, 10)
	n, err = fs.Read(fd3, got)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, "AB23456789", string(got))
}

func TestReadPastEndOfFileReturnsZero(t *testing.T) {
	fs := formatTestVolume(t)
	fd, err := fs.Open("/empty.bin")
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := fs.Read(fd, buf)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMkdirAndReadDir(t *testing.T) {
	fs := formatTestVolume(t)
	require.NoError(t, fs.Mkdir("/sub"))

	fd, err := fs.OpenDir("/sub")
	require.NoError(t, err)

	names := map[string]bool{}
	for {
		entry, ok, err := fs.ReadDir(fd)
		require.NoError(t, err)
		if !ok {
			break
		}
		names[entry.Name] = true
	}
	require.True(t, names["."])
	require.True(t, names[".."])
	require.NoError(t, fs.CloseDir(fd))
}

func TestMkdirRejectsDuplicate(t *testing.T) {
	fs := formatTestVolume(t)
	require.NoError(t, fs.Mkdir("/sub"))
	require.Error(t, fs.Mkdir("/sub"))
}

func TestUnlinkRemovesEntryAndFreesInode(t *testing.T) {
	fs := formatTestVolume(t)
	fd, err := fs.Open("/gone.txt")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("data"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	require.NoError(t, fs.Unlink("/gone.txt"))
	_, err = fs.Lookup("/gone.txt")
	require.Error(t, err)
}

func TestUnlinkRefusesOpenFile(t *testing.T) {
	fs := formatTestVolume(t)
	fd, err := fs.Open("/busy.txt")
	require.NoError(t, err)
	defer fs.Close(fd)

	require.Error(t, fs.Unlink("/busy.txt"))
}

func TestLinkCreatesSecondName(t *testing.T) {
	fs := formatTestVolume(t)
	fd, err := fs.Open("/orig.txt")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("shared"))
	require.NoError(t, err)

	require.NoError(t, fs.Link(fd, "/alias.txt"))

	stat, err := fs.Lookup("/alias.txt")
	require.NoError(t, err)
	require.Equal(t, uint32(2), stat.RefCount)
}

func TestBindDispatchesThroughSentinelInts(t *testing.T) {
	fs := formatTestVolume(t)
	registry := vfs.NewRegistry()
	slot, err := fs.Bind(registry, 1)
	require.NoError(t, err)

	info, err := registry.At(slot)
	require.NoError(t, err)
	require.Equal(t, FSName, info.FSName)

	fd := info.Open("/via-vfs.txt")
	require.GreaterOrEqual(t, fd, 0)

	payload := []byte("hi")
	n := info.Write(uint32(fd), payload, uint32(len(payload)))
	require.Equal(t, len(payload), n)

	require.Equal(t, 0, info.Close(uint32(fd)))

	require.Equal(t, -1, info.Open(""))
}
