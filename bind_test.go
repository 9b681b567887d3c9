package willianfs

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/williancsmelo/willianfs/vfs"
)

func TestBindLinkUnlinkScopedToDirectory(t *testing.T) {
	fs := formatTestVolume(t)
	require.NoError(t, fs.Mkdir("/sub"))

	// a root-level file of the same name must be left alone by anything
	// scoped to /sub.
	rootFd, err := fs.Open("/file.txt")
	require.NoError(t, err)
	require.NoError(t, fs.Close(rootFd))

	origFd, err := fs.Open("/sub/orig.txt")
	require.NoError(t, err)
	_, err = fs.Write(origFd, []byte("shared"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(origFd))

	origStat, err := fs.Lookup("/sub/orig.txt")
	require.NoError(t, err)

	registry := vfs.NewRegistry()
	slot, err := fs.Bind(registry, 1)
	require.NoError(t, err)
	info, err := registry.At(slot)
	require.NoError(t, err)

	dirFd := info.OpenDir("/sub")
	require.GreaterOrEqual(t, dirFd, 0)

	// linking "file.txt" inside /sub must not collide with or touch the
	// root's unrelated /file.txt.
	require.Equal(t, 0, info.Link(uint32(dirFd), "file.txt", origStat.Inumber))

	aliasStat, err := fs.Lookup("/sub/file.txt")
	require.NoError(t, err)
	require.Equal(t, origStat.Inumber, aliasStat.Inumber)
	require.Equal(t, uint32(2), aliasStat.RefCount)

	rootStat, err := fs.Lookup("/file.txt")
	require.NoError(t, err)
	require.NotEqual(t, origStat.Inumber, rootStat.Inumber)

	// unlinking "file.txt" through the /sub descriptor must only remove the
	// entry inside /sub, not the root's /file.txt.
	require.Equal(t, 0, info.Unlink(uint32(dirFd), "file.txt"))

	_, err = fs.Lookup("/sub/file.txt")
	require.Error(t, err)
	_, err = fs.Lookup("/file.txt")
	require.NoError(t, err)

	afterStat, err := fs.Lookup("/sub/orig.txt")
	require.NoError(t, err)
	require.Equal(t, uint32(1), afterStat.RefCount)

	require.Equal(t, 0, info.CloseDir(uint32(dirFd)))
}
