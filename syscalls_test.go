package hfs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatRejectsExistingPath(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd, err := fs.Creat("/a.txt")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	_, err = fs.Creat("/a.txt")
	assert.Error(t, err)
}

func TestMkdirAndReadDirRootListing(t *testing.T) {
	fs := newFormattedFS(t, 64)
	require.NoError(t, fs.Mkdir("/sub"))

	entries, err := fs.ReadDir("/")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, ".")
	assert.Contains(t, names, "..")
	assert.Contains(t, names, "sub")
}

func TestRmdirRejectsNonEmptyDirectory(t *testing.T) {
	fs := newFormattedFS(t, 64)
	require.NoError(t, fs.Mkdir("/sub"))
	fd, err := fs.Creat("/sub/f.txt")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	err = fs.Rmdir("/sub")
	assert.Error(t, err)
}

func TestRmdirRemovesEmptyDirectory(t *testing.T) {
	fs := newFormattedFS(t, 64)
	require.NoError(t, fs.Mkdir("/sub"))
	require.NoError(t, fs.Rmdir("/sub"))

	_, err := fs.Stat("/sub")
	assert.Error(t, err)
}

func TestLinkIncrementsNlink(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd, err := fs.Creat("/orig.txt")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	require.NoError(t, fs.Link("/orig.txt", "/alias.txt"))

	st, err := fs.Stat("/orig.txt")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), st.Nlink)

	st2, err := fs.Stat("/alias.txt")
	require.NoError(t, err)
	assert.Equal(t, st.Ino, st2.Ino)
}

func TestLinkRejectsDirectory(t *testing.T) {
	fs := newFormattedFS(t, 64)
	require.NoError(t, fs.Mkdir("/sub"))
	err := fs.Link("/sub", "/sub2")
	assert.Error(t, err)
}

func TestUnlinkFreesInodeOnLastLink(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd, err := fs.Creat("/u.txt")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	freeBefore := fs.FSStat().InodesFree
	require.NoError(t, fs.Unlink("/u.txt"))
	freeAfter := fs.FSStat().InodesFree

	assert.Equal(t, freeBefore+1, freeAfter)
	_, err = fs.Stat("/u.txt")
	assert.Error(t, err)
}

func TestUnlinkKeepsInodeAliveWhileLinksRemain(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd, err := fs.Creat("/u.txt")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))
	require.NoError(t, fs.Link("/u.txt", "/v.txt"))

	require.NoError(t, fs.Unlink("/u.txt"))
	st, err := fs.Stat("/v.txt")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), st.Nlink)
}

func TestRenameMovesFileAcrossDirectories(t *testing.T) {
	fs := newFormattedFS(t, 64)
	require.NoError(t, fs.Mkdir("/src"))
	require.NoError(t, fs.Mkdir("/dst"))
	fd, err := fs.Creat("/src/f.txt")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	require.NoError(t, fs.Rename("/src/f.txt", "/dst/f.txt"))

	_, err = fs.Stat("/src/f.txt")
	assert.Error(t, err)
	st, err := fs.Stat("/dst/f.txt")
	require.NoError(t, err)
	assert.True(t, st.IsRegular())
}

func TestRenameOverwritesExistingTarget(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd1, err := fs.Creat("/a.txt")
	require.NoError(t, err)
	_, err = fs.Write(fd1, []byte("AAA"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd1))

	fd2, err := fs.Creat("/b.txt")
	require.NoError(t, err)
	_, err = fs.Write(fd2, []byte("B"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd2))

	require.NoError(t, fs.Rename("/a.txt", "/b.txt"))

	st, err := fs.Stat("/b.txt")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), st.Size)
	_, err = fs.Stat("/a.txt")
	assert.Error(t, err)
}

func TestRenameRejectsFileOverDirectory(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd, err := fs.Creat("/a.txt")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))
	require.NoError(t, fs.Mkdir("/d"))

	err = fs.Rename("/a.txt", "/d")
	assert.Error(t, err)
}

func TestRenameUpdatesMovedDirectoryParent(t *testing.T) {
	fs := newFormattedFS(t, 64)
	require.NoError(t, fs.Mkdir("/src"))
	require.NoError(t, fs.Mkdir("/dst"))
	require.NoError(t, fs.Mkdir("/src/child"))

	require.NoError(t, fs.Rename("/src/child", "/dst/child"))

	d, _, ok, err := fs.resolve("/dst/child/..")
	require.NoError(t, err)
	require.True(t, ok)

	dstIno, err := fs.resolveDir("/dst")
	require.NoError(t, err)
	assert.Equal(t, dstIno, d.Ino)
}

func TestSymlinkInlineAndReadlink(t *testing.T) {
	fs := newFormattedFS(t, 64)
	require.NoError(t, fs.Symlink("/a.txt", "/link"))

	target, err := fs.Readlink("/link")
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", target)

	st, err := fs.Stat("/link")
	require.NoError(t, err)
	assert.True(t, st.IsSymlink())
}

func TestSymlinkOutOfLineForLongTarget(t *testing.T) {
	fs := newFormattedFS(t, 64)
	target := make([]byte, 200)
	for i := range target {
		target[i] = byte('a' + i%26)
	}
	require.NoError(t, fs.Symlink(string(target), "/longlink"))

	got, err := fs.Readlink("/longlink")
	require.NoError(t, err)
	assert.Equal(t, string(target), got)
}

func TestInlineDirectoryPromotesToBlockFormUnderLoad(t *testing.T) {
	fs := newFormattedFS(t, 64)
	require.NoError(t, fs.Mkdir("/many"))

	for i := 0; i < 40; i++ {
		name := fmt.Sprintf("/many/file-%02d.txt", i)
		fd, err := fs.Creat(name)
		require.NoError(t, err)
		require.NoError(t, fs.Close(fd))
	}

	entries, err := fs.ReadDir("/many")
	require.NoError(t, err)

	count := 0
	for _, e := range entries {
		if e.Name != "." && e.Name != ".." {
			count++
		}
	}
	assert.Equal(t, 40, count)
}

func TestDirhashOverflowClearsFlagAndDemotesTable(t *testing.T) {
	fs := newFormattedFS(t, 256)
	require.NoError(t, fs.Mkdir("/packed"))

	const n = 90
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("/packed/%02d", i)
		fd, err := fs.Creat(name)
		require.NoError(t, err)
		require.NoError(t, fs.Close(fd))
	}

	dirIno, err := fs.resolveDir("/packed")
	require.NoError(t, err)
	dir := fs.inode(dirIno)

	require.Zero(t, dir.Flags&FlagDirhash, "load-factor overflow must clear FlagDirhash")

	overflowed := fs.dirhash.tables[dir.Dirhash.TableID]
	assert.Equal(t, fs.dirhash.tail, overflowed,
		"an abandoned, permanently-full table must be demoted to the LRU tail, not left at the head")

	entries, err := fs.ReadDir("/packed")
	require.NoError(t, err)
	count := 0
	for _, e := range entries {
		if e.Name != "." && e.Name != ".." {
			count++
		}
	}
	assert.Equal(t, n, count, "entries created after the overflow must still be reachable via block scan")
}

func TestRmdirRejectsDotAndDotDot(t *testing.T) {
	fs := newFormattedFS(t, 64)
	require.NoError(t, fs.Mkdir("/sub"))
	require.NoError(t, fs.Chdir("/sub"))

	err := fs.Rmdir(".")
	assert.Error(t, err)
}
