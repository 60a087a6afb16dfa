package hfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTripWithinOneBlock(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd, err := fs.Creat("/a.txt")
	require.NoError(t, err)

	n, err := fs.Write(fd, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	_, err = fs.Lseek(fd, 0)
	require.NoError(t, err)

	buf := make([]byte, 32)
	n, err = fs.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf[:n]))
}

func TestWriteSpansMultipleBlocks(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd, err := fs.Creat("/big.bin")
	require.NoError(t, err)

	data := make([]byte, BSize+100)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := fs.Write(fd, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	_, err = fs.Lseek(fd, 0)
	require.NoError(t, err)
	got := make([]byte, len(data))
	n, err = fs.Read(fd, got)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, got)
}

func TestReadStopsShortAtEndOfFile(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd, err := fs.Creat("/h.txt")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("abc"))
	require.NoError(t, err)

	_, err = fs.Lseek(fd, 0)
	require.NoError(t, err)
	buf := make([]byte, 100)
	n, err := fs.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAppendModeIgnoresSeekedOffset(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd, err := fs.Creat("/app.txt")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("first"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	fd, err = fs.Open("/app.txt", OpenWrite|OpenAppend)
	require.NoError(t, err)
	_, err = fs.Lseek(fd, 0)
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("second"))
	require.NoError(t, err)

	st, err := fs.Stat("/app.txt")
	require.NoError(t, err)
	assert.Equal(t, uint32(len("firstsecond")), st.Size)
}

func TestLseekRejectsOffsetPastEnd(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd, err := fs.Creat("/s.txt")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("abc"))
	require.NoError(t, err)

	_, err = fs.Lseek(fd, 100)
	assert.Error(t, err)
}

func TestWriteRejectsReadOnlyDescriptor(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd, err := fs.Creat("/ro.txt")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	fd, err = fs.Open("/ro.txt", OpenRead)
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("x"))
	assert.Error(t, err)
}

func TestCloseInvalidatesDescriptor(t *testing.T) {
	fs := newFormattedFS(t, 64)
	fd, err := fs.Creat("/c.txt")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	_, err = fs.Read(fd, make([]byte, 1))
	assert.Error(t, err)
}

func TestAllocFDExhaustsOpenFileTable(t *testing.T) {
	fs := newFormattedFS(t, 256)
	for i := 0; i < MaxOpenFiles; i++ {
		_, err := fs.Creat(pathFor(i))
		require.NoError(t, err)
	}
	_, err := fs.Creat("/one-too-many.txt")
	assert.Error(t, err)
}

func pathFor(i int) string {
	return "/f" + string(rune('a'+i%26)) + string(rune('0'+i/26)) + ".txt"
}
