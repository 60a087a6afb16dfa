package hfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDentryEncodeDecodeRoundTrip(t *testing.T) {
	reclen, err := ReclenFor("hello.txt")
	require.NoError(t, err)

	d := Dentry{Ino: 7, Reclen: reclen, NameLen: uint8(len("hello.txt") + 1), FileType: FileTypeRegular, Name: "hello.txt"}
	buf := make([]byte, BSize)
	encodeDentry(buf, 0, d)

	got, err := decodeDentry(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestDentryEndSentinel(t *testing.T) {
	buf := make([]byte, BSize)
	d, err := decodeDentry(buf, 0)
	require.NoError(t, err)
	assert.True(t, d.IsEnd())
	assert.False(t, d.IsHole())
}

func TestDentryHoleDetection(t *testing.T) {
	d := Dentry{Ino: 0, Reclen: 32}
	assert.True(t, d.IsHole())
	assert.False(t, d.IsEnd())
}

func TestReclenForRejectsOversizedName(t *testing.T) {
	name := make([]byte, MaxNameLen+1)
	for i := range name {
		name[i] = 'a'
	}
	_, err := ReclenFor(string(name))
	assert.Error(t, err)
}

func TestReclenForRejectsEmptyName(t *testing.T) {
	_, err := ReclenFor("")
	assert.Error(t, err)
}

func TestDentryCursorWalksMultipleRecords(t *testing.T) {
	buf := make([]byte, BSize)

	r1, err := ReclenFor("a")
	require.NoError(t, err)
	encodeDentry(buf, 0, Dentry{Ino: 1, Reclen: r1, NameLen: 2, FileType: FileTypeRegular, Name: "a"})

	r2, err := ReclenFor("bb")
	require.NoError(t, err)
	encodeDentry(buf, int(r1), Dentry{Ino: 2, Reclen: r2, NameLen: 3, FileType: FileTypeDirectory, Name: "bb"})

	cur := newDentryCursor(buf)
	d1, off1, ok, err := cur.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, off1)
	assert.Equal(t, "a", d1.Name)

	d2, off2, ok, err := cur.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int(r1), off2)
	assert.Equal(t, "bb", d2.Name)

	_, _, ok, err = cur.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}
