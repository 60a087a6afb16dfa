package hfs

import (
	"encoding/binary"

	"github.com/hobbitfs/hfs/hfserr"
)

// MaxNameLen is the longest name a dentry can hold, not counting the
// terminating NUL.
const MaxNameLen = 255

// dentryHeaderSize is the fixed portion of a dentry record preceding the
// name bytes: inum(4) + reclen(2) + namelen(1) + file_type(1).
const dentryHeaderSize = 8

// Dentry is one directory-entry record. Reclen governs both how much
// space a live record occupies and, for a hole, how large a replacement
// record may reuse it for.
type Dentry struct {
	Ino      uint32
	Reclen   uint16
	NameLen  uint8
	FileType uint8
	Name     string
}

// ReclenFor computes the on-disk record length a name requires, including
// the header and the name's trailing NUL.
func ReclenFor(name string) (uint16, error) {
	if len(name) == 0 || len(name) > MaxNameLen {
		return 0, hfserr.ErrInvalidName.WithMessage("name length out of range")
	}
	return uint16(dentryHeaderSize + len(name) + 1), nil
}

// IsHole reports whether this is a live-record slot whose entry was
// unlinked (Ino == 0 but Reclen > 0 so the slot can be reused).
func (d Dentry) IsHole() bool {
	return d.Reclen != 0 && d.Ino == 0
}

// IsEnd reports whether this is the end-of-list sentinel within a region.
func (d Dentry) IsEnd() bool {
	return d.Reclen == 0
}

// decodeDentry reads one dentry record starting at offset off within buf.
// Returns the parsed record, or an error if the record is malformed; the
// next record starts at off+Reclen.
func decodeDentry(buf []byte, off int) (Dentry, error) {
	if off+dentryHeaderSize > len(buf) {
		return Dentry{}, hfserr.ErrInvalidArg.WithMessage("dentry header runs past region end")
	}
	ino := binary.LittleEndian.Uint32(buf[off : off+4])
	reclen := binary.LittleEndian.Uint16(buf[off+4 : off+6])
	namelen := buf[off+6]
	fileType := buf[off+7]

	if reclen == 0 {
		return Dentry{Ino: ino, Reclen: 0, NameLen: namelen, FileType: fileType}, nil
	}
	if off+int(reclen) > len(buf) {
		return Dentry{}, hfserr.ErrInvalidArg.WithMessage("dentry record runs past region end")
	}
	nameEnd := off + dentryHeaderSize + int(namelen)
	if namelen > 0 {
		nameEnd-- // namelen includes the trailing NUL; trim it from the Go string
	}
	name := string(buf[off+dentryHeaderSize : nameEnd])
	return Dentry{Ino: ino, Reclen: reclen, NameLen: namelen, FileType: fileType, Name: name}, nil
}

// encodeDentry writes d's wire form into buf at offset off. buf must have
// at least dentryHeaderSize+len(d.Name)+1 bytes available from off, or
// d.Reclen bytes if d.Reclen is larger (e.g. reusing a hole).
func encodeDentry(buf []byte, off int, d Dentry) {
	binary.LittleEndian.PutUint32(buf[off:off+4], d.Ino)
	binary.LittleEndian.PutUint16(buf[off+4:off+6], d.Reclen)
	buf[off+6] = d.NameLen
	buf[off+7] = d.FileType
	copy(buf[off+dentryHeaderSize:], d.Name)
	if int(d.NameLen) > 0 {
		buf[off+dentryHeaderSize+len(d.Name)] = 0
	}
}

// dentryCursor walks a byte region's dentry records by reclen, stopping at
// the end-of-list sentinel or the region boundary — the explicit,
// target-language replacement for the source's for_each_*_dent macros.
type dentryCursor struct {
	buf []byte
	off int
}

func newDentryCursor(buf []byte) *dentryCursor {
	return &dentryCursor{buf: buf}
}

// Next returns the dentry at the cursor's current position and advances
// past it. ok is false once the cursor has reached the end sentinel or run
// off the end of the region.
func (c *dentryCursor) Next() (d Dentry, off int, ok bool, err error) {
	if c.off+dentryHeaderSize > len(c.buf) {
		return Dentry{}, 0, false, nil
	}
	d, err = decodeDentry(c.buf, c.off)
	if err != nil {
		return Dentry{}, 0, false, err
	}
	if d.IsEnd() {
		return Dentry{}, 0, false, nil
	}
	off = c.off
	c.off += int(d.Reclen)
	return d, off, true, nil
}
