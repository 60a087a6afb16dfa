package hfs

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/hobbitfs/hfs/hfserr"
)

// NBlocks is the number of direct block slots an inode's data union holds.
// There is no indirection, so this also bounds the maximum regular file
// size.
const NBlocks = 15

// DataUnionSize is the fixed byte size of the inode's data union: NBlocks
// 4-byte block numbers, reinterpreted depending on (Type, Flags).
const DataUnionSize = NBlocks * 4

// MaxFileSize is the largest a regular file's contents can grow to.
const MaxFileSize = NBlocks * BSize

// SymlinkInlineCap is how many target-path bytes (including the terminating
// NUL) fit directly in the data union for an inline symlink.
const SymlinkInlineCap = DataUnionSize

// RawInode is the fixed-size, on-image inode record. encoding/binary
// writes/reads its fields in declaration order with their natural sizes,
// which is what gives this struct a stable wire layout regardless of host
// alignment.
type RawInode struct {
	Nlink    uint32
	Size     uint32
	Type     uint8
	Flags    uint16
	_        uint8 // pad to keep Data 4-byte aligned within the record
	Data     [DataUnionSize]byte
	CTime    uint32
	ATime    uint32
	MTime    uint32
}

// RawInodeSize is the on-image size of one inode record, used to compute
// the inode table's block footprint during Format.
const RawInodeSize = 4 + 4 + 1 + 2 + 1 + DataUnionSize + 4 + 4 + 4

// dirhashRec is the data-union interpretation for a single-block,
// dirhash-bound directory.
type dirhashRec struct {
	Block  Block
	Seqno  uint32
	TableID uint16
}

// inlineDirRec is the data-union interpretation for an inline directory:
// the parent inum plus the inline dentry region.
type inlineDirRec struct {
	ParentIno uint32
	// Region is the remaining DataUnionSize-4 bytes, the concatenation of
	// inline dentry records.
}

const inlineDirRegionSize = DataUnionSize - 4 // minus ParentIno

// Inode is the in-memory, already-decoded form of a RawInode: a proper sum
// type over the data union, discriminated by (Type, Flags) at decode time
// rather than raw memory aliasing.
type Inode struct {
	Ino   uint32
	Nlink uint32
	Size  uint32
	Type  InodeType
	Flags uint16
	CTime time.Time
	ATime time.Time
	MTime time.Time

	// Blocks is populated for TypeRegular, for block-form directories, and
	// for out-of-line symlinks (Blocks[0]); it is unused otherwise.
	Blocks [NBlocks]Block

	// ParentIno is populated for inline directories only (FlagInline set).
	ParentIno uint32
	// InlineRegion holds the raw inline dentry bytes for inline
	// directories.
	InlineRegion [inlineDirRegionSize]byte

	// Dirhash is populated for single-block, dirhash-bound directories
	// (FlagDirhash set).
	Dirhash dirhashRec

	// SymlinkTarget is populated for TypeSymlink when FlagInline is set;
	// otherwise the target lives in Blocks[0].
	SymlinkTarget string
}

func timeNow() time.Time {
	return time.Now().UTC()
}

func secondsToTime(s uint32) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(int64(s), 0).UTC()
}

func timeToSeconds(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}
	return uint32(t.Unix())
}

// DecodeInode converts a RawInode into its in-memory sum type, dispatching
// the data union on (Type, Flags&FlagInline, Flags&FlagDirhash).
func DecodeInode(ino uint32, raw RawInode) Inode {
	n := Inode{
		Ino:   ino,
		Nlink: raw.Nlink,
		Size:  raw.Size,
		Type:  InodeType(raw.Type),
		Flags: raw.Flags,
		CTime: secondsToTime(raw.CTime),
		ATime: secondsToTime(raw.ATime),
		MTime: secondsToTime(raw.MTime),
	}

	switch {
	case n.Type == TypeSymlink && raw.Flags&FlagInline != 0:
		end := bytes.IndexByte(raw.Data[:], 0)
		if end < 0 {
			end = len(raw.Data)
		}
		n.SymlinkTarget = string(raw.Data[:end])

	case n.Type == TypeDirectory && raw.Flags&FlagInline != 0:
		n.ParentIno = binary.LittleEndian.Uint32(raw.Data[0:4])
		copy(n.InlineRegion[:], raw.Data[4:])

	case n.Type == TypeDirectory && raw.Flags&FlagDirhash != 0:
		n.Dirhash.Block = Block(binary.LittleEndian.Uint32(raw.Data[0:4]))
		n.Dirhash.Seqno = binary.LittleEndian.Uint32(raw.Data[4:8])
		n.Dirhash.TableID = binary.LittleEndian.Uint16(raw.Data[8:10])
		// A dirhash-bound directory is still single-block; mirror the
		// block number into Blocks[0] so the generic direct-block walkers
		// in dirops.go/resolve.go don't need a special case.
		n.Blocks[0] = n.Dirhash.Block

	default:
		// Regular file, or a directory/symlink with neither flag set: plain
		// direct-block array.
		for i := 0; i < NBlocks; i++ {
			n.Blocks[i] = Block(binary.LittleEndian.Uint32(raw.Data[i*4 : i*4+4]))
		}
	}
	return n
}

// EncodeInode is the inverse of DecodeInode, producing the on-image record
// for writing back to the inode table.
func EncodeInode(n Inode) RawInode {
	raw := RawInode{
		Nlink: n.Nlink,
		Size:  n.Size,
		Type:  uint8(n.Type),
		Flags: n.Flags,
		CTime: timeToSeconds(n.CTime),
		ATime: timeToSeconds(n.ATime),
		MTime: timeToSeconds(n.MTime),
	}

	switch {
	case n.Type == TypeSymlink && n.Flags&FlagInline != 0:
		copy(raw.Data[:], n.SymlinkTarget)

	case n.Type == TypeDirectory && n.Flags&FlagInline != 0:
		binary.LittleEndian.PutUint32(raw.Data[0:4], n.ParentIno)
		copy(raw.Data[4:], n.InlineRegion[:])

	case n.Type == TypeDirectory && n.Flags&FlagDirhash != 0:
		binary.LittleEndian.PutUint32(raw.Data[0:4], uint32(n.Dirhash.Block))
		binary.LittleEndian.PutUint32(raw.Data[4:8], n.Dirhash.Seqno)
		binary.LittleEndian.PutUint16(raw.Data[8:10], n.Dirhash.TableID)

	default:
		for i := 0; i < NBlocks; i++ {
			binary.LittleEndian.PutUint32(raw.Data[i*4:i*4+4], uint32(n.Blocks[i]))
		}
	}
	return raw
}

// ToStat converts a decoded Inode into the portable Stat record returned by
// the syscall surface. Blocks counts non-zero direct slots, which for
// an inline directory is always 0 and for a dirhash-bound directory is
// always 1.
func (n Inode) ToStat() Stat {
	blocks := uint32(0)
	if n.Flags&FlagInline == 0 {
		for _, b := range n.Blocks {
			if b != 0 {
				blocks++
			}
		}
	}
	return Stat{
		Ino:    n.Ino,
		Size:   n.Size,
		Blocks: blocks,
		Nlink:  n.Nlink,
		Type:   n.Type,
		ATime:  n.ATime,
		MTime:  n.MTime,
		CTime:  n.CTime,
	}
}

// NewDirectory returns a freshly allocated, empty inline directory inode
// bound to ino with the given parent; new directories start inline by
// default. nlink is pre-incremented by two for the implicit `.`/`..` that
// an inline directory never materializes as real dentries.
func NewDirectory(ino, parentIno uint32, now time.Time) Inode {
	return Inode{
		Ino:       ino,
		Nlink:     2,
		Type:      TypeDirectory,
		Flags:     FlagInline,
		ParentIno: parentIno,
		CTime:     now,
		ATime:     now,
		MTime:     now,
	}
}

// NewRegularFile returns a freshly allocated, empty regular-file inode.
func NewRegularFile(ino uint32, now time.Time) Inode {
	return Inode{
		Ino:   ino,
		Nlink: 1,
		Type:  TypeRegular,
		CTime: now,
		ATime: now,
		MTime: now,
	}
}

// NewSymlink returns a freshly allocated symlink inode with target already
// placed either inline or (if too long to fit) left for the caller to
// allocate a block for.
func NewSymlink(ino uint32, target string, now time.Time) (Inode, error) {
	if len(target)+1 > SymlinkInlineCap && len(target) > BSize {
		return Inode{}, hfserr.ErrInvalidArg.WithMessage("symlink target too long")
	}
	n := Inode{
		Ino:   ino,
		Nlink: 1,
		Type:  TypeSymlink,
		CTime: now,
		ATime: now,
		MTime: now,
		Size:  uint32(len(target)),
	}
	if len(target)+1 <= SymlinkInlineCap {
		n.Flags |= FlagInline
		n.SymlinkTarget = target
	}
	return n, nil
}
