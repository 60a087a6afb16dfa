package hfs

// InodeType identifies what kind of object an inode represents.
type InodeType uint8

const (
	TypeUnused InodeType = iota
	TypeRegular
	TypeDirectory
	TypeDevice
	TypeSymlink
)

// Inode flag bits, stored in Inode.Flags.
const (
	// FlagInline marks a directory whose dentries live in the inode's data
	// union rather than in an allocated data block.
	FlagInline uint16 = 1 << iota
	// FlagDirhash marks a single-block directory currently bound to a
	// dirhash table.
	FlagDirhash
)

// Dentry file-type tags, stored alongside each directory entry so callers
// don't need to dereference the target inode just to tell a file from a
// directory during a listing.
const (
	FileTypeUnknown uint8 = iota
	FileTypeRegular
	FileTypeDirectory
	FileTypeDevice
	FileTypeSymlink
)

// OpenFlags controls how Open() behaves, loosely mirroring O_* flags from
// POSIX open(2).
type OpenFlags int

const (
	OpenRead OpenFlags = 1 << iota
	OpenWrite
	OpenCreate
	OpenTruncate
	OpenAppend
)

func (f OpenFlags) readable() bool { return f&OpenRead != 0 }
func (f OpenFlags) writable() bool { return f&OpenWrite != 0 }
