package hfs

import "time"

// Stat is the portable form of the on-image inode metadata returned by
// Filesystem.Stat.
type Stat struct {
	Ino    uint32
	Size   uint32
	Blocks uint32
	Nlink  uint32
	Type   InodeType
	ATime  time.Time
	MTime  time.Time
	CTime  time.Time
}

func (s Stat) IsDir() bool     { return s.Type == TypeDirectory }
func (s Stat) IsRegular() bool { return s.Type == TypeRegular }
func (s Stat) IsSymlink() bool { return s.Type == TypeSymlink }

// FSStat summarizes allocator occupancy for the mounted image.
type FSStat struct {
	BlockSize     uint32
	TotalBlocks   uint32
	BlocksFree    uint32
	TotalInodes   uint32
	InodesFree    uint32
	InlineInodes  uint32
	Directories   uint32
	Files         uint32
	CreatedAt     time.Time
	LastMountedAt time.Time
}

// DirEntry is one name yielded by Filesystem.ReadDir.
type DirEntry struct {
	Name string
	Ino  uint32
	Type uint8
}
