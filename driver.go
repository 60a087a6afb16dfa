package hfs

import (
	"encoding/binary"
	"io"
	"log"

	"github.com/hobbitfs/hfs/hfserr"
)

// MaxOpenFiles is the size of the fixed, process-wide open-file table.
const MaxOpenFiles = 32

// openFile is one slot of the open-file table: an inode number, a byte
// offset into the file, and the flags it was opened with.
type openFile struct {
	ino    uint32
	offset uint32
	flags  OpenFlags
}

// Filesystem is the single value that owns every piece of process-wide
// state: the image buffer, the superblock view, the inode table, the
// open-file table, cwd, and the dirhash pool. It is not safe for concurrent
// use; callers on a threaded runtime must wrap every call in an exclusive
// lock.
type Filesystem struct {
	img         *Image
	sb          Superblock
	inodeBitmap *Allocator
	dataBitmap  *Allocator
	inodes      []Inode
	dirhash     *DirhashPool
	openFiles   [MaxOpenFiles]*openFile
	cwd         uint32
	logger      *log.Logger
}

// FormatOptions configures Format. An empty FormatOptions selects the
// defaults.
type FormatOptions struct {
	Logger *log.Logger
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// Format lays down a fresh superblock, bitmaps, and inode table onto image,
// laying out the superblock, inode bitmap, inode table, data bitmap, and
// data region in that order, and allocates the root directory at RootIno.
// It does not mount the result; call Mount afterward.
func Format(image *Image, opts FormatOptions) error {
	geometry, err := ComputeGeometry(int64(image.TotalBlocks()) * BSize)
	if err != nil {
		return err
	}

	inodeBitmap := NewAllocator(geometry.InodeCount)
	dataBitmap := NewAllocator(geometry.DataBlocks)

	// inum 0 is permanently reserved and never allocated.
	inodeBitmap.Set(0, true)

	rootIdx, err := inodeBitmap.Allocate()
	if err != nil {
		return err
	}
	if rootIdx != RootIno {
		return hfserr.ErrAllocFail.WithMessage("root inode did not land at the expected index")
	}

	now := nowSeconds()
	inodes := make([]Inode, geometry.InodeCount)
	inodes[RootIno] = NewDirectory(RootIno, RootIno, secondsToTime(now))

	sb := Superblock{
		Size:             uint32(image.TotalBlocks()) * BSize,
		NInodes:          geometry.InodeCount,
		InodesUsed:       1,
		InlineInodes:     1,
		NDirectories:     1,
		NFiles:           0,
		DataStart:        Block(geometry.DataStart),
		NBlocks:          geometry.TotalBlocks,
		InodeBitmapStart: geometry.InodeBitmapStart,
		InodeStart:       geometry.InodeStart,
		BitmapStart:      geometry.BitmapStart,
		CreationTime:     now,
		LastMounted:      now,
		RootIno:          RootIno,
	}

	fs := &Filesystem{
		img:         image,
		sb:          sb,
		inodeBitmap: inodeBitmap,
		dataBitmap:  dataBitmap,
		inodes:      inodes,
		dirhash:     NewDirhashPool(),
	}
	return fs.flushAll()
}

// Mount loads an existing, already-formatted image. The on-image
// superblock is trusted, but its geometry is validated first.
func Mount(image *Image, opts FormatOptions) (*Filesystem, error) {
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}

	block0, err := image.ReadBlock(0)
	if err != nil {
		return nil, err
	}
	sb, err := DecodeSuperblock(block0)
	if err != nil {
		return nil, err
	}
	if err := ValidateGeometry(sb, uint32(image.TotalBlocks())); err != nil {
		return nil, hfserr.ErrInvalidArg.WrapError(err)
	}

	fs := &Filesystem{
		img:     image,
		sb:      sb,
		dirhash: NewDirhashPool(),
		cwd:     sb.RootIno,
		logger:  logger,
	}

	if err := fs.loadBitmapsAndInodes(); err != nil {
		return nil, err
	}

	fs.sb.LastMounted = nowSeconds()
	if err := fs.flushSuperblock(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *Filesystem) loadBitmapsAndInodes() error {
	inodeBitmapBytes := make([]byte, 0, int(fs.sb.InodeStart-fs.sb.InodeBitmapStart)*BSize)
	for b := fs.sb.InodeBitmapStart; b < fs.sb.InodeStart; b++ {
		blk, err := fs.img.ReadBlock(b)
		if err != nil {
			return err
		}
		inodeBitmapBytes = append(inodeBitmapBytes, blk...)
	}
	fs.inodeBitmap = LoadAllocator(inodeBitmapBytes, fs.sb.NInodes)

	dataBits := uint32(fs.sb.NBlocks) - uint32(fs.sb.DataStart)
	dataBitmapBytes := make([]byte, 0, int(fs.sb.DataStart-fs.sb.BitmapStart)*BSize)
	for b := fs.sb.BitmapStart; b < fs.sb.DataStart; b++ {
		blk, err := fs.img.ReadBlock(b)
		if err != nil {
			return err
		}
		dataBitmapBytes = append(dataBitmapBytes, blk...)
	}
	fs.dataBitmap = LoadAllocator(dataBitmapBytes, dataBits)

	inodesPerBlock := BSize / RawInodeSize
	fs.inodes = make([]Inode, fs.sb.NInodes)
	raw := make([]byte, RawInodeSize)
	block := fs.sb.InodeStart
	blockBuf, err := fs.img.ReadBlock(block)
	if err != nil {
		return err
	}
	posInBlock := 0
	for i := uint32(0); i < fs.sb.NInodes; i++ {
		if posInBlock >= inodesPerBlock {
			block++
			blockBuf, err = fs.img.ReadBlock(block)
			if err != nil {
				return err
			}
			posInBlock = 0
		}
		off := posInBlock * RawInodeSize
		copy(raw, blockBuf[off:off+RawInodeSize])
		var r RawInode
		rdr := newRawInodeReader(raw)
		if err := rdr.decode(&r); err != nil {
			return err
		}
		fs.inodes[i] = DecodeInode(i, r)
		posInBlock++
	}
	return nil
}

// rawInodeReader decodes a RawInode from a fixed-size byte slice using
// encoding/binary, matching the sequential layout EncodeInode/Format wrote.
type rawInodeReader struct {
	buf []byte
}

func newRawInodeReader(buf []byte) rawInodeReader {
	return rawInodeReader{buf: buf}
}

func (r rawInodeReader) decode(out *RawInode) error {
	rd := byteSliceReader{buf: r.buf}
	return binary.Read(&rd, binary.LittleEndian, out)
}

// byteSliceReader is a tiny io.Reader over a slice, avoiding a bytes.Reader
// allocation on the hot inode-load path.
type byteSliceReader struct {
	buf []byte
	pos int
}

func (r *byteSliceReader) Read(p []byte) (int, error) {
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Unmount flushes every in-memory structure back to the image.
func (fs *Filesystem) Unmount() error {
	return fs.flushAll()
}

// Reset re-initializes the mounted image to a freshly-formatted state
// without closing and reopening the backing file.
func (fs *Filesystem) Reset() error {
	if err := Format(fs.img, FormatOptions{Logger: fs.logger}); err != nil {
		return err
	}
	refreshed, err := Mount(fs.img, FormatOptions{Logger: fs.logger})
	if err != nil {
		return err
	}
	*fs = *refreshed
	return nil
}

func (fs *Filesystem) flushSuperblock() error {
	return fs.img.WriteBlock(0, EncodeSuperblock(fs.sb))
}

func (fs *Filesystem) flushBitmaps() error {
	if err := writeBitmapBlocks(fs.img, fs.sb.InodeBitmapStart, fs.sb.InodeStart, fs.inodeBitmap.Bytes()); err != nil {
		return err
	}
	return writeBitmapBlocks(fs.img, fs.sb.BitmapStart, fs.sb.DataStart, fs.dataBitmap.Bytes())
}

func writeBitmapBlocks(img *Image, start, end Block, data []byte) error {
	numBlocks := int(end - start)
	padded := make([]byte, numBlocks*BSize)
	copy(padded, data)
	for i := 0; i < numBlocks; i++ {
		if err := img.WriteBlock(start+Block(i), padded[i*BSize:(i+1)*BSize]); err != nil {
			return err
		}
	}
	return nil
}

func (fs *Filesystem) flushInodeTable() error {
	inodesPerBlock := BSize / RawInodeSize
	blockBuf := make([]byte, BSize)
	posInBlock := 0
	block := fs.sb.InodeStart

	flush := func() error {
		return fs.img.WriteBlock(block, blockBuf)
	}

	for i, n := range fs.inodes {
		raw := EncodeInode(n)
		var w byteSliceWriter
		binary.Write(&w, binary.LittleEndian, raw)
		off := posInBlock * RawInodeSize
		copy(blockBuf[off:off+RawInodeSize], w.buf)

		posInBlock++
		if posInBlock >= inodesPerBlock || i == len(fs.inodes)-1 {
			if err := flush(); err != nil {
				return err
			}
			block++
			posInBlock = 0
			for j := range blockBuf {
				blockBuf[j] = 0
			}
		}
	}
	return nil
}

type byteSliceWriter struct {
	buf []byte
}

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (fs *Filesystem) flushAll() error {
	if err := fs.flushSuperblock(); err != nil {
		return err
	}
	if err := fs.flushBitmaps(); err != nil {
		return err
	}
	return fs.flushInodeTable()
}

// FSStat reports allocator occupancy for the mounted image.
func (fs *Filesystem) FSStat() FSStat {
	return FSStat{
		BlockSize:     BSize,
		TotalBlocks:   fs.sb.NBlocks,
		BlocksFree:    fs.dataBitmap.CountFree(),
		TotalInodes:   fs.sb.NInodes,
		InodesFree:    fs.inodeBitmap.CountFree(),
		InlineInodes:  fs.sb.InlineInodes,
		Directories:   fs.sb.NDirectories,
		Files:         fs.sb.NFiles,
		CreatedAt:     secondsToTime(fs.sb.CreationTime),
		LastMountedAt: secondsToTime(fs.sb.LastMounted),
	}
}

func (fs *Filesystem) inode(ino uint32) *Inode {
	return &fs.inodes[ino]
}

// allocInode grabs a free inode index and counts it as in use; the caller
// initializes the inode record.
func (fs *Filesystem) allocInode() (uint32, error) {
	idx, err := fs.inodeBitmap.Allocate()
	if err != nil {
		return 0, err
	}
	fs.sb.InodesUsed++
	return idx, nil
}

// freeInode releases ino's blocks and clears its bitmap bit once an
// inode's link count has dropped to zero.
func (fs *Filesystem) freeInode(ino uint32) {
	n := fs.inode(ino)
	if n.Flags&FlagInline == 0 {
		for _, b := range n.Blocks {
			if b != 0 {
				fs.freeDataBlock(b)
			}
		}
	}
	if n.Type == TypeDirectory {
		fs.sb.NDirectories--
		if n.Flags&FlagInline != 0 {
			fs.sb.InlineInodes--
		}
	} else if n.Type == TypeRegular {
		fs.sb.NFiles--
	}
	*n = Inode{}
	fs.inodeBitmap.Free(ino)
	fs.sb.InodesUsed--
}

// allocDataBlock hands out a fresh, zeroed data block.
func (fs *Filesystem) allocDataBlock() (Block, error) {
	idx, err := fs.dataBitmap.Allocate()
	if err != nil {
		return 0, err
	}
	b := fs.sb.DataStart + Block(idx)
	if err := fs.img.ZeroBlock(b); err != nil {
		fs.dataBitmap.Free(idx)
		return 0, err
	}
	return b, nil
}

// freeDataBlock releases b back to the data bitmap, indexed relative to
// the data region's first block rather than by raw block number.
func (fs *Filesystem) freeDataBlock(b Block) {
	fs.dataBitmap.Free(uint32(b) - uint32(fs.sb.DataStart))
}
