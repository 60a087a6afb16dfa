package hfs

import (
	"fmt"
	"io"

	"github.com/xaionaro-go/bytesextra"
)

// BSize is the fixed block size of an HFS image, in bytes.
const BSize = 4096

// MaxImageSize is the largest image Format will accept.
const MaxImageSize = 1 << 30 // 1 GiB

// Block identifies a block by its absolute position on the image. Block 0
// is reserved: allocDataBlock never returns it, so 0 doubles as a "no
// block" sentinel inside inode/dentry records.
type Block uint32

// Image is the in-memory backing store standing in for a memory-mapped
// buffer: a contiguous byte region carved into fixed-size blocks, exposed
// through an io.ReadWriteSeeker the rest of HFS addresses purely by block
// number.
type Image struct {
	stream     io.ReadWriteSeeker
	totalBytes int64
}

// NewImage wraps a raw byte slice as an Image of exactly len(data) bytes.
// The slice must already be sized to a whole number of blocks.
func NewImage(data []byte) (*Image, error) {
	if len(data)%BSize != 0 {
		return nil, fmt.Errorf("image size %d is not a multiple of the block size %d", len(data), BSize)
	}
	return &Image{
		stream:     bytesextra.NewReadWriteSeeker(data),
		totalBytes: int64(len(data)),
	}, nil
}

// NewBlankImage allocates a fresh, zeroed Image of the given byte size,
// rounded down to a whole number of blocks.
func NewBlankImage(size int64) (*Image, error) {
	if size > MaxImageSize {
		return nil, fmt.Errorf("requested image size %d exceeds maximum of %d bytes", size, MaxImageSize)
	}
	numBlocks := size / BSize
	if numBlocks == 0 {
		return nil, fmt.Errorf("requested image size %d is smaller than one block (%d bytes)", size, BSize)
	}
	return NewImage(make([]byte, numBlocks*BSize))
}

// TotalBlocks returns the number of blocks in the image.
func (img *Image) TotalBlocks() Block {
	return Block(img.totalBytes / BSize)
}

func (img *Image) checkBounds(b Block) error {
	if uint32(b) >= uint32(img.TotalBlocks()) {
		return fmt.Errorf("block %d out of range [0, %d)", b, img.TotalBlocks())
	}
	return nil
}

// ReadBlock reads exactly one block's worth of bytes starting at b.
func (img *Image) ReadBlock(b Block) ([]byte, error) {
	buf := make([]byte, BSize)
	if err := img.ReadBlockInto(b, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadBlockInto reads one block into a caller-supplied buffer of exactly
// BSize bytes, avoiding an allocation on hot paths like dentry scans.
func (img *Image) ReadBlockInto(b Block, buf []byte) error {
	if len(buf) != BSize {
		return fmt.Errorf("buffer must be exactly %d bytes, got %d", BSize, len(buf))
	}
	if err := img.checkBounds(b); err != nil {
		return err
	}
	if _, err := img.stream.Seek(int64(b)*BSize, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(img.stream, buf)
	return err
}

// WriteBlock writes exactly one block's worth of bytes to b. data must be
// precisely BSize bytes long.
func (img *Image) WriteBlock(b Block, data []byte) error {
	if len(data) != BSize {
		return fmt.Errorf("data must be exactly %d bytes, got %d", BSize, len(data))
	}
	if err := img.checkBounds(b); err != nil {
		return err
	}
	if _, err := img.stream.Seek(int64(b)*BSize, io.SeekStart); err != nil {
		return err
	}
	_, err := img.stream.Write(data)
	return err
}

// ZeroBlock overwrites a block with zero bytes. Allocators use this so
// data blocks are always handed out pre-zeroed.
func (img *Image) ZeroBlock(b Block) error {
	return img.WriteBlock(b, make([]byte, BSize))
}

// ReadAt and WriteAt expose the raw stream at an arbitrary byte offset, for
// data that is not block-granular.
func (img *Image) ReadAt(p []byte, off int64) (int, error) {
	if _, err := img.stream.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(img.stream, p)
}

func (img *Image) WriteAt(p []byte, off int64) (int, error) {
	if _, err := img.stream.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return img.stream.Write(p)
}
