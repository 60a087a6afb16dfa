package hfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/noxer/bytewriter"
)

// Superblock is the fixed-size record stored in block 0, recording the
// image's geometry and running counters.
type Superblock struct {
	Size             uint32 // total image size in bytes
	NInodes          uint32
	InodesUsed       uint32
	InlineInodes     uint32
	NDirectories     uint32
	NFiles           uint32
	DataStart        Block
	NBlocks          uint32
	InodeBitmapStart Block
	InodeStart       Block
	BitmapStart      Block // data-block bitmap start
	CreationTime     uint32
	LastMounted      uint32
	RootIno          uint32
}

// RootIno is the inode number of the root directory, allocated on Format.
const RootIno = 1

// superblockWireSize is how many bytes of block 0 the geometry fields
// occupy; the remainder of the block is unused padding.
const superblockWireSize = 13*4 + 4 // 13 uint32-ish fields + RootIno

// Geometry holds the region layout computed from a requested image size.
type Geometry struct {
	TotalBlocks      uint32
	InodeCount       uint32
	InodeTableBlocks uint32
	InodeBitmapBlocks uint32
	DataBitmapBlocks uint32
	DataBlocks       uint32
	InodeBitmapStart Block
	InodeStart       Block
	BitmapStart      Block
	DataStart        Block
}

// ceilDiv rounds up integer division.
func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// ComputeGeometry derives the on-image region layout for a given byte size:
// inode-table blocks are 3% of total blocks, the inode bitmap is sized to
// cover that many inodes, and the data bitmap is sized generously, an
// overestimate, at total_blocks/8/BSize.
func ComputeGeometry(size int64) (Geometry, error) {
	if size < BSize*16 {
		return Geometry{}, fmt.Errorf("image too small: need at least %d bytes", BSize*16)
	}
	if size > MaxImageSize {
		return Geometry{}, fmt.Errorf("image too large: max is %d bytes", MaxImageSize)
	}

	totalBlocks := uint32(size / BSize)

	inodeTableBlocks := totalBlocks * 3 / 100
	if inodeTableBlocks == 0 {
		inodeTableBlocks = 1
	}
	inodesPerBlock := uint32(BSize / RawInodeSize)
	inodeCount := inodeTableBlocks * inodesPerBlock

	inodeBitmapBlocks := ceilDiv(ceilDiv(inodeCount, 8), BSize)
	if inodeBitmapBlocks == 0 {
		inodeBitmapBlocks = 1
	}

	// Overestimated by design: total_blocks/8 bytes, rounded up to a
	// whole number of blocks, rather than sized off the actual data region.
	dataBitmapBlocks := ceilDiv(totalBlocks/8, BSize)
	if dataBitmapBlocks == 0 {
		dataBitmapBlocks = 1
	}

	// Block 0 is the superblock.
	inodeBitmapStart := Block(1)
	inodeStart := inodeBitmapStart + Block(inodeBitmapBlocks)
	bitmapStart := inodeStart + Block(inodeTableBlocks)
	dataStart := bitmapStart + Block(dataBitmapBlocks)

	if uint32(dataStart) >= totalBlocks {
		return Geometry{}, fmt.Errorf("image too small to hold metadata: need more than %d blocks", totalBlocks)
	}

	return Geometry{
		TotalBlocks:       totalBlocks,
		InodeCount:        inodeCount,
		InodeTableBlocks:  inodeTableBlocks,
		InodeBitmapBlocks: inodeBitmapBlocks,
		DataBitmapBlocks:  dataBitmapBlocks,
		DataBlocks:        totalBlocks - uint32(dataStart),
		InodeBitmapStart:  inodeBitmapStart,
		InodeStart:        inodeStart,
		BitmapStart:       bitmapStart,
		DataStart:         dataStart,
	}, nil
}

// ValidateGeometry sanity-checks a superblock's recorded nblocks, region-start
// ordering, and root inode number against the image actually mounted; the
// recorded byte Size is not checked. It aggregates
// every problem it finds via go-multierror rather than stopping at the
// first, so a caller logging the error sees every violated invariant in
// one pass.
func ValidateGeometry(sb Superblock, imageBlocks uint32) error {
	var result *multierror.Error

	if sb.NBlocks != imageBlocks {
		result = multierror.Append(result, fmt.Errorf(
			"superblock reports %d blocks but image has %d", sb.NBlocks, imageBlocks))
	}
	if sb.InodeBitmapStart <= 0 {
		result = multierror.Append(result, fmt.Errorf("inode bitmap start must be after the superblock"))
	}
	if sb.InodeStart <= sb.InodeBitmapStart {
		result = multierror.Append(result, fmt.Errorf("inode table must start after the inode bitmap"))
	}
	if sb.BitmapStart <= sb.InodeStart {
		result = multierror.Append(result, fmt.Errorf("data bitmap must start after the inode table"))
	}
	if sb.DataStart <= sb.BitmapStart {
		result = multierror.Append(result, fmt.Errorf("data region must start after the data bitmap"))
	}
	if uint32(sb.DataStart) >= imageBlocks {
		result = multierror.Append(result, fmt.Errorf("data region start %d is past the end of the image", sb.DataStart))
	}
	if sb.RootIno != RootIno {
		result = multierror.Append(result, fmt.Errorf("root inode number is %d, expected %d", sb.RootIno, RootIno))
	}

	return result.ErrorOrNil()
}

// EncodeSuperblock serializes sb into a single zero-padded block.
func EncodeSuperblock(sb Superblock) []byte {
	buf := make([]byte, BSize)
	w := bytewriter.New(buf)
	fields := []uint32{
		sb.Size, sb.NInodes, sb.InodesUsed, sb.InlineInodes, sb.NDirectories,
		sb.NFiles, uint32(sb.DataStart), sb.NBlocks, uint32(sb.InodeBitmapStart),
		uint32(sb.InodeStart), uint32(sb.BitmapStart), sb.CreationTime,
		sb.LastMounted, sb.RootIno,
	}
	for _, f := range fields {
		binary.Write(w, binary.LittleEndian, f)
	}
	return buf
}

// DecodeSuperblock is the inverse of EncodeSuperblock.
func DecodeSuperblock(block []byte) (Superblock, error) {
	if len(block) < superblockWireSize {
		return Superblock{}, fmt.Errorf("superblock block too short: %d bytes", len(block))
	}
	r := bytes.NewReader(block)
	var vals [14]uint32
	for i := range vals {
		if err := binary.Read(r, binary.LittleEndian, &vals[i]); err != nil {
			return Superblock{}, err
		}
	}
	return Superblock{
		Size:             vals[0],
		NInodes:          vals[1],
		InodesUsed:       vals[2],
		InlineInodes:     vals[3],
		NDirectories:     vals[4],
		NFiles:           vals[5],
		DataStart:        Block(vals[6]),
		NBlocks:          vals[7],
		InodeBitmapStart: Block(vals[8]),
		InodeStart:       Block(vals[9]),
		BitmapStart:      Block(vals[10]),
		CreationTime:     vals[11],
		LastMounted:      vals[12],
		RootIno:          vals[13],
	}, nil
}

func nowSeconds() uint32 {
	return uint32(time.Now().Unix())
}
