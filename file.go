package hfs

import (
	"github.com/hobbitfs/hfs/hfserr"
)

// FD identifies a slot in the fixed, process-wide open-file table.
type FD int

func (fs *Filesystem) allocFD() (FD, error) {
	for i := range fs.openFiles {
		if fs.openFiles[i] == nil {
			return FD(i), nil
		}
	}
	return -1, hfserr.ErrNoFd
}

func (fs *Filesystem) getOpenFile(fd FD) (*openFile, error) {
	if fd < 0 || int(fd) >= MaxOpenFiles || fs.openFiles[fd] == nil {
		return nil, hfserr.ErrInvalidArg.WithMessage("bad file descriptor")
	}
	return fs.openFiles[fd], nil
}

// openInode pins ino into a free open-file-table slot at offset 0.
func (fs *Filesystem) openInode(ino uint32, flags OpenFlags) (FD, error) {
	fd, err := fs.allocFD()
	if err != nil {
		return -1, err
	}
	fs.openFiles[fd] = &openFile{ino: ino, flags: flags}
	return fd, nil
}

// Close releases fd back to the open-file table.
func (fs *Filesystem) Close(fd FD) error {
	if _, err := fs.getOpenFile(fd); err != nil {
		return err
	}
	fs.openFiles[fd] = nil
	return nil
}

// Read copies up to len(buf) bytes from fd's current offset, walking the
// file block by block. A hole (Blocks[b] == 0) stops the read short rather
// than erroring.
func (fs *Filesystem) Read(fd FD, buf []byte) (int, error) {
	of, err := fs.getOpenFile(fd)
	if err != nil {
		return 0, err
	}
	if !of.flags.readable() {
		return 0, hfserr.ErrInvalidArg.WithMessage("file descriptor not open for reading")
	}
	n := fs.inode(of.ino)
	if n.Type != TypeRegular {
		return 0, hfserr.ErrInvalidType
	}

	total := 0
	remaining := len(buf)
	for remaining > 0 && of.offset < n.Size {
		b := of.offset / BSize
		if int(b) >= NBlocks || n.Blocks[b] == 0 {
			break
		}
		blockData, err := fs.img.ReadBlock(n.Blocks[b])
		if err != nil {
			return total, err
		}
		inBlockOff := of.offset % BSize
		chunk := minUint32(BSize-inBlockOff, n.Size-of.offset, uint32(remaining))

		copy(buf[total:total+int(chunk)], blockData[inBlockOff:inBlockOff+chunk])
		total += int(chunk)
		remaining -= int(chunk)
		of.offset += chunk
	}
	n.ATime = timeNow()
	return total, nil
}

// Write copies len(buf) bytes to fd's current offset, allocating blocks on
// demand and growing Size as needed. A failed mid-write allocation
// returns the partial count and the allocator's error, leaving the file
// grown up to that point — the design does not roll back.
func (fs *Filesystem) Write(fd FD, buf []byte) (int, error) {
	of, err := fs.getOpenFile(fd)
	if err != nil {
		return 0, err
	}
	if !of.flags.writable() {
		return 0, hfserr.ErrInvalidArg.WithMessage("file descriptor not open for writing")
	}
	n := fs.inode(of.ino)
	if n.Type != TypeRegular {
		return 0, hfserr.ErrInvalidType
	}
	if of.flags&OpenAppend != 0 {
		of.offset = n.Size
	}

	total := 0
	remaining := len(buf)
	for remaining > 0 {
		b := of.offset / BSize
		if int(b) >= NBlocks {
			return total, hfserr.ErrInvalidArg.WithMessage("write would exceed maximum file size")
		}
		if n.Blocks[b] == 0 {
			newBlock, err := fs.allocDataBlock()
			if err != nil {
				return total, err
			}
			n.Blocks[b] = newBlock
		}
		blockData, err := fs.img.ReadBlock(n.Blocks[b])
		if err != nil {
			return total, err
		}
		inBlockOff := of.offset % BSize
		chunk := minUint32(BSize-inBlockOff, uint32(remaining))

		copy(blockData[inBlockOff:inBlockOff+chunk], buf[total:total+int(chunk)])
		if err := fs.img.WriteBlock(n.Blocks[b], blockData); err != nil {
			return total, err
		}

		total += int(chunk)
		remaining -= int(chunk)
		of.offset += chunk
		if of.offset > n.Size {
			n.Size = of.offset
		}
	}
	n.MTime = timeNow()
	return total, nil
}

// Lseek clamp-checks and sets fd's offset.
func (fs *Filesystem) Lseek(fd FD, offset uint32) (uint32, error) {
	of, err := fs.getOpenFile(fd)
	if err != nil {
		return 0, err
	}
	n := fs.inode(of.ino)
	if offset > n.Size {
		return 0, hfserr.ErrInvalidArg.WithMessage("seek offset past end of file")
	}
	of.offset = offset
	return offset, nil
}

func minUint32(vals ...uint32) uint32 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
