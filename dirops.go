package hfs

import (
	"encoding/binary"

	"github.com/hobbitfs/hfs/hfserr"
)

// findFreeSlot scans a dentry region (an inline region or one directory
// block) for a place to put a record of reclen bytes: reuse a hole whose
// reclen is big enough, otherwise extend into the trailing free space
// recorded by the reclen==0 sentinel. Because the trailing region is always
// zero-filled (blocks are allocated zeroed; the inline region starts
// zeroed), writing a record shorter
// than the remaining space automatically leaves a valid zero sentinel right
// after it — no extra bookkeeping needed.
func findFreeSlot(buf []byte, reclen uint16) (offset int, useReclen uint16, ok bool) {
	off := 0
	for off+dentryHeaderSize <= len(buf) {
		d, err := decodeDentry(buf, off)
		if err != nil {
			return 0, 0, false
		}
		if d.IsEnd() {
			if off+int(reclen) <= len(buf) {
				return off, reclen, true
			}
			return 0, 0, false
		}
		if d.IsHole() && d.Reclen >= reclen {
			return off, d.Reclen, true
		}
		off += int(d.Reclen)
	}
	return 0, 0, false
}

// putDentryInRegion writes a new record for (ino, name, fileType) into buf,
// reusing a hole or extending trailing free space per findFreeSlot. Returns
// the byte offset the record was written at.
func putDentryInRegion(buf []byte, ino uint32, name string, fileType uint8) (offset int, ok bool, err error) {
	reclen, err := ReclenFor(name)
	if err != nil {
		return 0, false, err
	}
	off, useReclen, found := findFreeSlot(buf, reclen)
	if !found {
		return 0, false, nil
	}
	encodeDentry(buf, off, Dentry{
		Ino:      ino,
		Reclen:   useReclen,
		NameLen:  uint8(len(name) + 1),
		FileType: fileType,
		Name:     name,
	})
	return off, true, nil
}

// allocDentry places a (name -> ino) record into directory dirIno,
// dispatching to the inline region or the directory's blocks depending on
// FlagInline, and triggering inline->block conversion on overflow.
func (fs *Filesystem) allocDentry(dirIno uint32, name string, ino uint32, fileType uint8) error {
	dir := fs.inode(dirIno)

	if dir.Flags&FlagInline != 0 {
		off, ok, err := putDentryInRegion(dir.InlineRegion[:], ino, name, fileType)
		if err != nil {
			return err
		}
		if ok {
			_ = off
			return nil
		}
		if err := fs.convertInlineToBlock(dirIno); err != nil {
			return err
		}
		dir = fs.inode(dirIno) // re-fetch: now block-form
	}

	// Block-form directory: try each present block, remembering the first
	// absent slot in case none fit
	firstAbsent := -1
	for i, b := range dir.Blocks {
		if b == 0 {
			if firstAbsent < 0 {
				firstAbsent = i
			}
			continue
		}
		buf, err := fs.img.ReadBlock(b)
		if err != nil {
			return err
		}
		off, ok, err := putDentryInRegion(buf, ino, name, fileType)
		if err != nil {
			return err
		}
		if ok {
			if err := fs.img.WriteBlock(b, buf); err != nil {
				return err
			}
			if dir.Flags&FlagDirhash != 0 {
				fs.dirhashInsertOrDemote(dirIno, dir, name, off)
			}
			return nil
		}
	}

	if firstAbsent < 0 {
		return hfserr.ErrAllocFail.WithMessage("directory has no free direct block slots")
	}

	wasSecondBlock := firstAbsent == 1
	newBlock, err := fs.allocDataBlock()
	if err != nil {
		return err
	}

	buf, err := fs.img.ReadBlock(newBlock)
	if err != nil {
		return err
	}
	off, ok, err := putDentryInRegion(buf, ino, name, fileType)
	if err != nil {
		return err
	}
	if !ok {
		return hfserr.ErrInvalidArg.WithMessage("name too long to fit in an empty directory block")
	}
	if err := fs.img.WriteBlock(newBlock, buf); err != nil {
		return err
	}

	dir.Blocks[firstAbsent] = newBlock
	if wasSecondBlock && dir.Flags&FlagDirhash != 0 {
		// DIRHASH is cleared the instant a second block is allocated; the
		// binding only ever holds for single-block directories.
		dir.Flags &^= FlagDirhash
	} else if dir.Flags&FlagDirhash != 0 {
		fs.dirhashInsertOrDemote(dirIno, dir, name, off)
	}
	return nil
}

// dirhashInsertOrDemote inserts name->offset into the dirhash table bound
// to dirIno, rebinding first if the binding is stale, and clears
// FlagDirhash if the table's load factor would be exceeded.
func (fs *Filesystem) dirhashInsertOrDemote(dirIno uint32, dir *Inode, name string, offset int) {
	if !fs.dirhash.IsValid(dirIno, int(dir.Dirhash.TableID), dir.Dirhash.Seqno) {
		fs.rebuildDirhash(dirIno, dir)
	}
	if !fs.dirhash.Insert(dirIno, int(dir.Dirhash.TableID), dir.Dirhash.Seqno, name, offset) {
		dir.Flags &^= FlagDirhash
	}
}

// rebuildDirhash binds dirIno to a (possibly recycled) LRU table and
// repopulates it by scanning the directory's single block.
func (fs *Filesystem) rebuildDirhash(dirIno uint32, dir *Inode) {
	tableID, seqno := fs.dirhash.Bind(dirIno)
	dir.Dirhash.TableID = uint16(tableID)
	dir.Dirhash.Seqno = seqno

	buf, err := fs.img.ReadBlock(dir.Blocks[0])
	if err != nil {
		dir.Flags &^= FlagDirhash
		return
	}
	cur := newDentryCursor(buf)
	for {
		d, off, ok, err := cur.Next()
		if err != nil || !ok {
			break
		}
		if d.Ino == 0 {
			continue
		}
		if !fs.dirhash.Insert(dirIno, tableID, seqno, d.Name, off) {
			dir.Flags &^= FlagDirhash
			return
		}
	}
}

// convertInlineToBlock performs the inline->block conversion: it
// allocates one data block, writes '.'  and '..' as real records, migrates
// every live inline record, clears FlagInline, and binds the new single
// block to a dirhash table.
func (fs *Filesystem) convertInlineToBlock(dirIno uint32) error {
	dir := fs.inode(dirIno)
	parentIno := dir.ParentIno
	oldRegion := dir.InlineRegion

	newBlock, err := fs.allocDataBlock()
	if err != nil {
		return err
	}
	buf, err := fs.img.ReadBlock(newBlock)
	if err != nil {
		return err
	}

	if _, ok, err := putDentryInRegion(buf, dirIno, ".", FileTypeDirectory); err != nil || !ok {
		return firstNonNil(err, hfserr.ErrAllocFail.WithMessage("no room for '.' after conversion"))
	}
	if _, ok, err := putDentryInRegion(buf, parentIno, "..", FileTypeDirectory); err != nil || !ok {
		return firstNonNil(err, hfserr.ErrAllocFail.WithMessage("no room for '..' after conversion"))
	}

	cur := newDentryCursor(oldRegion[:])
	for {
		d, _, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if d.Ino == 0 {
			continue
		}
		if _, ok, err := putDentryInRegion(buf, d.Ino, d.Name, d.FileType); err != nil || !ok {
			return firstNonNil(err, hfserr.ErrAllocFail.WithMessage("inline directory contents don't fit in one block"))
		}
	}

	if err := fs.img.WriteBlock(newBlock, buf); err != nil {
		return err
	}

	dir.Flags &^= FlagInline
	dir.ParentIno = 0
	dir.InlineRegion = [inlineDirRegionSize]byte{}
	dir.Blocks = [NBlocks]Block{}
	dir.Blocks[0] = newBlock
	dir.Dirhash.Block = newBlock
	dir.Flags |= FlagDirhash
	fs.sb.InlineInodes--

	fs.rebuildDirhash(dirIno, dir)
	return nil
}

func firstNonNil(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

// findDentry looks up name within directory dirIno, dispatching to inline
// scan, dirhash, or block scan. It returns the matching dentry,
// the block it lives in (0 for inline matches), and the byte offset within
// that region.
func (fs *Filesystem) findDentry(dirIno uint32, name string) (Dentry, Block, int, error) {
	dir := fs.inode(dirIno)

	if dir.Flags&FlagInline != 0 {
		return scanRegionForName(dir.InlineRegion[:], name, 0)
	}

	if dir.Flags&FlagDirhash != 0 {
		if !fs.dirhash.IsValid(dirIno, int(dir.Dirhash.TableID), dir.Dirhash.Seqno) {
			fs.rebuildDirhash(dirIno, dir)
		}
		if fs.dirhash.IsValid(dirIno, int(dir.Dirhash.TableID), dir.Dirhash.Seqno) {
			off, ok := fs.dirhash.Lookup(dirIno, int(dir.Dirhash.TableID), dir.Dirhash.Seqno, name)
			if !ok {
				return Dentry{}, 0, 0, hfserr.ErrNotFound
			}
			buf, err := fs.img.ReadBlock(dir.Blocks[0])
			if err != nil {
				return Dentry{}, 0, 0, err
			}
			d, err := decodeDentry(buf, off)
			if err != nil {
				return Dentry{}, 0, 0, err
			}
			return d, dir.Blocks[0], off, nil
		}
	}

	for _, b := range dir.Blocks {
		if b == 0 {
			continue
		}
		buf, err := fs.img.ReadBlock(b)
		if err != nil {
			return Dentry{}, 0, 0, err
		}
		d, block, off, err := scanRegionForName(buf, name, b)
		if err == nil {
			return d, block, off, nil
		}
	}
	return Dentry{}, 0, 0, hfserr.ErrNotFound
}

func scanRegionForName(buf []byte, name string, block Block) (Dentry, Block, int, error) {
	cur := newDentryCursor(buf)
	for {
		d, off, ok, err := cur.Next()
		if err != nil {
			return Dentry{}, 0, 0, err
		}
		if !ok {
			return Dentry{}, 0, 0, hfserr.ErrNotFound
		}
		if d.Ino != 0 && d.Name == name {
			return d, block, off, nil
		}
	}
}

// listDirectory returns every live (name, ino, fileType) in dirIno, in
// on-disk iteration order. `.` and `..` are synthesized for inline
// directories since no real records exist for them.
func (fs *Filesystem) listDirectory(dirIno uint32) ([]DirEntry, error) {
	dir := fs.inode(dirIno)
	var out []DirEntry

	if dir.Flags&FlagInline != 0 {
		out = append(out,
			DirEntry{Name: ".", Ino: dirIno, Type: FileTypeDirectory},
			DirEntry{Name: "..", Ino: dir.ParentIno, Type: FileTypeDirectory},
		)
		entries, err := collectRegion(dir.InlineRegion[:])
		if err != nil {
			return nil, err
		}
		return append(out, entries...), nil
	}

	for _, b := range dir.Blocks {
		if b == 0 {
			continue
		}
		buf, err := fs.img.ReadBlock(b)
		if err != nil {
			return nil, err
		}
		entries, err := collectRegion(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

func collectRegion(buf []byte) ([]DirEntry, error) {
	var out []DirEntry
	cur := newDentryCursor(buf)
	for {
		d, _, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if d.Ino == 0 {
			continue
		}
		out = append(out, DirEntry{Name: d.Name, Ino: d.Ino, Type: d.FileType})
	}
}

// isDirectoryEmpty reports whether dirIno has any live entries besides the
// implicit/explicit `.`/`..`.
func (fs *Filesystem) isDirectoryEmpty(dirIno uint32) (bool, error) {
	dir := fs.inode(dirIno)
	if dir.Flags&FlagInline != 0 {
		entries, err := collectRegion(dir.InlineRegion[:])
		if err != nil {
			return false, err
		}
		return len(entries) == 0, nil
	}
	for _, b := range dir.Blocks {
		if b == 0 {
			continue
		}
		buf, err := fs.img.ReadBlock(b)
		if err != nil {
			return false, err
		}
		cur := newDentryCursor(buf)
		for {
			d, _, ok, err := cur.Next()
			if err != nil {
				return false, err
			}
			if !ok {
				break
			}
			if d.Ino != 0 && d.Name != "." && d.Name != ".." {
				return false, nil
			}
		}
	}
	return true, nil
}

// removeDentry clears the dentry named name in dirIno, preserving its
// record's name bytes and reclen so a subsequent rename can still read
// them back.
func (fs *Filesystem) removeDentry(dirIno uint32, name string) error {
	dir := fs.inode(dirIno)

	if dir.Flags&FlagInline != 0 {
		return clearNameInRegion(dir.InlineRegion[:], name)
	}

	for _, b := range dir.Blocks {
		if b == 0 {
			continue
		}
		buf, err := fs.img.ReadBlock(b)
		if err != nil {
			return err
		}
		if err := clearNameInRegion(buf, name); err == nil {
			if err := fs.img.WriteBlock(b, buf); err != nil {
				return err
			}
			if dir.Flags&FlagDirhash != 0 && fs.dirhash.IsValid(dirIno, int(dir.Dirhash.TableID), dir.Dirhash.Seqno) {
				fs.dirhash.Delete(dirIno, int(dir.Dirhash.TableID), dir.Dirhash.Seqno, name)
			}
			return nil
		}
	}
	return hfserr.ErrNotFound
}

func clearNameInRegion(buf []byte, name string) error {
	off := 0
	for off+dentryHeaderSize <= len(buf) {
		d, err := decodeDentry(buf, off)
		if err != nil {
			return err
		}
		if d.IsEnd() {
			return hfserr.ErrNotFound
		}
		if d.Ino != 0 && d.Name == name {
			binary.LittleEndian.PutUint32(buf[off:off+4], 0)
			return nil
		}
		off += int(d.Reclen)
	}
	return hfserr.ErrNotFound
}
