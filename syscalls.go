package hfs

import (
	"path"

	"github.com/hobbitfs/hfs/hfserr"
)

// Creat creates and opens a new regular file at path for writing.
//
// A POSIX-style syscall table conventionally reports failure as a negated
// error code; idiomatic Go instead reports it through the second return
// value, so every method here returns (result, error), with hfserr.Code
// able to recover the numeric kind at a C-style boundary if one is ever
// needed.
func (fs *Filesystem) Creat(p string) (FD, error) {
	dirPath, name, err := splitParentAndName(p)
	if err != nil {
		return -1, err
	}
	parentIno, err := fs.resolveDir(dirPath)
	if err != nil {
		return -1, err
	}
	if _, _, ok, err := fs.resolve(p); ok && err == nil {
		return -1, hfserr.ErrExists
	}

	ino, err := fs.allocInode()
	if err != nil {
		return -1, err
	}
	*fs.inode(ino) = NewRegularFile(ino, timeNow())
	if err := fs.allocDentry(parentIno, name, ino, FileTypeRegular); err != nil {
		fs.freeInode(ino)
		return -1, err
	}
	fs.sb.NFiles++
	return fs.openInode(ino, OpenRead|OpenWrite|OpenTruncate)
}

// Open resolves path and pins it into the open-file table.
func (fs *Filesystem) Open(p string, flags OpenFlags) (FD, error) {
	d, _, _, err := fs.resolve(p)
	if err != nil {
		return -1, err
	}
	n := fs.inode(d.Ino)
	if n.Type == TypeDirectory && flags.writable() {
		return -1, hfserr.ErrInvalidType.WithMessage("cannot open a directory for writing")
	}
	return fs.openInode(d.Ino, flags)
}

// Unlink removes a non-directory dentry and frees the inode once its link
// count reaches zero.
func (fs *Filesystem) Unlink(p string) error {
	dirPath, name, err := splitParentAndName(p)
	if err != nil {
		return err
	}
	if name == "." || name == ".." {
		return hfserr.ErrInvalidArg.WithMessage("cannot unlink . or ..")
	}
	parentIno, err := fs.resolveDir(dirPath)
	if err != nil {
		return err
	}
	d, _, _, err := fs.resolve(p)
	if err != nil {
		return err
	}
	n := fs.inode(d.Ino)
	if n.Type == TypeDirectory {
		return hfserr.ErrInvalidType.WithMessage("use rmdir to remove a directory")
	}

	if err := fs.removeDentry(parentIno, name); err != nil {
		return err
	}
	n.Nlink--
	if n.Nlink == 0 {
		fs.freeInode(d.Ino)
	}
	return nil
}

// Link creates a new name for an existing, non-directory file.
func (fs *Filesystem) Link(oldPath, newPath string) error {
	oldD, _, _, err := fs.resolve(oldPath)
	if err != nil {
		return err
	}
	if fs.inode(oldD.Ino).Type == TypeDirectory {
		return hfserr.ErrInvalidType.WithMessage("cannot hard-link a directory")
	}

	newDirPath, newName, err := splitParentAndName(newPath)
	if err != nil {
		return err
	}
	newParentIno, err := fs.resolveDir(newDirPath)
	if err != nil {
		return err
	}
	if _, _, ok, err := fs.resolve(newPath); ok && err == nil {
		return hfserr.ErrExists
	}

	fileType := FileTypeRegular
	if fs.inode(oldD.Ino).Type == TypeSymlink {
		fileType = FileTypeSymlink
	}
	if err := fs.allocDentry(newParentIno, newName, oldD.Ino, uint8(fileType)); err != nil {
		return err
	}
	fs.inode(oldD.Ino).Nlink++
	return nil
}

// Mkdir creates a new, initially-inline directory.
func (fs *Filesystem) Mkdir(p string) error {
	dirPath, name, err := splitParentAndName(p)
	if err != nil {
		return err
	}
	parentIno, err := fs.resolveDir(dirPath)
	if err != nil {
		return err
	}
	if _, _, ok, err := fs.resolve(p); ok && err == nil {
		return hfserr.ErrExists
	}

	ino, err := fs.allocInode()
	if err != nil {
		return err
	}
	*fs.inode(ino) = NewDirectory(ino, parentIno, timeNow())
	if err := fs.allocDentry(parentIno, name, ino, FileTypeDirectory); err != nil {
		fs.freeInode(ino)
		return err
	}
	fs.inode(parentIno).Nlink++ // the child's implicit/explicit ".." references the parent
	fs.sb.NDirectories++
	fs.sb.InlineInodes++
	return nil
}

// Rmdir removes an empty directory.
func (fs *Filesystem) Rmdir(p string) error {
	dirPath, name, err := splitParentAndName(p)
	if err != nil {
		return err
	}
	if name == "." || name == ".." {
		return hfserr.ErrInvalidArg.WithMessage("cannot remove . or ..")
	}
	parentIno, err := fs.resolveDir(dirPath)
	if err != nil {
		return err
	}
	d, _, _, err := fs.resolve(p)
	if err != nil {
		return err
	}
	if fs.inode(d.Ino).Type != TypeDirectory {
		return hfserr.ErrInvalidType
	}
	empty, err := fs.isDirectoryEmpty(d.Ino)
	if err != nil {
		return err
	}
	if !empty {
		return hfserr.ErrNotEmpty
	}

	if err := fs.removeDentry(parentIno, name); err != nil {
		return err
	}
	fs.inode(parentIno).Nlink--
	fs.freeInode(d.Ino)
	return nil
}

// Rename moves/renames a file or directory. This does not rewrite the
// transitive ".." pointers of a moved directory's descendants — only the
// moved inode's own parent pointer.
func (fs *Filesystem) Rename(oldPath, newPath string) error {
	oldDirPath, oldName, err := splitParentAndName(oldPath)
	if err != nil {
		return err
	}
	oldParentIno, err := fs.resolveDir(oldDirPath)
	if err != nil {
		return err
	}
	oldD, _, _, err := fs.resolve(oldPath)
	if err != nil {
		return err
	}

	newDirPath, newName, err := splitParentAndName(newPath)
	if err != nil {
		return err
	}
	newParentIno, err := fs.resolveDir(newDirPath)
	if err != nil {
		return err
	}

	newD, _, newOk, newErr := fs.resolve(newPath)
	newExists := newOk && newErr == nil
	if newExists {
		if newD.Ino == oldD.Ino {
			return hfserr.ErrSameFile
		}
		oldType := fs.inode(oldD.Ino).Type
		newType := fs.inode(newD.Ino).Type
		if (oldType == TypeDirectory) != (newType == TypeDirectory) {
			return hfserr.ErrInvalidType.WithMessage("cannot rename between file and directory")
		}
		if newType == TypeDirectory {
			if err := fs.Rmdir(newPath); err != nil {
				return err
			}
		} else {
			if err := fs.Unlink(newPath); err != nil {
				return err
			}
		}
	}

	fileType := dentryFileType(fs.inode(oldD.Ino).Type)

	// Pre-increment nlink so the unlink below can't drop the inode to zero
	// and free it before the new dentry is allocated Allocation in
	// the new parent can trigger inline->block conversion, so the old
	// dentry must be gone first or its name could collide mid-conversion.
	fs.inode(oldD.Ino).Nlink++
	if err := fs.removeDentry(oldParentIno, oldName); err != nil {
		fs.inode(oldD.Ino).Nlink--
		return err
	}
	if err := fs.allocDentry(newParentIno, newName, oldD.Ino, fileType); err != nil {
		// best effort: put the old dentry back
		fs.allocDentry(oldParentIno, oldName, oldD.Ino, fileType)
		fs.inode(oldD.Ino).Nlink--
		return err
	}
	fs.inode(oldD.Ino).Nlink--

	if fs.inode(oldD.Ino).Type == TypeDirectory {
		moved := fs.inode(oldD.Ino)
		if moved.Flags&FlagInline != 0 {
			moved.ParentIno = newParentIno
		} else if err := fs.removeDentry(oldD.Ino, ".."); err == nil {
			fs.allocDentry(oldD.Ino, "..", newParentIno, FileTypeDirectory)
		}
		fs.inode(oldParentIno).Nlink--
		fs.inode(newParentIno).Nlink++
	}

	fs.inode(oldD.Ino).CTime = timeNow()
	fs.inode(newParentIno).MTime = timeNow()
	return nil
}

// Symlink creates a symbolic link.
func (fs *Filesystem) Symlink(target, linkPath string) error {
	dirPath, name, err := splitParentAndName(linkPath)
	if err != nil {
		return err
	}
	parentIno, err := fs.resolveDir(dirPath)
	if err != nil {
		return err
	}
	if _, _, ok, err := fs.resolve(linkPath); ok && err == nil {
		return hfserr.ErrExists
	}

	ino, err := fs.allocInode()
	if err != nil {
		return err
	}
	n, err := NewSymlink(ino, target, timeNow())
	if err != nil {
		fs.inodeBitmap.Free(ino)
		return err
	}
	*fs.inode(ino) = n

	if n.Flags&FlagInline == 0 {
		block, err := fs.allocDataBlock()
		if err != nil {
			fs.freeInode(ino)
			return err
		}
		buf, err := fs.img.ReadBlock(block)
		if err != nil {
			return err
		}
		copy(buf, target)
		if err := fs.img.WriteBlock(block, buf); err != nil {
			return err
		}
		fs.inode(ino).Blocks[0] = block
	}

	if err := fs.allocDentry(parentIno, name, ino, FileTypeSymlink); err != nil {
		fs.freeInode(ino)
		return err
	}
	return nil
}

// Readlink reads a symlink's target.
func (fs *Filesystem) Readlink(p string) (string, error) {
	d, _, _, err := fs.resolve(p)
	if err != nil {
		return "", err
	}
	n := fs.inode(d.Ino)
	if n.Type != TypeSymlink {
		return "", hfserr.ErrInvalidType
	}
	if n.Flags&FlagInline != 0 {
		return n.SymlinkTarget, nil
	}
	buf, err := fs.img.ReadBlock(n.Blocks[0])
	if err != nil {
		return "", err
	}
	end := int(n.Size)
	if end > len(buf) {
		end = len(buf)
	}
	return string(buf[:end]), nil
}

// Stat returns portable metadata for path.
func (fs *Filesystem) Stat(p string) (Stat, error) {
	d, _, _, err := fs.resolve(p)
	if err != nil {
		return Stat{}, err
	}
	return fs.inode(d.Ino).ToStat(), nil
}

// Chdir changes the current working directory.
func (fs *Filesystem) Chdir(p string) error {
	ino, err := fs.resolveDir(p)
	if err != nil {
		return err
	}
	fs.cwd = ino
	return nil
}

// ReadDir lists the entries of a directory.
func (fs *Filesystem) ReadDir(p string) ([]DirEntry, error) {
	ino, err := fs.resolveDir(p)
	if err != nil {
		return nil, err
	}
	return fs.listDirectory(ino)
}

func dentryFileType(t InodeType) uint8 {
	switch t {
	case TypeDirectory:
		return FileTypeDirectory
	case TypeSymlink:
		return FileTypeSymlink
	case TypeDevice:
		return FileTypeDevice
	default:
		return FileTypeRegular
	}
}

// splitParentAndName splits a path into its parent directory path and
// final component, rejecting names that are too long.
func splitParentAndName(p string) (dir, name string, err error) {
	dir, name = path.Split(path.Clean(p))
	if name == "" || name == "/" {
		return "", "", hfserr.ErrInvalidArg.WithMessage("path has no final component")
	}
	if len(name) > MaxNameLen {
		return "", "", hfserr.ErrInvalidName
	}
	if dir == "" {
		dir = "."
	}
	return dir, name, nil
}
