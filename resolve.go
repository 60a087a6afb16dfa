package hfs

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/hobbitfs/hfs/hfserr"
)

// splitPathComponents splits a path on '/' and drops empty segments
// produced by repeated slashes.
func splitPathComponents(path string) []string {
	parts := strings.Split(path, "/")
	parts = slices.DeleteFunc(parts, func(s string) bool { return s == "" })
	return parts
}

// getParentIno returns the inum of ino's parent directory: the stored
// ParentIno for an inline directory, or a lookup of the real ".." record
// for a block-form one. The root directory is its own parent.
func (fs *Filesystem) getParentIno(ino uint32) (uint32, error) {
	n := fs.inode(ino)
	if n.Flags&FlagInline != 0 {
		return n.ParentIno, nil
	}
	d, _, _, err := fs.findDentry(ino, "..")
	if err != nil {
		return 0, err
	}
	return d.Ino, nil
}

// resolveComponent looks up one path component within directory dirIno,
// synthesizing `.` and `..` for inline directories since no real dentries
// exist for them there.
func (fs *Filesystem) resolveComponent(dirIno uint32, comp string) (Dentry, error) {
	dir := fs.inode(dirIno)
	if dir.Type != TypeDirectory {
		return Dentry{}, hfserr.ErrInvalidType.WithMessage("not a directory")
	}

	if comp == "." {
		return Dentry{Ino: dirIno, Name: ".", FileType: FileTypeDirectory}, nil
	}
	if comp == ".." {
		parent, err := fs.getParentIno(dirIno)
		if err != nil {
			return Dentry{}, err
		}
		return Dentry{Ino: parent, Name: "..", FileType: FileTypeDirectory}, nil
	}
	if len(comp) > MaxNameLen {
		return Dentry{}, hfserr.ErrInvalidName
	}
	d, _, _, err := fs.findDentry(dirIno, comp)
	return d, err
}

// resolve walks path from root (if absolute) or fs.cwd (if relative) and
// returns the resolved dentry plus the inum of its containing directory.
// If lookup fails on a non-terminal component, ok is false and
// parentIno is meaningless ("missing prefix"); if only the terminal
// component is missing, ok is true so the caller (e.g. creat) can decide
// to create there, while err carries the NotFound.
func (fs *Filesystem) resolve(path string) (dent Dentry, parentIno uint32, ok bool, err error) {
	components := splitPathComponents(path)

	cur := fs.cwd
	if strings.HasPrefix(path, "/") {
		cur = RootIno
	}

	if len(components) == 0 {
		parent, perr := fs.getParentIno(cur)
		if perr != nil {
			return Dentry{}, 0, false, perr
		}
		return Dentry{Ino: cur, Name: ".", FileType: FileTypeDirectory}, parent, true, nil
	}

	for i, comp := range components {
		last := i == len(components)-1
		d, cerr := fs.resolveComponent(cur, comp)
		if cerr != nil {
			if last {
				return Dentry{}, cur, true, cerr
			}
			return Dentry{}, 0, false, cerr
		}
		if last {
			return d, cur, true, nil
		}
		cur = d.Ino
	}
	// unreachable: components is non-empty so the loop always returns.
	return Dentry{}, 0, false, hfserr.ErrNotFound
}

// resolveDir is a convenience wrapper for operations that require the
// result to already be a directory (chdir, readdir, rmdir target).
func (fs *Filesystem) resolveDir(path string) (uint32, error) {
	d, _, ok, err := fs.resolve(path)
	if err != nil {
		_ = ok
		return 0, err
	}
	if fs.inode(d.Ino).Type != TypeDirectory {
		return 0, hfserr.ErrInvalidType.WithMessage("not a directory")
	}
	return d.Ino, nil
}
