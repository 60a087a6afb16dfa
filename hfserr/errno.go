// Package hfserr defines the closed taxonomy of error kinds HFS operations
// can fail with.
package hfserr

import (
	"errors"
	"fmt"
)

// HFSError is a sentinel error kind from the taxonomy an HFS operation can
// fail with. Compare against the exported constants with errors.Is.
type HFSError string

const ErrNotFound = HFSError("no such file or directory")
const ErrExists = HFSError("file exists")
const ErrAllocFail = HFSError("no space left on device")
const ErrInvalidType = HFSError("inappropriate file type for operation")
const ErrInvalidName = HFSError("name too long")
const ErrInvalidArg = HFSError("invalid argument")
const ErrNotEmpty = HFSError("directory not empty")
const ErrSameFile = HFSError("source and destination are the same file")
const ErrNoFd = HFSError("too many open files")

func (e HFSError) Error() string {
	return string(e)
}

func (e HFSError) WithMessage(message string) Error {
	return customError{
		message: fmt.Sprintf("%s: %s", e.Error(), message),
		kind:    e,
	}
}

func (e HFSError) WrapError(err error) Error {
	return customError{
		message: fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		kind:    e,
	}
}

// codes assigns each error kind the small positive integer a POSIX-style
// syscall surface would negate for its return value.
var codes = map[HFSError]int{
	ErrNotFound:    1,
	ErrExists:      2,
	ErrAllocFail:   3,
	ErrInvalidType: 4,
	ErrInvalidName: 5,
	ErrInvalidArg:  6,
	ErrNotEmpty:    7,
	ErrSameFile:    8,
	ErrNoFd:        9,
}

// Code returns the positive error code an HFS syscall negates on return. If
// err is nil, Code returns 0. If err doesn't wrap a known HFSError, Code
// returns -1 so the caller never mistakes it for success.
func Code(err error) int {
	if err == nil {
		return 0
	}
	for kind, code := range codes {
		if errors.Is(err, kind) {
			return code
		}
	}
	return -1
}
