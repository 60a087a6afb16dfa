package hfserr

import "fmt"

// Error is an HFS error kind annotated with operation-specific context. It
// remains comparable to its originating HFSError via errors.Is/errors.As.
type Error interface {
	error
	WithMessage(message string) Error
	WrapError(err error) Error
	Unwrap() error
}

type customError struct {
	message string
	kind    HFSError
}

func (e customError) Error() string {
	return e.message
}

func (e customError) WithMessage(message string) Error {
	return customError{
		message: fmt.Sprintf("%s: %s", e.message, message),
		kind:    e.kind,
	}
}

func (e customError) WrapError(err error) Error {
	return customError{
		message: fmt.Sprintf("%s: %s", e.message, err.Error()),
		kind:    e.kind,
	}
}

func (e customError) Unwrap() error {
	return e.kind
}
