package hfserr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hobbitfs/hfs/hfserr"
)

func TestHFSErrorIsComparableWithErrorsIs(t *testing.T) {
	var err error = hfserr.ErrNotFound
	assert.True(t, errors.Is(err, hfserr.ErrNotFound))
	assert.False(t, errors.Is(err, hfserr.ErrExists))
}

func TestWithMessageRemainsComparableToSentinel(t *testing.T) {
	err := hfserr.ErrInvalidArg.WithMessage("bad fd")
	assert.True(t, errors.Is(err, hfserr.ErrInvalidArg))
	assert.Contains(t, err.Error(), "bad fd")
}

func TestWrapErrorChainsMessage(t *testing.T) {
	inner := errors.New("underlying")
	err := hfserr.ErrAllocFail.WrapError(inner)
	assert.True(t, errors.Is(err, hfserr.ErrAllocFail))
	assert.Contains(t, err.Error(), "underlying")
}

func TestWithMessageChainPreservesKind(t *testing.T) {
	err := hfserr.ErrNotEmpty.WithMessage("first").WithMessage("second")
	assert.True(t, errors.Is(err, hfserr.ErrNotEmpty))
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
}

func TestCodeMapsKnownKinds(t *testing.T) {
	assert.Equal(t, 0, hfserr.Code(nil))
	assert.Greater(t, hfserr.Code(hfserr.ErrNotFound), 0)
	assert.Greater(t, hfserr.Code(hfserr.ErrExists), 0)
	assert.NotEqual(t, hfserr.Code(hfserr.ErrNotFound), hfserr.Code(hfserr.ErrExists))
}

func TestCodeReturnsNegativeOneForUnknownError(t *testing.T) {
	assert.Equal(t, -1, hfserr.Code(errors.New("not in the taxonomy")))
}
