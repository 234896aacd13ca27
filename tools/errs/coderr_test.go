package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeError_Error(t *testing.T) {
	assert.Equal(t, "[1201] send failure", ErrSendFailure.Error())
	assert.Equal(t, "[1201] send failure: roomId=r1",
		ErrSendFailure.WithDetail("roomId=r1").Error())
}

func TestWrapMsgKeepsCodeAndSentinel(t *testing.T) {
	err := ErrFetchFailure.WrapMsg("history request", "roomId", "r1")
	require.Error(t, err)

	assert.Equal(t, CodeFetchFailure, Code(err))
	assert.True(t, IsCode(err, CodeFetchFailure))
	assert.True(t, errors.Is(err, ErrFetchFailure))
	assert.Contains(t, err.Error(), "roomId=r1")
}

func TestWrapMsgDoesNotMutateSentinel(t *testing.T) {
	_ = ErrSendFailure.WrapMsg("first", "a", 1)
	_ = ErrSendFailure.WrapMsg("second", "b", 2)
	assert.Equal(t, "[1201] send failure", ErrSendFailure.Error())
}

func TestCodeWalksWrapChain(t *testing.T) {
	inner := ErrAuthFailure.Wrap()
	outer := fmt.Errorf("dial: %w", inner)
	assert.Equal(t, CodeAuthFailure, Code(outer))
	assert.True(t, errors.Is(outer, ErrAuthFailure))
}

func TestCodeOnForeignError(t *testing.T) {
	assert.Equal(t, 0, Code(errors.New("plain")))
	assert.False(t, IsCode(nil, CodeInternal))
}

func TestErrPanic(t *testing.T) {
	assert.NoError(t, ErrPanic(nil))

	err := ErrPanic("index out of range")
	require.Error(t, err)
	assert.Equal(t, CodeInternal, Code(err))
	assert.Contains(t, err.Error(), "index out of range")
}
