package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProducesFormattedError(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := New(cause).
		Component("sftpconn").
		Category(CategoryDisconnected).
		Code(CodeReconnectFailed).
		Context("host", "sftp.example.com").
		Build()

	assert.Equal(t, "[E01004] sftpconn: connection reset", err.Error())
	assert.Equal(t, CategoryDisconnected, err.Category())
	assert.Equal(t, CodeReconnectFailed, err.Code())
	assert.Equal(t, "sftp.example.com", err.Context()["host"])
}

func TestBuildWithoutCodeOmitsBrackets(t *testing.T) {
	err := New(fmt.Errorf("boom")).Component("catalog").Build()
	assert.Equal(t, "catalog: boom", err.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := New(cause).Component("localstore").Build()

	assert.True(t, errors.Is(err, cause))
}

func TestCategoryOfRecognizesWrappedDispatcherError(t *testing.T) {
	inner := New(fmt.Errorf("gone")).Category(CategoryNoSuchFile).Build()
	wrapped := fmt.Errorf("download failed: %w", inner)

	assert.Equal(t, CategoryNoSuchFile, CategoryOf(wrapped))
	assert.True(t, IsNoSuchFile(wrapped))
	assert.False(t, IsDisconnected(wrapped))
}

func TestCategoryOfDefaultsToOtherForPlainError(t *testing.T) {
	require.Equal(t, CategoryOther, CategoryOf(fmt.Errorf("plain")))
}

func TestContextReturnsACopy(t *testing.T) {
	err := New(fmt.Errorf("x")).Context("a", 1).Build()
	ctx := err.Context()
	ctx["a"] = 2

	assert.Equal(t, 1, err.Context()["a"])
}
