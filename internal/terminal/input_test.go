package terminal

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLine(t *testing.T) {
	r := NewReader(strings.NewReader("hello world\r\n  padded  \nlast"))

	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "hello world", line)

	// surrounding spaces are kept, trimming belongs to the controller
	line, err = r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "  padded  ", line)

	line, err = r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "last", line)

	_, err = r.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestConfirm(t *testing.T) {
	assert.True(t, NewReader(strings.NewReader("y\n")).Confirm())
	assert.True(t, NewReader(strings.NewReader(" YES \n")).Confirm())
	assert.False(t, NewReader(strings.NewReader("n\n")).Confirm())
	assert.False(t, NewReader(strings.NewReader("\n")).Confirm())
	assert.False(t, NewReader(strings.NewReader("")).Confirm())
}
