package pe

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorReads(t *testing.T) {
	data := []byte{
		0x01,
		0x02, 0x03,
		0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
		'a', 'b',
	}
	c := NewCursor(bytes.NewReader(data))

	u8, err := c.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), u8)

	u16, err := c.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0302), u16)

	u32, err := c.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x07060504), u32)

	u64, err := c.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0f0e0d0c0b0a0908), u64)
	assert.Equal(t, int64(15), c.Offset())

	raw, err := c.ReadRaw(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), raw)
	assert.Equal(t, int64(len(data)), c.Offset())
}

func TestCursorTruncated(t *testing.T) {
	c := NewCursor(bytes.NewReader([]byte{0x4d, 0x5a, 0x90}))
	require.NoError(t, c.Seek(1))

	_, err := c.ReadU32()
	assert.True(t, errors.Is(err, ErrTruncated), "ReadU32() error = %v", err)
	assert.Equal(t, int64(1), c.Offset(), "failed read moved the cursor")

	// The cursor is still usable after a failed read.
	v, err := c.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x905a), v)

	_, err = c.ReadU8()
	assert.True(t, errors.Is(err, ErrTruncated), "ReadU8() at end error = %v", err)
}

func TestCursorSeekPastEnd(t *testing.T) {
	c := NewCursor(bytes.NewReader(make([]byte, 4)))
	require.NoError(t, c.Seek(100))
	assert.Equal(t, int64(100), c.Offset())
	_, err := c.ReadU8()
	assert.True(t, errors.Is(err, ErrTruncated), "ReadU8() error = %v", err)
}

func TestCursorSkip(t *testing.T) {
	c := NewCursor(bytes.NewReader([]byte{1, 2, 3, 4, 5}))
	require.NoError(t, c.Skip(3))
	assert.Equal(t, int64(3), c.Offset())

	err := c.Skip(10)
	assert.True(t, errors.Is(err, ErrTruncated), "Skip(10) error = %v", err)
	assert.Equal(t, int64(3), c.Offset())

	v, err := c.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(4), v)
}

func TestCursorReadStruct(t *testing.T) {
	c := NewCursor(bytes.NewReader([]byte{0x00, 0x10, 0, 0, 0x20, 0, 0, 0, 0xff}))
	var dd DataDirectory
	require.NoError(t, c.ReadStruct(&dd))
	assert.Equal(t, DataDirectory{VirtualAddress: 0x1000, Size: 0x20}, dd)

	err := c.ReadStruct(&dd)
	assert.True(t, errors.Is(err, ErrTruncated), "ReadStruct() error = %v", err)
	assert.Equal(t, int64(sizeofDataDirectory), c.Offset())
}
