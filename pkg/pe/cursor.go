package pe

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// byteOrder is the byte order of every multi-byte field in a PE image.
var byteOrder = binary.LittleEndian

// Cursor is a sequential, bounds-checked reader over a seekable byte source.
// Every successful read advances the position by exactly the width consumed.
// A read that runs off the end of the source fails with ErrTruncated and
// leaves the position where it was.
type Cursor struct {
	r   io.ReadSeeker
	off int64
	buf [8]byte
}

// NewCursor returns a Cursor positioned at the start of r.
func NewCursor(r io.ReadSeeker) *Cursor {
	c := &Cursor{r: r}
	_ = c.Seek(0)
	return c
}

// Offset returns the current absolute position.
func (c *Cursor) Offset() int64 {
	return c.off
}

// Seek moves to an absolute offset. The offset is not checked against the
// length of the source; the next read fails if it runs off the end.
func (c *Cursor) Seek(off int64) error {
	if _, err := c.r.Seek(off, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek to %#x", off)
	}
	c.off = off
	return nil
}

func (c *Cursor) fill(b []byte) error {
	if _, err := io.ReadFull(c.r, b); err != nil {
		// Put the source back so a failed read has no visible effect.
		_, _ = c.r.Seek(c.off, io.SeekStart)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errors.Wrapf(ErrTruncated, "read %d bytes at %#x", len(b), c.off)
		}
		return errors.Wrapf(err, "read %d bytes at %#x", len(b), c.off)
	}
	c.off += int64(len(b))
	return nil
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.fill(c.buf[:1]); err != nil {
		return 0, err
	}
	return c.buf[0], nil
}

// ReadU16 reads a little-endian 16-bit value.
func (c *Cursor) ReadU16() (uint16, error) {
	if err := c.fill(c.buf[:2]); err != nil {
		return 0, err
	}
	return byteOrder.Uint16(c.buf[:2]), nil
}

// ReadU32 reads a little-endian 32-bit value.
func (c *Cursor) ReadU32() (uint32, error) {
	if err := c.fill(c.buf[:4]); err != nil {
		return 0, err
	}
	return byteOrder.Uint32(c.buf[:4]), nil
}

// ReadU64 reads a little-endian 64-bit value.
func (c *Cursor) ReadU64() (uint64, error) {
	if err := c.fill(c.buf[:8]); err != nil {
		return 0, err
	}
	return byteOrder.Uint64(c.buf[:8]), nil
}

// ReadRaw reads exactly n bytes into a new slice.
func (c *Cursor) ReadRaw(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := c.fill(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadStruct decodes a fixed-size value (see encoding/binary) from the
// next binary.Size(v) bytes.
func (c *Cursor) ReadStruct(v any) error {
	n := binary.Size(v)
	if n < 0 {
		return errors.Errorf("pe: cannot decode %T", v)
	}
	b, err := c.ReadRaw(n)
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(b), byteOrder, v)
}

// Skip advances past n bytes, failing with ErrTruncated if fewer remain.
func (c *Cursor) Skip(n int64) error {
	copied, err := io.CopyN(io.Discard, c.r, n)
	if err != nil {
		_, _ = c.r.Seek(c.off, io.SeekStart)
		if err == io.EOF {
			return errors.Wrapf(ErrTruncated, "skip %d bytes at %#x (%d available)", n, c.off, copied)
		}
		return errors.Wrapf(err, "skip %d bytes at %#x", n, c.off)
	}
	c.off += n
	return nil
}
