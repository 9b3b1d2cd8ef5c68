package pe

import (
	"bytes"

	"golang.org/x/exp/constraints"
)

// Raw data pointers in images with at least this FileAlignment are rounded
// down to a multiple of it by the loader.
const fileAlignmentHardcoded = 0x200

// PowerOfTwo reports whether val is a power of 2.
func PowerOfTwo[T constraints.Unsigned](val T) bool {
	return val != 0 && val&(val-1) == 0
}

// AlignDown rounds x down to a multiple of align, which must be a power of 2.
func AlignDown[T constraints.Unsigned](x, align T) T {
	return x &^ (align - 1)
}

// AlignUp rounds x up to a multiple of align, which must be a power of 2.
func AlignUp[T constraints.Unsigned](x, align T) T {
	if x&(align-1) != 0 {
		return AlignDown(x, align) + align
	}
	return x
}

// cString returns b up to its first NUL byte, or all of b if there is none.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
