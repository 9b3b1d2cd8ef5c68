package pe

import (
	"github.com/pkg/errors"
)

// Decode failures. Every error returned by Decode wraps exactly one of these,
// so callers classify with errors.Is.
var (
	// ErrTruncated is returned when a read needs more bytes than the source has left.
	ErrTruncated = errors.New("pe: unexpected end of input")

	ErrInvalidStubMarker      = errors.New("pe: invalid DOS stub marker")
	ErrInvalidHeaderSignature = errors.New("pe: invalid NT headers signature")

	// ErrUnsupportedROM is returned for optional headers carrying the ROM magic.
	ErrUnsupportedROM = errors.New("pe: ROM images are not supported")

	ErrUnknownOptionalHeaderMagic = errors.New("pe: unknown optional header magic")
	ErrOptionalHeaderTooShort     = errors.New("pe: optional header is too short")

	// ErrDataDirectoryOverflow is returned when NumberOfRvaAndSizes does not
	// fit into the declared optional header size.
	ErrDataDirectoryOverflow = errors.New("pe: data directory entries exceed optional header size")
)

// Errors returned by the accessors on decoded images.
var (
	ErrSectionIndex = errors.New("pe: section index out of range")
	ErrRVANotMapped = errors.New("pe: RVA is not backed by the file")
	ErrNotCodeView  = errors.New("pe: debug directory entry is not CodeView")
)
