package pe

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// GUID is a GUID in the layout Windows stores it: the first three fields
// are little-endian on disk, Data4 is a plain byte string.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// GuidFromWindowsArray constructs a GUID from its 16-byte on-disk encoding.
func GuidFromWindowsArray(b [16]byte) GUID {
	var g GUID
	g.Data1 = binary.LittleEndian.Uint32(b[0:4])
	g.Data2 = binary.LittleEndian.Uint16(b[4:6])
	g.Data3 = binary.LittleEndian.Uint16(b[6:8])
	copy(g.Data4[:], b[8:16])
	return g
}

// ToString formats the GUID like .NET's Guid.ToString. The format can be
// "N" (32 digits), "D" (hyphenated), "B" (hyphenated in braces) or "P"
// (hyphenated in parentheses). An empty format means "D".
func (g GUID) ToString(format string) (string, error) {
	const hyphenated = "%08x-%04x-%04x-%04x-%012x"
	switch format {
	case "", "D":
		return fmt.Sprintf(hyphenated, g.Data1, g.Data2, g.Data3, g.Data4[:2], g.Data4[2:]), nil
	case "N":
		return fmt.Sprintf("%08x%04x%04x%04x%012x", g.Data1, g.Data2, g.Data3, g.Data4[:2], g.Data4[2:]), nil
	case "B":
		return fmt.Sprintf("{"+hyphenated+"}", g.Data1, g.Data2, g.Data3, g.Data4[:2], g.Data4[2:]), nil
	case "P":
		return fmt.Sprintf("("+hyphenated+")", g.Data1, g.Data2, g.Data3, g.Data4[:2], g.Data4[2:]), nil
	}
	return "", errors.Errorf("pe: invalid GUID format %q", format)
}

func (g GUID) String() string {
	s, _ := g.ToString("D")
	return s
}
