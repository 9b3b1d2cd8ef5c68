package pe

import (
	"bytes"

	"github.com/pkg/errors"
)

const (
	sizeofExportDirectory = 40

	// Strings read from the image are cut off at this length. Strings
	// longer than 1MB should be rather rare.
	maxStringLength = 0x100000
)

// imageExportDirectory is the on-disk IMAGE_EXPORT_DIRECTORY.
type imageExportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// ExportDirectory is the decoded export directory of an image.
type ExportDirectory struct {
	TimeDateStamp uint32
	Version       Version
	// Name is the DLL name the image was linked as.
	Name    string
	Base    uint32
	Exports []Export
}

// Export is one exported function or variable.
type Export struct {
	Ordinal uint32
	// Name is empty for exports by ordinal only.
	Name string
	RVA  uint32
	// Forwarder is set instead of a meaningful RVA for forwarded exports,
	// e.g. "NTDLL.RtlAllocateHeap".
	Forwarder string
}

// Exports reads the export directory referenced by the export data
// directory slot. Images without one yield nil and no error.
func (p *PEFile) Exports() (*ExportDirectory, error) {
	dd, ok := p.DataDirectory(DirectoryExport)
	if !ok || dd.VirtualAddress == 0 || dd.Size == 0 {
		return nil, nil
	}
	raw, err := p.sliceRVA(dd.VirtualAddress, 1, sizeofExportDirectory)
	if err != nil {
		return nil, errors.WithMessage(err, "read export directory")
	}
	var ed imageExportDirectory
	if err := NewCursor(bytes.NewReader(raw)).ReadStruct(&ed); err != nil {
		return nil, errors.WithMessage(err, "read export directory")
	}

	dir := &ExportDirectory{
		TimeDateStamp: ed.TimeDateStamp,
		Version:       Version{Major: ed.MajorVersion, Minor: ed.MinorVersion},
		Base:          ed.Base,
	}
	if ed.Name != 0 {
		if dir.Name, err = p.stringAtRVA(ed.Name); err != nil {
			return nil, errors.WithMessage(err, "export directory name")
		}
	}

	funcs, err := p.sliceRVA(ed.AddressOfFunctions, ed.NumberOfFunctions, 4)
	if err != nil {
		return nil, errors.WithMessage(err, "read AddressOfFunctions")
	}
	nameRVAs, err := p.sliceRVA(ed.AddressOfNames, ed.NumberOfNames, 4)
	if err != nil {
		return nil, errors.WithMessage(err, "read AddressOfNames")
	}
	nameOrdinals, err := p.sliceRVA(ed.AddressOfNameOrdinals, ed.NumberOfNames, 2)
	if err != nil {
		return nil, errors.WithMessage(err, "read AddressOfNameOrdinals")
	}

	// Name ordinals index the function table, not the biased ordinal.
	names := make(map[uint32]string, ed.NumberOfNames)
	for i := uint32(0); i < ed.NumberOfNames; i++ {
		idx := uint32(byteOrder.Uint16(nameOrdinals[i*2:]))
		name, err := p.stringAtRVA(byteOrder.Uint32(nameRVAs[i*4:]))
		if err != nil {
			return nil, errors.WithMessagef(err, "export name %d", i)
		}
		names[idx] = name
	}

	for i := uint32(0); i < ed.NumberOfFunctions; i++ {
		addr := byteOrder.Uint32(funcs[i*4:])
		if addr == 0 {
			continue
		}
		exp := Export{Ordinal: ed.Base + i, Name: names[i], RVA: addr}
		// Forwarders point back into the export directory itself.
		if addr >= dd.VirtualAddress && uint64(addr) < uint64(dd.VirtualAddress)+uint64(dd.Size) {
			if exp.Forwarder, err = p.stringAtRVA(addr); err != nil {
				return nil, errors.WithMessagef(err, "forwarder of ordinal %d", exp.Ordinal)
			}
		}
		dir.Exports = append(dir.Exports, exp)
	}
	return dir, nil
}

// sliceRVA returns the bytes of a table of count entries of width bytes
// starting at rva.
func (p *PEFile) sliceRVA(rva, count, width uint32) ([]byte, error) {
	if count == 0 {
		return nil, nil
	}
	size := uint64(count) * uint64(width)
	if size > uint64(len(p.data)) {
		return nil, errors.Wrapf(ErrTruncated, "%d entries at RVA %#x", count, rva)
	}
	off, err := p.OffsetFromRVA(rva)
	if err != nil {
		return nil, err
	}
	return p.slice(off, uint32(size))
}

// stringAtRVA reads a NUL-terminated string starting at rva.
func (p *PEFile) stringAtRVA(rva uint32) (string, error) {
	off, err := p.OffsetFromRVA(rva)
	if err != nil {
		return "", err
	}
	if off >= int64(len(p.data)) {
		return "", errors.Wrapf(ErrTruncated, "string at %#x", off)
	}
	end := min(off+maxStringLength, int64(len(p.data)))
	return cString(p.data[off:end]), nil
}
