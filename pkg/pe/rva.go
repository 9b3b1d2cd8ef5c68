package pe

import (
	"github.com/pkg/errors"
)

// SectionByRVA returns the index of the section whose virtual range
// contains rva.
func (f *CoffFile) SectionByRVA(rva uint32) (int, bool) {
	for i := range f.sections {
		if f.sections[i].contains(rva) {
			return i, true
		}
	}
	return -1, false
}

// OffsetFromRVA translates a relative virtual address to a file offset.
// Addresses below the first section lie in the headers, which are mapped
// at their file offsets.
func (f *CoffFile) OffsetFromRVA(rva uint32) (int64, error) {
	i, ok := f.SectionByRVA(rva)
	if !ok {
		if rva < f.lowestSectionRVA() {
			return int64(rva), nil
		}
		return 0, errors.Wrapf(ErrRVANotMapped, "no section contains %#x", rva)
	}
	s := &f.sections[i]
	delta := rva - s.VirtualAddress
	// The tail of a section past its raw data is zero-filled at load time.
	if delta >= s.SizeOfRawData {
		return 0, errors.Wrapf(ErrRVANotMapped, "%#x is past the raw data of section %s", rva, s.Name)
	}
	return int64(f.adjustFileAlignment(s.PointerToRawData)) + int64(delta), nil
}

func (f *CoffFile) lowestSectionRVA() uint32 {
	if len(f.sections) == 0 {
		return ^uint32(0)
	}
	lowest := f.sections[0].VirtualAddress
	for _, s := range f.sections[1:] {
		lowest = min(lowest, s.VirtualAddress)
	}
	return lowest
}

// adjustFileAlignment applies the loader's rounding of raw data pointers.
func (f *CoffFile) adjustFileAlignment(ptr uint32) uint32 {
	if f.optionalHeader == nil || f.optionalHeader.FileAlignment < fileAlignmentHardcoded {
		return ptr
	}
	return AlignDown(ptr, fileAlignmentHardcoded)
}
