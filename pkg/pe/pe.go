package pe

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

const (
	dosSignature   = 0x5A4D // MZ
	dosZMSignature = 0x4D5A // ZM
	offsetLfanew   = 0x3C

	ntSignature = 0x00004550 // PE\0\0
	neSignature = 0x454E
	leSignature = 0x454C
	lxSignature = 0x584C
	teSignature = 0x5A56

	// Normal images never have more than this many data directory entries.
	maxNumberOfRvaAndSizes = numberOfDirectoryEntries
	// The Windows loader refuses images with more sections than this.
	maxNumSections = 96
)

// Warning is a non-fatal anomaly found while decoding.
type Warning struct {
	Offset  int64
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%#x: %s", w.Offset, w.Message)
}

// CoffFile is a decoded PE image header: the COFF header, the optional
// header if present, its data directory table and the section table.
// A CoffFile is only ever returned fully decoded and is not modified
// afterwards, so it may be shared between goroutines.
type CoffFile struct {
	coffHeader     CoffHeader
	optionalHeader *OptionalHeader
	dataDirs       []DataDirectory
	sections       []SectionHeader
	warnings       []Warning
}

// Decode decodes the headers of the PE image read from r.
// On failure the returned error wraps one of the Err* values of this package
// and no CoffFile is returned.
func Decode(r io.ReadSeeker) (*CoffFile, error) {
	d := &decoder{c: NewCursor(r)}
	if err := d.readStub(); err != nil {
		return nil, err
	}
	fh, err := d.readCoffHeader()
	if err != nil {
		return nil, err
	}

	f := &CoffFile{coffHeader: fh}
	if fh.SizeOfOptionalHeader != 0 {
		f.optionalHeader, f.dataDirs, err = d.readOptionalHeader(fh.SizeOfOptionalHeader)
		if err != nil {
			return nil, err
		}
	}
	f.sections, err = d.readSectionTable(fh.NumberOfSections)
	if err != nil {
		return nil, err
	}
	d.checkImage(f)
	f.warnings = d.warnings
	return f, nil
}

// DecodeBytes decodes the headers of the PE image held in b.
func DecodeBytes(b []byte) (*CoffFile, error) {
	return Decode(bytes.NewReader(b))
}

type decoder struct {
	c        *Cursor
	warnings []Warning
}

func (d *decoder) warnf(off int64, format string, args ...any) {
	d.warnings = append(d.warnings, Warning{Offset: off, Message: fmt.Sprintf(format, args...)})
}

// readStub checks the DOS stub marker, follows e_lfanew and checks the
// NT headers signature. The cursor is left on the COFF header.
func (d *decoder) readStub() error {
	magic, err := d.c.ReadU16()
	if err != nil {
		return errors.WithMessage(err, "read DOS stub marker")
	}
	switch magic {
	case dosSignature:
	case dosZMSignature:
		return errors.Wrap(ErrInvalidStubMarker, "probably a ZM executable (not a PE file)")
	default:
		return errors.Wrapf(ErrInvalidStubMarker, "found %#04x", magic)
	}

	if err := d.c.Seek(offsetLfanew); err != nil {
		return err
	}
	lfanew, err := d.c.ReadU32()
	if err != nil {
		return errors.WithMessage(err, "read e_lfanew")
	}
	if err := d.c.Seek(int64(lfanew)); err != nil {
		return err
	}
	sig, err := d.c.ReadU32()
	if err != nil {
		return errors.WithMessagef(err, "read NT headers signature at e_lfanew %#x", lfanew)
	}
	if sig == ntSignature {
		return nil
	}
	switch sig & 0xFFFF {
	case neSignature:
		return errors.Wrap(ErrInvalidHeaderSignature, "probably an NE file")
	case leSignature:
		return errors.Wrap(ErrInvalidHeaderSignature, "probably an LE file")
	case lxSignature:
		return errors.Wrap(ErrInvalidHeaderSignature, "probably an LX file")
	case teSignature:
		return errors.Wrap(ErrInvalidHeaderSignature, "probably a TE file")
	}
	return errors.Wrapf(ErrInvalidHeaderSignature, "found %#08x at %#x", sig, lfanew)
}

// readCoffHeader reads the fixed 20-byte COFF header. Its counts are
// checked by the stages that use them.
func (d *decoder) readCoffHeader() (CoffHeader, error) {
	var fh CoffHeader
	if err := d.c.ReadStruct(&fh); err != nil {
		return CoffHeader{}, errors.WithMessage(err, "read COFF header")
	}
	return fh, nil
}

// optionalHeaderLayout is the on-disk shape selected by the optional
// header magic.
type optionalHeaderLayout struct {
	size uint16
	read func(c *Cursor) (*OptionalHeader, error)
}

var optionalHeaderLayouts = map[Format]optionalHeaderLayout{
	FormatPE32:     {sizeofOptionalHeader32, readOptionalHeader32},
	FormatPE32Plus: {sizeofOptionalHeader64, readOptionalHeader64},
}

func readOptionalHeader32(c *Cursor) (*OptionalHeader, error) {
	var raw imageOptionalHeader32
	if err := c.ReadStruct(&raw); err != nil {
		return nil, err
	}
	return raw.header(), nil
}

func readOptionalHeader64(c *Cursor) (*OptionalHeader, error) {
	var raw imageOptionalHeader64
	if err := c.ReadStruct(&raw); err != nil {
		return nil, err
	}
	return raw.header(), nil
}

// readOptionalHeader reads an optional header that declares size bytes,
// followed by its data directory table. On success the cursor is at the
// first byte after the declared size.
func (d *decoder) readOptionalHeader(size uint16) (*OptionalHeader, []DataDirectory, error) {
	magic, err := d.c.ReadU16()
	if err != nil {
		return nil, nil, errors.WithMessage(err, "read optional header magic")
	}
	format := Format(magic)
	layout, ok := optionalHeaderLayouts[format]
	if !ok {
		if format == FormatROM {
			return nil, nil, ErrUnsupportedROM
		}
		return nil, nil, errors.Wrapf(ErrUnknownOptionalHeaderMagic, "found %#04x", magic)
	}
	if size < layout.size {
		return nil, nil, errors.Wrapf(ErrOptionalHeaderTooShort,
			"%v needs at least %d bytes, SizeOfOptionalHeader is %d", format, layout.size, size)
	}

	oh, err := layout.read(d.c)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "read %v optional header", format)
	}

	remaining := uint64(size - layout.size)
	needed := uint64(oh.NumberOfRvaAndSizes) * sizeofDataDirectory
	if remaining < needed {
		return nil, nil, errors.Wrapf(ErrDataDirectoryOverflow,
			"%d entries need %d bytes, %d left", oh.NumberOfRvaAndSizes, needed, remaining)
	}
	if oh.NumberOfRvaAndSizes > maxNumberOfRvaAndSizes {
		d.warnf(d.c.Offset(), "suspicious NumberOfRvaAndSizes %d, normal values are never larger than %d",
			oh.NumberOfRvaAndSizes, maxNumberOfRvaAndSizes)
	}

	dirs := make([]DataDirectory, oh.NumberOfRvaAndSizes)
	if err := d.c.ReadStruct(dirs); err != nil {
		return nil, nil, errors.WithMessage(err, "read data directories")
	}

	if excess := remaining - needed; excess > 0 {
		d.warnf(d.c.Offset(), "%d excess bytes in the optional header; skipping over them", excess)
		if err := d.c.Skip(int64(excess)); err != nil {
			return nil, nil, errors.WithMessage(err, "skip optional header padding")
		}
	}
	return oh, dirs, nil
}

// readSectionTable reads n section headers in file order.
func (d *decoder) readSectionTable(n uint16) ([]SectionHeader, error) {
	if n > maxNumSections {
		d.warnf(d.c.Offset(), "NumberOfSections is %d, the loader accepts at most %d", n, maxNumSections)
	}
	sections := make([]SectionHeader, 0, n)
	for i := 0; i < int(n); i++ {
		var raw imageSectionHeader
		if err := d.c.ReadStruct(&raw); err != nil {
			return nil, errors.WithMessagef(err, "read section header %d of %d", i, n)
		}
		sections = append(sections, raw.header())
	}
	return sections, nil
}

// checkImage records anomalies that do not stop the image from decoding.
func (d *decoder) checkImage(f *CoffFile) {
	oh := f.optionalHeader
	if oh == nil {
		return
	}
	if oh.AddressOfEntryPoint != 0 && oh.AddressOfEntryPoint < oh.SizeOfHeaders {
		d.warnf(0, "AddressOfEntryPoint %#x is smaller than SizeOfHeaders %#x; this file cannot run under Windows 8",
			oh.AddressOfEntryPoint, oh.SizeOfHeaders)
	}
	if oh.FileAlignment > fileAlignmentHardcoded && !PowerOfTwo(oh.FileAlignment) {
		d.warnf(0, "FileAlignment %#x is larger than %#x but not a power of 2", oh.FileAlignment, fileAlignmentHardcoded)
	}
	if PowerOfTwo(oh.SectionAlignment) && AlignUp(oh.SizeOfImage, oh.SectionAlignment) != oh.SizeOfImage {
		d.warnf(0, "SizeOfImage %#x is not a multiple of SectionAlignment %#x", oh.SizeOfImage, oh.SectionAlignment)
	}
}

// CoffHeader returns the COFF file header.
func (f *CoffFile) CoffHeader() CoffHeader {
	return f.coffHeader
}

// Machine returns the target machine type.
func (f *CoffFile) Machine() Machine {
	return f.coffHeader.Machine
}

// NumberOfSections returns the section count declared by the COFF header.
func (f *CoffFile) NumberOfSections() int {
	return int(f.coffHeader.NumberOfSections)
}

// Characteristics returns the COFF header characteristics.
func (f *CoffFile) Characteristics() Characteristics {
	return f.coffHeader.Characteristics
}

// HasOptionalHeader reports whether the image has an optional header.
func (f *CoffFile) HasOptionalHeader() bool {
	return f.optionalHeader != nil
}

// OptionalHeader returns a copy of the optional header, if there is one.
func (f *CoffFile) OptionalHeader() (OptionalHeader, bool) {
	if f.optionalHeader == nil {
		return OptionalHeader{}, false
	}
	return *f.optionalHeader, true
}

// DataDirectories returns the data directory table in file order.
func (f *CoffFile) DataDirectories() []DataDirectory {
	return append([]DataDirectory(nil), f.dataDirs...)
}

// DataDirectory returns the entry in slot e, if the table is that long.
func (f *CoffFile) DataDirectory(e DirectoryEntry) (DataDirectory, bool) {
	if e < 0 || int(e) >= len(f.dataDirs) {
		return DataDirectory{}, false
	}
	return f.dataDirs[e], true
}

// Sections returns the section table in file order.
func (f *CoffFile) Sections() []SectionHeader {
	return append([]SectionHeader(nil), f.sections...)
}

// Section returns the i'th entry of the section table.
func (f *CoffFile) Section(i int) (SectionHeader, error) {
	if i < 0 || i >= len(f.sections) {
		return SectionHeader{}, errors.Wrapf(ErrSectionIndex, "%d (have %d)", i, len(f.sections))
	}
	return f.sections[i], nil
}

// Warnings returns the non-fatal anomalies found while decoding.
func (f *CoffFile) Warnings() []Warning {
	return append([]Warning(nil), f.warnings...)
}
