package pe

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSizes(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want int
	}{
		{"CoffHeader", CoffHeader{}, sizeofFileHeader},
		{"PE32", imageOptionalHeader32{}, sizeofOptionalHeader32 - 2},
		{"PE32+", imageOptionalHeader64{}, sizeofOptionalHeader64 - 2},
		{"DataDirectory", DataDirectory{}, sizeofDataDirectory},
		{"SectionHeader", imageSectionHeader{}, sizeofSectionHeader},
		{"DebugDirectory", imageDebugDirectory{}, sizeofDebugDirectory},
		{"ExportDirectory", imageExportDirectory{}, sizeofExportDirectory},
	}
	for _, test := range tests {
		if got := binary.Size(test.v); got != test.want {
			t.Errorf("binary.Size(%s) = %d; want %d", test.name, got, test.want)
		}
	}
}

func TestDecodePE32(t *testing.T) {
	b := newPE32Builder()
	b.sections = []imageSectionHeader{
		newSection(".text", 0x1000, 0x180, 0x200, 0x200, SectionCntCode|SectionMemExecute|SectionMemRead),
		newSection(".data", 0x2000, 0x80, 0x400, 0x200, SectionCntInitializedData|SectionMemRead|SectionMemWrite),
	}
	b.dirs[DirectoryImport] = DataDirectory{VirtualAddress: 0x2010, Size: 0x28}

	f, err := DecodeBytes(b.bytes())
	require.NoError(t, err)

	wantCoff := CoffHeader{
		Machine:              MachineI386,
		NumberOfSections:     2,
		TimeDateStamp:        0x5DCC5A00,
		SizeOfOptionalHeader: sizeofOptionalHeader32 + numberOfDirectoryEntries*sizeofDataDirectory,
		Characteristics:      CharExecutableImage | Char32BitMachine,
	}
	if diff := cmp.Diff(wantCoff, f.CoffHeader()); diff != "" {
		t.Errorf("CoffHeader() (-want +got):\n%s", diff)
	}

	wantOpt := OptionalHeader{
		Format:                 FormatPE32,
		MajorLinkerVersion:     14,
		AddressOfEntryPoint:    0x1000,
		BaseOfCode:             0x1000,
		BaseOfData:             0x2000,
		ImageBase:              0x400000,
		SectionAlignment:       0x1000,
		FileAlignment:          0x200,
		OperatingSystemVersion: Version{Major: 6},
		SubsystemVersion:       Version{Major: 6},
		SizeOfImage:            0x3000,
		SizeOfHeaders:          0x200,
		Subsystem:              SubsystemWindowsCUI,
		DllCharacteristics:     DllDynamicBase | DllNXCompat,
		SizeOfStackReserve:     0x100000,
		SizeOfStackCommit:      0x1000,
		NumberOfRvaAndSizes:    numberOfDirectoryEntries,
	}
	gotOpt, ok := f.OptionalHeader()
	require.True(t, ok, "OptionalHeader() reported no header")
	if diff := cmp.Diff(wantOpt, gotOpt); diff != "" {
		t.Errorf("OptionalHeader() (-want +got):\n%s", diff)
	}

	dirs := f.DataDirectories()
	assert.Len(t, dirs, numberOfDirectoryEntries)
	imp, ok := f.DataDirectory(DirectoryImport)
	assert.True(t, ok)
	assert.Equal(t, DataDirectory{VirtualAddress: 0x2010, Size: 0x28}, imp)

	wantSections := []SectionHeader{
		{
			Name:             ".text",
			VirtualSize:      0x180,
			VirtualAddress:   0x1000,
			SizeOfRawData:    0x200,
			PointerToRawData: 0x200,
			Characteristics:  SectionCntCode | SectionMemExecute | SectionMemRead,
		},
		{
			Name:             ".data",
			VirtualSize:      0x80,
			VirtualAddress:   0x2000,
			SizeOfRawData:    0x200,
			PointerToRawData: 0x400,
			Characteristics:  SectionCntInitializedData | SectionMemRead | SectionMemWrite,
		},
	}
	if diff := cmp.Diff(wantSections, f.Sections()); diff != "" {
		t.Errorf("Sections() (-want +got):\n%s", diff)
	}
	assert.Empty(t, f.Warnings())
}

func TestDecodePE32Plus(t *testing.T) {
	b := newPE32PlusBuilder()
	b.sections = []imageSectionHeader{
		newSection(".text", 0x1000, 0x100, 0x400, 0x200, SectionCntCode|SectionMemExecute|SectionMemRead),
	}

	f, err := DecodeBytes(b.bytes())
	require.NoError(t, err)

	oh, ok := f.OptionalHeader()
	require.True(t, ok)
	assert.Equal(t, FormatPE32Plus, oh.Format)
	assert.Equal(t, uint64(0x140000000), oh.ImageBase)
	assert.Equal(t, uint64(0x100000), oh.SizeOfHeapReserve)
	assert.Zero(t, oh.BaseOfData)
	assert.Equal(t, MachineAMD64, f.Machine())
	assert.Equal(t, uint16(sizeofOptionalHeader64+numberOfDirectoryEntries*sizeofDataDirectory), f.CoffHeader().SizeOfOptionalHeader)
	require.Equal(t, 1, f.NumberOfSections())
	s, err := f.Section(0)
	require.NoError(t, err)
	assert.Equal(t, ".text", s.Name)
	assert.Empty(t, f.Warnings())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		image func() []byte
		want  error
	}{
		{
			name:  "Empty",
			image: func() []byte { return nil },
			want:  ErrTruncated,
		},
		{
			name:  "OneByte",
			image: func() []byte { return []byte("M") },
			want:  ErrTruncated,
		},
		{
			name:  "BadStubMarker",
			image: func() []byte { return []byte("XX\x00\x00") },
			want:  ErrInvalidStubMarker,
		},
		{
			name:  "ZMMarker",
			image: func() []byte { return []byte("ZM\x00\x00") },
			want:  ErrInvalidStubMarker,
		},
		{
			name: "StubWithoutLfanew",
			image: func() []byte {
				return newPE32Builder().bytes()[:offsetLfanew+2]
			},
			want: ErrTruncated,
		},
		{
			name: "LfanewPastEnd",
			image: func() []byte {
				b := newPE32Builder().bytes()
				putU32(b, offsetLfanew, 0x10000)
				return b
			},
			want: ErrTruncated,
		},
		{
			name: "NESignature",
			image: func() []byte {
				b := newPE32Builder().bytes()
				copy(b[testLfanew:], "NE\x00\x00")
				return b
			},
			want: ErrInvalidHeaderSignature,
		},
		{
			name: "ShortCoffHeader",
			image: func() []byte {
				return newPE32Builder().bytes()[:testCoffOffset+10]
			},
			want: ErrTruncated,
		},
		{
			name: "ROM",
			image: func() []byte {
				b := newPE32Builder()
				b.format = FormatROM
				return b.bytes()
			},
			want: ErrUnsupportedROM,
		},
		{
			name: "UnknownMagic",
			image: func() []byte {
				b := newPE32Builder()
				b.format = 0x999
				return b.bytes()
			},
			want: ErrUnknownOptionalHeaderMagic,
		},
		{
			name: "PE32TooShort",
			image: func() []byte {
				b := newPE32Builder()
				b.dirs = nil
				img := b.bytes()
				putU16(img, testSizeOfOptionalHeaderOffset, sizeofOptionalHeader32-16)
				return img
			},
			want: ErrOptionalHeaderTooShort,
		},
		{
			name: "PE32PlusWithPE32Size",
			image: func() []byte {
				b := newPE32PlusBuilder()
				b.dirs = nil
				b.padding = 8
				img := b.bytes()
				putU16(img, testSizeOfOptionalHeaderOffset, sizeofOptionalHeader32)
				return img
			},
			want: ErrOptionalHeaderTooShort,
		},
		{
			name: "DirectoriesOverflow",
			image: func() []byte {
				b := newPE32Builder()
				b.dirs = make([]DataDirectory, 1)
				img := b.bytes()
				putU32(img, testNumberOfRvaAndSizes32, 2)
				return img
			},
			want: ErrDataDirectoryOverflow,
		},
		{
			name: "HugeDirectoryCount",
			image: func() []byte {
				b := newPE32Builder()
				img := b.bytes()
				putU32(img, testNumberOfRvaAndSizes32, 0xFFFFFFFF)
				return img
			},
			want: ErrDataDirectoryOverflow,
		},
		{
			name: "PaddingPastEnd",
			image: func() []byte {
				b := newPE32Builder()
				img := b.bytes()
				putU16(img, testSizeOfOptionalHeaderOffset, 0xFFFF)
				return img
			},
			want: ErrTruncated,
		},
		{
			name: "ShortSectionTable",
			image: func() []byte {
				b := newPE32Builder()
				b.sections = []imageSectionHeader{newSection(".text", 0x1000, 0x10, 0x200, 0, SectionMemRead)}
				img := b.bytes()
				putU16(img, testCoffOffset+2, 3)
				return img
			},
			want: ErrTruncated,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f, err := DecodeBytes(test.image())
			if !errors.Is(err, test.want) {
				t.Fatalf("DecodeBytes(...) = _, %v; want %v", err, test.want)
			}
			if f != nil {
				t.Errorf("DecodeBytes(...) returned a file alongside error %v", err)
			}
		})
	}
}

func TestDecodeOptionalHeaderPadding(t *testing.T) {
	b := newPE32Builder()
	b.padding = 4
	b.sections = []imageSectionHeader{
		newSection(".text", 0x1000, 0x100, 0x200, 0x200, SectionCntCode|SectionMemExecute|SectionMemRead),
	}

	f, err := DecodeBytes(b.bytes())
	require.NoError(t, err)

	want := []Warning{{
		Offset:  testOptionalOffset + sizeofOptionalHeader32 + numberOfDirectoryEntries*sizeofDataDirectory,
		Message: "4 excess bytes in the optional header; skipping over them",
	}}
	if diff := cmp.Diff(want, f.Warnings()); diff != "" {
		t.Errorf("Warnings() (-want +got):\n%s", diff)
	}
	// The section table starts after the padding.
	s, err := f.Section(0)
	require.NoError(t, err)
	assert.Equal(t, ".text", s.Name)
	assert.Equal(t, uint32(0x1000), s.VirtualAddress)
}

func TestDecodeNoDataDirectories(t *testing.T) {
	b := newPE32Builder()
	b.dirs = nil

	f, err := DecodeBytes(b.bytes())
	require.NoError(t, err)

	assert.Empty(t, f.DataDirectories())
	assert.Zero(t, f.NumberOfSections())
	_, ok := f.DataDirectory(DirectoryExport)
	assert.False(t, ok)
	assert.Empty(t, f.Warnings())
}

func TestDecodeNoOptionalHeader(t *testing.T) {
	b := newPE32Builder()
	b.format = 0
	b.sections = []imageSectionHeader{
		newSection(".text", 0, 0, 0x100, 0x20, SectionCntCode|SectionMemExecute|SectionMemRead),
	}

	f, err := DecodeBytes(b.bytes())
	require.NoError(t, err)

	assert.False(t, f.HasOptionalHeader())
	_, ok := f.OptionalHeader()
	assert.False(t, ok)
	assert.Empty(t, f.DataDirectories())
	s, err := f.Section(0)
	require.NoError(t, err)
	assert.Equal(t, ".text", s.Name)
}

func TestDecodeIsRepeatable(t *testing.T) {
	b := newPE32Builder()
	b.padding = 8
	b.sections = []imageSectionHeader{
		newSection(".text", 0x1000, 0x100, 0x200, 0x200, SectionCntCode|SectionMemExecute|SectionMemRead),
		newSection(".reloc", 0x2000, 0x10, 0x400, 0x200, SectionCntInitializedData|SectionMemDiscardable|SectionMemRead),
	}
	img := b.bytes()

	first, err := DecodeBytes(img)
	require.NoError(t, err)
	second, err := DecodeBytes(img)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second, cmp.AllowUnexported(CoffFile{})); diff != "" {
		t.Errorf("second decode differs (-first +second):\n%s", diff)
	}
}

func TestSectionNames(t *testing.T) {
	b := newPE32Builder()
	b.sections = []imageSectionHeader{
		newSection(".textbss", 0x1000, 0x100, 0, 0, SectionCntUninitializedData|SectionMemRead|SectionMemWrite|SectionMemExecute),
		newSection("a\x00b", 0x2000, 0x100, 0x200, 0x200, SectionMemRead),
		newSection("", 0x3000, 0x100, 0x400, 0x200, SectionMemRead),
	}

	f, err := DecodeBytes(b.bytes())
	require.NoError(t, err)

	var got []string
	for _, s := range f.Sections() {
		got = append(got, s.Name)
	}
	if diff := cmp.Diff([]string{".textbss", "a", ""}, got); diff != "" {
		t.Errorf("section names (-want +got):\n%s", diff)
	}
}

func TestDecodeWarnings(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *imageBuilder)
		want  string
	}{
		{
			name: "TooManyDataDirectories",
			setup: func(b *imageBuilder) {
				b.dirs = make([]DataDirectory, numberOfDirectoryEntries+1)
			},
			want: "suspicious NumberOfRvaAndSizes 17",
		},
		{
			name: "TooManySections",
			setup: func(b *imageBuilder) {
				for i := 0; i < maxNumSections+1; i++ {
					b.sections = append(b.sections, newSection(".s", 0x1000, 0, 0, 0, SectionMemRead))
				}
			},
			want: "NumberOfSections is 97",
		},
		{
			name: "EntryPointInHeaders",
			setup: func(b *imageBuilder) {
				b.opt32.AddressOfEntryPoint = 0x100
			},
			want: "AddressOfEntryPoint 0x100 is smaller than SizeOfHeaders 0x200",
		},
		{
			name: "FileAlignmentNotPowerOfTwo",
			setup: func(b *imageBuilder) {
				b.opt32.FileAlignment = 0x300
			},
			want: "FileAlignment 0x300",
		},
		{
			name: "SizeOfImageUnaligned",
			setup: func(b *imageBuilder) {
				b.opt32.SizeOfImage = 0x3100
			},
			want: "SizeOfImage 0x3100 is not a multiple of SectionAlignment 0x1000",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := newPE32Builder()
			test.setup(b)
			f, err := DecodeBytes(b.bytes())
			require.NoError(t, err)

			warnings := f.Warnings()
			require.Len(t, warnings, 1)
			assert.True(t, strings.HasPrefix(warnings[0].Message, test.want),
				"warning %q does not start with %q", warnings[0].Message, test.want)
		})
	}
}

func TestCoffFileAccessors(t *testing.T) {
	b := newPE32Builder()
	b.sections = []imageSectionHeader{
		newSection(".text", 0x1000, 0x100, 0x200, 0x200, SectionMemRead),
	}
	f, err := DecodeBytes(b.bytes())
	require.NoError(t, err)

	_, err = f.Section(-1)
	assert.True(t, errors.Is(err, ErrSectionIndex), "Section(-1) error = %v", err)
	_, err = f.Section(1)
	assert.True(t, errors.Is(err, ErrSectionIndex), "Section(1) error = %v", err)

	_, ok := f.DataDirectory(DirectoryReserved + 1)
	assert.False(t, ok)
	_, ok = f.DataDirectory(-1)
	assert.False(t, ok)

	// Returned slices are copies.
	sections := f.Sections()
	sections[0].Name = "changed"
	s, err := f.Section(0)
	require.NoError(t, err)
	assert.Equal(t, ".text", s.Name)

	assert.Equal(t, "2019-11-13 19:31:12 +0000 UTC", f.CoffHeader().Timestamp().String())
}

func TestOffsetFromRVA(t *testing.T) {
	b := newPE32Builder()
	b.sections = []imageSectionHeader{
		newSection(".text", 0x1000, 0x300, 0x400, 0x200, SectionCntCode|SectionMemExecute|SectionMemRead),
		newSection(".bss", 0x2000, 0x1000, 0, 0, SectionCntUninitializedData|SectionMemRead|SectionMemWrite),
		// Not aligned to FileAlignment; the loader rounds the pointer down.
		newSection(".rsrc", 0x3000, 0x100, 0x610, 0x200, SectionCntInitializedData|SectionMemRead),
	}
	f, err := DecodeBytes(b.bytes())
	require.NoError(t, err)

	tests := []struct {
		rva     uint32
		want    int64
		section int
	}{
		{rva: 0x10, want: 0x10, section: -1},
		{rva: 0x1000, want: 0x400, section: 0},
		{rva: 0x1010, want: 0x410, section: 0},
		{rva: 0x3004, want: 0x604, section: 2},
	}
	for _, test := range tests {
		got, err := f.OffsetFromRVA(test.rva)
		if err != nil || got != test.want {
			t.Errorf("OffsetFromRVA(%#x) = %#x, %v; want %#x, <nil>", test.rva, got, err, test.want)
		}
		i, ok := f.SectionByRVA(test.rva)
		if i != test.section || ok != (test.section >= 0) {
			t.Errorf("SectionByRVA(%#x) = %d, %t; want %d", test.rva, i, ok, test.section)
		}
	}

	for _, rva := range []uint32{0x1250, 0x2010, 0x5000} {
		if _, err := f.OffsetFromRVA(rva); !errors.Is(err, ErrRVANotMapped) {
			t.Errorf("OffsetFromRVA(%#x) error = %v; want %v", rva, err, ErrRVANotMapped)
		}
	}
}
