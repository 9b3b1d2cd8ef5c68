package pe

import (
	"fmt"
	"time"
)

// Sizes of the fixed on-disk records.
const (
	sizeofFileHeader     = 20
	sizeofDataDirectory  = 8
	sizeofSectionHeader  = 40
	sizeofShortName      = 8
	sizeofDebugDirectory = 28

	// Base layout of the optional header, magic included, up to and
	// including NumberOfRvaAndSizes.
	sizeofOptionalHeader32 = 96
	sizeofOptionalHeader64 = 112
)

// CoffHeader is the COFF file header that follows the "PE\0\0" signature.
type CoffHeader struct {
	Machine              Machine
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      Characteristics
}

// Timestamp returns TimeDateStamp as a UTC time.
func (h CoffHeader) Timestamp() time.Time {
	return time.Unix(int64(h.TimeDateStamp), 0).UTC()
}

// Format identifies the layout of the optional header.
type Format uint16

// Optional header magic values.
const (
	FormatROM      Format = 0x107
	FormatPE32     Format = 0x10b
	FormatPE32Plus Format = 0x20b
)

func (f Format) String() string {
	switch f {
	case FormatPE32:
		return "PE32"
	case FormatPE32Plus:
		return "PE32+"
	case FormatROM:
		return "ROM"
	default:
		return fmt.Sprintf("Unknown (%#x)", uint16(f))
	}
}

// Version is a major/minor version pair.
type Version struct {
	Major uint16
	Minor uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// OptionalHeader is the decoded optional header of either layout.
// Address-width fields are widened to 64 bits; BaseOfData only exists in PE32
// images and is zero for PE32+.
type OptionalHeader struct {
	Format Format

	MajorLinkerVersion      uint8
	MinorLinkerVersion      uint8
	SizeOfCode              uint32
	SizeOfInitializedData   uint32
	SizeOfUninitializedData uint32
	AddressOfEntryPoint     uint32
	BaseOfCode              uint32
	BaseOfData              uint32

	ImageBase              uint64
	SectionAlignment       uint32
	FileAlignment          uint32
	OperatingSystemVersion Version
	ImageVersion           Version
	SubsystemVersion       Version
	Win32VersionValue      uint32
	SizeOfImage            uint32
	SizeOfHeaders          uint32
	CheckSum               uint32
	Subsystem              Subsystem
	DllCharacteristics     DllCharacteristics
	SizeOfStackReserve     uint64
	SizeOfStackCommit      uint64
	SizeOfHeapReserve      uint64
	SizeOfHeapCommit       uint64
	LoaderFlags            uint32
	NumberOfRvaAndSizes    uint32
}

// imageOptionalHeader32 is the PE32 optional header after the magic.
type imageOptionalHeader32 struct {
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	BaseOfData                  uint32
	ImageBase                   uint32
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   Subsystem
	DllCharacteristics          DllCharacteristics
	SizeOfStackReserve          uint32
	SizeOfStackCommit           uint32
	SizeOfHeapReserve           uint32
	SizeOfHeapCommit            uint32
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

func (h *imageOptionalHeader32) header() *OptionalHeader {
	return &OptionalHeader{
		Format:                  FormatPE32,
		MajorLinkerVersion:      h.MajorLinkerVersion,
		MinorLinkerVersion:      h.MinorLinkerVersion,
		SizeOfCode:              h.SizeOfCode,
		SizeOfInitializedData:   h.SizeOfInitializedData,
		SizeOfUninitializedData: h.SizeOfUninitializedData,
		AddressOfEntryPoint:     h.AddressOfEntryPoint,
		BaseOfCode:              h.BaseOfCode,
		BaseOfData:              h.BaseOfData,
		ImageBase:               uint64(h.ImageBase),
		SectionAlignment:        h.SectionAlignment,
		FileAlignment:           h.FileAlignment,
		OperatingSystemVersion:  Version{h.MajorOperatingSystemVersion, h.MinorOperatingSystemVersion},
		ImageVersion:            Version{h.MajorImageVersion, h.MinorImageVersion},
		SubsystemVersion:        Version{h.MajorSubsystemVersion, h.MinorSubsystemVersion},
		Win32VersionValue:       h.Win32VersionValue,
		SizeOfImage:             h.SizeOfImage,
		SizeOfHeaders:           h.SizeOfHeaders,
		CheckSum:                h.CheckSum,
		Subsystem:               h.Subsystem,
		DllCharacteristics:      h.DllCharacteristics,
		SizeOfStackReserve:      uint64(h.SizeOfStackReserve),
		SizeOfStackCommit:       uint64(h.SizeOfStackCommit),
		SizeOfHeapReserve:       uint64(h.SizeOfHeapReserve),
		SizeOfHeapCommit:        uint64(h.SizeOfHeapCommit),
		LoaderFlags:             h.LoaderFlags,
		NumberOfRvaAndSizes:     h.NumberOfRvaAndSizes,
	}
}

// imageOptionalHeader64 is the PE32+ optional header after the magic.
type imageOptionalHeader64 struct {
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   Subsystem
	DllCharacteristics          DllCharacteristics
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

func (h *imageOptionalHeader64) header() *OptionalHeader {
	return &OptionalHeader{
		Format:                  FormatPE32Plus,
		MajorLinkerVersion:      h.MajorLinkerVersion,
		MinorLinkerVersion:      h.MinorLinkerVersion,
		SizeOfCode:              h.SizeOfCode,
		SizeOfInitializedData:   h.SizeOfInitializedData,
		SizeOfUninitializedData: h.SizeOfUninitializedData,
		AddressOfEntryPoint:     h.AddressOfEntryPoint,
		BaseOfCode:              h.BaseOfCode,
		ImageBase:               h.ImageBase,
		SectionAlignment:        h.SectionAlignment,
		FileAlignment:           h.FileAlignment,
		OperatingSystemVersion:  Version{h.MajorOperatingSystemVersion, h.MinorOperatingSystemVersion},
		ImageVersion:            Version{h.MajorImageVersion, h.MinorImageVersion},
		SubsystemVersion:        Version{h.MajorSubsystemVersion, h.MinorSubsystemVersion},
		Win32VersionValue:       h.Win32VersionValue,
		SizeOfImage:             h.SizeOfImage,
		SizeOfHeaders:           h.SizeOfHeaders,
		CheckSum:                h.CheckSum,
		Subsystem:               h.Subsystem,
		DllCharacteristics:      h.DllCharacteristics,
		SizeOfStackReserve:      h.SizeOfStackReserve,
		SizeOfStackCommit:       h.SizeOfStackCommit,
		SizeOfHeapReserve:       h.SizeOfHeapReserve,
		SizeOfHeapCommit:        h.SizeOfHeapCommit,
		LoaderFlags:             h.LoaderFlags,
		NumberOfRvaAndSizes:     h.NumberOfRvaAndSizes,
	}
}

// DataDirectory is one (RVA, size) entry of the optional header's data
// directory table. Its position in the table selects its meaning.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// DirectoryEntry indexes the data directory table.
type DirectoryEntry int

// Well-known data directory slots.
const (
	DirectoryExport DirectoryEntry = iota
	DirectoryImport
	DirectoryResource
	DirectoryException
	DirectorySecurity
	DirectoryBaseReloc
	DirectoryDebug
	DirectoryArchitecture
	DirectoryGlobalPtr
	DirectoryTLS
	DirectoryLoadConfig
	DirectoryBoundImport
	DirectoryIAT
	DirectoryDelayImport
	DirectoryCOMDescriptor
	DirectoryReserved

	numberOfDirectoryEntries = 16
)

var directoryEntryNames = [numberOfDirectoryEntries]string{
	"Export",
	"Import",
	"Resource",
	"Exception",
	"Security",
	"BaseReloc",
	"Debug",
	"Architecture",
	"GlobalPtr",
	"TLS",
	"LoadConfig",
	"BoundImport",
	"IAT",
	"DelayImport",
	"COMDescriptor",
	"Reserved",
}

func (e DirectoryEntry) String() string {
	if e >= 0 && e < numberOfDirectoryEntries {
		return directoryEntryNames[e]
	}
	return fmt.Sprintf("Entry%d", int(e))
}

// imageSectionHeader is the on-disk section table record.
type imageSectionHeader struct {
	Name                 [sizeofShortName]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      SectionCharacteristics
}

// SectionHeader is a decoded section table entry.
type SectionHeader struct {
	// Name is the 8-byte short name up to its first NUL. Names that fill
	// all 8 bytes carry no terminator on disk and are kept whole.
	Name                 string
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      SectionCharacteristics
}

func (h *imageSectionHeader) header() SectionHeader {
	return SectionHeader{
		Name:                 cString(h.Name[:]),
		VirtualSize:          h.VirtualSize,
		VirtualAddress:       h.VirtualAddress,
		SizeOfRawData:        h.SizeOfRawData,
		PointerToRawData:     h.PointerToRawData,
		PointerToRelocations: h.PointerToRelocations,
		PointerToLinenumbers: h.PointerToLinenumbers,
		NumberOfRelocations:  h.NumberOfRelocations,
		NumberOfLinenumbers:  h.NumberOfLinenumbers,
		Characteristics:      h.Characteristics,
	}
}

// Readable reports whether the section is mapped readable.
func (s *SectionHeader) Readable() bool {
	return s.Characteristics&SectionMemRead != 0
}

// Writable reports whether the section is mapped writable.
func (s *SectionHeader) Writable() bool {
	return s.Characteristics&SectionMemWrite != 0
}

// Executable reports whether the section is mapped executable.
func (s *SectionHeader) Executable() bool {
	return s.Characteristics&SectionMemExecute != 0
}

// Permissions returns the protection as an "rwx" string.
func (s *SectionHeader) Permissions() string {
	perm := []byte("---")
	if s.Readable() {
		perm[0] = 'r'
	}
	if s.Writable() {
		perm[1] = 'w'
	}
	if s.Executable() {
		perm[2] = 'x'
	}
	return string(perm)
}

// contains reports whether rva falls inside the section's virtual range.
func (s *SectionHeader) contains(rva uint32) bool {
	size := max(s.VirtualSize, s.SizeOfRawData)
	return rva >= s.VirtualAddress && uint64(rva) < uint64(s.VirtualAddress)+uint64(size)
}

// imageDebugDirectory is one IMAGE_DEBUG_DIRECTORY record.
type imageDebugDirectory struct {
	Characteristics  uint32
	TimeDateStamp    uint32
	MajorVersion     uint16
	MinorVersion     uint16
	Type             DebugType
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32
}
