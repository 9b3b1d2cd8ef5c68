package pe

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Layout produced by imageBuilder.
const (
	testLfanew         = 0x40
	testCoffOffset     = testLfanew + 4
	testOptionalOffset = testCoffOffset + sizeofFileHeader

	// Offsets of header fields patched by tests.
	testSizeOfOptionalHeaderOffset = testCoffOffset + 16
	testNumberOfRvaAndSizes32      = testOptionalOffset + sizeofOptionalHeader32 - 4
)

// imageBuilder assembles a PE image in memory.
type imageBuilder struct {
	machine         Machine
	characteristics Characteristics
	timeDateStamp   uint32

	// format selects the optional header; zero omits it.
	format  Format
	opt32   imageOptionalHeader32
	opt64   imageOptionalHeader64
	dirs    []DataDirectory
	padding int

	sections []imageSectionHeader

	// at places raw bytes at absolute file offsets after the headers.
	at map[int][]byte
}

func newPE32Builder() *imageBuilder {
	return &imageBuilder{
		machine:         MachineI386,
		characteristics: CharExecutableImage | Char32BitMachine,
		timeDateStamp:   0x5DCC5A00,
		format:          FormatPE32,
		opt32: imageOptionalHeader32{
			MajorLinkerVersion:          14,
			AddressOfEntryPoint:         0x1000,
			BaseOfCode:                  0x1000,
			BaseOfData:                  0x2000,
			ImageBase:                   0x400000,
			SectionAlignment:            0x1000,
			FileAlignment:               0x200,
			MajorOperatingSystemVersion: 6,
			MajorSubsystemVersion:       6,
			SizeOfImage:                 0x3000,
			SizeOfHeaders:               0x200,
			Subsystem:                   SubsystemWindowsCUI,
			DllCharacteristics:          DllDynamicBase | DllNXCompat,
			SizeOfStackReserve:          0x100000,
			SizeOfStackCommit:           0x1000,
		},
		dirs: make([]DataDirectory, numberOfDirectoryEntries),
		at:   make(map[int][]byte),
	}
}

func newPE32PlusBuilder() *imageBuilder {
	return &imageBuilder{
		machine:         MachineAMD64,
		characteristics: CharExecutableImage | CharLargeAddressAware,
		format:          FormatPE32Plus,
		opt64: imageOptionalHeader64{
			AddressOfEntryPoint: 0x1000,
			ImageBase:           0x140000000,
			SectionAlignment:    0x1000,
			FileAlignment:       0x200,
			SizeOfImage:         0x3000,
			SizeOfHeaders:       0x400,
			Subsystem:           SubsystemWindowsGUI,
			SizeOfStackReserve:  0x100000,
			SizeOfHeapReserve:   0x100000,
		},
		dirs: make([]DataDirectory, numberOfDirectoryEntries),
		at:   make(map[int][]byte),
	}
}

func newSection(name string, va, vsize, ptr, size uint32, ch SectionCharacteristics) imageSectionHeader {
	s := imageSectionHeader{
		VirtualSize:      vsize,
		VirtualAddress:   va,
		SizeOfRawData:    size,
		PointerToRawData: ptr,
		Characteristics:  ch,
	}
	copy(s.Name[:], name)
	return s
}

func (b *imageBuilder) optionalHeader() []byte {
	if b.format == 0 {
		return nil
	}
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint16(b.format))
	switch b.format {
	case FormatPE32:
		opt := b.opt32
		opt.NumberOfRvaAndSizes = uint32(len(b.dirs))
		binary.Write(buf, binary.LittleEndian, &opt)
	case FormatPE32Plus:
		opt := b.opt64
		opt.NumberOfRvaAndSizes = uint32(len(b.dirs))
		binary.Write(buf, binary.LittleEndian, &opt)
	default:
		// Unknown and ROM magics get a zero body the size of a PE32 header.
		buf.Write(make([]byte, sizeofOptionalHeader32-2))
	}
	binary.Write(buf, binary.LittleEndian, b.dirs)
	buf.Write(make([]byte, b.padding))
	return buf.Bytes()
}

func (b *imageBuilder) bytes() []byte {
	buf := new(bytes.Buffer)
	stub := make([]byte, testLfanew)
	copy(stub, "MZ")
	binary.LittleEndian.PutUint32(stub[offsetLfanew:], testLfanew)
	buf.Write(stub)
	buf.WriteString("PE\x00\x00")

	opt := b.optionalHeader()
	binary.Write(buf, binary.LittleEndian, &CoffHeader{
		Machine:              b.machine,
		NumberOfSections:     uint16(len(b.sections)),
		TimeDateStamp:        b.timeDateStamp,
		SizeOfOptionalHeader: uint16(len(opt)),
		Characteristics:      b.characteristics,
	})
	buf.Write(opt)
	for i := range b.sections {
		binary.Write(buf, binary.LittleEndian, &b.sections[i])
	}

	data := buf.Bytes()
	for off, raw := range b.at {
		if end := off + len(raw); end > len(data) {
			data = append(data, make([]byte, end-len(data))...)
		}
		copy(data[off:], raw)
	}
	return data
}

// writeFile writes the image to a temporary file and returns its path.
func (b *imageBuilder) writeFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.exe")
	if err := os.WriteFile(path, b.bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func putU16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:], v)
}

func putU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}
