package pe

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DebugType is the kind of debug information a debug directory entry
// points at.
type DebugType uint32

const (
	DebugTypeUnknown              DebugType = 0
	DebugTypeCOFF                 DebugType = 1
	DebugTypeCodeView             DebugType = 2
	DebugTypeFPO                  DebugType = 3
	DebugTypeMisc                 DebugType = 4
	DebugTypeException            DebugType = 5
	DebugTypeFixup                DebugType = 6
	DebugTypeOMAPToSrc            DebugType = 7
	DebugTypeOMAPFromSrc          DebugType = 8
	DebugTypeBorland              DebugType = 9
	DebugTypeReserved10           DebugType = 10
	DebugTypeCLSID                DebugType = 11
	DebugTypeVCFeature            DebugType = 12
	DebugTypePOGO                 DebugType = 13
	DebugTypeILTCG                DebugType = 14
	DebugTypeMPX                  DebugType = 15
	DebugTypeRepro                DebugType = 16
	DebugTypeExDllCharacteristics DebugType = 20
)

var debugTypeNames = map[DebugType]string{
	DebugTypeUnknown:              "Unknown",
	DebugTypeCOFF:                 "COFF",
	DebugTypeCodeView:             "CodeView",
	DebugTypeFPO:                  "FPO",
	DebugTypeMisc:                 "Misc",
	DebugTypeException:            "Exception",
	DebugTypeFixup:                "Fixup",
	DebugTypeOMAPToSrc:            "OMAP to source",
	DebugTypeOMAPFromSrc:          "OMAP from source",
	DebugTypeBorland:              "Borland",
	DebugTypeReserved10:           "Reserved",
	DebugTypeCLSID:                "CLSID",
	DebugTypeVCFeature:            "VC feature",
	DebugTypePOGO:                 "POGO",
	DebugTypeILTCG:                "ILTCG",
	DebugTypeMPX:                  "MPX",
	DebugTypeRepro:                "Repro",
	DebugTypeExDllCharacteristics: "Extended DLL characteristics",
}

func (t DebugType) String() string {
	if name, ok := debugTypeNames[t]; ok {
		return name
	}
	return unknown(uint32(t))
}

// CodeView record signatures.
const (
	cvSignatureRSDS = 0x53445352 // PDB 7.0
	cvSignatureNB10 = 0x3031424E // PDB 2.0
)

// DebugDirectory is one entry of the debug directory.
type DebugDirectory struct {
	Characteristics  uint32
	TimeDateStamp    uint32
	Version          Version
	Type             DebugType
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32

	// CodeView is set for CodeView entries in a known format.
	CodeView *CodeViewInfo
}

func (d *imageDebugDirectory) entry() DebugDirectory {
	return DebugDirectory{
		Characteristics:  d.Characteristics,
		TimeDateStamp:    d.TimeDateStamp,
		Version:          Version{Major: d.MajorVersion, Minor: d.MinorVersion},
		Type:             d.Type,
		SizeOfData:       d.SizeOfData,
		AddressOfRawData: d.AddressOfRawData,
		PointerToRawData: d.PointerToRawData,
	}
}

// CodeViewInfo identifies the PDB file that matches an image.
type CodeViewInfo struct {
	// Signature is "RSDS" or "NB10".
	Signature string
	// GUID is set for RSDS records.
	GUID GUID
	// PDB20Signature is set for NB10 records.
	PDB20Signature uint32
	Age            uint32
	PDBPath        string
}

// PDBName returns the file name part of PDBPath, which is usually a
// Windows path.
func (cv *CodeViewInfo) PDBName() string {
	return cv.PDBPath[strings.LastIndexAny(cv.PDBPath, `\/`)+1:]
}

// SymbolServerPath returns the relative path under which a symbol server
// stores the matching PDB, e.g. "ntdll.pdb/1EB9FACB04EA273BB4BA52C8B8A9C6A11/ntdll.pdb".
func (cv *CodeViewInfo) SymbolServerPath() string {
	var key string
	if cv.Signature == "RSDS" {
		guid, _ := cv.GUID.ToString("N")
		key = strings.ToUpper(guid)
	} else {
		key = fmt.Sprintf("%08X", cv.PDB20Signature)
	}
	key += strings.ToUpper(strconv.FormatUint(uint64(cv.Age), 16))
	name := cv.PDBName()
	return name + "/" + key + "/" + name
}

// DebugDirectories reads the debug directory referenced by the debug data
// directory slot. Images without one yield no entries and no error.
func (p *PEFile) DebugDirectories() ([]DebugDirectory, error) {
	dd, ok := p.DataDirectory(DirectoryDebug)
	if !ok || dd.VirtualAddress == 0 || dd.Size == 0 {
		return nil, nil
	}
	off, err := p.OffsetFromRVA(dd.VirtualAddress)
	if err != nil {
		return nil, errors.WithMessage(err, "locate debug directory")
	}
	raw, err := p.slice(off, dd.Size)
	if err != nil {
		return nil, errors.WithMessage(err, "read debug directory")
	}

	c := NewCursor(bytes.NewReader(raw))
	n := int(dd.Size / sizeofDebugDirectory)
	dirs := make([]DebugDirectory, 0, n)
	for i := 0; i < n; i++ {
		var rec imageDebugDirectory
		if err := c.ReadStruct(&rec); err != nil {
			return nil, errors.WithMessagef(err, "read debug directory entry %d", i)
		}
		d := rec.entry()
		if d.Type == DebugTypeCodeView && d.SizeOfData != 0 {
			d.CodeView, err = p.readCodeView(d)
			if err != nil {
				return nil, errors.WithMessagef(err, "debug directory entry %d", i)
			}
		}
		dirs = append(dirs, d)
	}
	return dirs, nil
}

// CodeView returns the first CodeView record of the image.
func (p *PEFile) CodeView() (*CodeViewInfo, error) {
	dirs, err := p.DebugDirectories()
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		if d.CodeView != nil {
			return d.CodeView, nil
		}
	}
	return nil, errors.Wrap(ErrNotCodeView, "no CodeView debug information")
}

// readCodeView decodes the RSDS or NB10 record a CodeView entry points at.
// Records with another signature yield nil.
func (p *PEFile) readCodeView(d DebugDirectory) (*CodeViewInfo, error) {
	if d.Type != DebugTypeCodeView {
		return nil, errors.Wrapf(ErrNotCodeView, "type is %v", d.Type)
	}
	raw, err := p.slice(int64(d.PointerToRawData), d.SizeOfData)
	if err != nil {
		return nil, errors.WithMessage(err, "read CodeView data")
	}
	c := NewCursor(bytes.NewReader(raw))
	sig, err := c.ReadU32()
	if err != nil {
		return nil, errors.WithMessage(err, "corrupt CodeView data")
	}

	cv := new(CodeViewInfo)
	switch sig {
	case cvSignatureRSDS:
		cv.Signature = "RSDS"
		var guid [16]byte
		if err := c.ReadStruct(&guid); err != nil {
			return nil, errors.WithMessage(err, "corrupt PDB 7.0 data")
		}
		cv.GUID = GuidFromWindowsArray(guid)
	case cvSignatureNB10:
		cv.Signature = "NB10"
		// The offset field is always zero for separate PDB files.
		if err := c.Skip(4); err != nil {
			return nil, errors.WithMessage(err, "corrupt PDB 2.0 data")
		}
		if cv.PDB20Signature, err = c.ReadU32(); err != nil {
			return nil, errors.WithMessage(err, "corrupt PDB 2.0 data")
		}
	default:
		return nil, nil
	}
	if cv.Age, err = c.ReadU32(); err != nil {
		return nil, errors.WithMessagef(err, "corrupt %s data", cv.Signature)
	}
	cv.PDBPath = cString(raw[c.Offset():])
	return cv, nil
}
