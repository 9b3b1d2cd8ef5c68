package pe

import (
	"fmt"
	"strings"

	"golang.org/x/exp/constraints"
)

// FlagName pairs a bit mask with its label.
type FlagName[T constraints.Unsigned] struct {
	Mask T
	Name string
}

// DescribeFlags returns the labels of every entry in table whose bits are
// all set in v, joined with " | " in table order.
func DescribeFlags[T constraints.Unsigned](v T, table []FlagName[T]) string {
	var names []string
	for _, f := range table {
		if f.Mask != 0 && v&f.Mask == f.Mask {
			names = append(names, f.Name)
		}
	}
	return strings.Join(names, " | ")
}

func unknown[T constraints.Unsigned](v T) string {
	return fmt.Sprintf("Unknown (%#x)", uint64(v))
}

// Machine is the target architecture of an image.
// Values outside the known set are kept as-is.
type Machine uint16

// Known machine types.
const (
	MachineUnknown   Machine = 0x0
	MachineAM33      Machine = 0x1d3
	MachineAMD64     Machine = 0x8664
	MachineARM       Machine = 0x1c0
	MachineARM64     Machine = 0xaa64
	MachineARMNT     Machine = 0x1c4
	MachineEBC       Machine = 0xebc
	MachineI386      Machine = 0x14c
	MachineIA64      Machine = 0x200
	MachineM32R      Machine = 0x9041
	MachineMIPS16    Machine = 0x266
	MachineMIPSFPU   Machine = 0x366
	MachineMIPSFPU16 Machine = 0x466
	MachinePowerPC   Machine = 0x1f0
	MachinePowerPCFP Machine = 0x1f1
	MachineR4000     Machine = 0x166
	MachineRISCV32   Machine = 0x5032
	MachineRISCV64   Machine = 0x5064
	MachineRISCV128  Machine = 0x5128
	MachineSH3       Machine = 0x1a2
	MachineSH3DSP    Machine = 0x1a3
	MachineSH4       Machine = 0x1a6
	MachineSH5       Machine = 0x1a8
	MachineThumb     Machine = 0x1c2
	MachineWCEMIPSv2 Machine = 0x169
)

var machineNames = map[Machine]string{
	MachineUnknown:   "Unknown",
	MachineAM33:      "Matsushita AM33",
	MachineAMD64:     "amd64",
	MachineARM:       "ARM little endian",
	MachineARM64:     "ARM64 little endian",
	MachineARMNT:     "ARM Thumb-2 little endian",
	MachineEBC:       "EFI byte code",
	MachineI386:      "Intel 386",
	MachineIA64:      "Intel Itanium",
	MachineM32R:      "Mitsubishi M32R little endian",
	MachineMIPS16:    "MIPS16",
	MachineMIPSFPU:   "MIPS with FPU",
	MachineMIPSFPU16: "MIPS16 with FPU",
	MachinePowerPC:   "Power PC little endian",
	MachinePowerPCFP: "Power PC with floating point support",
	MachineR4000:     "MIPS little endian",
	MachineRISCV32:   "RISC-V 32-bit",
	MachineRISCV64:   "RISC-V 64-bit",
	MachineRISCV128:  "RISC-V 128-bit",
	MachineSH3:       "Hitachi SH3",
	MachineSH3DSP:    "Hitachi SH3 DSP",
	MachineSH4:       "Hitachi SH4",
	MachineSH5:       "Hitachi SH5",
	MachineThumb:     "Thumb",
	MachineWCEMIPSv2: "MIPS little-endian WCE v2",
}

// Known reports whether m is one of the machine types listed above.
func (m Machine) Known() bool {
	_, ok := machineNames[m]
	return ok
}

func (m Machine) String() string {
	if name, ok := machineNames[m]; ok {
		return name
	}
	return unknown(uint16(m))
}

// Characteristics is the COFF header characteristics bit mask.
type Characteristics uint16

// COFF header characteristics.
const (
	CharRelocsStripped       Characteristics = 0x0001
	CharExecutableImage      Characteristics = 0x0002
	CharLineNumsStripped     Characteristics = 0x0004
	CharLocalSymsStripped    Characteristics = 0x0008
	CharAggressiveWSTrim     Characteristics = 0x0010
	CharLargeAddressAware    Characteristics = 0x0020
	CharBytesReversedLo      Characteristics = 0x0080
	Char32BitMachine         Characteristics = 0x0100
	CharDebugStripped        Characteristics = 0x0200
	CharRemovableRunFromSwap Characteristics = 0x0400
	CharNetRunFromSwap       Characteristics = 0x0800
	CharSystem               Characteristics = 0x1000
	CharDLL                  Characteristics = 0x2000
	CharUPSystemOnly         Characteristics = 0x4000
	CharBytesReversedHi      Characteristics = 0x8000
)

var characteristicsNames = []FlagName[Characteristics]{
	{CharRelocsStripped, "RELOCS_STRIPPED"},
	{CharExecutableImage, "EXECUTABLE_IMAGE"},
	{CharLineNumsStripped, "LINE_NUMS_STRIPPED"},
	{CharLocalSymsStripped, "LOCAL_SYMS_STRIPPED"},
	{CharAggressiveWSTrim, "AGGRESSIVE_WS_TRIM"},
	{CharLargeAddressAware, "LARGE_ADDRESS_AWARE"},
	{CharBytesReversedLo, "BYTES_REVERSED_LO"},
	{Char32BitMachine, "32BIT_MACHINE"},
	{CharDebugStripped, "DEBUG_STRIPPED"},
	{CharRemovableRunFromSwap, "REMOVABLE_RUN_FROM_SWAP"},
	{CharNetRunFromSwap, "NET_RUN_FROM_SWAP"},
	{CharSystem, "SYSTEM"},
	{CharDLL, "DLL"},
	{CharUPSystemOnly, "UP_SYSTEM_ONLY"},
	{CharBytesReversedHi, "BYTES_REVERSED_HI"},
}

func (c Characteristics) String() string {
	return DescribeFlags(c, characteristicsNames)
}

// Subsystem is the subsystem required to run an image.
type Subsystem uint16

// Known subsystems.
const (
	SubsystemUnknown                Subsystem = 0
	SubsystemNative                 Subsystem = 1
	SubsystemWindowsGUI             Subsystem = 2
	SubsystemWindowsCUI             Subsystem = 3
	SubsystemOS2CUI                 Subsystem = 5
	SubsystemPOSIXCUI               Subsystem = 7
	SubsystemNativeWindows          Subsystem = 8
	SubsystemWindowsCEGUI           Subsystem = 9
	SubsystemEFIApplication         Subsystem = 10
	SubsystemEFIBootServiceDriver   Subsystem = 11
	SubsystemEFIRuntimeDriver       Subsystem = 12
	SubsystemEFIROM                 Subsystem = 13
	SubsystemXBOX                   Subsystem = 14
	SubsystemWindowsBootApplication Subsystem = 16
)

var subsystemNames = map[Subsystem]string{
	SubsystemUnknown:                "Unknown",
	SubsystemNative:                 "Native",
	SubsystemWindowsGUI:             "Windows GUI",
	SubsystemWindowsCUI:             "Windows character subsystem",
	SubsystemOS2CUI:                 "OS/2 character subsystem",
	SubsystemPOSIXCUI:               "Posix character subsystem",
	SubsystemNativeWindows:          "Native Win9x driver",
	SubsystemWindowsCEGUI:           "Windows CE",
	SubsystemEFIApplication:         "EFI application",
	SubsystemEFIBootServiceDriver:   "EFI boot service driver",
	SubsystemEFIRuntimeDriver:       "EFI runtime driver",
	SubsystemEFIROM:                 "EFI ROM image",
	SubsystemXBOX:                   "XBOX",
	SubsystemWindowsBootApplication: "Windows boot application",
}

// Known reports whether s is one of the subsystems listed above.
func (s Subsystem) Known() bool {
	_, ok := subsystemNames[s]
	return ok
}

func (s Subsystem) String() string {
	if name, ok := subsystemNames[s]; ok {
		return name
	}
	return unknown(uint16(s))
}

// DllCharacteristics is the optional header DLL characteristics bit mask.
type DllCharacteristics uint16

// DLL characteristics.
const (
	DllHighEntropyVA       DllCharacteristics = 0x0020
	DllDynamicBase         DllCharacteristics = 0x0040
	DllForceIntegrity      DllCharacteristics = 0x0080
	DllNXCompat            DllCharacteristics = 0x0100
	DllNoIsolation         DllCharacteristics = 0x0200
	DllNoSEH               DllCharacteristics = 0x0400
	DllNoBind              DllCharacteristics = 0x0800
	DllAppContainer        DllCharacteristics = 0x1000
	DllWDMDriver           DllCharacteristics = 0x2000
	DllGuardCF             DllCharacteristics = 0x4000
	DllTerminalServerAware DllCharacteristics = 0x8000
)

var dllCharacteristicsNames = []FlagName[DllCharacteristics]{
	{DllHighEntropyVA, "HIGH_ENTROPY_VA"},
	{DllDynamicBase, "DYNAMIC_BASE"},
	{DllForceIntegrity, "FORCE_INTEGRITY"},
	{DllNXCompat, "NX_COMPAT"},
	{DllNoIsolation, "NO_ISOLATION"},
	{DllNoSEH, "NO_SEH"},
	{DllNoBind, "NO_BIND"},
	{DllAppContainer, "APPCONTAINER"},
	{DllWDMDriver, "WDM_DRIVER"},
	{DllGuardCF, "GUARD_CF"},
	{DllTerminalServerAware, "TERMINAL_SERVER_AWARE"},
}

func (c DllCharacteristics) String() string {
	return DescribeFlags(c, dllCharacteristicsNames)
}

// SectionCharacteristics is the section header characteristics field.
// Most bits are independent flags; bits 20-23 hold the alignment code
// and must be read with Alignment.
type SectionCharacteristics uint32

// Section characteristics.
const (
	SectionTypeNoPad            SectionCharacteristics = 0x00000008
	SectionCntCode              SectionCharacteristics = 0x00000020
	SectionCntInitializedData   SectionCharacteristics = 0x00000040
	SectionCntUninitializedData SectionCharacteristics = 0x00000080
	SectionLnkOther             SectionCharacteristics = 0x00000100
	SectionLnkInfo              SectionCharacteristics = 0x00000200
	SectionLnkRemove            SectionCharacteristics = 0x00000800
	SectionLnkComdat            SectionCharacteristics = 0x00001000
	SectionGPRel                SectionCharacteristics = 0x00008000
	SectionMemPurgeable         SectionCharacteristics = 0x00020000
	SectionMemLocked            SectionCharacteristics = 0x00040000
	SectionMemPreload           SectionCharacteristics = 0x00080000
	SectionAlignMask            SectionCharacteristics = 0x00F00000
	SectionLnkNRelocOvfl        SectionCharacteristics = 0x01000000
	SectionMemDiscardable       SectionCharacteristics = 0x02000000
	SectionMemNotCached         SectionCharacteristics = 0x04000000
	SectionMemNotPaged          SectionCharacteristics = 0x08000000
	SectionMemShared            SectionCharacteristics = 0x10000000
	SectionMemExecute           SectionCharacteristics = 0x20000000
	SectionMemRead              SectionCharacteristics = 0x40000000
	SectionMemWrite             SectionCharacteristics = 0x80000000

	sectionAlignShift = 20
)

var sectionCharacteristicsNames = []FlagName[SectionCharacteristics]{
	{SectionTypeNoPad, "TYPE_NO_PAD"},
	{SectionCntCode, "CNT_CODE"},
	{SectionCntInitializedData, "CNT_INITIALIZED_DATA"},
	{SectionCntUninitializedData, "CNT_UNINITIALIZED_DATA"},
	{SectionLnkOther, "LNK_OTHER"},
	{SectionLnkInfo, "LNK_INFO"},
	{SectionLnkRemove, "LNK_REMOVE"},
	{SectionLnkComdat, "LNK_COMDAT"},
	{SectionGPRel, "GPREL"},
	{SectionMemPurgeable, "MEM_PURGEABLE"},
	{SectionMemLocked, "MEM_LOCKED"},
	{SectionMemPreload, "MEM_PRELOAD"},
	{SectionLnkNRelocOvfl, "LNK_NRELOC_OVFL"},
	{SectionMemDiscardable, "MEM_DISCARDABLE"},
	{SectionMemNotCached, "MEM_NOT_CACHED"},
	{SectionMemNotPaged, "MEM_NOT_PAGED"},
	{SectionMemShared, "MEM_SHARED"},
	{SectionMemExecute, "MEM_EXECUTE"},
	{SectionMemRead, "MEM_READ"},
	{SectionMemWrite, "MEM_WRITE"},
}

// Alignment returns the data alignment in bytes encoded in bits 20-23,
// or 0 if none is given. Codes 1 through 14 select 1 << (code-1) bytes;
// code 15 is undefined and also yields 0.
func (c SectionCharacteristics) Alignment() uint32 {
	code := uint32(c&SectionAlignMask) >> sectionAlignShift
	if code == 0 || code > 14 {
		return 0
	}
	return 1 << (code - 1)
}

func (c SectionCharacteristics) String() string {
	const belowAlign = 1<<sectionAlignShift - 1
	below := c & belowAlign
	above := c &^ (SectionAlignMask | belowAlign)
	var align string
	if a := c.Alignment(); a != 0 {
		align = fmt.Sprintf("ALIGN_%dBYTES", a)
	}
	return joinNonEmpty(
		DescribeFlags(below, sectionCharacteristicsNames),
		align,
		DescribeFlags(above, sectionCharacteristicsNames),
	)
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " | ")
}
