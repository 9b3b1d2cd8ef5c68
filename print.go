package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"peview/pkg/pe"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}

func printHeaders(w io.Writer, f *pe.PEFile) error {
	tw := newTabWriter(w)
	fh := f.CoffHeader()
	fmt.Fprintf(tw, "Machine:\t%v\n", fh.Machine)
	fmt.Fprintf(tw, "NumberOfSections:\t%d\n", fh.NumberOfSections)
	fmt.Fprintf(tw, "TimeDateStamp:\t%#08x (%v)\n", fh.TimeDateStamp, fh.Timestamp())
	fmt.Fprintf(tw, "PointerToSymbolTable:\t%#x\n", fh.PointerToSymbolTable)
	fmt.Fprintf(tw, "NumberOfSymbols:\t%d\n", fh.NumberOfSymbols)
	fmt.Fprintf(tw, "SizeOfOptionalHeader:\t%#x\n", fh.SizeOfOptionalHeader)
	fmt.Fprintf(tw, "Characteristics:\t%#04x (%v)\n", uint16(fh.Characteristics), fh.Characteristics)

	oh, ok := f.OptionalHeader()
	if !ok {
		fmt.Fprintf(tw, "\nNo optional header.\n")
		return tw.Flush()
	}
	fmt.Fprintf(tw, "\nMagic:\t%v\n", oh.Format)
	fmt.Fprintf(tw, "LinkerVersion:\t%d.%d\n", oh.MajorLinkerVersion, oh.MinorLinkerVersion)
	fmt.Fprintf(tw, "SizeOfCode:\t%#x\n", oh.SizeOfCode)
	fmt.Fprintf(tw, "SizeOfInitializedData:\t%#x\n", oh.SizeOfInitializedData)
	fmt.Fprintf(tw, "SizeOfUninitializedData:\t%#x\n", oh.SizeOfUninitializedData)
	fmt.Fprintf(tw, "AddressOfEntryPoint:\t%#x\n", oh.AddressOfEntryPoint)
	fmt.Fprintf(tw, "BaseOfCode:\t%#x\n", oh.BaseOfCode)
	if oh.Format == pe.FormatPE32 {
		fmt.Fprintf(tw, "BaseOfData:\t%#x\n", oh.BaseOfData)
	}
	fmt.Fprintf(tw, "ImageBase:\t%#x\n", oh.ImageBase)
	fmt.Fprintf(tw, "SectionAlignment:\t%#x\n", oh.SectionAlignment)
	fmt.Fprintf(tw, "FileAlignment:\t%#x\n", oh.FileAlignment)
	fmt.Fprintf(tw, "OperatingSystemVersion:\t%v\n", oh.OperatingSystemVersion)
	fmt.Fprintf(tw, "ImageVersion:\t%v\n", oh.ImageVersion)
	fmt.Fprintf(tw, "SubsystemVersion:\t%v\n", oh.SubsystemVersion)
	fmt.Fprintf(tw, "Win32VersionValue:\t%#x\n", oh.Win32VersionValue)
	fmt.Fprintf(tw, "SizeOfImage:\t%#x\n", oh.SizeOfImage)
	fmt.Fprintf(tw, "SizeOfHeaders:\t%#x\n", oh.SizeOfHeaders)
	fmt.Fprintf(tw, "CheckSum:\t%#x\n", oh.CheckSum)
	fmt.Fprintf(tw, "Subsystem:\t%v\n", oh.Subsystem)
	fmt.Fprintf(tw, "DllCharacteristics:\t%#04x (%v)\n", uint16(oh.DllCharacteristics), oh.DllCharacteristics)
	fmt.Fprintf(tw, "SizeOfStackReserve:\t%#x\n", oh.SizeOfStackReserve)
	fmt.Fprintf(tw, "SizeOfStackCommit:\t%#x\n", oh.SizeOfStackCommit)
	fmt.Fprintf(tw, "SizeOfHeapReserve:\t%#x\n", oh.SizeOfHeapReserve)
	fmt.Fprintf(tw, "SizeOfHeapCommit:\t%#x\n", oh.SizeOfHeapCommit)
	fmt.Fprintf(tw, "LoaderFlags:\t%#x\n", oh.LoaderFlags)
	fmt.Fprintf(tw, "NumberOfRvaAndSizes:\t%d\n", oh.NumberOfRvaAndSizes)
	return tw.Flush()
}

func printSections(w io.Writer, f *pe.PEFile) error {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "#\tName\tVirtAddr\tVirtSize\tRawPtr\tRawSize\tPerm\tAlign\tCharacteristics")
	for i, s := range f.Sections() {
		fmt.Fprintf(tw, "%d\t%s\t%#08x\t%#x\t%#x\t%#x\t%s\t%d\t%v\n",
			i, s.Name, s.VirtualAddress, s.VirtualSize, s.PointerToRawData, s.SizeOfRawData,
			s.Permissions(), s.Characteristics.Alignment(), s.Characteristics)
	}
	return tw.Flush()
}

func printDirectories(w io.Writer, f *pe.PEFile) error {
	tw := newTabWriter(w)
	sections := f.Sections()
	fmt.Fprintln(tw, "Slot\tName\tRVA\tSize\tSection")
	for i, d := range f.DataDirectories() {
		section := "-"
		if j, ok := f.SectionByRVA(d.VirtualAddress); ok && d.VirtualAddress != 0 {
			section = sections[j].Name
		}
		fmt.Fprintf(tw, "%d\t%v\t%#x\t%#x\t%s\n", i, pe.DirectoryEntry(i), d.VirtualAddress, d.Size, section)
	}
	return tw.Flush()
}

func printDebug(w io.Writer, f *pe.PEFile) error {
	dirs, err := f.DebugDirectories()
	if err != nil {
		return err
	}
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "Type\tVersion\tSize\tRVA\tPointer")
	for _, d := range dirs {
		fmt.Fprintf(tw, "%v\t%v\t%#x\t%#x\t%#x\n", d.Type, d.Version, d.SizeOfData, d.AddressOfRawData, d.PointerToRawData)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, d := range dirs {
		cv := d.CodeView
		if cv == nil {
			continue
		}
		fmt.Fprintf(tw, "\n%s:\t%s\n", cv.Signature, cv.PDBPath)
		if cv.Signature == "RSDS" {
			guid, err := cv.GUID.ToString("B")
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "GUID:\t%s\n", guid)
		} else {
			fmt.Fprintf(tw, "Signature:\t%#08x\n", cv.PDB20Signature)
		}
		fmt.Fprintf(tw, "Age:\t%d\n", cv.Age)
		fmt.Fprintf(tw, "Symbol server path:\t%s\n", cv.SymbolServerPath())
	}
	return tw.Flush()
}

func printExports(w io.Writer, f *pe.PEFile) error {
	dir, err := f.Exports()
	if err != nil {
		return err
	}
	if dir == nil {
		_, err := fmt.Fprintln(w, "No export directory.")
		return err
	}
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Name:\t%s\n", dir.Name)
	fmt.Fprintf(tw, "Version:\t%v\n", dir.Version)
	fmt.Fprintf(tw, "Base:\t%d\n\n", dir.Base)
	fmt.Fprintln(tw, "Ordinal\tRVA\tName")
	for _, e := range dir.Exports {
		name := e.Name
		if e.Forwarder != "" {
			name += " -> " + e.Forwarder
		}
		fmt.Fprintf(tw, "%d\t%#08x\t%s\n", e.Ordinal, e.RVA, name)
	}
	return tw.Flush()
}
