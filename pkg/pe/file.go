package pe

import (
	"bytes"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// PEFile is a decoded image backed by a read-only memory mapping of the
// file it was opened from. Call Close to release the mapping.
type PEFile struct {
	*CoffFile

	Filename string
	data     mmap.MMap
}

// Open maps the named file and decodes its headers.
func Open(filename string) (*PEFile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	// Zero-length files cannot be mapped.
	if fi.Size() == 0 {
		return nil, errors.Wrapf(ErrTruncated, "%s is empty", filename)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "map %s", filename)
	}
	cf, err := Decode(bytes.NewReader(data))
	if err != nil {
		_ = data.Unmap()
		return nil, errors.WithMessage(err, filename)
	}
	return &PEFile{CoffFile: cf, Filename: filename, data: data}, nil
}

// Close unmaps the file. The PEFile's decoded headers stay usable, but
// SectionData and DebugDirectories fail afterwards.
func (p *PEFile) Close() error {
	if p.data == nil {
		return nil
	}
	err := p.data.Unmap()
	p.data = nil
	return err
}

// Bytes returns the mapped file contents. The slice is only valid until
// Close and must not be modified.
func (p *PEFile) Bytes() []byte {
	return p.data
}

// SectionData returns the raw bytes of the i'th section as stored in the
// file. The slice aliases the mapping and is only valid until Close.
func (p *PEFile) SectionData(i int) ([]byte, error) {
	s, err := p.Section(i)
	if err != nil {
		return nil, err
	}
	start := uint64(p.adjustFileAlignment(s.PointerToRawData))
	end := start + uint64(s.SizeOfRawData)
	if end > uint64(len(p.data)) {
		return nil, errors.Wrapf(ErrTruncated, "section %d (%s) data at %#x+%#x, file is %#x bytes",
			i, s.Name, start, s.SizeOfRawData, len(p.data))
	}
	return p.data[start:end:end], nil
}

// slice returns size bytes of the file at off.
func (p *PEFile) slice(off int64, size uint32) ([]byte, error) {
	end := uint64(off) + uint64(size)
	if off < 0 || end > uint64(len(p.data)) {
		return nil, errors.Wrapf(ErrTruncated, "%#x bytes at %#x, file is %#x bytes", size, off, len(p.data))
	}
	return p.data[off:end:end], nil
}
