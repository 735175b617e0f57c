//go:build !unix

package store

import "os"

// FileDisk is the portable fallback for non-unix targets: sequential
// ReadAt/WriteAt calls instead of readv/writev. Correct but gives up the
// single-syscall batching disk_unix.go provides.
type FileDisk struct {
	f           *os.File
	sectorSize  uint32
	sizeSectors uint64
}

// OpenFileDisk opens (creating if necessary) a file-backed disk of
// sizeSectors sectors of sectorSize bytes, growing the file if it is
// smaller than that.
func OpenFileDisk(path string, sectorSize uint32, sizeSectors uint64) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	need := int64(sectorSize) * int64(sizeSectors)
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() < need {
		if err := f.Truncate(need); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &FileDisk{f: f, sectorSize: sectorSize, sizeSectors: sizeSectors}, nil
}

func (d *FileDisk) Info() DiskInfo {
	return DiskInfo{SectorSize: d.sectorSize, SizeSectors: d.sizeSectors}
}

// Read and Write return the underlying, unwrapped error (an *os.PathError,
// or io.EOF when ReadAt runs past the end of the file), matching
// MemDisk's contract: Disk implementations hand back opaque errors and
// leave the Read(_)/Write(_) wrapping from spec.md §7 to Context, the
// only caller in this package that invokes Disk directly. Wrapping here
// too would double-wrap every I/O error a caller sees.
func (d *FileDisk) Read(start PageID, buffers [][]byte) error {
	off := int64(start) * int64(d.sectorSize)
	for _, buf := range buffers {
		if _, err := d.f.ReadAt(buf, off); err != nil {
			return err
		}
		off += int64(len(buf))
	}
	return nil
}

func (d *FileDisk) Write(start PageID, buffers [][]byte) error {
	off := int64(start) * int64(d.sectorSize)
	for _, buf := range buffers {
		if _, err := d.f.WriteAt(buf, off); err != nil {
			return err
		}
		off += int64(len(buf))
	}
	return nil
}

// Close closes the underlying file.
func (d *FileDisk) Close() error { return d.f.Close() }
