package store

import (
	"fmt"
	"sync"
)

// MemDisk is an in-memory Disk, used by tests and by embedders that don't
// need the store to outlive the process. Grounded on the same
// "map/slice-backed Disk implementing the real storage interface" shape
// the teacher uses for its in-memory storage backend, generalized here
// to sector-addressed vectored reads/writes instead of whole-table blobs.
type MemDisk struct {
	mu         sync.Mutex
	sectorSize uint32
	sectors    [][]byte
}

// NewMemDisk allocates a zero-filled in-memory disk of sizeSectors
// sectors, each sectorSize bytes.
func NewMemDisk(sectorSize uint32, sizeSectors uint64) *MemDisk {
	sectors := make([][]byte, sizeSectors)
	for i := range sectors {
		sectors[i] = make([]byte, sectorSize)
	}
	return &MemDisk{sectorSize: sectorSize, sectors: sectors}
}

func (d *MemDisk) Info() DiskInfo {
	return DiskInfo{SectorSize: d.sectorSize, SizeSectors: uint64(len(d.sectors))}
}

func (d *MemDisk) Read(start PageID, buffers [][]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, buf := range buffers {
		idx := int(start) + i
		if idx < 0 || idx >= len(d.sectors) {
			return fmt.Errorf("store: read past end of disk at sector %d", idx)
		}
		copy(buf, d.sectors[idx])
	}
	return nil
}

func (d *MemDisk) Write(start PageID, buffers [][]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, buf := range buffers {
		idx := int(start) + i
		if idx < 0 || idx >= len(d.sectors) {
			return fmt.Errorf("store: write past end of disk at sector %d", idx)
		}
		copy(d.sectors[idx], buf)
	}
	return nil
}
