package rope

import "encoding/binary"

// On-disk node layout (little-endian), identical for leaf and interior
// nodes up to the header; the checksum trailer Context reserves at the
// tail of every page buffer is never touched here.
//
//	offset  size  field
//	0       2     height (0 = leaf)
//	2       2     count (leaf: byte length; interior: number of children)
//	4       ...   leaf: raw bytes
//	                interior: count * {key uint32, child_ptr ptrSize}
const (
	headerOffHeight = 0
	headerOffCount  = 2
	headerSize      = 4

	interiorKeySize = 4
)

func pageHeight(buf []byte) int {
	return int(binary.LittleEndian.Uint16(buf[headerOffHeight:]))
}

func setPageHeight(buf []byte, height int) {
	binary.LittleEndian.PutUint16(buf[headerOffHeight:], uint16(height))
}

func pageCount(buf []byte) int {
	return int(binary.LittleEndian.Uint16(buf[headerOffCount:]))
}

func setPageCount(buf []byte, count int) {
	binary.LittleEndian.PutUint16(buf[headerOffCount:], uint16(count))
}

func interiorEntrySize(ptrSize int) int { return interiorKeySize + ptrSize }

func interiorEntryOffset(i, ptrSize int) int {
	return headerSize + i*interiorEntrySize(ptrSize)
}

func readKey(buf []byte, i, ptrSize int) uint64 {
	off := interiorEntryOffset(i, ptrSize)
	return uint64(binary.LittleEndian.Uint32(buf[off:]))
}

func writeKey(buf []byte, i int, key uint64, ptrSize int) {
	off := interiorEntryOffset(i, ptrSize)
	binary.LittleEndian.PutUint32(buf[off:], uint32(key))
}

func readChildPtr(buf []byte, i, ptrSize int) uint64 {
	off := interiorEntryOffset(i, ptrSize) + interiorKeySize
	switch ptrSize {
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf[off:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf[off:]))
	default:
		return binary.LittleEndian.Uint64(buf[off:])
	}
}

func writeChildPtr(buf []byte, i int, id uint64, ptrSize int) {
	off := interiorEntryOffset(i, ptrSize) + interiorKeySize
	switch ptrSize {
	case 2:
		binary.LittleEndian.PutUint16(buf[off:], uint16(id))
	case 4:
		binary.LittleEndian.PutUint32(buf[off:], uint32(id))
	default:
		binary.LittleEndian.PutUint64(buf[off:], id)
	}
}

// maxChildren returns how many {key, child_ptr} entries fit in an
// interior page of usable size usable (the page size minus the trailing
// checksum digest Context reserves).
func maxChildren(usable, ptrSize int) int {
	n := (usable - headerSize) / interiorEntrySize(ptrSize)
	if n < 1 {
		n = 1
	}
	return n
}

// maxLeafBytes returns how many raw content bytes fit in a leaf page of
// usable size usable.
func maxLeafBytes(usable int) int {
	n := usable - headerSize
	if n < 0 {
		n = 0
	}
	return n
}
