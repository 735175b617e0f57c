package store

import "encoding/binary"

// Persisted discarded-range chain page layout (little-endian), one chunk
// of ranges per page, linked like the teacher's free-list pages:
//
//	offset  size  field
//	0       8     next chain page id (InvalidID if this is the last page)
//	8       4     range count in this page
//	12      ...   count * {start uint64, length uint64}
const (
	discardPageOffNext  = 0
	discardPageOffCount = 8
	discardPageOffData  = 12
	discardEntrySize    = 16
)

func discardRangesPerPage(pageSize int) int {
	return (pageSize - discardPageOffData) / discardEntrySize
}

func encodeDiscardPage(buf []byte, next PageID, ranges []Range) {
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint64(buf[discardPageOffNext:], uint64(next))
	binary.LittleEndian.PutUint32(buf[discardPageOffCount:], uint32(len(ranges)))
	off := discardPageOffData
	for _, r := range ranges {
		binary.LittleEndian.PutUint64(buf[off:], uint64(r.Start))
		binary.LittleEndian.PutUint64(buf[off+8:], r.Length)
		off += discardEntrySize
	}
}

func decodeDiscardPage(buf []byte) (next PageID, ranges []Range) {
	next = PageID(binary.LittleEndian.Uint64(buf[discardPageOffNext:]))
	count := int(binary.LittleEndian.Uint32(buf[discardPageOffCount:]))
	ranges = make([]Range, count)
	off := discardPageOffData
	for i := 0; i < count; i++ {
		ranges[i] = Range{
			Start:  PageID(binary.LittleEndian.Uint64(buf[off:])),
			Length: binary.LittleEndian.Uint64(buf[off+8:]),
		}
		off += discardEntrySize
	}
	return next, ranges
}

// chunkRanges splits ranges into groups of at most perPage entries, in
// the order chains are conventionally walked (head first).
func chunkRanges(ranges []Range, perPage int) [][]Range {
	if perPage <= 0 || len(ranges) == 0 {
		return nil
	}
	var chunks [][]Range
	for len(ranges) > 0 {
		n := perPage
		if n > len(ranges) {
			n = len(ranges)
		}
		chunks = append(chunks, ranges[:n])
		ranges = ranges[n:]
	}
	return chunks
}
