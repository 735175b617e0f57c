// Generation record layout (little-endian), matching the fixed-offset
// style of the teacher's superblock, but trimmed to what the core itself
// owns — no catalog root or per-transaction ids, since the higher-level
// key-value directory is out of scope here:
//
//	offset  size  field
//	0       8     magic "ROPESTOR"
//	8       4     format version
//	12      4     page size
//	16      8     device size, in sectors
//	24      16    checksum algorithm name (NUL padded)
//	40      4     checksum digest size
//	44      8     directory root id (opaque to the core; an embedder's handle)
//	52      8     allocator high-water mark
//	60      8     discarded-range chain head (SuperblockSlotA/B never appear here)
//	68      8     sequence number
//	76      16    generation id (UUIDv4)
//	92      4     CRC-32C of bytes [0, 92)
//
// The record's own integrity check always uses CRC-32C regardless of the
// Checksum configured for rope pages, since the record is what tells a
// reader which Checksum algorithm to use for everything else — it can't
// depend on itself.
package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"
)

const (
	generationMagic         = "ROPESTOR"
	generationFormatVersion = uint32(1)
	generationRecordSize    = 96

	offMagic         = 0
	offFormatVersion = 8
	offPageSize      = 12
	offNumSectors    = 16
	offChecksumName  = 24
	checksumNameLen  = 16
	offChecksumSize  = 40
	offRootID        = 44
	offAllocNext     = 52
	offDiscardHead   = 60
	offSequence      = 68
	offGenerationID  = 76
	offCRC           = 92
)

// InvalidID marks the absence of a page reference in the generation
// record (an empty discarded-range chain, or a directory not yet rooted).
const InvalidID PageID = ^PageID(0)

// Generation is the core's on-disk superblock: the atomically-swapped
// record that names the current checksum algorithm, page geometry,
// allocator state, and discarded-range chain for one generation of the
// store. A generation swap (Context.Checkpoint) writes a new Generation
// to whichever of the two reserved slots does not hold the current one,
// so a crash mid-write never destroys both.
type Generation struct {
	ID                uuid.UUID
	FormatVersion     uint32
	PageSize          uint32
	NumSectors        uint64
	ChecksumAlgorithm string
	ChecksumSize      uint32
	RootID            PageID
	AllocNext         PageID
	DiscardHead       PageID
	Sequence          uint64
}

// NewGeneration creates the first generation for a freshly formatted
// device.
func NewGeneration(pageSize uint32, numSectors uint64, checksum Checksum) Generation {
	return Generation{
		ID:                uuid.New(),
		FormatVersion:     generationFormatVersion,
		PageSize:          pageSize,
		NumSectors:        numSectors,
		ChecksumAlgorithm: checksum.Name(),
		ChecksumSize:      uint32(checksum.DigestSize()),
		RootID:            InvalidID,
		AllocNext:         FirstAllocatableID,
		DiscardHead:       InvalidID,
		Sequence:          0,
	}
}

// Next derives the generation record for the next checkpoint: same
// identity fields, fresh UUID, bumped sequence, and whatever allocator/
// root/discard state the caller has since observed.
func (g Generation) Next(rootID, allocNext, discardHead PageID) Generation {
	g.ID = uuid.New()
	g.Sequence++
	g.RootID = rootID
	g.AllocNext = allocNext
	g.DiscardHead = discardHead
	return g
}

// Marshal encodes the generation record into a page-sized buffer. buf
// must be at least generationRecordSize bytes; any remainder is zeroed.
func (g Generation) Marshal(buf []byte) {
	if len(buf) < generationRecordSize {
		fatalf("store: generation record buffer too small")
	}
	for i := range buf {
		buf[i] = 0
	}
	copy(buf[offMagic:], generationMagic)
	binary.LittleEndian.PutUint32(buf[offFormatVersion:], g.FormatVersion)
	binary.LittleEndian.PutUint32(buf[offPageSize:], g.PageSize)
	binary.LittleEndian.PutUint64(buf[offNumSectors:], g.NumSectors)
	copy(buf[offChecksumName:offChecksumName+checksumNameLen], g.ChecksumAlgorithm)
	binary.LittleEndian.PutUint32(buf[offChecksumSize:], g.ChecksumSize)
	binary.LittleEndian.PutUint64(buf[offRootID:], uint64(g.RootID))
	binary.LittleEndian.PutUint64(buf[offAllocNext:], uint64(g.AllocNext))
	binary.LittleEndian.PutUint64(buf[offDiscardHead:], uint64(g.DiscardHead))
	binary.LittleEndian.PutUint64(buf[offSequence:], g.Sequence)
	idBytes, _ := g.ID.MarshalBinary()
	copy(buf[offGenerationID:offGenerationID+16], idBytes)
	sum := crc32.Checksum(buf[:offCRC], crc32cTable)
	binary.LittleEndian.PutUint32(buf[offCRC:], sum)
}

// UnmarshalGeneration decodes and validates a generation record. It
// checks the magic, CRC, and format version; callers are responsible for
// comparing PageSize/NumSectors against the device actually opened.
func UnmarshalGeneration(buf []byte) (Generation, error) {
	if len(buf) < generationRecordSize {
		return Generation{}, fmt.Errorf("store: generation record truncated")
	}
	if string(buf[offMagic:offMagic+len(generationMagic)]) != generationMagic {
		return Generation{}, ErrDiskNotFormatted
	}
	wantCRC := binary.LittleEndian.Uint32(buf[offCRC:])
	gotCRC := crc32.Checksum(buf[:offCRC], crc32cTable)
	if wantCRC != gotCRC {
		return Generation{}, &InvalidChecksumError{ID: InvalidID}
	}
	version := binary.LittleEndian.Uint32(buf[offFormatVersion:])
	if version != generationFormatVersion {
		return Generation{}, fmt.Errorf("store: unsupported format version %d", version)
	}
	var g Generation
	g.FormatVersion = version
	g.PageSize = binary.LittleEndian.Uint32(buf[offPageSize:])
	g.NumSectors = binary.LittleEndian.Uint64(buf[offNumSectors:])
	name := buf[offChecksumName : offChecksumName+checksumNameLen]
	end := 0
	for end < len(name) && name[end] != 0 {
		end++
	}
	g.ChecksumAlgorithm = string(name[:end])
	g.ChecksumSize = binary.LittleEndian.Uint32(buf[offChecksumSize:])
	g.RootID = PageID(binary.LittleEndian.Uint64(buf[offRootID:]))
	g.AllocNext = PageID(binary.LittleEndian.Uint64(buf[offAllocNext:]))
	g.DiscardHead = PageID(binary.LittleEndian.Uint64(buf[offDiscardHead:]))
	g.Sequence = binary.LittleEndian.Uint64(buf[offSequence:])
	if err := g.ID.UnmarshalBinary(buf[offGenerationID : offGenerationID+16]); err != nil {
		return Generation{}, fmt.Errorf("store: decode generation id: %w", err)
	}
	return g, nil
}
