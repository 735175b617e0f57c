package store

import "log"

// FormatOptions configures a fresh device at format time. Unset fields
// take Config's documented defaults.
type FormatOptions struct {
	Config Config
	Logger *log.Logger
}

// Format writes a fresh generation record to a previously unformatted
// disk and returns a Context ready to use. Grounded on OpenPager's
// isNew branch: where the teacher writes a brand new Superblock the
// first time a database file is opened, Format is the core's equivalent
// made an explicit operation of its own rather than an implicit branch
// inside Open, since a caller here chooses format vs. open up front
// instead of inferring it from file size.
func Format(disk Disk, opts FormatOptions) (*Context, error) {
	cfg := opts.Config
	cfg.setDefaults()

	info := disk.Info()
	if cfg.PageSize != info.SectorSize {
		return nil, &WrongPageSizeError{Got: info.SectorSize}
	}
	if info.SizeSectors < FirstAllocatableID.asUint64()+1 {
		return nil, &WrongDiskSizeError{Got: info.SizeSectors}
	}

	checksum, err := resolveChecksumByName(cfg.ChecksumAlgorithm)
	if err != nil {
		return nil, err
	}

	gen := NewGeneration(cfg.PageSize, info.SizeSectors, checksum)
	ids := NewIDSpace(info.SizeSectors)

	buf := make([]byte, cfg.PageSize)
	gen.Marshal(buf)
	if err := disk.Write(SuperblockSlotA, [][]byte{buf}); err != nil {
		return nil, &WriteError{Err: err}
	}
	// Slot B starts out unwritten; Open's fallback logic treats a slot
	// that fails magic/CRC validation as simply "not yet written" on a
	// freshly formatted device, which is indistinguishable from
	// corruption there — that's fine, since only slot A validates here
	// and Open then uses it.

	return newContext(disk, checksum, ids, cfg, gen, SuperblockSlotA, opts.Logger), nil
}

// OpenOptions configures opening an existing, previously formatted disk.
// Config.MaxLRUSize and Config.MinLRUSize may be tuned per process;
// Config.PageSize and Config.ChecksumAlgorithm are ignored here since
// those are fixed at format time and always read back from the
// recovered generation record instead.
type OpenOptions struct {
	Config Config
	Logger *log.Logger
}

// Open reads the two generation slots and recovers the active one.
// Format writes slot A only, and every Checkpoint writes whichever slot
// does not hold the current record, so a crash mid-write leaves at most
// one slot invalid; Open uses the valid slot with the higher sequence
// number, falls back to the other slot when one is invalid, returns
// ErrDiskNotFormatted when both slots are still all zero, and otherwise
// returns ErrAllGenerationsCorrupted if neither validates.
// This mirrors OpenPager's WAL-recovery fallback: try the primary path,
// fall back to the redundant one, fail outright only once both are
// exhausted.
func Open(disk Disk, opts OpenOptions) (*Context, error) {
	info := disk.Info()

	bufA := make([]byte, info.SectorSize)
	bufB := make([]byte, info.SectorSize)
	errA := disk.Read(SuperblockSlotA, [][]byte{bufA})
	errB := disk.Read(SuperblockSlotB, [][]byte{bufB})
	if errA != nil && errB != nil {
		return nil, ErrDiskNotFormatted
	}

	var genA, genB Generation
	var okA, okB bool
	if errA == nil {
		if g, err := UnmarshalGeneration(bufA); err == nil {
			genA, okA = g, true
		}
	}
	if errB == nil {
		if g, err := UnmarshalGeneration(bufB); err == nil {
			genB, okB = g, true
		}
	}

	var gen Generation
	var slot PageID
	switch {
	case okA && okB:
		if genA.Sequence >= genB.Sequence {
			gen, slot = genA, SuperblockSlotA
		} else {
			gen, slot = genB, SuperblockSlotB
		}
	case okA:
		gen, slot = genA, SuperblockSlotA
	case okB:
		gen, slot = genB, SuperblockSlotB
	default:
		// Two slots that are still all zero mean the device was never
		// formatted; any other pair of invalid slots is corruption.
		blank := errA == nil && errB == nil
		for i := 0; blank && i < len(bufA); i++ {
			blank = bufA[i] == 0 && bufB[i] == 0
		}
		if blank {
			return nil, ErrDiskNotFormatted
		}
		return nil, ErrAllGenerationsCorrupted
	}

	if gen.PageSize != info.SectorSize {
		return nil, &WrongPageSizeError{Got: info.SectorSize}
	}
	if gen.NumSectors != info.SizeSectors {
		return nil, &WrongDiskSizeError{Got: info.SizeSectors}
	}
	checksum, err := LookupChecksum(gen.ChecksumAlgorithm, int(gen.ChecksumSize))
	if err != nil {
		return nil, err
	}

	cfg := opts.Config
	cfg.PageSize = gen.PageSize
	cfg.ChecksumAlgorithm = gen.ChecksumAlgorithm
	cfg.setDefaults()

	ids := NewIDSpace(info.SizeSectors)
	ids.restoreNext(gen.AllocNext)

	ctx := newContext(disk, checksum, ids, cfg, gen, slot, opts.Logger)

	if gen.DiscardHead != InvalidID {
		ranges, err := ctx.loadDiscardRanges(gen.DiscardHead)
		if err != nil {
			return nil, err
		}
		for _, r := range ranges {
			ctx.discard.AddRange(r.Start, r.Length)
		}
		if ctx.logger != nil {
			ctx.logger.Printf("store: recovered %d discarded ranges from generation %s", len(ranges), gen.ID)
		}
	}
	if (!okA || !okB) && ctx.logger != nil {
		ctx.logger.Printf("store: opened with one generation slot unrecoverable, continuing from %s", gen.ID)
	}

	return ctx, nil
}

func (id PageID) asUint64() uint64 { return uint64(id) }
