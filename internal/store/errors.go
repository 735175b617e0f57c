package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for the open error taxonomy described in the external
// interfaces section. Callers compare with errors.Is.
var (
	ErrDiskIsFull              = errors.New("store: disk is full")
	ErrDiskNotFormatted        = errors.New("store: disk is not formatted")
	ErrAllGenerationsCorrupted = errors.New("store: all generations corrupted")

	// These back the Unwrap method of the correspondingly-named
	// parameterized error struct below, so a caller can check
	// errors.Is(err, store.ErrInvalidChecksum) without caring which page
	// id it happened on.
	ErrInvalidChecksum        = errors.New("store: invalid checksum")
	ErrWrongPageSize          = errors.New("store: wrong page size")
	ErrWrongDiskSize          = errors.New("store: wrong disk size")
	ErrWrongChecksumAlgorithm = errors.New("store: unknown checksum algorithm")
)

// ReadError wraps an underlying I/O failure from a Disk.Read call.
type ReadError struct{ Err error }

func (e *ReadError) Error() string { return fmt.Sprintf("store: read: %v", e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// WriteError wraps an underlying I/O failure from a Disk.Write call.
type WriteError struct{ Err error }

func (e *WriteError) Error() string { return fmt.Sprintf("store: write: %v", e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// InvalidChecksumError reports that a page's stored digest did not match
// its content at the given id.
type InvalidChecksumError struct{ ID PageID }

func (e *InvalidChecksumError) Error() string {
	return fmt.Sprintf("store: invalid checksum on page %d", e.ID)
}
func (e *InvalidChecksumError) Unwrap() error { return ErrInvalidChecksum }

// WrongPageSizeError reports a generation formatted with a page size this
// build was not opened with.
type WrongPageSizeError struct{ Got uint32 }

func (e *WrongPageSizeError) Error() string {
	return fmt.Sprintf("store: wrong page size: got %d", e.Got)
}
func (e *WrongPageSizeError) Unwrap() error { return ErrWrongPageSize }

// WrongDiskSizeError reports a disk whose sector count no longer matches
// the generation that was formatted onto it.
type WrongDiskSizeError struct{ Got uint64 }

func (e *WrongDiskSizeError) Error() string {
	return fmt.Sprintf("store: wrong disk size: got %d sectors", e.Got)
}
func (e *WrongDiskSizeError) Unwrap() error { return ErrWrongDiskSize }

// WrongChecksumAlgorithmError reports a generation whose recorded
// checksum algorithm isn't registered in this build.
type WrongChecksumAlgorithmError struct {
	Name string
	Size int
}

func (e *WrongChecksumAlgorithmError) Error() string {
	return fmt.Sprintf("store: unknown checksum algorithm %q (digest size %d)", e.Name, e.Size)
}
func (e *WrongChecksumAlgorithmError) Unwrap() error { return ErrWrongChecksumAlgorithm }

// fatalf panics with a formatted message. Reserved for programmer errors
// that the type system can't prevent: touching a Freed sector, violating
// the safe_lru re-entrancy guard, or requiring InMemory where a sector is
// OnDisk. Never used for conditions a caller can hit through ordinary,
// correct use of the package.
func fatalf(format string, args ...any) {
	panic(fmt.Sprintf(format, args...))
}
