package store

import (
	"errors"
	"testing"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"InvalidChecksumError", &InvalidChecksumError{ID: 7}, ErrInvalidChecksum},
		{"WrongPageSizeError", &WrongPageSizeError{Got: 4096}, ErrWrongPageSize},
		{"WrongDiskSizeError", &WrongDiskSizeError{Got: 100}, ErrWrongDiskSize},
		{"WrongChecksumAlgorithmError", &WrongChecksumAlgorithmError{Name: "x", Size: 4}, ErrWrongChecksumAlgorithm},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if !errors.Is(c.err, c.sentinel) {
				t.Fatalf("errors.Is(%v, sentinel) = false, want true", c.err)
			}
			if c.err.Error() == "" {
				t.Fatalf("Error() returned an empty string")
			}
		})
	}
}

func TestReadWriteErrorsUnwrapToUnderlyingCause(t *testing.T) {
	cause := errors.New("disk on fire")

	readErr := &ReadError{Err: cause}
	if !errors.Is(readErr, cause) {
		t.Fatalf("errors.Is(ReadError, cause) = false, want true")
	}

	writeErr := &WriteError{Err: cause}
	if !errors.Is(writeErr, cause) {
		t.Fatalf("errors.Is(WriteError, cause) = false, want true")
	}
}

func TestFatalfPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("fatalf did not panic")
		}
	}()
	fatalf("boom: %d", 42)
}

func TestUnallocateOfFreedSectorPanics(t *testing.T) {
	ctx := newTestContextT(t, 512, 16, 4, 1)
	e, err := ctx.Allocate(FromRoot)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	ctx.Unallocate(e)

	defer func() {
		if recover() == nil {
			t.Fatalf("double Unallocate did not panic")
		}
	}()
	ctx.Unallocate(e)
}

func TestCstructOnFreedSectorPanics(t *testing.T) {
	ctx := newTestContextT(t, 512, 16, 4, 1)
	e, err := ctx.Allocate(FromRoot)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	ctx.Unallocate(e)

	defer func() {
		if recover() == nil {
			t.Fatalf("Cstruct on a freed sector did not panic")
		}
	}()
	ctx.Cstruct(e)
}
