package store

import "testing"

func TestCRC32CRoundTrip(t *testing.T) {
	c := CRC32CChecksum{}
	data := []byte("some page content")
	d1 := c.Compute(data)
	d2 := c.Compute(data)
	if string(d1) != string(d2) {
		t.Fatalf("Compute is not deterministic")
	}
	if len(d1) != c.DigestSize() {
		t.Fatalf("Compute returned %d bytes, DigestSize() says %d", len(d1), c.DigestSize())
	}
}

func TestFNV1a32DiffersFromCRC32C(t *testing.T) {
	data := []byte("some page content")
	a := CRC32CChecksum{}.Compute(data)
	b := FNV1a32Checksum{}.Compute(data)
	if string(a) == string(b) {
		t.Fatalf("two different checksum algorithms produced the same digest (unlikely but check inputs)")
	}
}

func TestLookupChecksumUnknownName(t *testing.T) {
	if _, err := LookupChecksum("does-not-exist", 4); err == nil {
		t.Fatalf("expected an error looking up an unregistered checksum algorithm")
	}
}

func TestLookupChecksumSizeMismatch(t *testing.T) {
	if _, err := LookupChecksum("crc32c", 8); err == nil {
		t.Fatalf("expected an error when the recorded digest size doesn't match")
	}
}

func TestRegisterChecksumMakesItLookupable(t *testing.T) {
	RegisterChecksum("test-null", func() Checksum { return nullChecksum{} })
	c, err := LookupChecksum("test-null", 0)
	if err != nil {
		t.Fatalf("LookupChecksum after RegisterChecksum failed: %v", err)
	}
	if c.Name() != "test-null" {
		t.Fatalf("Name() = %q, want test-null", c.Name())
	}
}

type nullChecksum struct{}

func (nullChecksum) Name() string               { return "test-null" }
func (nullChecksum) DigestSize() int            { return 0 }
func (nullChecksum) Compute(data []byte) []byte { return nil }
