package rope

import (
	"bytes"
	"testing"

	"ropestore/internal/store"
)

func newTestContext(t *testing.T, pageSize uint32, numSectors uint64, maxLRU, minLRU int) *store.Context {
	t.Helper()
	disk := store.NewMemDisk(pageSize, numSectors)
	cfg := store.DefaultConfig()
	cfg.PageSize = pageSize
	cfg.MaxLRUSize = maxLRU
	cfg.MinLRUSize = minLRU
	ctx, err := store.Format(disk, store.FormatOptions{Config: cfg})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	return ctx
}

func TestRopeLoadNullPointerYieldsFreshLeaf(t *testing.T) {
	ctx := newTestContext(t, 512, 64, 4, 2)
	r, err := Load(ctx, store.InvalidID)
	if err != nil {
		t.Fatalf("Load(InvalidID) failed: %v", err)
	}
	if r.Size() != 0 {
		t.Fatalf("size = %d, want 0", r.Size())
	}
	if r.root.height != 0 || len(r.root.children) != 0 {
		t.Fatalf("root is not a fresh height-0 leaf: height=%d children=%d", r.root.height, len(r.root.children))
	}
	if err := r.Append([]byte("hello")); err != nil {
		t.Fatalf("Append after Load(InvalidID) failed: %v", err)
	}
	got, err := r.ToString()
	if err != nil {
		t.Fatalf("ToString failed: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("content = %q, want %q", got, "hello")
	}
}

func TestRopeAppendAndRead(t *testing.T) {
	ctx := newTestContext(t, 512, 256, 8, 2)
	r, err := Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	want := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)
	if err := r.Append(want); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got := r.Size(); got != uint64(len(want)) {
		t.Fatalf("Size() = %d, want %d", got, len(want))
	}

	got, err := r.ToString()
	if err != nil {
		t.Fatalf("ToString failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round-tripped content mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
}

func TestRopeAppendInChunks(t *testing.T) {
	ctx := newTestContext(t, 256, 512, 4, 1)
	r, err := Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var want []byte
	for i := 0; i < 500; i++ {
		chunk := []byte{byte(i), byte(i >> 8), byte('a' + i%26)}
		want = append(want, chunk...)
		if err := r.Append(chunk); err != nil {
			t.Fatalf("Append #%d failed: %v", i, err)
		}
	}

	got, err := r.ToString()
	if err != nil {
		t.Fatalf("ToString failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("content mismatch after chunked append: got %d bytes, want %d bytes", len(got), len(want))
	}
}

func TestRopeBlitFromString(t *testing.T) {
	ctx := newTestContext(t, 512, 256, 8, 2)
	r, err := New(ctx, []byte("0123456789abcdefghij"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := r.BlitFromString(3, []byte("XYZ")); err != nil {
		t.Fatalf("BlitFromString failed: %v", err)
	}

	got, err := r.ToString()
	if err != nil {
		t.Fatalf("ToString failed: %v", err)
	}
	want := "012XYZ6789abcdefghij"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRopeBlitToBytesPartial(t *testing.T) {
	ctx := newTestContext(t, 512, 256, 8, 2)
	r, err := New(ctx, []byte("abcdefghijklmnopqrstuvwxyz"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out := make([]byte, 5)
	n, err := r.BlitToBytes(10, out)
	if err != nil {
		t.Fatalf("BlitToBytes failed: %v", err)
	}
	if n != 5 || string(out) != "klmno" {
		t.Fatalf("got n=%d %q, want 5 %q", n, out[:n], "klmno")
	}
}

func TestRopeBlitToBytesPastEnd(t *testing.T) {
	ctx := newTestContext(t, 512, 256, 8, 2)
	r, err := New(ctx, []byte("abcdef"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out := make([]byte, 10)
	n, err := r.BlitToBytes(3, out)
	if err != nil {
		t.Fatalf("BlitToBytes failed: %v", err)
	}
	if n != 3 || string(out[:n]) != "def" {
		t.Fatalf("got n=%d %q, want 3 %q", n, out[:n], "def")
	}

	n, err = r.BlitToBytes(100, out)
	if err != nil {
		t.Fatalf("BlitToBytes past size failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("got n=%d, want 0 for offset past size", n)
	}
}

func TestRopeBlitFromStringExtendsTail(t *testing.T) {
	ctx := newTestContext(t, 512, 256, 8, 2)
	r, err := New(ctx, []byte("0123456789"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := r.BlitFromString(8, []byte("ABCDEF")); err != nil {
		t.Fatalf("BlitFromString failed: %v", err)
	}
	got, err := r.ToString()
	if err != nil {
		t.Fatalf("ToString failed: %v", err)
	}
	want := "01234567ABCDEF"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRopePersistsAcrossEviction(t *testing.T) {
	ctx := newTestContext(t, 256, 512, 3, 1)
	r, err := Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	want := bytes.Repeat([]byte("persist me across the tiny cache "), 100)
	if err := r.Append(want); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	id, err := r.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	reopened, err := Load(ctx, id)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got, err := reopened.ToString()
	if err != nil {
		t.Fatalf("ToString failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("reopened content mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
}

func TestRopeVerifyChecksumAndFree(t *testing.T) {
	ctx := newTestContext(t, 512, 256, 8, 2)
	r, err := New(ctx, bytes.Repeat([]byte("verify me "), 300))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	id, err := r.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if _, err := ctx.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	reopened, err := Load(ctx, id)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := reopened.VerifyChecksum(); err != nil {
		t.Fatalf("VerifyChecksum failed: %v", err)
	}
	if err := reopened.Free(); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
}

func TestRopeReopenAcrossFormatOpen(t *testing.T) {
	disk := store.NewMemDisk(512, 256)
	cfg := store.DefaultConfig()
	cfg.PageSize = 512
	cfg.MaxLRUSize = 8
	cfg.MinLRUSize = 2

	ctx, err := store.Format(disk, store.FormatOptions{Config: cfg})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	want := bytes.Repeat([]byte("durable bytes "), 150)
	r, err := New(ctx, want)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	id, err := r.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	ctx.SetRoot(id)
	if _, err := ctx.Checkpoint(); err != nil {
		t.Fatalf("final Checkpoint failed: %v", err)
	}

	reopenedCtx, err := store.Open(disk, store.OpenOptions{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	gen := reopenedCtx.Generation()
	reopened, err := Load(reopenedCtx, gen.RootID)
	if err != nil {
		t.Fatalf("Load after Open failed: %v", err)
	}
	got, err := reopened.ToString()
	if err != nil {
		t.Fatalf("ToString failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("content mismatch after Format/Open round trip: got %d bytes, want %d bytes", len(got), len(want))
	}
}
