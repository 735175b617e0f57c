package store

import (
	"strings"
	"testing"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	r := strings.NewReader("page_size: 4096\n")
	cfg, err := LoadConfig(r)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.PageSize != 4096 {
		t.Fatalf("PageSize = %d, want 4096", cfg.PageSize)
	}
	if cfg.MaxLRUSize != DefaultMaxLRUSize {
		t.Fatalf("MaxLRUSize = %d, want default %d", cfg.MaxLRUSize, DefaultMaxLRUSize)
	}
	if cfg.ChecksumAlgorithm != DefaultChecksumAlgoName {
		t.Fatalf("ChecksumAlgorithm = %q, want default %q", cfg.ChecksumAlgorithm, DefaultChecksumAlgoName)
	}
}

func TestLoadConfigEmptyDocument(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadConfig on an empty document failed: %v", err)
	}
	want := DefaultConfig()
	if cfg != want {
		t.Fatalf("LoadConfig(empty) = %+v, want all defaults %+v", cfg, want)
	}
}

func TestConfigSetDefaultsClampsMinAboveMax(t *testing.T) {
	cfg := Config{PageSize: 512, MaxLRUSize: 4, MinLRUSize: 100}
	cfg.setDefaults()
	if cfg.MinLRUSize != cfg.MaxLRUSize {
		t.Fatalf("MinLRUSize = %d, want clamped to MaxLRUSize %d", cfg.MinLRUSize, cfg.MaxLRUSize)
	}
}
