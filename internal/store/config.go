package store

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Default tunables, resolved the way OpenPager resolves PageSize to
// DefaultPageSize when a caller leaves a Config field at its zero value.
const (
	DefaultPageSize         = 8192
	DefaultMaxLRUSize       = 1024
	DefaultMinLRUSize       = 256
	DefaultChecksumAlgoName = "crc32c"
)

// Config holds the format-time and runtime tunables for a Context.
// MaxLRUSize and MinLRUSize are the lru_make_room bounds from §4.D:
// eviction stops early once the list has shrunk to MinLRUSize as long as
// the buffer pool still holds a free buffer. Allocate(FromLoad) makes
// room once the list holds MaxLRUSize entries; pages read back from disk
// by Cstruct and roots demoted by Attach join the list without that
// check, so the list can exceed MaxLRUSize until the next such
// Allocate. PageSize and ChecksumAlgorithm are fixed at format time and
// read back from the generation record by Open; they are only consulted
// by Format.
type Config struct {
	PageSize          uint32 `yaml:"page_size"`
	MaxLRUSize        int    `yaml:"max_lru_size"`
	MinLRUSize        int    `yaml:"min_lru_size"`
	ChecksumAlgorithm string `yaml:"checksum_algorithm"`
}

// DefaultConfig returns a Config with every field at its documented
// default.
func DefaultConfig() Config {
	return Config{
		PageSize:          DefaultPageSize,
		MaxLRUSize:        DefaultMaxLRUSize,
		MinLRUSize:        DefaultMinLRUSize,
		ChecksumAlgorithm: DefaultChecksumAlgoName,
	}
}

func (c *Config) setDefaults() {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxLRUSize <= 0 {
		c.MaxLRUSize = DefaultMaxLRUSize
	}
	if c.MinLRUSize <= 0 {
		c.MinLRUSize = DefaultMinLRUSize
	}
	if c.MinLRUSize > c.MaxLRUSize {
		c.MinLRUSize = c.MaxLRUSize
	}
	if c.ChecksumAlgorithm == "" {
		c.ChecksumAlgorithm = DefaultChecksumAlgoName
	}
}

// LoadConfig decodes a Config from a YAML document, applying defaults to
// any field the document omits. An embedder or the CLI uses this to
// describe format-time tunables in a file instead of a Go struct literal.
func LoadConfig(r io.Reader) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("store: load config: %w", err)
	}
	c.setDefaults()
	return c, nil
}
