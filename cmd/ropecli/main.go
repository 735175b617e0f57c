// Command ropecli is a minimal diagnostic front end for the store/rope
// core: it can format a fresh device, append bytes to the single rope
// rooted at the device's generation record, and dump that rope's
// content back out. It stands in for the "thin command-line/API façade"
// the design calls an external collaborator — real embedders are
// expected to build their own key-value directory on top of
// internal/store and internal/rope instead of shelling out to this.
package main

import (
	"flag"
	"fmt"
	"os"

	"ropestore/internal/rope"
	"ropestore/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "format":
		err = runFormat(os.Args[2:])
	case "append":
		err = runAppend(os.Args[2:])
	case "dump":
		err = runDump(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "ropecli:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ropecli - diagnostic CLI for the rope store core

Commands:
  format <path> [-page-size=8192] [-sectors=4096] [-max-lru=1024] [-min-lru=256] [-checksum=crc32c]
                                  Format path as a fresh device
  append <path> <bytes>           Append bytes to the device's rope, growing it if needed
  dump   <path>                   Print the device's rope content to stdout
  info   <path>                   Print the device's current generation record

Examples:
  ropecli format ./data.img -sectors=8192
  ropecli append ./data.img "hello, world"
  ropecli dump ./data.img`)
}

func runFormat(args []string) error {
	fs := flag.NewFlagSet("format", flag.ExitOnError)
	pageSize := fs.Uint("page-size", store.DefaultPageSize, "page size in bytes; must match the device's sector size")
	sectors := fs.Uint64("sectors", 4096, "device size, in sectors")
	maxLRU := fs.Int("max-lru", store.DefaultMaxLRUSize, "maximum resident sector count")
	minLRU := fs.Int("min-lru", store.DefaultMinLRUSize, "eviction low-water mark")
	checksum := fs.String("checksum", store.DefaultChecksumAlgoName, "checksum algorithm (crc32c, fnv1a32)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: ropecli format <path> [flags]")
	}
	path := fs.Arg(0)
	// Flags may also follow the path, as in the usage text.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return err
	}

	disk, err := store.OpenFileDisk(path, uint32(*pageSize), *sectors)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer disk.Close()

	cfg := store.Config{
		PageSize:          uint32(*pageSize),
		MaxLRUSize:        *maxLRU,
		MinLRUSize:        *minLRU,
		ChecksumAlgorithm: *checksum,
	}
	ctx, err := store.Format(disk, store.FormatOptions{Config: cfg})
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}
	r, err := rope.Create(ctx)
	if err != nil {
		return fmt.Errorf("create root rope: %w", err)
	}
	id, err := r.Flush()
	if err != nil {
		return fmt.Errorf("flush root rope: %w", err)
	}
	ctx.SetRoot(id)
	if _, err := ctx.Checkpoint(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	fmt.Printf("formatted %s: %d sectors of %d bytes, checksum=%s\n", path, *sectors, *pageSize, *checksum)
	return nil
}

func openDevice(path string) (*store.FileDisk, *store.Context, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat device: %w", err)
	}
	// The sector size isn't recoverable from the file alone. This opens
	// with DefaultPageSize (halved while larger than the file); Open
	// rejects the guess with WrongPageSizeError when the device was
	// formatted with a different page size.
	sectorSize := uint32(store.DefaultPageSize)
	for sectorSize > uint32(fi.Size()) && sectorSize > 512 {
		sectorSize /= 2
	}
	sizeSectors := uint64(fi.Size()) / uint64(sectorSize)

	disk, err := store.OpenFileDisk(path, sectorSize, sizeSectors)
	if err != nil {
		return nil, nil, fmt.Errorf("open device: %w", err)
	}
	ctx, err := store.Open(disk, store.OpenOptions{})
	if err != nil {
		disk.Close()
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	return disk, ctx, nil
}

func runAppend(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ropecli append <path> <bytes>")
	}
	path := args[0]
	data := []byte(args[1])

	disk, ctx, err := openDevice(path)
	if err != nil {
		return err
	}
	defer disk.Close()

	r, err := rope.Load(ctx, ctx.Generation().RootID)
	if err != nil {
		return fmt.Errorf("load rope: %w", err)
	}
	if err := r.Append(data); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	id, err := r.Flush()
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	ctx.SetRoot(id)
	if _, err := ctx.Checkpoint(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	fmt.Printf("appended %d bytes, new size %d\n", len(data), r.Size())
	return nil
}

func runDump(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ropecli dump <path>")
	}
	path := args[0]

	disk, ctx, err := openDevice(path)
	if err != nil {
		return err
	}
	defer disk.Close()

	r, err := rope.Load(ctx, ctx.Generation().RootID)
	if err != nil {
		return fmt.Errorf("load rope: %w", err)
	}
	content, err := r.ToString()
	if err != nil {
		return fmt.Errorf("read rope: %w", err)
	}
	_, err = os.Stdout.Write(content)
	return err
}

func runInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ropecli info <path>")
	}
	path := args[0]

	disk, ctx, err := openDevice(path)
	if err != nil {
		return err
	}
	defer disk.Close()

	gen := ctx.Generation()
	fmt.Printf("generation:   %s\n", gen.ID)
	fmt.Printf("sequence:     %d\n", gen.Sequence)
	fmt.Printf("page size:    %d\n", gen.PageSize)
	fmt.Printf("num sectors:  %d\n", gen.NumSectors)
	fmt.Printf("checksum:     %s (%d bytes)\n", gen.ChecksumAlgorithm, gen.ChecksumSize)
	fmt.Printf("root id:      %d\n", gen.RootID)
	return nil
}
