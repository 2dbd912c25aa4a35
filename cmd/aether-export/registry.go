package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/hailam/aethersprout/internal/params"
	"github.com/hailam/aethersprout/internal/storage"
)

func openRegistry(dir string) (*storage.Store, error) {
	if dir == "" {
		return storage.OpenDefault()
	}
	return storage.Open(dir)
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	in := fs.String("in", "", "safetensors checkpoint")
	db := fs.String("db", "", "badger snapshot directory")
	cfgPath := fs.String("config", "", "YAML export configuration (for dims)")
	fs.Parse(args)
	if *in == "" || *db == "" {
		return errors.New("missing -in or -db")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	topo, err := cfg.Topology()
	if err != nil {
		return err
	}
	st, err := params.LoadSafetensors(*in, cfg.Dims.Buckets)
	if err != nil {
		return err
	}

	store, err := storage.Open(*db)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.ImportSource(topo, st); err != nil {
		return err
	}
	fmt.Printf("imported %s into %s (%d buckets x %d tensors)\n", *in, *db, topo.Dims.Buckets, len(topo.Tensors))
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	registry := fs.String("registry", "", "badger registry directory (default: the user data directory)")
	verify := fs.Bool("verify", false, "rehash each file and report changes")
	fs.Parse(args)

	store, err := openRegistry(*registry)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Exports()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no exports recorded")
		return nil
	}

	headers := []string{"id", "when", "dims", "size", "clamped", "xxhash", "path"}
	if *verify {
		headers = append(headers, "status")
	}
	table := newTable(headers, 3, 4)
	for _, rec := range records {
		row := []string{
			shortID(rec.ID),
			humanize.Time(rec.CreatedAt),
			rec.Dims.String(),
			humanize.Bytes(uint64(rec.Size)),
			fmt.Sprintf("%s/%s", humanize.Comma(rec.Clamped), humanize.Comma(rec.Values)),
			rec.DigestString(),
			rec.Path,
		}
		if *verify {
			row = append(row, verifyStatus(rec))
		}
		table.Row(row...)
	}
	fmt.Println(table.Render())
	return nil
}

func verifyStatus(rec *storage.ExportRecord) string {
	ok, err := rec.Verify()
	switch {
	case err != nil:
		return "missing"
	case !ok:
		return "modified"
	default:
		return "ok"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
