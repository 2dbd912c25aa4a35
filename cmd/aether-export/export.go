package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/hailam/aethersprout/internal/config"
	"github.com/hailam/aethersprout/internal/nnue"
	"github.com/hailam/aethersprout/internal/params"
	"github.com/hailam/aethersprout/internal/storage"
)

// openSource opens trained parameters from a .safetensors file, an existing
// network file or a badger snapshot directory. dims is set when the input
// records its own dimensions.
func openSource(path string, buckets int) (src nnue.Source, dims *nnue.Dims, closeFn func() error, err error) {
	noop := func() error { return nil }
	if path == "" {
		return nil, nil, nil, errors.New("missing -in")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, nil, err
	}

	switch {
	case info.IsDir():
		store, err := storage.Open(path)
		if err != nil {
			return nil, nil, nil, err
		}
		d, found, err := store.Dims()
		if err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		if found {
			dims = &d
		}
		return store, dims, store.Close, nil

	case isNetworkFile(path):
		net, err := nnue.LoadFile(path)
		if err != nil {
			return nil, nil, nil, err
		}
		d := net.Header.Dims()
		return net, &d, noop, nil

	default:
		st, err := params.LoadSafetensors(path, buckets)
		if err != nil {
			return nil, nil, nil, err
		}
		klog.V(1).Infof("loaded %d tensors from %s", len(st.Names()), path)
		return st, nil, noop, nil
	}
}

func isNetworkFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".nnue")
}

// defaultOutput names the export after its input, in storage.NetworkDir.
func defaultOutput(in string) (string, error) {
	if in == "" {
		return "", errors.New("missing -in")
	}
	dir, err := storage.NetworkDir()
	if err != nil {
		return "", err
	}
	base := filepath.Base(filepath.Clean(in))
	out := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+".nnue")

	absIn, err := filepath.Abs(in)
	if err != nil {
		return "", err
	}
	if absIn == out {
		return "", fmt.Errorf("default output %s is the input; pass -out", out)
	}
	return out, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	in := fs.String("in", "", "trained parameters: .safetensors file, .nnue file or badger snapshot directory")
	out := fs.String("out", "", "output network file (default: <input name>.nnue in the user data directory)")
	cfgPath := fs.String("config", "", "YAML export configuration")
	parallel := fs.Int("parallel", -1, "buckets encoded concurrently (overrides config)")
	registry := fs.String("registry", "", "badger directory recording the export (overrides config)")
	quiet := fs.Bool("quiet", false, "disable the progress bar")
	fs.Parse(args)

	if *out == "" {
		path, err := defaultOutput(*in)
		if err != nil {
			return err
		}
		*out = path
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	// Network files are read back with nnue.DefaultScales, so any other
	// scale would silently rescale every value.
	if scales, err := cfg.ExportScales(); err == nil && isNetworkFile(*in) && scales != nnue.DefaultScales() {
		return fmt.Errorf("%s is already quantized with the default scales; remove the scales override to re-export it", *in)
	}
	if *parallel >= 0 {
		cfg.Parallel = *parallel
	}
	if *registry != "" {
		cfg.Registry = *registry
	}

	src, dims, closeSrc, err := openSource(*in, cfg.Dims.Buckets)
	if err != nil {
		return err
	}
	defer closeSrc()
	if dims != nil {
		cfg.Dims = *dims
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	topo, err := cfg.Topology()
	if err != nil {
		return err
	}
	scales, err := cfg.ExportScales()
	if err != nil {
		return err
	}

	opts := []nnue.Option{nnue.WithParallel(cfg.Parallel)}
	if !*quiet {
		bar := progressbar.NewOptions(cfg.Dims.Buckets,
			progressbar.OptionSetDescription("exporting buckets"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		opts = append(opts, nnue.WithProgress(func(int) { _ = bar.Add(1) }))
	}

	exporter, err := nnue.NewExporter(topo, scales, opts...)
	if err != nil {
		return err
	}
	report, err := exporter.WriteFile(src, *out)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s, %s (%s values, %s clamped)\n", *out, cfg.Dims,
		humanize.Bytes(uint64(report.BytesWritten)),
		humanize.Comma(report.Values()), humanize.Comma(report.Clamped()))
	for _, line := range report.Diagnostics() {
		fmt.Printf("  warning: %s\n", line)
	}

	if cfg.Registry == "" {
		return nil
	}
	return recordExport(cfg.Registry, *out, *in, cfg.Dims, report)
}

func recordExport(registry, out, in string, dims nnue.Dims, report *nnue.Report) error {
	store, err := storage.Open(registry)
	if err != nil {
		return err
	}
	defer store.Close()

	abs, err := filepath.Abs(out)
	if err != nil {
		return err
	}
	rec, err := storage.NewExportRecord(abs, in, dims, report)
	if err != nil {
		return err
	}
	if err := store.RecordExport(rec); err != nil {
		return fmt.Errorf("failed to record export: %w", err)
	}
	fmt.Printf("recorded export %s (xxhash %s)\n", rec.ID, rec.DigestString())
	return nil
}
