package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/hailam/aethersprout/internal/nnue"
)

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	headerStyle       = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// newTable returns a table with numeric columns (by index) right-aligned.
func newTable(headers []string, numeric ...int) *lgtable.Table {
	right := make(map[int]bool, len(numeric))
	for _, col := range numeric {
		right[col] = true
	}
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			if right[col] {
				return rightAlignedStyle
			}
			return normalStyle
		})
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	bucket := fs.Int("bucket", -1, "also print dequantized value ranges of this bucket")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: inspect [-bucket n] <file.nnue>")
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	header, err := nnue.ReadHeader(f)
	info, statErr := f.Stat()
	f.Close()
	if err != nil {
		return err
	}
	if statErr != nil {
		return statErr
	}
	topo, err := nnue.NewTopology(header.Dims())
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s v%d, %s\n", path, header.Magic[:], header.Version, header.Dims())
	fmt.Printf("bucket size %s, file size %s", humanize.Comma(int64(topo.BucketSize())), humanize.Bytes(uint64(info.Size())))
	if info.Size() != topo.FileSize() {
		fmt.Printf(" (expected %s bytes: TRUNCATED OR CORRUPT)\n", humanize.Comma(topo.FileSize()))
	} else {
		fmt.Println(" (ok)")
	}

	table := newTable([]string{"tensor", "role", "width", "shape", "offset", "bytes"}, 4, 5)
	for _, ts := range topo.Tensors {
		offset, _ := topo.Offset(0, ts.Name)
		table.Row(ts.Name, ts.Role.String(), ts.Width.String(),
			fmt.Sprintf("%dx%d", ts.Rows, ts.Cols),
			strconv.FormatInt(offset, 10), humanize.Comma(int64(ts.Size())))
	}
	fmt.Println(table.Render())

	if *bucket < 0 {
		return nil
	}
	return printBucketRanges(path, *bucket)
}

func printBucketRanges(path string, bucket int) error {
	net, err := nnue.LoadFile(path)
	if err != nil {
		return err
	}
	if bucket >= net.Topology.Dims.Buckets {
		return fmt.Errorf("bucket %d out of range [0, %d)", bucket, net.Topology.Dims.Buckets)
	}

	scales := nnue.DefaultScales()
	table := newTable([]string{"tensor", "min", "max", "zeros"}, 1, 2, 3)
	for _, ts := range net.Topology.Tensors {
		values, err := net.Dequantized(bucket, ts.Name, scales)
		if err != nil {
			return err
		}
		lo, hi, zeros := values[0], values[0], 0
		for _, v := range values {
			lo, hi = min(lo, v), max(hi, v)
			if v == 0 {
				zeros++
			}
		}
		table.Row(ts.Name,
			strconv.FormatFloat(float64(lo), 'g', 5, 32),
			strconv.FormatFloat(float64(hi), 'g', 5, 32),
			humanize.Comma(int64(zeros)))
	}
	fmt.Printf("bucket %d (dequantized with default scales)\n", bucket)
	fmt.Println(table.Render())
	return nil
}
