package nnue

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// WriteFile exports to path atomically: the file is written under a
// temporary name in the same directory and renamed into place only after a
// complete, self-checked export. On failure no file is left at path.
func (e *Exporter) WriteFile(src Source, path string) (*Report, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, &IOError{Op: "create temporary file", Err: err}
	}

	done := false
	defer func() {
		if !done {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriterSize(tmp, 1<<20)
	_, report, err := e.Export(src, bw)
	if err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, &IOError{Op: "flush " + tmp.Name(), Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return nil, &IOError{Op: "sync " + tmp.Name(), Err: err}
	}
	if err := tmp.Chmod(0644); err != nil {
		return nil, &IOError{Op: "chmod " + tmp.Name(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, &IOError{Op: "close " + tmp.Name(), Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		done = true
		return nil, &IOError{Op: fmt.Sprintf("rename to %s", path), Err: err}
	}
	done = true

	klog.Infof("wrote %s (%d bytes)", path, report.BytesWritten)
	return report, nil
}
