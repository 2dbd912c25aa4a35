package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/hailam/aethersprout/internal/nnue"
)

// ExportRecord describes one exported network file.
type ExportRecord struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Source    string    `json:"source"`
	Digest    uint64    `json:"digest"`
	Size      int64     `json:"size"`
	Dims      nnue.Dims `json:"dims"`
	Values    int64     `json:"values"`
	Clamped   int64     `json:"clamped"`
	CreatedAt time.Time `json:"created_at"`
}

// DigestString formats the xxhash64 digest as hex.
func (r *ExportRecord) DigestString() string {
	return fmt.Sprintf("%016x", r.Digest)
}

// NewExportRecord describes the file written at path from the export report,
// hashing its contents.
func NewExportRecord(path, source string, dims nnue.Dims, report *nnue.Report) (*ExportRecord, error) {
	digest, size, err := DigestFile(path)
	if err != nil {
		return nil, err
	}
	rec := &ExportRecord{
		Path:   path,
		Source: source,
		Digest: digest,
		Size:   size,
		Dims:   dims,
	}
	if report != nil {
		rec.Values = report.Values()
		rec.Clamped = report.Clamped()
	}
	return rec, nil
}

// DigestFile returns the xxhash64 digest and size of the file at path.
func DigestFile(path string) (uint64, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer f.Close()

	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to hash %q: %w", path, err)
	}
	return h.Sum64(), n, nil
}

// exportKey sorts records by creation time.
func exportKey(rec *ExportRecord) string {
	return fmt.Sprintf("%s%020d/%s", prefixExport, rec.CreatedAt.UnixNano(), rec.ID)
}

// RecordExport stores rec, assigning an ID and timestamp when unset.
func (s *Store) RecordExport(rec *ExportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return s.putJSON(exportKey(rec), rec)
}

// Exports returns the export history, oldest first.
func (s *Store) Exports() ([]*ExportRecord, error) {
	var records []*ExportRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixExport)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rec := &ExportRecord{}
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, rec)
			}); err != nil {
				return fmt.Errorf("failed to decode %q: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// FindExport returns the record whose ID starts with prefix.
func (s *Store) FindExport(prefix string) (*ExportRecord, error) {
	records, err := s.Exports()
	if err != nil {
		return nil, err
	}
	var match *ExportRecord
	for _, rec := range records {
		if prefix != "" && strings.HasPrefix(rec.ID, prefix) {
			if match != nil {
				return nil, fmt.Errorf("export id prefix %q is ambiguous", prefix)
			}
			match = rec
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no export with id %q", prefix)
	}
	return match, nil
}

// Verify rehashes the recorded file and reports whether it is unchanged.
func (r *ExportRecord) Verify() (bool, error) {
	digest, size, err := DigestFile(r.Path)
	if err != nil {
		return false, err
	}
	return digest == r.Digest && size == r.Size, nil
}
