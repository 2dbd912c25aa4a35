// Package storage keeps checkpoint snapshots and the export history in BadgerDB.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"k8s.io/klog/v2"
)

// Storage key prefixes
const (
	prefixParam  = "param/"
	prefixExport = "export/"
	keyDims      = "meta/dims"
)

// Store wraps BadgerDB for persistent storage
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database in dir.
func Open(dir string) (*Store, error) {
	return open(badger.DefaultOptions(dir))
}

// OpenInMemory opens a database that lives only as long as the Store.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

// OpenDefault opens the database in DatabaseDir.
func OpenDefault() (*Store, error) {
	dir, err := DatabaseDir()
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("Database directory: %s", dir)
	return Open(dir)
}

func open(opts badger.Options) (*Store, error) {
	opts.Logger = badgerLogger{}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// getJSON decodes the value under key into v, reporting whether it existed.
func (s *Store) getJSON(key string, v any) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	return found, err
}

// badgerLogger routes badger's logging through klog, keeping its chatter
// behind verbosity levels.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any)   { klog.Errorf("badger: "+format, args...) }
func (badgerLogger) Warningf(format string, args ...any) { klog.Warningf("badger: "+format, args...) }
func (badgerLogger) Infof(format string, args ...any)    { klog.V(2).Infof("badger: "+format, args...) }
func (badgerLogger) Debugf(format string, args ...any)   { klog.V(4).Infof("badger: "+format, args...) }
