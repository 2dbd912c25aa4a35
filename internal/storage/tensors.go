package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
	"k8s.io/klog/v2"

	"github.com/hailam/aethersprout/internal/nnue"
)

func paramKey(bucket int, name string) []byte {
	return []byte(fmt.Sprintf("%s%d/%s", prefixParam, bucket, name))
}

func encodeFloats(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeFloats(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("stored tensor has %d bytes, not a multiple of 4", len(buf))
	}
	values := make([]float32, len(buf)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return values, nil
}

// PutTensor stores one tensor of a checkpoint snapshot.
func (s *Store) PutTensor(bucket int, name string, values []float32) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(paramKey(bucket, name), encodeFloats(values))
	})
}

// Tensor implements nnue.Source over the stored snapshot.
func (s *Store) Tensor(bucket int, name string) ([]float32, error) {
	var values []float32
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(paramKey(bucket, name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %q in bucket %d", nnue.ErrNotFound, name, bucket)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			values, err = decodeFloats(val)
			return err
		})
	})
	return values, err
}

// ImportSource snapshots every tensor the topology names from src, and
// records the topology's dimensions alongside.
func (s *Store) ImportSource(topo *nnue.Topology, src nnue.Source) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	n := 0
	for b := 0; b < topo.Dims.Buckets; b++ {
		for _, ts := range topo.Tensors {
			values, err := src.Tensor(b, ts.Name)
			if err != nil {
				return fmt.Errorf("failed to read %q of bucket %d: %w", ts.Name, b, err)
			}
			if len(values) != ts.Len() {
				return &nnue.ShapeMismatchError{Bucket: b, Name: ts.Name, Want: ts.Len(), Got: len(values)}
			}
			if err := wb.Set(paramKey(b, ts.Name), encodeFloats(values)); err != nil {
				return fmt.Errorf("failed to stage %q of bucket %d: %w", ts.Name, b, err)
			}
			n++
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := s.putJSON(keyDims, topo.Dims); err != nil {
		return fmt.Errorf("failed to record dims: %w", err)
	}
	klog.V(1).Infof("Imported %d tensors (%s)", n, topo.Dims)
	return nil
}

// Dims returns the dimensions recorded by the last ImportSource.
func (s *Store) Dims() (nnue.Dims, bool, error) {
	var d nnue.Dims
	found, err := s.getJSON(keyDims, &d)
	return d, found, err
}
