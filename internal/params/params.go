// Package params provides sources of trained parameters for the exporter:
// in-memory maps and safetensors files written by the trainer.
package params

import (
	"fmt"
	"slices"

	"github.com/hailam/aethersprout/internal/nnue"
)

// Map holds trained parameters in memory: bucket -> tensor name -> values.
type Map map[int]map[string][]float32

// Tensor implements nnue.Source.
func (m Map) Tensor(bucket int, name string) ([]float32, error) {
	values, ok := m[bucket][name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in bucket %d", nnue.ErrNotFound, name, bucket)
	}
	return values, nil
}

// Set stores a tensor, copying values.
func (m Map) Set(bucket int, name string, values []float32) {
	if m[bucket] == nil {
		m[bucket] = make(map[string][]float32)
	}
	m[bucket][name] = slices.Clone(values)
}

// Collect reads every tensor the topology names from src into a Map,
// checking lengths on the way.
func Collect(src nnue.Source, topo *nnue.Topology) (Map, error) {
	m := make(Map, topo.Dims.Buckets)
	for b := 0; b < topo.Dims.Buckets; b++ {
		for _, s := range topo.Tensors {
			values, err := src.Tensor(b, s.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to read %q of bucket %d: %w", s.Name, b, err)
			}
			if len(values) != s.Len() {
				return nil, &nnue.ShapeMismatchError{Bucket: b, Name: s.Name, Want: s.Len(), Got: len(values)}
			}
			m.Set(b, s.Name, values)
		}
	}
	return m, nil
}
