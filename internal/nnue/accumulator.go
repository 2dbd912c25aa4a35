package nnue

import (
	"fmt"

	"github.com/hailam/aethersprout/internal/board"
)

// Accumulator holds the trunk pre-activations of one perspective.
// Stored as int16 for quantized arithmetic; sums wrap like the engine's.
type Accumulator struct {
	Values []int16
	Bucket int
}

// Accumulate computes an accumulator from scratch: the bucket's trunk bias
// plus the trunk weight row of every active feature.
func (n *Network) Accumulate(bucket int, features []int) (*Accumulator, error) {
	if bucket < 0 || bucket >= len(n.Buckets) {
		return nil, fmt.Errorf("bucket %d out of range [0, %d)", bucket, len(n.Buckets))
	}
	bw := &n.Buckets[bucket]
	trunk := n.Topology.Dims.Trunk
	inputs := n.Topology.Dims.Inputs

	acc := &Accumulator{Values: make([]int16, trunk), Bucket: bucket}
	copy(acc.Values, bw.TrunkBias)

	for _, idx := range features {
		if idx < 0 || idx >= inputs {
			return nil, fmt.Errorf("feature %d out of range [0, %d)", idx, inputs)
		}
		row := bw.TrunkWeights[idx*trunk : (idx+1)*trunk]
		for i, w := range row {
			acc.Values[i] += w
		}
	}
	return acc, nil
}

// AccumulatePosition computes the accumulator of a perspective, selecting
// the bucket from that perspective's king.
func (n *Network) AccumulatePosition(pos *board.Position, perspective board.Color) (*Accumulator, error) {
	if n.Topology.Dims.Inputs != FeatureCount {
		return nil, fmt.Errorf("%w: network has %d inputs, positions encode %d", ErrDimMismatch, n.Topology.Dims.Inputs, FeatureCount)
	}
	if n.Topology.Dims.Buckets != BucketCount {
		return nil, fmt.Errorf("%w: network has %d buckets, king bucketing uses %d", ErrDimMismatch, n.Topology.Dims.Buckets, BucketCount)
	}
	return n.Accumulate(KingBucket(pos, perspective), ActiveFeatures(pos, perspective))
}
