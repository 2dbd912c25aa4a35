// Package nnue defines the king-bucketed trunk/heads/gate network file
// ("AS768NUE"): its parameter schema, the quantizer, the bucket selector,
// the exporter that writes the file and a reference reader that loads it.
package nnue

import "fmt"

// File format constants.
const (
	Magic      = "AS768NUE"
	Version    = 1
	HeaderSize = 32 // magic(8) + 6 x uint32
)

// Default network dimensions (the "aethersprout768" net).
const (
	DefaultInputs = FeatureCount
	DefaultTrunk  = 256
	DefaultHead   = 32
	DefaultGate   = 8
)

// Inference-side quantization constants. They must agree with DefaultScales.
const (
	QA          = 255 // CReLU upper bound of trunk and hidden activations
	HiddenShift = 6   // hidden sums are scaled down by 2^6 before CReLU
	GateScale   = 64  // gate logit divisor before the sigmoid
	OutputScale = 64  // blended score divisor
)

// Dims are the characteristic dimensions of a network.
type Dims struct {
	Buckets int `yaml:"buckets"`
	Inputs  int `yaml:"inputs"`
	Trunk   int `yaml:"trunk"`
	Head    int `yaml:"head"`
	Gate    int `yaml:"gate"`
}

// DefaultDims returns the dimensions of the production network.
func DefaultDims() Dims {
	return Dims{
		Buckets: BucketCount,
		Inputs:  DefaultInputs,
		Trunk:   DefaultTrunk,
		Head:    DefaultHead,
		Gate:    DefaultGate,
	}
}

// Validate checks that every dimension is positive.
func (d Dims) Validate() error {
	fields := []struct {
		name string
		v    int
	}{
		{"buckets", d.Buckets},
		{"inputs", d.Inputs},
		{"trunk", d.Trunk},
		{"head", d.Head},
		{"gate", d.Gate},
	}
	for _, f := range fields {
		if f.v <= 0 {
			return fmt.Errorf("invalid %s dimension: %d", f.name, f.v)
		}
	}
	return nil
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx[%d->%d->(%d,%d,%d)]", d.Buckets, d.Inputs, d.Trunk, d.Head, d.Head, d.Gate)
}
