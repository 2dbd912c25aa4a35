package nnue

import (
	"fmt"
	"math"
)

// Default quantization scales.
const (
	TrunkScale  = 256                      // trunk weights and biases (int16)
	WeightScale = 64                       // head/gate hidden and output weights (int8)
	BiasScale   = TrunkScale * WeightScale // head/gate biases (int32), activation x weight
)

// Scales holds the multiplier applied to each role before rounding.
type Scales [numRoles]float32

// DefaultScales returns the scales the inference engine's integer pipeline
// expects.
func DefaultScales() Scales {
	var s Scales
	for _, r := range Roles() {
		switch r.Width() {
		case Int16:
			s[r] = TrunkScale
		case Int32:
			s[r] = BiasScale
		default:
			s[r] = WeightScale
		}
	}
	return s
}

// Scale returns the scale of a role.
func (s Scales) Scale(r Role) float32 {
	return s[r]
}

// Set overrides the scale of a role.
func (s *Scales) Set(r Role, v float32) {
	s[r] = v
}

// Validate rejects non-positive or non-finite scales.
func (s Scales) Validate() error {
	for _, r := range Roles() {
		v := s[r]
		if !(v > 0) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: %s = %v", ErrInvalidScale, r, v)
		}
	}
	return nil
}
