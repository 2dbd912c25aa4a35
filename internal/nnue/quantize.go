package nnue

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
)

// Width is the byte width of one stored element.
type Width int

const (
	Int8  Width = 1
	Int16 Width = 2
	Int32 Width = 4
)

func (w Width) String() string {
	switch w {
	case Int8:
		return "i8"
	case Int16:
		return "i16"
	case Int32:
		return "i32"
	default:
		return fmt.Sprintf("Width(%d)", int(w))
	}
}

// Valid reports whether w is 1, 2 or 4.
func (w Width) Valid() bool {
	return w == Int8 || w == Int16 || w == Int32
}

// Range returns the representable signed range of w.
func (w Width) Range() (lo, hi int64) {
	switch w {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Int16:
		return math.MinInt16, math.MaxInt16
	default:
		return math.MinInt32, math.MaxInt32
	}
}

// QuantizeValue scales, rounds half away from zero and clamps a single value.
// The second result reports whether the value was clamped. NaN maps to 0 and
// counts as clamped.
func QuantizeValue(v float32, width Width, scale float32) (int64, bool) {
	lo, hi := width.Range()
	x := math.Round(float64(v) * float64(scale))
	switch {
	case math.IsNaN(x):
		return 0, true
	case x < float64(lo):
		return lo, true
	case x > float64(hi):
		return hi, true
	}
	return int64(x), false
}

// Quantize converts values to little-endian integers of the given width.
// It returns the bytes and the number of values that had to be clamped.
// Out-of-range values are clamped, never rejected.
func Quantize(values []float32, width Width, scale float32) ([]byte, int, error) {
	return AppendQuantized(nil, values, width, scale)
}

// AppendQuantized is like Quantize but appends to dst.
func AppendQuantized(dst []byte, values []float32, width Width, scale float32) ([]byte, int, error) {
	if !width.Valid() {
		return dst, 0, fmt.Errorf("%w: %d", ErrInvalidWidth, int(width))
	}
	n := len(dst)
	dst = append(dst, make([]byte, len(values)*int(width))...)
	clamped, err := QuantizeInto(dst[n:], values, width, scale)
	return dst, clamped, err
}

// QuantizeInto writes exactly len(values)*width bytes into dst.
func QuantizeInto(dst []byte, values []float32, width Width, scale float32) (int, error) {
	if !width.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidWidth, int(width))
	}
	if len(dst) < len(values)*int(width) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrSizeMismatch, len(values)*int(width), len(dst))
	}

	clamped := 0
	for i, v := range values {
		q, c := QuantizeValue(v, width, scale)
		if c {
			clamped++
		}
		switch width {
		case Int8:
			dst[i] = byte(int8(q))
		case Int16:
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(q)))
		case Int32:
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(int32(q)))
		}
	}
	return clamped, nil
}

// Dequantize is the inverse of Quantize up to rounding: raw/scale.
func Dequantize(raw []byte, width Width, scale float32) ([]float32, error) {
	if !width.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWidth, int(width))
	}
	if len(raw)%int(width) != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrSizeMismatch, len(raw), int(width))
	}

	out := make([]float32, len(raw)/int(width))
	for i := range out {
		var q int64
		switch width {
		case Int8:
			q = int64(int8(raw[i]))
		case Int16:
			q = int64(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		case Int32:
			q = int64(int32(binary.LittleEndian.Uint32(raw[i*4:])))
		}
		out[i] = float32(float64(q) / float64(scale))
	}
	return out, nil
}

// ClampCounter tallies quantized and clamped values per role. It is safe
// for concurrent use.
type ClampCounter struct {
	values  [numRoles]atomic.Int64
	clamped [numRoles]atomic.Int64
}

// Add records n quantized values of a role, of which clamped were clamped.
func (c *ClampCounter) Add(role Role, n, clamped int) {
	c.values[role].Add(int64(n))
	c.clamped[role].Add(int64(clamped))
}

// Stats returns the per-role totals, in role order.
func (c *ClampCounter) Stats() []RoleStats {
	stats := make([]RoleStats, 0, numRoles)
	for r := Role(0); r < numRoles; r++ {
		stats = append(stats, RoleStats{
			Role:    r,
			Values:  c.values[r].Load(),
			Clamped: c.clamped[r].Load(),
		})
	}
	return stats
}
