package nnue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTopology(t *testing.T) {
	topo := DefaultTopology()

	want := []struct {
		name       string
		rows, cols int
		width      Width
		role       Role
	}{
		{"trunk_w", 768, 256, Int16, TrunkWeight},
		{"trunk_b", 256, 1, Int16, TrunkBias},
		{"head_a_w", 32, 256, Int8, HeadWeight},
		{"head_a_b", 32, 1, Int32, HeadBias},
		{"head_a_out_w", 1, 32, Int8, HeadOutWeight},
		{"head_a_out_b", 1, 1, Int32, HeadOutBias},
		{"head_b_w", 32, 256, Int8, HeadWeight},
		{"head_b_b", 32, 1, Int32, HeadBias},
		{"head_b_out_w", 1, 32, Int8, HeadOutWeight},
		{"head_b_out_b", 1, 1, Int32, HeadOutBias},
		{"gate_w", 8, 256, Int8, GateWeight},
		{"gate_b", 8, 1, Int32, GateBias},
		{"gate_out_w", 1, 8, Int8, GateOutWeight},
		{"gate_out_b", 1, 1, Int32, GateOutBias},
	}
	require.Len(t, topo.Tensors, len(want))
	for i, w := range want {
		s := topo.Tensors[i]
		assert.Equal(t, w.name, s.Name)
		assert.Equal(t, w.rows, s.Rows, s.Name)
		assert.Equal(t, w.cols, s.Cols, s.Name)
		assert.Equal(t, w.width, s.Width, s.Name)
		assert.Equal(t, w.role, s.Role, s.Name)
	}

	// trunk 393216+512, each head 8192+128+32+4, gate 2048+32+8+4
	assert.Equal(t, 412532, topo.BucketSize())
	assert.Equal(t, int64(32+8*412532), topo.FileSize())
}

func TestTopologySizeFromSchema(t *testing.T) {
	dims := []Dims{
		{Buckets: 1, Inputs: 1, Trunk: 1, Head: 1, Gate: 1},
		{Buckets: 2, Inputs: 4, Trunk: 2, Head: 1, Gate: 1},
		{Buckets: 3, Inputs: 10, Trunk: 7, Head: 5, Gate: 3},
		DefaultDims(),
	}
	for _, d := range dims {
		topo, err := NewTopology(d)
		require.NoError(t, err)

		sum := 0
		for _, s := range topo.Tensors {
			assert.Equal(t, s.Rows*s.Cols*int(s.Width), s.Size())
			sum += s.Size()
		}
		assert.Equal(t, sum, topo.BucketSize(), d.String())

		expected := 2*d.Inputs*d.Trunk + 2*d.Trunk +
			2*(d.Head*d.Trunk+4*d.Head+d.Head+4) +
			d.Gate*d.Trunk + 4*d.Gate + d.Gate + 4
		assert.Equal(t, expected, topo.BucketSize(), d.String())
		assert.Equal(t, int64(HeaderSize+d.Buckets*expected), topo.FileSize())
	}
}

func TestTopologyOffsets(t *testing.T) {
	topo, err := NewTopology(Dims{Buckets: 2, Inputs: 4, Trunk: 2, Head: 1, Gate: 1})
	require.NoError(t, err)
	require.Equal(t, 53, topo.BucketSize())

	off, ok := topo.Offset(1, "trunk_b")
	require.True(t, ok)
	assert.Equal(t, int64(101), off)

	off, ok = topo.Offset(0, "gate_out_b")
	require.True(t, ok)
	assert.Equal(t, int64(32+49), off)

	_, ok = topo.Offset(2, "trunk_b")
	assert.False(t, ok)
	_, ok = topo.Offset(0, "nope")
	assert.False(t, ok)

	s, ok := topo.Lookup("head_b_out_w")
	require.True(t, ok)
	assert.Equal(t, HeadOutWeight, s.Role)
}

func TestInvalidDims(t *testing.T) {
	_, err := NewTopology(Dims{Buckets: 0, Inputs: 4, Trunk: 2, Head: 1, Gate: 1})
	assert.Error(t, err)
	_, err = NewTopology(Dims{Buckets: 1, Inputs: 4, Trunk: -2, Head: 1, Gate: 1})
	assert.Error(t, err)
}

func TestRoles(t *testing.T) {
	for _, r := range Roles() {
		parsed, err := ParseRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
		assert.True(t, r.Width().Valid())
	}
	_, err := ParseRole("bogus")
	assert.Error(t, err)
	assert.Equal(t, "gate weights", GateWeight.Describe())
}

func TestDefaultScales(t *testing.T) {
	s := DefaultScales()
	require.NoError(t, s.Validate())
	assert.Equal(t, float32(256), s.Scale(TrunkWeight))
	assert.Equal(t, float32(256), s.Scale(TrunkBias))
	assert.Equal(t, float32(64), s.Scale(HeadWeight))
	assert.Equal(t, float32(64), s.Scale(GateOutWeight))
	assert.Equal(t, float32(16384), s.Scale(HeadBias))
	assert.Equal(t, float32(16384), s.Scale(GateOutBias))

	s.Set(GateBias, 0)
	assert.ErrorIs(t, s.Validate(), ErrInvalidScale)
}
