package nnue

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailam/aethersprout/internal/board"
)

func loadExported(t *testing.T, d Dims, src Source) *Network {
	t.Helper()
	e := newTestExporter(t, d)
	var buf bytes.Buffer
	_, _, err := e.Export(src, &buf)
	require.NoError(t, err)
	net, err := Load(&buf)
	require.NoError(t, err)
	return net
}

func TestForwardHandComputed(t *testing.T) {
	d := Dims{Buckets: 1, Inputs: 2, Trunk: 2, Head: 1, Gate: 1}
	topo, err := NewTopology(d)
	require.NoError(t, err)
	src := fillSource(topo, zeros)
	src[0]["trunk_w"] = []float32{0.5, 0, 0, 0.25} // int16 128, 0, 0, 64
	src[0]["trunk_b"] = []float32{0.25, 0}         // 64, 0
	src[0]["head_a_w"] = []float32{1.0, 0.5}       // int8 64, 32
	src[0]["head_a_out_w"] = []float32{1.0}        // 64
	src[0]["head_b_out_b"] = []float32{0.5}        // int32 8192

	net := loadExported(t, d, src)

	acc, err := net.Accumulate(0, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []int16{192, 64}, acc.Values)

	out := net.Forward(acc)
	// hidden A = (192*64 + 64*32) >> 6 = 224, score A = 224*64
	assert.Equal(t, int32(14336), out.ScoreA)
	assert.Equal(t, int32(8192), out.ScoreB)
	assert.InDelta(t, 0.5, out.Gate, 1e-12)
	assert.Equal(t, (14336+8192)/2/64, out.Score)
}

func TestForwardActivationClamp(t *testing.T) {
	assert.Equal(t, int16(0), ClampedReLU(-10))
	assert.Equal(t, int16(100), ClampedReLU(100))
	assert.Equal(t, int16(255), ClampedReLU(300))
}

func TestAccumulateErrors(t *testing.T) {
	d := Dims{Buckets: 1, Inputs: 2, Trunk: 2, Head: 1, Gate: 1}
	topo, err := NewTopology(d)
	require.NoError(t, err)
	net := loadExported(t, d, fillSource(topo, zeros))

	_, err = net.Accumulate(1, nil)
	assert.Error(t, err)
	_, err = net.Accumulate(0, []int{2})
	assert.Error(t, err)
	_, err = net.Evaluate(board.NewPosition())
	assert.ErrorIs(t, err, ErrDimMismatch)
}

func TestFeatureIndex(t *testing.T) {
	wp := board.NewPiece(board.Pawn, board.White)
	bk := board.NewPiece(board.King, board.Black)

	assert.Equal(t, 12, FeatureIndex(board.White, wp, board.Square(12)))     // own pawn e2
	assert.Equal(t, 384+5*64+60, FeatureIndex(board.White, bk, board.E8))    // enemy king e8
	assert.Equal(t, 384+52, FeatureIndex(board.Black, wp, board.Square(12))) // e2 mirrored to e7
	assert.Equal(t, 5*64+4, FeatureIndex(board.Black, bk, board.E8))         // own king, relative e1
	assert.Equal(t, -1, FeatureIndex(board.White, board.NoPiece, board.E4))

	pos := board.NewPosition()
	white := ActiveFeatures(pos, board.White)
	black := ActiveFeatures(pos, board.Black)
	assert.Len(t, white, 32)
	assert.ElementsMatch(t, white, black) // the start position is symmetric
	for _, idx := range white {
		assert.True(t, idx >= 0 && idx < FeatureCount)
	}
}

func TestEvaluateSelectsKingBucket(t *testing.T) {
	topo := DefaultTopology()
	src := fillSource(topo, func(b int, s TensorSpec, i int) float32 {
		if s.Role == HeadOutBias {
			return float32(b) // score = 16384*b/64 regardless of the gate
		}
		return 0
	})

	// Export through a file so LoadFile's length check is exercised too.
	e, err := NewExporter(topo, DefaultScales(), WithParallel(4))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "aethersprout768.nnue")
	_, err = e.WriteFile(src, path)
	require.NoError(t, err)
	net, err := LoadFile(path)
	require.NoError(t, err)

	cases := []struct {
		fen    string
		bucket int
	}{
		{board.StartFEN, 0},
		{"8/8/8/8/4K3/8/8/k7 w - - 0 1", 3},
		{"8/8/8/4k3/8/8/8/K7 b - - 0 1", 3},
		{"K7/8/8/8/8/8/8/7k b - - 0 1", 7},
		{"K7/8/8/8/8/8/8/7k w - - 0 1", 7},
		{"k7/8/8/8/8/8/8/7K b - - 0 1", 0},
	}
	for _, c := range cases {
		pos, err := board.ParseFEN(c.fen)
		require.NoError(t, err)
		out, err := net.Evaluate(pos)
		require.NoError(t, err, c.fen)
		assert.Equal(t, c.bucket, out.Bucket, c.fen)
		assert.Equal(t, 256*c.bucket, out.Score, c.fen)
	}
}

func TestLoadFileRejectsBadLength(t *testing.T) {
	d := scenarioDims
	topo, err := NewTopology(d)
	require.NoError(t, err)
	e, err := NewExporter(topo, DefaultScales())
	require.NoError(t, err)
	var buf bytes.Buffer
	_, _, err = e.Export(fillSource(topo, zeros), &buf)
	require.NoError(t, err)

	dir := t.TempDir()
	short := filepath.Join(dir, "short.nnue")
	require.NoError(t, os.WriteFile(short, buf.Bytes()[:buf.Len()-1], 0644))
	_, err = LoadFile(short)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	long := filepath.Join(dir, "long.nnue")
	require.NoError(t, os.WriteFile(long, append(bytes.Clone(buf.Bytes()), 0), 0644))
	_, err = LoadFile(long)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = Load(bytes.NewReader(append(bytes.Clone(buf.Bytes()), 0)))
	assert.ErrorIs(t, err, ErrSizeMismatch)
	_, err = Load(bytes.NewReader(buf.Bytes()[:buf.Len()-1]))
	assert.Error(t, err)
}
