package params

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/hailam/aethersprout/internal/nnue"
)

type fixtureTensor struct {
	name  string
	dtype string
	shape []int
	data  []float64
}

// writeSafetensors encodes tensors in the safetensors layout.
func writeSafetensors(t *testing.T, metadata map[string]string, tensors ...fixtureTensor) []byte {
	t.Helper()
	header := make(map[string]any)
	if metadata != nil {
		header["__metadata__"] = metadata
	}
	sort.Slice(tensors, func(i, j int) bool { return tensors[i].name < tensors[j].name })

	var data bytes.Buffer
	for _, ft := range tensors {
		start := data.Len()
		for _, v := range ft.data {
			switch ft.dtype {
			case "F16":
				require.NoError(t, binary.Write(&data, binary.LittleEndian, float16.Fromfloat32(float32(v)).Bits()))
			case "BF16":
				require.NoError(t, binary.Write(&data, binary.LittleEndian, uint16(math.Float32bits(float32(v))>>16)))
			case "F32":
				require.NoError(t, binary.Write(&data, binary.LittleEndian, float32(v)))
			case "F64":
				require.NoError(t, binary.Write(&data, binary.LittleEndian, v))
			}
		}
		header[ft.name] = map[string]any{
			"dtype":        ft.dtype,
			"shape":        ft.shape,
			"data_offsets": []int{start, data.Len()},
		}
	}
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, binary.Write(&out, binary.LittleEndian, uint64(len(headerJSON))))
	out.Write(headerJSON)
	out.Write(data.Bytes())
	return out.Bytes()
}

// rawSafetensors frames a hand-written JSON header with data.
func rawSafetensors(header string, data []byte) []byte {
	out := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
	out = append(out, header...)
	return append(out, data...)
}

func TestMapSource(t *testing.T) {
	m := Map{}
	values := []float32{1, 2, 3}
	m.Set(1, "trunk_b", values)
	values[0] = 42

	got, err := m.Tensor(1, "trunk_b")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got)

	_, err = m.Tensor(0, "trunk_b")
	assert.ErrorIs(t, err, nnue.ErrNotFound)
}

func TestReadSafetensorsDTypes(t *testing.T) {
	raw := writeSafetensors(t, map[string]string{"epoch": "12"},
		fixtureTensor{"f16", "F16", []int{2}, []float64{0.5, -2}},
		fixtureTensor{"bf16", "BF16", []int{2}, []float64{1.5, -0.25}},
		fixtureTensor{"f32", "F32", []int{1, 2}, []float64{0.1, 3}},
		fixtureTensor{"f64", "F64", []int{2}, []float64{0.75, -8}},
	)
	st, err := ReadSafetensors(bytes.NewReader(raw), 1)
	require.NoError(t, err)
	assert.Equal(t, "12", st.Metadata["epoch"])
	assert.Equal(t, []string{"bf16", "f16", "f32", "f64"}, st.Names())

	for name, want := range map[string][]float32{
		"f16":  {0.5, -2},
		"bf16": {1.5, -0.25},
		"f32":  {0.1, 3},
		"f64":  {0.75, -8},
	} {
		got, err := st.Tensor(0, name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestSafetensorsBucketKeys(t *testing.T) {
	raw := writeSafetensors(t, nil,
		fixtureTensor{"b0.gate_b", "F32", []int{1}, []float64{1}},
		fixtureTensor{"b1.gate_b", "F32", []int{1}, []float64{2}},
		fixtureTensor{"gate_b", "F32", []int{2, 1}, []float64{9, 9}},
		fixtureTensor{"trunk_b", "F32", []int{2, 2}, []float64{1, 2, 3, 4}},
		fixtureTensor{"head_a_b", "F32", []int{3}, []float64{1, 2, 3}},
	)
	st, err := ReadSafetensors(bytes.NewReader(raw), 2)
	require.NoError(t, err)

	// Per-bucket keys win over a stacked tensor.
	got, err := st.Tensor(1, "gate_b")
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, got)

	got, err = st.Tensor(1, "trunk_b")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, got)

	_, err = st.Tensor(0, "head_a_b")
	assert.ErrorIs(t, err, nnue.ErrShapeMismatch)

	_, err = st.Tensor(0, "gate_w")
	assert.ErrorIs(t, err, nnue.ErrNotFound)
}

func TestReadSafetensorsErrors(t *testing.T) {
	_, err := ReadSafetensors(bytes.NewReader([]byte{1, 2}), 1)
	assert.Error(t, err)

	raw := writeSafetensors(t, nil, fixtureTensor{"x", "I8", []int{1}, nil})
	_, err = ReadSafetensors(bytes.NewReader(raw), 1)
	assert.ErrorContains(t, err, "unsupported dtype")

	raw = writeSafetensors(t, nil, fixtureTensor{"x", "F32", []int{3}, []float64{1, 2}})
	_, err = ReadSafetensors(bytes.NewReader(raw), 1)
	assert.ErrorContains(t, err, "needs 12 bytes")

	raw = writeSafetensors(t, nil, fixtureTensor{"x", "F32", []int{2}, []float64{1, 2}})
	_, err = ReadSafetensors(bytes.NewReader(raw[:len(raw)-1]), 1)
	assert.ErrorContains(t, err, "truncated")

	t.Run("OverflowingShape", func(t *testing.T) {
		raw := rawSafetensors(`{"trunk_b":{"dtype":"F32","shape":[2305843009213693952],"data_offsets":[0,9223372036854775808]}}`, nil)
		var err error
		require.NotPanics(t, func() { _, err = ReadSafetensors(bytes.NewReader(raw), 1) })
		assert.ErrorContains(t, err, "invalid shape")
	})

	t.Run("NegativeDimension", func(t *testing.T) {
		raw := rawSafetensors(`{"x":{"dtype":"F32","shape":[-1],"data_offsets":[0,0]}}`, nil)
		_, err := ReadSafetensors(bytes.NewReader(raw), 1)
		assert.ErrorContains(t, err, "invalid shape")
	})

	t.Run("OffsetsBeyondStream", func(t *testing.T) {
		raw := rawSafetensors(`{"x":{"dtype":"F32","shape":[268435456],"data_offsets":[0,1073741824]}}`, []byte{1, 2, 3, 4})
		_, err := ReadSafetensors(bytes.NewReader(raw), 1)
		assert.ErrorContains(t, err, "truncated")
	})

	t.Run("OffsetsBeyondFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.safetensors")
		raw := rawSafetensors(`{"x":{"dtype":"F32","shape":[268435456],"data_offsets":[0,1073741824]}}`, []byte{1, 2, 3, 4})
		require.NoError(t, os.WriteFile(path, raw, 0o644))
		_, err := LoadSafetensors(path, 1)
		assert.ErrorContains(t, err, "beyond the 4 bytes of tensor data")
	})

	t.Run("HeaderBeyondFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "short.safetensors")
		raw := rawSafetensors(`{}`, nil)
		binary.LittleEndian.PutUint64(raw, 1000)
		require.NoError(t, os.WriteFile(path, raw, 0o644))
		_, err := LoadSafetensors(path, 1)
		assert.ErrorContains(t, err, "exceeds file size")
	})
}

func TestSafetensorsFeedsExporter(t *testing.T) {
	topo, err := nnue.NewTopology(nnue.Dims{Buckets: 2, Inputs: 4, Trunk: 2, Head: 1, Gate: 1})
	require.NoError(t, err)

	var tensors []fixtureTensor
	for _, s := range topo.Tensors {
		data := make([]float64, topo.Dims.Buckets*s.Len())
		for i := range data {
			data[i] = float64(i%5) / 8
		}
		tensors = append(tensors, fixtureTensor{s.Name, "F32", []int{topo.Dims.Buckets, s.Rows, s.Cols}, data})
	}
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, os.WriteFile(path, writeSafetensors(t, nil, tensors...), 0o644))

	st, err := LoadSafetensors(path, topo.Dims.Buckets)
	require.NoError(t, err)
	m, err := Collect(st, topo)
	require.NoError(t, err)

	e, err := nnue.NewExporter(topo, nnue.DefaultScales())
	require.NoError(t, err)
	var fromFile, fromMap bytes.Buffer
	_, _, err = e.Export(st, &fromFile)
	require.NoError(t, err)
	_, _, err = e.Export(m, &fromMap)
	require.NoError(t, err)
	assert.Equal(t, topo.FileSize(), int64(fromFile.Len()))
	assert.Equal(t, fromFile.Bytes(), fromMap.Bytes())
}

func TestCollectShapeMismatch(t *testing.T) {
	topo, err := nnue.NewTopology(nnue.Dims{Buckets: 1, Inputs: 4, Trunk: 2, Head: 1, Gate: 1})
	require.NoError(t, err)
	src := nnue.SourceFunc(func(int, string) ([]float32, error) { return []float32{1}, nil })
	_, err = Collect(src, topo)
	assert.ErrorIs(t, err, nnue.ErrShapeMismatch)
}
