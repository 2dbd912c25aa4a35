package params

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"
	"slices"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/hailam/aethersprout/internal/nnue"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

const (
	safetensorsMetadataKey = "__metadata__"
	maxHeaderSize          = 100 << 20
)

// tensorInfo describes one tensor of the JSON header.
type tensorInfo struct {
	DType       string    `json:"dtype"`
	Shape       []int     `json:"shape"`
	DataOffsets [2]uint64 `json:"data_offsets"`
}

// byteSize returns the number of bytes the tensor's shape needs at the given
// element size, or false when a dimension is negative or the product
// overflows.
func (t tensorInfo) byteSize(elemSize int) (uint64, bool) {
	n := uint64(elemSize)
	for _, d := range t.Shape {
		if d < 0 {
			return 0, false
		}
		hi, lo := bits.Mul64(n, uint64(d))
		if hi != 0 || lo > math.MaxInt64 {
			return 0, false
		}
		n = lo
	}
	return n, true
}

// dtypeSize returns the element size of the float dtypes a trainer emits.
func dtypeSize(dtype string) int {
	switch dtype {
	case "F16", "BF16":
		return 2
	case "F32":
		return 4
	case "F64":
		return 8
	default:
		return 0
	}
}

type tensor struct {
	shape  []int
	values []float32
}

// Safetensors is a trained-parameter source backed by a .safetensors file.
//
// Bucket k of tensor "name" is found under the key "b{k}.{name}" or, for
// output-bucketed layers saved as one stacked tensor, under "name" whose
// leading dimension equals the bucket count.
type Safetensors struct {
	Metadata map[string]string

	buckets int
	tensors map[string]tensor
}

// LoadSafetensors reads a .safetensors file. Tensor data offsets must lie
// within the file.
func LoadSafetensors(path string, buckets int) (*Safetensors, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %q", path)
	}
	st, err := readSafetensors(f, buckets, info.Size())
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %q", path)
	}
	return st, nil
}

// ReadSafetensors decodes a safetensors stream, converting every tensor to
// float32. Tensor data is read as it arrives, so a header claiming more data
// than the stream holds fails without allocating for it.
func ReadSafetensors(r io.Reader, buckets int) (*Safetensors, error) {
	return readSafetensors(r, buckets, -1)
}

// readSafetensors decodes a stream of streamSize bytes, or of unknown size
// when streamSize is negative.
func readSafetensors(r io.Reader, buckets int, streamSize int64) (*Safetensors, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, errors.Wrapf(err, "failed to read header size")
	}
	if headerSize > maxHeaderSize {
		return nil, errors.Errorf("invalid header size: %d (too large)", headerSize)
	}
	maxData := uint64(math.MaxInt64)
	if streamSize >= 0 {
		if uint64(streamSize) < 8+headerSize {
			return nil, errors.Errorf("invalid header size: %d exceeds file size %d", headerSize, streamSize)
		}
		maxData = uint64(streamSize) - 8 - headerSize
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, errors.Wrapf(err, "failed to read header")
	}
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawMap); err != nil {
		return nil, errors.Wrapf(err, "failed to parse header JSON")
	}

	st := &Safetensors{
		buckets: buckets,
		tensors: make(map[string]tensor, len(rawMap)),
	}
	infos := make(map[string]tensorInfo, len(rawMap))
	var dataSize uint64
	for name, raw := range rawMap {
		if name == safetensorsMetadataKey {
			if err := json.Unmarshal(raw, &st.Metadata); err != nil {
				return nil, errors.Wrapf(err, "failed to parse metadata")
			}
			continue
		}
		var info tensorInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, errors.Wrapf(err, "failed to parse tensor %q", name)
		}
		size := dtypeSize(info.DType)
		if size == 0 {
			return nil, errors.Errorf("tensor %q: unsupported dtype %q", name, info.DType)
		}
		need, ok := info.byteSize(size)
		if !ok {
			return nil, errors.Errorf("tensor %q: invalid shape %v", name, info.Shape)
		}
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if end < start || end-start != need {
			return nil, errors.Errorf("tensor %q: shape %v of %s needs %d bytes, data_offsets %v",
				name, info.Shape, info.DType, need, info.DataOffsets)
		}
		if end > maxData {
			return nil, errors.Errorf("tensor %q: data_offsets %v beyond the %d bytes of tensor data",
				name, info.DataOffsets, maxData)
		}
		dataSize = max(dataSize, end)
		infos[name] = info
	}

	data, err := io.ReadAll(io.LimitReader(r, int64(dataSize)))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %d bytes of tensor data", dataSize)
	}
	if uint64(len(data)) != dataSize {
		return nil, errors.Errorf("tensor data truncated: got %d of %d bytes", len(data), dataSize)
	}

	for name, info := range infos {
		raw := data[info.DataOffsets[0]:info.DataOffsets[1]]
		st.tensors[name] = tensor{shape: info.Shape, values: decodeFloats(raw, info.DType)}
	}
	return st, nil
}

func decodeFloats(raw []byte, dtype string) []float32 {
	n := len(raw) / dtypeSize(dtype)
	out := make([]float32, n)
	for i := range out {
		switch dtype {
		case "F16":
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		case "BF16":
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		case "F32":
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		case "F64":
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
		}
	}
	return out
}

// Names returns the tensor names in the file, sorted.
func (s *Safetensors) Names() []string {
	names := make([]string, 0, len(s.tensors))
	for name := range s.tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Tensor implements nnue.Source.
func (s *Safetensors) Tensor(bucket int, name string) ([]float32, error) {
	if t, ok := s.tensors[fmt.Sprintf("b%d.%s", bucket, name)]; ok {
		return t.values, nil
	}

	t, ok := s.tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in bucket %d", nnue.ErrNotFound, name, bucket)
	}
	if bucket < 0 || bucket >= s.buckets {
		return nil, fmt.Errorf("bucket %d out of range [0, %d)", bucket, s.buckets)
	}
	if len(t.shape) == 0 || t.shape[0] != s.buckets {
		if s.buckets == 1 {
			return t.values, nil
		}
		return nil, fmt.Errorf("%w: stacked tensor %q has shape %v, expected leading dimension %d",
			nnue.ErrShapeMismatch, name, t.shape, s.buckets)
	}
	per := len(t.values) / s.buckets
	return t.values[bucket*per : (bucket+1)*per], nil
}
