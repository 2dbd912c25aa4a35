package nnue

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// HeadWeights are the quantized parameters of one trunk -> hidden -> scalar
// pathway (head A, head B or the gate).
type HeadWeights struct {
	Weights    []int8 // [hidden][trunk]
	Bias       []int32
	OutWeights []int8 // [hidden]
	OutBias    int32
}

// BucketWeights are the quantized parameters of one bucket.
type BucketWeights struct {
	TrunkWeights []int16 // [inputs][trunk]
	TrunkBias    []int16
	HeadA        HeadWeights
	HeadB        HeadWeights
	Gate         HeadWeights
}

// Network is a loaded network file.
type Network struct {
	Header   Header
	Topology *Topology
	Buckets  []BucketWeights

	body []byte
}

// LoadFile loads a network file, checking that its length matches the
// header before reading any tensor.
func LoadFile(filename string) (*Network, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open network file: %w", err)
	}
	defer f.Close()

	header, err := ReadHeader(f)
	if err != nil {
		return nil, err
	}
	topo, err := NewTopology(header.Dims())
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat network file: %w", err)
	}
	if info.Size() != topo.FileSize() {
		return nil, fmt.Errorf("%w: file is %d bytes, header implies %d", ErrSizeMismatch, info.Size(), topo.FileSize())
	}

	return loadBody(header, topo, f)
}

// Load reads a network from r. r must hold exactly one network.
func Load(r io.Reader) (*Network, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	topo, err := NewTopology(header.Dims())
	if err != nil {
		return nil, err
	}
	return loadBody(header, topo, r)
}

func loadBody(header Header, topo *Topology, r io.Reader) (*Network, error) {
	body := make([]byte, int64(topo.Dims.Buckets)*int64(topo.BucketSize()))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("failed to read bucket data (file truncated?): %w", err)
	}
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("%w: trailing data after last bucket", ErrSizeMismatch)
	}

	n := &Network{
		Header:   header,
		Topology: topo,
		Buckets:  make([]BucketWeights, topo.Dims.Buckets),
		body:     body,
	}
	for b := range n.Buckets {
		n.Buckets[b] = n.decodeBucket(b)
	}
	return n, nil
}

func (n *Network) decodeBucket(bucket int) BucketWeights {
	raw := func(name string) []byte {
		b, _ := n.Raw(bucket, name)
		return b
	}
	head := func(prefix string) HeadWeights {
		return HeadWeights{
			Weights:    decodeInt8(raw(prefix + "_w")),
			Bias:       decodeInt32(raw(prefix + "_b")),
			OutWeights: decodeInt8(raw(prefix + "_out_w")),
			OutBias:    decodeInt32(raw(prefix + "_out_b"))[0],
		}
	}
	return BucketWeights{
		TrunkWeights: decodeInt16(raw("trunk_w")),
		TrunkBias:    decodeInt16(raw("trunk_b")),
		HeadA:        head("head_a"),
		HeadB:        head("head_b"),
		Gate:         head("gate"),
	}
}

// Raw returns the stored bytes of a tensor.
func (n *Network) Raw(bucket int, name string) ([]byte, error) {
	s, ok := n.Topology.Lookup(name)
	if !ok || bucket < 0 || bucket >= len(n.Buckets) {
		return nil, fmt.Errorf("%w: %q in bucket %d", ErrNotFound, name, bucket)
	}
	off, _ := n.Topology.Offset(bucket, name)
	off -= HeaderSize
	return n.body[off : off+int64(s.Size())], nil
}

// Dequantized recovers the float values of a tensor with the given scales.
func (n *Network) Dequantized(bucket int, name string, scales Scales) ([]float32, error) {
	raw, err := n.Raw(bucket, name)
	if err != nil {
		return nil, err
	}
	s, _ := n.Topology.Lookup(name)
	return Dequantize(raw, s.Width, scales[s.Role])
}

// Tensor lets a loaded network act as a Source, with values recovered using
// DefaultScales. Re-exporting a loaded network reproduces it byte for byte
// while every int32 value fits float32's 24-bit mantissa.
func (n *Network) Tensor(bucket int, name string) ([]float32, error) {
	return n.Dequantized(bucket, name, DefaultScales())
}

func decodeInt8(b []byte) []int8 {
	out := make([]int8, len(b))
	for i, v := range b {
		out[i] = int8(v)
	}
	return out
}

func decodeInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func decodeInt32(b []byte) []int32 {
	out := make([]int32, len(b)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
