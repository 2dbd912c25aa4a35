package nnue

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Header is the fixed 32-byte preamble of a network file.
// All integers are little-endian.
type Header struct {
	Magic   [8]byte
	Version uint32
	Buckets uint32
	Inputs  uint32
	Trunk   uint32
	Head    uint32
	Gate    uint32
}

// NewHeader builds the header describing a topology.
func NewHeader(t *Topology) Header {
	h := Header{
		Version: Version,
		Buckets: uint32(t.Dims.Buckets),
		Inputs:  uint32(t.Dims.Inputs),
		Trunk:   uint32(t.Dims.Trunk),
		Head:    uint32(t.Dims.Head),
		Gate:    uint32(t.Dims.Gate),
	}
	copy(h.Magic[:], Magic)
	return h
}

// Dims returns the dimensions the header declares.
func (h Header) Dims() Dims {
	return Dims{
		Buckets: int(h.Buckets),
		Inputs:  int(h.Inputs),
		Trunk:   int(h.Trunk),
		Head:    int(h.Head),
		Gate:    int(h.Gate),
	}
}

// MarshalBinary encodes the header.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	if _, err := binary.Encode(buf, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("failed to encode header: %w", err)
	}
	return buf, nil
}

// WriteTo writes the header to w.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	buf, err := h.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadHeader reads a header and checks its magic and version.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("failed to read header: %w", err)
	}
	if !bytes.Equal(h.Magic[:], []byte(Magic)) {
		return h, fmt.Errorf("%w: expected %q, got %q", ErrInvalidMagic, Magic, h.Magic[:])
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: expected %d, got %d", ErrUnsupportedVersion, Version, h.Version)
	}
	if err := h.Dims().Validate(); err != nil {
		return h, fmt.Errorf("%w: %v", ErrDimMismatch, err)
	}
	return h, nil
}
