package nnue

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrInvalidWidth       = errors.New("invalid element width")
	ErrMissingTensor      = errors.New("missing tensor")
	ErrShapeMismatch      = errors.New("tensor shape mismatch")
	ErrIO                 = errors.New("i/o failure")
	ErrNotFound           = errors.New("tensor not found")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrDimMismatch        = errors.New("dimension mismatch")
	ErrSizeMismatch       = errors.New("size mismatch")
	ErrInvalidScale       = errors.New("invalid scale")
)

// MissingTensorError reports a tensor the schema names but the trained
// parameters lack.
type MissingTensorError struct {
	Bucket int
	Name   string
}

func (e *MissingTensorError) Error() string {
	return fmt.Sprintf("missing tensor %q in bucket %d", e.Name, e.Bucket)
}

func (e *MissingTensorError) Is(target error) bool {
	return target == ErrMissingTensor
}

// ShapeMismatchError reports a trained tensor whose length disagrees with
// the schema's rows*cols.
type ShapeMismatchError struct {
	Bucket int
	Name   string
	Want   int
	Got    int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("tensor %q in bucket %d: expected %d values, got %d", e.Name, e.Bucket, e.Want, e.Got)
}

func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// IOError wraps a failed write to the export sink.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Is(target error) bool {
	return target == ErrIO
}
