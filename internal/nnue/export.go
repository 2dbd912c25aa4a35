package nnue

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Source supplies trained float32 parameters, one set per bucket. The
// exporter only reads from it and never retains the returned slices.
// A tensor that does not exist must be reported with an error wrapping
// ErrNotFound.
type Source interface {
	Tensor(bucket int, name string) ([]float32, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(bucket int, name string) ([]float32, error)

func (f SourceFunc) Tensor(bucket int, name string) ([]float32, error) {
	return f(bucket, name)
}

// Exporter writes trained parameters as a network file.
type Exporter struct {
	topo     *Topology
	header   Header
	scales   Scales
	parallel int
	progress func(bucket int)
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithParallel encodes up to n buckets concurrently. The output is
// byte-identical to a sequential export.
func WithParallel(n int) Option {
	return func(e *Exporter) {
		e.parallel = n
	}
}

// WithProgress registers a callback invoked after each bucket is encoded.
// With WithParallel it may be called from several goroutines.
func WithProgress(fn func(bucket int)) Option {
	return func(e *Exporter) {
		e.progress = fn
	}
}

// NewExporter creates an exporter for a topology and its quantization scales.
func NewExporter(topo *Topology, scales Scales, opts ...Option) (*Exporter, error) {
	if err := scales.Validate(); err != nil {
		return nil, err
	}
	e := &Exporter{
		topo:   topo,
		header: NewHeader(topo),
		scales: scales,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Topology returns the schema the exporter writes.
func (e *Exporter) Topology() *Topology {
	return e.topo
}

// Export writes the header and every bucket, ascending, to w. It returns
// the number of bytes written, which always equals Topology().FileSize()
// on success, and a report of clamped values.
func (e *Exporter) Export(src Source, w io.Writer) (int64, *Report, error) {
	var counter ClampCounter

	n, err := e.header.WriteTo(w)
	if err != nil {
		return n, nil, &IOError{Op: "write header", Err: err}
	}

	var body int64
	if e.parallel > 1 {
		body, err = e.exportParallel(src, w, &counter)
	} else {
		body, err = e.exportSequential(src, w, &counter)
	}
	n += body
	if err != nil {
		return n, nil, err
	}

	if want := e.topo.FileSize(); n != want {
		return n, nil, fmt.Errorf("%w: wrote %d bytes, expected %d", ErrSizeMismatch, n, want)
	}

	report := newReport(n, e.topo.Dims.Buckets, counter.Stats())
	report.log()
	return n, report, nil
}

func (e *Exporter) exportSequential(src Source, w io.Writer, counter *ClampCounter) (int64, error) {
	var written int64
	buf := make([]byte, e.topo.BucketSize())
	for bucket := 0; bucket < e.topo.Dims.Buckets; bucket++ {
		if err := e.encodeBucket(src, bucket, buf, counter); err != nil {
			return written, err
		}
		n, err := w.Write(buf)
		written += int64(n)
		if err != nil {
			return written, &IOError{Op: fmt.Sprintf("write bucket %d", bucket), Err: err}
		}
	}
	return written, nil
}

// exportParallel encodes every bucket into its pre-reserved slice of one
// body buffer, then writes the body in a single call.
func (e *Exporter) exportParallel(src Source, w io.Writer, counter *ClampCounter) (int64, error) {
	buckets := e.topo.Dims.Buckets
	size := e.topo.BucketSize()
	body := make([]byte, buckets*size)
	errs := make([]error, buckets)

	var g errgroup.Group
	g.SetLimit(e.parallel)
	for bucket := 0; bucket < buckets; bucket++ {
		g.Go(func() error {
			errs[bucket] = e.encodeBucket(src, bucket, body[bucket*size:(bucket+1)*size], counter)
			return errs[bucket]
		})
	}
	if err := g.Wait(); err != nil {
		// Report the lowest failing bucket so errors match a sequential run.
		return 0, firstError(errs)
	}

	n, err := w.Write(body)
	if err != nil {
		return int64(n), &IOError{Op: "write buckets", Err: err}
	}
	return int64(n), nil
}

// encodeBucket quantizes one bucket's tensors, in schema order, into dst.
func (e *Exporter) encodeBucket(src Source, bucket int, dst []byte, counter *ClampCounter) error {
	off := 0
	for _, s := range e.topo.Tensors {
		values, err := src.Tensor(bucket, s.Name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return &MissingTensorError{Bucket: bucket, Name: s.Name}
			}
			return fmt.Errorf("failed to fetch tensor %q of bucket %d: %w", s.Name, bucket, err)
		}
		if len(values) != s.Len() {
			return &ShapeMismatchError{Bucket: bucket, Name: s.Name, Want: s.Len(), Got: len(values)}
		}

		clamped, err := QuantizeInto(dst[off:off+s.Size()], values, s.Width, e.scales[s.Role])
		if err != nil {
			return fmt.Errorf("failed to quantize %q of bucket %d: %w", s.Name, bucket, err)
		}
		counter.Add(s.Role, len(values), clamped)
		off += s.Size()
	}

	klog.V(2).Infof("encoded bucket %d (%d bytes)", bucket, off)
	if e.progress != nil {
		e.progress(bucket)
	}
	return nil
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
