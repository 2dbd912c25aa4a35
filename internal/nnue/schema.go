package nnue

import "fmt"

// Role is the part a tensor plays in the network. It fixes the element width.
type Role int

const (
	TrunkWeight Role = iota
	TrunkBias
	HeadWeight
	HeadBias
	HeadOutWeight
	HeadOutBias
	GateWeight
	GateBias
	GateOutWeight
	GateOutBias

	numRoles
)

var roleNames = [numRoles]string{
	"trunk_weight",
	"trunk_bias",
	"head_weight",
	"head_bias",
	"head_out_weight",
	"head_out_bias",
	"gate_weight",
	"gate_bias",
	"gate_out_weight",
	"gate_out_bias",
}

var roleDescriptions = [numRoles]string{
	"trunk weights",
	"trunk biases",
	"head weights",
	"head biases",
	"head output weights",
	"head output biases",
	"gate weights",
	"gate biases",
	"gate output weights",
	"gate output biases",
}

// Roles returns every role in declaration order.
func Roles() []Role {
	roles := make([]Role, numRoles)
	for i := range roles {
		roles[i] = Role(i)
	}
	return roles
}

func (r Role) String() string {
	if r < 0 || r >= numRoles {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

// Describe returns a plural, human-readable name ("gate weights").
func (r Role) Describe() string {
	if r < 0 || r >= numRoles {
		return r.String()
	}
	return roleDescriptions[r]
}

// ParseRole maps a role name such as "head_bias" back to a Role.
func ParseRole(s string) (Role, error) {
	for i, name := range roleNames {
		if name == s {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tensor role %q", s)
}

// Width returns the element width the file format stores this role with.
// Trunk tensors are int16, hidden and output weights int8, all head and
// gate biases int32.
func (r Role) Width() Width {
	switch r {
	case TrunkWeight, TrunkBias:
		return Int16
	case HeadBias, HeadOutBias, GateBias, GateOutBias:
		return Int32
	default:
		return Int8
	}
}

// TensorSpec describes one named tensor of a bucket.
type TensorSpec struct {
	Name  string
	Rows  int
	Cols  int // 1 for bias vectors
	Width Width
	Role  Role
}

// Len returns the number of elements.
func (s TensorSpec) Len() int {
	return s.Rows * s.Cols
}

// Size returns the number of bytes the tensor occupies in the file.
func (s TensorSpec) Size() int {
	return s.Rows * s.Cols * int(s.Width)
}

func (s TensorSpec) String() string {
	return fmt.Sprintf("%s[%dx%d]%s", s.Name, s.Rows, s.Cols, s.Width)
}

func tensorSpec(name string, rows, cols int, role Role) TensorSpec {
	return TensorSpec{Name: name, Rows: rows, Cols: cols, Width: role.Width(), Role: role}
}

// Topology is the ordered parameter set of one bucket. Every bucket of a
// file shares the same topology.
type Topology struct {
	Dims    Dims
	Tensors []TensorSpec

	offsets    map[string]int
	index      map[string]int
	bucketSize int
}

// NewTopology builds the bucket schema for the given dimensions:
// trunk (inputs -> trunk), heads A and B (trunk -> head -> 1) and the gate
// (trunk -> gate -> 1). Weight matrices are row-major [rows][cols].
func NewTopology(d Dims) (*Topology, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	tensors := []TensorSpec{
		tensorSpec("trunk_w", d.Inputs, d.Trunk, TrunkWeight),
		tensorSpec("trunk_b", d.Trunk, 1, TrunkBias),
	}
	for _, head := range []string{"head_a", "head_b"} {
		tensors = append(tensors,
			tensorSpec(head+"_w", d.Head, d.Trunk, HeadWeight),
			tensorSpec(head+"_b", d.Head, 1, HeadBias),
			tensorSpec(head+"_out_w", 1, d.Head, HeadOutWeight),
			tensorSpec(head+"_out_b", 1, 1, HeadOutBias),
		)
	}
	tensors = append(tensors,
		tensorSpec("gate_w", d.Gate, d.Trunk, GateWeight),
		tensorSpec("gate_b", d.Gate, 1, GateBias),
		tensorSpec("gate_out_w", 1, d.Gate, GateOutWeight),
		tensorSpec("gate_out_b", 1, 1, GateOutBias),
	)

	t := &Topology{
		Dims:    d,
		Tensors: tensors,
		offsets: make(map[string]int, len(tensors)),
		index:   make(map[string]int, len(tensors)),
	}
	for i, s := range tensors {
		t.offsets[s.Name] = t.bucketSize
		t.index[s.Name] = i
		t.bucketSize += s.Size()
	}
	return t, nil
}

// DefaultTopology returns the topology for DefaultDims.
func DefaultTopology() *Topology {
	t, err := NewTopology(DefaultDims())
	if err != nil {
		panic(err)
	}
	return t
}

// BucketSize returns the byte size of one bucket's body.
func (t *Topology) BucketSize() int {
	return t.bucketSize
}

// FileSize returns the exact size of a file written with this topology.
func (t *Topology) FileSize() int64 {
	return HeaderSize + int64(t.Dims.Buckets)*int64(t.bucketSize)
}

// BucketOffset returns the file offset of the first byte of a bucket.
func (t *Topology) BucketOffset(bucket int) int64 {
	return HeaderSize + int64(bucket)*int64(t.bucketSize)
}

// Offset returns the file offset of a tensor in the given bucket.
func (t *Topology) Offset(bucket int, name string) (int64, bool) {
	off, ok := t.offsets[name]
	if !ok || bucket < 0 || bucket >= t.Dims.Buckets {
		return 0, false
	}
	return t.BucketOffset(bucket) + int64(off), true
}

// Lookup returns the TensorSpec of a named tensor.
func (t *Topology) Lookup(name string) (TensorSpec, bool) {
	i, ok := t.index[name]
	if !ok {
		return TensorSpec{}, false
	}
	return t.Tensors[i], true
}
