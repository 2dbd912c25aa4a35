package nnue

import (
	"fmt"

	"k8s.io/klog/v2"
)

// RoleStats counts the values of one role that went through the quantizer.
type RoleStats struct {
	Role    Role
	Values  int64
	Clamped int64
}

// Report summarizes an export.
type Report struct {
	BytesWritten int64
	Buckets      int
	Roles        []RoleStats
}

func newReport(n int64, buckets int, stats []RoleStats) *Report {
	return &Report{BytesWritten: n, Buckets: buckets, Roles: stats}
}

// Values returns the total number of quantized values.
func (r *Report) Values() int64 {
	var n int64
	for _, s := range r.Roles {
		n += s.Values
	}
	return n
}

// Clamped returns the total number of clamped values.
func (r *Report) Clamped() int64 {
	var n int64
	for _, s := range r.Roles {
		n += s.Clamped
	}
	return n
}

// ClampedFor returns the clamp count of one role.
func (r *Report) ClampedFor(role Role) int64 {
	for _, s := range r.Roles {
		if s.Role == role {
			return s.Clamped
		}
	}
	return 0
}

// Diagnostics returns one line per role that had clamped values, e.g.
// "3 of 2048 gate weights clamped to range".
func (r *Report) Diagnostics() []string {
	var lines []string
	for _, s := range r.Roles {
		if s.Clamped == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d of %d %s clamped to range", s.Clamped, s.Values, s.Role.Describe()))
	}
	return lines
}

func (r *Report) log() {
	for _, line := range r.Diagnostics() {
		klog.Warning(line)
	}
	klog.V(1).Infof("exported %d buckets, %d bytes, %d of %d values clamped",
		r.Buckets, r.BytesWritten, r.Clamped(), r.Values())
}
