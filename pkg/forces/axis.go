// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forces

import (
	"fmt"
	"math"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
)

// Axis names a mirror force axis. It doubles as a clipping flag.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	}
	return fmt.Sprintf("Axis(%d)", uint8(a))
}

// Forces holds per-actuator mirror forces. X and Y are indexed by the
// actuator's XIndex and YIndex, Z by its Index.
type Forces struct {
	X []float64
	Y []float64
	Z []float64
}

// NewForces sizes zeroed force arrays for a table.
func NewForces(t *actuator.Table) Forces {
	return Forces{
		X: make([]float64, t.XCount()),
		Y: make([]float64, t.YCount()),
		Z: make([]float64, t.Count()),
	}
}

// Axis returns the array for a.
func (f Forces) Axis(a Axis) []float64 {
	switch a {
	case AxisX:
		return f.X
	case AxisY:
		return f.Y
	}
	return f.Z
}

// CopyFrom copies o into f. Both must be sized for the same table.
func (f Forces) CopyFrom(o Forces) {
	copy(f.X, o.X)
	copy(f.Y, o.Y)
	copy(f.Z, o.Z)
}

// Clone returns a deep copy.
func (f Forces) Clone() Forces {
	return Forces{
		X: append([]float64(nil), f.X...),
		Y: append([]float64(nil), f.Y...),
		Z: append([]float64(nil), f.Z...),
	}
}

// Zero sets every value to zero.
func (f Forces) Zero() {
	clear(f.X)
	clear(f.Y)
	clear(f.Z)
}

// Add accumulates o into f.
func (f Forces) Add(o Forces) {
	for i := range f.X {
		f.X[i] += o.X[i]
	}
	for i := range f.Y {
		f.Y[i] += o.Y[i]
	}
	for i := range f.Z {
		f.Z[i] += o.Z[i]
	}
}

// Scale multiplies every value by k.
func (f Forces) Scale(k float64) {
	for _, axis := range [][]float64{f.X, f.Y, f.Z} {
		for i := range axis {
			axis[i] *= k
		}
	}
}

// MaxAbs returns the largest absolute value.
func (f Forces) MaxAbs() float64 {
	m := 0.0
	for _, axis := range [][]float64{f.X, f.Y, f.Z} {
		for _, v := range axis {
			m = math.Max(m, math.Abs(v))
		}
	}
	return m
}

// Actuator returns the X, Y and Z force of one actuator. Missing axes read 0.
func (f Forces) Actuator(fa actuator.ForceActuator) (x, y, z float64) {
	if fa.XIndex >= 0 {
		x = f.X[fa.XIndex]
	}
	if fa.YIndex >= 0 {
		y = f.Y[fa.YIndex]
	}
	return x, y, f.Z[fa.Index]
}

// SetActuator writes the X, Y and Z force of one actuator. Axes the actuator
// lacks are dropped.
func (f Forces) SetActuator(fa actuator.ForceActuator, x, y, z float64) {
	if fa.XIndex >= 0 {
		f.X[fa.XIndex] = x
	}
	if fa.YIndex >= 0 {
		f.Y[fa.YIndex] = y
	}
	f.Z[fa.Index] = z
}

// stepToward moves current toward target by at most maxRate per element. A
// maxRate of zero or less jumps straight to the target.
func stepToward(current, target []float64, maxRate float64) {
	for i := range current {
		d := target[i] - current[i]
		if maxRate > 0 && math.Abs(d) > maxRate {
			d = math.Copysign(maxRate, d)
		}
		current[i] += d
	}
}
