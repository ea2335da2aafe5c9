// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forces

import (
	"errors"
	"fmt"
	"math"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
)

// Standard gravity, m/s².
const gravity = 9.80665

// TrigTable gives forces as Sin·sin(a) + Cos·cos(a) + Offset for an angle a.
type TrigTable struct {
	Sin    Forces
	Cos    Forces
	Offset Forces
}

func newTrigTable(t *actuator.Table) TrigTable {
	return TrigTable{Sin: NewForces(t), Cos: NewForces(t), Offset: NewForces(t)}
}

// Evaluate writes the forces for angle degrees into out.
func (tt TrigTable) Evaluate(degrees float64, out Forces) {
	s, c := math.Sincos(degrees * math.Pi / 180)
	for _, a := range []Axis{AxisX, AxisY, AxisZ} {
		sin, cos, off, dst := tt.Sin.Axis(a), tt.Cos.Axis(a), tt.Offset.Axis(a), out.Axis(a)
		for i := range dst {
			dst[i] = sin[i]*s + cos[i]*c + off[i]
		}
	}
}

// LinearTable gives forces as a weighted sum of input terms.
type LinearTable struct {
	Terms []Forces
}

func newLinearTable(t *actuator.Table, terms int) LinearTable {
	l := LinearTable{Terms: make([]Forces, terms)}
	for i := range l.Terms {
		l.Terms[i] = NewForces(t)
	}
	return l
}

// Evaluate writes Σ inputs[k]·Terms[k] into out. Missing inputs read 0.
func (l LinearTable) Evaluate(inputs []float64, out Forces) {
	out.Zero()
	for k, term := range l.Terms {
		if k >= len(inputs) || inputs[k] == 0 {
			continue
		}
		for _, a := range []Axis{AxisX, AxisY, AxisZ} {
			src, dst := term.Axis(a), out.Axis(a)
			for i := range dst {
				dst[i] += inputs[k] * src[i]
			}
		}
	}
}

// Tables are the per-actuator lookup tables of the computed components.
type Tables struct {
	Static Forces
	// Elevation is evaluated at the elevation angle, 90° pointing at zenith.
	Elevation TrigTable
	Azimuth   TrigTable
	// Thermal terms: uniform, X gradient, Y gradient, radial gradient.
	Thermal LinearTable
	// Velocity and Acceleration terms: rotation about X, Y, Z.
	Velocity     LinearTable
	Acceleration LinearTable
}

// DefaultTables spreads the mirror weight evenly over the actuators. At
// zenith the Z cylinders carry it all; toward the horizon the Y cylinders
// take the lateral share. Acceleration terms are the inertial reaction of
// each actuator's share of the mirror mass.
func DefaultTables(t *actuator.Table, weight float64) Tables {
	tb := Tables{
		Static:       NewForces(t),
		Elevation:    newTrigTable(t),
		Azimuth:      newTrigTable(t),
		Thermal:      newLinearTable(t, 4),
		Velocity:     newLinearTable(t, 3),
		Acceleration: newLinearTable(t, 3),
	}
	n := float64(t.Count())
	if n == 0 {
		return tb
	}
	for i := range tb.Elevation.Sin.Z {
		tb.Elevation.Sin.Z[i] = weight / n
	}
	if ny := float64(t.YCount()); ny > 0 {
		for i := range tb.Elevation.Cos.Y {
			tb.Elevation.Cos.Y[i] = weight / ny
		}
	}

	mass := weight / gravity / n
	for _, fa := range t.ForceActuators {
		x, y := fa.Position.X(), fa.Position.Y()
		// (α × r)·z = αx·y − αy·x
		tb.Acceleration.Terms[0].Z[fa.Index] = mass * y
		tb.Acceleration.Terms[1].Z[fa.Index] = -mass * x
		if fa.XIndex >= 0 {
			tb.Acceleration.Terms[2].X[fa.XIndex] = -mass * y
		}
		if fa.YIndex >= 0 {
			tb.Acceleration.Terms[2].Y[fa.YIndex] = mass * x
		}
	}
	return tb
}

// Validate checks that every table is sized for t.
func (tb Tables) Validate(t *actuator.Table) error {
	sized := func(f Forces) bool {
		return len(f.X) == t.XCount() && len(f.Y) == t.YCount() && len(f.Z) == t.Count()
	}
	check := map[string][]Forces{
		"static":    {tb.Static},
		"elevation": {tb.Elevation.Sin, tb.Elevation.Cos, tb.Elevation.Offset},
		"azimuth":   {tb.Azimuth.Sin, tb.Azimuth.Cos, tb.Azimuth.Offset},
	}
	for name, l := range map[string]LinearTable{
		"thermal": tb.Thermal, "velocity": tb.Velocity, "acceleration": tb.Acceleration,
	} {
		check[name] = l.Terms
	}
	var errs []error
	for name, fs := range check {
		for _, f := range fs {
			if !sized(f) {
				errs = append(errs, fmt.Errorf("%s table is not sized for %d actuators", name, t.Count()))
				break
			}
		}
	}
	return errors.Join(errs...)
}
