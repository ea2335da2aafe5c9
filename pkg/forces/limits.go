// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forces

import (
	"fmt"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/flags"
)

// AxisLimit is the allowed force range along one axis.
type AxisLimit struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// LimitConfig holds uniform per-axis limits for a component.
type LimitConfig struct {
	X AxisLimit `yaml:"x"`
	Y AxisLimit `yaml:"y"`
	Z AxisLimit `yaml:"z"`
}

func (c LimitConfig) validate(name string) error {
	for a, l := range map[Axis]AxisLimit{AxisX: c.X, AxisY: c.Y, AxisZ: c.Z} {
		if l.Low > l.High {
			return fmt.Errorf("%s %s limit: low %g above high %g", name, a, l.Low, l.High)
		}
	}
	return nil
}

// Limits are the per-actuator LowFault and HighFault tables.
type Limits struct {
	Low  Forces
	High Forces
}

// NewLimits expands uniform limits into per-actuator tables.
func NewLimits(t *actuator.Table, c LimitConfig) Limits {
	l := Limits{Low: NewForces(t), High: NewForces(t)}
	fill := func(dst []float64, v float64) {
		for i := range dst {
			dst[i] = v
		}
	}
	fill(l.Low.X, c.X.Low)
	fill(l.High.X, c.X.High)
	fill(l.Low.Y, c.Y.Low)
	fill(l.High.Y, c.Y.High)
	fill(l.Low.Z, c.Z.Low)
	fill(l.High.Z, c.Z.High)
	return l
}

// Clip coerces in into the limits, writing out and the per-actuator
// clipping flags. It returns the number of actuators clipped on any axis.
func (l Limits) Clip(t *actuator.Table, in, out Forces, clipping []flags.Set[Axis]) int {
	n := 0
	for _, fa := range t.ForceActuators {
		var s flags.Set[Axis]
		if fa.XIndex >= 0 {
			s.Put(AxisX, clipInto(in.X, out.X, l.Low.X, l.High.X, fa.XIndex))
		}
		if fa.YIndex >= 0 {
			s.Put(AxisY, clipInto(in.Y, out.Y, l.Low.Y, l.High.Y, fa.YIndex))
		}
		s.Put(AxisZ, clipInto(in.Z, out.Z, l.Low.Z, l.High.Z, fa.Index))
		clipping[fa.Index] = s
		if s.Any() {
			n++
		}
	}
	return n
}

func clipInto(in, out, low, high []float64, i int) bool {
	v := in[i]
	switch {
	case v < low[i]:
		out[i] = low[i]
		return true
	case v > high[i]:
		out[i] = high[i]
		return true
	}
	out[i] = v
	return false
}
