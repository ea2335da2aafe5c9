// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forces

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
)

// MirrorForces is the resultant force and moment on the mirror.
type MirrorForces struct {
	Fx, Fy, Fz     float64
	Mx, My, Mz     float64
	ForceMagnitude float64
}

// Force returns the force vector.
func (m MirrorForces) Force() mgl64.Vec3 { return mgl64.Vec3{m.Fx, m.Fy, m.Fz} }

// Moment returns the moment vector.
func (m MirrorForces) Moment() mgl64.Vec3 { return mgl64.Vec3{m.Mx, m.My, m.Mz} }

func mirrorForces(force, moment mgl64.Vec3) MirrorForces {
	return MirrorForces{
		Fx: force.X(), Fy: force.Y(), Fz: force.Z(),
		Mx: moment.X(), My: moment.Y(), Mz: moment.Z(),
		ForceMagnitude: force.Len(),
	}
}

// Resultant sums forces and their moments about the mirror origin.
func Resultant(t *actuator.Table, f Forces) MirrorForces {
	var force, moment mgl64.Vec3
	for _, fa := range t.ForceActuators {
		x, y, z := f.Actuator(fa)
		v := mgl64.Vec3{x, y, z}
		force = force.Add(v)
		moment = moment.Add(fa.Position.Cross(v))
	}
	return mirrorForces(force, moment)
}

// Distribution spreads a mirror force and moment over the actuators.
type Distribution struct {
	table *actuator.Table
	// second moments of the Z actuators and of the lateral actuators
	sumX2, sumY2 float64
	lateral      float64
}

// NewDistribution precomputes the layout moments of t.
func NewDistribution(t *actuator.Table) *Distribution {
	d := &Distribution{table: t}
	for _, fa := range t.ForceActuators {
		x, y := fa.Position.X(), fa.Position.Y()
		d.sumX2 += x * x
		d.sumY2 += y * y
		if fa.XIndex >= 0 {
			d.lateral += y * y
		}
		if fa.YIndex >= 0 {
			d.lateral += x * x
		}
	}
	return d
}

// Distribute writes into out per-actuator forces whose resultant is force
// and moment, assuming a layout centred on the origin.
func (d *Distribution) Distribute(force, moment mgl64.Vec3, out Forces) {
	out.Zero()
	t := d.table
	n := float64(t.Count())
	nx, ny := float64(t.XCount()), float64(t.YCount())
	for _, fa := range t.ForceActuators {
		x, y := fa.Position.X(), fa.Position.Y()
		z := force.Z() / n
		if d.sumY2 > 0 {
			z += moment.X() * y / d.sumY2
		}
		if d.sumX2 > 0 {
			z -= moment.Y() * x / d.sumX2
		}
		out.Z[fa.Index] = z
		if fa.XIndex >= 0 {
			v := force.X() / nx
			if d.lateral > 0 {
				v -= moment.Z() * y / d.lateral
			}
			out.X[fa.XIndex] = v
		}
		if fa.YIndex >= 0 {
			v := force.Y() / ny
			if d.lateral > 0 {
				v += moment.Z() * x / d.lateral
			}
			out.Y[fa.YIndex] = v
		}
	}
}

func exceeds(v, limit float64) bool {
	return limit > 0 && math.Abs(v) > limit
}
