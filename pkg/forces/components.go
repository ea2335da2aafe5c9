// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forces

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
)

// balance turns the load left on the hardpoints into force actuator offsets.
type balance struct {
	*Component
	table *actuator.Table
	dist  *Distribution
	pids  [6]*PID
	dt    float64
	out   Forces
}

func newBalance(c *Component, t *actuator.Table, d *Distribution, cfg PIDConfig, dt float64) *balance {
	b := &balance{Component: c, table: t, dist: d, dt: dt, out: NewForces(t)}
	for i := range b.pids {
		b.pids[i] = NewPID(cfg)
	}
	return b
}

// update feeds the measured hardpoint leg forces through the PIDs.
func (b *balance) update(hardpointForces []float64) {
	if b.State() != Enabled {
		return
	}
	force, moment := b.table.HardpointLoad(hardpointForces)
	var out [6]float64
	for i, v := range [6]float64{force.X(), force.Y(), force.Z(), moment.X(), moment.Y(), moment.Z()} {
		out[i] = b.pids[i].Update(v, b.dt)
	}
	b.dist.Distribute(mgl64.Vec3{out[0], out[1], out[2]}, mgl64.Vec3{out[3], out[4], out[5]}, b.out)
	b.SetTarget(b.out)
}

func (b *balance) resetPIDs() {
	for _, p := range b.pids {
		p.Reset()
	}
}
