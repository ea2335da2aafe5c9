// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forces

import (
	"math"

	"go.uber.org/zap"

	"github.com/Thermoquad/mirrorsupport/pkg/safety"
)

// checkMoments faults on a moment past its limit, or on moments staying in
// the warning band for MomentWarningCount consecutive cycles.
func (c *Controller) checkMoments() {
	m := c.preclipped
	lim, warn := c.cfg.MomentLimit, c.cfg.MomentWarning

	over := exceeds(m.Mx, lim.X) || exceeds(m.My, lim.Y) || exceeds(m.Mz, lim.Z)
	if exceeds(m.Mx, warn.X) || exceeds(m.My, warn.Y) || exceeds(m.Mz, warn.Z) {
		if c.momentWarnings == 0 {
			c.log.Warn("mirror moments in warning band",
				zap.Float64("mx", m.Mx), zap.Float64("my", m.My), zap.Float64("mz", m.Mz))
		}
		c.momentWarnings++
	} else {
		c.momentWarnings = 0
	}
	counted := c.cfg.MomentWarningCount > 0 && c.momentWarnings >= c.cfg.MomentWarningCount

	c.notify.Update(safety.MirrorMoments, over || counted,
		"Mirror moments Mx %.1f My %.1f Mz %.1f N·m exceed limits (warning band for %d cycles)",
		m.Mx, m.My, m.Mz, c.momentWarnings)
}

// checkNeighbors compares each actuator's preclipped Z force with the mean of
// its neighbors and reports the worst offender.
func (c *Controller) checkNeighbors(lists [][]int, nc NeighborConfig, code safety.FaultCode, label string) {
	z := c.applied.Preclipped().Z
	if len(z) == 0 {
		return
	}
	limit := nc.Absolute + nc.Relative*math.Abs(c.preclipped.Fz/float64(len(z)))

	worst, worstDelta := -1, 0.0
	for i, neighbors := range lists {
		if len(neighbors) == 0 {
			continue
		}
		mean := 0.0
		for _, j := range neighbors {
			mean += z[j]
		}
		mean /= float64(len(neighbors))
		if d := math.Abs(z[i] - mean); d > limit && d > worstDelta {
			worst, worstDelta = i, d
		}
	}

	id := int32(0)
	if worst >= 0 {
		id = c.table.ForceActuators[worst].ID
	}
	c.notify.Update(code, worst >= 0,
		"Force actuator %d deviates %.1f N from its %s neighbors (limit %.1f N)", id, worstDelta, label, limit)
}

// checkWeight compares the summed Z force with the share of the mirror
// weight the actuators should carry at this elevation and support.
func (c *Controller) checkWeight() {
	expected := c.cfg.MirrorWeight * c.support.SupportPercentage() / 100 *
		math.Sin(c.elevationAngle*math.Pi/180)
	delta := c.preclipped.Fz - expected
	tolerance := c.cfg.WeightTolerance * c.cfg.MirrorWeight
	c.notify.Update(safety.MirrorWeight, tolerance > 0 && math.Abs(delta) > tolerance,
		"Mirror weight %.0f N differs from expected %.0f N by more than %.0f N",
		c.preclipped.Fz, expected, tolerance)
}
