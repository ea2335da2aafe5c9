// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package raise

import "math"

// InRangeConfig configures the hardpoint settling check.
type InRangeConfig struct {
	// Band is the allowed deviation from the floating midpoint, in N.
	Band float64 `yaml:"band"`
	// Count is the number of consecutive samples within Band needed.
	Count int `yaml:"count"`
	// MaxSamples is the number of samples after which the check times out.
	MaxSamples int `yaml:"max_samples"`
}

// HpInRangeCounter decides whether a hardpoint force has settled. It keeps
// the mean of the current run of samples and restarts the run whenever a
// sample leaves the band around that mean.
type HpInRangeCounter struct {
	cfg InRangeConfig

	midpoint float64
	run      int
	total    int
	inRange  bool
}

// NewHpInRangeCounter returns a reset counter.
func NewHpInRangeCounter(cfg InRangeConfig) *HpInRangeCounter {
	return &HpInRangeCounter{cfg: cfg}
}

// Reset forgets every sample.
func (h *HpInRangeCounter) Reset() {
	h.midpoint, h.run, h.total, h.inRange = 0, 0, 0, false
}

// Sample adds one force sample.
func (h *HpInRangeCounter) Sample(force float64) {
	if h.inRange {
		return
	}
	h.total++
	if h.run == 0 || math.Abs(force-h.midpoint) > h.cfg.Band {
		h.midpoint = force
		h.run = 1
	} else {
		h.run++
		h.midpoint += (force - h.midpoint) / float64(h.run)
	}
	if h.run >= h.cfg.Count {
		h.inRange = true
	}
}

// InRange reports whether the force settled.
func (h *HpInRangeCounter) InRange() bool { return h.inRange }

// TimedOut reports whether MaxSamples passed without settling.
func (h *HpInRangeCounter) TimedOut() bool {
	return !h.inRange && h.cfg.MaxSamples > 0 && h.total >= h.cfg.MaxSamples
}

// Done reports whether the counter reached a verdict.
func (h *HpInRangeCounter) Done() bool { return h.inRange || h.TimedOut() }

// Midpoint returns the mean of the current run.
func (h *HpInRangeCounter) Midpoint() float64 { return h.midpoint }
