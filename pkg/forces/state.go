// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forces

import "fmt"

// ComponentState is the lifecycle state of a force component.
type ComponentState uint8

const (
	Initialising ComponentState = iota
	Enabled
	Disabling
	Disabled
)

func (s ComponentState) String() string {
	switch s {
	case Initialising:
		return "Initialising"
	case Enabled:
		return "Enabled"
	case Disabling:
		return "Disabling"
	case Disabled:
		return "Disabled"
	}
	return fmt.Sprintf("ComponentState(%d)", uint8(s))
}

// Active reports whether a component in state s still contributes force.
func (s ComponentState) Active() bool {
	return s != Disabled
}

// Ramp is a component state plus the force still to be removed while disabling.
type Ramp struct {
	State ComponentState
	// Remaining is the largest absolute force left when the ramp was last stepped.
	Remaining float64
}

// Enable moves any state to Enabled.
func (r Ramp) Enable() Ramp {
	return Ramp{State: Enabled}
}

// Disable starts ramping out remaining. A component already at zero goes
// straight to Disabled.
func (r Ramp) Disable(remaining, nearZero float64) Ramp {
	if r.State == Disabled {
		return r
	}
	if remaining <= nearZero {
		return Ramp{State: Disabled}
	}
	return Ramp{State: Disabling, Remaining: remaining}
}

// Step records the force left after one update and completes the ramp once
// it is within nearZero of zero.
func (r Ramp) Step(remaining, nearZero float64) Ramp {
	if r.State != Disabling {
		return r
	}
	if remaining <= nearZero {
		return Ramp{State: Disabled}
	}
	return Ramp{State: Disabling, Remaining: remaining}
}

// CyclesToZero is the number of updates a ramp of maxRate per cycle needs to
// bring remaining within nearZero of zero.
func CyclesToZero(remaining, maxRate, nearZero float64) int {
	if remaining <= nearZero {
		return 0
	}
	if maxRate <= 0 {
		return -1
	}
	n := 0
	for remaining > nearZero {
		remaining -= maxRate
		n++
	}
	return n
}
