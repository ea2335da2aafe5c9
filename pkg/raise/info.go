// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package raise

import "math"

// Info is the share of the mirror weight carried by the force actuators. The
// raise controller owns it; the force pipeline reads it.
type Info struct {
	percent   float64
	increment float64
	decrement float64

	// airPressureUntil is the time until which the raise waits for the
	// supply pressure to settle. NaN when not waiting.
	airPressureUntil float64
}

// NewInfo returns an empty Info stepping by increment and decrement percent.
func NewInfo(increment, decrement float64) *Info {
	return &Info{increment: increment, decrement: decrement, airPressureUntil: math.NaN()}
}

// SupportPercentage returns the supported weight in percent.
func (i *Info) SupportPercentage() float64 { return i.percent }

// Increment raises the support by one step, clamped at 100.
func (i *Info) Increment() {
	i.percent = math.Min(100, i.percent+i.increment)
}

// Decrement lowers the support by one step, clamped at 0.
func (i *Info) Decrement() {
	i.percent = math.Max(0, i.percent-i.decrement)
}

// Filled reports whether the full weight is supported.
func (i *Info) Filled() bool { return i.percent >= 100 }

// Empty reports whether no weight is supported.
func (i *Info) Empty() bool { return i.percent <= 0 }

// Fill marks the full weight as supported.
func (i *Info) Fill() { i.percent = 100 }

// Zero marks no weight as supported.
func (i *Info) Zero() { i.percent = 0 }

// WaitForAirPressure holds raise progress until the given time.
func (i *Info) WaitForAirPressure(until float64) { i.airPressureUntil = until }

// WaitingForAirPressure reports whether progress is held at time now.
func (i *Info) WaitingForAirPressure(now float64) bool {
	if math.IsNaN(i.airPressureUntil) {
		return false
	}
	if now >= i.airPressureUntil {
		i.airPressureUntil = math.NaN()
		return false
	}
	return true
}
