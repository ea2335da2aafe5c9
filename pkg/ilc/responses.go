// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import "github.com/Thermoquad/mirrorsupport/pkg/actuator"

// Responses counts replies still owed by each ILC in the current cycle.
type Responses struct {
	fa  []int
	hp  []int
	mon []int

	faIDs   []int32
	hpIDs   []int32
	monIDs  []int32
	faKeys  []Key
	hpKeys  []Key
	monKeys []Key
}

// NewResponses sizes the counters for a table.
func NewResponses(t *actuator.Table) *Responses {
	r := &Responses{
		fa:  make([]int, len(t.ForceActuators)),
		hp:  make([]int, len(t.Hardpoints)),
		mon: make([]int, len(t.Monitors)),
	}
	for _, fa := range t.ForceActuators {
		r.faIDs = append(r.faIDs, fa.ID)
		r.faKeys = append(r.faKeys, Key{fa.Subnet, fa.Address})
	}
	for _, hp := range t.Hardpoints {
		r.hpIDs = append(r.hpIDs, hp.ID)
		r.hpKeys = append(r.hpKeys, Key{hp.Subnet, hp.Address})
	}
	for _, m := range t.Monitors {
		r.monIDs = append(r.monIDs, m.ID)
		r.monKeys = append(r.monKeys, Key{m.Subnet, m.Address})
	}
	return r
}

func (r *Responses) counter(e Entry) *int {
	i := int(e.DataIndex)
	var c []int
	switch e.Type {
	case TypeForceActuator:
		c = r.fa
	case TypeHardpoint:
		c = r.hp
	case TypeHardpointMonitor:
		c = r.mon
	}
	if i < 0 || i >= len(c) {
		return nil
	}
	return &c[i]
}

// Expect records one request sent to the ILC of e.
func (r *Responses) Expect(e Entry) {
	if c := r.counter(e); c != nil {
		*c++
	}
}

// Received records one reply from the ILC of e.
func (r *Responses) Received(e Entry) {
	if c := r.counter(e); c != nil && *c > 0 {
		*c--
	}
}

// Pending returns the outstanding reply count of e.
func (r *Responses) Pending(e Entry) int {
	if c := r.counter(e); c != nil {
		return *c
	}
	return 0
}

// Verify raises one ResponseTimeout warning per ILC still owing replies,
// zeroes every counter and reports whether any reply was missing.
func (r *Responses) Verify(sink WarningSink, timestamp float64) bool {
	if sink == nil {
		sink = nopSink{}
	}
	missing := false
	check := func(counts []int, ids []int32, keys []Key) {
		for i := range counts {
			if counts[i] != 0 {
				missing = true
				sink.ILCWarning(newWarning(timestamp, ids[i], keys[i], 0, WarnResponseTimeout))
				counts[i] = 0
			}
		}
	}
	check(r.fa, r.faIDs, r.faKeys)
	check(r.hp, r.hpIDs, r.hpKeys)
	check(r.mon, r.monIDs, r.monKeys)
	return missing
}

// Reset zeroes every counter without raising warnings.
func (r *Responses) Reset() {
	clear(r.fa)
	clear(r.hp)
	clear(r.mon)
}
