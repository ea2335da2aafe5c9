// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import (
	"fmt"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
)

// Type is the kind of actuator an ILC drives.
type Type int

const (
	TypeUnknown Type = iota
	TypeForceActuator
	TypeHardpoint
	TypeHardpointMonitor
)

func (t Type) String() string {
	switch t {
	case TypeForceActuator:
		return "ForceActuator"
	case TypeHardpoint:
		return "Hardpoint"
	case TypeHardpointMonitor:
		return "HardpointMonitor"
	default:
		return "Unknown"
	}
}

// Entry maps one (subnet, address) to an actuator data slot.
// Index fields are -1 when the actuator has no such slot.
type Entry struct {
	ActuatorID         int32
	DataIndex          int32
	SecondaryDataIndex int32
	XDataIndex         int32
	YDataIndex         int32
	Type               Type
	Orientation        actuator.Orientation
}

var unknownEntry = Entry{
	ActuatorID:         -1,
	DataIndex:          -1,
	SecondaryDataIndex: -1,
	XDataIndex:         -1,
	YDataIndex:         -1,
}

// Key addresses one ILC.
type Key struct {
	Subnet  uint8
	Address uint8
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.Subnet, k.Address)
}

// SubnetMap resolves (subnet, address) to actuator slots. Read-only once built.
type SubnetMap struct {
	entries [SubnetCount][256]Entry
}

// NewSubnetMap builds the map from the actuator table.
func NewSubnetMap(t *actuator.Table) *SubnetMap {
	m := &SubnetMap{}
	for s := range m.entries {
		for a := range m.entries[s] {
			m.entries[s][a] = unknownEntry
		}
	}
	for _, fa := range t.ForceActuators {
		m.entries[fa.Subnet-1][fa.Address] = Entry{
			ActuatorID:         fa.ID,
			DataIndex:          int32(fa.Index),
			SecondaryDataIndex: int32(fa.SecondaryIndex),
			XDataIndex:         int32(fa.XIndex),
			YDataIndex:         int32(fa.YIndex),
			Type:               TypeForceActuator,
			Orientation:        fa.Orientation,
		}
	}
	for _, hp := range t.Hardpoints {
		e := unknownEntry
		e.ActuatorID, e.DataIndex, e.Type = hp.ID, int32(hp.Index), TypeHardpoint
		m.entries[hp.Subnet-1][hp.Address] = e
	}
	for _, mon := range t.Monitors {
		e := unknownEntry
		e.ActuatorID, e.DataIndex, e.Type = mon.ID, int32(mon.Index), TypeHardpointMonitor
		m.entries[mon.Subnet-1][mon.Address] = e
	}
	return m
}

// ValidSubnet reports whether subnet is one of 1..5.
func ValidSubnet(subnet uint8) bool {
	return subnet >= 1 && subnet <= SubnetCount
}

// Lookup returns the entry at (subnet, address). Unmapped slots have TypeUnknown.
func (m *SubnetMap) Lookup(subnet, address uint8) Entry {
	if !ValidSubnet(subnet) {
		return unknownEntry
	}
	return m.entries[subnet-1][address]
}

// Addresses lists, in ascending order, the configured addresses of type t on a
// subnet. Address 255 terminates the walk.
func (m *SubnetMap) Addresses(subnet uint8, t Type) []uint8 {
	if !ValidSubnet(subnet) {
		return nil
	}
	var out []uint8
	for a := 0; a < MaxAddress; a++ {
		if m.entries[subnet-1][a].Type == t {
			out = append(out, uint8(a))
		}
	}
	return out
}

// Subnets lists the subnets carrying at least one ILC of type t.
func (m *SubnetMap) Subnets(t Type) []uint8 {
	var out []uint8
	for s := uint8(1); s <= SubnetCount; s++ {
		if len(m.Addresses(s, t)) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// IsDualAxis applies the force actuator address rule.
func IsDualAxis(address uint8) bool {
	return address > SingleAxisLimit
}
