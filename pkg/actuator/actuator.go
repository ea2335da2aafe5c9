// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package actuator describes the mirror support actuators: where they sit, which
// ILC drives them and which cylinders they carry.
package actuator

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Orientation tags the secondary cylinder direction of a force actuator.
type Orientation int

const (
	// SingleAxis actuators have only the Z cylinder.
	SingleAxis Orientation = iota
	PositiveX
	NegativeX
	PositiveY
	NegativeY
)

func (o Orientation) String() string {
	switch o {
	case SingleAxis:
		return "NA"
	case PositiveX:
		return "+X"
	case NegativeX:
		return "-X"
	case PositiveY:
		return "+Y"
	case NegativeY:
		return "-Y"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

// ParseOrientation accepts the names produced by String.
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "", "NA", "na":
		return SingleAxis, nil
	case "+X", "+x":
		return PositiveX, nil
	case "-X", "-x":
		return NegativeX, nil
	case "+Y", "+y":
		return PositiveY, nil
	case "-Y", "-y":
		return NegativeY, nil
	}
	return SingleAxis, fmt.Errorf("unknown orientation %q", s)
}

// Dual reports whether the actuator has a secondary cylinder.
func (o Orientation) Dual() bool { return o != SingleAxis }

// HasX reports whether the secondary cylinder acts along X.
func (o Orientation) HasX() bool { return o == PositiveX || o == NegativeX }

// HasY reports whether the secondary cylinder acts along Y.
func (o Orientation) HasY() bool { return o == PositiveY || o == NegativeY }

// ForceActuator is one pneumatic force actuator.
type ForceActuator struct {
	Index       int
	ID          int32
	Subnet      uint8
	Address     uint8
	Position    mgl64.Vec3
	Orientation Orientation

	// Indices into the per-axis arrays, -1 when the actuator has no such cylinder.
	SecondaryIndex int
	XIndex         int
	YIndex         int
}

// Hardpoint is one electromechanical hexapod leg.
type Hardpoint struct {
	Index             int
	ID                int32
	Subnet            uint8
	Address           uint8
	Position          mgl64.Vec3
	// Axis is the unit vector along which the leg pushes on the mirror.
	Axis              mgl64.Vec3
	ReferencePosition int32
}

// HardpointMonitor is the ILC watching a hardpoint's LVDTs and air pressure.
type HardpointMonitor struct {
	Index   int
	ID      int32
	Subnet  uint8
	Address uint8
}

// Table is the immutable actuator layout.
type Table struct {
	ForceActuators []ForceActuator
	Hardpoints     []Hardpoint
	Monitors       []HardpointMonitor

	// Near and Far list, per force actuator, the indices of its neighbors.
	Near [][]int
	Far  [][]int

	secondaryCount int
	xCount         int
	yCount         int
	byID           map[int32]int
}

// ErrLayout is wrapped by every table construction error.
var ErrLayout = errors.New("invalid actuator layout")

// NewTable indexes the actuators and precomputes neighbor lists.
// Force actuators with an address up to 16 must be single axis, above must be dual.
func NewTable(fas []ForceActuator, hps []Hardpoint, mons []HardpointMonitor, nearRadius, farRadius float64) (*Table, error) {
	t := &Table{
		ForceActuators: make([]ForceActuator, len(fas)),
		Hardpoints:     make([]Hardpoint, len(hps)),
		Monitors:       make([]HardpointMonitor, len(mons)),
		byID:           make(map[int32]int, len(fas)),
	}
	owners := make(map[[2]uint8]int32)
	var errs []error
	claim := func(kind string, id int32, subnet, address uint8) {
		if subnet < 1 || subnet > 5 {
			errs = append(errs, fmt.Errorf("%w: %s %d on subnet %d", ErrLayout, kind, id, subnet))
			return
		}
		if address == 0 || address == 255 {
			errs = append(errs, fmt.Errorf("%w: %s %d uses reserved address %d", ErrLayout, kind, id, address))
			return
		}
		key := [2]uint8{subnet, address}
		if other, ok := owners[key]; ok {
			errs = append(errs, fmt.Errorf("%w: %s %d and %d share subnet %d address %d", ErrLayout, kind, id, other, subnet, address))
			return
		}
		owners[key] = id
	}

	for i, fa := range fas {
		fa.Index = i
		fa.SecondaryIndex, fa.XIndex, fa.YIndex = -1, -1, -1
		claim("force actuator", fa.ID, fa.Subnet, fa.Address)
		if (fa.Address <= 16) == fa.Orientation.Dual() {
			errs = append(errs, fmt.Errorf("%w: force actuator %d at address %d has orientation %s", ErrLayout, fa.ID, fa.Address, fa.Orientation))
		}
		if fa.Orientation.Dual() {
			fa.SecondaryIndex = t.secondaryCount
			t.secondaryCount++
		}
		if fa.Orientation.HasX() {
			fa.XIndex = t.xCount
			t.xCount++
		}
		if fa.Orientation.HasY() {
			fa.YIndex = t.yCount
			t.yCount++
		}
		if _, dup := t.byID[fa.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate force actuator id %d", ErrLayout, fa.ID))
		}
		t.byID[fa.ID] = i
		t.ForceActuators[i] = fa
	}
	for i, hp := range hps {
		hp.Index = i
		if hp.Axis.Len() == 0 {
			hp.Axis = mgl64.Vec3{0, 0, 1}
		} else {
			hp.Axis = hp.Axis.Normalize()
		}
		claim("hardpoint", hp.ID, hp.Subnet, hp.Address)
		t.Hardpoints[i] = hp
	}
	for i, m := range mons {
		m.Index = i
		claim("hardpoint monitor", m.ID, m.Subnet, m.Address)
		t.Monitors[i] = m
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	t.Near = neighbors(t.ForceActuators, nearRadius)
	t.Far = neighbors(t.ForceActuators, farRadius)
	return t, nil
}

func neighbors(fas []ForceActuator, radius float64) [][]int {
	out := make([][]int, len(fas))
	for i := range fas {
		for j := range fas {
			if i == j {
				continue
			}
			if fas[i].Position.Sub(fas[j].Position).Len() <= radius {
				out[i] = append(out[i], j)
			}
		}
	}
	return out
}

// Count returns the number of force actuators.
func (t *Table) Count() int { return len(t.ForceActuators) }

// SecondaryCount returns the number of dual-axis force actuators.
func (t *Table) SecondaryCount() int { return t.secondaryCount }

// XCount returns the number of force actuators with an X cylinder.
func (t *Table) XCount() int { return t.xCount }

// YCount returns the number of force actuators with a Y cylinder.
func (t *Table) YCount() int { return t.yCount }

// ByID returns the force actuator index for an actuator ID.
func (t *Table) ByID(id int32) (int, bool) {
	i, ok := t.byID[id]
	return i, ok
}

// Radius returns the distance of the actuator from the optical axis.
func (fa ForceActuator) Radius() float64 {
	return math.Hypot(fa.Position.X(), fa.Position.Y())
}

// HardpointLoad returns the force and moment the hardpoints exert on the
// mirror for the given measured leg forces.
func (t *Table) HardpointLoad(forces []float64) (force, moment mgl64.Vec3) {
	for i, hp := range t.Hardpoints {
		if i >= len(forces) {
			break
		}
		f := hp.Axis.Mul(forces[i])
		force = force.Add(f)
		moment = moment.Add(hp.Position.Cross(f))
	}
	return force, moment
}
