// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package actuator

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func defaultTable(t *testing.T) *Table {
	t.Helper()
	fas, hps, mons := GenerateLayout(DefaultLayoutOptions())
	table, err := NewTable(fas, hps, mons, 1.1, 2.5)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return table
}

func TestGenerateLayout(t *testing.T) {
	table := defaultTable(t)

	if table.Count() != 156 {
		t.Errorf("Count() = %d, want 156", table.Count())
	}
	if len(table.Hardpoints) != 6 || len(table.Monitors) != 6 {
		t.Errorf("hardpoints/monitors = %d/%d, want 6/6", len(table.Hardpoints), len(table.Monitors))
	}
	// 23 dual actuators per subnet, cycling four orientations
	if table.SecondaryCount() != 92 {
		t.Errorf("SecondaryCount() = %d, want 92", table.SecondaryCount())
	}
	if table.XCount()+table.YCount() != table.SecondaryCount() {
		t.Errorf("XCount()+YCount() = %d, want %d", table.XCount()+table.YCount(), table.SecondaryCount())
	}

	for _, fa := range table.ForceActuators {
		if fa.Orientation.Dual() != (fa.SecondaryIndex >= 0) {
			t.Fatalf("actuator %d: orientation %s with secondary index %d", fa.ID, fa.Orientation, fa.SecondaryIndex)
		}
		if fa.Orientation.HasX() != (fa.XIndex >= 0) || fa.Orientation.HasY() != (fa.YIndex >= 0) {
			t.Fatalf("actuator %d: orientation %s with x/y index %d/%d", fa.ID, fa.Orientation, fa.XIndex, fa.YIndex)
		}
		if len(table.Near[fa.Index]) == 0 {
			t.Errorf("actuator %d has no near neighbors", fa.ID)
		}
		if len(table.Far[fa.Index]) < len(table.Near[fa.Index]) {
			t.Errorf("actuator %d: far list shorter than near list", fa.ID)
		}
	}

	idx, ok := table.ByID(139)
	if !ok || table.ForceActuators[idx].Address != 39 {
		t.Errorf("ByID(139) = %d, %v", idx, ok)
	}
}

func TestNewTableRejects(t *testing.T) {
	tests := []struct {
		name string
		fas  []ForceActuator
	}{
		{
			name: "duplicate address",
			fas: []ForceActuator{
				{ID: 1, Subnet: 1, Address: 1},
				{ID: 2, Subnet: 1, Address: 1},
			},
		},
		{
			name: "dual at single axis address",
			fas:  []ForceActuator{{ID: 1, Subnet: 1, Address: 3, Orientation: PositiveY}},
		},
		{
			name: "single axis at dual address",
			fas:  []ForceActuator{{ID: 1, Subnet: 1, Address: 20}},
		},
		{
			name: "bad subnet",
			fas:  []ForceActuator{{ID: 1, Subnet: 6, Address: 1}},
		},
		{
			name: "reserved address",
			fas:  []ForceActuator{{ID: 1, Subnet: 1, Address: 255, Orientation: PositiveX}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.fas, nil, nil, 1, 2)
			if !errors.Is(err, ErrLayout) {
				t.Errorf("NewTable() error = %v, want ErrLayout", err)
			}
		})
	}
}

func TestCylinderConversion(t *testing.T) {
	tests := []struct {
		o       Orientation
		x, y, z float64
	}{
		{SingleAxis, 0, 0, 800},
		{PositiveX, 120, 0, 900},
		{NegativeX, -75, 0, 1000},
		{PositiveY, 0, 250, 700},
		{NegativeY, 0, -40, 1100},
	}
	for _, tt := range tests {
		t.Run(tt.o.String(), func(t *testing.T) {
			p, s := MirrorToCylinder(tt.o, tt.x, tt.y, tt.z)
			x, y, z := CylinderToMirror(tt.o, p, s)
			if math.Abs(x-tt.x) > 1e-9 || math.Abs(y-tt.y) > 1e-9 || math.Abs(z-tt.z) > 1e-9 {
				t.Errorf("round trip = (%v, %v, %v), want (%v, %v, %v)", x, y, z, tt.x, tt.y, tt.z)
			}
			if tt.o.Dual() && s < 0 {
				t.Errorf("secondary = %v, want non-negative for a matching lateral force", s)
			}
		})
	}
}

func TestParseOrientation(t *testing.T) {
	for _, o := range []Orientation{SingleAxis, PositiveX, NegativeX, PositiveY, NegativeY} {
		got, err := ParseOrientation(o.String())
		if err != nil || got != o {
			t.Errorf("ParseOrientation(%q) = %v, %v", o.String(), got, err)
		}
	}
	if _, err := ParseOrientation("Z"); err == nil {
		t.Error("ParseOrientation(Z) succeeded")
	}
}

func TestRadius(t *testing.T) {
	fa := ForceActuator{Position: mgl64.Vec3{3, 4, 1}}
	if fa.Radius() != 5 {
		t.Errorf("Radius() = %v, want 5", fa.Radius())
	}
}

func TestHardpointLoad(t *testing.T) {
	table := defaultTable(t)
	forces := []float64{100, 100, 100, 100, 100, 100}
	f, m := table.HardpointLoad(forces)

	wantZ := 600 * math.Cos(hexapodLean)
	if math.Abs(f.Z()-wantZ) > 1e-9 || math.Abs(f.X()) > 1e-9 || math.Abs(f.Y()) > 1e-9 {
		t.Errorf("HardpointLoad() force = %v, want (0, 0, %v)", f, wantZ)
	}
	if m.Len() > 1e-9 {
		t.Errorf("HardpointLoad() moment = %v, want 0", m)
	}

	// a single loaded leg tilts the mirror
	_, m = table.HardpointLoad([]float64{100})
	if m.Len() == 0 {
		t.Error("single leg produced no moment")
	}
}
