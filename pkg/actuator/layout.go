// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package actuator

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const hexapodLean = 35 * math.Pi / 180

// LayoutOptions shapes a generated ring layout.
type LayoutOptions struct {
	PerSubnet      int     `yaml:"per_subnet"`      // force actuators on each of subnets 1..4
	Rings          int     `yaml:"rings"`           // concentric rings per quadrant
	InnerRadius    float64 `yaml:"inner_radius"`    // metres
	RingSpacing    float64 `yaml:"ring_spacing"`    // metres
	HardpointRing  float64 `yaml:"hardpoint_ring"`  // metres
	MonitorAddress uint8   `yaml:"monitor_address"` // first hardpoint monitor address on subnet 5
}

// DefaultLayoutOptions gives 156 force actuators, 6 hardpoints and 6 monitors.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		PerSubnet:      39,
		Rings:          4,
		InnerRadius:    0.8,
		RingSpacing:    1.0,
		HardpointRing:  3.0,
		MonitorAddress: 84,
	}
}

// GenerateLayout places force actuators on rings, one quadrant per subnet.
// Addresses 1..16 are single axis; higher addresses cycle through +Y, -Y, +X, -X.
func GenerateLayout(o LayoutOptions) ([]ForceActuator, []Hardpoint, []HardpointMonitor) {
	perRing := (o.PerSubnet + o.Rings - 1) / o.Rings
	dual := []Orientation{PositiveY, NegativeY, PositiveX, NegativeX}

	fas := make([]ForceActuator, 0, 4*o.PerSubnet)
	for s := 0; s < 4; s++ {
		for k := 0; k < o.PerSubnet; k++ {
			ring, slot := k/perRing, k%perRing
			radius := o.InnerRadius + float64(ring)*o.RingSpacing
			angle := (float64(s)*90 + (float64(slot)+0.5)*90/float64(perRing)) * math.Pi / 180
			address := uint8(k + 1)
			orientation := SingleAxis
			if address > 16 {
				orientation = dual[int(address-17)%len(dual)]
			}
			fas = append(fas, ForceActuator{
				ID:          int32(100*(s+1) + k + 1),
				Subnet:      uint8(s + 1),
				Address:     address,
				Position:    mgl64.Vec3{radius * math.Cos(angle), radius * math.Sin(angle), 0},
				Orientation: orientation,
			})
		}
	}

	hps := make([]Hardpoint, 6)
	mons := make([]HardpointMonitor, 6)
	for i := range hps {
		angle := float64(i) * 60 * math.Pi / 180
		// legs lean tangentially, alternating direction
		lean := hexapodLean
		if i%2 == 1 {
			lean = -lean
		}
		tangent := mgl64.Vec3{-math.Sin(angle), math.Cos(angle), 0}
		hps[i] = Hardpoint{
			ID:       int32(i + 1),
			Subnet:   5,
			Address:  uint8(i + 1),
			Position: mgl64.Vec3{o.HardpointRing * math.Cos(angle), o.HardpointRing * math.Sin(angle), -0.3},
			Axis:     tangent.Mul(math.Sin(lean)).Add(mgl64.Vec3{0, 0, math.Cos(lean)}),
		}
		mons[i] = HardpointMonitor{
			ID:      int32(i + 1),
			Subnet:  5,
			Address: o.MonitorAddress + uint8(i),
		}
	}
	return fas, hps, mons
}
