// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forces

import (
	"errors"
	"fmt"
)

// MomentLimits bounds the absolute mirror moments, in N·m.
type MomentLimits struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// NeighborConfig bounds the deviation of an actuator's Z force from the mean
// of its neighbors: Absolute + Relative·|mean Z force of the mirror|.
type NeighborConfig struct {
	Absolute float64 `yaml:"absolute"`
	Relative float64 `yaml:"relative"`
}

// Config configures the force pipeline.
type Config struct {
	// MirrorWeight is the supported weight, in N.
	MirrorWeight float64 `yaml:"mirror_weight"`
	// NearZero is the force below which a disabling component counts as zero.
	NearZero float64 `yaml:"near_zero"`
	// CycleTime is the control loop period in seconds.
	CycleTime float64 `yaml:"cycle_time"`

	Static       ComponentConfig `yaml:"static"`
	Elevation    ComponentConfig `yaml:"elevation"`
	Azimuth      ComponentConfig `yaml:"azimuth"`
	Thermal      ComponentConfig `yaml:"thermal"`
	Velocity     ComponentConfig `yaml:"velocity"`
	Acceleration ComponentConfig `yaml:"acceleration"`
	Balance      ComponentConfig `yaml:"balance"`
	ActiveOptic  ComponentConfig `yaml:"active_optic"`
	Offset       ComponentConfig `yaml:"offset"`
	// Applied limits the summed forces sent to the actuators.
	Applied ComponentConfig `yaml:"applied"`

	BalancePID PIDConfig `yaml:"balance_pid"`

	MomentLimit        MomentLimits   `yaml:"moment_limit"`
	MomentWarning      MomentLimits   `yaml:"moment_warning"`
	MomentWarningCount int            `yaml:"moment_warning_count"`
	NearNeighbor       NeighborConfig `yaml:"near_neighbor"`
	FarNeighbor        NeighborConfig `yaml:"far_neighbor"`
	// WeightTolerance is the allowed weight mismatch as a fraction of MirrorWeight.
	WeightTolerance float64 `yaml:"weight_tolerance"`

	// FollowingErrorFault is the cylinder following error, in N, counted
	// by the safety window.
	FollowingErrorFault float64 `yaml:"following_error_fault"`
	// RaiseFollowingError is the following error allowed for raise progress.
	RaiseFollowingError float64 `yaml:"raise_following_error"`
	// HardpointFaultForce is the measured leg force counted by the safety window.
	HardpointFaultForce float64   `yaml:"hardpoint_fault_force"`
	RaiseHardpointForce AxisLimit `yaml:"raise_hardpoint_force"`
	LowerHardpointForce AxisLimit `yaml:"lower_hardpoint_force"`
}

func uniformLimits(lateral, zLow, zHigh float64) LimitConfig {
	return LimitConfig{
		X: AxisLimit{Low: -lateral, High: lateral},
		Y: AxisLimit{Low: -lateral, High: lateral},
		Z: AxisLimit{Low: zLow, High: zHigh},
	}
}

// DefaultConfig suits the generated 156 actuator layout carrying 166 kN.
func DefaultConfig() Config {
	small := ComponentConfig{MaxRate: 20, Limits: uniformLimits(400, -500, 500)}
	return Config{
		MirrorWeight: 166000,
		NearZero:     0.5,
		CycleTime:    0.02,

		Static:       ComponentConfig{MaxRate: 50, Limits: uniformLimits(400, -500, 1000)},
		Elevation:    ComponentConfig{MaxRate: 50, Limits: uniformLimits(4000, -500, 2500)},
		Azimuth:      small,
		Thermal:      small,
		Velocity:     small,
		Acceleration: small,
		Balance:      small,
		ActiveOptic:  ComponentConfig{MaxRate: 20, Limits: uniformLimits(0, -800, 800)},
		Offset:       ComponentConfig{MaxRate: 20, Limits: uniformLimits(1000, -1000, 1000)},
		Applied:      ComponentConfig{Limits: uniformLimits(4500, -1000, 3000)},

		BalancePID: PIDConfig{Kp: 0.1, Ki: 0.5, MaxOutput: 20000, IntegralLimit: 40000},

		MomentLimit:        MomentLimits{X: 20000, Y: 20000, Z: 10000},
		MomentWarning:      MomentLimits{X: 15000, Y: 15000, Z: 7500},
		MomentWarningCount: 50,
		NearNeighbor:       NeighborConfig{Absolute: 300, Relative: 0.5},
		FarNeighbor:        NeighborConfig{Absolute: 600, Relative: 1.0},
		WeightTolerance:    0.1,

		FollowingErrorFault: 400,
		RaiseFollowingError: 200,
		HardpointFaultForce: 4000,
		RaiseHardpointForce: AxisLimit{Low: -1500, High: 1500},
		LowerHardpointForce: AxisLimit{Low: -2500, High: 2500},
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	var errs []error
	if c.MirrorWeight <= 0 {
		errs = append(errs, fmt.Errorf("mirror weight %g must be positive", c.MirrorWeight))
	}
	if c.NearZero <= 0 {
		errs = append(errs, fmt.Errorf("near zero %g must be positive", c.NearZero))
	}
	if c.CycleTime <= 0 {
		errs = append(errs, fmt.Errorf("cycle time %g must be positive", c.CycleTime))
	}
	for name, cc := range map[string]ComponentConfig{
		"static": c.Static, "elevation": c.Elevation, "azimuth": c.Azimuth,
		"thermal": c.Thermal, "velocity": c.Velocity, "acceleration": c.Acceleration,
		"balance": c.Balance, "active optic": c.ActiveOptic, "offset": c.Offset,
	} {
		if cc.MaxRate <= 0 {
			errs = append(errs, fmt.Errorf("%s max rate %g must be positive", name, cc.MaxRate))
		}
		if err := cc.Limits.validate(name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Applied.Limits.validate("applied"); err != nil {
		errs = append(errs, err)
	}
	if c.RaiseHardpointForce.Low > c.RaiseHardpointForce.High {
		errs = append(errs, errors.New("raise hardpoint force band is inverted"))
	}
	if c.LowerHardpointForce.Low > c.LowerHardpointForce.High {
		errs = append(errs, errors.New("lower hardpoint force band is inverted"))
	}
	return errors.Join(errs...)
}
