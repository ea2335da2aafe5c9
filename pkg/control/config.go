// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/mirrorsupport/pkg/forces"
	"github.com/Thermoquad/mirrorsupport/pkg/ilc"
	"github.com/Thermoquad/mirrorsupport/pkg/position"
	"github.com/Thermoquad/mirrorsupport/pkg/raise"
	"github.com/Thermoquad/mirrorsupport/pkg/safety"
)

// PressureBand is the accepted hardpoint supply pressure, in kPa.
type PressureBand struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Contains reports whether p lies inside the band.
func (b PressureBand) Contains(p float64) bool {
	return p >= b.Low && p <= b.High
}

// BoostValveGains are the booster valve gains written to every force
// actuator when the ILCs are enabled.
type BoostValveGains struct {
	Primary   float32 `yaml:"primary"`
	Secondary float32 `yaml:"secondary"`
}

// Config configures the control loop and every controller it drives.
type Config struct {
	CycleTime time.Duration `yaml:"cycle_time"`
	// SubnetTimeout bounds the wait for each subnet IRQ.
	SubnetTimeout time.Duration `yaml:"subnet_timeout"`
	// Firmware is a semver constraint on the ILC firmware, e.g. ">= 2.4".
	Firmware string `yaml:"firmware"`
	// Timings override the reply wait of individual function codes, in µs.
	Timings map[ilc.FunctionCode]uint32 `yaml:"timings"`
	// Elevation is the elevation angle assumed until the monitor reports one.
	Elevation   float64      `yaml:"elevation"`
	AirPressure PressureBand `yaml:"air_pressure"`
	// StatusEvery is the number of cycles between ILC server status polls.
	StatusEvery int `yaml:"status_every"`
	// StatisticsEvery is the number of cycles between ILC statistics events.
	StatisticsEvery int `yaml:"statistics_every"`
	// ADCScanRate is the load cell ADC scan rate code written on start.
	ADCScanRate     uint8           `yaml:"adc_scan_rate"`
	BoostValveGains BoostValveGains `yaml:"boost_valve_gains"`

	Safety   safety.Config   `yaml:"safety"`
	Forces   forces.Config   `yaml:"forces"`
	Raise    raise.Config    `yaml:"raise"`
	Position position.Config `yaml:"position"`
}

// DefaultConfig runs at 50 Hz.
func DefaultConfig() Config {
	return Config{
		CycleTime:       20 * time.Millisecond,
		SubnetTimeout:   5 * time.Millisecond,
		Elevation:       90,
		AirPressure:     PressureBand{Low: 100, High: 150},
		StatusEvery:     50,
		StatisticsEvery: 50,
		ADCScanRate:     8,
		BoostValveGains: BoostValveGains{Primary: 1, Secondary: 1},
		Safety:          safety.DefaultConfig(),
		Forces:          forces.DefaultConfig(),
		Raise:           raise.DefaultConfig(),
		Position:        position.DefaultConfig(),
	}
}

// Validate checks the loop settings and every nested configuration.
func (c Config) Validate() error {
	var errs []error
	if c.CycleTime <= 0 {
		errs = append(errs, fmt.Errorf("cycle time %v must be positive", c.CycleTime))
	}
	if c.SubnetTimeout <= 0 || c.SubnetTimeout >= c.CycleTime {
		errs = append(errs, fmt.Errorf("subnet timeout %v must be positive and shorter than the cycle", c.SubnetTimeout))
	}
	if c.Elevation < 0 || c.Elevation > 90 {
		errs = append(errs, fmt.Errorf("elevation %g out of range", c.Elevation))
	}
	if c.AirPressure.Low > c.AirPressure.High {
		errs = append(errs, errors.New("air pressure band is inverted"))
	}
	if c.StatusEvery < 1 || c.StatisticsEvery < 1 {
		errs = append(errs, errors.New("status and statistics periods must be positive"))
	}
	if c.BoostValveGains.Primary <= 0 || c.BoostValveGains.Secondary <= 0 {
		errs = append(errs, errors.New("boost valve gains must be positive"))
	}
	if _, err := ilc.NewFirmwareCheck(c.Firmware); err != nil {
		errs = append(errs, err)
	}
	for fn := range c.Timings {
		if !fn.Known() {
			errs = append(errs, fmt.Errorf("timing for unknown function %d", uint8(fn)))
		}
	}
	for name, err := range map[string]error{
		"safety":   c.Safety.Validate(),
		"forces":   c.Forces.Validate(),
		"raise":    c.Raise.Validate(),
		"position": c.Position.Validate(),
	} {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
