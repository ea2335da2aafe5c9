// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package safety latches the first enabled fault condition of a control cycle
// and turns it into a lowering fault transition.
package safety

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Thermoquad/mirrorsupport/pkg/flags"
)

// WindowConfig sizes one sliding fault-counting window.
type WindowConfig struct {
	Period int `yaml:"period"`
	Count  int `yaml:"count"`
}

// Config holds the fault enables and window sizes.
type Config struct {
	// Enabled maps fault code names to their enable flag. Codes not listed
	// are disabled.
	Enabled              map[string]bool `yaml:"enabled"`
	ILCTimeout           WindowConfig    `yaml:"ilc_timeout"`
	FollowingError       WindowConfig    `yaml:"following_error"`
	HardpointForce       WindowConfig    `yaml:"hardpoint_force"`
	HardpointAirPressure WindowConfig    `yaml:"hardpoint_air_pressure"`
}

// DefaultConfig enables every fault.
func DefaultConfig() Config {
	enabled := make(map[string]bool)
	for _, c := range FaultCodes() {
		enabled[c.String()] = true
	}
	return Config{
		Enabled:              enabled,
		ILCTimeout:           WindowConfig{Period: 50, Count: 10},
		FollowingError:       WindowConfig{Period: 50, Count: 20},
		HardpointForce:       WindowConfig{Period: 50, Count: 10},
		HardpointAirPressure: WindowConfig{Period: 50, Count: 10},
	}
}

// Validate checks fault names and window sizes.
func (c Config) Validate() error {
	var errs []error
	for name := range c.Enabled {
		if _, err := ParseFaultCode(name); err != nil {
			errs = append(errs, err)
		}
	}
	for name, w := range map[string]WindowConfig{
		"ilc_timeout":            c.ILCTimeout,
		"following_error":        c.FollowingError,
		"hardpoint_force":        c.HardpointForce,
		"hardpoint_air_pressure": c.HardpointAirPressure,
	} {
		if w.Period < 1 || w.Count < 1 || w.Count > w.Period {
			errs = append(errs, fmt.Errorf("%s window: count %d of period %d", name, w.Count, w.Period))
		}
	}
	return errors.Join(errs...)
}

// Listener receives every newly latched fault.
type Listener func(code FaultCode, report string)

// Controller is the fault latch of the control loop. It is owned by the
// control loop goroutine.
type Controller struct {
	enabled [faultCodeCount]bool
	log     *zap.Logger
	listen  Listener

	code   FaultCode
	report string
	logged bool
	// suppressed holds disabled faults whose condition was already reported.
	suppressed flags.Set[FaultCode]

	ilcTimeout     *Window
	followingError []*Window
	hpForce        []*Window
	hpAirPressure  []*Window
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithListener registers fn for latched faults.
func WithListener(fn Listener) Option {
	return func(c *Controller) { c.listen = fn }
}

// New builds a controller with windows sized for faCount force actuators and
// hpCount hardpoints.
func New(cfg Config, faCount, hpCount int, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("safety config: %w", err)
	}
	c := &Controller{log: zap.NewNop()}
	for name, on := range cfg.Enabled {
		code, _ := ParseFaultCode(name)
		c.enabled[code] = on
	}
	c.ilcTimeout = NewWindow(cfg.ILCTimeout.Period, cfg.ILCTimeout.Count)
	c.followingError = windows(faCount, cfg.FollowingError)
	c.hpForce = windows(hpCount, cfg.HardpointForce)
	c.hpAirPressure = windows(hpCount, cfg.HardpointAirPressure)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func windows(n int, cfg WindowConfig) []*Window {
	out := make([]*Window, n)
	for i := range out {
		out[i] = NewWindow(cfg.Period, cfg.Count)
	}
	return out
}

// Enabled reports whether code can latch.
func (c *Controller) Enabled(code FaultCode) bool {
	return code < faultCodeCount && c.enabled[code]
}

// ErrorCode returns the latched fault.
func (c *Controller) ErrorCode() FaultCode { return c.code }

// ErrorReport returns the report of the latched fault.
func (c *Controller) ErrorReport() string { return c.report }

// Update latches code when it is enabled, condition holds and no other fault
// is latched.
func (c *Controller) Update(code FaultCode, condition bool, format string, args ...any) {
	if !condition || code == NoFault {
		return
	}
	if !c.Enabled(code) {
		if !c.suppressed.Has(code) {
			c.suppressed.Set(code)
			c.log.Warn("disabled fault condition raised",
				zap.Stringer("code", code),
				zap.String("report", fmt.Sprintf(format, args...)))
		}
		return
	}
	if c.code != NoFault {
		return
	}
	c.code = code
	c.report = fmt.Sprintf(format, args...)
	if c.listen != nil {
		c.listen(c.code, c.report)
	}
}

// ILCCommunicationTimeout samples the aggregate ILC response timeout.
func (c *Controller) ILCCommunicationTimeout(anyTimeout bool) {
	w := c.ilcTimeout
	c.Update(ILCCommunicationTimeout, w.Push(anyTimeout),
		"ILC communication timeout in %d of the last %d cycles", w.Count(), w.Period())
}

// ForceActuatorFollowingError samples the following error of one actuator.
func (c *Controller) ForceActuatorFollowingError(index int, actuatorID int32, fault bool) {
	if index < 0 || index >= len(c.followingError) {
		return
	}
	w := c.followingError[index]
	c.Update(ForceActuatorFollowingError, w.Push(fault),
		"Force actuator %d following error in %d of the last %d cycles", actuatorID, w.Count(), w.Period())
}

// HardpointMeasuredForce samples the measured force fault of one hardpoint.
func (c *Controller) HardpointMeasuredForce(index int, fault bool) {
	if index < 0 || index >= len(c.hpForce) {
		return
	}
	w := c.hpForce[index]
	c.Update(HardpointMeasuredForce, w.Push(fault),
		"Hardpoint %d measured force out of range in %d of the last %d cycles", index+1, w.Count(), w.Period())
}

// HardpointAirPressure samples the air pressure fault of one hardpoint.
func (c *Controller) HardpointAirPressure(index int, fault bool) {
	if index < 0 || index >= len(c.hpAirPressure) {
		return
	}
	w := c.hpAirPressure[index]
	c.Update(HardpointAirPressure, w.Push(fault),
		"Hardpoint %d air pressure out of range in %d of the last %d cycles", index+1, w.Count(), w.Period())
}

// ILCFirmwareMismatch reports ILCs running rejected firmware.
func (c *Controller) ILCFirmwareMismatch(count int) {
	c.Update(ILCFirmwareMismatch, count > 0, "%d ILC(s) run unsupported firmware", count)
}

// RaiseTimeout reports an expired raise deadline.
func (c *Controller) RaiseTimeout(expired bool) {
	c.Update(RaiseTimeout, expired, "Mirror raise timed out")
}

// LowerTimeout reports an expired lower deadline.
func (c *Controller) LowerTimeout(expired bool) {
	c.Update(LowerTimeout, expired, "Mirror lower timed out")
}

// CheckSafety returns LoweringFaultState while a fault is latched, else
// preferred. The fault stays latched until ClearErrorCode.
func (c *Controller) CheckSafety(preferred State) State {
	if c.code == NoFault {
		return preferred
	}
	if !c.logged {
		c.logged = true
		c.log.Error("safety fault, lowering mirror",
			zap.Stringer("code", c.code),
			zap.String("report", c.report),
			zap.Stringer("from", preferred))
	}
	return LoweringFaultState
}

// ClearErrorCode drops the latched fault and resets every window.
func (c *Controller) ClearErrorCode() {
	c.code = NoFault
	c.report = ""
	c.logged = false
	c.suppressed.Reset()
	c.ilcTimeout.Clear()
	for _, ws := range [][]*Window{c.followingError, c.hpForce, c.hpAirPressure} {
		for _, w := range ws {
			w.Clear()
		}
	}
}
