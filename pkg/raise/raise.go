// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package raise transfers the mirror weight between the static supports and
// the force actuators.
package raise

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Forces is the part of the force pipeline the raise drives.
type Forces interface {
	ApplyStaticForces()
	ZeroStaticForces()
	ApplyElevationForces()
	ZeroElevationForces()
	ApplyAzimuthForces()
	ZeroAzimuthForces()
	ApplyThermalForces()
	ZeroThermalForces()
	ZeroVelocityForces()
	ZeroAccelerationForces()
	ApplyBalanceForces()
	ZeroBalanceForces()
	ZeroActiveOpticForces()
	ZeroOffsetForces()
	FARaiseFollowingErrorInTolerance() bool
	HPRaiseLowerForcesInTolerance(raise bool) bool
}

// Positioner is the hardpoint position controller.
type Positioner interface {
	EnableChaseAll()
	DisableChaseAll()
	MoveToReferencePosition()
	MotionComplete() bool
}

// Hardpoints supplies the measured hardpoint leg forces.
type Hardpoints interface {
	HardpointForces() []float64
}

// Notifier receives the raise and lower timeout conditions.
type Notifier interface {
	RaiseTimeout(expired bool)
	LowerTimeout(expired bool)
}

// Config configures raising and lowering.
type Config struct {
	IncrementPercent float64 `yaml:"increment_percent"`
	DecrementPercent float64 `yaml:"decrement_percent"`
	// StaticThreshold is the support percentage above which static forces apply.
	StaticThreshold float64       `yaml:"static_threshold"`
	RaiseTimeout    time.Duration `yaml:"raise_timeout"`
	LowerTimeout    time.Duration `yaml:"lower_timeout"`
	// AirPressureWait is how long the raise holds after the air valve opens.
	AirPressureWait time.Duration `yaml:"air_pressure_wait"`
	InRange         InRangeConfig `yaml:"in_range"`
}

// DefaultConfig raises by 1% per cycle.
func DefaultConfig() Config {
	return Config{
		IncrementPercent: 1,
		DecrementPercent: 1,
		StaticThreshold:  25,
		RaiseTimeout:     300 * time.Second,
		LowerTimeout:     300 * time.Second,
		AirPressureWait:  2 * time.Second,
		InRange:          InRangeConfig{Band: 50, Count: 25, MaxSamples: 500},
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	var errs []error
	if c.IncrementPercent <= 0 || c.IncrementPercent > 100 {
		errs = append(errs, fmt.Errorf("increment %g%% out of range", c.IncrementPercent))
	}
	if c.DecrementPercent <= 0 || c.DecrementPercent > 100 {
		errs = append(errs, fmt.Errorf("decrement %g%% out of range", c.DecrementPercent))
	}
	if c.StaticThreshold < 0 || c.StaticThreshold > 100 {
		errs = append(errs, fmt.Errorf("static threshold %g%% out of range", c.StaticThreshold))
	}
	if c.RaiseTimeout <= 0 || c.LowerTimeout <= 0 {
		errs = append(errs, errors.New("raise and lower timeouts must be positive"))
	}
	if c.InRange.Count < 1 {
		errs = append(errs, fmt.Errorf("in range count %d must be positive", c.InRange.Count))
	}
	return errors.Join(errs...)
}

// Progress is a snapshot of the raise or lower operation.
type Progress struct {
	SupportPercentage float64
	Raising           bool
	Lowering          bool
	Paused            bool
	Stalled           bool
	WaitingAir        bool
	// Remaining is the time budget left, NaN when no operation runs.
	Remaining float64
}

// Controller runs the raise and lower loops. It is used from the control loop
// goroutine only.
type Controller struct {
	cfg        Config
	info       *Info
	forces     Forces
	position   Positioner
	hardpoints Hardpoints
	notify     Notifier
	log        *zap.Logger
	clock      func() float64

	counters []*HpInRangeCounter

	raising       bool
	lowering      bool
	bypassMoveRef bool
	stalled       bool
	waitingAir    bool
	paused        bool
	filledHandled bool
	staticApplied bool
	timeoutLogged bool
	deadline      float64
	remaining     float64
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithClock replaces the wall clock, in seconds.
func WithClock(clock func() float64) Option {
	return func(c *Controller) { c.clock = clock }
}

// New builds a controller for hardpointCount hardpoints.
func New(cfg Config, info *Info, f Forces, p Positioner, hp Hardpoints, n Notifier, hardpointCount int, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("raise config: %w", err)
	}
	c := &Controller{
		cfg:        cfg,
		info:       info,
		forces:     f,
		position:   p,
		hardpoints: hp,
		notify:     n,
		log:        zap.NewNop(),
		clock:      func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
		counters:   make([]*HpInRangeCounter, hardpointCount),
		deadline:   math.NaN(),
		remaining:  math.NaN(),
	}
	for i := range c.counters {
		c.counters[i] = NewHpInRangeCounter(cfg.InRange)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Info returns the shared support percentage.
func (c *Controller) Info() *Info { return c.info }

// Progress returns a snapshot for telemetry.
func (c *Controller) Progress() Progress {
	remaining := c.remaining
	if !c.paused && !math.IsNaN(c.deadline) {
		remaining = c.deadline - c.clock()
	}
	return Progress{
		SupportPercentage: c.info.SupportPercentage(),
		Raising:           c.raising,
		Lowering:          c.lowering,
		Paused:            c.paused,
		Stalled:           c.stalled,
		WaitingAir:        c.waitingAir,
		Remaining:         remaining,
	}
}

func (c *Controller) startClock(budget time.Duration) {
	c.remaining = budget.Seconds()
	c.deadline = c.clock() + c.remaining
	c.paused = false
	c.timeoutLogged = false
}

func (c *Controller) stopClock() {
	c.deadline = math.NaN()
	c.remaining = math.NaN()
}

// ============================================================================
// Raise
// ============================================================================

// Start begins a raise from zero support. With bypassMoveToReference the
// hardpoints stay where they are once the weight is transferred.
func (c *Controller) Start(bypassMoveToReference bool) {
	c.log.Info("raising mirror", zap.Bool("bypass_move_to_reference", bypassMoveToReference))
	c.raising, c.lowering = true, false
	c.bypassMoveRef = bypassMoveToReference
	c.stalled, c.waitingAir = false, false
	c.filledHandled, c.staticApplied = false, false
	for _, h := range c.counters {
		h.Reset()
	}

	c.forces.ZeroAccelerationForces()
	c.forces.ZeroActiveOpticForces()
	c.forces.ZeroAzimuthForces()
	c.forces.ZeroBalanceForces()
	c.forces.ZeroOffsetForces()
	c.forces.ZeroThermalForces()
	c.forces.ZeroVelocityForces()
	c.forces.ApplyElevationForces()

	c.info.Zero()
	if c.cfg.AirPressureWait > 0 {
		c.info.WaitForAirPressure(c.clock() + c.cfg.AirPressureWait.Seconds())
	}
	c.position.EnableChaseAll()
	c.startClock(c.cfg.RaiseTimeout)
}

// RunLoop advances the raise by one control cycle.
func (c *Controller) RunLoop() {
	if !c.raising || c.paused {
		return
	}
	if !c.info.Filled() {
		if c.info.WaitingForAirPressure(c.clock()) {
			if !c.waitingAir {
				c.log.Info("waiting for air pressure")
				c.waitingAir = true
			}
			return
		}
		c.waitingAir = false

		if c.forces.HPRaiseLowerForcesInTolerance(true) && c.forces.FARaiseFollowingErrorInTolerance() {
			if c.stalled {
				c.log.Info("raise resumed", zap.Float64("support", c.info.SupportPercentage()))
				c.stalled = false
			}
			c.info.Increment()
			if !c.staticApplied && c.info.SupportPercentage() >= c.cfg.StaticThreshold {
				c.forces.ApplyStaticForces()
				c.staticApplied = true
			}
		} else if !c.stalled {
			c.log.Warn("raise held, forces out of tolerance", zap.Float64("support", c.info.SupportPercentage()))
			c.stalled = true
		}
	}

	if c.info.Filled() {
		if !c.filledHandled {
			c.filledHandled = true
			c.position.DisableChaseAll()
			if !c.bypassMoveRef {
				c.position.MoveToReferencePosition()
			}
		}
		c.sampleInRange()
	}
}

func (c *Controller) sampleInRange() {
	forces := c.hardpoints.HardpointForces()
	for i, h := range c.counters {
		if i < len(forces) {
			h.Sample(forces[i])
		}
	}
}

// CheckComplete reports whether the raise can complete.
func (c *Controller) CheckComplete() bool {
	if !c.raising || !c.info.Filled() || !c.position.MotionComplete() {
		return false
	}
	for _, h := range c.counters {
		if !h.Done() {
			return false
		}
	}
	return true
}

// Complete ends the raise and applies the active-state force components.
// Balance forces stay off when a hardpoint never settled.
func (c *Controller) Complete() {
	c.forces.ZeroAccelerationForces()
	c.forces.ZeroActiveOpticForces()
	c.forces.ZeroOffsetForces()
	c.forces.ApplyAzimuthForces()
	c.forces.ApplyElevationForces()
	c.forces.ApplyStaticForces()
	c.forces.ApplyThermalForces()
	c.forces.ZeroVelocityForces()

	var timedOut []int
	for i, h := range c.counters {
		if h.TimedOut() {
			timedOut = append(timedOut, i+1)
		}
	}
	if len(timedOut) > 0 {
		c.log.Error("hardpoints never settled, balance forces not applied", zap.Ints("hardpoints", timedOut))
	} else {
		c.forces.ApplyBalanceForces()
	}

	c.info.Fill()
	c.raising = false
	c.stopClock()
	c.log.Info("mirror raised")
}

// CheckTimeout reports whether the raise deadline passed.
func (c *Controller) CheckTimeout() bool {
	return c.raising && c.expired()
}

// Timeout raises the raise timeout fault. The host decides the transition.
// The error is logged once per operation.
func (c *Controller) Timeout() {
	if !c.timeoutLogged {
		c.log.Error("raise timed out", zap.Float64("support", c.info.SupportPercentage()))
		c.timeoutLogged = true
	}
	c.notify.RaiseTimeout(true)
}

func (c *Controller) expired() bool {
	// NaN compares false
	return c.clock() > c.deadline
}

// Pause stops the raise or lower. Time spent paused does not count against
// the timeout.
func (c *Controller) Pause() {
	if c.paused || math.IsNaN(c.deadline) {
		return
	}
	c.remaining = c.deadline - c.clock()
	c.deadline = math.NaN()
	c.paused = true
	c.log.Info("paused", zap.Float64("remaining", c.remaining))
}

// Resume continues a paused raise or lower with the remaining budget.
func (c *Controller) Resume() {
	if !c.paused {
		return
	}
	c.deadline = c.clock() + c.remaining
	c.paused = false
	c.log.Info("resumed", zap.Float64("remaining", c.remaining))
}

// ============================================================================
// Lower
// ============================================================================

// StartLowering begins lowering from the current support percentage.
func (c *Controller) StartLowering() {
	c.log.Info("lowering mirror", zap.Float64("support", c.info.SupportPercentage()))
	c.raising, c.lowering = false, true
	c.stalled, c.waitingAir = false, false
	c.staticApplied = c.info.SupportPercentage() >= c.cfg.StaticThreshold

	c.forces.ZeroAccelerationForces()
	c.forces.ZeroActiveOpticForces()
	c.forces.ZeroBalanceForces()
	c.forces.ZeroOffsetForces()
	c.forces.ZeroVelocityForces()
	c.forces.ApplyElevationForces()

	c.position.EnableChaseAll()
	c.startClock(c.cfg.LowerTimeout)
}

// AbortRaise turns an in-progress raise into a lowering.
func (c *Controller) AbortRaise() {
	if !c.raising {
		return
	}
	c.log.Warn("raise aborted", zap.Float64("support", c.info.SupportPercentage()))
	c.StartLowering()
}

// RunLowerLoop advances the lowering by one control cycle.
func (c *Controller) RunLowerLoop() {
	if !c.lowering || c.paused || c.info.Empty() {
		return
	}
	if !c.forces.HPRaiseLowerForcesInTolerance(false) {
		if !c.stalled {
			c.log.Warn("lowering held, hardpoint forces out of tolerance", zap.Float64("support", c.info.SupportPercentage()))
			c.stalled = true
		}
		return
	}
	if c.stalled {
		c.log.Info("lowering resumed", zap.Float64("support", c.info.SupportPercentage()))
		c.stalled = false
	}
	c.info.Decrement()
	if c.staticApplied && c.info.SupportPercentage() < c.cfg.StaticThreshold {
		c.forces.ZeroStaticForces()
		c.staticApplied = false
	}
}

// CheckLowerComplete reports whether the weight is back on the static supports.
func (c *Controller) CheckLowerComplete() bool {
	return c.lowering && c.info.Empty()
}

// CompleteLower ends the lowering and removes every force.
func (c *Controller) CompleteLower() {
	c.forces.ZeroAccelerationForces()
	c.forces.ZeroActiveOpticForces()
	c.forces.ZeroAzimuthForces()
	c.forces.ZeroBalanceForces()
	c.forces.ZeroElevationForces()
	c.forces.ZeroOffsetForces()
	c.forces.ZeroStaticForces()
	c.forces.ZeroThermalForces()
	c.forces.ZeroVelocityForces()
	c.position.DisableChaseAll()

	c.info.Zero()
	c.lowering = false
	c.stopClock()
	c.log.Info("mirror lowered")
}

// CheckLowerTimeout reports whether the lower deadline passed.
func (c *Controller) CheckLowerTimeout() bool {
	return c.lowering && c.expired()
}

// LowerTimeout raises the lower timeout fault.
func (c *Controller) LowerTimeout() {
	if !c.timeoutLogged {
		c.log.Error("lower timed out", zap.Float64("support", c.info.SupportPercentage()))
		c.timeoutLogged = true
	}
	c.notify.LowerTimeout(true)
}
