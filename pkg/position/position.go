// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package position drives the hardpoint stepper motors.
package position

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/ilc"
	"github.com/Thermoquad/mirrorsupport/pkg/safety"
)

// ErrBusy is returned when a motion is requested for a chasing hardpoint.
var ErrBusy = errors.New("hardpoint is chasing")

// Mode is what a hardpoint is doing.
type Mode uint8

const (
	Standby Mode = iota
	Chasing
	Stepping
	Moving
)

func (m Mode) String() string {
	switch m {
	case Standby:
		return "Standby"
	case Chasing:
		return "Chasing"
	case Stepping:
		return "Stepping"
	case Moving:
		return "Moving"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Source supplies the measured hardpoint states.
type Source interface {
	HardpointStates() []ilc.HardpointState
}

// Notifier receives the limit switch condition.
type Notifier interface {
	Update(code safety.FaultCode, condition bool, format string, args ...any)
}

// Config configures the position controller.
type Config struct {
	// ForceToSteps is the chase gain in steps per N of measured force.
	ForceToSteps  float64 `yaml:"force_to_steps"`
	MaxChaseSteps int     `yaml:"max_chase_steps"`
	MaxMoveSteps  int     `yaml:"max_move_steps"`
	// StepsPerEncoder is the number of motor steps per encoder count.
	StepsPerEncoder float64 `yaml:"steps_per_encoder"`
	// EncoderTolerance is how close a move has to land, in encoder counts.
	EncoderTolerance      int32   `yaml:"encoder_tolerance"`
	MicrometersPerEncoder float64 `yaml:"micrometers_per_encoder"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		ForceToSteps:          0.05,
		MaxChaseSteps:         20,
		MaxMoveSteps:          100,
		StepsPerEncoder:       4,
		EncoderTolerance:      2,
		MicrometersPerEncoder: 0.2,
	}
}

// Validate checks ranges. Per-cycle step limits must fit the signed byte of
// StepMotor.
func (c Config) Validate() error {
	var errs []error
	if c.ForceToSteps <= 0 {
		errs = append(errs, fmt.Errorf("force to steps %g must be positive", c.ForceToSteps))
	}
	if c.MaxChaseSteps < 1 || c.MaxChaseSteps > math.MaxInt8 {
		errs = append(errs, fmt.Errorf("max chase steps %d out of 1..%d", c.MaxChaseSteps, math.MaxInt8))
	}
	if c.MaxMoveSteps < 1 || c.MaxMoveSteps > math.MaxInt8 {
		errs = append(errs, fmt.Errorf("max move steps %d out of 1..%d", c.MaxMoveSteps, math.MaxInt8))
	}
	if c.StepsPerEncoder <= 0 {
		errs = append(errs, fmt.Errorf("steps per encoder %g must be positive", c.StepsPerEncoder))
	}
	if c.EncoderTolerance < 0 {
		errs = append(errs, fmt.Errorf("encoder tolerance %d is negative", c.EncoderTolerance))
	}
	if c.MicrometersPerEncoder <= 0 {
		errs = append(errs, fmt.Errorf("micrometers per encoder %g must be positive", c.MicrometersPerEncoder))
	}
	return errors.Join(errs...)
}

type leg struct {
	mode      Mode
	remaining int32
	target    int32
	// blocked latches the limit switch report until the leg moves again.
	blocked bool
}

// Controller turns chase, step and move requests into per-cycle StepMotor
// steps. It is used from the control loop goroutine only.
type Controller struct {
	cfg    Config
	table  *actuator.Table
	source Source
	notify Notifier
	log    *zap.Logger

	legs  []leg
	steps []int8
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New returns a controller with every hardpoint in Standby.
func New(cfg Config, t *actuator.Table, source Source, notify Notifier, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("position config: %w", err)
	}
	c := &Controller{
		cfg:    cfg,
		table:  t,
		source: source,
		notify: notify,
		log:    zap.NewNop(),
		legs:   make([]leg, len(t.Hardpoints)),
		steps:  make([]int8, len(t.Hardpoints)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mode returns the mode of hardpoint index.
func (c *Controller) Mode(index int) Mode { return c.legs[index].mode }

// MotionComplete reports whether no hardpoint is stepping or moving.
func (c *Controller) MotionComplete() bool {
	for _, l := range c.legs {
		if l.mode == Stepping || l.mode == Moving {
			return false
		}
	}
	return true
}

// EnableChase makes hardpoint index follow its measured force toward zero.
func (c *Controller) EnableChase(index int) error {
	if index < 0 || index >= len(c.legs) {
		return fmt.Errorf("hardpoint index %d out of range", index)
	}
	c.legs[index] = leg{mode: Chasing}
	return nil
}

// DisableChase stops chasing on hardpoint index.
func (c *Controller) DisableChase(index int) error {
	if index < 0 || index >= len(c.legs) {
		return fmt.Errorf("hardpoint index %d out of range", index)
	}
	if c.legs[index].mode == Chasing {
		c.legs[index] = leg{}
	}
	return nil
}

// EnableChaseAll chases on every hardpoint.
func (c *Controller) EnableChaseAll() {
	c.log.Info("hardpoint chase enabled")
	for i := range c.legs {
		c.legs[i] = leg{mode: Chasing}
	}
}

// DisableChaseAll stops chasing on every hardpoint.
func (c *Controller) DisableChaseAll() {
	c.log.Info("hardpoint chase disabled")
	for i := range c.legs {
		if c.legs[i].mode == Chasing {
			c.legs[i] = leg{}
		}
	}
}

func (c *Controller) checkIdle() error {
	for i, l := range c.legs {
		if l.mode == Chasing {
			return fmt.Errorf("%w: hardpoint %d", ErrBusy, c.table.Hardpoints[i].ID)
		}
	}
	return nil
}

// Move queues relative steps per hardpoint.
func (c *Controller) Move(steps []int32) error {
	if len(steps) != len(c.legs) {
		return fmt.Errorf("move sized %d, %d hardpoints", len(steps), len(c.legs))
	}
	if err := c.checkIdle(); err != nil {
		return err
	}
	for i, s := range steps {
		if s == 0 {
			c.legs[i] = leg{}
			continue
		}
		c.legs[i] = leg{mode: Stepping, remaining: s}
	}
	return nil
}

// MoveToEncoder moves every hardpoint to an absolute encoder value.
func (c *Controller) MoveToEncoder(encoders []int32) error {
	if len(encoders) != len(c.legs) {
		return fmt.Errorf("move sized %d, %d hardpoints", len(encoders), len(c.legs))
	}
	if err := c.checkIdle(); err != nil {
		return err
	}
	for i, e := range encoders {
		c.legs[i] = leg{mode: Moving, target: e}
	}
	return nil
}

// MoveToReferencePosition moves every hardpoint to its reference encoder value.
func (c *Controller) MoveToReferencePosition() {
	targets := make([]int32, len(c.table.Hardpoints))
	for i, hp := range c.table.Hardpoints {
		targets[i] = hp.ReferencePosition
	}
	if err := c.MoveToEncoder(targets); err != nil {
		c.log.Error("move to reference position", zap.Error(err))
		return
	}
	c.log.Info("moving hardpoints to reference position")
}

// Translate moves the mirror by offset (µm) and a small rotation (rad about
// X, Y and Z) around the mirror origin.
func (c *Controller) Translate(offset, rotation mgl64.Vec3) error {
	states := c.source.HardpointStates()
	if len(states) != len(c.legs) {
		return fmt.Errorf("have %d hardpoint states, want %d", len(states), len(c.legs))
	}
	targets := make([]int32, len(c.legs))
	for i, hp := range c.table.Hardpoints {
		// positions are in metres, the offset in µm
		d := offset.Add(rotation.Cross(hp.Position).Mul(1e6))
		delta := hp.Axis.Dot(d) / c.cfg.MicrometersPerEncoder
		targets[i] = states[i].Encoder + int32(math.Round(delta))
	}
	return c.MoveToEncoder(targets)
}

// Stop ends every step and move. Chasing hardpoints keep chasing.
func (c *Controller) Stop() {
	for i := range c.legs {
		if c.legs[i].mode != Chasing {
			c.legs[i] = leg{}
		}
	}
}

func clampSteps(v float64, limit int) int32 {
	v = math.Round(v)
	return int32(math.Max(-float64(limit), math.Min(float64(limit), v)))
}

// UpdateSteps computes the steps every hardpoint takes this cycle. The
// returned slice is reused by the next call.
func (c *Controller) UpdateSteps() []int8 {
	states := c.source.HardpointStates()
	for i := range c.legs {
		l := &c.legs[i]
		var st ilc.HardpointState
		if i < len(states) {
			st = states[i]
		}

		var s int32
		switch l.mode {
		case Chasing:
			// compression shortens the leg
			s = clampSteps(-float64(st.Force)*c.cfg.ForceToSteps, c.cfg.MaxChaseSteps)
		case Stepping:
			s = clampSteps(float64(l.remaining), c.cfg.MaxMoveSteps)
		case Moving:
			errCounts := l.target - st.Encoder
			if errCounts >= -c.cfg.EncoderTolerance && errCounts <= c.cfg.EncoderTolerance {
				*l = leg{}
				break
			}
			s = clampSteps(float64(errCounts)*c.cfg.StepsPerEncoder, c.cfg.MaxMoveSteps)
		}

		if s != 0 && c.limited(i, st.Status, s) {
			s = 0
			if l.mode != Chasing {
				*l = leg{mode: Standby, blocked: true}
			}
		} else if s != 0 {
			l.blocked = false
		}

		if l.mode == Stepping {
			l.remaining -= s
			if l.remaining == 0 {
				*l = leg{}
			}
		}
		c.steps[i] = int8(s)
	}
	return c.steps
}

// limited reports whether the limit switch in the direction of steps is
// operated. Switch 1 ends retraction, switch 2 ends extension.
func (c *Controller) limited(index int, status ilc.HardpointStatus, steps int32) bool {
	hit := (steps < 0 && status.Has(ilc.HardpointLimitSwitch1Operated)) ||
		(steps > 0 && status.Has(ilc.HardpointLimitSwitch2Operated))
	if !hit {
		return false
	}
	l := &c.legs[index]
	if !l.blocked {
		id := c.table.Hardpoints[index].ID
		c.log.Warn("hardpoint limit switch operated", zap.Int32("hardpoint", id), zap.Int32("steps", steps))
		c.notify.Update(safety.HardpointLimitSwitch, true, "Hardpoint %d limit switch operated while stepping %d", id, steps)
		l.blocked = true
	}
	return true
}
