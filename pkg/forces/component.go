// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forces

import (
	"go.uber.org/zap"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/flags"
	"github.com/Thermoquad/mirrorsupport/pkg/safety"
)

// Notifier receives the fault conditions found by the force pipeline.
type Notifier interface {
	Update(code safety.FaultCode, condition bool, format string, args ...any)
	ForceActuatorFollowingError(index int, actuatorID int32, fault bool)
	HardpointMeasuredForce(index int, fault bool)
}

// ComponentConfig configures one force component.
type ComponentConfig struct {
	// MaxRate is the largest change of any force per update, in N.
	MaxRate float64     `yaml:"max_rate"`
	Limits  LimitConfig `yaml:"limits"`
}

// Component is one force contributor. It ramps its current forces toward a
// target, clips them into its limits and reports clipping.
type Component struct {
	name     string
	fault    safety.FaultCode
	table    *actuator.Table
	maxRate  float64
	nearZero float64
	limits   Limits
	notify   Notifier
	log      *zap.Logger

	ramp     Ramp
	target   Forces
	current  Forces
	applied  Forces
	clipping []flags.Set[Axis]
	clipped  int
}

func newComponent(name string, fault safety.FaultCode, t *actuator.Table, cfg ComponentConfig, nearZero float64, n Notifier, log *zap.Logger) *Component {
	return &Component{
		name:     name,
		fault:    fault,
		table:    t,
		maxRate:  cfg.MaxRate,
		nearZero: nearZero,
		limits:   NewLimits(t, cfg.Limits),
		notify:   n,
		log:      log.With(zap.String("component", name)),
		ramp:     Ramp{State: Initialising},
		target:   NewForces(t),
		current:  NewForces(t),
		applied:  NewForces(t),
		clipping: make([]flags.Set[Axis], t.Count()),
	}
}

// Name returns the component name.
func (c *Component) Name() string { return c.name }

// State returns the lifecycle state.
func (c *Component) State() ComponentState { return c.ramp.State }

// IsActive reports whether the component must be summed.
func (c *Component) IsActive() bool { return c.ramp.State.Active() }

// Enable makes the component follow its target again.
func (c *Component) Enable() {
	if c.ramp.State != Enabled {
		c.log.Debug("enabled", zap.Stringer("from", c.ramp.State))
	}
	c.ramp = c.ramp.Enable()
}

// Disable ramps the component out to zero.
func (c *Component) Disable() {
	if c.ramp.State == Disabled {
		return
	}
	c.target.Zero()
	c.ramp = c.ramp.Disable(c.current.MaxAbs(), c.nearZero)
	if c.ramp.State == Disabled {
		c.reset()
	}
	c.log.Debug("disabling", zap.Float64("remaining", c.ramp.Remaining))
}

// SetTarget copies f into the target. It is ignored while disabling.
func (c *Component) SetTarget(f Forces) {
	if c.ramp.State == Disabling || c.ramp.State == Disabled {
		return
	}
	c.target.CopyFrom(f)
}

// Target returns the forces the component ramps toward.
func (c *Component) Target() Forces { return c.target }

// Preclipped returns the forces before clipping.
func (c *Component) Preclipped() Forces { return c.current }

// Applied returns the clipped forces.
func (c *Component) Applied() Forces { return c.applied }

// Clipping returns the per-actuator clipping flags of the last update.
func (c *Component) Clipping() []flags.Set[Axis] { return c.clipping }

// AnyClipping reports whether the last update clipped any actuator.
func (c *Component) AnyClipping() bool { return c.clipped > 0 }

// Update steps current toward target and applies the limits.
func (c *Component) Update() {
	if !c.IsActive() {
		return
	}
	for _, a := range []Axis{AxisX, AxisY, AxisZ} {
		stepToward(c.current.Axis(a), c.target.Axis(a), c.maxRate)
	}
	if c.ramp.State == Disabling {
		c.ramp = c.ramp.Step(c.current.MaxAbs(), c.nearZero)
		if c.ramp.State == Disabled {
			c.log.Debug("disabled")
			c.reset()
			return
		}
	}
	c.postUpdate()
}

func (c *Component) postUpdate() {
	was := c.clipped
	c.clipped = c.limits.Clip(c.table, c.current, c.applied, c.clipping)
	if c.clipped > 0 && was == 0 {
		c.log.Warn("forces clipped", zap.Int("actuators", c.clipped))
	}
	if c.notify != nil {
		c.notify.Update(c.fault, c.clipped > 0, "%s forces clipped on %d actuator(s)", c.name, c.clipped)
	}
}

func (c *Component) reset() {
	c.target.Zero()
	c.current.Zero()
	c.applied.Zero()
	clear(c.clipping)
	c.clipped = 0
}
