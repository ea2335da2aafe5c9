// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package forces composes the per-actuator force demand from independent
// force components and checks the result against the mirror safety limits.
package forces

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/ilc"
	"github.com/Thermoquad/mirrorsupport/pkg/safety"
)

// SupportSource reports the share of the mirror weight carried by the force
// actuators, in percent.
type SupportSource interface {
	SupportPercentage() float64
}

type fullSupport struct{}

func (fullSupport) SupportPercentage() float64 { return 100 }

type nopNotifier struct{}

func (nopNotifier) Update(safety.FaultCode, bool, string, ...any) {}
func (nopNotifier) ForceActuatorFollowingError(int, int32, bool) {}
func (nopNotifier) HardpointMeasuredForce(int, bool) {}

// Controller owns the force components and the summation stage. It is used
// from the control loop goroutine only.
type Controller struct {
	cfg     Config
	table   *actuator.Table
	tables  Tables
	dist    *Distribution
	support SupportSource
	notify  Notifier
	log     *zap.Logger

	static       *Component
	elevation    *Component
	azimuth      *Component
	thermal      *Component
	velocity     *Component
	acceleration *Component
	activeOptic  *Component
	offset       *Component
	balance      *balance
	applied      *Component
	components   []*Component

	elevationAngle  float64
	azimuthAngle    float64
	temperatures    [4]float64
	angularVelocity mgl64.Vec3
	angularAccel    mgl64.Vec3
	measured        []ilc.ForceActuatorState
	hardpointForces []float64

	scratch        Forces
	preclipped     MirrorForces
	appliedMirror  MirrorForces
	momentWarnings int
	primary        []float64
	secondary      []float64
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithNotifier routes fault conditions to n.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notify = n }
}

// WithSupport scales elevation forces by the support percentage of s.
func WithSupport(s SupportSource) Option {
	return func(c *Controller) { c.support = s }
}

// NewController builds every component for table t.
func NewController(t *actuator.Table, cfg Config, tables Tables, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("forces config: %w", err)
	}
	if err := tables.Validate(t); err != nil {
		return nil, fmt.Errorf("force tables: %w", err)
	}
	c := &Controller{
		cfg:       cfg,
		table:     t,
		tables:    tables,
		dist:      NewDistribution(t),
		support:   fullSupport{},
		notify:    nopNotifier{},
		log:       zap.NewNop(),
		measured:  make([]ilc.ForceActuatorState, t.Count()),
		scratch:   NewForces(t),
		primary:   make([]float64, t.Count()),
		secondary: make([]float64, t.SecondaryCount()),
	}
	for _, opt := range opts {
		opt(c)
	}

	nc := func(name string, code safety.FaultCode, cc ComponentConfig) *Component {
		comp := newComponent(name, code, t, cc, cfg.NearZero, c.notify, c.log)
		c.components = append(c.components, comp)
		return comp
	}
	c.static = nc("Static", safety.StaticForceClipping, cfg.Static)
	c.elevation = nc("Elevation", safety.ElevationForceClipping, cfg.Elevation)
	c.azimuth = nc("Azimuth", safety.AzimuthForceClipping, cfg.Azimuth)
	c.thermal = nc("Thermal", safety.ThermalForceClipping, cfg.Thermal)
	c.velocity = nc("Velocity", safety.VelocityForceClipping, cfg.Velocity)
	c.acceleration = nc("Acceleration", safety.AccelerationForceClipping, cfg.Acceleration)
	c.activeOptic = nc("ActiveOptic", safety.ActiveOpticForceClipping, cfg.ActiveOptic)
	c.offset = nc("Offset", safety.OffsetForceClipping, cfg.Offset)
	c.balance = newBalance(nc("Balance", safety.BalanceForceClipping, cfg.Balance), t, c.dist, cfg.BalancePID, cfg.CycleTime)

	// the summation stage jumps straight to the summed target
	c.applied = newComponent("Applied", safety.AppliedForceClipping, t,
		ComponentConfig{Limits: cfg.Applied.Limits}, cfg.NearZero, c.notify, c.log)
	c.applied.Enable()
	return c, nil
}

// Components returns every force component in summation order.
func (c *Controller) Components() []*Component { return c.components }

// Applied returns the summation stage.
func (c *Controller) Applied() *Component { return c.applied }

// Component returns the component called name, or nil.
func (c *Controller) Component(name string) *Component {
	for _, comp := range c.components {
		if comp.Name() == name {
			return comp
		}
	}
	if name == c.applied.Name() {
		return c.applied
	}
	return nil
}

// ============================================================================
// Host commands
// ============================================================================

// ApplyStaticForces enables the static table.
func (c *Controller) ApplyStaticForces() {
	c.static.Enable()
	c.static.SetTarget(c.tables.Static)
}

// ZeroStaticForces ramps the static forces out.
func (c *Controller) ZeroStaticForces() { c.static.Disable() }

// ApplyElevationForces enables the elevation component.
func (c *Controller) ApplyElevationForces() { c.elevation.Enable() }

// ZeroElevationForces ramps the elevation forces out.
func (c *Controller) ZeroElevationForces() { c.elevation.Disable() }

// ApplyAzimuthForces enables the azimuth component.
func (c *Controller) ApplyAzimuthForces() { c.azimuth.Enable() }

// ZeroAzimuthForces ramps the azimuth forces out.
func (c *Controller) ZeroAzimuthForces() { c.azimuth.Disable() }

// ApplyThermalForces enables the thermal component.
func (c *Controller) ApplyThermalForces() { c.thermal.Enable() }

// ZeroThermalForces ramps the thermal forces out.
func (c *Controller) ZeroThermalForces() { c.thermal.Disable() }

// ApplyVelocityForces enables the velocity component.
func (c *Controller) ApplyVelocityForces() { c.velocity.Enable() }

// ZeroVelocityForces ramps the velocity forces out.
func (c *Controller) ZeroVelocityForces() { c.velocity.Disable() }

// ApplyAccelerationForces enables the acceleration component.
func (c *Controller) ApplyAccelerationForces() { c.acceleration.Enable() }

// ZeroAccelerationForces ramps the acceleration forces out.
func (c *Controller) ZeroAccelerationForces() { c.acceleration.Disable() }

// ApplyBalanceForces enables hardpoint load balancing.
func (c *Controller) ApplyBalanceForces() {
	if c.balance.State() != Enabled {
		c.balance.resetPIDs()
	}
	c.balance.Enable()
}

// ZeroBalanceForces ramps the balance forces out.
func (c *Controller) ZeroBalanceForces() { c.balance.Disable() }

// ApplyActiveOpticForces sets the active optics Z forces, one per actuator.
func (c *Controller) ApplyActiveOpticForces(z []float64) error {
	if len(z) != c.table.Count() {
		return fmt.Errorf("active optic forces sized %d, table has %d", len(z), c.table.Count())
	}
	c.activeOptic.Enable()
	c.scratch.Zero()
	copy(c.scratch.Z, z)
	c.activeOptic.SetTarget(c.scratch)
	return nil
}

// ZeroActiveOpticForces ramps the active optics forces out.
func (c *Controller) ZeroActiveOpticForces() { c.activeOptic.Disable() }

// ApplyOffsetForces sets per-actuator offset forces.
func (c *Controller) ApplyOffsetForces(f Forces) error {
	if len(f.X) != c.table.XCount() || len(f.Y) != c.table.YCount() || len(f.Z) != c.table.Count() {
		return fmt.Errorf("offset forces sized %d/%d/%d, table has %d/%d/%d",
			len(f.X), len(f.Y), len(f.Z), c.table.XCount(), c.table.YCount(), c.table.Count())
	}
	c.offset.Enable()
	c.offset.SetTarget(f)
	return nil
}

// ApplyOffsetForcesByMirrorForce distributes a mirror force and moment as
// offset forces.
func (c *Controller) ApplyOffsetForcesByMirrorForce(force, moment mgl64.Vec3) {
	c.dist.Distribute(force, moment, c.scratch)
	c.offset.Enable()
	c.offset.SetTarget(c.scratch)
}

// ZeroOffsetForces ramps the offset forces out.
func (c *Controller) ZeroOffsetForces() { c.offset.Disable() }

// ============================================================================
// Inputs
// ============================================================================

// UpdateElevation sets the elevation angle in degrees, 90 at zenith.
func (c *Controller) UpdateElevation(degrees float64) { c.elevationAngle = degrees }

// UpdateAzimuth sets the azimuth angle in degrees.
func (c *Controller) UpdateAzimuth(degrees float64) { c.azimuthAngle = degrees }

// UpdateThermal sets the uniform, X, Y and radial temperature terms.
func (c *Controller) UpdateThermal(t [4]float64) { c.temperatures = t }

// UpdateVelocity sets the mirror angular velocity, rad/s.
func (c *Controller) UpdateVelocity(w mgl64.Vec3) { c.angularVelocity = w }

// UpdateAcceleration sets the mirror angular acceleration, rad/s².
func (c *Controller) UpdateAcceleration(a mgl64.Vec3) { c.angularAccel = a }

// UpdateMeasured takes the measured cylinder and hardpoint forces of the
// last ILC cycle and samples the following error and hardpoint force windows.
func (c *Controller) UpdateMeasured(fas []ilc.ForceActuatorState, hardpointForces []float64) {
	copy(c.measured, fas)
	c.hardpointForces = append(c.hardpointForces[:0], hardpointForces...)

	for _, fa := range c.table.ForceActuators {
		c.notify.ForceActuatorFollowingError(fa.Index, fa.ID, c.followingError(fa) > c.cfg.FollowingErrorFault)
	}
	for i, f := range c.hardpointForces {
		c.notify.HardpointMeasuredForce(i, math.Abs(f) > c.cfg.HardpointFaultForce)
	}
}

func (c *Controller) followingError(fa actuator.ForceActuator) float64 {
	m := c.measured[fa.Index]
	e := math.Abs(float64(m.Primary) - c.primary[fa.Index])
	if fa.SecondaryIndex >= 0 {
		e = math.Max(e, math.Abs(float64(m.Secondary)-c.secondary[fa.SecondaryIndex]))
	}
	return e
}

// ============================================================================
// Cycle
// ============================================================================

// UpdateAppliedForces recomputes the targets of the computed components and
// steps every component one cycle.
func (c *Controller) UpdateAppliedForces() {
	if c.elevation.State() == Enabled {
		c.tables.Elevation.Evaluate(c.elevationAngle, c.scratch)
		c.scratch.Scale(c.support.SupportPercentage() / 100)
		c.elevation.SetTarget(c.scratch)
	}
	if c.azimuth.State() == Enabled {
		c.tables.Azimuth.Evaluate(c.azimuthAngle, c.scratch)
		c.azimuth.SetTarget(c.scratch)
	}
	if c.thermal.State() == Enabled {
		c.tables.Thermal.Evaluate(c.temperatures[:], c.scratch)
		c.thermal.SetTarget(c.scratch)
	}
	if c.velocity.State() == Enabled {
		w := c.angularVelocity
		c.tables.Velocity.Evaluate(w[:], c.scratch)
		c.velocity.SetTarget(c.scratch)
	}
	if c.acceleration.State() == Enabled {
		a := c.angularAccel
		c.tables.Acceleration.Evaluate(a[:], c.scratch)
		c.acceleration.SetTarget(c.scratch)
	}
	c.balance.update(c.hardpointForces)

	for _, comp := range c.components {
		comp.Update()
	}
}

// ProcessAppliedForces sums the active components, clips the sum, converts
// it to cylinder setpoints and runs the mirror safety checks.
func (c *Controller) ProcessAppliedForces() {
	sum := c.applied.target
	sum.Zero()
	for _, comp := range c.components {
		if comp.IsActive() {
			sum.Add(comp.Applied())
		}
	}
	c.applied.Update()

	applied := c.applied.Applied()
	for _, fa := range c.table.ForceActuators {
		x, y, z := applied.Actuator(fa)
		p, s := actuator.MirrorToCylinder(fa.Orientation, x, y, z)
		c.primary[fa.Index] = p
		if fa.SecondaryIndex >= 0 {
			c.secondary[fa.SecondaryIndex] = s
		}
	}

	c.preclipped = Resultant(c.table, c.applied.Preclipped())
	c.appliedMirror = Resultant(c.table, applied)

	c.checkMoments()
	c.checkNeighbors(c.table.Near, c.cfg.NearNeighbor, safety.NearNeighbor, "near")
	c.checkNeighbors(c.table.Far, c.cfg.FarNeighbor, safety.FarNeighbor, "far")
	c.checkWeight()
}

// CylinderForces returns the primary and secondary cylinder setpoints.
func (c *Controller) CylinderForces() (primary, secondary []float64) {
	return c.primary, c.secondary
}

// PreclippedMirrorForces returns the resultant of the summed forces before clipping.
func (c *Controller) PreclippedMirrorForces() MirrorForces { return c.preclipped }

// AppliedMirrorForces returns the resultant of the applied forces.
func (c *Controller) AppliedMirrorForces() MirrorForces { return c.appliedMirror }

// ============================================================================
// Tolerances
// ============================================================================

// FARaiseFollowingErrorInTolerance reports whether every force actuator
// follows its setpoint closely enough for the raise to progress.
func (c *Controller) FARaiseFollowingErrorInTolerance() bool {
	for _, fa := range c.table.ForceActuators {
		if c.followingError(fa) > c.cfg.RaiseFollowingError {
			return false
		}
	}
	return true
}

// HPRaiseLowerForcesInTolerance reports whether every hardpoint force is
// within the raise or the lower band.
func (c *Controller) HPRaiseLowerForcesInTolerance(raise bool) bool {
	band := c.cfg.LowerHardpointForce
	if raise {
		band = c.cfg.RaiseHardpointForce
	}
	for _, f := range c.hardpointForces {
		if f < band.Low || f > band.High {
			return false
		}
	}
	return true
}
