// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forces

import (
	"fmt"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/ilc"
	"github.com/Thermoquad/mirrorsupport/pkg/safety"
)

func testTable(t *testing.T) *actuator.Table {
	t.Helper()
	fas, hps, mons := actuator.GenerateLayout(actuator.DefaultLayoutOptions())
	table, err := actuator.NewTable(fas, hps, mons, 1.1, 2.5)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return table
}

// recorder keeps the conditions raised during the last cycle.
type recorder struct {
	faults    map[safety.FaultCode]string
	following map[int]bool
	hardpoint map[int]bool
}

func newRecorder() *recorder {
	return &recorder{
		faults:    map[safety.FaultCode]string{},
		following: map[int]bool{},
		hardpoint: map[int]bool{},
	}
}

func (r *recorder) Update(code safety.FaultCode, condition bool, format string, args ...any) {
	if condition {
		r.faults[code] = fmt.Sprintf(format, args...)
	}
}

func (r *recorder) ForceActuatorFollowingError(index int, _ int32, fault bool) {
	r.following[index] = fault
}

func (r *recorder) HardpointMeasuredForce(index int, fault bool) {
	r.hardpoint[index] = fault
}

func (r *recorder) reset() {
	clear(r.faults)
}

type fixedSupport float64

func (s fixedSupport) SupportPercentage() float64 { return float64(s) }

func newController(t *testing.T, opts ...Option) (*Controller, *recorder) {
	t.Helper()
	table := testTable(t)
	cfg := DefaultConfig()
	rec := newRecorder()
	c, err := NewController(table, cfg, DefaultTables(table, cfg.MirrorWeight), append([]Option{WithNotifier(rec)}, opts...)...)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c, rec
}

func cycle(c *Controller, n int) {
	for i := 0; i < n; i++ {
		c.UpdateAppliedForces()
		c.ProcessAppliedForces()
	}
}

// ============================================================================
// Component state
// ============================================================================

func TestRampTransitions(t *testing.T) {
	tests := []struct {
		name string
		got  Ramp
		want ComponentState
	}{
		{"enable from initialising", Ramp{State: Initialising}.Enable(), Enabled},
		{"enable from disabled", Ramp{State: Disabled}.Enable(), Enabled},
		{"enable while disabling", Ramp{State: Disabling, Remaining: 5}.Enable(), Enabled},
		{"disable with force left", Ramp{State: Enabled}.Disable(10, 0.5), Disabling},
		{"disable at zero", Ramp{State: Enabled}.Disable(0.1, 0.5), Disabled},
		{"disable when disabled", Ramp{State: Disabled}.Disable(10, 0.5), Disabled},
		{"step far from zero", Ramp{State: Disabling}.Step(3, 0.5), Disabling},
		{"step near zero", Ramp{State: Disabling}.Step(0.4, 0.5), Disabled},
		{"step enabled", Ramp{State: Enabled}.Step(0, 0.5), Enabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.State != tt.want {
				t.Errorf("State = %v, want %v", tt.got.State, tt.want)
			}
		})
	}

	for _, s := range []ComponentState{Initialising, Enabled, Disabling} {
		if !s.Active() {
			t.Errorf("%v.Active() = false, want true", s)
		}
	}
	if Disabled.Active() {
		t.Error("Disabled.Active() = true")
	}
}

func TestComponentRampToDisable(t *testing.T) {
	table := testTable(t)
	cfg := ComponentConfig{MaxRate: 10, Limits: uniformLimits(1000, -1000, 1000)}
	c := newComponent("Test", safety.StaticForceClipping, table, cfg, 0.5, nil, zap.NewNop())

	target := NewForces(table)
	for i := range target.Z {
		target.Z[i] = 100
	}
	for i := range target.X {
		target.X[i] = -35
	}
	c.Enable()
	c.SetTarget(target)
	for i := 0; i < 10; i++ {
		c.Update()
	}
	if c.Applied().Z[0] != 100 || c.Applied().X[0] != -35 {
		t.Fatalf("applied = %v/%v, want 100/-35", c.Applied().Z[0], c.Applied().X[0])
	}

	c.Disable()
	want := CyclesToZero(100, 10, 0.5)
	if want != 10 {
		t.Fatalf("CyclesToZero() = %d, want 10", want)
	}
	cycles := 0
	for c.State() == Disabling {
		if !c.IsActive() {
			t.Fatal("disabling component reported inactive")
		}
		c.Update()
		cycles++
		if cycles > 100 {
			t.Fatal("ramp never completed")
		}
	}
	if cycles != want {
		t.Errorf("ramp took %d cycles, want %d", cycles, want)
	}
	if c.State() != Disabled || c.Applied().MaxAbs() != 0 {
		t.Errorf("state %v applied %v after ramp", c.State(), c.Applied().MaxAbs())
	}

	// targets are ignored once disabled
	c.SetTarget(target)
	c.Update()
	if c.Preclipped().MaxAbs() != 0 {
		t.Error("disabled component moved")
	}
}

func TestComponentClipping(t *testing.T) {
	table := testTable(t)
	rec := newRecorder()
	cfg := ComponentConfig{MaxRate: 0, Limits: uniformLimits(50, -100, 100)}
	c := newComponent("Static", safety.StaticForceClipping, table, cfg, 0.5, rec, zap.NewNop())

	target := NewForces(table)
	target.Z[3] = 250
	target.Z[4] = -20
	var dual actuator.ForceActuator
	for _, fa := range table.ForceActuators {
		if fa.XIndex >= 0 {
			dual = fa
			break
		}
	}
	target.X[dual.XIndex] = -80
	c.Enable()
	c.SetTarget(target)
	c.Update()

	if got := c.Preclipped().Z[3]; got != 250 {
		t.Errorf("preclipped Z = %v, want 250", got)
	}
	if got := c.Applied().Z[3]; got != 100 {
		t.Errorf("applied Z = %v, want 100", got)
	}
	if got := c.Applied().Z[4]; got != -20 {
		t.Errorf("applied Z = %v, want -20", got)
	}
	if got := c.Applied().X[dual.XIndex]; got != -50 {
		t.Errorf("applied X = %v, want -50", got)
	}
	if !c.Clipping()[3].Has(AxisZ) || c.Clipping()[4].Any() || !c.Clipping()[dual.Index].Has(AxisX) {
		t.Errorf("clipping flags = %v %v %v", c.Clipping()[3], c.Clipping()[4], c.Clipping()[dual.Index])
	}
	if want := "Static forces clipped on 2 actuator(s)"; rec.faults[safety.StaticForceClipping] != want {
		t.Errorf("fault report = %q, want %q", rec.faults[safety.StaticForceClipping], want)
	}
}

// ============================================================================
// Geometry
// ============================================================================

func TestDistributionResultant(t *testing.T) {
	table := testTable(t)
	d := NewDistribution(table)
	out := NewForces(table)

	tests := []struct {
		force, moment mgl64.Vec3
	}{
		{mgl64.Vec3{0, 0, 1000}, mgl64.Vec3{}},
		{mgl64.Vec3{}, mgl64.Vec3{500, 0, 0}},
		{mgl64.Vec3{}, mgl64.Vec3{0, -700, 0}},
		{mgl64.Vec3{120, -80, 0}, mgl64.Vec3{0, 0, 300}},
		{mgl64.Vec3{10, 20, 30}, mgl64.Vec3{40, 50, 60}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.force, tt.moment), func(t *testing.T) {
			d.Distribute(tt.force, tt.moment, out)
			got := Resultant(table, out)
			if !got.Force().ApproxEqualThreshold(tt.force, 1e-6) || !got.Moment().ApproxEqualThreshold(tt.moment, 1e-6) {
				t.Errorf("Resultant() = %v %v, want %v %v", got.Force(), got.Moment(), tt.force, tt.moment)
			}
		})
	}
}

func TestOffsetCylinderConversion(t *testing.T) {
	c, _ := newController(t)
	offsets := NewForces(c.table)
	var px actuator.ForceActuator
	for _, fa := range c.table.ForceActuators {
		if fa.Orientation == actuator.PositiveX {
			px = fa
			break
		}
	}
	offsets.SetActuator(px, 100, 0, 500)
	offsets.Z[0] = 250
	if err := c.ApplyOffsetForces(offsets); err != nil {
		t.Fatal(err)
	}
	cycle(c, 60)

	primary, secondary := c.CylinderForces()
	if math.Abs(primary[px.Index]-400) > 1e-9 || math.Abs(secondary[px.SecondaryIndex]-100*math.Sqrt2) > 1e-9 {
		t.Errorf("cylinders = %v/%v, want 400/%v", primary[px.Index], secondary[px.SecondaryIndex], 100*math.Sqrt2)
	}
	if primary[0] != 250 {
		t.Errorf("single axis primary = %v, want 250", primary[0])
	}

	if err := c.ApplyOffsetForces(Forces{Z: make([]float64, 3)}); err == nil {
		t.Error("ApplyOffsetForces accepted a short table")
	}
}

// ============================================================================
// Checks
// ============================================================================

func TestElevationScaledBySupport(t *testing.T) {
	c, rec := newController(t, WithSupport(fixedSupport(50)))
	c.UpdateElevation(90)
	c.ApplyElevationForces()
	cycle(c, 100)

	rec.reset()
	cycle(c, 1)
	if got, want := c.PreclippedMirrorForces().Fz, c.cfg.MirrorWeight/2; math.Abs(got-want) > 1e-6 {
		t.Errorf("Fz = %v, want %v", got, want)
	}
	if len(rec.faults) != 0 {
		t.Errorf("faults = %v, want none", rec.faults)
	}
}

func TestComputedComponentsFollowInputs(t *testing.T) {
	table := testTable(t)
	cfg := DefaultConfig()
	tb := DefaultTables(table, cfg.MirrorWeight)
	tb.Acceleration = newLinearTable(table, 3)
	for i := range tb.Azimuth.Sin.Z {
		tb.Azimuth.Sin.Z[i] = 1
		tb.Thermal.Terms[1].Z[i] = 2
		tb.Velocity.Terms[2].Z[i] = 3
		tb.Acceleration.Terms[1].Z[i] = 4
	}

	tests := []struct {
		name      string
		component string
		feed      func(c *Controller)
		apply     func(c *Controller)
		want      float64
	}{
		{"azimuth", "Azimuth",
			func(c *Controller) { c.UpdateAzimuth(30) },
			(*Controller).ApplyAzimuthForces, 0.5},
		{"thermal", "Thermal",
			func(c *Controller) { c.UpdateThermal([4]float64{5, 0.5, 0, 0}) },
			(*Controller).ApplyThermalForces, 1},
		{"velocity", "Velocity",
			func(c *Controller) { c.UpdateVelocity(mgl64.Vec3{0, 0, 0.25}) },
			(*Controller).ApplyVelocityForces, 0.75},
		{"acceleration", "Acceleration",
			func(c *Controller) { c.UpdateAcceleration(mgl64.Vec3{0, 2, 0}) },
			(*Controller).ApplyAccelerationForces, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewController(table, cfg, tb, WithNotifier(newRecorder()))
			if err != nil {
				t.Fatalf("NewController() error = %v", err)
			}
			tt.feed(c)
			cycle(c, 1)
			comp := c.Component(tt.component)
			if got := comp.Target().Z[0]; got != 0 {
				t.Errorf("%s target before apply = %v, want 0", tt.component, got)
			}

			tt.apply(c)
			cycle(c, 1)
			if got := comp.Target().Z[0]; math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("%s target = %v, want %v", tt.component, got, tt.want)
			}
			if comp.State() != Enabled {
				t.Errorf("%s state = %v, want Enabled", tt.component, comp.State())
			}
		})
	}
}

func TestMirrorWeightFault(t *testing.T) {
	c, rec := newController(t)
	c.UpdateElevation(90)
	cycle(c, 1)
	if _, ok := rec.faults[safety.MirrorWeight]; !ok {
		t.Errorf("no MirrorWeight fault with full support and no forces, faults = %v", rec.faults)
	}
}

func TestNeighborChecks(t *testing.T) {
	c, rec := newController(t)
	z := make([]float64, c.table.Count())
	z[0] = 700
	if err := c.ApplyActiveOpticForces(z); err != nil {
		t.Fatal(err)
	}
	cycle(c, 50)

	want := "Force actuator 101 deviates"
	if got := rec.faults[safety.NearNeighbor]; len(got) < len(want) || got[:len(want)] != want {
		t.Errorf("near neighbor report = %q", got)
	}
	if _, ok := rec.faults[safety.FarNeighbor]; !ok {
		t.Error("no FarNeighbor fault")
	}

	c.ZeroActiveOpticForces()
	cycle(c, 50)
	rec.reset()
	cycle(c, 1)
	if len(rec.faults) != 0 {
		t.Errorf("faults after zeroing = %v", rec.faults)
	}
}

func TestMomentChecks(t *testing.T) {
	t.Run("over limit", func(t *testing.T) {
		c, rec := newController(t)
		c.ApplyOffsetForcesByMirrorForce(mgl64.Vec3{}, mgl64.Vec3{25000, 0, 0})
		cycle(c, 60)
		if _, ok := rec.faults[safety.MirrorMoments]; !ok {
			t.Errorf("no MirrorMoments fault, Mx = %v", c.PreclippedMirrorForces().Mx)
		}
	})

	t.Run("warning band counted", func(t *testing.T) {
		c, rec := newController(t)
		c.ApplyOffsetForcesByMirrorForce(mgl64.Vec3{}, mgl64.Vec3{17000, 0, 0})
		cycle(c, 30)
		if _, ok := rec.faults[safety.MirrorMoments]; ok {
			t.Fatalf("MirrorMoments fault after %d warning cycles", c.momentWarnings)
		}
		cycle(c, 60)
		if _, ok := rec.faults[safety.MirrorMoments]; !ok {
			t.Errorf("no MirrorMoments fault after %d warning cycles", c.momentWarnings)
		}
	})
}

// ============================================================================
// Tolerances
// ============================================================================

func TestFollowingError(t *testing.T) {
	c, rec := newController(t)
	z := make([]float64, c.table.Count())
	for i := range z {
		z[i] = 150
	}
	_ = c.ApplyActiveOpticForces(z)
	cycle(c, 20)

	primary, secondary := c.CylinderForces()
	measured := make([]ilc.ForceActuatorState, c.table.Count())
	for _, fa := range c.table.ForceActuators {
		measured[fa.Index].Primary = float32(primary[fa.Index])
		if fa.SecondaryIndex >= 0 {
			measured[fa.Index].Secondary = float32(secondary[fa.SecondaryIndex])
		}
	}
	c.UpdateMeasured(measured, make([]float64, 6))
	if !c.FARaiseFollowingErrorInTolerance() {
		t.Error("FARaiseFollowingErrorInTolerance() = false with exact tracking")
	}

	measured[7].Primary += 300
	c.UpdateMeasured(measured, make([]float64, 6))
	if c.FARaiseFollowingErrorInTolerance() {
		t.Error("FARaiseFollowingErrorInTolerance() = true with 300 N error")
	}
	if rec.following[7] {
		t.Error("300 N counted as a following error fault")
	}

	measured[7].Primary += 200
	c.UpdateMeasured(measured, make([]float64, 6))
	if !rec.following[7] || rec.following[6] {
		t.Errorf("following error samples = %v/%v, want true/false", rec.following[7], rec.following[6])
	}
}

func TestHardpointTolerance(t *testing.T) {
	c, rec := newController(t)
	tests := []struct {
		name   string
		forces []float64
		raise  bool
		want   bool
	}{
		{"raise in band", []float64{0, 100, -1400, 1400, 0, 0}, true, true},
		{"raise out of band", []float64{0, 100, -1600, 0, 0, 0}, true, false},
		{"lower band is wider", []float64{0, 100, -1600, 0, 0, 0}, false, true},
		{"lower out of band", []float64{2600, 0, 0, 0, 0, 0}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.UpdateMeasured(nil, tt.forces)
			if got := c.HPRaiseLowerForcesInTolerance(tt.raise); got != tt.want {
				t.Errorf("HPRaiseLowerForcesInTolerance(%v) = %v, want %v", tt.raise, got, tt.want)
			}
		})
	}

	c.UpdateMeasured(nil, []float64{0, 0, 5000, 0, 0, 0})
	if !rec.hardpoint[2] || rec.hardpoint[1] {
		t.Errorf("hardpoint force samples = %v", rec.hardpoint)
	}
}

func TestBalanceForces(t *testing.T) {
	c, _ := newController(t)
	c.UpdateMeasured(nil, []float64{100, 100, 100, 100, 100, 100})
	c.ApplyBalanceForces()
	cycle(c, 50)

	m := Resultant(c.table, c.Component("Balance").Applied())
	if m.Fz <= 0 {
		t.Errorf("balance Fz = %v, want positive", m.Fz)
	}
	if m.Moment().Len() > 1e-6 {
		t.Errorf("balance moment = %v, want 0", m.Moment())
	}

	c.ZeroBalanceForces()
	cycle(c, 200)
	if c.Component("Balance").State() != Disabled {
		t.Errorf("balance state = %v after zeroing", c.Component("Balance").State())
	}
}

func TestPID(t *testing.T) {
	pid := NewPID(PIDConfig{Kp: 1, Ki: 1, Kd: 0, MaxOutput: 5, IntegralLimit: 2})
	if got := pid.Update(1, 1); got != 2 {
		t.Errorf("Update() = %v, want 2", got)
	}
	for i := 0; i < 5; i++ {
		pid.Update(1, 1)
	}
	if pid.Integral() != 2 {
		t.Errorf("Integral() = %v, want clamped 2", pid.Integral())
	}
	if got := pid.Update(10, 1); got != 5 {
		t.Errorf("Update() = %v, want saturated 5", got)
	}
	pid.Reset()
	if pid.Integral() != 0 {
		t.Error("Reset() kept the integral")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	cfg := DefaultConfig()
	cfg.Elevation.MaxRate = 0
	cfg.Static.Limits.Z = AxisLimit{Low: 10, High: -10}
	cfg.MirrorWeight = -1
	if _, err := NewController(testTable(t), cfg, Tables{}); err == nil {
		t.Error("NewController() accepted an invalid config")
	}
}

func TestTables(t *testing.T) {
	table := testTable(t)
	tb := DefaultTables(table, 1000)
	if err := tb.Validate(table); err != nil {
		t.Fatalf("DefaultTables().Validate() = %v", err)
	}
	if err := (Tables{}).Validate(table); err == nil {
		t.Error("empty tables validated")
	}

	out := NewForces(table)
	tb.Elevation.Evaluate(90, out)
	if sum := Resultant(table, out).Fz; math.Abs(sum-1000) > 1e-9 {
		t.Errorf("elevation Fz at zenith = %v, want 1000", sum)
	}
	tb.Elevation.Evaluate(0, out)
	if m := Resultant(table, out); math.Abs(m.Fz) > 1e-9 || math.Abs(m.Fy-1000) > 1e-9 {
		t.Errorf("elevation at horizon = %+v, want Fy 1000", m)
	}

	// α about Z loads only the lateral cylinders, as a pure moment
	tb.Acceleration.Evaluate([]float64{0, 0, 2}, out)
	m := Resultant(table, out)
	if math.Abs(m.Fz) > 1e-9 || m.Mz <= 0 {
		t.Errorf("acceleration about Z = %+v", m)
	}
}
