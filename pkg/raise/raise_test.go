// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package raise

import (
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeForces struct {
	calls      map[string]int
	faInTol    bool
	hpInTol    bool
	lastLowerQ bool
}

func newFakeForces() *fakeForces {
	return &fakeForces{calls: map[string]int{}, faInTol: true, hpInTol: true}
}

func (f *fakeForces) ApplyStaticForces() { f.calls["ApplyStatic"]++ }
func (f *fakeForces) ZeroStaticForces() { f.calls["ZeroStatic"]++ }
func (f *fakeForces) ApplyElevationForces() { f.calls["ApplyElevation"]++ }
func (f *fakeForces) ZeroElevationForces() { f.calls["ZeroElevation"]++ }
func (f *fakeForces) ApplyAzimuthForces() { f.calls["ApplyAzimuth"]++ }
func (f *fakeForces) ZeroAzimuthForces() { f.calls["ZeroAzimuth"]++ }
func (f *fakeForces) ApplyThermalForces() { f.calls["ApplyThermal"]++ }
func (f *fakeForces) ZeroThermalForces() { f.calls["ZeroThermal"]++ }
func (f *fakeForces) ZeroVelocityForces() { f.calls["ZeroVelocity"]++ }
func (f *fakeForces) ZeroAccelerationForces() { f.calls["ZeroAcceleration"]++ }
func (f *fakeForces) ApplyBalanceForces() { f.calls["ApplyBalance"]++ }
func (f *fakeForces) ZeroBalanceForces() { f.calls["ZeroBalance"]++ }
func (f *fakeForces) ZeroActiveOpticForces() { f.calls["ZeroActiveOptic"]++ }
func (f *fakeForces) ZeroOffsetForces() { f.calls["ZeroOffset"]++ }
func (f *fakeForces) FARaiseFollowingErrorInTolerance() bool { return f.faInTol }
func (f *fakeForces) HPRaiseLowerForcesInTolerance(raise bool) bool {
	f.lastLowerQ = !raise
	return f.hpInTol
}

type fakePositioner struct {
	enable, disable, moveRef int
	complete                 bool
}

func (p *fakePositioner) EnableChaseAll() { p.enable++ }
func (p *fakePositioner) DisableChaseAll() { p.disable++ }
func (p *fakePositioner) MoveToReferencePosition() { p.moveRef++ }
func (p *fakePositioner) MotionComplete() bool { return p.complete }

type fakeHardpoints struct {
	forces []float64
}

func (h *fakeHardpoints) HardpointForces() []float64 { return h.forces }

type fakeNotifier struct {
	raise, lower int
}

func (n *fakeNotifier) RaiseTimeout(expired bool) {
	if expired {
		n.raise++
	}
}

func (n *fakeNotifier) LowerTimeout(expired bool) {
	if expired {
		n.lower++
	}
}

type fakeClock struct {
	now float64
}

func (c *fakeClock) Now() float64 { return c.now }
func (c *fakeClock) Advance(sec float64) { c.now += sec }

type fixture struct {
	c      *Controller
	forces *fakeForces
	pos    *fakePositioner
	hp     *fakeHardpoints
	notify *fakeNotifier
	clock  *fakeClock
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	fx := &fixture{
		forces: newFakeForces(),
		pos:    &fakePositioner{complete: true},
		hp:     &fakeHardpoints{forces: make([]float64, 6)},
		notify: &fakeNotifier{},
		clock:  &fakeClock{now: 1000},
	}
	info := NewInfo(cfg.IncrementPercent, cfg.DecrementPercent)
	opts = append([]Option{WithClock(fx.clock.Now)}, opts...)
	c, err := New(cfg, info, fx.forces, fx.pos, fx.hp, fx.notify, 6, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	fx.c = c
	return fx
}

func quickConfig() Config {
	cfg := DefaultConfig()
	cfg.AirPressureWait = 0
	cfg.InRange = InRangeConfig{Band: 50, Count: 3, MaxSamples: 10}
	return cfg
}

// ============================================================================
// Raise
// ============================================================================

func TestNominalRaise(t *testing.T) {
	Convey("Given a controller raising with forces in tolerance", t, func() {
		fx := newFixture(t, quickConfig())
		fx.c.Start(false)

		So(fx.c.Info().SupportPercentage(), ShouldEqual, 0)
		So(fx.pos.enable, ShouldEqual, 1)
		So(fx.forces.calls["ApplyElevation"], ShouldEqual, 1)
		So(fx.c.Progress().Raising, ShouldBeTrue)

		Convey("Support grows monotonically and fills after 100 cycles", func() {
			last := 0.0
			for i := 0; i < 99; i++ {
				fx.c.RunLoop()
				So(fx.c.Info().SupportPercentage(), ShouldBeGreaterThan, last)
				last = fx.c.Info().SupportPercentage()
			}
			So(fx.c.Info().Filled(), ShouldBeFalse)
			So(fx.pos.disable, ShouldEqual, 0)

			fx.c.RunLoop()
			So(fx.c.Info().Filled(), ShouldBeTrue)
			So(fx.pos.disable, ShouldEqual, 1)
			So(fx.pos.moveRef, ShouldEqual, 1)
			So(fx.forces.calls["ApplyStatic"], ShouldEqual, 1)

			Convey("Filled cycles do not repeat the hand-over", func() {
				for i := 0; i < 5; i++ {
					fx.c.RunLoop()
				}
				So(fx.pos.disable, ShouldEqual, 1)
				So(fx.pos.moveRef, ShouldEqual, 1)
				So(fx.c.Info().SupportPercentage(), ShouldEqual, 100)
			})

			Convey("Completion waits for the hardpoints to settle", func() {
				So(fx.c.CheckComplete(), ShouldBeFalse)
				fx.c.RunLoop()
				fx.c.RunLoop()
				So(fx.c.CheckComplete(), ShouldBeTrue)

				fx.c.Complete()
				So(fx.forces.calls["ApplyBalance"], ShouldEqual, 1)
				So(fx.c.Progress().Raising, ShouldBeFalse)
				So(math.IsNaN(fx.c.Progress().Remaining), ShouldBeTrue)
			})

			Convey("Completion waits for hardpoint motion", func() {
				fx.pos.complete = false
				for i := 0; i < 5; i++ {
					fx.c.RunLoop()
				}
				So(fx.c.CheckComplete(), ShouldBeFalse)
				fx.pos.complete = true
				So(fx.c.CheckComplete(), ShouldBeTrue)
			})
		})
	})
}

func TestBypassMoveToReference(t *testing.T) {
	Convey("Given a raise that bypasses the reference move", t, func() {
		fx := newFixture(t, quickConfig())
		fx.c.Start(true)
		for i := 0; i < 100; i++ {
			fx.c.RunLoop()
		}

		Convey("Chase stops but the hardpoints are not moved", func() {
			So(fx.c.Info().Filled(), ShouldBeTrue)
			So(fx.pos.disable, ShouldEqual, 1)
			So(fx.pos.moveRef, ShouldEqual, 0)
		})
	})
}

func TestRaiseStallsOutOfTolerance(t *testing.T) {
	Convey("Given a raise at 10%", t, func() {
		fx := newFixture(t, quickConfig())
		fx.c.Start(false)
		for i := 0; i < 10; i++ {
			fx.c.RunLoop()
		}
		So(fx.c.Info().SupportPercentage(), ShouldEqual, 10)

		Convey("A following error out of tolerance holds the support", func() {
			fx.forces.faInTol = false
			for i := 0; i < 5; i++ {
				fx.c.RunLoop()
			}
			So(fx.c.Info().SupportPercentage(), ShouldEqual, 10)
			So(fx.c.Progress().Stalled, ShouldBeTrue)

			fx.forces.faInTol = true
			fx.c.RunLoop()
			So(fx.c.Info().SupportPercentage(), ShouldEqual, 11)
			So(fx.c.Progress().Stalled, ShouldBeFalse)
		})

		Convey("A hardpoint force out of tolerance holds the support", func() {
			fx.forces.hpInTol = false
			fx.c.RunLoop()
			So(fx.c.Info().SupportPercentage(), ShouldEqual, 10)
		})
	})
}

func TestAirPressureWait(t *testing.T) {
	Convey("Given a raise that waits two seconds for air pressure", t, func() {
		cfg := quickConfig()
		cfg.AirPressureWait = 2 * time.Second
		fx := newFixture(t, cfg)
		fx.c.Start(false)

		Convey("Support does not grow until the wait passes", func() {
			fx.c.RunLoop()
			So(fx.c.Progress().WaitingAir, ShouldBeTrue)
			So(fx.c.Info().SupportPercentage(), ShouldEqual, 0)

			fx.clock.Advance(2)
			fx.c.RunLoop()
			So(fx.c.Progress().WaitingAir, ShouldBeFalse)
			So(fx.c.Info().SupportPercentage(), ShouldEqual, 1)
		})
	})
}

func TestPauseResume(t *testing.T) {
	Convey("Given a raise with a 300 s budget", t, func() {
		fx := newFixture(t, quickConfig())
		fx.c.Start(false)
		fx.clock.Advance(100)
		fx.c.RunLoop()

		Convey("Pause freezes the support and the budget", func() {
			fx.c.Pause()
			So(fx.c.Progress().Paused, ShouldBeTrue)
			So(fx.c.Progress().Remaining, ShouldEqual, 200)

			fx.clock.Advance(1000)
			fx.c.RunLoop()
			So(fx.c.Info().SupportPercentage(), ShouldEqual, 1)
			So(fx.c.CheckTimeout(), ShouldBeFalse)

			Convey("Resume restarts the clock with the remaining budget", func() {
				fx.c.Resume()
				So(fx.c.Progress().Remaining, ShouldEqual, 200)
				fx.clock.Advance(199)
				So(fx.c.CheckTimeout(), ShouldBeFalse)
				fx.clock.Advance(2)
				So(fx.c.CheckTimeout(), ShouldBeTrue)

				fx.c.Timeout()
				So(fx.notify.raise, ShouldEqual, 1)
			})
		})

		Convey("A second pause is ignored", func() {
			fx.c.Pause()
			fx.clock.Advance(50)
			fx.c.Pause()
			So(fx.c.Progress().Remaining, ShouldEqual, 200)
		})
	})
}

func TestCompleteWithTimedOutHardpoint(t *testing.T) {
	Convey("Given a filled raise whose hardpoint forces never settle", t, func() {
		fx := newFixture(t, quickConfig())
		fx.c.Start(false)
		for i := 0; i < 100; i++ {
			fx.c.RunLoop()
		}
		for i := 0; i < 10; i++ {
			// Swing the first leg by more than the band every sample.
			fx.hp.forces[0] = float64(i%2) * 500
			fx.c.RunLoop()
		}

		Convey("The raise completes without balance forces", func() {
			So(fx.c.CheckComplete(), ShouldBeTrue)
			fx.c.Complete()
			So(fx.forces.calls["ApplyBalance"], ShouldEqual, 0)
			So(fx.forces.calls["ApplyThermal"], ShouldEqual, 1)
			So(fx.c.Info().Filled(), ShouldBeTrue)
		})
	})
}

// ============================================================================
// Lower
// ============================================================================

func TestLowering(t *testing.T) {
	Convey("Given a fully raised mirror", t, func() {
		fx := newFixture(t, quickConfig())
		fx.c.Info().Fill()
		fx.c.StartLowering()
		So(fx.c.Progress().Lowering, ShouldBeTrue)
		So(fx.pos.enable, ShouldEqual, 1)

		Convey("Support falls to zero over 100 cycles", func() {
			last := 100.0
			for i := 0; i < 100; i++ {
				So(fx.c.CheckLowerComplete(), ShouldBeFalse)
				fx.c.RunLowerLoop()
				So(fx.c.Info().SupportPercentage(), ShouldBeLessThan, last)
				last = fx.c.Info().SupportPercentage()
			}
			So(fx.c.CheckLowerComplete(), ShouldBeTrue)
			So(fx.forces.lastLowerQ, ShouldBeTrue)
			So(fx.forces.calls["ZeroStatic"], ShouldEqual, 1)

			fx.c.CompleteLower()
			So(fx.c.Progress().Lowering, ShouldBeFalse)
			So(fx.pos.disable, ShouldEqual, 1)
			So(fx.forces.calls["ZeroElevation"], ShouldEqual, 1)
		})

		Convey("Hardpoint forces out of tolerance hold the lowering", func() {
			fx.forces.hpInTol = false
			fx.c.RunLowerLoop()
			So(fx.c.Info().SupportPercentage(), ShouldEqual, 100)
			So(fx.c.Progress().Stalled, ShouldBeTrue)
		})

		Convey("The lower timeout fires after its budget", func() {
			fx.clock.Advance(301)
			So(fx.c.CheckLowerTimeout(), ShouldBeTrue)
			So(fx.c.CheckTimeout(), ShouldBeFalse)
			fx.c.LowerTimeout()
			So(fx.notify.lower, ShouldEqual, 1)
		})
	})
}

func TestAbortRaise(t *testing.T) {
	Convey("Given a raise at 40%", t, func() {
		fx := newFixture(t, quickConfig())
		fx.c.Start(false)
		for i := 0; i < 40; i++ {
			fx.c.RunLoop()
		}

		Convey("Abort lowers from where the raise stopped", func() {
			fx.c.AbortRaise()
			So(fx.c.Progress().Raising, ShouldBeFalse)
			So(fx.c.Progress().Lowering, ShouldBeTrue)
			So(fx.c.Info().SupportPercentage(), ShouldEqual, 40)

			fx.c.RunLoop()
			So(fx.c.Info().SupportPercentage(), ShouldEqual, 40)
			for i := 0; i < 40; i++ {
				fx.c.RunLowerLoop()
			}
			So(fx.c.CheckLowerComplete(), ShouldBeTrue)
		})

		Convey("Abort when not raising does nothing", func() {
			fx.c.AbortRaise()
			fx.c.AbortRaise()
			So(fx.pos.enable, ShouldEqual, 2)
		})
	})
}

// ============================================================================
// In-range counter
// ============================================================================

func TestHpInRangeCounter(t *testing.T) {
	cfg := InRangeConfig{Band: 10, Count: 3, MaxSamples: 6}
	tests := []struct {
		name     string
		samples  []float64
		inRange  bool
		timedOut bool
	}{
		{"steady", []float64{100, 101, 99}, true, false},
		{"too few", []float64{100, 101}, false, false},
		{"drift restarts run", []float64{100, 105, 130, 131, 129}, true, false},
		{"never settles", []float64{0, 50, 0, 50, 0, 50}, false, true},
		{"settles on last sample", []float64{0, 50, 0, 50, 51, 49}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHpInRangeCounter(cfg)
			for _, s := range tt.samples {
				h.Sample(s)
			}
			if h.InRange() != tt.inRange {
				t.Errorf("InRange() = %v, want %v", h.InRange(), tt.inRange)
			}
			if h.TimedOut() != tt.timedOut {
				t.Errorf("TimedOut() = %v, want %v", h.TimedOut(), tt.timedOut)
			}
			h.Reset()
			if h.Done() {
				t.Errorf("Done() after Reset = true, want false")
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero increment", func(c *Config) { c.IncrementPercent = 0 }, true},
		{"decrement over 100", func(c *Config) { c.DecrementPercent = 101 }, true},
		{"negative threshold", func(c *Config) { c.StaticThreshold = -1 }, true},
		{"zero timeout", func(c *Config) { c.LowerTimeout = 0 }, true},
		{"zero count", func(c *Config) { c.InRange.Count = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInfoClamps(t *testing.T) {
	i := NewInfo(30, 30)
	for n := 0; n < 5; n++ {
		i.Increment()
	}
	if got := i.SupportPercentage(); got != 100 {
		t.Errorf("SupportPercentage() = %v, want 100", got)
	}
	for n := 0; n < 5; n++ {
		i.Decrement()
	}
	if !i.Empty() {
		t.Errorf("Empty() = false after decrements, want true")
	}
}

func TestTimeoutLoggedOnce(t *testing.T) {
	Convey("Given a raise past its deadline whose fault does not stop it", t, func() {
		core, logs := observer.New(zap.ErrorLevel)
		cfg := quickConfig()
		fx := newFixture(t, cfg, WithLogger(zap.New(core)))
		fx.c.Start(false)
		fx.clock.Advance(cfg.RaiseTimeout.Seconds() + 1)
		So(fx.c.CheckTimeout(), ShouldBeTrue)

		Convey("Every cycle notifies but only the first one logs", func() {
			for rep := 0; rep < 5; rep++ {
				fx.c.Timeout()
			}
			So(fx.notify.raise, ShouldEqual, 5)
			So(logs.FilterMessage("raise timed out").Len(), ShouldEqual, 1)

			Convey("A new operation logs its own timeout", func() {
				fx.c.StartLowering()
				fx.clock.Advance(cfg.LowerTimeout.Seconds() + 1)
				So(fx.c.CheckLowerTimeout(), ShouldBeTrue)
				for rep := 0; rep < 3; rep++ {
					fx.c.LowerTimeout()
				}
				So(fx.notify.lower, ShouldEqual, 3)
				So(logs.FilterMessage("lower timed out").Len(), ShouldEqual, 1)
			})
		})
	})
}
