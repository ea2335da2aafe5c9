// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package control runs the periodic control cycle: ILC I/O, force
// computation, raising and lowering, and the safety verdict.
package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/forces"
	"github.com/Thermoquad/mirrorsupport/pkg/ilc"
	"github.com/Thermoquad/mirrorsupport/pkg/position"
	"github.com/Thermoquad/mirrorsupport/pkg/raise"
	"github.com/Thermoquad/mirrorsupport/pkg/safety"
	"github.com/Thermoquad/mirrorsupport/pkg/telemetry"
)

// ErrQueueFull is returned by Submit when commands arrive faster than cycles.
var ErrQueueFull = errors.New("command queue full")

const requestQueue = 16

var ilcTypes = []ilc.Type{ilc.TypeForceActuator, ilc.TypeHardpoint, ilc.TypeHardpointMonitor}

// Loop owns every controller of the cycle. Step and Run must be called from
// one goroutine; Submit may be called from any.
type Loop struct {
	cfg   Config
	table *actuator.Table
	log   *zap.Logger
	clock func() float64

	ilc       *ilc.Controller
	safety    *safety.Controller
	forces    *forces.Controller
	info      *raise.Info
	raise     *raise.Controller
	position  *position.Controller
	pub       *telemetry.Publisher
	elevation *ElevationMonitor
	inputs    *InputMonitor
	tables    *forces.Tables

	requests chan request

	mode      safety.State
	faultFrom safety.State
	cycle     uint64
	// identifyAt is the cycle that queries ServerID of every ILC.
	identifyAt uint64
	idle       []int8
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(lp *Loop) { lp.log = l }
}

// WithPublisher publishes the cycle telemetry to p.
func WithPublisher(p *telemetry.Publisher) Option {
	return func(lp *Loop) { lp.pub = p }
}

// WithElevation reads the telescope elevation from m.
func WithElevation(m *ElevationMonitor) Option {
	return func(lp *Loop) { lp.elevation = m }
}

// WithInputs reads the azimuth, thermal, velocity and acceleration inputs
// from m.
func WithInputs(m *InputMonitor) Option {
	return func(lp *Loop) { lp.inputs = m }
}

// WithTables replaces the default force tables.
func WithTables(tb forces.Tables) Option {
	return func(lp *Loop) { lp.tables = &tb }
}

// WithClock replaces the wall clock, in seconds.
func WithClock(clock func() float64) Option {
	return func(lp *Loop) { lp.clock = clock }
}

// New wires the controllers for table t talking through fifo.
func New(fifo ilc.FIFO, t *actuator.Table, cfg Config, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("control config: %w", err)
	}
	cfg.Forces.CycleTime = cfg.CycleTime.Seconds()

	l := &Loop{
		cfg:        cfg,
		table:      t,
		log:        zap.NewNop(),
		clock:      func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
		requests:   make(chan request, requestQueue),
		identifyAt: 1,
		idle:       make([]int8, len(t.Hardpoints)),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pub == nil {
		l.pub = telemetry.NewPublisher(telemetry.WithLogger(l.log), telemetry.WithClock(l.clock))
	}
	if l.elevation == nil {
		l.elevation = NewElevationMonitor(cfg.Elevation)
	}
	if l.inputs == nil {
		l.inputs = NewInputMonitor()
	}
	if l.tables == nil {
		tb := forces.DefaultTables(t, cfg.Forces.MirrorWeight)
		l.tables = &tb
	}

	firmware, err := ilc.NewFirmwareCheck(cfg.Firmware)
	if err != nil {
		return nil, err
	}
	l.ilc = ilc.NewController(fifo, t, ilc.ControllerConfig{
		Timings:       ilc.DefaultTimings().Merge(cfg.Timings),
		SubnetTimeout: cfg.SubnetTimeout,
		Firmware:      firmware,
		Sink:          l.pub,
		Logger:        l.log.Named("ilc"),
		Clock:         l.clock,
	})

	if l.safety, err = safety.New(cfg.Safety, t.Count(), len(t.Hardpoints),
		safety.WithLogger(l.log.Named("safety"))); err != nil {
		return nil, err
	}

	l.info = raise.NewInfo(cfg.Raise.IncrementPercent, cfg.Raise.DecrementPercent)
	if l.forces, err = forces.NewController(t, cfg.Forces, *l.tables,
		forces.WithLogger(l.log.Named("forces")),
		forces.WithNotifier(l.safety),
		forces.WithSupport(l.info)); err != nil {
		return nil, err
	}

	if l.position, err = position.New(cfg.Position, t, l.ilc.State(), l.safety,
		position.WithLogger(l.log.Named("position"))); err != nil {
		return nil, err
	}

	if l.raise, err = raise.New(cfg.Raise, l.info, l.forces, l.position, l.ilc.State(), l.safety, len(t.Hardpoints),
		raise.WithLogger(l.log.Named("raise")),
		raise.WithClock(l.clock)); err != nil {
		return nil, err
	}
	return l, nil
}

// State returns the operating state.
func (l *Loop) State() safety.State { return l.mode }

// ErrorCode returns the latched fault and its report.
func (l *Loop) ErrorCode() (safety.FaultCode, string) {
	return l.safety.ErrorCode(), l.safety.ErrorReport()
}

// Progress returns the raise or lower progress.
func (l *Loop) Progress() raise.Progress { return l.raise.Progress() }

// ILC returns the ILC controller.
func (l *Loop) ILC() *ilc.Controller { return l.ilc }

// Forces returns the force controller.
func (l *Loop) Forces() *forces.Controller { return l.forces }

// Publisher returns the telemetry publisher.
func (l *Loop) Publisher() *telemetry.Publisher { return l.pub }

// Submit queues cmd for the next cycle. The returned channel receives the
// outcome once the cycle handled it.
func (l *Loop) Submit(cmd Command) <-chan error {
	done := make(chan error, 1)
	select {
	case l.requests <- request{cmd: cmd, done: done}:
	default:
		done <- ErrQueueFull
	}
	return done
}

// Run steps the loop every CycleTime until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.CycleTime)
	defer ticker.Stop()

	l.log.Info("control loop started", zap.Duration("cycle", l.cfg.CycleTime))
	for {
		select {
		case <-ctx.Done():
			l.log.Info("control loop stopped", zap.Uint64("cycles", l.cycle))
			return nil
		case <-ticker.C:
			if err := l.Step(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				l.log.Warn("control cycle", zap.Error(err))
			}
		}
	}
}

// Step runs one control cycle. Only a failed command FIFO write is an error;
// everything else becomes a warning or a safety condition.
func (l *Loop) Step(ctx context.Context) error {
	l.cycle++

	elevation, _ := l.elevation.Get()
	l.forces.UpdateElevation(elevation)
	in, _ := l.inputs.Get()
	l.forces.UpdateAzimuth(in.Azimuth)
	l.forces.UpdateThermal(in.Thermal)
	l.forces.UpdateVelocity(in.Velocity)
	l.forces.UpdateAcceleration(in.Acceleration)

	l.handleCommands()
	l.advance()

	steps := l.idle
	if l.mode != safety.StandbyState {
		l.forces.UpdateAppliedForces()
		l.forces.ProcessAppliedForces()
		steps = l.position.UpdateSteps()
	}

	if err := l.queue(steps); err != nil {
		return err
	}
	_, runErr := l.ilc.Run(ctx)
	l.sample()

	next := l.safety.CheckSafety(l.mode)
	if next == safety.LoweringFaultState && l.mode != safety.LoweringFaultState {
		l.enterFault()
	}
	l.mode = next

	l.publish()
	return runErr
}

// ============================================================================
// Commands
// ============================================================================

func (l *Loop) handleCommands() {
	for {
		select {
		case r := <-l.requests:
			err := l.execute(r.cmd)
			if err != nil {
				l.log.Warn("command rejected", zap.Stringer("command", r.cmd), zap.Stringer("state", l.mode), zap.Error(err))
			} else {
				l.log.Info("command", zap.Stringer("command", r.cmd), zap.Stringer("state", l.mode))
			}
			r.done <- err
		default:
			return
		}
	}
}

func (l *Loop) reject(cmd Command) error {
	return fmt.Errorf("%w: %s in %s", ErrRejected, cmd, l.mode)
}

func (l *Loop) execute(cmd Command) error {
	switch cmd {
	case CommandStart:
		if l.mode != safety.StandbyState {
			return l.reject(cmd)
		}
		if err := l.configureILCs(); err != nil {
			return err
		}
		if err := l.changeMode(ilc.ModeEnabled); err != nil {
			return err
		}
		l.mode = safety.ParkedState

	case CommandStandby:
		if l.mode != safety.ParkedState {
			return l.reject(cmd)
		}
		if err := l.changeMode(ilc.ModeDisabled); err != nil {
			return err
		}
		l.mode = safety.StandbyState

	case CommandRaise, CommandRaiseBypass:
		if l.mode != safety.ParkedState {
			return l.reject(cmd)
		}
		l.raise.Start(cmd == CommandRaiseBypass)
		l.mode = safety.RaisingState

	case CommandLower:
		switch l.mode {
		case safety.ActiveState:
			l.raise.StartLowering()
		case safety.RaisingState:
			l.raise.AbortRaise()
		default:
			return l.reject(cmd)
		}
		l.mode = safety.LoweringState

	case CommandPause, CommandResume:
		if l.mode != safety.RaisingState && l.mode != safety.LoweringState {
			return l.reject(cmd)
		}
		if cmd == CommandPause {
			l.raise.Pause()
		} else {
			l.raise.Resume()
		}

	case CommandClearFault:
		if l.mode != safety.LoweringFaultState {
			return l.reject(cmd)
		}
		l.safety.ClearErrorCode()
		switch {
		case l.raise.Progress().Lowering:
			l.mode = safety.LoweringState
		case l.faultFrom == safety.StandbyState:
			l.mode = safety.StandbyState
		default:
			l.mode = safety.ParkedState
		}

	case CommandApplyVelocity, CommandZeroVelocity, CommandApplyAcceleration, CommandZeroAcceleration:
		if l.mode != safety.ActiveState {
			return l.reject(cmd)
		}
		switch cmd {
		case CommandApplyVelocity:
			l.forces.ApplyVelocityForces()
		case CommandZeroVelocity:
			l.forces.ZeroVelocityForces()
		case CommandApplyAcceleration:
			l.forces.ApplyAccelerationForces()
		case CommandZeroAcceleration:
			l.forces.ZeroAccelerationForces()
		}

	case CommandResetILCs:
		if l.mode != safety.StandbyState {
			return l.reject(cmd)
		}
		for _, t := range ilcTypes {
			if err := l.ilc.WriteResetServer(t); err != nil {
				return fmt.Errorf("reset %s: %w", t, err)
			}
		}
		// rebooted ILCs are identified again once they are back up
		l.identifyAt = l.cycle + 1

	default:
		return fmt.Errorf("%w: unknown command %s", ErrRejected, cmd)
	}
	return nil
}

func (l *Loop) changeMode(mode ilc.Mode) error {
	for _, t := range ilcTypes {
		if err := l.ilc.WriteChangeMode(t, mode); err != nil {
			return fmt.Errorf("change %s mode: %w", t, err)
		}
	}
	return nil
}

// configureILCs queues the load cell, booster valve and DCA setup that
// precedes enabling the ILCs. The replies land in the ILC state.
func (l *Loop) configureILCs() error {
	for _, t := range []ilc.Type{ilc.TypeForceActuator, ilc.TypeHardpoint} {
		if err := l.ilc.WriteSetADCScanRate(t, l.cfg.ADCScanRate); err != nil {
			return fmt.Errorf("set %s ADC scan rate: %w", t, err)
		}
		if err := l.ilc.WriteReadCalibration(t); err != nil {
			return fmt.Errorf("read %s calibration: %w", t, err)
		}
	}
	gains := l.cfg.BoostValveGains
	if err := l.ilc.WriteBoostValveGains(gains.Primary, gains.Secondary); err != nil {
		return fmt.Errorf("set boost valve gains: %w", err)
	}
	for _, t := range []ilc.Type{ilc.TypeForceActuator, ilc.TypeHardpointMonitor} {
		if err := l.ilc.WriteDCAStatus(t); err != nil {
			return fmt.Errorf("read %s DCA status: %w", t, err)
		}
	}
	return nil
}

// ============================================================================
// Raise and lower
// ============================================================================

func (l *Loop) advance() {
	switch l.mode {
	case safety.RaisingState:
		if l.raise.CheckTimeout() {
			l.raise.Timeout()
			return
		}
		l.raise.RunLoop()
		if l.raise.CheckComplete() {
			l.raise.Complete()
			l.mode = safety.ActiveState
		}

	case safety.LoweringState, safety.LoweringFaultState:
		if l.raise.CheckLowerTimeout() {
			l.raise.LowerTimeout()
			return
		}
		l.raise.RunLowerLoop()
		if l.raise.CheckLowerComplete() {
			l.raise.CompleteLower()
			if l.mode == safety.LoweringState {
				l.mode = safety.ParkedState
			}
		}
	}
}

// enterFault turns whatever motion is in progress into a lowering.
func (l *Loop) enterFault() {
	l.faultFrom = l.mode
	switch {
	case l.raise.Progress().Raising:
		l.raise.AbortRaise()
	case l.mode == safety.ActiveState:
		l.raise.StartLowering()
	}
}

// ============================================================================
// ILC I/O
// ============================================================================

func (l *Loop) queue(steps []int8) error {
	if l.cycle == l.identifyAt {
		for _, t := range ilcTypes {
			if err := l.ilc.WriteServerID(t); err != nil {
				return err
			}
		}
	}

	if l.mode == safety.StandbyState {
		if err := l.ilc.WritePneumaticForceStatus(); err != nil {
			return err
		}
	} else {
		primary, secondary := l.forces.CylinderForces()
		if err := l.ilc.WriteForceDemand(primary, secondary, false); err != nil {
			return err
		}
	}
	if err := l.ilc.WriteHardpointSteps(steps); err != nil {
		return err
	}
	if err := l.ilc.WriteMonitorStatus(); err != nil {
		return err
	}

	if l.cycle%uint64(l.cfg.StatusEvery) == 0 {
		for _, t := range ilcTypes {
			if err := l.ilc.WriteServerStatus(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// sample feeds the replies of this cycle to the safety windows.
func (l *Loop) sample() {
	state := l.ilc.State()
	l.safety.ILCCommunicationTimeout(l.ilc.AnyTimeout())

	if l.mode != safety.StandbyState {
		l.forces.UpdateMeasured(state.ForceActuators, state.HardpointForces())
	}

	if l.airOn() {
		for i, m := range state.Monitors {
			if i >= len(l.table.Hardpoints) || m.Timestamp == 0 {
				continue
			}
			fault := false
			for _, p := range m.Pressure {
				if !l.cfg.AirPressure.Contains(float64(p)) {
					fault = true
				}
			}
			l.safety.HardpointAirPressure(i, fault)
		}
	}

	l.safety.ILCFirmwareMismatch(state.FirmwareMismatches())

	id, faulted := l.majorFault(state)
	l.safety.Update(safety.ILCFault, faulted, "ILC %d reports a major fault", id)
}

// airOn reports whether the hardpoint supply is expected to be pressurised.
func (l *Loop) airOn() bool {
	switch l.mode {
	case safety.StandbyState, safety.ParkedState:
		return false
	}
	return !l.raise.Progress().WaitingAir
}

func (l *Loop) majorFault(state *ilc.State) (int32, bool) {
	for i := range state.ForceActuatorInfo {
		if state.ForceActuatorInfo[i].Status.MajorFault() {
			return l.table.ForceActuators[i].ID, true
		}
	}
	for i := range state.HardpointInfo {
		if state.HardpointInfo[i].Status.MajorFault() || state.Hardpoints[i].Status.MajorFault() {
			return l.table.Hardpoints[i].ID, true
		}
	}
	for i := range state.MonitorInfo {
		if state.MonitorInfo[i].Status.MajorFault() {
			return l.table.Monitors[i].ID, true
		}
	}
	return 0, false
}

// ============================================================================
// Telemetry
// ============================================================================

func round1(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10) / 10
}

func mirror(m forces.MirrorForces) [7]float64 {
	return [7]float64{
		round1(m.Fx), round1(m.Fy), round1(m.Fz),
		round1(m.Mx), round1(m.My), round1(m.Mz),
		round1(m.ForceMagnitude),
	}
}

func (l *Loop) publish() {
	var errs []error
	emit := func(kind telemetry.Kind, key string, v any) {
		if _, err := l.pub.Publish(kind, key, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}

	emit(telemetry.KindMode, "", telemetry.ModeEvent{Mode: l.mode.String()})
	emit(telemetry.KindErrorCode, "", telemetry.ErrorCodeEvent{
		Code:   uint8(l.safety.ErrorCode()),
		Name:   l.safety.ErrorCode().String(),
		Report: l.safety.ErrorReport(),
	})

	p := l.raise.Progress()
	emit(telemetry.KindRaiseProgress, "", telemetry.RaiseProgressEvent{
		Support:    round1(p.SupportPercentage),
		Raising:    p.Raising,
		Lowering:   p.Lowering,
		Paused:     p.Paused,
		Stalled:    p.Stalled,
		WaitingAir: p.WaitingAir,
		Remaining:  round1(p.Remaining),
	})

	for _, c := range append(l.forces.Components(), l.forces.Applied()) {
		clipped := 0
		for _, s := range c.Clipping() {
			if s.Any() {
				clipped++
			}
		}
		emit(telemetry.KindForceComponent, c.Name(), telemetry.ForceComponentEvent{
			Name:          c.Name(),
			State:         c.State().String(),
			Clipped:       clipped,
			MaxApplied:    round1(c.Applied().MaxAbs()),
			MaxPreclipped: round1(c.Preclipped().MaxAbs()),
		})
	}

	emit(telemetry.KindMirrorForces, "", telemetry.MirrorForcesEvent{
		Preclipped: mirror(l.forces.PreclippedMirrorForces()),
		Applied:    mirror(l.forces.AppliedMirrorForces()),
	})

	state := l.ilc.State()
	hp := telemetry.HardpointsEvent{
		Encoders: state.HardpointEncoders(),
		Forces:   state.HardpointForces(),
		Modes:    make([]string, len(l.table.Hardpoints)),
	}
	for i := range hp.Forces {
		hp.Forces[i] = round1(hp.Forces[i])
		hp.Modes[i] = l.position.Mode(i).String()
	}
	emit(telemetry.KindHardpoints, "", hp)

	if l.cycle%uint64(l.cfg.StatisticsEvery) == 0 {
		stats := l.ilc.Statistics()
		stats.CalculateRates()
		ev := telemetry.ILCStatisticsEvent{
			TotalFrames: stats.TotalFrames,
			ValidFrames: stats.ValidFrames,
			Warnings:    make(map[string]uint64),
			FrameRate:   round1(stats.FrameRate),
			WarningRate: round1(stats.WarningRate),
		}
		for i, n := range stats.Warnings {
			if n > 0 {
				ev.Warnings[ilc.WarningFlag(i).String()] = n
			}
		}
		emit(telemetry.KindILCStatistics, "", ev)
	}

	if err := l.pub.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		l.log.Warn("publish telemetry", zap.Error(err))
	}
}
