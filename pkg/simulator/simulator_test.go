// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"context"
	"errors"
	"testing"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/ilc"
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

type warnings []ilc.Warning

func (w *warnings) ILCWarning(warning ilc.Warning) { *w = append(*w, warning) }

func (w warnings) count(flag ilc.WarningFlag) int {
	n := 0
	for _, warning := range w {
		if warning.Cause() == flag {
			n++
		}
	}
	return n
}

func newController(t *testing.T, cfg Config) (*Bus, *ilc.Controller, *warnings) {
	t.Helper()
	table := testTable(t)
	bus := New(table, cfg)
	sink := &warnings{}
	return bus, ilc.NewController(bus, table, ilc.ControllerConfig{Sink: sink}), sink
}

func run(t *testing.T, c *ilc.Controller) bool {
	t.Helper()
	timedOut, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return timedOut
}

func TestServerIDAndMode(t *testing.T) {
	_, c, sink := newController(t, DefaultConfig())
	if err := c.WriteServerID(ilc.TypeForceActuator); err != nil {
		t.Fatalf("WriteServerID() error = %v", err)
	}
	if err := c.WriteChangeMode(ilc.TypeForceActuator, ilc.ModeEnabled); err != nil {
		t.Fatalf("WriteChangeMode() error = %v", err)
	}
	if run(t, c) {
		t.Fatalf("Run() timed out: %v", *sink)
	}

	for i, info := range c.State().ForceActuatorInfo {
		if !info.IDReported || info.ID.MajorRevision != 2 || info.ID.MinorRevision != 4 {
			t.Fatalf("ForceActuatorInfo[%d].ID = %+v", i, info.ID)
		}
		if info.Mode != ilc.ModeEnabled {
			t.Fatalf("ForceActuatorInfo[%d].Mode = %v, want Enabled", i, info.Mode)
		}
	}
}

func TestStartupConfiguration(t *testing.T) {
	bus, c, sink := newController(t, DefaultConfig())
	for _, typ := range []ilc.Type{ilc.TypeForceActuator, ilc.TypeHardpoint} {
		if err := c.WriteSetADCScanRate(typ, 5); err != nil {
			t.Fatalf("WriteSetADCScanRate(%v) error = %v", typ, err)
		}
		if err := c.WriteReadCalibration(typ); err != nil {
			t.Fatalf("WriteReadCalibration(%v) error = %v", typ, err)
		}
	}
	if err := c.WriteBoostValveGains(1.5, 0.75); err != nil {
		t.Fatalf("WriteBoostValveGains() error = %v", err)
	}
	for _, typ := range []ilc.Type{ilc.TypeForceActuator, ilc.TypeHardpointMonitor} {
		if err := c.WriteDCAStatus(typ); err != nil {
			t.Fatalf("WriteDCAStatus(%v) error = %v", typ, err)
		}
	}
	if run(t, c) {
		t.Fatalf("Run() timed out: %v", *sink)
	}
	if len(*sink) != 0 {
		t.Errorf("warnings = %v, want none", *sink)
	}

	state := c.State()
	table := testTable(t)
	for i, info := range state.ForceActuatorInfo {
		if info.ADCScanRate != 5 {
			t.Fatalf("ForceActuatorInfo[%d].ADCScanRate = %d, want 5", i, info.ADCScanRate)
		}
		if info.Calibration != Calibration() {
			t.Fatalf("ForceActuatorInfo[%d].Calibration = %v", i, info.Calibration)
		}
		if info.BoostGains != [2]float32{1.5, 0.75} {
			t.Fatalf("ForceActuatorInfo[%d].BoostGains = %v, want [1.5 0.75]", i, info.BoostGains)
		}
		if info.DCA.MajorRevision != 2 || info.DCA.MinorRevision != 4 {
			t.Fatalf("ForceActuatorInfo[%d].DCA = %+v", i, info.DCA)
		}
	}
	for i, info := range state.HardpointInfo {
		if info.ADCScanRate != 5 || info.Calibration != Calibration() {
			t.Fatalf("HardpointInfo[%d] = %+v", i, info)
		}
	}
	for i, info := range state.MonitorInfo {
		if info.DCA.FirmwareType != 1 {
			t.Fatalf("MonitorInfo[%d].DCA = %+v", i, info.DCA)
		}
	}

	hp := table.Hardpoints[0]
	if got := bus.ScanRate(ilc.Key{Subnet: hp.Subnet, Address: hp.Address}); got != 5 {
		t.Errorf("ScanRate(hardpoint) = %d, want 5", got)
	}
}

func TestResetServer(t *testing.T) {
	bus, c, sink := newController(t, DefaultConfig())
	table := testTable(t)
	fa := table.ForceActuators[0]
	key := ilc.Key{Subnet: fa.Subnet, Address: fa.Address}

	if err := c.WriteChangeMode(ilc.TypeForceActuator, ilc.ModeEnabled); err != nil {
		t.Fatalf("WriteChangeMode() error = %v", err)
	}
	run(t, c)
	if got := bus.Mode(key); got != ilc.ModeEnabled {
		t.Fatalf("Mode() = %v, want Enabled", got)
	}

	if err := c.WriteResetServer(ilc.TypeForceActuator); err != nil {
		t.Fatalf("WriteResetServer() error = %v", err)
	}
	if run(t, c) {
		t.Fatalf("Run() timed out: %v", *sink)
	}
	if got := bus.Mode(key); got != ilc.ModeStandby {
		t.Errorf("Mode() after reset = %v, want Standby", got)
	}
	if got := bus.Resets(); got != len(table.ForceActuators) {
		t.Errorf("Resets() = %d, want %d", got, len(table.ForceActuators))
	}
}

func TestForceDemandEcho(t *testing.T) {
	bus, c, _ := newController(t, DefaultConfig())
	n := len(c.State().ForceActuators)
	primary := make([]float64, n)
	secondary := make([]float64, testTable(t).SecondaryCount())
	for i := range primary {
		primary[i] = 100 + float64(i)
	}
	for i := range secondary {
		secondary[i] = -10
	}
	if err := c.WriteForceDemand(primary, secondary, false); err != nil {
		t.Fatalf("WriteForceDemand() error = %v", err)
	}
	run(t, c)

	for i, fa := range c.State().ForceActuators {
		if d := float64(fa.Primary) - primary[i]; d > 0.01 || d < -0.01 {
			t.Fatalf("ForceActuators[%d].Primary = %v, want %v", i, fa.Primary, primary[i])
		}
	}
	if bus.Commands() != n {
		t.Errorf("Commands() = %d, want %d", bus.Commands(), n)
	}
}

func TestHardpointStepping(t *testing.T) {
	cfg := DefaultConfig()
	bus, c, _ := newController(t, cfg)
	start := bus.HardpointEncoders()

	steps := make([]int8, len(start))
	steps[0] = 8
	steps[1] = -6
	for rep := 0; rep < 2; rep++ {
		if err := c.WriteHardpointSteps(steps); err != nil {
			t.Fatalf("WriteHardpointSteps() error = %v", err)
		}
		run(t, c)
	}

	got := bus.HardpointEncoders()
	tests := []struct {
		index int
		want  int32
	}{
		{0, start[0] + 4},
		{1, start[1] - 3},
		{2, start[2]},
	}
	for _, tt := range tests {
		if got[tt.index] != tt.want {
			t.Errorf("encoder[%d] = %d, want %d", tt.index, got[tt.index], tt.want)
		}
		if hp := c.State().Hardpoints[tt.index]; hp.Encoder != tt.want {
			t.Errorf("State().Hardpoints[%d].Encoder = %d, want %d", tt.index, hp.Encoder, tt.want)
		}
	}

	// force follows the offset from the reference position
	offset := got[0] - start[0] + cfg.InitialOffset
	if f := c.State().Hardpoints[0].Force; f != float32(cfg.Stiffness*float64(offset)) {
		t.Errorf("Hardpoints[0].Force = %v, want %v", f, cfg.Stiffness*float64(offset))
	}
}

func TestMonitorPressure(t *testing.T) {
	bus, c, _ := newController(t, DefaultConfig())
	bus.SetPressure(42)
	if err := c.WriteMonitorStatus(); err != nil {
		t.Fatalf("WriteMonitorStatus() error = %v", err)
	}
	run(t, c)
	for i, m := range c.State().Monitors {
		for j, p := range m.Pressure {
			if p != 42 {
				t.Fatalf("Monitors[%d].Pressure[%d] = %v, want 42", i, j, p)
			}
		}
	}
}

func TestSilenceAndCorrupt(t *testing.T) {
	table := testTable(t)
	fa := table.ForceActuators[0]
	key := ilc.Key{Subnet: fa.Subnet, Address: fa.Address}

	t.Run("silent", func(t *testing.T) {
		bus, c, sink := newController(t, DefaultConfig())
		bus.Silence(key, true)
		if err := c.WriteServerStatus(ilc.TypeForceActuator); err != nil {
			t.Fatalf("WriteServerStatus() error = %v", err)
		}
		if !run(t, c) {
			t.Error("Run() timedOut = false with a silent ILC")
		}
		if n := sink.count(ilc.WarnResponseTimeout); n != 1 {
			t.Errorf("ResponseTimeout warnings = %d, want 1", n)
		}
	})

	t.Run("corrupt", func(t *testing.T) {
		bus, c, sink := newController(t, DefaultConfig())
		bus.Corrupt(key, true)
		if err := c.WriteServerStatus(ilc.TypeForceActuator); err != nil {
			t.Fatalf("WriteServerStatus() error = %v", err)
		}
		run(t, c)
		if n := sink.count(ilc.WarnInvalidCRC); n != 1 {
			t.Errorf("InvalidCRC warnings = %d, want 1", n)
		}
	})
}

func TestUnknownFunctionException(t *testing.T) {
	_, c, sink := newController(t, DefaultConfig())
	table := testTable(t)
	hp := table.Hardpoints[0]
	key := ilc.Key{Subnet: hp.Subnet, Address: hp.Address}
	if err := c.WriteSingle(key, (*ilc.Buffer).ReportDCAID); err != nil {
		t.Fatalf("WriteSingle() error = %v", err)
	}
	if run(t, c) {
		t.Error("Run() timedOut = true; an exception is a response")
	}
	if n := sink.count(ilc.WarnIllegalFunction); n != 1 {
		t.Errorf("IllegalFunction warnings = %d, want 1", n)
	}
}

func TestCancelledContext(t *testing.T) {
	bus := New(testTable(t), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.WriteCommandFIFO(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("WriteCommandFIFO() error = %v, want canceled", err)
	}
	if err := bus.WaitForSubnet(context.Background(), 1, 0); !errors.Is(err, ErrNoResponse) {
		t.Errorf("WaitForSubnet() error = %v, want ErrNoResponse", err)
	}
}
