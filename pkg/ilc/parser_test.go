// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import (
	"math"
	"testing"
)

type parserFixture struct {
	subnets   *SubnetMap
	state     *State
	responses *Responses
	warnings  *recorder
	parser    *Parser
}

func newParserFixture(t *testing.T, opts ...ParserOption) *parserFixture {
	t.Helper()
	table := testTable(t)
	f := &parserFixture{
		subnets:   NewSubnetMap(table),
		state:     NewState(table),
		responses: NewResponses(table),
		warnings:  &recorder{},
	}
	opts = append([]ParserOption{WithWarningSink(f.warnings)}, opts...)
	f.parser = NewParser(f.subnets, f.state, f.responses, opts...)
	return f
}

func TestParseForceStatus(t *testing.T) {
	f := newParserFixture(t)
	single := f.subnets.Lookup(2, 4)
	dual := f.subnets.Lookup(2, 17)
	f.responses.Expect(single)
	f.responses.Expect(dual)

	rb := NewResponseBuffer(42)
	rb.Frame(4, uint8(FuncForceDemand), forceStatusPayload(0, 905.25), 100)
	rb.Frame(17, uint8(FuncPneumaticForceStatus), forceStatusPayload(0x02, 600, 200), 200)
	f.parser.Parse(rb.Words(), 2)

	if len(f.warnings.warnings) != 0 {
		t.Fatalf("warnings = %v, want none", f.warnings.warnings)
	}
	got := f.state.ForceActuators[single.DataIndex]
	if got.Primary != 905.25 || got.Z != 905.25 || got.X != 0 || got.Y != 0 {
		t.Errorf("single axis state = %+v", got)
	}

	got = f.state.ForceActuators[dual.DataIndex]
	lateral := float32(200 * math.Sqrt2 / 2)
	if got.Primary != 600 || got.Secondary != 200 {
		t.Errorf("dual cylinders = %v/%v, want 600/200", got.Primary, got.Secondary)
	}
	if math.Abs(float64(got.Z-(600+lateral))) > 1e-3 {
		t.Errorf("dual Z = %v, want %v", got.Z, 600+lateral)
	}
	if !got.Status.Has(PneumaticMinorFault) {
		t.Errorf("status = %v, want MinorFault", got.Status)
	}
	if f.responses.Pending(single) != 0 || f.responses.Pending(dual) != 0 {
		t.Error("expected responses not credited")
	}
	if f.state.BatchTimestamp[1] != 42e-6 {
		t.Errorf("batch timestamp = %v, want 42e-6", f.state.BatchTimestamp[1])
	}
	if f.parser.Statistics().ValidFrames != 2 {
		t.Errorf("ValidFrames = %d, want 2", f.parser.Statistics().ValidFrames)
	}
}

func TestParseCorruptedCRC(t *testing.T) {
	f := newParserFixture(t)
	e := f.subnets.Lookup(1, 20)
	f.responses.Expect(e)

	good := NewResponseBuffer(0)
	good.Frame(20, uint8(FuncForceDemand), forceStatusPayload(0, 1000, 50), 7)
	words := append([]uint16(nil), good.Words()...)
	// flip one payload byte: batch timestamp (4) + address + function + status
	words[4+3] ^= 0x0010

	f.parser.Parse(words, 1)

	if len(f.warnings.warnings) != 1 || f.warnings.count(WarnInvalidCRC) != 1 {
		t.Fatalf("warnings = %v, want exactly one InvalidCRC", f.warnings.warnings)
	}
	if f.warnings.warnings[0].Timestamp != 7e-6 {
		t.Errorf("warning timestamp = %v, want frame timestamp", f.warnings.warnings[0].Timestamp)
	}
	if (f.state.ForceActuators[e.DataIndex] != ForceActuatorState{}) {
		t.Errorf("actuator state changed: %+v", f.state.ForceActuators[e.DataIndex])
	}
	if f.responses.Pending(e) != 1 {
		t.Errorf("Pending = %d, want 1", f.responses.Pending(e))
	}
}

func TestParseContinuesAfterBadFrame(t *testing.T) {
	f := newParserFixture(t)
	rb := NewResponseBuffer(0)
	rb.Raw([]byte{3, uint8(FuncForceDemand), 0, 0, 0, 0, 0, 0xAA, 0xBB}, 1)
	rb.Frame(3, uint8(FuncForceDemand), forceStatusPayload(0, 321), 2)
	f.parser.Parse(rb.Words(), 1)

	if f.warnings.count(WarnInvalidCRC) != 1 {
		t.Errorf("InvalidCRC = %d, want 1", f.warnings.count(WarnInvalidCRC))
	}
	if got := f.state.ForceActuators[f.subnets.Lookup(1, 3).DataIndex].Primary; got != 321 {
		t.Errorf("second frame not parsed, primary = %v", got)
	}
}

func TestParseWarnings(t *testing.T) {
	tests := []struct {
		name   string
		subnet uint8
		build  func(rb *ResponseBuffer)
		trim   int // words dropped from the end of the buffer
		want   WarningFlag
	}{
		{
			name:   "unknown subnet",
			subnet: 7,
			build: func(rb *ResponseBuffer) {
				rb.Frame(3, uint8(FuncForceDemand), forceStatusPayload(0, 1), 1)
			},
			want: WarnUnknownSubnet,
		},
		{
			name:   "unknown address",
			subnet: 1,
			build: func(rb *ResponseBuffer) {
				rb.Frame(200, uint8(FuncForceDemand), forceStatusPayload(0, 1), 1)
			},
			want: WarnUnknownAddress,
		},
		{
			name:   "unknown function",
			subnet: 1,
			build: func(rb *ResponseBuffer) {
				rb.Frame(3, 99, nil, 1)
			},
			want: WarnUnknownFunction,
		},
		{
			name:   "function not handled by actuator type",
			subnet: 1,
			build: func(rb *ResponseBuffer) {
				rb.Frame(3, uint8(FuncStepMotor), hardpointPayload(0, 1, 2), 1)
			},
			want: WarnUnknownFunction,
		},
		{
			name:   "invalid length",
			subnet: 1,
			build: func(rb *ResponseBuffer) {
				rb.Frame(3, uint8(FuncForceDemand), forceStatusPayload(0, 1, 2), 1)
			},
			want: WarnInvalidLength,
		},
		{
			name:   "runt frame",
			subnet: 1,
			build: func(rb *ResponseBuffer) {
				rb.Raw([]byte{3, 75}, 1)
			},
			want: WarnInvalidLength,
		},
		{
			name:   "illegal function",
			subnet: 1,
			build: func(rb *ResponseBuffer) {
				rb.Exception(3, uint8(FuncForceDemand), ExceptionIllegalFunction, 1)
			},
			want: WarnIllegalFunction,
		},
		{
			name:   "illegal data value",
			subnet: 5,
			build: func(rb *ResponseBuffer) {
				rb.Exception(2, uint8(FuncStepMotor), ExceptionIllegalDataValue, 1)
			},
			want: WarnIllegalDataValue,
		},
		{
			name:   "unknown problem",
			subnet: 5,
			build: func(rb *ResponseBuffer) {
				rb.Exception(85, uint8(FuncReportLVDT), 4, 1)
			},
			want: WarnUnknownProblem,
		},
		{
			name:   "exception without a single code byte",
			subnet: 1,
			build: func(rb *ResponseBuffer) {
				rb.Frame(3, uint8(FuncForceDemand)|ExceptionFlag, []byte{1, 2}, 1)
			},
			want: WarnInvalidLength,
		},
		{
			name:   "frame timestamp cut off",
			subnet: 1,
			build: func(rb *ResponseBuffer) {
				rb.Frame(3, uint8(FuncForceDemand), forceStatusPayload(0, 1), 1)
			},
			trim: 2,
			want: WarnInvalidLength,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newParserFixture(t)
			rb := NewResponseBuffer(0)
			tt.build(rb)
			words := rb.Words()
			f.parser.Parse(words[:len(words)-tt.trim], tt.subnet)

			if len(f.warnings.warnings) != 1 {
				t.Fatalf("warnings = %v, want exactly one", f.warnings.warnings)
			}
			w := f.warnings.warnings[0]
			if w.Cause() != tt.want || w.Flags.Count() != 1 {
				t.Errorf("warning = %v, want only %v", w.Flags, tt.want)
			}
			if f.parser.Statistics().Warnings[tt.want] != 1 {
				t.Errorf("statistics for %v = %d, want 1", tt.want, f.parser.Statistics().Warnings[tt.want])
			}
		})
	}
}

func TestParseExceptionCreditsResponse(t *testing.T) {
	f := newParserFixture(t)
	e := f.subnets.Lookup(5, 2)
	f.responses.Expect(e)
	rb := NewResponseBuffer(0)
	rb.Exception(2, uint8(FuncStepMotor), ExceptionIllegalDataValue, 1)
	f.parser.Parse(rb.Words(), 5)
	if f.responses.Pending(e) != 0 {
		t.Error("exception reply not credited")
	}
}

func TestParseTruncatedFrameLeavesState(t *testing.T) {
	f := newParserFixture(t)
	e := f.subnets.Lookup(1, 3)
	f.responses.Expect(e)
	rb := NewResponseBuffer(0)
	rb.Frame(3, uint8(FuncForceDemand), forceStatusPayload(0, 777), 1)
	words := rb.Words()
	f.parser.Parse(words[:len(words)-1], 1)

	if got := f.state.ForceActuators[e.DataIndex].Primary; got != 0 {
		t.Errorf("Primary = %v, want 0 from a truncated frame", got)
	}
	if f.responses.Pending(e) != 1 {
		t.Errorf("Pending = %d, want 1", f.responses.Pending(e))
	}
}

func TestParseHardpointAndMonitor(t *testing.T) {
	f := newParserFixture(t)
	rb := NewResponseBuffer(0)
	rb.Frame(2, uint8(FuncElectromechanicalForceAndStatus), hardpointPayload(0x40, -1234, -55.5), 1)
	rb.Frame(86, uint8(FuncReportLVDT), f32bytes(0.25, -0.5), 2)
	rb.Frame(86, uint8(FuncReadDCAPressure), f32bytes(101, 102, 103, 104), 3)
	rb.Frame(86, uint8(FuncReportDCAStatus), []byte{0x00, 0x01}, 4)
	f.parser.Parse(rb.Words(), 5)

	if len(f.warnings.warnings) != 0 {
		t.Fatalf("warnings = %v", f.warnings.warnings)
	}
	hp := f.state.Hardpoints[1]
	if hp.Encoder != -1234 || hp.Force != -55.5 || !hp.Status.Has(HardpointLimitSwitch1Operated) {
		t.Errorf("hardpoint = %+v", hp)
	}
	mon := f.state.Monitors[2]
	if mon.BreakawayLVDT != 0.25 || mon.DisplacementLVDT != -0.5 {
		t.Errorf("LVDT = %v/%v", mon.BreakawayLVDT, mon.DisplacementLVDT)
	}
	if mon.Pressure != [4]float32{101, 102, 103, 104} {
		t.Errorf("pressure = %v", mon.Pressure)
	}
	if !mon.DCAStatus.MajorFault() {
		t.Errorf("DCA status = %v, want MajorFault", mon.DCAStatus)
	}
	if got := f.state.HardpointForces()[1]; got != -55.5 {
		t.Errorf("HardpointForces()[1] = %v", got)
	}
}

func TestParseServerIDFirmware(t *testing.T) {
	fc, _ := NewFirmwareCheck(">= 2.0")
	f := newParserFixture(t, WithFirmwareCheck(fc))
	rb := NewResponseBuffer(0)
	rb.Frame(1, uint8(FuncReportServerID), serverIDPayload(0xA1B2C3D4E5F6, 1, 9, "FA-Pneumatic"), 1)
	rb.Frame(2, uint8(FuncReportServerID), serverIDPayload(0x010203040506, 2, 1, "FA-Pneumatic"), 2)
	f.parser.Parse(rb.Words(), 3)

	e1 := f.subnets.Lookup(3, 1)
	info := f.state.InfoFor(e1)
	if info.ID.UniqueID != 0xA1B2C3D4E5F6 || info.ID.FirmwareName != "FA-Pneumatic" {
		t.Errorf("server id = %+v", info.ID)
	}
	if info.ID.FirmwareAccepted {
		t.Error("1.9 accepted by >= 2.0")
	}
	if !f.state.InfoFor(f.subnets.Lookup(3, 2)).ID.FirmwareAccepted {
		t.Error("2.1 rejected by >= 2.0")
	}
	if n := f.state.FirmwareMismatches(); n != 1 {
		t.Errorf("FirmwareMismatches() = %d, want 1", n)
	}
}

func TestParseServerStatusAndMode(t *testing.T) {
	f := newParserFixture(t)
	rb := NewResponseBuffer(0)
	rb.Frame(3, uint8(FuncReportServerStatus), []byte{uint8(ModeEnabled), 0x00, 0x02, 0x01, 0x00}, 1)
	rb.Frame(4, uint8(FuncChangeMode), []byte{0x00, uint8(ModeDisabled)}, 2)
	f.parser.Parse(rb.Words(), 5)

	hp := f.state.InfoFor(f.subnets.Lookup(5, 3))
	if hp.Mode != ModeEnabled || !hp.Status.MinorFault() || hp.Faults != 0x0100 {
		t.Errorf("status = %+v", hp)
	}
	if f.state.InfoFor(f.subnets.Lookup(5, 4)).Mode != ModeDisabled {
		t.Error("ChangeMode reply not applied")
	}
}

func TestParseShortBuffer(t *testing.T) {
	f := newParserFixture(t)
	f.parser.Parse(nil, 1)
	if len(f.warnings.warnings) != 0 {
		t.Error("empty buffer raised a warning")
	}
	f.parser.Parse([]uint16{1, 2}, 1)
	if f.warnings.count(WarnInvalidLength) != 1 {
		t.Errorf("truncated timestamp warnings = %v", f.warnings.warnings)
	}
}

func TestResponsesVerify(t *testing.T) {
	table := testTable(t)
	m := NewSubnetMap(table)
	r := NewResponses(table)
	rec := &recorder{}

	a := m.Lookup(4, 30)
	r.Expect(a)
	r.Expect(a)
	r.Received(a)
	if !r.Verify(rec, 10) {
		t.Fatal("Verify() = false with a missing reply")
	}
	if len(rec.warnings) != 1 || rec.count(WarnResponseTimeout) != 1 || rec.warnings[0].ActuatorID != a.ActuatorID {
		t.Errorf("warnings = %v", rec.warnings)
	}
	if r.Pending(a) != 0 {
		t.Error("counter not reset after Verify")
	}
	if r.Verify(rec, 11) {
		t.Error("second Verify() = true")
	}
}
