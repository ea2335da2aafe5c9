// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

// Timings holds, per function code, the reply wait (or post-frame delay for
// commands without a reply) in microseconds.
type Timings map[FunctionCode]uint32

// DefaultTimings returns conservative waits for every catalogued function.
func DefaultTimings() Timings {
	return Timings{
		FuncReportServerID:                    450,
		FuncReportServerStatus:                300,
		FuncChangeMode:                        350,
		FuncStepMotor:                         300,
		FuncElectromechanicalForceAndStatus:   300,
		FuncSetBoostValveDCAGains:             400,
		FuncReadBoostValveDCAGains:            300,
		FuncForceDemand:                       300,
		FuncPneumaticForceStatus:              300,
		FuncSetADCScanRate:                    300,
		FuncSetADCChannelOffsetAndSensitivity: 400,
		FuncEraseILCApplication:               500000,
		FuncWriteApplicationPage:              50000,
		FuncVerifyUserApplication:             500000,
		FuncResetServer:                       86840,
		FuncReadCalibration:                   1000,
		FuncReadDCAPressure:                   300,
		FuncReportDCAID:                       300,
		FuncReportDCAStatus:                   300,
		FuncReportLVDT:                        300,
	}
}

// For returns the timing of fn, falling back to the default table.
func (t Timings) For(fn FunctionCode) uint32 {
	if v, ok := t[fn]; ok {
		return v
	}
	return DefaultTimings()[fn]
}

// Merge returns a copy of t with the entries of o applied on top.
func (t Timings) Merge(o map[FunctionCode]uint32) Timings {
	out := make(Timings, len(t)+len(o))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}
