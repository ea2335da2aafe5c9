// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import (
	"fmt"
	"math"
)

// Command builders append one framed request to the open subnet batch.

// ReportServerID requests the ILC identity.
func (b *Buffer) ReportServerID(address uint8) {
	b.beginFrame(address, FuncReportServerID)
	b.endFrame(FuncReportServerID, true)
}

// ReportServerStatus requests mode, status and fault words.
func (b *Buffer) ReportServerStatus(address uint8) {
	b.beginFrame(address, FuncReportServerStatus)
	b.endFrame(FuncReportServerStatus, true)
}

// ChangeMode switches the ILC operating mode.
func (b *Buffer) ChangeMode(address uint8, mode Mode) {
	b.beginFrame(address, FuncChangeMode)
	b.writeU16(uint16(mode))
	b.endFrame(FuncChangeMode, true)
}

// StepMotor moves a hardpoint by steps and returns its force and encoder.
func (b *Buffer) StepMotor(address uint8, steps int8) {
	b.beginFrame(address, FuncStepMotor)
	b.writeI8(steps)
	b.endFrame(FuncStepMotor, true)
}

// ElectromechanicalForceAndStatus polls a hardpoint.
func (b *Buffer) ElectromechanicalForceAndStatus(address uint8) {
	b.beginFrame(address, FuncElectromechanicalForceAndStatus)
	b.endFrame(FuncElectromechanicalForceAndStatus, true)
}

// SetBoostValveDCAGains sets the booster valve gains of a force actuator.
func (b *Buffer) SetBoostValveDCAGains(address uint8, primary, secondary float32) {
	b.beginFrame(address, FuncSetBoostValveDCAGains)
	b.writeF32(primary)
	b.writeF32(secondary)
	b.endFrame(FuncSetBoostValveDCAGains, true)
}

// ReadBoostValveDCAGains reads back the booster valve gains.
func (b *Buffer) ReadBoostValveDCAGains(address uint8) {
	b.beginFrame(address, FuncReadBoostValveDCAGains)
	b.endFrame(FuncReadBoostValveDCAGains, true)
}

// ForceDemand sends cylinder setpoints in newtons. The secondary setpoint is
// sent only to dual-axis addresses.
func (b *Buffer) ForceDemand(address uint8, slewFlag bool, primary, secondary float64) {
	b.beginFrame(address, FuncForceDemand)
	if slewFlag {
		b.writeU8(0xFF)
	} else {
		b.writeU8(0)
	}
	b.writeI24(toMilliNewtons(primary))
	if IsDualAxis(address) {
		b.writeI24(toMilliNewtons(secondary))
	}
	b.endFrame(FuncForceDemand, true)
}

// PneumaticForceStatus polls measured cylinder forces.
func (b *Buffer) PneumaticForceStatus(address uint8) {
	b.beginFrame(address, FuncPneumaticForceStatus)
	b.endFrame(FuncPneumaticForceStatus, true)
}

// SetADCScanRate selects the load cell ADC scan rate code.
func (b *Buffer) SetADCScanRate(address uint8, rate uint8) {
	b.beginFrame(address, FuncSetADCScanRate)
	b.writeU8(rate)
	b.endFrame(FuncSetADCScanRate, true)
}

// SetADCChannelOffsetAndSensitivity calibrates one ADC channel.
func (b *Buffer) SetADCChannelOffsetAndSensitivity(address uint8, channel uint8, offset, sensitivity float32) {
	b.beginFrame(address, FuncSetADCChannelOffsetAndSensitivity)
	b.writeU8(channel)
	b.writeF32(offset)
	b.writeF32(sensitivity)
	b.endFrame(FuncSetADCChannelOffsetAndSensitivity, true)
}

// EraseILCApplication erases the application flash.
func (b *Buffer) EraseILCApplication(address uint8) {
	b.beginFrame(address, FuncEraseILCApplication)
	b.endFrame(FuncEraseILCApplication, true)
}

// WriteApplicationPage writes one application page starting at start.
func (b *Buffer) WriteApplicationPage(address uint8, start uint16, data []byte) error {
	if len(data) > ApplicationPageSize {
		return fmt.Errorf("application page of %d bytes exceeds %d", len(data), ApplicationPageSize)
	}
	b.beginFrame(address, FuncWriteApplicationPage)
	b.writeU16(start)
	b.writeU16(uint16(len(data)))
	for _, v := range data {
		b.writeU8(v)
	}
	b.endFrame(FuncWriteApplicationPage, true)
	return nil
}

// VerifyUserApplication asks the ILC to check its application CRC.
func (b *Buffer) VerifyUserApplication(address uint8) {
	b.beginFrame(address, FuncVerifyUserApplication)
	b.endFrame(FuncVerifyUserApplication, true)
}

// ResetServer reboots the ILC.
func (b *Buffer) ResetServer(address uint8) {
	b.beginFrame(address, FuncResetServer)
	b.endFrame(FuncResetServer, true)
}

// ReadCalibration reads the load cell calibration constants.
func (b *Buffer) ReadCalibration(address uint8) {
	b.beginFrame(address, FuncReadCalibration)
	b.endFrame(FuncReadCalibration, true)
}

// ReadDCAPressure reads the booster valve pressures.
func (b *Buffer) ReadDCAPressure(address uint8) {
	b.beginFrame(address, FuncReadDCAPressure)
	b.endFrame(FuncReadDCAPressure, true)
}

// ReportDCAID reads the booster valve mezzanine identity.
func (b *Buffer) ReportDCAID(address uint8) {
	b.beginFrame(address, FuncReportDCAID)
	b.endFrame(FuncReportDCAID, true)
}

// ReportDCAStatus reads the booster valve mezzanine status.
func (b *Buffer) ReportDCAStatus(address uint8) {
	b.beginFrame(address, FuncReportDCAStatus)
	b.endFrame(FuncReportDCAStatus, true)
}

// ReportLVDT reads the hardpoint monitor LVDTs.
func (b *Buffer) ReportLVDT(address uint8) {
	b.beginFrame(address, FuncReportLVDT)
	b.endFrame(FuncReportLVDT, true)
}

func toMilliNewtons(f float64) int32 {
	v := math.Round(f * ForceScale)
	if math.IsNaN(v) {
		return 0
	}
	if v > maxI24 {
		return maxI24
	}
	if v < minI24 {
		return minI24
	}
	return int32(v)
}
