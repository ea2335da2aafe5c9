// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ilc implements the actuator wire protocol spoken to the Intelligent
// Load-cell Controllers (ILCs) through the FPGA FIFOs.
//
// Commands are Modbus-style frames (address, function, payload, CRC-16) batched
// per subnet into 16-bit FIFO words. Each word carries a tag in its top nibble and
// a data byte or a timing value in the rest. Responses come back per subnet as a
// 64-bit batch timestamp followed by frames, each terminated by four timestamp
// words tagged 0xB000.
package ilc

// Subnet layout
const (
	SubnetCount = 5
	// MaxAddress is reserved and terminates address iteration.
	MaxAddress = 255
	// HardpointSubnet carries the hardpoint and hardpoint monitor ILCs.
	HardpointSubnet = 5
	// SingleAxisLimit is the highest force actuator address with a single cylinder.
	SingleAxisLimit = 16
)

// Command FIFO word tags
const (
	TxWrite         = 0x1000
	TxFrameEnd      = 0x20DA
	TxTimestamp     = 0x3000
	TxWaitUs        = 0x4000
	TxWaitMs        = 0x5000
	TxWaitRx        = 0x6000
	TxIRQTrigger    = 0x7000
	TxWaitTrigger   = 0x8000
	TxWaitLongRx    = 0x9000
	txTimingMask    = 0x0FFF
	txMaxWaitRx     = txTimingMask
	txLongRxDivisor = 1000
)

// Response FIFO word tags
const (
	RxWrite     = 0x9000
	RxEndFrame  = 0xA000
	RxTimestamp = 0xB000
	TagMask     = 0xF000
	// TimestampWords is the number of words of a frame or batch timestamp.
	TimestampWords = 4
)

// FunctionCode is a Modbus function code understood by the ILCs.
type FunctionCode uint8

const (
	FuncReportServerID                    FunctionCode = 17
	FuncReportServerStatus                FunctionCode = 18
	FuncChangeMode                        FunctionCode = 65
	FuncStepMotor                         FunctionCode = 66
	FuncElectromechanicalForceAndStatus   FunctionCode = 67
	FuncSetBoostValveDCAGains             FunctionCode = 73
	FuncReadBoostValveDCAGains            FunctionCode = 74
	FuncForceDemand                       FunctionCode = 75
	FuncPneumaticForceStatus              FunctionCode = 76
	FuncSetADCScanRate                    FunctionCode = 80
	FuncSetADCChannelOffsetAndSensitivity FunctionCode = 81
	FuncEraseILCApplication               FunctionCode = 101
	FuncWriteApplicationPage              FunctionCode = 102
	FuncVerifyUserApplication             FunctionCode = 103
	FuncResetServer                       FunctionCode = 107
	FuncReadCalibration                   FunctionCode = 110
	FuncReadDCAPressure                   FunctionCode = 119
	FuncReportDCAID                       FunctionCode = 120
	FuncReportDCAStatus                   FunctionCode = 121
	FuncReportLVDT                        FunctionCode = 122
)

// ExceptionFlag marks an exception response in the function byte.
const ExceptionFlag = 0x80

var functionNames = map[FunctionCode]string{
	FuncReportServerID:                    "ReportServerID",
	FuncReportServerStatus:                "ReportServerStatus",
	FuncChangeMode:                        "ChangeMode",
	FuncStepMotor:                         "StepMotor",
	FuncElectromechanicalForceAndStatus:   "ElectromechanicalForceAndStatus",
	FuncSetBoostValveDCAGains:             "SetBoostValveDCAGains",
	FuncReadBoostValveDCAGains:            "ReadBoostValveDCAGains",
	FuncForceDemand:                       "ForceDemand",
	FuncPneumaticForceStatus:              "PneumaticForceStatus",
	FuncSetADCScanRate:                    "SetADCScanRate",
	FuncSetADCChannelOffsetAndSensitivity: "SetADCChannelOffsetAndSensitivity",
	FuncEraseILCApplication:               "EraseILCApplication",
	FuncWriteApplicationPage:              "WriteApplicationPage",
	FuncVerifyUserApplication:             "VerifyUserApplication",
	FuncResetServer:                       "ResetServer",
	FuncReadCalibration:                   "ReadCalibration",
	FuncReadDCAPressure:                   "ReadDCAPressure",
	FuncReportDCAID:                       "ReportDCAID",
	FuncReportDCAStatus:                   "ReportDCAStatus",
	FuncReportLVDT:                        "ReportLVDT",
}

// Known reports whether the code is in the ILC catalogue.
func (f FunctionCode) Known() bool {
	_, ok := functionNames[f]
	return ok
}

func (f FunctionCode) String() string {
	if name, ok := functionNames[f]; ok {
		return name
	}
	return "Unknown"
}

// Exception codes carried by exception responses.
const (
	ExceptionIllegalFunction  = 1
	ExceptionIllegalDataValue = 3
)

// Mode is an ILC operating mode.
type Mode uint16

const (
	ModeStandby Mode = iota
	ModeDisabled
	ModeEnabled
	ModeFirmwareUpdate
	ModeFault
	ModeClearFaults
)

func (m Mode) String() string {
	switch m {
	case ModeStandby:
		return "Standby"
	case ModeDisabled:
		return "Disabled"
	case ModeEnabled:
		return "Enabled"
	case ModeFirmwareUpdate:
		return "FirmwareUpdate"
	case ModeFault:
		return "Fault"
	case ModeClearFaults:
		return "ClearFaults"
	default:
		return "Unknown"
	}
}

// ForceScale converts newtons to the millinewton units of ForceDemand.
const ForceScale = 1000.0

// Application page size of WriteApplicationPage.
const ApplicationPageSize = 192

// Force demand setpoints are signed 24-bit.
const (
	maxI24 = 1<<23 - 1
	minI24 = -1 << 23
)
