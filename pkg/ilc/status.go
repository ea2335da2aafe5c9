// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import "strings"

// bitName pairs a status bit with its name.
type bitName struct {
	mask uint16
	name string
}

func describe(v uint16, bits []bitName) string {
	var names []string
	for _, b := range bits {
		if v&b.mask != 0 {
			names = append(names, b.name)
		}
	}
	if len(names) == 0 {
		return "OK"
	}
	return strings.Join(names, ",")
}

// PneumaticStatus is the status byte of ForceDemand and PneumaticForceStatus.
type PneumaticStatus uint8

const (
	PneumaticMajorFault             PneumaticStatus = 0x01
	PneumaticMinorFault             PneumaticStatus = 0x02
	PneumaticFaultOverride          PneumaticStatus = 0x04
	PneumaticMainCalibrationError   PneumaticStatus = 0x08
	PneumaticBackupCalibrationError PneumaticStatus = 0x10
	// 0x20 is reserved on force actuators.
	PneumaticMezzanineError            PneumaticStatus = 0x40
	PneumaticMezzanineBootloaderActive PneumaticStatus = 0x80
)

var pneumaticBits = []bitName{
	{0x01, "MajorFault"},
	{0x02, "MinorFault"},
	{0x04, "FaultOverride"},
	{0x08, "MainCalibrationError"},
	{0x10, "BackupCalibrationError"},
	{0x40, "MezzanineError"},
	{0x80, "MezzanineBootloaderActive"},
}

func (s PneumaticStatus) Has(b PneumaticStatus) bool { return s&b != 0 }
func (s PneumaticStatus) MajorFault() bool { return s.Has(PneumaticMajorFault) }
func (s PneumaticStatus) String() string { return describe(uint16(s), pneumaticBits) }

// HardpointStatus is the status byte of StepMotor and ElectromechanicalForceAndStatus.
type HardpointStatus uint8

const (
	HardpointMajorFault             HardpointStatus = 0x01
	HardpointMinorFault             HardpointStatus = 0x02
	HardpointFaultOverride          HardpointStatus = 0x04
	HardpointMainCalibrationError   HardpointStatus = 0x08
	HardpointBackupCalibrationError HardpointStatus = 0x10
	// 0x20 is reserved on hardpoints.
	HardpointLimitSwitch1Operated HardpointStatus = 0x40
	HardpointLimitSwitch2Operated HardpointStatus = 0x80
)

var hardpointBits = []bitName{
	{0x01, "MajorFault"},
	{0x02, "MinorFault"},
	{0x04, "FaultOverride"},
	{0x08, "MainCalibrationError"},
	{0x10, "BackupCalibrationError"},
	{0x40, "LimitSwitch1Operated"},
	{0x80, "LimitSwitch2Operated"},
}

func (s HardpointStatus) Has(b HardpointStatus) bool { return s&b != 0 }
func (s HardpointStatus) MajorFault() bool { return s.Has(HardpointMajorFault) }

// LimitSwitch reports whether either travel limit switch is operated.
func (s HardpointStatus) LimitSwitch() bool {
	return s.Has(HardpointLimitSwitch1Operated) || s.Has(HardpointLimitSwitch2Operated)
}
func (s HardpointStatus) String() string { return describe(uint16(s), hardpointBits) }

// ServerStatus is the status word of ReportServerStatus. Bits 0x0010..0x0080
// mean different things on each ILC type, so it is decoded with the type.
type ServerStatus uint16

const (
	ServerMajorFault    ServerStatus = 0x0001
	ServerMinorFault    ServerStatus = 0x0002
	ServerFaultOverride ServerStatus = 0x0008
)

var serverCommonBits = []bitName{
	{0x0001, "MajorFault"},
	{0x0002, "MinorFault"},
	{0x0008, "FaultOverride"},
}

var serverTypeBits = map[Type][]bitName{
	TypeForceActuator: {
		{0x0010, "MainCalibrationError"},
		{0x0020, "BackupCalibrationError"},
		{0x0040, "MezzanineError"},
		{0x0080, "MezzanineBootloaderActive"},
	},
	TypeHardpoint: {
		{0x0010, "MainCalibrationError"},
		{0x0020, "BackupCalibrationError"},
		{0x0040, "LimitSwitch1Operated"},
		{0x0080, "LimitSwitch2Operated"},
	},
	TypeHardpointMonitor: {
		{0x0010, "MezzanineError"},
		{0x0020, "MezzanineBootloaderActive"},
	},
}

func (s ServerStatus) MajorFault() bool { return s&ServerMajorFault != 0 }
func (s ServerStatus) MinorFault() bool { return s&ServerMinorFault != 0 }

// Describe names the raised bits as understood by an ILC of type t.
func (s ServerStatus) Describe(t Type) string {
	bits := append(append([]bitName{}, serverCommonBits...), serverTypeBits[t]...)
	return describe(uint16(s), bits)
}

// ServerFaults is the fault word of ReportServerStatus.
type ServerFaults uint16

var serverFaultCommonBits = []bitName{
	{0x0001, "UniqueIDCRCError"},
	{0x0002, "ApplicationTypeMismatch"},
	{0x0004, "ApplicationMissing"},
	{0x0008, "ApplicationCRCMismatch"},
	{0x0010, "OneWireMissing"},
	{0x0020, "OneWire1Mismatch"},
	{0x0040, "OneWire2Mismatch"},
	{0x0100, "WatchdogReset"},
	{0x0200, "BrownOut"},
	{0x0400, "EventTrapReset"},
}

var serverFaultTypeBits = map[Type][]bitName{
	TypeForceActuator: {
		{0x1000, "SSRPowerFault"},
		{0x2000, "AuxPowerFault"},
	},
	TypeHardpoint: {
		{0x0800, "MotorDriverFault"},
		{0x1000, "SSRPowerFault"},
		{0x2000, "AuxPowerFault"},
		{0x4000, "SMCPowerFault"},
	},
	TypeHardpointMonitor: {
		{0x1000, "SSRPowerFault"},
		{0x2000, "AuxPowerFault"},
	},
}

// Describe names the raised fault bits as understood by an ILC of type t.
func (f ServerFaults) Describe(t Type) string {
	bits := append(append([]bitName{}, serverFaultCommonBits...), serverFaultTypeBits[t]...)
	return describe(uint16(f), bits)
}

// DCAStatus is the status word of ReportDCAStatus.
type DCAStatus uint16

var dcaBits = []bitName{
	{0x0001, "MajorFault"},
	{0x0002, "MinorFault"},
	{0x0004, "FaultOverride"},
	{0x0008, "ApplicationMissing"},
	{0x0010, "ApplicationCRCMismatch"},
	{0x0100, "BootloaderActive"},
}

func (s DCAStatus) MajorFault() bool { return s&0x0001 != 0 }
func (s DCAStatus) String() string { return describe(uint16(s), dcaBits) }
