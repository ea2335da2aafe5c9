// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import "github.com/Thermoquad/mirrorsupport/pkg/actuator"

// ForceActuatorState is the measured state of one force actuator. Only the
// response parser writes it.
type ForceActuatorState struct {
	Primary   float32
	Secondary float32
	X, Y, Z   float32
	Status    PneumaticStatus
	Timestamp float64
}

// HardpointState is the measured state of one hardpoint.
type HardpointState struct {
	Encoder   int32
	Force     float32
	Status    HardpointStatus
	Timestamp float64
}

// MonitorState is the measured state of one hardpoint monitor.
type MonitorState struct {
	BreakawayLVDT    float32
	DisplacementLVDT float32
	// Pressure holds primary push, primary pull, secondary pull, secondary push.
	Pressure  [4]float32
	DCAStatus DCAStatus
	Timestamp float64
}

// ServerID is the decoded ReportServerID response.
type ServerID struct {
	UniqueID         uint64
	ApplicationType  uint8
	NetworkNodeType  uint8
	SelectedOptions  uint8
	NetworkNodeOpts  uint8
	MajorRevision    uint8
	MinorRevision    uint8
	FirmwareName     string
	FirmwareAccepted bool
}

// DCAID is the decoded ReportDCAID response.
type DCAID struct {
	UniqueID      uint64
	FirmwareType  uint8
	MajorRevision uint8
	MinorRevision uint8
}

// Info is the per-ILC housekeeping state.
type Info struct {
	ID           ServerID
	Mode         Mode
	Status       ServerStatus
	Faults       ServerFaults
	Calibration  [24]float32
	BoostGains   [2]float32
	ADCScanRate  uint8
	VerifyStatus uint16
	DCA          DCAID
	DCAStatus    DCAStatus
	IDReported   bool
	Responded    bool
}

// State holds everything the parser decodes, indexed like the actuator table.
type State struct {
	ForceActuators []ForceActuatorState
	Hardpoints     []HardpointState
	Monitors       []MonitorState

	ForceActuatorInfo []Info
	HardpointInfo     []Info
	MonitorInfo       []Info

	// BatchTimestamp is the last response batch timestamp per subnet, in seconds.
	BatchTimestamp [SubnetCount]float64
}

// NewState sizes the state for a table.
func NewState(t *actuator.Table) *State {
	return &State{
		ForceActuators:    make([]ForceActuatorState, len(t.ForceActuators)),
		Hardpoints:        make([]HardpointState, len(t.Hardpoints)),
		Monitors:          make([]MonitorState, len(t.Monitors)),
		ForceActuatorInfo: make([]Info, len(t.ForceActuators)),
		HardpointInfo:     make([]Info, len(t.Hardpoints)),
		MonitorInfo:       make([]Info, len(t.Monitors)),
	}
}

// InfoFor returns the housekeeping slot of an entry, or nil.
func (s *State) InfoFor(e Entry) *Info {
	i := int(e.DataIndex)
	switch e.Type {
	case TypeForceActuator:
		if i >= 0 && i < len(s.ForceActuatorInfo) {
			return &s.ForceActuatorInfo[i]
		}
	case TypeHardpoint:
		if i >= 0 && i < len(s.HardpointInfo) {
			return &s.HardpointInfo[i]
		}
	case TypeHardpointMonitor:
		if i >= 0 && i < len(s.MonitorInfo) {
			return &s.MonitorInfo[i]
		}
	}
	return nil
}

// HardpointStates returns the measured hardpoint states.
func (s *State) HardpointStates() []HardpointState { return s.Hardpoints }

// HardpointForces returns the measured hardpoint forces.
func (s *State) HardpointForces() []float64 {
	out := make([]float64, len(s.Hardpoints))
	for i, hp := range s.Hardpoints {
		out[i] = float64(hp.Force)
	}
	return out
}

// FirmwareMismatches counts the ILCs whose reported firmware was rejected.
func (s *State) FirmwareMismatches() int {
	n := 0
	for _, infos := range [][]Info{s.ForceActuatorInfo, s.HardpointInfo, s.MonitorInfo} {
		for i := range infos {
			if infos[i].IDReported && !infos[i].ID.FirmwareAccepted {
				n++
			}
		}
	}
	return n
}

// HardpointEncoders returns the measured hardpoint encoder positions.
func (s *State) HardpointEncoders() []int32 {
	out := make([]int32, len(s.Hardpoints))
	for i, hp := range s.Hardpoints {
		out[i] = hp.Encoder
	}
	return out
}
