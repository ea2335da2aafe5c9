// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safety

import "fmt"

// FaultCode identifies one safety condition. NoFault means nothing is latched.
type FaultCode uint8

const (
	NoFault FaultCode = iota
	ILCCommunicationTimeout
	ILCFirmwareMismatch
	ILCFault
	ForceActuatorFollowingError
	HardpointMeasuredForce
	HardpointAirPressure
	HardpointLimitSwitch
	MirrorMoments
	NearNeighbor
	FarNeighbor
	MirrorWeight
	StaticForceClipping
	ElevationForceClipping
	AzimuthForceClipping
	ThermalForceClipping
	BalanceForceClipping
	AccelerationForceClipping
	VelocityForceClipping
	ActiveOpticForceClipping
	OffsetForceClipping
	AppliedForceClipping
	RaiseTimeout
	LowerTimeout
	faultCodeCount
)

var faultCodeNames = [faultCodeCount]string{
	NoFault:                     "NoFault",
	ILCCommunicationTimeout:     "ILCCommunicationTimeout",
	ILCFirmwareMismatch:         "ILCFirmwareMismatch",
	ILCFault:                    "ILCFault",
	ForceActuatorFollowingError: "ForceActuatorFollowingError",
	HardpointMeasuredForce:      "HardpointMeasuredForce",
	HardpointAirPressure:        "HardpointAirPressure",
	HardpointLimitSwitch:        "HardpointLimitSwitch",
	MirrorMoments:               "MirrorMoments",
	NearNeighbor:                "NearNeighbor",
	FarNeighbor:                 "FarNeighbor",
	MirrorWeight:                "MirrorWeight",
	StaticForceClipping:         "StaticForceClipping",
	ElevationForceClipping:      "ElevationForceClipping",
	AzimuthForceClipping:        "AzimuthForceClipping",
	ThermalForceClipping:        "ThermalForceClipping",
	BalanceForceClipping:        "BalanceForceClipping",
	AccelerationForceClipping:   "AccelerationForceClipping",
	VelocityForceClipping:       "VelocityForceClipping",
	ActiveOpticForceClipping:    "ActiveOpticForceClipping",
	OffsetForceClipping:         "OffsetForceClipping",
	AppliedForceClipping:        "AppliedForceClipping",
	RaiseTimeout:                "RaiseTimeout",
	LowerTimeout:                "LowerTimeout",
}

func (c FaultCode) String() string {
	if c < faultCodeCount {
		return faultCodeNames[c]
	}
	return fmt.Sprintf("FaultCode(%d)", uint8(c))
}

// ParseFaultCode looks a fault code up by name.
func ParseFaultCode(name string) (FaultCode, error) {
	for i, n := range faultCodeNames {
		if n == name {
			return FaultCode(i), nil
		}
	}
	return NoFault, fmt.Errorf("unknown fault code %q", name)
}

// FaultCodes lists every fault code except NoFault.
func FaultCodes() []FaultCode {
	out := make([]FaultCode, 0, faultCodeCount-1)
	for c := NoFault + 1; c < faultCodeCount; c++ {
		out = append(out, c)
	}
	return out
}

// State is the operating state the host state machine moves between.
type State uint8

const (
	StandbyState State = iota
	ParkedState
	RaisingState
	ActiveState
	LoweringState
	LoweringFaultState
)

var stateNames = map[State]string{
	StandbyState:       "Standby",
	ParkedState:        "Parked",
	RaisingState:       "Raising",
	ActiveState:        "Active",
	LoweringState:      "Lowering",
	LoweringFaultState: "LoweringFault",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}
