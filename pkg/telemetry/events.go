// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry publishes control loop state to websocket subscribers as
// CBOR encoded events. Unchanged values are not republished.
package telemetry

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind identifies an event.
type Kind uint8

const (
	KindMode Kind = iota + 1
	KindErrorCode
	KindILCWarning
	KindForceComponent
	KindMirrorForces
	KindRaiseProgress
	KindILCStatistics
	KindHardpoints
)

func (k Kind) String() string {
	switch k {
	case KindMode:
		return "MODE"
	case KindErrorCode:
		return "ERROR_CODE"
	case KindILCWarning:
		return "ILC_WARNING"
	case KindForceComponent:
		return "FORCE_COMPONENT"
	case KindMirrorForces:
		return "MIRROR_FORCES"
	case KindRaiseProgress:
		return "RAISE_PROGRESS"
	case KindILCStatistics:
		return "ILC_STATISTICS"
	case KindHardpoints:
		return "HARDPOINTS"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Envelope is the wire form of every event.
type Envelope struct {
	Kind Kind            `cbor:"1,keyasint"`
	Key  string          `cbor:"2,keyasint,omitempty"`
	Time float64         `cbor:"3,keyasint"`
	Data cbor.RawMessage `cbor:"4,keyasint"`
}

// ModeEvent carries the operating mode.
type ModeEvent struct {
	Mode string `cbor:"1,keyasint"`
}

// ErrorCodeEvent carries the latched safety fault.
type ErrorCodeEvent struct {
	Code   uint8  `cbor:"1,keyasint"`
	Name   string `cbor:"2,keyasint"`
	Report string `cbor:"3,keyasint,omitempty"`
}

// ILCWarningEvent carries the warning causes raised for one ILC in the last
// cycle. An event with no flags clears the previous one.
type ILCWarningEvent struct {
	ActuatorID int32    `cbor:"1,keyasint"`
	Subnet     uint8    `cbor:"2,keyasint"`
	Address    uint8    `cbor:"3,keyasint"`
	Function   string   `cbor:"4,keyasint,omitempty"`
	Flags      []string `cbor:"5,keyasint,omitempty"`
	Any        bool     `cbor:"6,keyasint"`
}

// ForceComponentEvent summarises one force component.
type ForceComponentEvent struct {
	Name          string  `cbor:"1,keyasint"`
	State         string  `cbor:"2,keyasint"`
	Clipped       int     `cbor:"3,keyasint"`
	MaxApplied    float64 `cbor:"4,keyasint"`
	MaxPreclipped float64 `cbor:"5,keyasint"`
}

// MirrorForcesEvent carries Fx, Fy, Fz, Mx, My, Mz and the force magnitude
// before and after clipping.
type MirrorForcesEvent struct {
	Preclipped [7]float64 `cbor:"1,keyasint"`
	Applied    [7]float64 `cbor:"2,keyasint"`
}

// RaiseProgressEvent carries the raise or lower progress.
type RaiseProgressEvent struct {
	Support    float64 `cbor:"1,keyasint"`
	Raising    bool    `cbor:"2,keyasint"`
	Lowering   bool    `cbor:"3,keyasint"`
	Paused     bool    `cbor:"4,keyasint"`
	Stalled    bool    `cbor:"5,keyasint"`
	WaitingAir bool    `cbor:"6,keyasint"`
	Remaining  float64 `cbor:"7,keyasint"`
}

// ILCStatisticsEvent carries the frame and warning counters.
type ILCStatisticsEvent struct {
	TotalFrames uint64            `cbor:"1,keyasint"`
	ValidFrames uint64            `cbor:"2,keyasint"`
	Warnings    map[string]uint64 `cbor:"3,keyasint,omitempty"`
	FrameRate   float64           `cbor:"4,keyasint"`
	WarningRate float64           `cbor:"5,keyasint"`
}

// HardpointsEvent carries the hardpoint encoders, forces and modes.
type HardpointsEvent struct {
	Encoders []int32   `cbor:"1,keyasint"`
	Forces   []float64 `cbor:"2,keyasint"`
	Modes    []string  `cbor:"3,keyasint"`
}

// DecodeEvent decodes an envelope and its typed payload.
func DecodeEvent(data []byte) (Envelope, any, error) {
	var env Envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return env, nil, fmt.Errorf("decode envelope: %w", err)
	}
	var v any
	switch env.Kind {
	case KindMode:
		v = &ModeEvent{}
	case KindErrorCode:
		v = &ErrorCodeEvent{}
	case KindILCWarning:
		v = &ILCWarningEvent{}
	case KindForceComponent:
		v = &ForceComponentEvent{}
	case KindMirrorForces:
		v = &MirrorForcesEvent{}
	case KindRaiseProgress:
		v = &RaiseProgressEvent{}
	case KindILCStatistics:
		v = &ILCStatisticsEvent{}
	case KindHardpoints:
		v = &HardpointsEvent{}
	default:
		return env, nil, fmt.Errorf("unknown event kind %d", uint8(env.Kind))
	}
	if err := cbor.Unmarshal(env.Data, v); err != nil {
		return env, nil, fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return env, v, nil
}
