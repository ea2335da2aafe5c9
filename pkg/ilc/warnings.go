// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import (
	"fmt"

	"github.com/Thermoquad/mirrorsupport/pkg/flags"
)

// WarningFlag is one protocol level warning cause.
type WarningFlag uint8

const (
	WarnResponseTimeout WarningFlag = iota
	WarnInvalidCRC
	WarnIllegalFunction
	WarnIllegalDataValue
	WarnInvalidLength
	WarnUnknownSubnet
	WarnUnknownAddress
	WarnUnknownFunction
	WarnUnknownProblem
	warningFlagCount
)

var warningNames = [...]string{
	"ResponseTimeout",
	"InvalidCRC",
	"IllegalFunction",
	"IllegalDataValue",
	"InvalidLength",
	"UnknownSubnet",
	"UnknownAddress",
	"UnknownFunction",
	"UnknownProblem",
}

func (f WarningFlag) String() string {
	if f < warningFlagCount {
		return warningNames[f]
	}
	return fmt.Sprintf("WarningFlag(%d)", uint8(f))
}

// AllWarningFlags lists every warning cause in order.
func AllWarningFlags() []WarningFlag {
	out := make([]WarningFlag, warningFlagCount)
	for i := range out {
		out[i] = WarningFlag(i)
	}
	return out
}

// Warning is one protocol warning event. Exactly one flag is raised.
type Warning struct {
	Timestamp  float64
	ActuatorID int32
	Subnet     uint8
	Address    uint8
	Function   FunctionCode
	Flags      flags.Set[WarningFlag]
}

func newWarning(ts float64, id int32, key Key, fn FunctionCode, f WarningFlag) Warning {
	return Warning{
		Timestamp:  ts,
		ActuatorID: id,
		Subnet:     key.Subnet,
		Address:    key.Address,
		Function:   fn,
		Flags:      flags.Of(f),
	}
}

// Cause returns the raised flag.
func (w Warning) Cause() WarningFlag {
	fs := w.Flags.Flags()
	if len(fs) == 0 {
		return warningFlagCount
	}
	return fs[0]
}

func (w Warning) String() string {
	return fmt.Sprintf("%s actuator=%d ilc=%d:%d function=%s ts=%.6f",
		w.Flags, w.ActuatorID, w.Subnet, w.Address, w.Function, w.Timestamp)
}

// WarningSink receives protocol warnings as they are raised.
type WarningSink interface {
	ILCWarning(w Warning)
}

// WarningFunc adapts a function to WarningSink.
type WarningFunc func(w Warning)

func (f WarningFunc) ILCWarning(w Warning) { f(w) }

type nopSink struct{}

func (nopSink) ILCWarning(Warning) {}

// exceptionWarning maps a Modbus exception code to its warning.
func exceptionWarning(code uint8) WarningFlag {
	switch code {
	case ExceptionIllegalFunction:
		return WarnIllegalFunction
	case ExceptionIllegalDataValue:
		return WarnIllegalDataValue
	default:
		return WarnUnknownProblem
	}
}
