// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/mirrorsupport/pkg/codec"
)

// FormatFrame formats a response frame into a human-readable string.
func FormatFrame(subnet uint8, f RawFrame, e Entry) string {
	crc := "OK"
	if !f.CRCValid() {
		crc = "BAD"
	}
	fn := f.Function()
	name := FormatFunction(fn)

	result := fmt.Sprintf("[%12.6f] %s (%d) ilc=%d:%d %s#%d len=%d crc=%s\n",
		f.Timestamp, name, fn&^ExceptionFlag, subnet, f.Address(), e.Type, e.ActuatorID, len(f.Payload()), crc)
	if crc == "OK" {
		result += FormatPayload(FunctionCode(fn), e.Type, f.Address(), f.Payload())
	}
	return result
}

// FormatFunction names a function byte, including exception responses.
func FormatFunction(fn uint8) string {
	if fn&ExceptionFlag != 0 {
		return "EXCEPTION " + FunctionCode(fn&^ExceptionFlag).String()
	}
	return FunctionCode(fn).String()
}

// FormatPayload decodes a reply payload for display.
func FormatPayload(fn FunctionCode, t Type, address uint8, payload []byte) string {
	var b strings.Builder
	idx := 0
	f32 := func() float32 { return readF32(payload, &idx) }

	if uint8(fn)&ExceptionFlag != 0 {
		if len(payload) == 1 {
			fmt.Fprintf(&b, "  Exception: %d (%s)\n", payload[0], exceptionWarning(payload[0]))
		}
		return b.String()
	}

	switch fn {
	case FuncReportServerID:
		if len(payload) < 13 {
			break
		}
		idx = 1
		uid := readU48(payload, &idx)
		fmt.Fprintf(&b, "  Unique ID: %012X\n", uid)
		fmt.Fprintf(&b, "  App Type: %d  Node Type: %d  Options: %02X/%02X\n",
			payload[7], payload[8], payload[9], payload[10])
		fmt.Fprintf(&b, "  Firmware: %s %q\n", FirmwareVersion(payload[11], payload[12]), string(payload[13:]))
	case FuncReportServerStatus:
		if len(payload) != 5 {
			break
		}
		mode, _ := codec.GetU8(payload, &idx)
		status, _ := codec.GetU16(payload, &idx)
		faults, _ := codec.GetU16(payload, &idx)
		fmt.Fprintf(&b, "  Mode: %s\n", Mode(mode))
		fmt.Fprintf(&b, "  Status: %s\n", ServerStatus(status).Describe(t))
		fmt.Fprintf(&b, "  Faults: %s\n", ServerFaults(faults).Describe(t))
	case FuncChangeMode:
		mode, err := codec.GetU16(payload, &idx)
		if err == nil {
			fmt.Fprintf(&b, "  Mode: %s\n", Mode(mode))
		}
	case FuncForceDemand, FuncPneumaticForceStatus:
		if len(payload) != 5 && len(payload) != 9 {
			break
		}
		status, _ := codec.GetU8(payload, &idx)
		fmt.Fprintf(&b, "  Status: %s\n", PneumaticStatus(status))
		fmt.Fprintf(&b, "  Primary: %.3f N\n", f32())
		if IsDualAxis(address) && len(payload) == 9 {
			fmt.Fprintf(&b, "  Secondary: %.3f N\n", f32())
		}
	case FuncStepMotor, FuncElectromechanicalForceAndStatus:
		if len(payload) != 9 {
			break
		}
		status, _ := codec.GetU8(payload, &idx)
		encoder, _ := codec.GetI32(payload, &idx)
		fmt.Fprintf(&b, "  Status: %s\n", HardpointStatus(status))
		fmt.Fprintf(&b, "  Encoder: %d\n", encoder)
		fmt.Fprintf(&b, "  Force: %.3f N\n", f32())
	case FuncReadBoostValveDCAGains:
		if len(payload) == 8 {
			fmt.Fprintf(&b, "  Gains: primary=%.4f secondary=%.4f\n", f32(), f32())
		}
	case FuncReadDCAPressure:
		if len(payload) == 16 {
			fmt.Fprintf(&b, "  Pressure: %.2f %.2f %.2f %.2f\n", f32(), f32(), f32(), f32())
		}
	case FuncReportLVDT:
		if len(payload) == 8 {
			fmt.Fprintf(&b, "  LVDT: breakaway=%.4f displacement=%.4f\n", f32(), f32())
		}
	case FuncReportDCAStatus:
		if v, err := codec.GetU16(payload, &idx); err == nil {
			fmt.Fprintf(&b, "  DCA Status: %s\n", DCAStatus(v))
		}
	case FuncReportDCAID:
		if len(payload) == 9 {
			uid := readU48(payload, &idx)
			fmt.Fprintf(&b, "  DCA ID: %012X firmware type %d rev %d.%d\n", uid, payload[6], payload[7], payload[8])
		}
	case FuncSetADCScanRate:
		if len(payload) == 1 {
			fmt.Fprintf(&b, "  Scan Rate: %d\n", payload[0])
		}
	case FuncVerifyUserApplication:
		if v, err := codec.GetU16(payload, &idx); err == nil {
			fmt.Fprintf(&b, "  Verify Status: 0x%04X\n", v)
		}
	case FuncReadCalibration:
		if len(payload) == 96 {
			for row := 0; row < 6; row++ {
				fmt.Fprintf(&b, "  %-20s %.4f %.4f %.4f %.4f\n", calibrationRows[row], f32(), f32(), f32(), f32())
			}
		}
	}
	return b.String()
}

var calibrationRows = [6]string{
	"Main ADC K:", "Main Offset:", "Main Sensitivity:",
	"Backup ADC K:", "Backup Offset:", "Backup Sensitivity:",
}
