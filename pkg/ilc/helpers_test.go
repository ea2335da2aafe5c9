// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
)

func testTable(t testing.TB) *actuator.Table {
	t.Helper()
	fas, hps, mons := actuator.GenerateLayout(actuator.DefaultLayoutOptions())
	table, err := actuator.NewTable(fas, hps, mons, 1.1, 2.5)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return table
}

// recorder collects warnings.
type recorder struct {
	warnings []Warning
}

func (r *recorder) ILCWarning(w Warning) { r.warnings = append(r.warnings, w) }

func (r *recorder) count(f WarningFlag) int {
	n := 0
	for _, w := range r.warnings {
		if w.Flags.Has(f) {
			n++
		}
	}
	return n
}

func f32bytes(vs ...float32) []byte {
	out := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		out = binary.BigEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func forceStatusPayload(status uint8, forces ...float32) []byte {
	return append([]byte{status}, f32bytes(forces...)...)
}

func hardpointPayload(status uint8, encoder int32, force float32) []byte {
	out := []byte{status}
	out = binary.BigEndian.AppendUint32(out, uint32(encoder))
	return append(out, f32bytes(force)...)
}

func serverIDPayload(uid uint64, major, minor uint8, name string) []byte {
	body := []byte{
		uint8(uid >> 40), uint8(uid >> 32), uint8(uid >> 24), uint8(uid >> 16), uint8(uid >> 8), uint8(uid),
		1, 2, 3, 4, major, minor,
	}
	body = append(body, name...)
	return append([]byte{uint8(len(body))}, body...)
}
