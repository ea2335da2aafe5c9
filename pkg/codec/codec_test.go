// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package codec

import (
	"errors"
	"math"
	"testing"
)

// ============================================================================
// Integer Round Trip
// ============================================================================

func TestIntegerRoundTrip(t *testing.T) {
	buf := make([]byte, 64)

	t.Run("u8", func(t *testing.T) {
		for _, v := range []uint8{0, 1, 0x7F, 0x80, math.MaxUint8} {
			w, r := 0, 0
			if err := SetU8(buf, &w, v); err != nil {
				t.Fatalf("SetU8(%d) error = %v", v, err)
			}
			got, err := GetU8(buf, &r)
			if err != nil || got != v {
				t.Errorf("GetU8 = %d, %v, want %d", got, err, v)
			}
			if w != 1 || r != 1 {
				t.Errorf("cursor = %d/%d, want 1", w, r)
			}
		}
	})

	t.Run("i8", func(t *testing.T) {
		for _, v := range []int8{0, -1, math.MaxInt8, math.MinInt8} {
			w, r := 0, 0
			_ = SetI8(buf, &w, v)
			got, err := GetI8(buf, &r)
			if err != nil || got != v {
				t.Errorf("GetI8 = %d, %v, want %d", got, err, v)
			}
		}
	})

	t.Run("u16/i16", func(t *testing.T) {
		for _, v := range []int16{0, -1, math.MaxInt16, math.MinInt16} {
			w, r := 0, 0
			_ = SetI16(buf, &w, v)
			got, err := GetI16(buf, &r)
			if err != nil || got != v {
				t.Errorf("GetI16 = %d, %v, want %d", got, err, v)
			}
		}
		w, r := 0, 0
		_ = SetU16(buf, &w, 0xBEEF)
		if buf[0] != 0xBE || buf[1] != 0xEF {
			t.Errorf("SetU16 bytes = % X, want BE EF", buf[:2])
		}
		if got, _ := GetU16(buf, &r); got != 0xBEEF {
			t.Errorf("GetU16 = %#x, want 0xBEEF", got)
		}
	})

	t.Run("u32/i32", func(t *testing.T) {
		for _, v := range []int32{0, -1, math.MaxInt32, math.MinInt32} {
			w, r := 0, 0
			_ = SetI32(buf, &w, v)
			got, err := GetI32(buf, &r)
			if err != nil || got != v {
				t.Errorf("GetI32 = %d, %v, want %d", got, err, v)
			}
		}
		for _, v := range []uint32{0, 1, math.MaxUint32} {
			w, r := 0, 0
			_ = SetU32(buf, &w, v)
			if got, _ := GetU32(buf, &r); got != v {
				t.Errorf("GetU32 = %d, want %d", got, v)
			}
		}
	})

	t.Run("u64/i64", func(t *testing.T) {
		for _, v := range []int64{0, -1, math.MaxInt64, math.MinInt64} {
			w, r := 0, 0
			_ = SetI64(buf, &w, v)
			got, err := GetI64(buf, &r)
			if err != nil || got != v {
				t.Errorf("GetI64 = %d, %v, want %d", got, err, v)
			}
			if w != 8 || r != 8 {
				t.Errorf("cursor = %d/%d, want 8", w, r)
			}
		}
		w, r := 0, 0
		_ = SetU64(buf, &w, math.MaxUint64)
		if got, _ := GetU64(buf, &r); got != math.MaxUint64 {
			t.Errorf("GetU64 = %d, want max", got)
		}
	})
}

// ============================================================================
// Float and String Round Trip
// ============================================================================

func TestFloatRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	for _, v := range []float32{0, -1, 3.25, math.MaxFloat32, math.SmallestNonzeroFloat32} {
		w, r := 0, 0
		_ = SetFloat32(buf, &w, v)
		got, err := GetFloat32(buf, &r)
		if err != nil || got != v {
			t.Errorf("GetFloat32 = %v, %v, want %v", got, err, v)
		}
	}
	for _, v := range []float64{0, -1, 1234.5678, math.MaxFloat64, -math.SmallestNonzeroFloat64} {
		w, r := 0, 0
		_ = SetFloat64(buf, &w, v)
		got, err := GetFloat64(buf, &r)
		if err != nil || got != v {
			t.Errorf("GetFloat64 = %v, %v, want %v", got, err, v)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	tests := []string{"", "a", "ForceActuatorSettings", "ü-ö"}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			buf := make([]byte, StringSize(s))
			w, r := 0, 0
			if err := SetString(buf, &w, s); err != nil {
				t.Fatalf("SetString error = %v", err)
			}
			if w != len(buf) {
				t.Errorf("write cursor = %d, want %d", w, len(buf))
			}
			got, err := GetString(buf, &r)
			if err != nil || got != s {
				t.Errorf("GetString = %q, %v, want %q", got, err, s)
			}
		})
	}
}

func TestStringWireFormat(t *testing.T) {
	buf := make([]byte, 7)
	idx := 0
	if err := SetString(buf, &idx, "abc"); err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0, 0, 3, 'a', 'b', 'c'}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("bytes = % X, want % X", buf, want)
		}
	}
}

// ============================================================================
// Bounds Checks
// ============================================================================

func TestBoundsChecks(t *testing.T) {
	buf := make([]byte, 3)

	idx := 0
	if _, err := GetU32(buf, &idx); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("GetU32 error = %v, want ErrShortBuffer", err)
	}
	if idx != 0 {
		t.Errorf("cursor moved to %d on error", idx)
	}

	idx = 2
	if err := SetU16(buf, &idx, 1); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("SetU16 error = %v, want ErrShortBuffer", err)
	}

	idx = -1
	if _, err := GetU8(buf, &idx); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("GetU8 negative cursor error = %v, want ErrShortBuffer", err)
	}

	if _, err := GetU8(buf, nil); !errors.Is(err, ErrNilCursor) {
		t.Errorf("GetU8 nil cursor error = %v, want ErrNilCursor", err)
	}

	idx = 0
	if err := SetString(buf, &idx, "abcd"); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("SetString error = %v, want ErrShortBuffer", err)
	}
	if idx != 0 {
		t.Errorf("SetString moved cursor to %d on error", idx)
	}
}

func TestGetStringTruncated(t *testing.T) {
	buf := []byte{0, 0, 0, 10, 'x'}
	idx := 0
	if _, err := GetString(buf, &idx); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("error = %v, want ErrShortBuffer", err)
	}
	if idx != 0 {
		t.Errorf("cursor = %d, want 0", idx)
	}

	neg := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	idx = 0
	if _, err := GetString(neg, &idx); !errors.Is(err, ErrNegativeLength) {
		t.Errorf("error = %v, want ErrNegativeLength", err)
	}
}
