// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package codec reads and writes primitive values in a byte buffer at a cursor.
//
// Integers are big-endian. Floats are copied in native byte order. Strings are a
// big-endian int32 length followed by the raw bytes, with no terminator.
// Every accessor checks bounds and leaves the cursor untouched on error.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrShortBuffer is returned when a read or write would run past the buffer.
	ErrShortBuffer = errors.New("codec: short buffer")
	// ErrNegativeLength is returned when a decoded string length is negative.
	ErrNegativeLength = errors.New("codec: negative string length")
	// ErrNilCursor is returned when the cursor pointer is nil.
	ErrNilCursor = errors.New("codec: nil cursor")
)

func span(buf []byte, idx *int, n int) ([]byte, error) {
	if idx == nil {
		return nil, ErrNilCursor
	}
	if *idx < 0 || n > len(buf)-*idx {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, buffer is %d", ErrShortBuffer, n, *idx, len(buf))
	}
	b := buf[*idx : *idx+n]
	*idx += n
	return b, nil
}

// GetU8 reads an unsigned byte.
func GetU8(buf []byte, idx *int) (uint8, error) {
	b, err := span(buf, idx, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// GetI8 reads a signed byte.
func GetI8(buf []byte, idx *int) (int8, error) {
	v, err := GetU8(buf, idx)
	return int8(v), err
}

// GetU16 reads a big-endian uint16.
func GetU16(buf []byte, idx *int) (uint16, error) {
	b, err := span(buf, idx, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// GetI16 reads a big-endian int16.
func GetI16(buf []byte, idx *int) (int16, error) {
	v, err := GetU16(buf, idx)
	return int16(v), err
}

// GetU32 reads a big-endian uint32.
func GetU32(buf []byte, idx *int) (uint32, error) {
	b, err := span(buf, idx, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// GetI32 reads a big-endian int32.
func GetI32(buf []byte, idx *int) (int32, error) {
	v, err := GetU32(buf, idx)
	return int32(v), err
}

// GetU64 reads a big-endian uint64.
func GetU64(buf []byte, idx *int) (uint64, error) {
	b, err := span(buf, idx, 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// GetI64 reads a big-endian int64.
func GetI64(buf []byte, idx *int) (int64, error) {
	v, err := GetU64(buf, idx)
	return int64(v), err
}

// GetFloat32 reads a float32 stored in native byte order.
func GetFloat32(buf []byte, idx *int) (float32, error) {
	b, err := span(buf, idx, 4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.NativeEndian.Uint32(b)), nil
}

// GetFloat64 reads a float64 stored in native byte order.
func GetFloat64(buf []byte, idx *int) (float64, error) {
	b, err := span(buf, idx, 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.NativeEndian.Uint64(b)), nil
}

// GetString reads an int32 length prefix and that many bytes.
func GetString(buf []byte, idx *int) (string, error) {
	if idx == nil {
		return "", ErrNilCursor
	}
	start := *idx
	n, err := GetI32(buf, idx)
	if err != nil {
		return "", err
	}
	if n < 0 {
		*idx = start
		return "", fmt.Errorf("%w: %d at offset %d", ErrNegativeLength, n, start)
	}
	b, err := span(buf, idx, int(n))
	if err != nil {
		*idx = start
		return "", err
	}
	return string(b), nil
}

// SetU8 writes an unsigned byte.
func SetU8(buf []byte, idx *int, v uint8) error {
	b, err := span(buf, idx, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// SetI8 writes a signed byte.
func SetI8(buf []byte, idx *int, v int8) error {
	return SetU8(buf, idx, uint8(v))
}

// SetU16 writes a big-endian uint16.
func SetU16(buf []byte, idx *int, v uint16) error {
	b, err := span(buf, idx, 2)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b, v)
	return nil
}

// SetI16 writes a big-endian int16.
func SetI16(buf []byte, idx *int, v int16) error {
	return SetU16(buf, idx, uint16(v))
}

// SetU32 writes a big-endian uint32.
func SetU32(buf []byte, idx *int, v uint32) error {
	b, err := span(buf, idx, 4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, v)
	return nil
}

// SetI32 writes a big-endian int32.
func SetI32(buf []byte, idx *int, v int32) error {
	return SetU32(buf, idx, uint32(v))
}

// SetU64 writes a big-endian uint64.
func SetU64(buf []byte, idx *int, v uint64) error {
	b, err := span(buf, idx, 8)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, v)
	return nil
}

// SetI64 writes a big-endian int64.
func SetI64(buf []byte, idx *int, v int64) error {
	return SetU64(buf, idx, uint64(v))
}

// SetFloat32 writes a float32 in native byte order.
func SetFloat32(buf []byte, idx *int, v float32) error {
	b, err := span(buf, idx, 4)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint32(b, math.Float32bits(v))
	return nil
}

// SetFloat64 writes a float64 in native byte order.
func SetFloat64(buf []byte, idx *int, v float64) error {
	b, err := span(buf, idx, 8)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint64(b, math.Float64bits(v))
	return nil
}

// SetString writes an int32 length prefix followed by the bytes of s.
func SetString(buf []byte, idx *int, s string) error {
	if idx == nil {
		return ErrNilCursor
	}
	if len(s) > math.MaxInt32 {
		return fmt.Errorf("codec: string of %d bytes does not fit an int32 length", len(s))
	}
	if *idx < 0 || 4+len(s) > len(buf)-*idx {
		return fmt.Errorf("%w: need %d bytes at offset %d, buffer is %d", ErrShortBuffer, 4+len(s), *idx, len(buf))
	}
	if err := SetI32(buf, idx, int32(len(s))); err != nil {
		return err
	}
	b, err := span(buf, idx, len(s))
	if err != nil {
		return err
	}
	copy(b, s)
	return nil
}

// StringSize returns the encoded size of s.
func StringSize(s string) int {
	return 4 + len(s)
}
