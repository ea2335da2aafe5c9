// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package flags provides a small bit set keyed by a subsystem's flag enum.
package flags

import "strings"

// Flag is a flag enum whose values are bit positions 0..63.
type Flag interface {
	~uint8
	String() string
}

// Set holds the raised flags of one subsystem.
type Set[F Flag] struct {
	bits uint64
}

// Of returns a set with the given flags raised.
func Of[F Flag](fs ...F) Set[F] {
	var s Set[F]
	for _, f := range fs {
		s.Set(f)
	}
	return s
}

// Set raises f.
func (s *Set[F]) Set(f F) {
	s.bits |= 1 << uint(f)
}

// Put raises or clears f.
func (s *Set[F]) Put(f F, on bool) {
	if on {
		s.Set(f)
	} else {
		s.Clear(f)
	}
}

// Clear lowers f.
func (s *Set[F]) Clear(f F) {
	s.bits &^= 1 << uint(f)
}

// Has reports whether f is raised.
func (s Set[F]) Has(f F) bool {
	return s.bits&(1<<uint(f)) != 0
}

// Any reports whether at least one flag is raised.
func (s Set[F]) Any() bool {
	return s.bits != 0
}

// Count returns the number of raised flags.
func (s Set[F]) Count() int {
	n := 0
	for b := s.bits; b != 0; b &= b - 1 {
		n++
	}
	return n
}

// Reset lowers every flag.
func (s *Set[F]) Reset() {
	s.bits = 0
}

// Union returns the flags raised in s or o.
func (s Set[F]) Union(o Set[F]) Set[F] {
	return Set[F]{bits: s.bits | o.bits}
}

// Bits returns the raw bit mask.
func (s Set[F]) Bits() uint64 {
	return s.bits
}

// Flags lists the raised flags in bit order.
func (s Set[F]) Flags() []F {
	var out []F
	for i := 0; i < 64; i++ {
		if s.bits&(1<<uint(i)) != 0 {
			out = append(out, F(i))
		}
	}
	return out
}

func (s Set[F]) String() string {
	if !s.Any() {
		return "none"
	}
	names := make([]string, 0, s.Count())
	for _, f := range s.Flags() {
		names = append(names, f.String())
	}
	return strings.Join(names, "|")
}

// AnyOf OR-reduces a slice of sets, as used for per-actuator roll-ups.
func AnyOf[F Flag](sets []Set[F]) bool {
	for _, s := range sets {
		if s.Any() {
			return true
		}
	}
	return false
}

// UnionOf merges a slice of sets.
func UnionOf[F Flag](sets []Set[F]) Set[F] {
	var out Set[F]
	for _, s := range sets {
		out.bits |= s.bits
	}
	return out
}
