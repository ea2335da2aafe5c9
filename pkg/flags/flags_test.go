// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flags

import "testing"

type testFlag uint8

const (
	flagA testFlag = iota
	flagB
	flagC
)

func (f testFlag) String() string {
	return [...]string{"A", "B", "C"}[f]
}

func TestSet(t *testing.T) {
	var s Set[testFlag]
	if s.Any() {
		t.Fatal("zero set reports Any")
	}

	s.Set(flagB)
	if !s.Has(flagB) || s.Has(flagA) {
		t.Errorf("Has after Set(B) = %v/%v", s.Has(flagA), s.Has(flagB))
	}
	if s.String() != "B" {
		t.Errorf("String() = %q, want B", s.String())
	}

	s.Put(flagC, true)
	if s.Count() != 2 {
		t.Errorf("Count() = %d, want 2", s.Count())
	}
	if s.String() != "B|C" {
		t.Errorf("String() = %q, want B|C", s.String())
	}

	s.Put(flagB, false)
	if s.Has(flagB) {
		t.Error("B still set after Put(false)")
	}

	s.Reset()
	if s.Any() || s.String() != "none" {
		t.Errorf("after Reset Any = %v, String = %q", s.Any(), s.String())
	}
}

func TestReductions(t *testing.T) {
	sets := make([]Set[testFlag], 4)
	if AnyOf(sets) {
		t.Error("AnyOf on empty sets = true")
	}
	sets[2].Set(flagA)
	sets[3].Set(flagC)
	if !AnyOf(sets) {
		t.Error("AnyOf = false, want true")
	}
	u := UnionOf(sets)
	if u != Of(flagA, flagC) {
		t.Errorf("UnionOf = %v, want A|C", u)
	}
}
