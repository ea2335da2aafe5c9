// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import (
	"fmt"

	"github.com/Masterminds/semver"
)

// FirmwareCheck validates ILC firmware revisions against a semver constraint.
type FirmwareCheck struct {
	constraint *semver.Constraints
	expr       string
}

// NewFirmwareCheck parses expr, e.g. ">= 2.4". An empty expression accepts everything.
func NewFirmwareCheck(expr string) (*FirmwareCheck, error) {
	fc := &FirmwareCheck{expr: expr}
	if expr == "" {
		return fc, nil
	}
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return nil, fmt.Errorf("firmware constraint %q: %w", expr, err)
	}
	fc.constraint = c
	return fc, nil
}

// Accept reports whether major.minor satisfies the constraint.
func (fc *FirmwareCheck) Accept(major, minor uint8) bool {
	if fc == nil || fc.constraint == nil {
		return true
	}
	v, err := semver.NewVersion(FirmwareVersion(major, minor))
	if err != nil {
		return false
	}
	return fc.constraint.Check(v)
}

// String returns the constraint expression.
func (fc *FirmwareCheck) String() string {
	if fc == nil || fc.expr == "" {
		return "any"
	}
	return fc.expr
}

// FirmwareVersion formats an ILC revision as a semantic version.
func FirmwareVersion(major, minor uint8) string {
	return fmt.Sprintf("%d.%d.0", major, minor)
}
