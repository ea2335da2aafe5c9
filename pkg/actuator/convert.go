// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package actuator

import "math"

// The secondary cylinder is mounted at 45 degrees to the mirror surface.
const sqrt2 = math.Sqrt2

// CylinderToMirror converts primary/secondary cylinder forces into mirror X, Y, Z.
func CylinderToMirror(o Orientation, primary, secondary float64) (x, y, z float64) {
	lateral := secondary * sqrt2 / 2
	switch o {
	case PositiveX:
		return lateral, 0, primary + lateral
	case NegativeX:
		return -lateral, 0, primary + lateral
	case PositiveY:
		return 0, lateral, primary + lateral
	case NegativeY:
		return 0, -lateral, primary + lateral
	default:
		return 0, 0, primary
	}
}

// MirrorToCylinder converts mirror X, Y, Z forces into cylinder setpoints.
// The lateral component not matching the orientation is ignored.
func MirrorToCylinder(o Orientation, x, y, z float64) (primary, secondary float64) {
	switch o {
	case PositiveX:
		return z - x, x * sqrt2
	case NegativeX:
		return z + x, -x * sqrt2
	case PositiveY:
		return z - y, y * sqrt2
	case NegativeY:
		return z + y, -y * sqrt2
	default:
		return z, 0
	}
}
