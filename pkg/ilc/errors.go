// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import (
	"errors"
	"fmt"
)

// ErrMalformedBatch is wrapped by command batch decoding errors.
var ErrMalformedBatch = errors.New("malformed command batch")

func errTruncatedBatch(at int) error {
	return fmt.Errorf("%w: truncated header at word %d", ErrMalformedBatch, at)
}

func errBadBatch(at int, why string) error {
	return fmt.Errorf("%w at word %d: %s", ErrMalformedBatch, at, why)
}
