// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"context"
	"sync"
	"time"
)

// ElevationMonitor holds the latest telescope elevation. A producer goroutine
// writes it and the control loop reads it without waiting on the producer.
type ElevationMonitor struct {
	mu      sync.Mutex
	degrees float64
	updated time.Time
}

// NewElevationMonitor starts at initial degrees.
func NewElevationMonitor(initial float64) *ElevationMonitor {
	return &ElevationMonitor{degrees: initial}
}

// Set stores a new elevation.
func (m *ElevationMonitor) Set(degrees float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degrees = degrees
	m.updated = time.Now()
}

// Get returns the elevation and when it was last set. The time is zero until
// the first Set.
func (m *ElevationMonitor) Get() (float64, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degrees, m.updated
}

// Feed stores every value received on samples until ctx is done or samples
// is closed.
func (m *ElevationMonitor) Feed(ctx context.Context, samples <-chan float64) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-samples:
			if !ok {
				return
			}
			m.Set(v)
		}
	}
}
