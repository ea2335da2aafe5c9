// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safety

// Window is a fixed length FIFO of fault samples. It trips when the number
// of faulty samples in the window reaches the threshold.
type Window struct {
	samples   []bool
	head      int
	sum       int
	threshold int
}

// NewWindow returns a window of period samples. A threshold of zero or less
// never trips.
func NewWindow(period, threshold int) *Window {
	if period < 1 {
		period = 1
	}
	return &Window{samples: make([]bool, period), threshold: threshold}
}

// Push drops the oldest sample, appends v and reports whether the window is
// at or above its threshold.
func (w *Window) Push(v bool) bool {
	if w.samples[w.head] {
		w.sum--
	}
	w.samples[w.head] = v
	if v {
		w.sum++
	}
	w.head = (w.head + 1) % len(w.samples)
	return w.Exceeded()
}

// Exceeded reports whether the window currently trips.
func (w *Window) Exceeded() bool {
	return w.threshold > 0 && w.sum >= w.threshold
}

// Count returns the number of faulty samples in the window.
func (w *Window) Count() int { return w.sum }

// Period returns the window length.
func (w *Window) Period() int { return len(w.samples) }

// Threshold returns the trip count.
func (w *Window) Threshold() int { return w.threshold }

// Clear zeroes every sample.
func (w *Window) Clear() {
	clear(w.samples)
	w.head = 0
	w.sum = 0
}
