// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import (
	"fmt"
	"sort"
	"time"
)

// Statistics tracks frame counts and warning rates.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames uint64
	ValidFrames uint64
	Warnings    [warningFlagCount]uint64
	ByFunction  map[FunctionCode]uint64

	// Rates (calculated)
	FrameRate   float64 // frames/sec
	WarningRate float64 // warnings/sec
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ByFunction:     make(map[FunctionCode]uint64),
	}
}

// Frame counts one frame cut from a response buffer.
func (s *Statistics) Frame() {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()
}

// Response counts one successfully decoded reply.
func (s *Statistics) Response(fn FunctionCode) {
	s.ValidFrames++
	s.ByFunction[fn]++
}

// Warning counts one warning of cause f. Response timeouts are not frames.
func (s *Statistics) Warning(f WarningFlag) {
	if f < warningFlagCount {
		s.Warnings[f]++
	}
	s.LastUpdateTime = time.Now()
}

// TotalWarnings sums every warning counter.
func (s *Statistics) TotalWarnings() uint64 {
	var n uint64
	for _, c := range s.Warnings {
		n += c
	}
	return n
}

// CalculateRates calculates frame and warning rates.
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.WarningRate = float64(s.TotalWarnings()) / elapsed
	}
}

// String returns a formatted statistics summary.
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== ILC Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	for i, c := range s.Warnings {
		if c > 0 {
			result += fmt.Sprintf("  %-18s %6d\n", WarningFlag(i).String()+":", c)
		}
	}

	if len(s.ByFunction) > 0 {
		codes := make([]int, 0, len(s.ByFunction))
		for fn := range s.ByFunction {
			codes = append(codes, int(fn))
		}
		sort.Ints(codes)
		result += "Replies by function:\n"
		for _, code := range codes {
			fn := FunctionCode(code)
			result += fmt.Sprintf("  %-34s %8d\n", fmt.Sprintf("%s (%d)", fn, code), s.ByFunction[fn])
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Warning Rate:    %8.1f warnings/sec\n", s.WarningRate)
	result += "====================================\n"

	return result
}

// Reset resets all statistics counters.
func (s *Statistics) Reset() {
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalFrames = 0
	s.ValidFrames = 0
	s.Warnings = [warningFlagCount]uint64{}
	s.ByFunction = make(map[FunctionCode]uint64)
	s.FrameRate = 0
	s.WarningRate = 0
}
