// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Input names one telescope telemetry feed of the computed force components.
type Input uint8

const (
	InputAzimuth Input = iota + 1
	InputThermal
	InputVelocity
	InputAcceleration
)

var inputNames = map[Input]string{
	InputAzimuth:      "azimuth",
	InputThermal:      "thermal",
	InputVelocity:     "velocity",
	InputAcceleration: "acceleration",
}

func (i Input) String() string {
	if name, ok := inputNames[i]; ok {
		return name
	}
	return fmt.Sprintf("Input(%d)", uint8(i))
}

// Arity is the number of values a reading of i carries.
func (i Input) Arity() int {
	switch i {
	case InputAzimuth:
		return 1
	case InputThermal:
		return 4
	case InputVelocity, InputAcceleration:
		return 3
	}
	return 0
}

// ParseInput returns the input named s.
func ParseInput(s string) (Input, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range inputNames {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown input %q", s)
}

// Reading is one sample of an input. Only the first Arity values are used:
// degrees for azimuth, the four thermal terms, or rad/s and rad/s² about X,
// Y and Z.
type Reading struct {
	Input  Input
	Values [4]float64
}

// Inputs is the latest value of every feed.
type Inputs struct {
	Azimuth      float64
	Thermal      [4]float64
	Velocity     mgl64.Vec3
	Acceleration mgl64.Vec3
}

// InputMonitor holds the latest telemetry inputs. Like ElevationMonitor it is
// written by producer goroutines and read by the control loop.
type InputMonitor struct {
	mu      sync.Mutex
	inputs  Inputs
	updated time.Time
}

// NewInputMonitor starts with every input at zero.
func NewInputMonitor() *InputMonitor {
	return &InputMonitor{}
}

// Apply stores r. Readings of an unknown input are ignored.
func (m *InputMonitor) Apply(r Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch r.Input {
	case InputAzimuth:
		m.inputs.Azimuth = r.Values[0]
	case InputThermal:
		m.inputs.Thermal = r.Values
	case InputVelocity:
		m.inputs.Velocity = mgl64.Vec3{r.Values[0], r.Values[1], r.Values[2]}
	case InputAcceleration:
		m.inputs.Acceleration = mgl64.Vec3{r.Values[0], r.Values[1], r.Values[2]}
	default:
		return
	}
	m.updated = time.Now()
}

// Get returns the inputs and when one was last applied.
func (m *InputMonitor) Get() (Inputs, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs, m.updated
}

// Feed applies every reading received until ctx is done or readings is
// closed.
func (m *InputMonitor) Feed(ctx context.Context, readings <-chan Reading) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-readings:
			if !ok {
				return
			}
			m.Apply(r)
		}
	}
}
