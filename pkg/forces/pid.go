// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forces

// PIDConfig holds PID controller parameters.
type PIDConfig struct {
	Kp            float64 `yaml:"kp"`
	Ki            float64 `yaml:"ki"`
	Kd            float64 `yaml:"kd"`
	MaxOutput     float64 `yaml:"max_output"`
	IntegralLimit float64 `yaml:"integral_limit"`
}

// PID is a discrete PID controller driving its input toward zero.
type PID struct {
	cfg PIDConfig

	integral    float64
	prevError   float64
	initialized bool
}

// NewPID creates a PID controller.
func NewPID(cfg PIDConfig) *PID {
	return &PID{cfg: cfg}
}

// Reset clears the PID state.
func (pid *PID) Reset() {
	pid.integral = 0
	pid.prevError = 0
	pid.initialized = false
}

// Update computes the output for the current error over time step dt.
func (pid *PID) Update(err, dt float64) float64 {
	if !pid.initialized {
		pid.prevError = err
		pid.initialized = true
	}

	p := pid.cfg.Kp * err

	// Integral term with anti-windup
	pid.integral += err * dt
	if pid.cfg.IntegralLimit > 0 {
		if pid.integral > pid.cfg.IntegralLimit {
			pid.integral = pid.cfg.IntegralLimit
		} else if pid.integral < -pid.cfg.IntegralLimit {
			pid.integral = -pid.cfg.IntegralLimit
		}
	}
	i := pid.cfg.Ki * pid.integral

	var d float64
	if dt > 0 {
		d = pid.cfg.Kd * (err - pid.prevError) / dt
	}
	pid.prevError = err

	out := p + i + d
	if limit := pid.cfg.MaxOutput; limit > 0 {
		if out > limit {
			out = limit
		} else if out < -limit {
			out = -limit
		}
	}
	return out
}

// Integral returns the current integral term value.
func (pid *PID) Integral() float64 {
	return pid.integral
}
