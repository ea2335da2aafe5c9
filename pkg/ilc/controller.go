// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
)

// FIFO is the FPGA side of the ILC subnets.
type FIFO interface {
	// WriteCommandFIFO queues command words and triggers transmission.
	WriteCommandFIFO(ctx context.Context, words []uint16) error
	// WaitForSubnet blocks until the subnet raised its IRQ or timeout elapsed.
	WaitForSubnet(ctx context.Context, subnet uint8, timeout time.Duration) error
	// ReadResponseFIFO drains the response words of a subnet.
	ReadResponseFIFO(ctx context.Context, subnet uint8) ([]uint16, error)
}

// Controller batches ILC commands for one control cycle and parses the replies.
type Controller struct {
	fifo      FIFO
	table     *actuator.Table
	subnets   *SubnetMap
	state     *State
	responses *Responses
	parser    *Parser
	buffer    *Buffer
	sink      WarningSink
	stats     *Statistics
	log       *zap.Logger
	timeout   time.Duration
	clock     func() float64

	used       [SubnetCount]bool
	anyTimeout bool
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Timings       Timings
	SubnetTimeout time.Duration
	Firmware      *FirmwareCheck
	Sink          WarningSink
	Logger        *zap.Logger
	Clock         func() float64
}

// NewController wires the subnet map, state and parser for a table.
func NewController(fifo FIFO, t *actuator.Table, cfg ControllerConfig) *Controller {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = nopSink{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }
	}
	timeout := cfg.SubnetTimeout
	if timeout <= 0 {
		timeout = 5 * time.Millisecond
	}

	c := &Controller{
		fifo:      fifo,
		table:     t,
		subnets:   NewSubnetMap(t),
		state:     NewState(t),
		responses: NewResponses(t),
		buffer:    NewBuffer(cfg.Timings),
		stats:     NewStatistics(),
		log:       log,
		timeout:   timeout,
		clock:     clock,
	}
	c.sink = WarningFunc(func(w Warning) {
		if w.Cause() == WarnResponseTimeout {
			c.stats.Warning(WarnResponseTimeout)
		}
		sink.ILCWarning(w)
	})
	c.parser = NewParser(c.subnets, c.state, c.responses,
		WithWarningSink(sink),
		WithStatistics(c.stats),
		WithFirmwareCheck(cfg.Firmware),
		WithLogger(log.Named("parser")))
	return c
}

// State returns the decoded ILC state.
func (c *Controller) State() *State { return c.state }

// SubnetMap returns the address map.
func (c *Controller) SubnetMap() *SubnetMap { return c.subnets }

// Statistics returns the frame and warning counters.
func (c *Controller) Statistics() *Statistics { return c.stats }

// AnyTimeout reports whether the last cycle missed any reply.
func (c *Controller) AnyTimeout() bool { return c.anyTimeout }

// Pending returns the replies still owed by the ILC of an entry.
func (c *Controller) Pending(e Entry) int { return c.responses.Pending(e) }

// each writes one batch per subnet carrying ILCs of type t. write must append
// exactly one frame, since one reply is expected per address.
func (c *Controller) each(t Type, write func(address uint8, e Entry) error) error {
	for _, s := range c.subnets.Subnets(t) {
		if err := c.buffer.StartSubnet(s); err != nil {
			return err
		}
		for _, a := range c.subnets.Addresses(s, t) {
			e := c.subnets.Lookup(s, a)
			if err := write(a, e); err != nil {
				return err
			}
			c.responses.Expect(e)
		}
		if err := c.buffer.EndSubnet(); err != nil {
			return err
		}
		c.used[s-1] = true
	}
	return nil
}

// WriteForceDemand queues ForceDemand to every force actuator. primary is
// indexed by DataIndex, secondary by SecondaryDataIndex.
func (c *Controller) WriteForceDemand(primary, secondary []float64, slew bool) error {
	if len(primary) != len(c.table.ForceActuators) || len(secondary) != c.table.SecondaryCount() {
		return fmt.Errorf("force demand sized %d/%d, table has %d/%d",
			len(primary), len(secondary), len(c.table.ForceActuators), c.table.SecondaryCount())
	}
	return c.each(TypeForceActuator, func(a uint8, e Entry) error {
		var s float64
		if e.SecondaryDataIndex >= 0 {
			s = secondary[e.SecondaryDataIndex]
		}
		c.buffer.ForceDemand(a, slew, primary[e.DataIndex], s)
		return nil
	})
}

// WritePneumaticForceStatus polls every force actuator without changing setpoints.
func (c *Controller) WritePneumaticForceStatus() error {
	return c.each(TypeForceActuator, func(a uint8, _ Entry) error {
		c.buffer.PneumaticForceStatus(a)
		return nil
	})
}

// WriteHardpointSteps queues StepMotor for hardpoints with pending steps and
// ElectromechanicalForceAndStatus for the others.
func (c *Controller) WriteHardpointSteps(steps []int8) error {
	if len(steps) != len(c.table.Hardpoints) {
		return fmt.Errorf("hardpoint steps sized %d, table has %d", len(steps), len(c.table.Hardpoints))
	}
	return c.each(TypeHardpoint, func(a uint8, e Entry) error {
		if s := steps[e.DataIndex]; s != 0 {
			c.buffer.StepMotor(a, s)
		} else {
			c.buffer.ElectromechanicalForceAndStatus(a)
		}
		return nil
	})
}

// WriteMonitorStatus polls LVDTs and air pressures of the hardpoint monitors.
func (c *Controller) WriteMonitorStatus() error {
	if err := c.each(TypeHardpointMonitor, func(a uint8, _ Entry) error {
		c.buffer.ReportLVDT(a)
		return nil
	}); err != nil {
		return err
	}
	return c.each(TypeHardpointMonitor, func(a uint8, _ Entry) error {
		c.buffer.ReadDCAPressure(a)
		return nil
	})
}

// WriteServerID queues ReportServerID to every ILC of type t.
func (c *Controller) WriteServerID(t Type) error {
	return c.each(t, func(a uint8, _ Entry) error {
		c.buffer.ReportServerID(a)
		return nil
	})
}

// WriteServerStatus queues ReportServerStatus to every ILC of type t.
func (c *Controller) WriteServerStatus(t Type) error {
	return c.each(t, func(a uint8, _ Entry) error {
		c.buffer.ReportServerStatus(a)
		return nil
	})
}

// WriteChangeMode queues ChangeMode to every ILC of type t.
func (c *Controller) WriteChangeMode(t Type, mode Mode) error {
	return c.each(t, func(a uint8, _ Entry) error {
		c.buffer.ChangeMode(a, mode)
		return nil
	})
}

// WriteReadCalibration queues ReadCalibration to every ILC of type t.
func (c *Controller) WriteReadCalibration(t Type) error {
	return c.each(t, func(a uint8, _ Entry) error {
		c.buffer.ReadCalibration(a)
		return nil
	})
}

// WriteSetADCScanRate queues SetADCScanRate to every ILC of type t.
func (c *Controller) WriteSetADCScanRate(t Type, rate uint8) error {
	return c.each(t, func(a uint8, _ Entry) error {
		c.buffer.SetADCScanRate(a, rate)
		return nil
	})
}

// WriteBoostValveGains sets and reads back the booster valve gains of every
// force actuator.
func (c *Controller) WriteBoostValveGains(primary, secondary float32) error {
	if err := c.each(TypeForceActuator, func(a uint8, _ Entry) error {
		c.buffer.SetBoostValveDCAGains(a, primary, secondary)
		return nil
	}); err != nil {
		return err
	}
	return c.each(TypeForceActuator, func(a uint8, _ Entry) error {
		c.buffer.ReadBoostValveDCAGains(a)
		return nil
	})
}

// WriteDCAStatus queues ReportDCAID and ReportDCAStatus to every ILC of type t.
func (c *Controller) WriteDCAStatus(t Type) error {
	if err := c.each(t, func(a uint8, _ Entry) error {
		c.buffer.ReportDCAID(a)
		return nil
	}); err != nil {
		return err
	}
	return c.each(t, func(a uint8, _ Entry) error {
		c.buffer.ReportDCAStatus(a)
		return nil
	})
}

// WriteResetServer queues ResetServer to every ILC of type t.
func (c *Controller) WriteResetServer(t Type) error {
	return c.each(t, func(a uint8, _ Entry) error {
		c.buffer.ResetServer(a)
		return nil
	})
}

// WriteSingle queues one request to one ILC. build must append exactly one frame.
func (c *Controller) WriteSingle(key Key, build func(b *Buffer, address uint8)) error {
	e := c.subnets.Lookup(key.Subnet, key.Address)
	if e.Type == TypeUnknown {
		return fmt.Errorf("no ILC configured at %s", key)
	}
	if err := c.buffer.StartSubnet(key.Subnet); err != nil {
		return err
	}
	build(c.buffer, key.Address)
	c.responses.Expect(e)
	if err := c.buffer.EndSubnet(); err != nil {
		return err
	}
	c.used[key.Subnet-1] = true
	return nil
}

// Run sends the queued batches, collects the replies of every used subnet and
// reconciles missing replies into ResponseTimeout warnings. Subnet timeouts
// are not errors; only a failed command write is.
func (c *Controller) Run(ctx context.Context) (bool, error) {
	defer func() {
		c.buffer.Reset()
		c.used = [SubnetCount]bool{}
	}()
	if c.buffer.Len() == 0 {
		c.anyTimeout = false
		return false, nil
	}

	if err := c.fifo.WriteCommandFIFO(ctx, c.buffer.Words()); err != nil {
		c.anyTimeout = c.responses.Verify(c.sink, c.clock())
		return c.anyTimeout, fmt.Errorf("write command FIFO: %w", err)
	}

	for i, used := range c.used {
		if !used {
			continue
		}
		subnet := uint8(i + 1)
		if err := c.fifo.WaitForSubnet(ctx, subnet, c.timeout); err != nil {
			c.log.Debug("subnet wait failed", zap.Uint8("subnet", subnet), zap.Error(err))
		}
		words, err := c.fifo.ReadResponseFIFO(ctx, subnet)
		if err != nil {
			c.log.Warn("read response FIFO", zap.Uint8("subnet", subnet), zap.Error(err))
			continue
		}
		c.parser.Parse(words, subnet)
	}

	c.anyTimeout = c.responses.Verify(c.sink, c.clock())
	return c.anyTimeout, nil
}

// CommandWords returns the words queued so far, for inspection.
func (c *Controller) CommandWords() []uint16 {
	return c.buffer.Words()
}
