// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator answers ILC command batches in process, standing in for
// the FPGA bridge and the ILCs behind it.
package simulator

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/codec"
	"github.com/Thermoquad/mirrorsupport/pkg/ilc"
)

// ErrNoResponse is returned by WaitForSubnet when no ILC on the subnet answered.
var ErrNoResponse = errors.New("no response on subnet")

// Config shapes the simulated hardware.
type Config struct {
	// Stiffness is the hardpoint leg force per encoder count away from its
	// reference position, in N.
	Stiffness float64
	// StepsPerEncoder is the number of motor steps per encoder count.
	StepsPerEncoder int
	// InitialOffset is the encoder offset of every leg from its reference
	// position at start.
	InitialOffset int32
	// Pressure is reported by every hardpoint monitor, in kPa.
	Pressure float32
	// FirmwareMajor and FirmwareMinor are reported by ReportServerID.
	FirmwareMajor uint8
	FirmwareMinor uint8
}

// DefaultConfig returns a healthy rig.
func DefaultConfig() Config {
	return Config{
		Stiffness:       2,
		StepsPerEncoder: 4,
		InitialOffset:   50,
		Pressure:        120,
		FirmwareMajor:   2,
		FirmwareMinor:   4,
	}
}

type hardpoint struct {
	encoder   int32
	reference int32
	partial   int
}

// Bus is an in-process ilc.FIFO. It is safe for concurrent use.
type Bus struct {
	cfg   Config
	start time.Time

	mu         sync.Mutex
	subnets    *ilc.SubnetMap
	demand     map[ilc.Key][2]float32
	hardpoints []hardpoint
	modes      map[ilc.Key]ilc.Mode
	gains      map[ilc.Key][2]float32
	scanRates  map[ilc.Key]uint8
	resets     int
	silent     map[ilc.Key]bool
	corrupt    map[ilc.Key]bool
	responses  map[uint8]*ilc.ResponseBuffer
	commands   int
}

// New builds a bus for the ILCs of t.
func New(t *actuator.Table, cfg Config) *Bus {
	b := &Bus{
		cfg:        cfg,
		start:      time.Now(),
		subnets:    ilc.NewSubnetMap(t),
		demand:     make(map[ilc.Key][2]float32),
		hardpoints: make([]hardpoint, len(t.Hardpoints)),
		modes:      make(map[ilc.Key]ilc.Mode),
		gains:      make(map[ilc.Key][2]float32),
		scanRates:  make(map[ilc.Key]uint8),
		silent:     make(map[ilc.Key]bool),
		corrupt:    make(map[ilc.Key]bool),
		responses:  make(map[uint8]*ilc.ResponseBuffer),
	}
	for i, hp := range t.Hardpoints {
		b.hardpoints[i] = hardpoint{reference: hp.ReferencePosition, encoder: hp.ReferencePosition + cfg.InitialOffset}
	}
	return b
}

// Silence stops or resumes the replies of one ILC.
func (b *Bus) Silence(key ilc.Key, silent bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.silent[key] = silent
}

// Corrupt makes one ILC answer with a bad CRC.
func (b *Bus) Corrupt(key ilc.Key, corrupt bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.corrupt[key] = corrupt
}

// SetPressure changes the pressure reported by every monitor.
func (b *Bus) SetPressure(kPa float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.Pressure = kPa
}

// HardpointEncoders returns the simulated leg encoders.
func (b *Bus) HardpointEncoders() []int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int32, len(b.hardpoints))
	for i, hp := range b.hardpoints {
		out[i] = hp.encoder
	}
	return out
}

// Mode returns the mode of one ILC.
func (b *Bus) Mode(key ilc.Key) ilc.Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.modes[key]
}

// ScanRate returns the ADC scan rate code last set on one ILC.
func (b *Bus) ScanRate(key ilc.Key) uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scanRates[key]
}

// Resets returns the number of ResetServer requests answered.
func (b *Bus) Resets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets
}

// Calibration is the load cell calibration every ILC reports: constant i
// reads (i+1)/8.
func Calibration() [24]float32 {
	var c [24]float32
	for i := range c {
		c[i] = float32(i+1) / 8
	}
	return c
}

// Commands returns the number of command frames seen.
func (b *Bus) Commands() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commands
}

func (b *Bus) now() uint64 {
	return uint64(time.Since(b.start).Microseconds())
}

// WriteCommandFIFO decodes the batches and queues the replies.
func (b *Bus) WriteCommandFIFO(ctx context.Context, words []uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frames, err := ilc.DecodeCommands(words)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range frames {
		b.commands++
		key := ilc.Key{Subnet: f.Subnet, Address: f.Address}
		if !f.CRCValid || b.silent[key] {
			continue
		}
		e := b.subnets.Lookup(f.Subnet, f.Address)
		if e.Type == ilc.TypeUnknown {
			continue
		}
		rb, ok := b.responses[f.Subnet]
		if !ok {
			rb = ilc.NewResponseBuffer(b.now())
			b.responses[f.Subnet] = rb
		}
		b.answer(rb, e, key, f)
	}
	return nil
}

// WaitForSubnet returns at once; replies are queued by WriteCommandFIFO.
func (b *Bus) WaitForSubnet(ctx context.Context, subnet uint8, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.responses[subnet]; !ok {
		return ErrNoResponse
	}
	return nil
}

// ReadResponseFIFO drains the replies of a subnet.
func (b *Bus) ReadResponseFIFO(ctx context.Context, subnet uint8) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rb, ok := b.responses[subnet]
	if !ok {
		return nil, nil
	}
	delete(b.responses, subnet)
	return rb.Words(), nil
}

// payload builds a reply payload with the codec.
type payload struct {
	buf []byte
	idx int
}

func newPayload(size int) *payload { return &payload{buf: make([]byte, size)} }

func (p *payload) u8(v uint8)    { codec.SetU8(p.buf, &p.idx, v) }
func (p *payload) u16(v uint16)  { codec.SetU16(p.buf, &p.idx, v) }
func (p *payload) i32(v int32)   { codec.SetI32(p.buf, &p.idx, v) }
func (p *payload) f32(v float32) { codec.SetU32(p.buf, &p.idx, math.Float32bits(v)) }
func (p *payload) u48(v uint64) {
	p.u16(uint16(v >> 32))
	codec.SetU32(p.buf, &p.idx, uint32(v))
}

func (b *Bus) answer(rb *ilc.ResponseBuffer, e ilc.Entry, key ilc.Key, f ilc.CommandFrame) {
	ts := b.now()
	var out *payload
	switch f.Function {
	case ilc.FuncForceDemand:
		if len(f.Payload) < 4 {
			rb.Exception(key.Address, uint8(f.Function), ilc.ExceptionIllegalDataValue, ts)
			return
		}
		d := [2]float32{float32(i24(f.Payload[1:4])) / ilc.ForceScale}
		if ilc.IsDualAxis(key.Address) && len(f.Payload) >= 7 {
			d[1] = float32(i24(f.Payload[4:7])) / ilc.ForceScale
		}
		b.demand[key] = d
		out = b.forceStatus(key)
	case ilc.FuncPneumaticForceStatus:
		out = b.forceStatus(key)
	case ilc.FuncStepMotor:
		if len(f.Payload) == 1 {
			b.step(int(e.DataIndex), int(int8(f.Payload[0])))
		}
		out = b.hardpointStatus(int(e.DataIndex))
	case ilc.FuncElectromechanicalForceAndStatus:
		out = b.hardpointStatus(int(e.DataIndex))
	case ilc.FuncReportLVDT:
		out = newPayload(8)
		out.f32(0)
		out.f32(0)
	case ilc.FuncReadDCAPressure:
		out = newPayload(16)
		for rep := 0; rep < 4; rep++ {
			out.f32(b.cfg.Pressure)
		}
	case ilc.FuncReportServerID:
		name := e.Type.String() + " ILC"
		out = newPayload(13 + len(name))
		out.u8(uint8(12 + len(name)))
		out.u48(uint64(key.Subnet)<<8 | uint64(key.Address))
		out.u8(uint8(e.Type))
		out.u8(0)
		out.u8(0)
		out.u8(0)
		out.u8(b.cfg.FirmwareMajor)
		out.u8(b.cfg.FirmwareMinor)
		copy(out.buf[out.idx:], name)
	case ilc.FuncReportServerStatus:
		out = newPayload(5)
		out.u8(uint8(b.modes[key]))
		out.u16(0)
		out.u16(0)
	case ilc.FuncChangeMode:
		if len(f.Payload) == 2 {
			b.modes[key] = ilc.Mode(uint16(f.Payload[0])<<8 | uint16(f.Payload[1]))
		}
		out = newPayload(2)
		out.u16(uint16(b.modes[key]))
	case ilc.FuncSetADCScanRate:
		if len(f.Payload) != 1 {
			rb.Exception(key.Address, uint8(f.Function), ilc.ExceptionIllegalDataValue, ts)
			return
		}
		b.scanRates[key] = f.Payload[0]
		out = newPayload(1)
		out.u8(f.Payload[0])
	case ilc.FuncReadCalibration:
		c := Calibration()
		out = newPayload(4 * len(c))
		for _, v := range c {
			out.f32(v)
		}
	case ilc.FuncSetBoostValveDCAGains:
		if e.Type != ilc.TypeForceActuator || len(f.Payload) != 8 {
			rb.Exception(key.Address, uint8(f.Function), ilc.ExceptionIllegalDataValue, ts)
			return
		}
		b.gains[key] = [2]float32{f32(f.Payload[0:4]), f32(f.Payload[4:8])}
		out = newPayload(0)
	case ilc.FuncReadBoostValveDCAGains:
		if e.Type != ilc.TypeForceActuator {
			rb.Exception(key.Address, uint8(f.Function), ilc.ExceptionIllegalFunction, ts)
			return
		}
		g := b.gains[key]
		out = newPayload(8)
		out.f32(g[0])
		out.f32(g[1])
	case ilc.FuncReportDCAID:
		if e.Type == ilc.TypeHardpoint {
			rb.Exception(key.Address, uint8(f.Function), ilc.ExceptionIllegalFunction, ts)
			return
		}
		out = newPayload(9)
		out.u48(uint64(key.Subnet)<<8 | uint64(key.Address))
		out.u8(1)
		out.u8(b.cfg.FirmwareMajor)
		out.u8(b.cfg.FirmwareMinor)
	case ilc.FuncReportDCAStatus:
		if e.Type == ilc.TypeHardpoint {
			rb.Exception(key.Address, uint8(f.Function), ilc.ExceptionIllegalFunction, ts)
			return
		}
		out = newPayload(2)
		out.u16(0)
	case ilc.FuncResetServer:
		b.resets++
		b.modes[key] = ilc.ModeStandby
		delete(b.demand, key)
		delete(b.gains, key)
		out = newPayload(0)
	default:
		rb.Exception(key.Address, uint8(f.Function), ilc.ExceptionIllegalFunction, ts)
		return
	}

	if b.corrupt[key] {
		data := append([]byte{key.Address, uint8(f.Function)}, out.buf...)
		crc := ilc.CalculateCRC(data) ^ 0x5555
		rb.Raw(append(data, uint8(crc), uint8(crc>>8)), ts)
		return
	}
	rb.Frame(key.Address, uint8(f.Function), out.buf, ts)
}

func (b *Bus) forceStatus(key ilc.Key) *payload {
	d := b.demand[key]
	if ilc.IsDualAxis(key.Address) {
		out := newPayload(9)
		out.u8(0)
		out.f32(d[0])
		out.f32(d[1])
		return out
	}
	out := newPayload(5)
	out.u8(0)
	out.f32(d[0])
	return out
}

func (b *Bus) step(index, steps int) {
	if index < 0 || index >= len(b.hardpoints) || b.cfg.StepsPerEncoder <= 0 {
		return
	}
	hp := &b.hardpoints[index]
	hp.partial += steps
	moved := hp.partial / b.cfg.StepsPerEncoder
	hp.partial -= moved * b.cfg.StepsPerEncoder
	hp.encoder += int32(moved)
}

func (b *Bus) hardpointStatus(index int) *payload {
	out := newPayload(9)
	if index < 0 || index >= len(b.hardpoints) {
		out.u8(uint8(ilc.HardpointMajorFault))
		return out
	}
	hp := b.hardpoints[index]
	out.u8(0)
	out.i32(hp.encoder)
	out.f32(float32(b.cfg.Stiffness * float64(hp.encoder-hp.reference)))
	return out
}

func f32(b []byte) float32 {
	idx := 0
	v, _ := codec.GetU32(b, &idx)
	return math.Float32frombits(v)
}

func i24(b []byte) int32 {
	return int32(uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8) >> 8
}
