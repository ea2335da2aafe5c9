// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrSubnetOpen is returned by StartSubnet while a batch is still open.
	ErrSubnetOpen = errors.New("subnet batch already open")
	// ErrSubnetClosed is returned by EndSubnet without a matching StartSubnet.
	ErrSubnetClosed = errors.New("no subnet batch open")
)

// Buffer accumulates command FIFO words for one control cycle.
type Buffer struct {
	words       []uint16
	crc         uint16
	open        bool
	subnet      uint8
	lengthIndex int
	startIndex  int
	timings     Timings
}

// NewBuffer returns an empty buffer using the given reply timings.
func NewBuffer(timings Timings) *Buffer {
	if timings == nil {
		timings = DefaultTimings()
	}
	return &Buffer{words: make([]uint16, 0, 2048), timings: timings}
}

// Words returns the encoded command FIFO contents.
func (b *Buffer) Words() []uint16 { return b.words }

// Len returns the number of words written.
func (b *Buffer) Len() int { return len(b.words) }

// Reset empties the buffer for the next cycle.
func (b *Buffer) Reset() {
	b.words = b.words[:0]
	b.open = false
	b.crc = crcInitial
}

// StartSubnet opens a batch: subnet id, reserved length word, software trigger.
func (b *Buffer) StartSubnet(subnet uint8) error {
	if b.open {
		return fmt.Errorf("start subnet %d: %w (subnet %d)", subnet, ErrSubnetOpen, b.subnet)
	}
	if !ValidSubnet(subnet) {
		return fmt.Errorf("start subnet %d: invalid subnet", subnet)
	}
	b.open = true
	b.subnet = subnet
	b.words = append(b.words, uint16(subnet))
	b.lengthIndex = len(b.words)
	b.words = append(b.words, 0)
	b.words = append(b.words, TxWaitTrigger)
	b.startIndex = len(b.words)
	return nil
}

// EndSubnet writes the trigger IRQ marker and backpatches the length with the
// number of words written since StartSubnet.
func (b *Buffer) EndSubnet() error {
	if !b.open {
		return ErrSubnetClosed
	}
	length := len(b.words) - b.startIndex
	b.words = append(b.words, TxIRQTrigger)
	b.words[b.lengthIndex] = uint16(length)
	b.open = false
	return nil
}

func (b *Buffer) beginFrame(address uint8, fn FunctionCode) {
	b.crc = crcInitial
	b.writeU8(address)
	b.writeU8(uint8(fn))
}

func (b *Buffer) writeU8(v uint8) {
	b.words = append(b.words, TxWrite|uint16(v))
	b.crc = crcUpdate(b.crc, v)
}

func (b *Buffer) writeI8(v int8) { b.writeU8(uint8(v)) }

func (b *Buffer) writeU16(v uint16) {
	b.writeU8(uint8(v >> 8))
	b.writeU8(uint8(v))
}

func (b *Buffer) writeI24(v int32) {
	b.writeU8(uint8(v >> 16))
	b.writeU8(uint8(v >> 8))
	b.writeU8(uint8(v))
}

func (b *Buffer) writeU32(v uint32) {
	b.writeU16(uint16(v >> 16))
	b.writeU16(uint16(v))
}

func (b *Buffer) writeF32(v float32) {
	b.writeU32(math.Float32bits(v))
}

func (b *Buffer) writeCRC() {
	crc := b.crc
	b.words = append(b.words, TxWrite|(crc&0xFF), TxWrite|(crc>>8))
}

// endFrame closes a frame with CRC and end marker, then the timing directive.
func (b *Buffer) endFrame(fn FunctionCode, expectReply bool) {
	b.writeCRC()
	b.words = append(b.words, TxFrameEnd)
	wait := b.timings.For(fn)
	if expectReply {
		b.writeWaitForRx(wait)
	} else {
		b.writeDelay(wait)
	}
}

func (b *Buffer) writeWaitForRx(us uint32) {
	if us <= txMaxWaitRx {
		b.words = append(b.words, TxWaitRx|uint16(us))
		return
	}
	ms := (us + txLongRxDivisor - 1) / txLongRxDivisor
	if ms > txTimingMask {
		ms = txTimingMask
	}
	b.words = append(b.words, TxWaitLongRx|uint16(ms))
}

func (b *Buffer) writeDelay(us uint32) {
	if us <= txTimingMask {
		b.words = append(b.words, TxWaitUs|uint16(us))
		return
	}
	ms := (us + 999) / 1000
	if ms > txTimingMask {
		ms = txTimingMask
	}
	b.words = append(b.words, TxWaitMs|uint16(ms))
}

// WriteTimestamp asks the FPGA to latch a transmit timestamp.
func (b *Buffer) WriteTimestamp() {
	b.words = append(b.words, TxTimestamp)
}
