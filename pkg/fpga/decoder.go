// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fpga

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Decoder states
const (
	stateIdle = iota
	stateHeader
	stateBody
	stateCRC
	stateEnd
)

// Decoder is the link packet decoder state machine.
type Decoder struct {
	state       int
	buffer      []byte
	bufferIndex int
	bodyLength  int
	escapeNext  bool
}

// NewDecoder returns an idle decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, MaxPacketSize),
	}
}

// Reset returns the decoder to idle.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferIndex = 0
	d.bodyLength = 0
	d.escapeNext = false
}

// Decode feeds a chunk of bytes and returns every packet completed by it.
// Decode errors do not stop the chunk; they are returned alongside.
func (d *Decoder) Decode(data []byte) ([]*Packet, []error) {
	var packets []*Packet
	var errs []error
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	return packets, errs
}

// DecodeByte processes one byte. It returns a packet once one is complete.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	if b == StartByte {
		wasBusy := d.state != stateIdle
		d.Reset()
		d.state = stateHeader
		if wasBusy {
			return nil, fmt.Errorf("START byte inside packet, resynchronised")
		}
		return nil, nil
	}
	if b == EndByte {
		state := d.state
		if state == stateIdle {
			return nil, nil
		}
		if state != stateEnd {
			d.Reset()
			return nil, fmt.Errorf("unexpected END byte in state %d", state)
		}
		p, err := d.finish()
		d.Reset()
		return p, err
	}
	if d.state == stateIdle {
		return nil, nil
	}
	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}
	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	if d.bufferIndex >= MaxPacketSize {
		d.Reset()
		return nil, fmt.Errorf("buffer overflow: packet exceeds %d bytes", MaxPacketSize)
	}
	d.buffer[d.bufferIndex] = b
	d.bufferIndex++

	switch d.state {
	case stateHeader:
		if d.bufferIndex == HeaderSize {
			d.bodyLength = int(binary.BigEndian.Uint16(d.buffer[0:2]))
			if d.bodyLength > MaxBodySize {
				length := d.bodyLength
				d.Reset()
				return nil, fmt.Errorf("invalid length: %d (max %d)", length, MaxBodySize)
			}
			d.state = stateBody
			if d.bodyLength == 0 {
				d.state = stateCRC
			}
		}
	case stateBody:
		if d.bufferIndex == HeaderSize+d.bodyLength {
			d.state = stateCRC
		}
	case stateCRC:
		if d.bufferIndex == HeaderSize+d.bodyLength+CRCSize {
			d.state = stateEnd
		}
	case stateEnd:
		d.Reset()
		return nil, fmt.Errorf("data after CRC, expected END byte")
	}
	return nil, nil
}

func (d *Decoder) finish() (*Packet, error) {
	n := HeaderSize + d.bodyLength
	want := binary.BigEndian.Uint16(d.buffer[n : n+CRCSize])
	if got := CalculateCRC(d.buffer[:n]); got != want {
		return nil, fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", got, want)
	}
	p := &Packet{
		Kind:      Kind(d.buffer[2]),
		Seq:       d.buffer[3],
		timestamp: time.Now(),
	}
	if d.bodyLength > 0 {
		if err := cbor.Unmarshal(d.buffer[HeaderSize:n], &p.Body); err != nil {
			return nil, fmt.Errorf("decode %s body: %w", p.Kind, err)
		}
	}
	return p, nil
}
