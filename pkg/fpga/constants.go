// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package fpga carries the ILC command and response FIFOs to the FPGA bridge
// over a serial port or a websocket.
//
// A link packet is framed as
//
//	START | stuffed(length u16 | kind u8 | seq u8 | CBOR body | crc u16) | END
//
// where length counts the CBOR body bytes and the CRC-16-CCITT covers every
// byte between the framing bytes before stuffing. Multi-byte header fields
// are big-endian.
package fpga

import "errors"

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Packet size limits
const (
	HeaderSize    = 4
	CRCSize       = 2
	MaxBodySize   = 16384
	MaxPacketSize = HeaderSize + MaxBodySize + CRCSize
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Kind identifies a link packet.
type Kind uint8

const (
	// KindCommandWrite carries command FIFO words, host to bridge.
	KindCommandWrite Kind = 0x01
	// KindWaitIRQ asks the bridge to wait for a subnet IRQ.
	KindWaitIRQ Kind = 0x02
	// KindIRQ answers KindWaitIRQ.
	KindIRQ Kind = 0x03
	// KindResponseRead asks for the response FIFO of a subnet.
	KindResponseRead Kind = 0x04
	// KindResponseData answers KindResponseRead.
	KindResponseData Kind = 0x05
	// KindError reports a bridge side failure for a request.
	KindError Kind = 0x0E
)

func (k Kind) String() string {
	switch k {
	case KindCommandWrite:
		return "COMMAND_WRITE"
	case KindWaitIRQ:
		return "WAIT_IRQ"
	case KindIRQ:
		return "IRQ"
	case KindResponseRead:
		return "RESPONSE_READ"
	case KindResponseData:
		return "RESPONSE_DATA"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IRQ status values carried by KindIRQ.
const (
	IRQRaised  uint8 = 0
	IRQTimeout uint8 = 1
)

var (
	// ErrTimeout is returned when a subnet IRQ or a reply did not arrive in time.
	ErrTimeout = errors.New("fpga: timeout")
	// ErrClosed is returned once the link is closed.
	ErrClosed = errors.New("fpga: link closed")
	// ErrBridge wraps a KindError reply.
	ErrBridge = errors.New("fpga: bridge error")
)
