// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fpga

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Encode returns the wire form of a packet, framed and stuffed.
func Encode(p *Packet) ([]byte, error) {
	body, err := cbor.Marshal(p.Body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("body too large: %d bytes (max %d)", len(body), MaxBodySize)
	}

	data := make([]byte, HeaderSize, HeaderSize+len(body)+CRCSize)
	binary.BigEndian.PutUint16(data[0:2], uint16(len(body)))
	data[2] = uint8(p.Kind)
	data[3] = p.Seq
	data = append(data, body...)
	data = binary.BigEndian.AppendUint16(data, CalculateCRC(data))

	stuffed := stuffBytes(data)
	packet := make([]byte, 0, len(stuffed)+2)
	packet = append(packet, StartByte)
	packet = append(packet, stuffed...)
	packet = append(packet, EndByte)
	return packet, nil
}

// stuffBytes escapes the framing bytes as ESC followed by the byte XOR EscXor.
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)+len(data)/8)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}
