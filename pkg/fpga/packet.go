// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fpga

import (
	"fmt"
	"time"
)

// Body is the CBOR encoded part of a link packet. Unused fields are omitted.
type Body struct {
	Subnet        uint8    `cbor:"1,keyasint,omitempty"`
	Words         []uint16 `cbor:"2,keyasint,omitempty"`
	TimeoutMicros uint32   `cbor:"3,keyasint,omitempty"`
	Status        uint8    `cbor:"4,keyasint,omitempty"`
	Message       string   `cbor:"5,keyasint,omitempty"`
}

// Packet is one decoded link packet.
type Packet struct {
	Kind Kind
	Seq  uint8
	Body Body

	timestamp time.Time
}

// Timestamp returns when the packet was decoded.
func (p *Packet) Timestamp() time.Time { return p.timestamp }

func (p *Packet) String() string {
	switch p.Kind {
	case KindCommandWrite:
		return fmt.Sprintf("%s seq=%d words=%d", p.Kind, p.Seq, len(p.Body.Words))
	case KindWaitIRQ:
		return fmt.Sprintf("%s seq=%d subnet=%d timeout=%dus", p.Kind, p.Seq, p.Body.Subnet, p.Body.TimeoutMicros)
	case KindIRQ:
		return fmt.Sprintf("%s seq=%d subnet=%d status=%d", p.Kind, p.Seq, p.Body.Subnet, p.Body.Status)
	case KindResponseRead:
		return fmt.Sprintf("%s seq=%d subnet=%d", p.Kind, p.Seq, p.Body.Subnet)
	case KindResponseData:
		return fmt.Sprintf("%s seq=%d subnet=%d words=%d", p.Kind, p.Seq, p.Body.Subnet, len(p.Body.Words))
	case KindError:
		return fmt.Sprintf("%s seq=%d status=%d %q", p.Kind, p.Seq, p.Body.Status, p.Body.Message)
	default:
		return fmt.Sprintf("%s(0x%02X) seq=%d", p.Kind, uint8(p.Kind), p.Seq)
	}
}
