// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

// ResponseBuffer encodes a response FIFO buffer the way the FPGA presents it.
// Bridges and tests use it to answer command batches.
type ResponseBuffer struct {
	words []uint16
}

// NewResponseBuffer starts a buffer with the raw batch timestamp in microseconds.
func NewResponseBuffer(batchTimestamp uint64) *ResponseBuffer {
	r := &ResponseBuffer{}
	for i := TimestampWords - 1; i >= 0; i-- {
		r.words = append(r.words, uint16(batchTimestamp>>(16*uint(i))))
	}
	return r
}

// Frame appends address, function, payload and CRC, then the frame timestamp.
func (r *ResponseBuffer) Frame(address, function uint8, payload []byte, timestamp uint64) {
	data := make([]byte, 0, len(payload)+4)
	data = append(data, address, function)
	data = append(data, payload...)
	crc := CalculateCRC(data)
	data = append(data, uint8(crc), uint8(crc>>8))
	r.Raw(data, timestamp)
}

// Exception appends an exception reply for function.
func (r *ResponseBuffer) Exception(address, function, code uint8, timestamp uint64) {
	r.Frame(address, function|ExceptionFlag, []byte{code}, timestamp)
}

// Raw appends data words as is, then the frame timestamp.
func (r *ResponseBuffer) Raw(data []byte, timestamp uint64) {
	for _, b := range data {
		r.words = append(r.words, RxWrite|uint16(b))
	}
	for i := TimestampWords - 1; i >= 0; i-- {
		r.words = append(r.words, RxTimestamp|uint16(timestamp>>(12*uint(i)))&^TagMask)
	}
}

// Words returns the encoded buffer.
func (r *ResponseBuffer) Words() []uint16 { return r.words }

// CommandFrame is one request decoded from a command FIFO batch.
type CommandFrame struct {
	Subnet   uint8
	Address  uint8
	Function FunctionCode
	Payload  []byte
	CRCValid bool
	// Wait is the timing directive word following the frame.
	Wait uint16
}

// DecodeCommands splits command FIFO words back into frames. It is the
// inverse of Buffer and is what a bridge or simulator runs.
func DecodeCommands(words []uint16) ([]CommandFrame, error) {
	var out []CommandFrame
	i := 0
	for i < len(words) {
		if i+3 > len(words) {
			return out, errTruncatedBatch(i)
		}
		subnet := uint8(words[i])
		length := int(words[i+1])
		if words[i+2] != TxWaitTrigger {
			return out, errBadBatch(i, "missing software trigger")
		}
		start := i + 3
		end := start + length
		if end >= len(words) || words[end] != TxIRQTrigger {
			return out, errBadBatch(i, "length does not reach trigger IRQ marker")
		}

		var data []byte
		for j := start; j < end; j++ {
			w := words[j]
			switch {
			case w&TagMask == TxWrite:
				data = append(data, uint8(w))
			case w == TxFrameEnd:
				f := CommandFrame{Subnet: subnet}
				if len(data) >= 4 {
					f.Address = data[0]
					f.Function = FunctionCode(data[1])
					f.Payload = append([]byte(nil), data[2:len(data)-2]...)
					f.CRCValid = CalculateCRC(data[:len(data)-2]) == uint16(data[len(data)-2])|uint16(data[len(data)-1])<<8
				}
				if j+1 < end {
					f.Wait = words[j+1]
					j++
				}
				out = append(out, f)
				data = data[:0]
			}
		}
		i = end + 1
	}
	return out, nil
}
