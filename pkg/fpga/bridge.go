// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fpga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Stats counts link traffic.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	DecodeErrors    uint64
	StaleReplies    uint64
}

// Bridge speaks the link protocol to the FPGA bridge. It satisfies the ILC
// FIFO interface. Requests are serialised; replies are matched by sequence
// number and stale replies are dropped.
type Bridge struct {
	conn         Connection
	log          *zap.Logger
	replyTimeout time.Duration
	irqMargin    time.Duration

	mu  sync.Mutex
	seq uint8

	in        chan *Packet
	done      chan struct{}
	err       error
	closeOnce sync.Once

	sent, received, decodeErrors, stale atomic.Uint64
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) BridgeOption {
	return func(b *Bridge) { b.log = l }
}

// WithReplyTimeout bounds the wait for a response FIFO read.
func WithReplyTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.replyTimeout = d }
}

// WithIRQMargin is added to the subnet timeout to cover link latency.
func WithIRQMargin(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.irqMargin = d }
}

// NewBridge starts reading conn. Close stops it.
func NewBridge(conn Connection, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		conn:         conn,
		log:          zap.NewNop(),
		replyTimeout: 100 * time.Millisecond,
		irqMargin:    50 * time.Millisecond,
		in:           make(chan *Packet, 16),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.readLoop()
	return b
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		PacketsSent:     b.sent.Load(),
		PacketsReceived: b.received.Load(),
		DecodeErrors:    b.decodeErrors.Load(),
		StaleReplies:    b.stale.Load(),
	}
}

// Close shuts the link down.
func (b *Bridge) Close() error {
	b.fail(ErrClosed)
	return b.conn.Close()
}

func (b *Bridge) fail(err error) {
	b.closeOnce.Do(func() {
		b.err = err
		close(b.done)
	})
}

func (b *Bridge) readLoop() {
	buf := make([]byte, 4096)
	dec := NewDecoder()
	for {
		n, err := b.conn.Read(buf)
		if n > 0 {
			packets, errs := dec.Decode(buf[:n])
			for _, derr := range errs {
				b.decodeErrors.Add(1)
				b.log.Debug("link decode error", zap.Error(derr))
			}
			for _, p := range packets {
				b.received.Add(1)
				select {
				case b.in <- p:
				case <-b.done:
					return
				}
			}
		}
		if err != nil {
			b.fail(err)
			return
		}
	}
}

func (b *Bridge) closedErr() error {
	if errors.Is(b.err, ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, b.err)
}

func (b *Bridge) send(kind Kind, body Body) (uint8, error) {
	select {
	case <-b.done:
		return 0, b.closedErr()
	default:
	}
	b.seq++
	data, err := Encode(&Packet{Kind: kind, Seq: b.seq, Body: body})
	if err != nil {
		return 0, err
	}
	if _, err := b.conn.Write(data); err != nil {
		return 0, fmt.Errorf("write %s: %w", kind, err)
	}
	b.sent.Add(1)
	return b.seq, nil
}

func (b *Bridge) await(ctx context.Context, seq uint8, kind Kind) (*Packet, error) {
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w waiting for %s seq %d", ErrTimeout, kind, seq)
			}
			return nil, ctx.Err()
		case <-b.done:
			return nil, b.closedErr()
		case p := <-b.in:
			if p.Seq != seq {
				b.stale.Add(1)
				b.log.Debug("dropping stale reply", zap.Stringer("packet", p), zap.Uint8("want_seq", seq))
				continue
			}
			if p.Kind == KindError {
				return nil, fmt.Errorf("%w: %s (status %d)", ErrBridge, p.Body.Message, p.Body.Status)
			}
			if p.Kind != kind {
				return nil, fmt.Errorf("unexpected %s reply to seq %d, want %s", p.Kind, seq, kind)
			}
			return p, nil
		}
	}
}

// WriteCommandFIFO sends command words. The bridge does not acknowledge them.
func (b *Bridge) WriteCommandFIFO(ctx context.Context, words []uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.send(KindCommandWrite, Body{Words: words})
	return err
}

// WaitForSubnet waits for the IRQ of a subnet, up to timeout on the bridge.
func (b *Bridge) WaitForSubnet(ctx context.Context, subnet uint8, timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq, err := b.send(KindWaitIRQ, Body{Subnet: subnet, TimeoutMicros: uint32(timeout.Microseconds())})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout+b.irqMargin)
	defer cancel()
	p, err := b.await(ctx, seq, KindIRQ)
	if err != nil {
		return err
	}
	if p.Body.Status == IRQTimeout {
		return fmt.Errorf("%w: subnet %d IRQ", ErrTimeout, subnet)
	}
	return nil
}

// ReadResponseFIFO reads the response words of a subnet.
func (b *Bridge) ReadResponseFIFO(ctx context.Context, subnet uint8) ([]uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq, err := b.send(KindResponseRead, Body{Subnet: subnet})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, b.replyTimeout)
	defer cancel()
	p, err := b.await(ctx, seq, KindResponseData)
	if err != nil {
		return nil, err
	}
	if p.Body.Subnet != subnet {
		return nil, fmt.Errorf("response FIFO for subnet %d, asked for %d", p.Body.Subnet, subnet)
	}
	return p.Body.Words, nil
}
