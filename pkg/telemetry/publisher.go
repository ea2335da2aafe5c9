// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/Thermoquad/mirrorsupport/pkg/flags"
	"github.com/Thermoquad/mirrorsupport/pkg/ilc"
)

// Sink receives encoded envelopes. Send must not block.
type Sink interface {
	Send(data []byte)
}

type topic struct {
	kind Kind
	key  string
}

type pendingWarning struct {
	warning ilc.Warning
	flags   flags.Set[ilc.WarningFlag]
}

// Publisher encodes events and forwards the changed ones to its sinks.
// Publish, ILCWarning and Flush are called from the control loop goroutine;
// Snapshot may be called from any goroutine.
type Publisher struct {
	log   *zap.Logger
	clock func() float64

	mu    sync.Mutex
	sinks []Sink
	last  map[topic]Envelope

	pending   map[int32]*pendingWarning
	published map[int32]pendingWarning
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) PublisherOption {
	return func(p *Publisher) { p.log = l }
}

// WithClock replaces the wall clock, in seconds.
func WithClock(clock func() float64) PublisherOption {
	return func(p *Publisher) { p.clock = clock }
}

// NewPublisher returns a publisher without sinks.
func NewPublisher(opts ...PublisherOption) *Publisher {
	p := &Publisher{
		log:       zap.NewNop(),
		clock:     func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
		last:      make(map[topic]Envelope),
		pending:   make(map[int32]*pendingWarning),
		published: make(map[int32]pendingWarning),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddSink registers a sink.
func (p *Publisher) AddSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Publish encodes v and sends it when it differs from the last value of the
// same kind and key. It reports whether the event was sent.
func (p *Publisher) Publish(kind Kind, key string, v any) (bool, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", kind, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	t := topic{kind, key}
	if prev, ok := p.last[t]; ok && bytes.Equal(prev.Data, data) {
		return false, nil
	}
	env := Envelope{Kind: kind, Key: key, Time: p.clock(), Data: data}
	frame, err := cbor.Marshal(env)
	if err != nil {
		return false, fmt.Errorf("encode %s envelope: %w", kind, err)
	}
	p.last[t] = env
	for _, s := range p.sinks {
		s.Send(frame)
	}
	return true, nil
}

// Snapshot returns the last envelope of every topic, for new subscribers.
func (p *Publisher) Snapshot() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// replay hands the snapshot to fn while holding off publishes, so fn can
// register a sink without missing or reordering events.
func (p *Publisher) replay(fn func(frames [][]byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.snapshotLocked())
}

func (p *Publisher) snapshotLocked() [][]byte {
	topics := make([]topic, 0, len(p.last))
	for t := range p.last {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].kind != topics[j].kind {
			return topics[i].kind < topics[j].kind
		}
		return topics[i].key < topics[j].key
	})
	out := make([][]byte, 0, len(topics))
	for _, t := range topics {
		frame, err := cbor.Marshal(p.last[t])
		if err != nil {
			continue
		}
		out = append(out, frame)
	}
	return out
}

// ILCWarning collects a protocol warning for the next Flush.
func (p *Publisher) ILCWarning(w ilc.Warning) {
	pw, ok := p.pending[w.ActuatorID]
	if !ok {
		pw = &pendingWarning{}
		p.pending[w.ActuatorID] = pw
	}
	pw.warning = w
	pw.flags = pw.flags.Union(w.Flags)
}

// Flush publishes the warnings of the cycle for every ILC whose causes
// changed, including ILCs whose warnings cleared.
func (p *Publisher) Flush() error {
	ids := make([]int32, 0, len(p.pending)+len(p.published))
	seen := make(map[int32]bool, cap(ids))
	for id := range p.pending {
		ids = append(ids, id)
		seen[id] = true
	}
	for id := range p.published {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var firstErr error
	for _, id := range ids {
		prev := p.published[id]
		w := prev.warning
		var now flags.Set[ilc.WarningFlag]
		if pw, ok := p.pending[id]; ok {
			now, w = pw.flags, pw.warning
		}
		if now == prev.flags {
			continue
		}
		if now.Bits()&^prev.flags.Bits() != 0 {
			p.log.Warn("ILC warning",
				zap.Int32("actuator", id),
				zap.Uint8("subnet", w.Subnet),
				zap.Uint8("address", w.Address),
				zap.Stringer("function", w.Function),
				zap.Stringer("flags", now))
		}

		ev := ILCWarningEvent{ActuatorID: id, Subnet: w.Subnet, Address: w.Address, Any: now.Any()}
		if now.Any() {
			ev.Function = w.Function.String()
			for _, f := range now.Flags() {
				ev.Flags = append(ev.Flags, f.String())
			}
		}
		if _, err := p.Publish(KindILCWarning, fmt.Sprint(id), ev); err != nil && firstErr == nil {
			firstErr = err
		}
		if now.Any() {
			p.published[id] = pendingWarning{warning: w, flags: now}
		} else {
			delete(p.published, id)
		}
	}
	clear(p.pending)
	return firstErr
}

// AnyWarning reports whether any ILC has a published warning.
func (p *Publisher) AnyWarning() bool {
	return len(p.published) > 0
}
