// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	xglog "github.com/ManuGH/streamgrab/internal/log"
	"github.com/ManuGH/streamgrab/internal/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

const dropLogEvery = 100

// MemoryBus is an in-process pub/sub. Publish never blocks: a subscriber
// whose buffer is full misses the message and the drop is counted.
type MemoryBus struct {
	mu      sync.RWMutex
	subs    map[string][]*memSub
	buffer  int
	dropped atomic.Uint64
}

func NewMemoryBus() *MemoryBus {
	return NewMemoryBusWithBuffer(DefaultBuffer)
}

// NewMemoryBusWithBuffer sets the per-subscriber capacity (minimum 1).
func NewMemoryBusWithBuffer(buffer int) *MemoryBus {
	if buffer < 1 {
		buffer = 1
	}
	return &MemoryBus{subs: make(map[string][]*memSub), buffer: buffer}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	if err := ctx.Err(); err != nil {
		metrics.IncBusDropReason(topic, publishDropReason(err))
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}

	// Sends happen under the read lock so Close cannot close a channel
	// mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	metrics.IncBusPublished(topic)
	for _, s := range b.subs[topic] {
		select {
		case s.ch <- msg:
		default:
			metrics.IncBusDrop(topic)
			if count := b.dropped.Add(1); count%dropLogEvery == 1 {
				logger := xglog.WithComponent("bus")
				logger.Warn().
					Str("topic", topic).
					Uint64("dropped", count).
					Msg("subscriber buffer full, dropping notification")
			}
		}
	}
	return nil
}

// Subscribe registers a subscriber for topic. The subscription ends when
// Close is called or ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	if ctx == nil {
		return nil, fmt.Errorf("subscribe context is nil")
	}
	s := &memSub{b: b, topic: topic, ch: make(chan Message, b.buffer)}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	s.stop = context.AfterFunc(ctx, s.unsubscribe)
	return s, nil
}

// Dropped returns the number of notifications dropped so far.
func (b *MemoryBus) Dropped() uint64 {
	return b.dropped.Load()
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan Message
	stop  func() bool
	once  sync.Once
}

func (s *memSub) C() <-chan Message {
	return s.ch
}

func (s *memSub) Close() error {
	if s.stop != nil {
		s.stop()
	}
	s.unsubscribe()
	return nil
}

func (s *memSub) unsubscribe() {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		lst := s.b.subs[s.topic]
		out := lst[:0]
		for _, c := range lst {
			if c != s {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
		close(s.ch)
	})
}

var _ Bus = (*MemoryBus)(nil)
