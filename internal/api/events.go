// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/streamgrab/internal/bus"
	"github.com/ManuGH/streamgrab/internal/engine"
	xglog "github.com/ManuGH/streamgrab/internal/log"
)

const (
	eventSnapshot = "snapshot"
	eventBuffer   = 64
)

// handleEvents streams engine notifications as server-sent events. The
// first event is a snapshot of all streams so clients can render without a
// separate list call.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "events_unavailable", nil)
		return
	}
	rc := http.NewResponseController(w)

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	events := make(chan engine.Event, eventBuffer)
	for _, topic := range bus.StreamTopics {
		sub, err := s.bus.Subscribe(ctx, topic)
		if err != nil {
			writeEngineError(w, r, fmt.Errorf("subscribe %s: %w", topic, err), false)
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { _ = sub.Close() }()
			forward(ctx, sub, events)
		}()
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, eventSnapshot, s.engine.Streams()); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			logger := xglog.WithComponentFromContext(ctx, "api")
			logger.Warn().Msg("event stream without flush support")
		}
		return
	}

	ping := time.NewTicker(s.keepAlive)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if err := writeEvent(w, ev.Topic, ev.Stream); err != nil {
				return
			}
		case <-ping.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// forward copies engine events from sub to out until ctx ends or sub closes.
func forward(ctx context.Context, sub bus.Subscriber, out chan<- engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			ev, ok := msg.(engine.Event)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func writeEvent(w io.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
