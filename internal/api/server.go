// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the stream engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/streamgrab/internal/api/middleware"
	"github.com/ManuGH/streamgrab/internal/bus"
	"github.com/ManuGH/streamgrab/internal/engine"
	xglog "github.com/ManuGH/streamgrab/internal/log"
	"github.com/ManuGH/streamgrab/internal/manifest"
)

// Engine is the subset of the coordinator the HTTP surface drives.
type Engine interface {
	HandleManifest(ctx context.Context, d engine.Discovery) (*engine.StreamView, error)
	Rescan(ctx context.Context, pageURL string) (int, error)
	StartDownload(id string) error
	Batch(ctx context.Context, ids []string) []engine.Outcome
	Cancel(id string) error
	Dismiss(id string) error
	Reset()
	Streams() []engine.StreamView
	Stream(id string) (engine.StreamView, error)
	Segments(id string) ([]manifest.Segment, error)
	Ignored() []engine.IgnoredManifest
}

var _ Engine = (*engine.Coordinator)(nil)

// DefaultKeepAlive is the idle interval between event stream pings.
const DefaultKeepAlive = 15 * time.Second

// Config wires the server.
type Config struct {
	Engine  Engine
	Bus     bus.Bus
	Version string

	// Stack configures the ingress middleware.
	Stack middleware.StackConfig
	// KeepAlive overrides DefaultKeepAlive.
	KeepAlive time.Duration
	// Metrics serves /metrics; nil disables the route.
	Metrics http.Handler
}

// Server is the HTTP API. Background work started by requests is bound to
// the server lifetime, not the request.
type Server struct {
	engine    Engine
	bus       bus.Bus
	version   string
	keepAlive time.Duration
	handler   http.Handler

	rootCtx    context.Context
	rootCancel context.CancelFunc
	// bgMu orders wg.Add against the cancel in Close.
	bgMu      sync.Mutex
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds the server and its router.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("api: engine is required")
	}
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		engine:     cfg.Engine,
		bus:        cfg.Bus,
		version:    cfg.Version,
		keepAlive:  keepAlive,
		rootCtx:    ctx,
		rootCancel: cancel,
	}
	s.handler = s.routes(cfg.Stack, cfg.Metrics)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close cancels request-spawned work and waits for it to finish.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.bgMu.Lock()
		s.rootCancel()
		s.bgMu.Unlock()
		s.wg.Wait()
		logger := xglog.WithComponent("api")
		logger.Debug().Msg("api background work drained")
	})
}

// goBackground runs fn on the server context unless the server is closing.
func (s *Server) goBackground(fn func(ctx context.Context)) bool {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	if s.rootCtx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.rootCtx)
	}()
	return true
}
