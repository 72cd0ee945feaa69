// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamgrab/internal/classify"
	"github.com/ManuGH/streamgrab/internal/fetch"
)

// origin is an in-memory CDN. Requests for a URL in block signal arrival
// and then hang until their context ends; URLs in fail return a transport
// error.
type origin struct {
	mu       sync.Mutex
	bodies   map[string]string
	block    map[string]chan struct{}
	fail     map[string]error
	calls    []fetch.Request
	inFlight int
	maxIn    int
}

func newOrigin() *origin {
	return &origin{
		bodies: make(map[string]string),
		block:  make(map[string]chan struct{}),
		fail:   make(map[string]error),
	}
}

func (o *origin) serve(url, body string) {
	o.mu.Lock()
	o.bodies[url] = body
	o.mu.Unlock()
}

// blockOn makes the next request for url hang. The returned channel closes
// when that request arrives.
func (o *origin) blockOn(url string) <-chan struct{} {
	ch := make(chan struct{})
	o.mu.Lock()
	o.block[url] = ch
	o.mu.Unlock()
	return ch
}

func (o *origin) failOn(url string, err error) {
	o.mu.Lock()
	o.fail[url] = err
	o.mu.Unlock()
}

func (o *origin) Retrieve(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
	o.mu.Lock()
	o.calls = append(o.calls, req)
	o.inFlight++
	o.maxIn = max(o.maxIn, o.inFlight)
	arrived, blocked := o.block[req.URL]
	delete(o.block, req.URL)
	failErr := o.fail[req.URL]
	body, ok := o.bodies[req.URL]
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight--
		o.mu.Unlock()
	}()

	if blocked {
		close(arrived)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failErr != nil {
		return nil, failErr
	}
	if !ok {
		return &fetch.Response{Status: http.StatusNotFound}, nil
	}
	if req.Method == http.MethodHead {
		return &fetch.Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Length": []string{strconv.Itoa(len(body))}},
		}, nil
	}
	return &fetch.Response{Status: http.StatusOK, Body: []byte(body)}, nil
}

func (o *origin) hits(url string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.calls {
		if c.URL == url {
			n++
		}
	}
	return n
}

func (o *origin) gets() []fetch.Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []fetch.Request
	for _, c := range o.calls {
		if c.Method == "" || c.Method == http.MethodGet {
			out = append(out, c)
		}
	}
	return out
}

func (o *origin) maxInFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxIn
}

// servePlaylist publishes an n-segment media playlist at base+"/index.m3u8"
// whose segments are base+"/seg-<i>.ts" with body "<name>-<i>;".
func (o *origin) servePlaylist(base, name string, n int) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-TARGETDURATION:4\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "#EXTINF:4.0,\nseg-%d.ts\n", i)
		o.serve(segURL(base, i), fmt.Sprintf("%s-%d;", name, i))
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	url := base + "/index.m3u8"
	o.serve(url, b.String())
	return url
}

func segURL(base string, i int) string {
	return fmt.Sprintf("%s/seg-%d.ts", base, i)
}

type savedFile struct {
	name string
	data string
}

type recordingSink struct {
	mu    sync.Mutex
	files []savedFile
	err   error
}

func (s *recordingSink) Save(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, savedFile{name: name, data: string(data)})
	return s.err
}

func (s *recordingSink) saved() []savedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]savedFile(nil), s.files...)
}

func newTestCoordinator(t *testing.T, o *origin, s *recordingSink, mutate ...func(*Options)) *Coordinator {
	t.Helper()
	opts := Options{
		Fetcher: o,
		Sink:    s,
		Rules:   classify.DefaultRules(),
		Limits:  Limits{EstimateSize: false},
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}
