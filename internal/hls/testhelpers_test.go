package hls

import (
	"context"
	"net/http"
	"sync"

	"github.com/ManuGH/streamgrab/internal/fetch"
)

// fakeOrigin serves fixed bodies by URL and records every request.
type fakeOrigin struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  []string
}

func newFakeOrigin(bodies map[string]string) *fakeOrigin {
	return &fakeOrigin{bodies: bodies}
}

func (f *fakeOrigin) Retrieve(_ context.Context, req fetch.Request) (*fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)
	body, ok := f.bodies[req.URL]
	if !ok {
		return &fetch.Response{Status: http.StatusNotFound}, nil
	}
	return &fetch.Response{Status: http.StatusOK, Body: []byte(body)}, nil
}

func (f *fakeOrigin) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}
