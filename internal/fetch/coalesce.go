// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"net/http"

	"golang.org/x/sync/singleflight"
)

// Coalescer shares one in-flight GET among concurrent callers asking for the
// same URL. It is meant for manifests, which several resolution tasks can
// request at once (e.g. two master playlists pointing at one variant).
// Requests with custom headers or non-GET methods pass straight through.
type Coalescer struct {
	next  Retriever
	group singleflight.Group
}

// NewCoalescer wraps next.
func NewCoalescer(next Retriever) *Coalescer {
	return &Coalescer{next: next}
}

// Retrieve implements Retriever.
func (c *Coalescer) Retrieve(ctx context.Context, req Request) (*Response, error) {
	if (req.Method != "" && req.Method != http.MethodGet) || len(req.Header) > 0 {
		return c.next.Retrieve(ctx, req)
	}
	ch := c.group.DoChan(req.URL, func() (any, error) {
		return c.next.Retrieve(context.WithoutCancel(ctx), req)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response), nil
	}
}
