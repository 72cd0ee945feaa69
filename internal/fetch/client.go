// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/idna"
	"golang.org/x/time/rate"
)

const (
	defaultDialTimeout           = 10 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 32
	defaultMaxIdleConnsPerHost   = 4
	defaultUserAgent             = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36"
)

// HeaderRule adapts request headers for hosts that check the origin of a request.
type HeaderRule struct {
	HostSuffix string
	Referer    string
	Origin     string
	Headers    map[string]string
}

func (r HeaderRule) matches(host string) bool {
	suffix := normalizeHost(strings.TrimPrefix(r.HostSuffix, "."))
	host = normalizeHost(host)
	return suffix != "" && (host == suffix || strings.HasSuffix(host, "."+suffix))
}

// normalizeHost lower-cases host and converts internationalized names to
// their ASCII form so rules written either way match.
func normalizeHost(host string) string {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	return strings.ToLower(host)
}

// Options configures Client.
type Options struct {
	UserAgent   string
	RatePerHost float64 // requests per second per host; <= 0 disables pacing
	Burst       int
	HeaderRules []HeaderRule
	Transport   http.RoundTripper // optional; used by tests
}

// Client is the HTTP Retriever. It imposes no overall request timeout: a hung
// transfer only ends when the origin finishes or ctx is cancelled.
type Client struct {
	http      *http.Client
	userAgent string
	rules     []HeaderRule

	ratePerHost rate.Limit
	burst       int
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
}

// NewClient builds a Client with a tuned transport wrapped in otelhttp.
func NewClient(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          defaultMaxIdleConns,
			MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   defaultDialTimeout,
			ExpectContinueTimeout: defaultExpectContinueTimeout,
		}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		http:        &http.Client{Transport: otelhttp.NewTransport(transport)},
		userAgent:   ua,
		rules:       append([]HeaderRule(nil), opts.HeaderRules...),
		ratePerHost: rate.Limit(opts.RatePerHost),
		burst:       burst,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Retrieve implements Retriever.
func (c *Client) Retrieve(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if err := c.wait(ctx, u.Host); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	c.applyRules(httpReq, u.Hostname())
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{Status: resp.StatusCode, Header: resp.Header}
	if method == http.MethodHead {
		if resp.ContentLength >= 0 && out.Header.Get("Content-Length") == "" {
			out.Header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
		}
		return out, nil
	}
	out.Body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return out, nil
}

func (c *Client) applyRules(req *http.Request, host string) {
	for _, r := range c.rules {
		if !r.matches(host) {
			continue
		}
		if r.Referer != "" {
			req.Header.Set("Referer", r.Referer)
		}
		if r.Origin != "" {
			req.Header.Set("Origin", r.Origin)
		}
		for k, v := range r.Headers {
			req.Header.Set(k, v)
		}
	}
}

func (c *Client) wait(ctx context.Context, host string) error {
	if c.ratePerHost <= 0 {
		return nil
	}
	c.mu.Lock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(c.ratePerHost, c.burst)
		c.limiters[host] = lim
	}
	c.mu.Unlock()
	return lim.Wait(ctx)
}
