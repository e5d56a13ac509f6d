// internal/app/system/fetcher/fetcher.go
//
// Package fetcher performs the agent's outbound requests and buffers the
// upstream response so it can be both returned and stored.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dalemusser/campushub/internal/app/system/timeouts"
	"github.com/dalemusser/campushub/internal/domain/models"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes bounds a buffered response body.
const DefaultMaxBodyBytes int64 = 32 << 20

// ErrBodyTooLarge is returned when an upstream body exceeds the limit.
var ErrBodyTooLarge = errors.New("fetcher: response body too large")

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPFetcher fetches over HTTP. A response whose final URL is on Origin is
// typed basic; anything else is cors.
type HTTPFetcher struct {
	client  *http.Client
	origin  *url.URL
	maxBody int64
	log     *zap.Logger
}

// New creates a fetcher for the given origin. A nil client uses
// http.DefaultClient; maxBody <= 0 uses DefaultMaxBodyBytes.
func New(client *http.Client, origin *url.URL, maxBody int64, logger *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &HTTPFetcher{client: client, origin: origin, maxBody: maxBody, log: logger}
}

// Origin returns the origin responses are compared against.
func (f *HTTPFetcher) Origin() *url.URL {
	return f.origin
}

// Fetch sends req and buffers the response. Any HTTP status is a response; only
// transport failures (and oversized bodies) are errors. The request is bound
// to the fetch timeout.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*models.Response, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Fetch(), f.log, "fetch "+req.URL.String())
	defer cancel()

	out := req.Clone(ctx)
	out.RequestURI = ""
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	removeHopHeaders(out.Header)

	resp, err := f.client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, ErrBodyTooLarge)
	}

	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	header := resp.Header.Clone()
	removeHopHeaders(header)
	header.Del("Content-Length")

	return &models.Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
		Type:   f.responseType(final),
		URL:    final.String(),
	}, nil
}

func (f *HTTPFetcher) responseType(u *url.URL) models.ResponseType {
	if SameOrigin(f.origin, u) {
		return models.ResponseBasic
	}
	return models.ResponseCORS
}

// SameOrigin compares scheme and host (including port).
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
