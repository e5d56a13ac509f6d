// internal/domain/models/response.go
package models

import (
	"net/http"
	"time"
)

// ResponseType mirrors the fetch response types the agent cares about.
type ResponseType string

const (
	// ResponseBasic is a same-origin response. Only basic responses are cached.
	ResponseBasic ResponseType = "basic"
	// ResponseCORS is a response from another origin.
	ResponseCORS ResponseType = "cors"
	// ResponseSynthetic is a response built by the agent itself (errors, fallbacks).
	ResponseSynthetic ResponseType = "default"
)

// Response is a fully buffered HTTP response. Buffering lets the agent hand
// one copy to the caller and store another without coordinating readers.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Type   ResponseType
	URL    string
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Clone returns a deep copy.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = http.Header{}
	}
	c.Body = append([]byte(nil), r.Body...)
	return &c
}

// CachedResponse is a stored response plus the bookkeeping the cache keeps
// alongside it.
type CachedResponse struct {
	Key      string
	Response *Response
	StoredAt time.Time
}
