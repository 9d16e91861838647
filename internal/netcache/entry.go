package netcache

import (
	"net/http"
	"time"
)

// CacheDateHeader stamps stored copies with the time they were fetched.
const CacheDateHeader = "Sw-Cache-Date"

// SourceHeader tells clients where a response came from: network, cache, stale or offline.
const SourceHeader = "X-Cache-Source"

// Entry is a stored response.
type Entry struct {
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Date returns the freshness reference of the entry: the cache date stamp, then the HTTP Date
// header, then the time it was stored.
func (e *Entry) Date() time.Time {
	for _, name := range []string{CacheDateHeader, "Date"} {
		if value := e.Header.Get(name); value != "" {
			if t, err := http.ParseTime(value); err == nil {
				return t.UTC()
			}
		}
	}
	return e.StoredAt
}

// Age is the time elapsed since Date.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Date())
}

func requestKey(method, uri string) string {
	return method + " " + uri
}

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func stripHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
