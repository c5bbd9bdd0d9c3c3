package fetch

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Options configures transport for a single fetch. The zero value is usable.
type Options struct {
	// Proxy is an explicit proxy URL. Empty means use the environment.
	Proxy string
	// UserAgent overrides the fetcher's default User-Agent.
	UserAgent string
	// Timeout bounds the whole call, including reading the body. Zero means none.
	Timeout time.Duration

	headers http.Header
}

// WithHeader returns a copy of o with key set to value. o is not modified.
func (o Options) WithHeader(key, value string) Options {
	h := o.headers.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set(key, value)
	o.headers = h
	return o
}

// Header returns the first value of key, or "".
func (o Options) Header(key string) string {
	return o.headers.Get(key)
}

// Headers returns a copy of the extra request headers.
func (o Options) Headers() http.Header {
	return o.headers.Clone()
}

// Validate checks that the timeout is not negative and that the proxy URL,
// if any, is absolute.
func (o Options) Validate() error {
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if o.Proxy == "" {
		return nil
	}
	u, err := url.Parse(o.Proxy)
	if err != nil {
		return fmt.Errorf("invalid proxy URL %q: %w", o.Proxy, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid proxy URL %q: must be absolute", o.Proxy)
	}
	return nil
}

func (o Options) applyHeaders(req *http.Request) {
	for key, values := range o.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
}
