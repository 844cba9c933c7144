package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// Some hosts refuse to serve feeds to anything that does not look like a browser.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/42.0.2311.135 Safari/537.36 Edge/12.246"
	DefaultAccept    = "text/html,application/xhtml+xml"
	DefaultTimeout   = 10 * time.Second
)

type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

func (r *Response) Params() map[string]string {
	return HeaderParams(r.Header.Get("Content-Type"))
}

func (r *Response) Charset() string {
	return r.Params()["charset"]
}

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	accept     string
}

func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DisableKeepAlives:     true,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
			},
		},
		userAgent: userAgent,
		accept:    DefaultAccept,
	}
}

// Fetch issues a single GET for url. On success the caller owns resp.Body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", f.accept)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &UpstreamStatusError{URL: url, StatusCode: resp.StatusCode}
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}

	slog.Debug("Resolved header parameters", "url", url, "params", response.Params())

	return response, nil
}
