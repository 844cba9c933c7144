package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsattic/feed2json/app/feed"
	"github.com/appsattic/feed2json/app/tasks"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <item>
      <title>First</title>
      <guid>item-1</guid>
    </item>
  </channel>
</rss>`

type busyScheduler struct{}

func (busyScheduler) Start()                               {}
func (busyScheduler) Stop()                                {}
func (busyScheduler) EnqueueTask(tasks.TaskInterface) error { return tasks.ErrQueueFull }

func newTestServer(t *testing.T, scheduler tasks.TaskSchedulerInterface, opts ServerOptions) http.Handler {
	t.Helper()
	if scheduler == nil {
		pool := tasks.NewPool(2, 8, 5*time.Second)
		pool.Start()
		t.Cleanup(pool.Stop)
		scheduler = pool
	}
	if opts.LogOutput == nil {
		opts.LogOutput = io.Discard
	}
	handler := NewHandler(scheduler, feed.NewFetcher(time.Second, ""), feed.NewStreamParser(), "test-version")
	return NewServer(handler, opts)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Err
}

func convertURL(feedURL, minify string) string {
	q := url.Values{}
	q.Set("url", feedURL)
	if minify != "" {
		q.Set("minify", minify)
	}
	return "/convert?" + q.Encode()
}

func TestConvert_MissingURL(t *testing.T) {
	server := newTestServer(t, nil, ServerOptions{})

	w := get(t, server, "/convert")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "provide a 'url' parameter in your query", decodeError(t, w))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestConvert_InvalidURL(t *testing.T) {
	server := newTestServer(t, nil, ServerOptions{})

	for _, raw := range []string{"not a url", "ftp://example.com/feed", "example.com/feed", "http://"} {
		t.Run(raw, func(t *testing.T) {
			w := get(t, server, convertURL(raw, ""))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid 'url' : "+raw, decodeError(t, w))
		})
	}
}

func TestConvert_Success(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		io.WriteString(w, testRSS)
	}))
	defer upstream.Close()

	server := newTestServer(t, nil, ServerOptions{})

	pretty := get(t, server, convertURL(upstream.URL+"/feed.xml", ""))
	require.Equal(t, http.StatusOK, pretty.Code, pretty.Body.String())
	assert.Equal(t, feed.ContentType, pretty.Header().Get("Content-Type"))
	assert.Contains(t, pretty.Body.String(), "\n  \"version\"")

	compact := get(t, server, convertURL(upstream.URL+"/feed.xml", "yes"))
	require.Equal(t, http.StatusOK, compact.Code)
	assert.NotContains(t, compact.Body.String(), "\n")
	assert.JSONEq(t, pretty.Body.String(), compact.Body.String())

	var doc feed.Document
	require.NoError(t, json.Unmarshal(compact.Body.Bytes(), &doc))
	assert.Equal(t, "Test Feed", doc.Title)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "item-1", doc.Items[0].GUID)
}

func TestConvert_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	server := newTestServer(t, nil, ServerOptions{})

	w := get(t, server, convertURL(upstream.URL, ""))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	msg := decodeError(t, w)
	assert.True(t, strings.HasPrefix(msg, "error when requesting the feed : "), msg)
	assert.Contains(t, msg, "bad status code")
}

func TestConvert_QueueFull(t *testing.T) {
	server := newTestServer(t, busyScheduler{}, ServerOptions{})

	w := get(t, server, convertURL("https://example.com/feed.xml", ""))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotEmpty(t, decodeError(t, w))
}

func TestGetHealth(t *testing.T) {
	server := newTestServer(t, busyScheduler{}, ServerOptions{})

	w := get(t, server, "/health")

	require.Equal(t, http.StatusOK, w.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test-version", health.Version)
	_, err := time.Parse(time.RFC3339, health.Timestamp)
	assert.NoError(t, err)
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>feed2json</h1>"), 0o644))

	server := newTestServer(t, busyScheduler{}, ServerOptions{StaticDir: dir})

	index := get(t, server, "/")
	assert.Equal(t, http.StatusOK, index.Code)
	assert.Contains(t, index.Body.String(), "<h1>feed2json</h1>")

	missing := get(t, server, "/nope.txt")
	assert.Equal(t, http.StatusNotFound, missing.Code)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSHeaders(t *testing.T) {
	server := newTestServer(t, busyScheduler{}, ServerOptions{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://client.example")
	server.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	server := newTestServer(t, busyScheduler{}, ServerOptions{RateLimit: 0.001, RateBurst: 2})

	assert.Equal(t, http.StatusOK, get(t, server, "/health").Code)
	assert.Equal(t, http.StatusOK, get(t, server, "/health").Code)

	w := get(t, server, "/health")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "too many requests", decodeError(t, w))
}

func TestRequestLogFormat(t *testing.T) {
	var buf bytes.Buffer
	server := newTestServer(t, busyScheduler{}, ServerOptions{Production: true, LogOutput: &buf})

	get(t, server, "/health")

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "GET /health 200 "), line)
	assert.Contains(t, line, " ms")
}

func TestIsWebURI(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"http://example.com", true},
		{"https://example.com/feed.xml?format=rss&x=1", true},
		{"HTTPS://Example.com/feed", true},
		{"http://localhost:8080/rss", true},
		{"ftp://example.com/feed", false},
		{"mailto:someone@example.com", false},
		{"//example.com/feed", false},
		{"/relative/path", false},
		{"http:///no-host", false},
		{"http://exa mple.com", false},
		{"http://example.com/<script>", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := isWebURI(tt.input)
			assert.Equal(t, tt.valid, ok)
			if tt.valid {
				assert.Equal(t, tt.input, got)
			}
		})
	}
}

func TestBooleanify(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"true", true},
		{"TRUE", true},
		{"yes", true},
		{"y", true},
		{"on", true},
		{"1", true},
		{" Yes ", true},
		{"", false},
		{"false", false},
		{"no", false},
		{"0", false},
		{"2", false},
		{"minify", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, booleanify(tt.input))
		})
	}
}
