package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/appsattic/feed2json/app/feed"
)

// Result is the single response produced for a conversion.
type Result struct {
	Status      int
	Body        []byte
	ContentType string
}

type errorBody struct {
	Err string `json:"err"`
}

// ResponseState records whether a conversion has produced its response.
// Only the first Claim succeeds.
type ResponseState struct {
	sent atomic.Bool
}

func (s *ResponseState) Claim() bool {
	return s.sent.CompareAndSwap(false, true)
}

func (s *ResponseState) Responded() bool {
	return s.sent.Load()
}

type ConvertTask struct {
	Task
	Compact bool
	fetcher FetcherInterface
	parser  ParserInterface
	state   ResponseState
	result  Result
	done    chan struct{}
}

func NewConvertTask(url string, compact bool, fetcher FetcherInterface, parser ParserInterface) *ConvertTask {
	return &ConvertTask{
		Task:    NewTask(TaskTypeConvert, url),
		Compact: compact,
		fetcher: fetcher,
		parser:  parser,
		done:    make(chan struct{}),
	}
}

// Done is closed once the result is available.
func (t *ConvertTask) Done() <-chan struct{} {
	return t.done
}

// Result must only be read after Done is closed.
func (t *ConvertTask) Result() Result {
	return t.result
}

func (t *ConvertTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		t.fail(requestReason(ctx.Err()))
		return ctx.Err()
	default:
	}

	// Cancelling aborts the body read so the parser goroutine can exit
	// once the outcome is known.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := t.fetcher.Fetch(ctx, t.URL)
	if err != nil {
		t.fail(requestReason(err))
		return fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	events := t.parser.Parse(ctx, resp.Body, feed.ParseOptions{
		Charset: resp.Charset(),
		BaseURL: t.URL,
	})

	normalizer := feed.NewNormalizer()
	var outcome error
	entries := 0

	for ev := range events {
		if t.state.Responded() {
			continue
		}

		if ev.Kind == feed.EventEntry && ev.Entry != nil {
			entries++
			slog.Debug("Parsed entry", "id", t.ID, "guid", ev.Entry.GUID, "title", ev.Entry.Title)
		}

		done, err := normalizer.Apply(ev)
		if err != nil {
			t.fail(parseReason(err))
			outcome = fmt.Errorf("failed to parse feed: %w", err)
			cancel()
			continue
		}
		if !done {
			continue
		}

		body, err := feed.Encode(normalizer.Document(), t.Compact)
		if err != nil {
			t.fail(fmt.Sprintf("error encoding feed : %v", err))
			outcome = err
		} else {
			t.succeed(body)
		}
		cancel()
	}

	if !t.state.Responded() {
		cause := ctx.Err()
		if cause == nil {
			cause = fmt.Errorf("event stream closed before the end of the feed")
		}
		t.fail(parseReason(cause))
		outcome = fmt.Errorf("failed to parse feed: %w", cause)
	}

	if outcome != nil {
		return outcome
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"id", t.ID,
		"url", t.URL,
		"duration", t.GetDuration(),
		"items", entries)

	return nil
}

func (t *ConvertTask) succeed(body []byte) {
	t.complete(Result{
		Status:      http.StatusOK,
		Body:        body,
		ContentType: feed.ContentType,
	})
}

func (t *ConvertTask) fail(reason string) {
	body, err := json.Marshal(errorBody{Err: reason})
	if err != nil {
		body = []byte(`{"err":"internal error"}`)
	}

	t.complete(Result{
		Status:      http.StatusInternalServerError,
		Body:        body,
		ContentType: feed.ContentType,
	})
}

func (t *ConvertTask) complete(result Result) {
	if !t.state.Claim() {
		return
	}
	t.result = result
	close(t.done)
}

func requestReason(err error) string {
	return fmt.Sprintf("error when requesting the feed : %v", err)
}

func parseReason(err error) string {
	return fmt.Sprintf("error parsing feed : %v", err)
}

// Convert runs a conversion in the calling goroutine.
func Convert(ctx context.Context, url string, compact bool, fetcher FetcherInterface, parser ParserInterface) Result {
	task := NewConvertTask(url, compact, fetcher, parser)
	task.Start()
	if err := task.Execute(ctx); err != nil {
		slog.Warn("Conversion failed", "url", url, "error_kind", feed.ErrorKind(err), "error", err)
	}
	return task.Result()
}
