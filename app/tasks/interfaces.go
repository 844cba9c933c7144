package tasks

import (
	"context"
	"io"

	"github.com/appsattic/feed2json/app/feed"
)

// TaskSchedulerInterface accepts tasks for background execution.
// Used by the API handlers to hand conversions to the worker pool.
//
//	pool := NewPool(workers, queueSize, timeout)
//	pool.Start()
//	defer pool.Stop()
//	pool.EnqueueTask(NewConvertTask(url, compact, fetcher, parser))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

type FetcherInterface interface {
	Fetch(ctx context.Context, url string) (*feed.Response, error)
}

type ParserInterface interface {
	Parse(ctx context.Context, r io.Reader, opts feed.ParseOptions) <-chan feed.Event
}

var (
	_ FetcherInterface = (*feed.Fetcher)(nil)
	_ ParserInterface  = (*feed.StreamParser)(nil)
)
