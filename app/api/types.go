package api

import (
	"github.com/appsattic/feed2json/app/tasks"
)

type Handler struct {
	scheduler tasks.TaskSchedulerInterface
	fetcher   tasks.FetcherInterface
	parser    tasks.ParserInterface
	version   string
}

type errorResponse struct {
	Err string `json:"err"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}
