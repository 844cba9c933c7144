package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/appsattic/feed2json/app/tasks"
)

func NewHandler(scheduler tasks.TaskSchedulerInterface, fetcher tasks.FetcherInterface,
	parser tasks.ParserInterface, version string) *Handler {
	return &Handler{
		scheduler: scheduler,
		fetcher:   fetcher,
		parser:    parser,
		version:   version,
	}
}

func (h *Handler) Convert(c *gin.Context) {
	requestID := uuid.NewString()
	c.Header("X-Request-Id", requestID)

	queryURL := c.Query("url")
	minify := booleanify(c.Query("minify"))

	slog.Debug("Conversion requested", "request_id", requestID, "url", queryURL, "minify", minify)

	if queryURL == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Err: "provide a 'url' parameter in your query"})
		return
	}

	feedURL, ok := isWebURI(queryURL)
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse{Err: "invalid 'url' : " + queryURL})
		return
	}

	task := tasks.NewConvertTask(feedURL, minify, h.fetcher, h.parser)
	task.ID = requestID

	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue ConvertTask", "request_id", requestID, "url", feedURL, "error", err)
		c.JSON(http.StatusServiceUnavailable, errorResponse{Err: "server is busy, try again later"})
		return
	}

	select {
	case <-task.Done():
		result := task.Result()
		c.Data(result.Status, result.ContentType, result.Body)
	case <-c.Request.Context().Done():
		slog.Debug("Client disconnected before conversion finished", "request_id", requestID, "url", feedURL)
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   h.version,
		Timestamp: time.Now().In(time.Local).Format(time.RFC3339),
	})
}

var uriChars = regexp.MustCompile(`^[a-zA-Z0-9:/?#\[\]@!$&'()*+,;=.\-_~%]+$`)

// isWebURI accepts absolute http and https URIs with a host and returns
// them unchanged.
func isWebURI(value string) (string, bool) {
	if !uriChars.MatchString(value) {
		return "", false
	}

	u, err := url.Parse(value)
	if err != nil {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	if u.Host == "" || u.Hostname() == "" {
		return "", false
	}

	return value, true
}

func booleanify(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "y", "on", "1":
		return true
	}
	return false
}
