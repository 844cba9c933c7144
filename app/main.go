package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/appsattic/feed2json/app/api"
	"github.com/appsattic/feed2json/app/cfg"
	"github.com/appsattic/feed2json/app/feed"
	"github.com/appsattic/feed2json/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	logOutput := setupLogging(appCfg)

	slog.Info("Starting feed2json server", "version", appCfg.Version)

	fetcher := feed.NewFetcher(appCfg.FetchTimeout, appCfg.UserAgent)
	parser := feed.NewStreamParser()

	slog.Debug("Starting worker pool", "workers", appCfg.WorkerCount, "queue_size", appCfg.QueueSize)
	pool := tasks.NewPool(appCfg.WorkerCount, appCfg.QueueSize, appCfg.TaskTimeout)
	pool.Start()

	apiHandler := api.NewHandler(pool, fetcher, parser, appCfg.Version)
	server := api.NewServer(apiHandler, api.ServerOptions{
		StaticDir:  appCfg.StaticDir,
		Production: appCfg.Production,
		RateLimit:  appCfg.RateLimit,
		RateBurst:  appCfg.RateBurst,
		LogOutput:  logOutput,
	})

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: appCfg.TaskTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening",
			"port", appCfg.Port,
			"convert", fmt.Sprintf("http://localhost:%s/convert?url=<feed-url>", appCfg.Port),
			"health", fmt.Sprintf("http://localhost:%s/health", appCfg.Port))

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// In-flight requests wait on their tasks, so the pool outlives the server.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	pool.Stop()

	slog.Info("Server shutdown complete")
}

// setupLogging installs the default slog logger and returns the writer used
// for request logs.
func setupLogging(appCfg *cfg.Cfg) io.Writer {
	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}

	var output io.Writer = os.Stdout
	if appCfg.LogFile != "" {
		output = &lumberjack.Logger{
			Filename:   appCfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})))

	return output
}
