package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Server configuration
	Port       string  `long:"port" env:"PORT" default:"3000" description:"HTTP server port"`
	StaticDir  string  `long:"static-dir" env:"STATIC_DIR" default:"./static" description:"Directory served at /"`
	Production bool    `long:"production" env:"PRODUCTION" description:"Use the compact request log format"`
	RateLimit  float64 `long:"rate-limit" env:"RATE_LIMIT" default:"0" description:"Requests per second allowed per client IP (0 disables rate limiting)"`
	RateBurst  int     `long:"rate-burst" env:"RATE_BURST" default:"10" description:"Burst size for the per client rate limit"`

	// Conversion configuration
	FetchTimeout time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"10s" description:"Timeout for fetching a remote feed"`
	TaskTimeout  time.Duration `long:"task-timeout" env:"TASK_TIMEOUT" default:"30s" description:"Upper bound for a whole conversion"`
	UserAgent    string        `long:"user-agent" env:"USER_AGENT" description:"User agent string for HTTP requests (defaults to a desktop browser)"`
	WorkerCount  int           `long:"worker-count" env:"WORKER_COUNT" default:"8" description:"Number of conversion workers"`
	QueueSize    int           `long:"queue-size" env:"QUEUE_SIZE" default:"64" description:"Number of conversions waiting for a worker"`

	// Application metadata
	LogFile  string `long:"log-file" env:"LOG_FILE" description:"Write logs to a rotated file instead of stdout"`
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads an optional .env file, then flags and environment variables.
func Load() (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: failed to load .env file: %v\n", err)
	}

	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args and the environment. It returns nil, nil when help
// was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if raw.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be positive, got %d", raw.WorkerCount)
	}
	if raw.QueueSize < 0 {
		return nil, fmt.Errorf("queue size must not be negative, got %d", raw.QueueSize)
	}
	if raw.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit must not be negative, got %v", raw.RateLimit)
	}

	cfg := &Cfg{
		Port:         raw.Port,
		StaticDir:    raw.StaticDir,
		Production:   raw.Production,
		RateLimit:    raw.RateLimit,
		RateBurst:    raw.RateBurst,
		FetchTimeout: raw.FetchTimeout,
		TaskTimeout:  raw.TaskTimeout,
		UserAgent:    raw.UserAgent,
		WorkerCount:  raw.WorkerCount,
		QueueSize:    raw.QueueSize,
		LogFile:      raw.LogFile,
		Timezone:     raw.Timezone,
		Debug:        raw.Debug,
		Version:      GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
	}
	return nil
}
