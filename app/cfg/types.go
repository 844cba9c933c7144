package cfg

import "time"

type Cfg struct {
	// Server configuration
	Port       string
	StaticDir  string
	Production bool
	RateLimit  float64
	RateBurst  int

	// Conversion configuration
	FetchTimeout time.Duration
	TaskTimeout  time.Duration
	UserAgent    string
	WorkerCount  int
	QueueSize    int

	// Application metadata
	LogFile  string
	Timezone string
	Debug    bool
	Version  string
}
