package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type ServerOptions struct {
	StaticDir  string
	Production bool
	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit float64
	RateBurst int
	LogOutput io.Writer
}

func NewServer(handler *Handler, opts ServerOptions) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	output := opts.LogOutput
	if output == nil {
		output = os.Stdout
	}

	formatter := devLogFormat
	if opts.Production {
		formatter = tinyLogFormat
	}

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: formatter,
		Output:    output,
	}))

	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "HEAD", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsConfig.ExposeHeaders = []string{"X-Request-Id"}
	r.Use(cors.New(corsConfig))

	r.Use(gzip.Gzip(gzip.DefaultCompression))

	if opts.RateLimit > 0 {
		r.Use(rateLimitMiddleware(newClientLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)))
	}

	setupRoutes(r, handler, opts.StaticDir)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, staticDir string) {
	r.GET("/convert", handler.Convert)
	r.GET("/health", handler.GetHealth)

	// Everything else is served from the static directory, index.html at /.
	files := http.FileServer(http.Dir(staticDir))
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, errorResponse{Err: "not found"})
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	})
}

// tinyLogFormat mirrors morgan's "tiny" format.
func tinyLogFormat(param gin.LogFormatterParams) string {
	return fmt.Sprintf("%s %s %d %d - %.3f ms\n",
		param.Method,
		param.Path,
		param.StatusCode,
		param.BodySize,
		float64(param.Latency)/float64(time.Millisecond),
	)
}

// devLogFormat mirrors morgan's "dev" format.
func devLogFormat(param gin.LogFormatterParams) string {
	return fmt.Sprintf("%s %s %s%d%s %.3f ms - %d\n",
		param.Method,
		param.Path,
		param.StatusCodeColor(),
		param.StatusCode,
		param.ResetColor(),
		float64(param.Latency)/float64(time.Millisecond),
		param.BodySize,
	)
}

const clientIdleTTL = 3 * time.Minute

type clientLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientEntry
	lastPrune time.Time
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(limit rate.Limit, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		limit:     limit,
		burst:     burst,
		clients:   make(map[string]*clientEntry),
		lastPrune: time.Now(),
	}
}

func (l *clientLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastPrune) > clientIdleTTL {
		for key, entry := range l.clients {
			if now.Sub(entry.lastSeen) > clientIdleTTL {
				delete(l.clients, key)
			}
		}
		l.lastPrune = now
	}

	entry, ok := l.clients[ip]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

func rateLimitMiddleware(limiter *clientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Err: "too many requests"})
			return
		}

		c.Next()
	}
}
