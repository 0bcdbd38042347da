package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// StatusHeader carries the executor status on every admin response.
const StatusHeader = "X-Linfa-Status"

// ExecutorView is what the admin middleware reads from the control service.
type ExecutorView interface {
	StatusName() string
	ControlAddr() string
}

// ExecutorStatus stamps the executor status before the handler runs, so
// probes can read it from any route, /metrics included.
func ExecutorStatus(view ExecutorView) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header(StatusHeader, view.StatusName())
		c.Next()
	}
}

// RequestLogger logs each admin request with the control endpoint and the
// executor status it was served under. Scrapes and health probes log at trace.
func RequestLogger(logger zerolog.Logger, view ExecutorView) gin.HandlerFunc {
	control := view.ControlAddr()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		code := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var event *zerolog.Event
		switch {
		case code >= 500:
			event = logger.Error()
		case code >= 400:
			event = logger.Warn()
		case route == "/metrics" || route == "/health":
			event = logger.Trace()
		default:
			event = logger.Debug()
		}
		event.
			Str("route", route).
			Int("code", code).
			Str("executor_status", c.Writer.Header().Get(StatusHeader)).
			Str("control_endpoint", control).
			Dur("took", time.Since(start)).
			Str("remote", c.ClientIP()).
			Msg("admin request")
	}
}

// RequestMetrics records admin traffic under the matched route; unknown paths
// share one label.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
