package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestLogger writes one access log line per request. Paths listed in skip
// (health checks, metrics scrapes) are not logged.
func RequestLogger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if _, ok := skipped[path]; ok {
			return
		}
		if q := c.Request.URL.Query(); len(q) > 0 {
			if q.Has("token") {
				q.Set("token", "REDACTED")
			}
			path = path + "?" + q.Encode()
		}

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		event = event.
			Str("IP", c.ClientIP()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("URI", path).
			Str("method", c.Request.Method).
			Str("host", c.Request.Host).
			Str("User-Agent", c.Request.UserAgent())
		if id, ok := UserID(c); ok {
			event = event.Str("user_id", id.String())
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg("request")
	}
}
