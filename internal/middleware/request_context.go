package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "RequestID"
	loggerKey       = "Logger"
)

// InjectRequestContext tags every request with an id and a logger carrying
// it, the way later handlers expect to find them.
func InjectRequestContext(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Set(requestIDKey, id)
		c.Set(loggerKey, log.With().Str("request_id", id).Logger())

		c.Next()
	}
}

// Logger returns the request logger set by InjectRequestContext.
func Logger(c *gin.Context) zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(zerolog.Logger); ok {
			return l
		}
	}
	return zerolog.Nop()
}

func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// AccessLog writes one line per request once it is done.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		log := Logger(c)
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("uri", c.Request.URL.RequestURI()).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Int("size", c.Writer.Size()).
			Msg("request")
	}
}
