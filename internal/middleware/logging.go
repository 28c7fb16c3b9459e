package middleware

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

type contextKey string

// Context keys picked up by Logger when a *Context method is used.
const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
)

// Logger is the process-wide logger. JSON in production, text elsewhere.
var Logger = NewLogger(os.Stdout, os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

// NewLogger builds a logger whose records carry the request, user and trace
// IDs stored in the context.
func NewLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(env), "production") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(contextHandler{next: h})
}

// contextHandler copies request-scoped IDs from ctx onto each record.
type contextHandler struct {
	next slog.Handler
}

func (h contextHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
			r.AddAttrs(slog.String(string(RequestIDKey), v))
		}
		if v, ok := ctx.Value(UserIDKey).(uint); ok {
			r.AddAttrs(slog.Uint64(string(UserIDKey), uint64(v)))
		}
		if v, ok := ctx.Value(TraceIDKey).(string); ok && v != "" {
			r.AddAttrs(slog.String(string(TraceIDKey), v))
		}
	}
	return h.next.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}

func parseLevel(raw string) slog.Level {
	var l slog.Level
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "warning") {
		raw = "warn"
	}
	if err := l.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Probes and scrapers hit these often enough to drown the access log.
var quietPaths = []string{"/health", "/metrics"}

func isQuietPath(path string) bool {
	for _, p := range quietPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// localKeys maps fiber locals onto logger context keys.
var localKeys = []struct {
	local string
	key   contextKey
}{
	{"requestid", RequestIDKey},
	{"userID", UserIDKey},
	{"traceID", TraceIDKey},
}

// ContextMiddleware moves request-scoped locals into the user context so
// services logging with a ctx get the same IDs as the access log.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		for _, lk := range localKeys {
			switch v := c.Locals(lk.local).(type) {
			case string:
				if v != "" {
					ctx = context.WithValue(ctx, lk.key, v)
				}
			case uint:
				ctx = context.WithValue(ctx, lk.key, v)
			}
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger writes one access-log line per request. 5xx responses log
// at error level, 4xx at warn.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err == nil && isQuietPath(c.Path()) {
			return nil
		}

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else if err != nil && status < fiber.StatusBadRequest {
			status = fiber.StatusInternalServerError
		}

		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start),
			"ip", c.IP(),
			"user_agent", c.Get(fiber.HeaderUserAgent),
		}

		// AuthRequired sets userID after ContextMiddleware has run.
		ctx := c.UserContext()
		if _, ok := ctx.Value(UserIDKey).(uint); !ok {
			if uid, ok := c.Locals("userID").(uint); ok {
				ctx = context.WithValue(ctx, UserIDKey, uid)
			}
		}

		level, msg := slog.LevelInfo, "request processed"
		switch {
		case status >= fiber.StatusInternalServerError:
			level, msg = slog.LevelError, "request failed"
		case status >= fiber.StatusBadRequest:
			level = slog.LevelWarn
		}
		if err != nil {
			attrs = append(attrs, "error", err.Error())
		}
		Logger.Log(ctx, level, msg, attrs...)
		return err
	}
}
