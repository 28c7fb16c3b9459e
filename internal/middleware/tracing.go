package middleware

import (
	"fmt"

	"carkey/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// requestCarrier reads propagation headers straight off the fiber request.
type requestCarrier struct{ c *fiber.Ctx }

func (rc requestCarrier) Get(key string) string { return rc.c.Get(key) }

func (rc requestCarrier) Set(key, value string) { rc.c.Request().Header.Set(key, value) }

func (rc requestCarrier) Keys() []string {
	keys := make([]string, 0, 16)
	rc.c.Request().Header.VisitAll(func(k, _ []byte) { keys = append(keys, string(k)) })
	return keys
}

// TracingMiddleware opens a server span per request, joining the caller's
// trace when a traceparent header is present. The trace ID is exposed as
// X-Trace-ID and stored in locals for ContextMiddleware.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if isQuietPath(c.Path()) {
			return c.Next()
		}

		parent := otel.GetTextMapPropagator().Extract(c.UserContext(), requestCarrier{c})
		ctx, span := observability.Tracer.Start(parent, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Method()),
				attribute.String("url.path", c.Path()),
				attribute.String("client.address", c.IP()),
			))
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			id := sc.TraceID().String()
			c.Locals("traceID", id)
			c.Set("X-Trace-ID", id)
		}
		if rid, ok := c.Locals("requestid").(string); ok {
			span.SetAttributes(attribute.String("request.id", rid))
		}
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		// Group spans by route template rather than concrete IDs.
		if r := c.Route(); r != nil && r.Path != "" {
			span.SetName(c.Method() + " " + r.Path)
			span.SetAttributes(attribute.String("http.route", r.Path))
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if uid, ok := c.Locals("userID").(uint); ok {
			span.SetAttributes(attribute.Int64("enduser.id", int64(uid)))
		}

		switch {
		case err != nil && status >= fiber.StatusInternalServerError:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case err != nil:
			span.RecordError(err)
		case status >= fiber.StatusInternalServerError:
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
		return err
	}
}
