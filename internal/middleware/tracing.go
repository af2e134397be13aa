package middleware

import (
	"errors"

	"quill/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Locals keys set by the auth layer and read back here and by the logger.
const (
	UserIDLocal   = "userID"
	UserRoleLocal = "userRole"
)

// TracingMiddleware opens a server span per request. The span is renamed to
// the matched route template once routing is done so that /api/posts/12 and
// /api/posts/13 aggregate under "GET /api/posts/:id".
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), propagation.HeaderCarrier(c.GetReqHeaders()))

		ctx, span := observability.Tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.target", c.OriginalURL()),
				attribute.String("http.client_ip", c.IP()),
				attribute.String("http.user_agent", c.Get(fiber.HeaderUserAgent)),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		c.Locals("traceID", traceID)
		c.Locals("spanID", span.SpanContext().SpanID().String())
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			span.SetAttributes(attribute.String("quill.request_id", rid))
		}
		c.Set("X-Trace-ID", traceID)
		c.SetUserContext(ctx)

		err := c.Next()

		if route := c.Route(); route != nil && route.Path != "" && route.Path != "/" {
			span.SetName(c.Method() + " " + route.Path)
			span.SetAttributes(attribute.String("http.route", route.Path))
		}
		annotateActor(c, span)

		// The app error handler has not run yet, so derive the status it will write.
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		switch {
		case err != nil && status >= fiber.StatusInternalServerError:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case err != nil:
			span.SetAttributes(attribute.String("quill.client_error", err.Error()))
		case status >= fiber.StatusInternalServerError:
			span.SetStatus(codes.Error, "server error")
		}
		return err
	}
}

// annotateActor tags the span with the authenticated caller, if any.
func annotateActor(c *fiber.Ctx, span trace.Span) {
	uid, ok := c.Locals(UserIDLocal).(uint)
	if !ok {
		span.SetAttributes(attribute.Bool("quill.anonymous", true))
		return
	}
	span.SetAttributes(
		attribute.Bool("quill.anonymous", false),
		attribute.Int64("quill.user_id", int64(uid)),
	)
	if role, ok := c.Locals(UserRoleLocal).(string); ok && role != "" {
		span.SetAttributes(attribute.String("quill.user_role", role))
	}
}
