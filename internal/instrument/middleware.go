package instrument

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Middleware returns a Fiber middleware that generates (or propagates) a
// trace ID, stores it with a request-scoped logger in the user context, and
// logs each request once it completes.
func Middleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get(TraceHeader)
		if traceID == "" {
			traceID = newTraceID()
		}
		reqLogger := logger.With(zap.String("trace_id", traceID))

		ctx := WithTraceID(c.UserContext(), traceID)
		ctx = WithLogger(ctx, reqLogger)
		c.SetUserContext(ctx)
		c.Set(TraceHeader, traceID)

		start := time.Now()
		err := c.Next()

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Duration("latency", time.Since(start)),
		}
		if subject, ok := c.Locals("subject").(string); ok && subject != "" {
			fields = append(fields, zap.String("subject", subject))
		}
		// The error handler has not run yet when err is set.
		if err != nil {
			reqLogger.Debug("request", append(fields, zap.NamedError("handler_error", err))...)
		} else {
			reqLogger.Debug("request", append(fields, zap.Int("status", c.Response().StatusCode()))...)
		}
		return err
	}
}
