package logger

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/replydeck/replydeck/internal/telemetry"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPRequests returns middleware that logs every request with its method,
// path, response status and duration, and counts it. A request-scoped
// logger is stored in the context for handlers to use.
func HTTPRequests(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()

			ctx := logger.With().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger().WithContext(r.Context())

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(ctx))

			telemetry.GetMetrics().HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.Int("status", rec.status),
			))

			evt := zerolog.Ctx(ctx).Info()
			if rec.status >= http.StatusInternalServerError {
				evt = zerolog.Ctx(ctx).Error()
			}

			evt.Int("status", rec.status).
				Dur("duration", time.Since(started)).
				Msg("http request")
		})
	}
}
