package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/agency-api/internal/common"
)

// NewLogger configures a zerolog logger using the provided format and level.
func NewLogger(format, level string) zerolog.Logger {
	return newLogger(os.Stdout, format, level)
}

func newLogger(w io.Writer, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := w
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// RequestLogger writes one line per request and puts a request-scoped logger
// on the context for zerolog.Ctx. Fields added to that logger downstream,
// such as the user id, also land on the request line.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := l.Logger.With().Str("request_id", middleware.GetReqID(r.Context()))
		if id, ok := common.UserID(r.Context()); ok {
			c = c.Str("user_id", id)
		}
		scoped := c.Logger()
		ctx := scoped.WithContext(r.Context())
		r = r.WithContext(ctx)

		rec := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		log := zerolog.Ctx(ctx)
		evt := log.Info()
		switch {
		case rec.Status() >= http.StatusInternalServerError:
			evt = log.Error()
		case rec.Status() >= http.StatusBadRequest:
			evt = log.Warn()
		}
		evt = evt.
			Str("method", r.Method).
			Str("route", Route(r, r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", rec.Status()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int64("bytes", rec.BytesWritten()).
			Str("client_ip", common.ClientIP(r))
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}
