package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"tradesync/internal/metrics"
	"tradesync/pkg/utils"
)

// RequestIDHeader - заголовок корреляции запросов
const RequestIDHeader = "X-Request-ID"

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// routeTemplate возвращает шаблон маршрута mux, чтобы метки метрик не росли от query
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// Logging пишет access log через zap и метрику длительности запроса.
// Запросу без X-Request-ID присваивается новый UUID.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set(RequestIDHeader, requestID)
		}
		w.Header().Set(RequestIDHeader, requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		route := routeTemplate(r)
		metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(wrapped.statusCode), duration)

		fields := []utils.Field{
			utils.String("method", r.Method),
			utils.String("path", r.URL.Path),
			utils.String("route", route),
			utils.StatusCode(wrapped.statusCode),
			utils.Latency(float64(duration.Microseconds()) / 1000),
			utils.String("remote_addr", r.RemoteAddr),
			utils.Int64("bytes", wrapped.written),
			utils.RequestID(requestID),
		}
		log := utils.L().WithComponent("http")
		switch {
		case wrapped.statusCode >= 500:
			log.Error("request", fields...)
		case wrapped.statusCode >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	})
}
