package middleware

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func wrap(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// requestInfo lets inner middleware report the authenticated user back to
// the logger, which only sees the outer request.
type requestInfo struct {
	userID string
}

const requestInfoKey contextKey = "requestInfo"

func setRequestUser(r *http.Request, userID string) {
	if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
		info.userID = userID
	}
}

func LoggerMiddleware(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			info := &requestInfo{}
			r = r.WithContext(context.WithValue(r.Context(), requestInfoKey, info))
			rw := wrap(w)

			next.ServeHTTP(rw, r)

			userID := info.userID
			if userID == "" {
				userID = "anonymous"
			}

			entry := log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"status":      rw.statusCode,
				"duration":    time.Since(start).String(),
				"user_id":     userID,
			})

			switch {
			case rw.statusCode >= http.StatusInternalServerError:
				entry.Error("request completed")
			case rw.statusCode >= http.StatusBadRequest:
				entry.Warn("request completed")
			default:
				entry.Info("request completed")
			}
		})
	}
}
